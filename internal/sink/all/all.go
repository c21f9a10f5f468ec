// Package all registers every built-in sink backend. Blank-import it from a
// main package to make the full set available through sink.New.
package all

import (
	_ "flatsheet/internal/sink/csv"
	_ "flatsheet/internal/sink/mssql"
	_ "flatsheet/internal/sink/postgres"
	_ "flatsheet/internal/sink/sqlite"
)
