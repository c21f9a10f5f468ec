// Package csv writes one CSV file per output table into a target directory.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"flatsheet/internal/sink"
)

func init() {
	sink.Register("csv", New)
}

type tableFile struct {
	f *os.File
	w *csv.Writer
}

// Sink writes <dir>/<table>.csv with the header row first.
type Sink struct {
	dir    string
	logger sink.Logger
	files  map[string]*tableFile
}

// New creates the target directory if needed. cfg.DSN is the directory path;
// empty means the current directory.
func New(_ context.Context, cfg sink.Config) (sink.Sink, error) {
	dir := cfg.DSN
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv: create dir %s: %w", dir, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Sink{dir: dir, logger: logger, files: make(map[string]*tableFile)}, nil
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Open creates one file per table and writes its header row.
func (s *Sink) Open(_ context.Context, specs []sink.Spec) error {
	for _, spec := range specs {
		path := filepath.Join(s.dir, spec.Name+".csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("csv: create %s: %w", path, err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(spec.Headers); err != nil {
			f.Close()
			return fmt.Errorf("csv: write header for %s: %w", spec.Name, err)
		}
		s.files[spec.Name] = &tableFile{f: f, w: w}
	}
	return nil
}

// WriteRows appends rows to the table's file. Rows for a table that was never
// opened are logged and dropped; a file-level write error fails the call.
func (s *Sink) WriteRows(_ context.Context, table string, rows [][]any) error {
	tf := s.files[table]
	if tf == nil {
		s.logger.Printf("csv: dropping %d rows for unopened table %s", len(rows), table)
		return nil
	}
	record := make([]string, 0, 16)
	for _, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, sink.FormatValue(v))
		}
		if err := tf.w.Write(record); err != nil {
			return fmt.Errorf("csv: write row to %s: %w", table, err)
		}
	}
	return nil
}

// Close flushes and closes every file, returning the first error seen.
func (s *Sink) Close() error {
	var first error
	for name, tf := range s.files {
		tf.w.Flush()
		if err := tf.w.Error(); err != nil && first == nil {
			first = fmt.Errorf("csv: flush %s: %w", name, err)
		}
		if err := tf.f.Close(); err != nil && first == nil {
			first = fmt.Errorf("csv: close %s: %w", name, err)
		}
	}
	return first
}
