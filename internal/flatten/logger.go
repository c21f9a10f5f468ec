package flatten

import "fmt"

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// warnf logs a warning exactly once per formatted message. Directive problems
// (a repeat/unnest reference to a missing column, a row write with no open
// row) recur for every record of a large file; deduplication keeps them from
// flooding the log without hiding them.
func (f *Flattener) warnf(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	if _, seen := f.warned[msg]; seen {
		return
	}
	f.warned[msg] = struct{}{}
	f.logger.Printf("warn: %s", msg)
}
