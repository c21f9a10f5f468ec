// Package metrics is a tiny facade between the pipeline and whatever metrics
// vendor a deployment uses. The core packages emit counters and histogram
// samples against this interface only; the process wires a concrete backend
// once at startup. The default backend discards everything, so library code
// never checks for nil.
package metrics

import "sync"

// Labels are the dimension tags attached to one observation.
type Labels map[string]string

// Backend receives observations. Implementations must be safe for concurrent
// use; observation calls must be cheap (buffer, don't submit inline).
type Backend interface {
	// IncCounter adds delta to a monotonically increasing counter.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records one sample of a distribution.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush submits buffered observations now.
	Flush() error
	// Close stops background flushing and submits one final time.
	Close() error
}

// Metric names emitted by this module. Backends may aggregate or ignore any
// of them.
const (
	// MetricRecords counts processed input records; label "phase" is
	// "analyze" or "flatten".
	MetricRecords = "flatsheet_records_total"
	// MetricRows counts emitted output rows; label "table" carries the output
	// table name.
	MetricRows = "flatsheet_rows_total"
	// MetricRunSeconds samples phase durations; label "phase" as above.
	MetricRunSeconds = "flatsheet_run_duration_seconds"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
func (nopBackend) Close() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend and returns the previous one.
// Pass nil to restore the discarding default.
func SetBackend(b Backend) Backend {
	mu.Lock()
	defer mu.Unlock()
	prev := backend
	if b == nil {
		b = nopBackend{}
	}
	backend = b
	return prev
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush submits buffered observations on the installed backend.
func Flush() error { return current().Flush() }

// Close closes the installed backend and restores the discarding default.
func Close() error {
	b := SetBackend(nil)
	return b.Close()
}
