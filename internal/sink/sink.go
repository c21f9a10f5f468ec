// Package sink defines the output side of the pipeline: a backend-agnostic
// Sink interface, a registry of concrete backends (CSV, SQLite, Postgres,
// SQL Server) selected by kind string, and the derivation of per-table output
// specs (column order, headers, renames) from the flattening configuration.
package sink

import (
	"context"
	"fmt"
	"sync"

	"flatsheet/internal/tables"
)

// Config selects and parameterizes a backend.
type Config struct {
	// Kind matches a registered backend ("csv", "sqlite", "postgres",
	// "mssql").
	Kind string
	// DSN is backend-specific: a connection string for databases, a target
	// directory for CSV.
	DSN string
	// Logger receives non-fatal write diagnostics. Nil discards them.
	Logger Logger
}

// Logger is the minimal logging interface sinks use.
type Logger interface {
	Printf(format string, v ...any)
}

// Spec describes one output table: its sink-facing name, column identifiers
// in output order, the header row and the column shape tags (for DDL).
// Columns, Headers and Types are parallel slices.
type Spec struct {
	Name    string
	Columns []string
	Headers []string
	Types   []tables.Kind
}

// Values projects one engine row onto the spec's column order. Missing cells
// come out as nil.
func (s Spec) Values(row map[string]any) []any {
	out := make([]any, len(s.Columns))
	for i, col := range s.Columns {
		out[i] = row[col]
	}
	return out
}

// Sink receives flattened rows. Implementations are not required to be safe
// for concurrent use; the pipeline writes from one goroutine.
type Sink interface {
	// Open prepares the output for the given tables (files, DDL). Must be
	// called once before WriteRows.
	Open(ctx context.Context, specs []Spec) error
	// WriteRows appends rows (already projected to column order) to the named
	// table. A malformed individual row is logged and skipped; an error means
	// the output as a whole failed.
	WriteRows(ctx context.Context, table string, rows [][]any) error
	// Close flushes and releases the output. Call once.
	Close() error
}

// Factory constructs a backend from its config.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend factory under a kind. It is called from init
// functions of backend packages; registering the same kind twice panics to
// fail fast on ambiguous wiring.
func Register(kind string, f Factory) {
	if kind == "" {
		panic("sink: Register with empty kind")
	}
	if f == nil {
		panic("sink: Register with nil factory")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("sink: Register called twice for kind %q", kind))
	}
	factories[kind] = f
}

// New constructs the backend registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("sink: kind is required")
	}
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sink: unsupported kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
