// Package sqlite writes output tables into a SQLite database via
// modernc.org/sqlite (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"flatsheet/internal/sink"
	"flatsheet/internal/tables"
)

func init() {
	sink.Register("sqlite", New)
}

// maxBatchParams keeps multi-row inserts under SQLite's default host
// parameter limit (999), with headroom.
const maxBatchParams = 900

// Sink implements sink.Sink on a SQLite database.
type Sink struct {
	db    *sql.DB
	specs map[string]sink.Spec
}

// New opens (or creates) the database at cfg.DSN.
func New(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.DSN, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Sink{db: db, specs: make(map[string]sink.Spec)}, nil
}

// Open creates one table per spec with create-if-not-exists semantics so
// repeated runs against the same database stay idempotent at DDL level.
func (s *Sink) Open(ctx context.Context, specs []sink.Spec) error {
	for _, spec := range specs {
		var b strings.Builder
		b.WriteString("CREATE TABLE IF NOT EXISTS ")
		b.WriteString(sqlIdent(spec.Name))
		b.WriteString(" (")
		for i, col := range spec.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(sqlIdent(col))
			b.WriteString(" ")
			b.WriteString(sqlType(spec.Types[i]))
		}
		b.WriteString(")")
		if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
			return fmt.Errorf("sqlite: create table %s: %w", spec.Name, err)
		}
		s.specs[spec.Name] = spec
	}
	return nil
}

// WriteRows inserts rows with batched multi-row INSERTs.
func (s *Sink) WriteRows(ctx context.Context, table string, rows [][]any) error {
	spec, ok := s.specs[table]
	if !ok {
		return fmt.Errorf("sqlite: unknown table %s", table)
	}
	if len(rows) == 0 {
		return nil
	}

	cols := len(spec.Columns)
	batchRows := maxBatchParams / cols
	if batchRows < 1 {
		batchRows = 1
	}

	for start := 0; start < len(rows); start += batchRows {
		end := start + batchRows
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertBatch(ctx, spec, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) insertBatch(ctx context.Context, spec sink.Spec, rows [][]any) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(spec.Name))
	b.WriteString(" (")
	for i, col := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(col))
	}
	b.WriteString(") VALUES ")

	placeholder := "(" + strings.TrimRight(strings.Repeat("?,", len(spec.Columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(spec.Columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholder)
		for _, v := range row {
			args = append(args, sink.NormalizeValue(v))
		}
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("sqlite: insert into %s: %w", spec.Name, err)
	}
	return nil
}

// Close closes the database.
func (s *Sink) Close() error { return s.db.Close() }

// sqlType maps a column shape tag to SQLite affinity. Booleans store as
// INTEGER 0/1 per SQLite convention.
func sqlType(k tables.Kind) string {
	switch k {
	case tables.KindInteger, tables.KindBoolean:
		return "INTEGER"
	case tables.KindNumber:
		return "REAL"
	}
	return "TEXT"
}

// sqlIdent double-quotes an identifier, escaping embedded quotes.
func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
