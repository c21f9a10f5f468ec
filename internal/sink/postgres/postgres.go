// Package postgres writes output tables into Postgres via jackc/pgx.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"flatsheet/internal/sink"
	"flatsheet/internal/tables"
)

func init() {
	sink.Register("postgres", New)
}

// maxBatchParams stays well under Postgres' 65535 bind parameter limit.
const maxBatchParams = 30000

// Sink implements sink.Sink on a pgx connection pool.
type Sink struct {
	pool  *pgxpool.Pool
	specs map[string]sink.Spec
}

// New connects using a standard Postgres DSN/URL.
func New(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Sink{pool: pool, specs: make(map[string]sink.Spec)}, nil
}

// Open creates one table per spec with create-if-not-exists semantics.
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
		if _, err := s.pool.Exec(ctx, b.String()); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", spec.Name, err)
		}
		s.specs[spec.Name] = spec
	}
	return nil
}

// WriteRows inserts rows with batched multi-row INSERTs using numbered
// placeholders.
func (s *Sink) WriteRows(ctx context.Context, table string, rows [][]any) error {
	spec, ok := s.specs[table]
	if !ok {
		return fmt.Errorf("postgres: unknown table %s", table)
	}
	if len(rows) == 0 {
		return nil
	}

	batchRows := maxBatchParams / len(spec.Columns)
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

	args := make([]any, 0, len(rows)*len(spec.Columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			n++
			args = append(args, sink.NormalizeValue(v))
		}
		b.WriteString(")")
	}

	if _, err := s.pool.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("postgres: insert into %s: %w", spec.Name, err)
	}
	return nil
}

// Close closes the pool.
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

func sqlType(k tables.Kind) string {
	switch k {
	case tables.KindInteger:
		return "BIGINT"
	case tables.KindNumber:
		return "DOUBLE PRECISION"
	case tables.KindBoolean:
		return "BOOLEAN"
	}
	return "TEXT"
}

func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
