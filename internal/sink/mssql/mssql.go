// Package mssql writes output tables into SQL Server via
// microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"flatsheet/internal/sink"
	"flatsheet/internal/tables"
)

func init() {
	sink.Register("mssql", New)
}

// maxBatchParams stays under SQL Server's 2100 parameters-per-statement
// limit, with headroom.
const maxBatchParams = 2000

// Sink implements sink.Sink on a SQL Server database.
type Sink struct {
	db    *sql.DB
	specs map[string]sink.Spec
}

// New connects using a sqlserver:// DSN.
func New(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Sink{db: db, specs: make(map[string]sink.Spec)}, nil
}

// Open creates one table per spec. SQL Server has no CREATE TABLE IF NOT
// EXISTS; the conditional OBJECT_ID guard is the standard idiom.
func (s *Sink) Open(ctx context.Context, specs []sink.Spec) error {
	for _, spec := range specs {
		var cols strings.Builder
		for i, col := range spec.Columns {
			if i > 0 {
				cols.WriteString(", ")
			}
			cols.WriteString(sqlIdent(col))
			cols.WriteString(" ")
			cols.WriteString(sqlType(spec.Types[i]))
		}
		stmt := fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
			strings.ReplaceAll(spec.Name, "'", "''"), sqlIdent(spec.Name), cols.String(),
		)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", spec.Name, err)
		}
		s.specs[spec.Name] = spec
	}
	return nil
}

// WriteRows inserts rows with batched multi-row INSERTs using @pN
// placeholders.
func (s *Sink) WriteRows(ctx context.Context, table string, rows [][]any) error {
	spec, ok := s.specs[table]
	if !ok {
		return fmt.Errorf("mssql: unknown table %s", table)
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
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(n))
			n++
			args = append(args, sink.NormalizeValue(v))
		}
		b.WriteString(")")
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("mssql: insert into %s: %w", spec.Name, err)
	}
	return nil
}

// Close closes the database.
func (s *Sink) Close() error { return s.db.Close() }

func sqlType(k tables.Kind) string {
	switch k {
	case tables.KindInteger:
		return "BIGINT"
	case tables.KindNumber:
		return "FLOAT"
	case tables.KindBoolean:
		return "BIT"
	}
	return "NVARCHAR(MAX)"
}

func sqlIdent(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}
