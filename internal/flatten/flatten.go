// Package flatten implements the configurable flattening engine: given a
// table/column model produced by the analysis phase and a stream of
// hierarchical records, it emits flat per-table rows with stable identifiers
// and parent/child linkage.
//
// The engine is single-threaded and pull-based. It mutates the model in place
// (header widening, shaping columns) and must not run concurrently with
// anything else reading the same model.
package flatten

import (
	"context"
	"fmt"
	"sort"

	"flatsheet/internal/ordered"
	"flatsheet/internal/pointer"
	"flatsheet/internal/tables"
)

// Row is one flattened output record for one table: column pointer to scalar
// value, always carrying the four identity fields. Rows are transient; the
// engine keeps no reference after yielding them.
type Row map[string]any

// Result pairs an input record's sequence number with the rows it produced,
// keyed by (internal) table name.
type Result struct {
	Seq  int
	Rows map[string][]Row
}

// Flattener walks records depth-first and dispatches every field through
// pointer-keyed caches built once at construction.
type Flattener struct {
	opts  Options
	model tables.Model

	// selection is the effective per-table config after the split cascade.
	selection map[string]*TableConfig
	// tables holds the retained (selected, non-empty) tables.
	tables map[string]*tables.Table

	// pathCache: strict boundary match => new row for the table.
	pathCache map[string]*tables.Table
	// typeCache: fallback classification from each table's types map.
	typeCache map[string]*tables.Table
	// columnCache: scalar ownership from columns (split) or combined columns.
	columnCache map[string]*tables.Table

	prefixes *pointer.Cache

	groupKey  string
	recordKey string

	logger Logger
	warned map[string]struct{}
}

// New builds a Flattener over a fully materialized model.
//
// Shaping directives that reference missing tables or columns degrade to a
// deduplicated warning and are skipped; they never fail construction.
func New(opts Options, model tables.Model, logger Logger) (*Flattener, error) {
	if model == nil {
		return nil, fmt.Errorf("flatten: model is required")
	}
	if logger == nil {
		logger = nopLogger{}
	}

	f := &Flattener{
		opts:        opts,
		model:       model,
		selection:   make(map[string]*TableConfig, len(opts.Selection)),
		tables:      make(map[string]*tables.Table),
		pathCache:   make(map[string]*tables.Table),
		typeCache:   make(map[string]*tables.Table),
		columnCache: make(map[string]*tables.Table),
		prefixes:    pointer.NewCache(),
		groupKey:    opts.groupKey(),
		recordKey:   opts.recordKey(),
		logger:      logger,
		warned:      make(map[string]struct{}),
	}

	for name, cfg := range opts.Selection {
		if model[name] == nil {
			// Unknown table names are ignored, not an error.
			continue
		}
		if cfg == nil {
			cfg = &TableConfig{}
		}
		f.selection[name] = cfg
	}

	f.cascadeSplit()
	f.buildCaches()
	f.applyDirectives()
	return f, nil
}

// Tables returns the retained tables keyed by internal name.
func (f *Flattener) Tables() map[string]*tables.Table { return f.tables }

// Options returns the effective options, including configs created by the
// split cascade.
func (f *Flattener) Options() Options {
	o := f.opts
	o.Selection = f.selection
	return o
}

// Config returns the effective config for a retained table.
func (f *Flattener) Config(name string) *TableConfig { return f.selection[name] }

// OutputName resolves the sink-facing name of a table (rename directive).
func (f *Flattener) OutputName(name string) string {
	if cfg := f.selection[name]; cfg != nil && cfg.Name != "" {
		return cfg.Name
	}
	return name
}

// cascadeSplit forces split=true onto every descendant of a split table that
// was not explicitly configured. Children of a split table are never silently
// combined back into it.
func (f *Flattener) cascadeSplit() {
	var visit func(name string)
	visit = func(name string) {
		t := f.model[name]
		if t == nil {
			return
		}
		for _, child := range t.ChildTables {
			if f.model[child] == nil {
				continue
			}
			if _, ok := f.selection[child]; !ok {
				f.selection[child] = &TableConfig{Split: true}
			}
			visit(child)
		}
	}
	for name, cfg := range f.selection {
		if cfg.Split {
			visit(name)
		}
	}
}

// buildCaches filters the model to the selection and compiles the three
// pointer-keyed dispatch caches. Tables with no matching data across analysis
// are dropped here and never produce output.
//
// Registration runs ancestors-first: a pointer claimed by both a combined
// ancestor and a selected child table must dispatch to the child, so deeper
// tables overwrite shallower ones.
func (f *Flattener) buildCaches() {
	names := make([]string, 0, len(f.model))
	for name := range f.model {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := f.depth(names[i]), f.depth(names[j])
		if di != dj {
			return di < dj
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		t := f.model[name]
		cfg, ok := f.selection[name]
		if !ok || t.TotalRows == 0 {
			continue
		}
		f.tables[name] = t

		if cfg.Split {
			// Slot columns inherited from analysis belong to the child
			// tables now.
			t.DropIndexedColumns()
		}

		for _, p := range t.Path {
			f.pathCache[p] = t
		}
		for p := range t.Types {
			f.typeCache[p] = t
		}

		var cols []string
		if cfg.Split {
			cols = t.Columns.Keys()
		} else {
			cols = t.CombinedColumns.Keys()
		}
		for _, p := range cols {
			f.columnCache[p] = t
		}
	}
}

// depth counts parent links up to the root table.
func (f *Flattener) depth(name string) int {
	d := 0
	for t := f.model[name]; t != nil && t.Parent != ""; t = f.model[t.Parent] {
		d++
	}
	return d
}

// applyDirectives inserts count columns and wires the unnest/repeat shaping
// directives into the retained tables' column sets so the values written
// during the walk have a destination column.
func (f *Flattener) applyDirectives() {
	for name, t := range f.tables {
		cfg := f.selection[name]

		if f.opts.Count {
			for array, maxLen := range t.Arrays {
				key := lastSegment(array)
				countPath := pointer.CountColumn(array)
				target := f.typeCache[array]
				if target == nil {
					target = t
				}
				target.AddColumn(countPath, tables.KindInteger, key+" count", false)
				if maxLen > 0 {
					target.IncColumn(countPath)
				}
			}
		}

		for _, colID := range cfg.Unnest {
			col := t.CombinedColumns.Get(colID)
			if col == nil {
				f.warnf("ignoring unnest column %s: not in table %s", colID, name)
				continue
			}
			t.Columns.Set(colID, col)
			t.Titles[colID] = col.Title
		}

		for _, colID := range cfg.Repeat {
			cols := t.CombinedColumns
			if cfg.Split {
				cols = t.Columns
			}
			col := cols.Get(colID)
			if col == nil {
				f.warnf("ignoring repeat column %s: not in table %s", colID, name)
				continue
			}
			title := t.Titles[colID]
			for _, childName := range t.ChildTables {
				child := f.tables[childName]
				if child == nil {
					continue
				}
				child.Columns.Set(colID, col)
				child.CombinedColumns.Set(colID, col)
				child.Titles[colID] = title
			}
		}
	}
}

// Flatten consumes records from in and calls emit once per record, in input
// order, with the rows the record produced. It returns when in closes, emit
// fails, or ctx is canceled. The engine holds no resume state: restarting
// means re-supplying the record stream.
func (f *Flattener) Flatten(ctx context.Context, in <-chan *ordered.Map, emit func(Result) error) error {
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			rows := f.FlattenRecord(rec)
			if err := emit(Result{Seq: seq, Rows: rows}); err != nil {
				return err
			}
			seq++
		}
	}
}

func lastSegment(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
