// Package analyze builds the table/column model from a stream of records: it
// discovers table boundaries under the configured root pointers, tags every
// pointer with its value shape, tracks array width statistics, materializes
// combined column slots and derives human-readable titles. The resulting model
// is what the flattening engine consumes, either directly or after a
// save/restore cycle.
package analyze

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"flatsheet/internal/ordered"
	"flatsheet/internal/pointer"
	"flatsheet/internal/tables"
)

// Logger is the minimal logging interface used by the analyzer.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Config declares where root tables live in the record and how wide an array
// may grow before splitting it into a child table is recommended.
type Config struct {
	// RootTables maps table name to the top-level pointers its rows come from.
	RootTables map[string][]string `json:"root_tables"`
	// Threshold is the array width above which a child table is recommended
	// split rather than combined. Zero means DefaultThreshold.
	Threshold int `json:"threshold,omitempty"`
}

// DefaultThreshold is the array width above which combining stops paying off.
const DefaultThreshold = 5

// DefaultConfig covers contracting-data releases, the format this tool grew up
// on. Other inputs supply their own root table mapping.
func DefaultConfig() Config {
	return Config{
		RootTables: map[string][]string{
			"tenders":   {"/tender"},
			"parties":   {"/parties"},
			"planning":  {"/planning"},
			"awards":    {"/awards"},
			"contracts": {"/contracts"},
		},
	}
}

func (c Config) threshold() int {
	if c.Threshold <= 0 {
		return DefaultThreshold
	}
	return c.Threshold
}

// Analyzer accumulates a model over many records. Not safe for concurrent use.
type Analyzer struct {
	cfg    Config
	model  tables.Model
	byPath map[string]*tables.Table
	logger Logger

	records int64
}

// New returns an Analyzer with one empty root table per Config.RootTables
// entry.
func New(cfg Config, logger Logger) *Analyzer {
	if logger == nil {
		logger = nopLogger{}
	}
	a := &Analyzer{
		cfg:    cfg,
		model:  make(tables.Model),
		byPath: make(map[string]*tables.Table),
		logger: logger,
	}
	for name, paths := range cfg.RootTables {
		t := tables.NewTable(name, paths, true)
		a.model[name] = t
		for _, p := range paths {
			a.byPath[p] = t
		}
	}
	return a
}

// Model returns the accumulated model. The analyzer keeps mutating it on
// further ProcessRecord calls.
func (a *Analyzer) Model() tables.Model { return a.model }

// Records returns the number of records processed so far.
func (a *Analyzer) Records() int64 { return a.records }

// Recommendations reports, per table, whether splitting it off its parent is
// recommended: true when the table's own array was ever wider than the
// configured threshold. Root tables are always split (they have no parent row
// to combine into).
func (a *Analyzer) Recommendations() map[string]bool {
	out := make(map[string]bool, len(a.model))
	threshold := a.cfg.threshold()
	for name, t := range a.model {
		if t.IsRoot {
			out[name] = true
			continue
		}
		split := false
		for _, p := range t.Path {
			parent := a.model[t.Parent]
			if parent != nil && parent.Arrays[p] > threshold {
				split = true
			}
		}
		out[name] = split
	}
	return out
}

// Analyze drains records from in, feeding each into the model, until in
// closes or ctx is canceled.
func (a *Analyzer) Analyze(ctx context.Context, in <-chan *ordered.Map) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-in:
			if !ok {
				return nil
			}
			a.ProcessRecord(rec)
		}
	}
}

type aframe struct {
	absPath string
	relPath string
	table   *tables.Table
	node    *ordered.Map
}

type pendingWiden struct {
	table   *tables.Table
	relPath string
	absPath string
	key     string
	length  int
}

// ProcessRecord folds one record into the model: new pointers become typed
// columns, new arrays become child tables, wider arrays queue header widening.
// Fields outside the configured root pointers are ignored.
func (a *Analyzer) ProcessRecord(rec *ordered.Map) {
	if rec == nil {
		return
	}
	a.records++

	var stack []aframe
	var widens []pendingWiden

	for _, key := range rec.Keys() {
		ptr := pointer.Separator + key
		t := a.byPath[ptr]
		if t == nil {
			continue
		}
		v, _ := rec.Get(key)
		switch node := v.(type) {
		case *ordered.Map:
			a.setType(t, ptr, tables.KindObject)
			t.TotalRows++
			stack = append(stack, aframe{absPath: ptr, relPath: ptr, table: t, node: node})
		case []any:
			if !isObjectArray(node) {
				a.setType(t, ptr, tables.KindJoinable)
				continue
			}
			a.setType(t, ptr, tables.KindArray)
			if n := len(node); n > t.Arrays[ptr] {
				t.Arrays[ptr] = n
			}
			for i, elem := range node {
				obj, ok := elem.(*ordered.Map)
				if !ok {
					continue
				}
				t.TotalRows++
				stack = append(stack, aframe{
					absPath: ptr + pointer.Separator + strconv.Itoa(i),
					relPath: ptr,
					table:   t,
					node:    obj,
				})
			}
		}
	}

	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t := fr.table

		for _, key := range fr.node.Keys() {
			item, _ := fr.node.Get(key)
			ptr := fr.relPath + pointer.Separator + key
			absPtr := fr.absPath + pointer.Separator + key

			switch v := item.(type) {
			case *ordered.Map:
				a.setType(t, ptr, tables.KindObject)
				stack = append(stack, aframe{absPath: absPtr, relPath: ptr, table: t, node: v})

			case []any:
				if !isObjectArray(v) {
					a.setType(t, ptr, tables.KindJoinable)
					a.addColumn(t, ptr, tables.KindJoinable, key)
					continue
				}
				a.setType(t, ptr, tables.KindArray)
				child := a.ensureChildTable(t, ptr, key)
				if n := len(v); n > t.Arrays[ptr] {
					t.Arrays[ptr] = n
					child.Arrays[ptr] = n
					if n > 1 {
						widens = append(widens, pendingWiden{
							table: t, relPath: ptr, absPath: fr.absPath, key: key, length: n,
						})
					}
				}
				for i, elem := range v {
					obj, ok := elem.(*ordered.Map)
					if !ok {
						continue
					}
					child.TotalRows++
					stack = append(stack, aframe{
						absPath: absPtr + pointer.Separator + strconv.Itoa(i),
						relPath: ptr,
						table:   child,
						node:    obj,
					})
				}

			default:
				kind := scalarKind(v, t.Types[ptr])
				a.setType(t, ptr, kind)
				a.addColumn(t, ptr, kind, key)
			}
		}
	}

	// Widening runs once the walk has registered every slot-0 column the
	// record revealed, so clones cover the full set.
	for _, w := range widens {
		a.model.WidenHeaders(w.table, w.relPath, w.absPath, w.key, w.length, false)
	}
}

// ensureChildTable returns the child table rooted at ptr, creating and linking
// it on first sight.
func (a *Analyzer) ensureChildTable(parent *tables.Table, ptr, key string) *tables.Table {
	if t := a.byPath[ptr]; t != nil {
		return t
	}
	parentKey := lastSegment(parent.Path[0])
	name := pointer.GenerateTableName(parent.Name, parentKey, key)
	child := tables.NewTable(name, []string{ptr}, false)
	child.Parent = parent.Name
	child.Arrays[ptr] = 0
	a.model[name] = child
	a.byPath[ptr] = child
	parent.ChildTables = append(parent.ChildTables, name)
	a.logger.Printf("analyze: new table %s at %s", name, ptr)
	return child
}

// setType records the shape tag for ptr on the owning table and every
// ancestor. Ancestors keep descendant types so that, when a child table is
// deselected, the values inside its elements still resolve to the combined
// ancestor during flattening.
func (a *Analyzer) setType(t *tables.Table, ptr string, kind tables.Kind) {
	for cur := t; cur != nil; {
		cur.Types[ptr] = mergeKind(cur.Types[ptr], kind)
		if cur.Parent == "" {
			break
		}
		cur = a.model[cur.Parent]
	}
}

// addColumn registers a scalar column on its owning table and a combined-only
// (slot-qualified) copy on every ancestor.
func (a *Analyzer) addColumn(t *tables.Table, ptr string, kind tables.Kind, key string) {
	title := Title(key)
	t.AddColumn(ptr, kind, title, false)
	t.IncColumn(ptr)
	for cur := t; cur.Parent != ""; {
		parent := a.model[cur.Parent]
		if parent == nil {
			break
		}
		parent.AddColumn(ptr, kind, title, true)
		cur = parent
	}
}

// isObjectArray reports whether an array holds objects (child-table rows)
// rather than scalars (joinable cell). Empty arrays count as joinable until an
// object shows up.
func isObjectArray(items []any) bool {
	for _, it := range items {
		if _, ok := it.(*ordered.Map); ok {
			return true
		}
	}
	return false
}

// scalarKind classifies a decoded scalar. Nulls carry no shape information and
// keep whatever was known, defaulting to string.
func scalarKind(v any, known tables.Kind) tables.Kind {
	switch x := v.(type) {
	case string:
		return tables.KindString
	case bool:
		return tables.KindBoolean
	case json.Number:
		if strings.ContainsAny(x.String(), ".eE") {
			return tables.KindNumber
		}
		return tables.KindInteger
	case nil:
		if known != "" {
			return known
		}
		return tables.KindString
	}
	return tables.KindString
}

// mergeKind reconciles the shape seen now with the shape seen before.
// Conflicting scalar shapes widen: integer and number meet at number,
// everything else at string.
func mergeKind(old, new tables.Kind) tables.Kind {
	switch {
	case old == "" || old == new:
		return new
	case (old == tables.KindInteger && new == tables.KindNumber) ||
		(old == tables.KindNumber && new == tables.KindInteger):
		return tables.KindNumber
	case !old.IsScalar() || !new.IsScalar():
		// Shape flapping between container and scalar: first shape wins.
		return old
	}
	return tables.KindString
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, pointer.Separator); i >= 0 {
		return p[i+1:]
	}
	return p
}

