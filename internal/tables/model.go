// Package tables holds the table/column model shared by the analysis phase
// and the flattening engine: the entity graph of tables, their parent/child
// links, per-pointer type tags, array statistics and ordered column sets.
//
// Parent links are name references rather than live pointers. The pointer
// hierarchy is a tree, so cycles are impossible by construction, and the
// whole model stays serializable (the analyzer persists it between runs).
package tables

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"flatsheet/internal/pointer"
)

// Kind tags the shape of the value behind a schema pointer. The engine
// branches on these tags once per field instead of re-inspecting value types.
type Kind string

const (
	KindObject   Kind = "object"
	KindArray    Kind = "array"    // array of objects: rows of a child table or combined slots
	KindJoinable Kind = "joinable" // array of scalars: joined into one cell
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
)

// IsScalar reports whether the kind denotes a single-cell value.
func (k Kind) IsScalar() bool {
	switch k {
	case KindObject, KindArray, KindJoinable:
		return false
	}
	return true
}

// Column is one output column of a table.
type Column struct {
	// ID is the table-relative pointer; widening rewrites it when cloning a
	// column for a new array slot.
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  Kind   `json:"type"`
	// Hits counts records that populated this column during analysis. Clones
	// created by header widening start at zero.
	Hits int `json:"hits"`
}

// Table is one output table of the model.
type Table struct {
	Name string `json:"name"`
	// Path is the set of pointers whose objects become rows of this table. A
	// strict match on one of these during the walk starts a new row.
	Path   []string `json:"path"`
	IsRoot bool     `json:"is_root"`
	// IsCombined marks tables reachable from multiple equivalent pointers
	// (e.g. merged with a sibling of the same shape).
	IsCombined bool `json:"is_combined"`
	// Parent names the owning table; empty for root tables.
	Parent      string   `json:"parent,omitempty"`
	ChildTables []string `json:"child_tables,omitempty"`

	// Types maps every pointer in this table's scope to its shape tag.
	Types map[string]Kind `json:"types"`
	// Arrays maps array pointers to the maximum element count observed.
	Arrays map[string]int `json:"arrays"`

	// Columns is authoritative when the table is split from its children;
	// CombinedColumns when children are inlined as index-qualified slots.
	Columns         *ColumnSet        `json:"columns"`
	CombinedColumns *ColumnSet        `json:"combined_columns"`
	Titles          map[string]string `json:"titles"`

	// TotalRows counts rows attributable to this table during analysis; a
	// table that never matched data is excluded from output.
	TotalRows int64 `json:"total_rows"`
}

// NewTable constructs an empty table rooted at the given pointers.
func NewTable(name string, paths []string, isRoot bool) *Table {
	return &Table{
		Name:            name,
		Path:            append([]string(nil), paths...),
		IsRoot:          isRoot,
		IsCombined:      len(paths) > 1,
		Types:           make(map[string]Kind),
		Arrays:          make(map[string]int),
		Columns:         NewColumnSet(),
		CombinedColumns: NewColumnSet(),
		Titles:          make(map[string]string),
	}
}

// ArrayFor returns the longest array pointer of this table containing
// relPath, or "" when relPath is outside every known array.
func (t *Table) ArrayFor(relPath string) string {
	best := ""
	for array := range t.Arrays {
		if pointer.CommonPrefix(relPath, array) != array {
			continue
		}
		if len(array) > len(best) || (len(array) == len(best) && array > best) {
			best = array
		}
	}
	return best
}

// Pointer maps an absolute, index-qualified pointer onto this table's column
// space. Root tables keep the absolute pointer (their combined columns are
// index-qualified); split child tables elide the indices down to the owning
// array; a non-empty index pins a literal slot for combined addressing.
func (t *Table) Pointer(absPath, relPath, index string) string {
	array := t.ArrayFor(relPath)
	if index != "" && (array != "" || t.IsCombined) {
		return absPath + pointer.Separator + index
	}
	if t.IsRoot {
		return absPath
	}

	if array != "" {
		segs := strings.Split(absPath, pointer.Separator)
		prefix := ""
		i := 0
		for i = 0; i < len(segs); i++ {
			s := segs[i]
			if s == "" || pointer.IsIndex(s) {
				continue
			}
			prefix = prefix + pointer.Separator + s
			if prefix == array {
				i++
				break
			}
		}
		rest := strings.Join(segs[i:], pointer.Separator)
		if rest != "" {
			return prefix + pointer.Separator + rest
		}
		return prefix
	}
	return relPath
}

// HasColumn reports whether path is a known column in either column set.
func (t *Table) HasColumn(path string) bool {
	return t.Columns.Has(path) || t.CombinedColumns.Has(path)
}

// AddColumn registers a column under its table-relative pointer. The combined
// form (array prefixes qualified with slot 0) is always registered; the plain
// form is skipped for combinedOnly columns, which only exist as inlined slots
// of an ancestor.
func (t *Table) AddColumn(relPath string, kind Kind, title string, combinedOnly bool) {
	combined := pointer.CombinePath(t.arrayList(), relPath, "0")

	if !combinedOnly {
		if !t.Columns.Has(relPath) {
			t.Columns.Set(relPath, &Column{ID: relPath, Title: title, Type: kind})
		}
		t.Titles[relPath] = title
	}
	if !t.CombinedColumns.Has(combined) {
		t.CombinedColumns.Set(combined, &Column{ID: combined, Title: title, Type: kind})
	}
	t.Titles[combined] = title
}

// IncColumn bumps the hit counter of the column registered at relPath, in
// whichever sets know it.
func (t *Table) IncColumn(relPath string) {
	if c := t.Columns.Get(relPath); c != nil {
		c.Hits++
	}
	combined := pointer.CombinePath(t.arrayList(), relPath, "0")
	if c := t.CombinedColumns.Get(combined); c != nil && combined != relPath {
		c.Hits++
	}
}

func (t *Table) arrayList() []string {
	out := make([]string, 0, len(t.Arrays))
	for a := range t.Arrays {
		out = append(out, a)
	}
	return out
}

// Model is the full table graph keyed by table name.
type Model map[string]*Table

// Root walks parent references up to the owning root table.
func (m Model) Root(t *Table) *Table {
	for t != nil && t.Parent != "" {
		parent := m[t.Parent]
		if parent == nil {
			break
		}
		t = parent
	}
	return t
}

// Dump serializes the model as JSON.
func (m Model) Dump(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("tables: dump model: %w", err)
	}
	return nil
}

// LoadModel restores a model serialized by Dump.
func LoadModel(r io.Reader) (Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("tables: load model: %w", err)
	}
	for name, t := range m {
		if t == nil {
			return nil, fmt.Errorf("tables: nil table %q in model", name)
		}
		if t.Types == nil {
			t.Types = make(map[string]Kind)
		}
		if t.Arrays == nil {
			t.Arrays = make(map[string]int)
		}
		if t.Titles == nil {
			t.Titles = make(map[string]string)
		}
		if t.Columns == nil {
			t.Columns = NewColumnSet()
		}
		if t.CombinedColumns == nil {
			t.CombinedColumns = NewColumnSet()
		}
	}
	return m, nil
}
