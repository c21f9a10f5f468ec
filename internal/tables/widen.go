package tables

import (
	"strconv"

	"flatsheet/internal/pointer"
)

// WidenHeaders grows a table's combined-column slots after an array instance
// with more elements than any previously observed. Every slot-0 column of the
// array is cloned per new index, with the identifier rewritten to the new
// slot and the hit counter reset. Clones are inserted directly behind the
// last existing column of the slot group so header order stays stable.
//
// When the array is rendered as a split child table, the slot columns are
// instead removed from the table's own column set (the values become child
// rows) while staying in the combined set for bookkeeping.
//
// Widening recurses into the parent table: a combined ancestor holds
// index-qualified duplicates of this table's columns and must grow the same
// way. Running it again with an unchanged maximum width is a no-op.
func (m Model) WidenHeaders(t *Table, relPath, absPath, key string, length int, shouldSplit bool) {
	if t == nil || length < 2 {
		return
	}

	basePrefix := absPath + pointer.Separator + key
	zeroPrefix := t.Pointer(basePrefix+pointer.Separator+"0", relPath, "")

	zeroKeys := slotColumnKeys(t.CombinedColumns, zeroPrefix)
	if len(zeroKeys) == 0 {
		return
	}

	type clone struct {
		id  string
		col *Column
	}
	var clones []clone
	for i := 1; i < length; i++ {
		colPrefix := t.Pointer(basePrefix+pointer.Separator+strconv.Itoa(i), relPath, "")
		for _, zk := range zeroKeys {
			src := t.CombinedColumns.Get(zk)
			id := replaceOncePrefix(src.ID, zeroPrefix, colPrefix)
			clones = append(clones, clone{id: id, col: &Column{
				ID:    id,
				Title: src.Title,
				Type:  src.Type,
			}})
		}
	}
	if len(clones) == 0 {
		return
	}

	anchor := zeroKeys[len(zeroKeys)-1]
	for _, c := range clones {
		t.CombinedColumns.InsertAfter(anchor, c.id, c.col)
		t.Titles[c.id] = c.col.Title
		anchor = c.id
	}

	if shouldSplit {
		for _, zk := range zeroKeys {
			t.Columns.Delete(zk)
		}
		for _, c := range clones {
			t.Columns.Delete(c.id)
		}
	} else {
		anchor = zeroKeys[len(zeroKeys)-1]
		for _, c := range clones {
			t.Columns.InsertAfter(anchor, c.id, c.col)
			anchor = c.id
		}
	}

	if !t.IsRoot {
		m.WidenHeaders(m[t.Parent], relPath, absPath, key, length, shouldSplit)
	}
}

// DropIndexedColumns removes every index-qualified column from the table's
// own column set. A split table renders its child arrays as child-table rows,
// so slot columns inherited from analysis must not surface as its headers.
func (t *Table) DropIndexedColumns() {
	var doomed []string
	for _, p := range t.Columns.Keys() {
		for _, seg := range splitSegments(p) {
			if pointer.IsIndex(seg) {
				doomed = append(doomed, p)
				break
			}
		}
	}
	for _, p := range doomed {
		t.Columns.Delete(p)
	}
}

func splitSegments(p string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				segs = append(segs, p[start:i])
			}
			start = i + 1
		}
	}
	return segs
}

// slotColumnKeys selects, in declaration order, the combined columns living
// under one index-qualified array slot.
func slotColumnKeys(s *ColumnSet, slotPrefix string) []string {
	var out []string
	for _, p := range s.Keys() {
		if len(p) == 0 || p[:1] != pointer.Separator {
			continue
		}
		if pointer.CommonPrefix(p, slotPrefix) == slotPrefix {
			out = append(out, p)
		}
	}
	return out
}

// replaceOncePrefix swaps the slot prefix of a column identifier.
func replaceOncePrefix(id, old, new string) string {
	if len(id) >= len(old) && id[:len(old)] == old {
		return new + id[len(old):]
	}
	return id
}
