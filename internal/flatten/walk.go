package flatten

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"flatsheet/internal/ordered"
	"flatsheet/internal/pointer"
	"flatsheet/internal/tables"
)

// frame is one pending node of the record walk.
type frame struct {
	absPath   string
	relPath   string
	parentKey string
	parent    *ordered.Map
	node      *ordered.Map
	// repeat accumulates repeat-directive values seen on this branch. It is
	// shared down the branch, not copied per frame: a value captured on a
	// parent row is visible to every descendant row of the same record.
	repeat Row
}

// FlattenRecord walks one record and returns the rows it produces, keyed by
// table name. Rows of each table appear in the order their source objects were
// reached, which for siblings at one level is the reverse of declaration
// order (last-in-first-out traversal).
func (f *Flattener) FlattenRecord(rec *ordered.Map) map[string][]Row {
	rows := make(map[string][]Row)
	if rec == nil {
		return rows
	}

	group, _ := rec.Get(f.groupKey)
	topID, _ := rec.Get(f.recordKey)
	groupStr := valueString(group)
	topStr := valueString(topID)

	stack := []frame{{parent: ordered.NewMap(), node: rec, repeat: Row{}}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t := f.pathCache[fr.relPath]; t != nil {
			// Strict boundary match: this object is a row of t.
			id, _ := fr.node.Get("id")
			row := Row{
				"rowID":     pointer.GenerateRowID(groupStr, valueString(id), fr.parentKey, topStr),
				f.recordKey: topID,
				"parentID":  nil,
				f.groupKey:  group,
			}
			if pid, ok := fr.parent.Get("id"); ok {
				row["parentID"] = pid
			}
			for k, v := range fr.repeat {
				row[k] = v
			}
			rows[t.Name] = append(rows[t.Name], row)
		}

		for _, key := range fr.node.Keys() {
			item, _ := fr.node.Get(key)
			ptr := fr.relPath + pointer.Separator + key

			owner := f.columnCache[ptr]
			if owner == nil {
				owner = f.typeCache[ptr]
			}
			if owner == nil {
				// Unmapped field: not part of any selected table.
				continue
			}
			kind := owner.Types[ptr]
			absPtr := fr.absPath + pointer.Separator + key
			cfg := f.selection[owner.Name]
			split := cfg != nil && cfg.Split

			if cfg != nil && containsStr(cfg.Repeat, ptr) {
				fr.repeat[ptr] = item
			}

			switch v := item.(type) {
			case *ordered.Map:
				stack = append(stack, frame{
					absPath:   absPtr,
					relPath:   ptr,
					parentKey: key,
					parent:    fr.node,
					node:      v,
					repeat:    fr.repeat,
				})

			case []any:
				if kind == tables.KindJoinable {
					f.setLast(rows, owner.Name, ptr, joinScalars(v))
					continue
				}
				if n := len(v); n > owner.Arrays[ptr] {
					// Wider than anything analysis saw: grow the headers
					// before the element rows land.
					owner.Arrays[ptr] = n
					f.model.WidenHeaders(owner, ptr, fr.absPath, key, n, split)
				}
				if f.opts.Count {
					countPtr := f.outPointer(owner, split, absPtr, ptr) + "Count"
					if owner.HasColumn(countPtr) {
						f.setLast(rows, owner.Name, countPtr, len(v))
					}
				}
				for i, elem := range v {
					child, ok := elem.(*ordered.Map)
					if !ok {
						continue
					}
					stack = append(stack, frame{
						absPath:   absPtr + pointer.Separator + strconv.Itoa(i),
						relPath:   ptr,
						parentKey: key,
						parent:    fr.node,
						node:      child,
						repeat:    fr.repeat,
					})
				}

			default:
				if !owner.IsRoot {
					root := f.model.Root(owner)
					if rcfg := f.selection[root.Name]; rcfg != nil && containsStr(rcfg.Unnest, absPtr) {
						f.setLast(rows, root.Name, absPtr, v)
						continue
					}
				}
				f.setLast(rows, owner.Name, f.outPointer(owner, split, absPtr, ptr), v)
			}
		}
	}
	return rows
}

// outPointer maps a value's absolute pointer onto the owning table's column
// space: split child tables address columns by the index-elided relative
// pointer, root and combined tables need the slot-qualified form.
func (f *Flattener) outPointer(owner *tables.Table, split bool, absPtr, ptr string) string {
	if split && !owner.IsRoot {
		return ptr
	}
	return owner.Pointer(absPtr, ptr, "")
}

// setLast writes a cell onto the most recent open row of a table. A value with
// no open row (e.g. a scalar reached before any boundary of its table matched)
// is dropped with a warning instead of crashing the run.
func (f *Flattener) setLast(rows map[string][]Row, table, col string, v any) {
	rs := rows[table]
	if len(rs) == 0 {
		f.warnf("dropping value at %s: no open row for table %s", col, table)
		return
	}
	rs[len(rs)-1][col] = v
}

// joinScalars renders an array of scalars as a single cell value.
func joinScalars(items []any) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, valueString(it))
	}
	return strings.Join(parts, pointer.JoinSeparator)
}

// valueString renders a decoded scalar for identifier and join purposes.
func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func containsStr(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}
