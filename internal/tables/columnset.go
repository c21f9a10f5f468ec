package tables

import (
	"encoding/json"
	"fmt"
)

// ColumnSet is an insertion-ordered map from table-relative pointer to Column.
//
// Header output and the widening algorithm both depend on declaration order,
// so the zero semantics of Go maps are not enough here. Two properties matter:
//
//   - Set on an existing key updates the value but keeps its position, which
//     is what makes header widening idempotent.
//   - InsertAfter places new columns immediately behind an existing one,
//     keeping index-qualified slot groups contiguous.
type ColumnSet struct {
	keys []string
	cols map[string]*Column
}

// NewColumnSet returns an empty ColumnSet.
func NewColumnSet() *ColumnSet {
	return &ColumnSet{cols: make(map[string]*Column)}
}

// Get returns the column stored under path, or nil.
func (s *ColumnSet) Get(path string) *Column {
	if s == nil {
		return nil
	}
	return s.cols[path]
}

// Has reports whether path is present.
func (s *ColumnSet) Has(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.cols[path]
	return ok
}

// Set stores col under path, appending new keys and updating existing keys in
// place.
func (s *ColumnSet) Set(path string, col *Column) {
	if s.cols == nil {
		s.cols = make(map[string]*Column)
	}
	if _, ok := s.cols[path]; !ok {
		s.keys = append(s.keys, path)
	}
	s.cols[path] = col
}

// InsertAfter places col behind the column stored under anchor. If path is
// already present its current position is kept; if anchor is absent the
// column is appended.
func (s *ColumnSet) InsertAfter(anchor, path string, col *Column) {
	if s.cols == nil {
		s.cols = make(map[string]*Column)
	}
	if _, ok := s.cols[path]; ok {
		s.cols[path] = col
		return
	}
	s.cols[path] = col
	for i, k := range s.keys {
		if k == anchor {
			s.keys = append(s.keys[:i+1], append([]string{path}, s.keys[i+1:]...)...)
			return
		}
	}
	s.keys = append(s.keys, path)
}

// Delete removes path; absent keys are a no-op.
func (s *ColumnSet) Delete(path string) {
	if s == nil || s.cols == nil {
		return
	}
	if _, ok := s.cols[path]; !ok {
		return
	}
	delete(s.cols, path)
	for i, k := range s.keys {
		if k == path {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return
		}
	}
}

// Keys returns the pointers in declaration order. The slice is shared;
// callers must not mutate it.
func (s *ColumnSet) Keys() []string {
	if s == nil {
		return nil
	}
	return s.keys
}

// Len returns the number of columns.
func (s *ColumnSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// MarshalJSON encodes the set as an ordered array of columns; Column.ID makes
// the encoding self-describing.
func (s *ColumnSet) MarshalJSON() ([]byte, error) {
	out := make([]*Column, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.cols[k])
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the set from the array form, preserving order.
func (s *ColumnSet) UnmarshalJSON(data []byte) error {
	var cols []*Column
	if err := json.Unmarshal(data, &cols); err != nil {
		return err
	}
	s.keys = s.keys[:0]
	s.cols = make(map[string]*Column, len(cols))
	for _, c := range cols {
		if c == nil || c.ID == "" {
			return fmt.Errorf("tables: column without id in serialized column set")
		}
		s.Set(c.ID, c)
	}
	return nil
}
