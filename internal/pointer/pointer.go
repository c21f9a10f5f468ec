// Package pointer implements the path algebra shared by the analyzer and the
// flattening engine: slash-separated pointers into hierarchical records
// (e.g. /tender/items/0/id), prefix containment, index-qualified combined
// paths, deterministic table naming and row identifiers.
package pointer

import (
	"sort"
	"strings"
)

// Separator splits pointer segments.
const Separator = "/"

// JoinSeparator glues the elements of a scalar array into a single cell value.
// Splitting on it recovers the original list for values not containing it.
const JoinSeparator = ";"

// maxTableNameLen is a spreadsheet sheet-name constraint: generated table
// names at or above this length are rebuilt from truncated components.
const maxTableNameLen = 31

// abbreviationKey shortens well-known long field names in generated table
// names.
var abbreviationKey = map[string]string{
	"additionalIdentifiers":     "ids",
	"additionalClassifications": "class",
	"documents":                 "docs",
}

// abbreviationTableName rewrites well-known generated names wholesale.
var abbreviationTableName = map[string]string{
	"contracts_implementation":              "implementation",
	"contracts_implementation_transactions": "transactions",
}

// CommonPrefix returns the longest common sub-path of two pointers, matching
// whole segments:
//
//	CommonPrefix("/tender/submissionMethod", "/tender/submissionMethodDetails") == "/tender"
//	CommonPrefix("/tender/items/id", "/tender/items/description") == "/tender/items"
func CommonPrefix(path, subpath string) string {
	a := strings.Split(path, Separator)
	b := strings.Split(subpath, Separator)
	if len(a) > len(b) {
		a, b = b, a
	}
	i := 0
	for ; i < len(a); i++ {
		if a[i] != b[i] {
			break
		}
	}
	return strings.Join(a[:i], Separator)
}

// Cache memoizes CommonPrefix results. It is engine-scoped on purpose: the
// key space is bounded by the distinct pointers of one schema, not by process
// lifetime. Not safe for concurrent use.
type Cache struct {
	prefixes map[[2]string]string
}

// NewCache returns an empty prefix cache.
func NewCache() *Cache {
	return &Cache{prefixes: make(map[[2]string]string)}
}

// CommonPrefix is the memoized form of the package-level CommonPrefix.
func (c *Cache) CommonPrefix(path, subpath string) string {
	k := [2]string{path, subpath}
	if v, ok := c.prefixes[k]; ok {
		return v
	}
	v := CommonPrefix(path, subpath)
	c.prefixes[k] = v
	return v
}

// HasPrefix reports whether candidate is a whole-segment prefix of path.
func (c *Cache) HasPrefix(path, candidate string) bool {
	return c.CommonPrefix(path, candidate) == candidate
}

// CombinePath qualifies path with an array index for every array pointer that
// contains it, producing the combined-column identifier used when a child
// array is inlined into its parent's row:
//
//	CombinePath([]string{"/tender/items"}, "/tender/items/id", "0") == "/tender/items/0/id"
//
// arrays are matched longest-first so nested arrays qualify innermost-last.
func CombinePath(arrays []string, path, index string) string {
	sorted := append([]string(nil), arrays...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	combined := path
	for _, array := range sorted {
		if CommonPrefix(path, array) == array {
			combined = strings.Replace(combined, array, array+Separator+index, 1)
		}
	}
	return combined
}

// CountColumn names the sibling column holding an array's element count:
//
//	CountColumn("/tender/items") == "/tender/itemsCount"
func CountColumn(array string) string {
	return strings.TrimRight(array, Separator) + "Count"
}

// GenerateTableName derives the name of a non-root table, usable as a sheet
// name:
//
//	GenerateTableName("tenders", "tender", "items") == "tenders_items"
//	GenerateTableName("tenders", "items", "additionalClassifications") == "tenders_items_class"
//
// Over-long names are rebuilt from truncated components rather than rejected.
func GenerateTableName(parentTable, parentKey, key string) string {
	if short, ok := abbreviationKey[key]; ok {
		key = short
	}

	var name string
	if strings.Contains(parentTable, parentKey) {
		name = parentTable + "_" + key
	} else {
		name = parentTable + "_" + parentKey + "_" + key
	}

	if short, ok := abbreviationTableName[name]; ok {
		name = short
	}

	if len(name) >= maxTableNameLen {
		if strings.Contains(parentTable, parentKey) {
			name = parentTable + "_" + truncate(key, 5)
		} else {
			name = parentTable + "_" + truncate(parentKey, 5) + "_" + truncate(key, 5)
		}
	}

	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// GenerateRowID composes a row identifier from the record-group identifier,
// the current object's identifier, the field key that produced the object and
// the top-level record identifier. Empty segments are omitted:
//
//	GenerateRowID("ocid1", "item", "documents", "top") == "ocid1/top/documents:item"
//	GenerateRowID("ocid1", "item", "", "1") == "ocid1/1/item"
func GenerateRowID(groupID, objectID, parentKey, topLevelID string) string {
	tail := objectID
	if parentKey != "" {
		tail = parentKey + ":" + objectID
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{groupID, topLevelID, tail} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, Separator)
}

// IsIndex reports whether a pointer segment is a numeric array index.
func IsIndex(segment string) bool {
	if segment == "" {
		return false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
