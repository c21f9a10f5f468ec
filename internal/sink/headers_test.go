package sink

import (
	"reflect"
	"testing"

	"flatsheet/internal/analyze"
	"flatsheet/internal/flatten"
	"flatsheet/internal/ordered"
	"flatsheet/internal/tables"
)

func om(pairs ...any) *ordered.Map {
	m := ordered.NewMap()
	for i := 0; i < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1])
	}
	return m
}

func flattener(t *testing.T, opts flatten.Options) *flatten.Flattener {
	t.Helper()
	a := analyze.New(analyze.DefaultConfig(), nil)
	a.ProcessRecord(om(
		"ocid", "X",
		"id", "1",
		"tender", om(
			"id", "T1",
			"title", "Example",
			"submissionMethod", []any{"electronic"},
			"items", []any{om("id", "i1")},
		),
	))
	f, err := flatten.New(opts, a.Model(), nil)
	if err != nil {
		t.Fatalf("flatten.New: %v", err)
	}
	return f
}

func TestSpecsSplit(t *testing.T) {
	f := flattener(t, flatten.Options{Selection: map[string]*flatten.TableConfig{
		"tenders": {Split: true}, "tenders_items": {Split: true},
	}})

	specs := Specs(f)
	if len(specs) != 2 {
		t.Fatalf("specs = %d", len(specs))
	}
	// Sorted by name.
	if specs[0].Name != "tenders" || specs[1].Name != "tenders_items" {
		t.Fatalf("names = %s, %s", specs[0].Name, specs[1].Name)
	}

	want := []string{
		"rowID", "id", "parentID", "ocid",
		"/tender/id", "/tender/title", "/tender/submissionMethod",
	}
	if !reflect.DeepEqual(specs[0].Columns, want) {
		t.Fatalf("columns = %v", specs[0].Columns)
	}
	// Without pretty headers the header row is the column pointers.
	if !reflect.DeepEqual(specs[0].Headers, want) {
		t.Fatalf("headers = %v", specs[0].Headers)
	}
	if specs[0].Types[4] != tables.KindString || specs[0].Types[6] != tables.KindJoinable {
		t.Fatalf("types = %v", specs[0].Types)
	}
}

func TestSpecsCombined(t *testing.T) {
	f := flattener(t, flatten.Options{Selection: map[string]*flatten.TableConfig{
		"tenders": {},
	}})

	specs := Specs(f)
	if len(specs) != 1 {
		t.Fatalf("specs = %d", len(specs))
	}
	cols := specs[0].Columns
	found := false
	for _, c := range cols {
		if c == "/tender/items/0/id" {
			found = true
		}
	}
	if !found {
		t.Fatalf("combined slot column missing: %v", cols)
	}
}

func TestSpecsShaping(t *testing.T) {
	f := flattener(t, flatten.Options{Selection: map[string]*flatten.TableConfig{
		"tenders": {
			Split:         true,
			Name:          "main",
			PrettyHeaders: true,
			Headers:       map[string]string{"/tender/id": "Tender ID"},
			Only:          []string{"/tender/id", "/tender/title"},
		},
		"tenders_items": {Split: true},
	}})

	specs := Specs(f)
	var main *Spec
	for i := range specs {
		if specs[i].Name == "main" {
			main = &specs[i]
		}
	}
	if main == nil {
		t.Fatalf("rename lost: %v", specs)
	}

	wantCols := []string{"rowID", "id", "parentID", "ocid", "/tender/id", "/tender/title"}
	if !reflect.DeepEqual(main.Columns, wantCols) {
		t.Fatalf("columns = %v", main.Columns)
	}
	wantHeaders := []string{"rowID", "id", "parentID", "ocid", "Tender ID", "Title"}
	if !reflect.DeepEqual(main.Headers, wantHeaders) {
		t.Fatalf("headers = %v", main.Headers)
	}
}

func TestSpecValues(t *testing.T) {
	s := Spec{Columns: []string{"rowID", "/tender/id", "/tender/title"}}
	got := s.Values(map[string]any{"rowID": "r1", "/tender/title": "Example"})
	if !reflect.DeepEqual(got, []any{"r1", nil, "Example"}) {
		t.Fatalf("values = %v", got)
	}
}
