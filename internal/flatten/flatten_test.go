package flatten

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"flatsheet/internal/analyze"
	"flatsheet/internal/ordered"
	"flatsheet/internal/pointer"
)

// om builds an ordered map from alternating key/value pairs.
func om(pairs ...any) *ordered.Map {
	m := ordered.NewMap()
	for i := 0; i < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1])
	}
	return m
}

// release is the canonical test record: one tender with two items and a
// joinable scalar array.
func release() *ordered.Map {
	return om(
		"ocid", "X",
		"id", "1",
		"tender", om(
			"id", "T1",
			"title", "Example",
			"submissionMethod", []any{"electronic", "written"},
			"items", []any{
				om("id", "i1", "quantity", "2"),
				om("id", "i2", "quantity", "3"),
			},
		),
	)
}

// analyzed runs the analyzer over the given records and returns the model
// builder, the way the pipeline feeds the engine.
func analyzed(t *testing.T, recs ...*ordered.Map) *analyze.Analyzer {
	t.Helper()
	a := analyze.New(analyze.DefaultConfig(), nil)
	for _, r := range recs {
		a.ProcessRecord(r)
	}
	return a
}

func newEngine(t *testing.T, opts Options, a *analyze.Analyzer) *Flattener {
	t.Helper()
	f, err := New(opts, a.Model(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestFlattenSplitEndToEnd(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders":       {Split: true},
		"tenders_items": {Split: true},
	}}, a)

	rows := f.FlattenRecord(release())

	tenders := rows["tenders"]
	if len(tenders) != 1 {
		t.Fatalf("tenders rows = %d, want 1", len(tenders))
	}
	row := tenders[0]
	if row["rowID"] != "X/1/tender:T1" {
		t.Fatalf("rowID = %v", row["rowID"])
	}
	if row["ocid"] != "X" || row["id"] != "1" {
		t.Fatalf("identity = %v / %v", row["ocid"], row["id"])
	}
	if row["parentID"] != "1" {
		t.Fatalf("parentID = %v", row["parentID"])
	}
	if row["/tender/id"] != "T1" || row["/tender/title"] != "Example" {
		t.Fatalf("scalar placement: %v", row)
	}

	items := rows["tenders_items"]
	if len(items) != 2 {
		t.Fatalf("items rows = %d, want 2", len(items))
	}
	for _, it := range items {
		if it["parentID"] != "T1" {
			t.Fatalf("item parentID = %v, want T1", it["parentID"])
		}
	}
	// LIFO traversal: the later element's row is emitted first.
	if items[0]["/tender/items/id"] != "i2" || items[1]["/tender/items/id"] != "i1" {
		t.Fatalf("sibling order: %v, %v", items[0]["/tender/items/id"], items[1]["/tender/items/id"])
	}
	if items[1]["rowID"] != "X/1/items:i1" {
		t.Fatalf("item rowID = %v", items[1]["rowID"])
	}
}

func TestFlattenJoinableRoundTrip(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders": {Split: true}, "tenders_items": {Split: true},
	}}, a)

	rows := f.FlattenRecord(release())
	joined, _ := rows["tenders"][0]["/tender/submissionMethod"].(string)
	got := strings.Split(joined, pointer.JoinSeparator)
	if !reflect.DeepEqual(got, []string{"electronic", "written"}) {
		t.Fatalf("round trip = %v", got)
	}
}

func TestFlattenCombinedColumns(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders": {},
	}}, a)

	rows := f.FlattenRecord(release())
	if _, ok := rows["tenders_items"]; ok {
		t.Fatal("unselected child table must not produce rows")
	}
	row := rows["tenders"][0]
	if row["/tender/items/0/id"] != "i1" || row["/tender/items/1/id"] != "i2" {
		t.Fatalf("combined slots: %v", row)
	}
}

func TestFlattenWidensAtRuntime(t *testing.T) {
	// Analysis saw one item; flattening meets two and must grow the headers
	// before placing the second slot.
	narrow := om(
		"ocid", "X",
		"id", "1",
		"tender", om("id", "T1", "items", []any{om("id", "i1")}),
	)
	a := analyzed(t, narrow)
	f := newEngine(t, Options{Selection: map[string]*TableConfig{"tenders": {}}}, a)

	wide := om(
		"ocid", "X",
		"id", "2",
		"tender", om("id", "T2", "items", []any{om("id", "i1"), om("id", "i2")}),
	)
	rows := f.FlattenRecord(wide)
	row := rows["tenders"][0]
	if row["/tender/items/1/id"] != "i2" {
		t.Fatalf("second slot missing after widening: %v", row)
	}
	tbl := f.Tables()["tenders"]
	if !tbl.CombinedColumns.Has("/tender/items/1/id") {
		t.Fatalf("combined columns not widened: %v", tbl.CombinedColumns.Keys())
	}
}

func TestFlattenCount(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{
		Selection: map[string]*TableConfig{"tenders": {Split: true}, "tenders_items": {Split: true}},
		Count:     true,
	}, a)

	rows := f.FlattenRecord(release())
	if got := rows["tenders"][0]["/tender/itemsCount"]; got != 2 {
		t.Fatalf("itemsCount = %v, want 2", got)
	}
}

func TestFlattenUnnest(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders":       {Split: true, Unnest: []string{"/tender/items/0/id"}},
		"tenders_items": {Split: true},
	}}, a)

	rows := f.FlattenRecord(release())
	if got := rows["tenders"][0]["/tender/items/0/id"]; got != "i1" {
		t.Fatalf("unnest cell = %v", got)
	}
	// The unnest pointer moves the first element's value to the root row; the
	// second element keeps its own placement.
	items := rows["tenders_items"]
	if items[0]["/tender/items/id"] != "i2" {
		t.Fatalf("non-unnested item lost its value: %v", items[0])
	}
	if _, ok := items[1]["/tender/items/id"]; ok {
		t.Fatalf("unnested value also written to child row: %v", items[1])
	}
}

func TestFlattenRepeat(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders":       {Split: true, Repeat: []string{"/tender/title"}},
		"tenders_items": {Split: true},
	}}, a)

	rows := f.FlattenRecord(release())
	for _, it := range rows["tenders_items"] {
		if it["/tender/title"] != "Example" {
			t.Fatalf("repeat value missing on child row: %v", it)
		}
	}
}

func TestFlattenSplitCascade(t *testing.T) {
	a := analyzed(t, release())
	// Only the root is configured; split must cascade to the child.
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders": {Split: true},
	}}, a)

	if cfg := f.Config("tenders_items"); cfg == nil || !cfg.Split {
		t.Fatal("split did not cascade to the child table")
	}
	rows := f.FlattenRecord(release())
	if len(rows["tenders_items"]) != 2 {
		t.Fatalf("cascaded child rows = %d", len(rows["tenders_items"]))
	}
}

func TestFlattenIgnoresUnknownSelection(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders": {Split: true},
		"nope":    {Split: true},
	}}, a)
	if _, ok := f.Tables()["nope"]; ok {
		t.Fatal("unknown table must be ignored")
	}
}

func TestFlattenExcludesEmptyTables(t *testing.T) {
	a := analyzed(t, release())
	// parties exists in the default root config but matched no data.
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders": {Split: true},
		"parties": {Split: true},
	}}, a)
	if _, ok := f.Tables()["parties"]; ok {
		t.Fatal("zero-row table must be excluded")
	}
	rows := f.FlattenRecord(release())
	if _, ok := rows["parties"]; ok {
		t.Fatal("zero-row table produced rows")
	}
}

func TestFlattenDirectiveWarningsDeduplicated(t *testing.T) {
	a := analyzed(t, release())
	var logged []string
	logger := logFunc(func(format string, v ...any) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})

	// The same broken pointer twice must warn once.
	f, err := New(Options{Selection: map[string]*TableConfig{
		"tenders":       {Split: true, Repeat: []string{"/tender/bogus", "/tender/bogus"}},
		"tenders_items": {Split: true},
	}}, a.Model(), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(logged) != 1 || !strings.Contains(logged[0], "/tender/bogus") {
		t.Fatalf("warnings = %v, want one deduplicated entry", logged)
	}
	// The directive is skipped, not fatal: flattening still works.
	if rows := f.FlattenRecord(release()); len(rows["tenders"]) != 1 {
		t.Fatal("run did not survive a bad directive")
	}
}

func TestFlattenStream(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{
		"tenders": {Split: true}, "tenders_items": {Split: true},
	}}, a)

	in := make(chan *ordered.Map, 2)
	in <- release()
	in <- release()
	close(in)

	var results []Result
	err := f.Flatten(context.Background(), in, func(r Result) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(results) != 2 || results[0].Seq != 0 || results[1].Seq != 1 {
		t.Fatalf("results = %+v", results)
	}
	if len(results[0].Rows["tenders_items"]) != 2 {
		t.Fatalf("rows = %v", results[0].Rows)
	}
}

func TestFlattenStreamCanceled(t *testing.T) {
	a := analyzed(t, release())
	f := newEngine(t, Options{Selection: map[string]*TableConfig{"tenders": {}}}, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := make(chan *ordered.Map) // never closed
	if err := f.Flatten(ctx, in, func(Result) error { return nil }); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type logFunc func(format string, v ...any)

func (f logFunc) Printf(format string, v ...any) { f(format, v...) }
