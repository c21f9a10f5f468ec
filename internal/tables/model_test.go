package tables

import (
	"bytes"
	"reflect"
	"testing"
)

// fixture builds a tenders root table with a split-capable items child, the
// shape the analyzer produces for {"tender": {"items": [...]}} data.
func fixture() (Model, *Table, *Table) {
	root := NewTable("tenders", []string{"/tender"}, true)
	root.Types["/tender"] = KindObject
	root.Types["/tender/id"] = KindString
	root.Types["/tender/items"] = KindArray
	root.Arrays["/tender/items"] = 1
	root.TotalRows = 1

	child := NewTable("tenders_items", []string{"/tender/items"}, false)
	child.Parent = "tenders"
	child.Types["/tender/items/id"] = KindString
	child.Arrays["/tender/items"] = 1
	child.TotalRows = 1

	root.ChildTables = []string{"tenders_items"}

	root.AddColumn("/tender/id", KindString, "Id", false)
	child.AddColumn("/tender/items/id", KindString, "Id", false)
	root.AddColumn("/tender/items/id", KindString, "Id", true)

	m := Model{"tenders": root, "tenders_items": child}
	return m, root, child
}

func TestArrayFor(t *testing.T) {
	_, root, _ := fixture()
	if got := root.ArrayFor("/tender/items/id"); got != "/tender/items" {
		t.Fatalf("got %q", got)
	}
	if got := root.ArrayFor("/tender/id"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestPointer(t *testing.T) {
	_, root, child := fixture()

	// Root tables keep the absolute, index-qualified pointer.
	if got := root.Pointer("/tender/items/0/id", "/tender/items/id", ""); got != "/tender/items/0/id" {
		t.Fatalf("root: got %q", got)
	}
	// A pinned index produces the literal slot pointer.
	if got := root.Pointer("/tender/items", "/tender/items", "1"); got != "/tender/items/1" {
		t.Fatalf("pin: got %q", got)
	}
	// A combined child keeps the slot index of its own array.
	if got := child.Pointer("/tender/items/1/id", "/tender/items/id", ""); got != "/tender/items/1/id" {
		t.Fatalf("combined child: got %q", got)
	}
	// Outside any array the relative pointer passes through.
	child2 := NewTable("x", []string{"/x"}, false)
	if got := child2.Pointer("/x/y", "/x/y", ""); got != "/x/y" {
		t.Fatalf("plain: got %q", got)
	}
}

func TestAddColumnCombinedForm(t *testing.T) {
	_, root, child := fixture()

	// The child registers both the plain and the slot-0 combined form.
	if !child.Columns.Has("/tender/items/id") {
		t.Fatal("plain column missing on child")
	}
	if !child.CombinedColumns.Has("/tender/items/0/id") {
		t.Fatalf("combined column missing on child: %v", child.CombinedColumns.Keys())
	}
	// The root carries only the combined (slot-qualified) copy.
	if root.Columns.Has("/tender/items/id") {
		t.Fatal("combined-only column leaked into root columns")
	}
	if !root.CombinedColumns.Has("/tender/items/0/id") {
		t.Fatalf("combined copy missing on root: %v", root.CombinedColumns.Keys())
	}

	if !root.HasColumn("/tender/items/0/id") || !root.HasColumn("/tender/id") {
		t.Fatal("HasColumn must consult both sets")
	}
}

func TestIncColumn(t *testing.T) {
	_, _, child := fixture()
	child.IncColumn("/tender/items/id")
	if got := child.Columns.Get("/tender/items/id").Hits; got != 1 {
		t.Fatalf("plain hits = %d", got)
	}
	if got := child.CombinedColumns.Get("/tender/items/0/id").Hits; got != 1 {
		t.Fatalf("combined hits = %d", got)
	}
}

func TestModelRoot(t *testing.T) {
	m, root, child := fixture()
	if got := m.Root(child); got != root {
		t.Fatalf("Root(child) = %v", got.Name)
	}
	if got := m.Root(root); got != root {
		t.Fatal("Root(root) must be identity")
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	m, _, _ := fixture()
	var buf bytes.Buffer
	if err := m.Dump(&buf); err != nil {
		t.Fatalf("dump: %v", err)
	}

	restored, err := LoadModel(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	root := restored["tenders"]
	if root == nil || !root.IsRoot {
		t.Fatal("root table lost")
	}
	if !reflect.DeepEqual(root.Path, []string{"/tender"}) {
		t.Fatalf("path = %v", root.Path)
	}
	if root.Types["/tender/items"] != KindArray {
		t.Fatalf("types lost: %v", root.Types)
	}
	child := restored["tenders_items"]
	if child.Parent != "tenders" {
		t.Fatalf("parent = %q", child.Parent)
	}
	if !reflect.DeepEqual(child.Columns.Keys(), []string{"/tender/items/id"}) {
		t.Fatalf("column order lost: %v", child.Columns.Keys())
	}
	if child.TotalRows != 1 {
		t.Fatalf("totalRows = %d", child.TotalRows)
	}
}
