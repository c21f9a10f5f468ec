package pointer

import "testing"

func TestCommonPrefix(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want string
	}{
		{"partial segment does not match", "/tender/submissionMethod", "/tender/submissionMethodDetails", "/tender"},
		{"shared parent", "/tender/items/id", "/tender/items/description", "/tender/items"},
		{"identical", "/tender/items", "/tender/items", "/tender/items"},
		{"disjoint", "/tender/id", "/planning/id", ""},
		{"one is prefix", "/tender", "/tender/items/id", "/tender"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CommonPrefix(tc.a, tc.b); got != tc.want {
				t.Fatalf("CommonPrefix(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
			}
			// Symmetric.
			if got := CommonPrefix(tc.b, tc.a); got != tc.want {
				t.Fatalf("CommonPrefix(%q, %q) = %q, want %q", tc.b, tc.a, got, tc.want)
			}
		})
	}
}

func TestCacheHasPrefix(t *testing.T) {
	c := NewCache()
	if !c.HasPrefix("/tender/items/id", "/tender/items") {
		t.Fatal("expected /tender/items to be a prefix of /tender/items/id")
	}
	if c.HasPrefix("/tender/itemsCount", "/tender/items") {
		t.Fatal("segment boundary must be respected")
	}
	// Memoized result must stay correct.
	if !c.HasPrefix("/tender/items/id", "/tender/items") {
		t.Fatal("memoized lookup changed the answer")
	}
}

func TestCombinePath(t *testing.T) {
	arrays := []string{"/tender/items"}
	if got := CombinePath(arrays, "/tender/items/id", "0"); got != "/tender/items/0/id" {
		t.Fatalf("got %q", got)
	}
	// Nested arrays qualify both levels.
	nested := []string{"/tender/items", "/tender/items/additionalClassifications"}
	got := CombinePath(nested, "/tender/items/additionalClassifications/id", "0")
	want := "/tender/items/0/additionalClassifications/0/id"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	// Path outside every array is unchanged.
	if got := CombinePath(arrays, "/tender/id", "0"); got != "/tender/id" {
		t.Fatalf("got %q", got)
	}
}

func TestCountColumn(t *testing.T) {
	if got := CountColumn("/tender/items"); got != "/tender/itemsCount" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateTableName(t *testing.T) {
	cases := []struct {
		parentTable, parentKey, key string
		want                        string
	}{
		{"tenders", "tender", "items", "tenders_items"},
		{"tenders_items", "items", "additionalClassifications", "tenders_items_class"},
		{"tenders", "items", "additionalClassifications", "tenders_items_class"},
		{"parties", "parties", "roles", "parties_roles"},
		{"contracts", "contracts", "implementation", "implementation"},
		{"contracts_implementation", "implementation", "transactions", "transactions"},
		{"tenders", "tender", "documents", "tenders_docs"},
	}
	for _, tc := range cases {
		if got := GenerateTableName(tc.parentTable, tc.parentKey, tc.key); got != tc.want {
			t.Errorf("GenerateTableName(%q, %q, %q) = %q, want %q",
				tc.parentTable, tc.parentKey, tc.key, got, tc.want)
		}
	}
}

func TestGenerateTableNameTruncation(t *testing.T) {
	// Components are truncated to 5 chars once the plain name hits the ceiling.
	if got := GenerateTableName("tenders", "milestones", "additionalImplementationDetails"); got != "tenders_miles_addit" {
		t.Fatalf("got %q", got)
	}
	// A parent key already embedded in the parent name is not repeated.
	if got := GenerateTableName("tenders_milestones", "milestones", "averyveryverylongfieldname"); got != "tenders_milestones_avery" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateRowID(t *testing.T) {
	if got := GenerateRowID("ocid1", "item", "documents", "top"); got != "ocid1/top/documents:item" {
		t.Fatalf("got %q", got)
	}
	if got := GenerateRowID("ocid1", "item", "", "1"); got != "ocid1/1/item" {
		t.Fatalf("got %q", got)
	}
	// Empty segments are omitted rather than failing.
	if got := GenerateRowID("", "item", "", ""); got != "item" {
		t.Fatalf("got %q", got)
	}
	if got := GenerateRowID("ocid1", "", "tender", "1"); got != "ocid1/1/tender:" {
		t.Fatalf("got %q", got)
	}
}

func TestIsIndex(t *testing.T) {
	for seg, want := range map[string]bool{
		"0": true, "12": true, "": false, "items": false, "1a": false,
	} {
		if got := IsIndex(seg); got != want {
			t.Errorf("IsIndex(%q) = %v, want %v", seg, got, want)
		}
	}
}
