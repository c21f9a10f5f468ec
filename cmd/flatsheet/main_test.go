package main

import (
	"os"
	"path/filepath"
	"testing"

	"flatsheet/internal/analyze"
	"flatsheet/internal/ordered"
)

func analyzedFixture(t *testing.T) *analyze.Analyzer {
	t.Helper()
	rec := ordered.NewMap()
	rec.Set("ocid", "X")
	rec.Set("id", "1")
	tender := ordered.NewMap()
	tender.Set("id", "T1")
	items := ordered.NewMap()
	items.Set("id", "i1")
	tender.Set("items", []any{items})
	rec.Set("tender", tender)

	a := analyze.New(analyze.DefaultConfig(), nil)
	a.ProcessRecord(rec)
	return a
}

func TestWriteStateRoundTrip(t *testing.T) {
	a := analyzedFixture(t)
	path := filepath.Join(t.TempDir(), "state.json")

	if err := writeState(a, path); err != nil {
		t.Fatalf("writeState: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	restored, err := analyze.Restore(f, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Records() != 1 {
		t.Fatalf("records = %d", restored.Records())
	}
	if restored.Model()["tenders_items"] == nil {
		t.Fatal("child table lost across state file")
	}
}

func TestLoadOptionsDefaults(t *testing.T) {
	a := analyzedFixture(t)

	opts, err := loadOptions("", a, true)
	if err != nil {
		t.Fatalf("loadOptions: %v", err)
	}
	if !opts.Count {
		t.Fatal("count flag not carried")
	}
	cfg := opts.Selection["tenders"]
	if cfg == nil || !cfg.Split || !cfg.PrettyHeaders {
		t.Fatalf("tenders config = %+v", cfg)
	}
	// One item stays under the split threshold.
	if items := opts.Selection["tenders_items"]; items == nil || items.Split {
		t.Fatalf("tenders_items config = %+v", items)
	}
}

func TestLoadOptionsFile(t *testing.T) {
	a := analyzedFixture(t)
	path := filepath.Join(t.TempDir(), "selection.json")
	body := `{"selection": {"tenders": {"split": true, "name": "main"}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := loadOptions(path, a, true)
	if err != nil {
		t.Fatalf("loadOptions: %v", err)
	}
	if cfg := opts.Selection["tenders"]; cfg == nil || !cfg.Split || cfg.Name != "main" {
		t.Fatalf("tenders config = %+v", cfg)
	}
	// The -count flag overrides the file.
	if !opts.Count {
		t.Fatal("count override lost")
	}
}
