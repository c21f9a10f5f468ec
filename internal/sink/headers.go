package sink

import (
	"sort"

	"flatsheet/internal/flatten"
	"flatsheet/internal/tables"
)

// Specs derives the output specs from a constructed flattener: one Spec per
// retained table, sorted by output name for deterministic sink setup.
//
// Column order is the four identity columns followed by the table's own
// columns in declared order (Columns when split, CombinedColumns otherwise).
// The shaping config is honored here: `only` restricts the column list
// (identity columns always stay), `headers` overrides titles, pretty headers
// swap pointers for derived titles, `name` renames the table.
func Specs(f *flatten.Flattener) []Spec {
	identity := flatten.IdentityColumns(f.Options())

	var specs []Spec
	for name, t := range f.Tables() {
		cfg := f.Config(name)

		var cols []string
		if cfg != nil && cfg.Split {
			cols = t.Columns.Keys()
		} else {
			cols = t.CombinedColumns.Keys()
		}
		if cfg != nil && len(cfg.Only) > 0 {
			cols = filterOnly(cols, cfg.Only)
		}

		spec := Spec{Name: f.OutputName(name)}
		for _, id := range identity {
			spec.Columns = append(spec.Columns, id)
			spec.Headers = append(spec.Headers, id)
			spec.Types = append(spec.Types, tables.KindString)
		}
		for _, col := range cols {
			if isIdentity(identity, col) {
				continue
			}
			spec.Columns = append(spec.Columns, col)
			spec.Headers = append(spec.Headers, headerFor(t, cfg, col))
			spec.Types = append(spec.Types, t.Types[col])
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// headerFor resolves the header text for one column: explicit override first,
// derived title when pretty headers are on, raw pointer otherwise.
func headerFor(t *tables.Table, cfg *flatten.TableConfig, col string) string {
	if cfg != nil {
		if h, ok := cfg.Headers[col]; ok {
			return h
		}
		if cfg.PrettyHeaders {
			if title := t.Titles[col]; title != "" {
				return title
			}
			if c := t.CombinedColumns.Get(col); c != nil && c.Title != "" {
				return c.Title
			}
			if c := t.Columns.Get(col); c != nil && c.Title != "" {
				return c.Title
			}
		}
	}
	return col
}

func filterOnly(cols, only []string) []string {
	keep := make(map[string]struct{}, len(only))
	for _, c := range only {
		keep[c] = struct{}{}
	}
	out := cols[:0:0]
	for _, c := range cols {
		if _, ok := keep[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func isIdentity(identity []string, col string) bool {
	for _, id := range identity {
		if id == col {
			return true
		}
	}
	return false
}
