package analyze

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"flatsheet/internal/tables"
)

// state is the persisted form of an analysis run: the configuration it ran
// under plus the accumulated model. Restoring it skips re-reading the data
// file when only the flattening selection changed. The model travels as a raw
// message so Dump/LoadModel stay the single source of its wire format.
type state struct {
	Config  Config          `json:"config"`
	Records int64           `json:"records"`
	Model   json.RawMessage `json:"model"`
}

// SaveState serializes the analyzer for a later Restore.
func (a *Analyzer) SaveState(w io.Writer) error {
	var model bytes.Buffer
	if err := a.model.Dump(&model); err != nil {
		return fmt.Errorf("analyze: save state: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state{Config: a.cfg, Records: a.records, Model: model.Bytes()}); err != nil {
		return fmt.Errorf("analyze: save state: %w", err)
	}
	return nil
}

// Restore rebuilds an Analyzer from a SaveState dump. Further records may be
// fed in on top of the restored model.
func Restore(r io.Reader, logger Logger) (*Analyzer, error) {
	var st state
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return nil, fmt.Errorf("analyze: restore state: %w", err)
	}
	if len(st.Model) == 0 || bytes.Equal(bytes.TrimSpace(st.Model), []byte("null")) {
		return nil, fmt.Errorf("analyze: restore state: missing model")
	}
	model, err := tables.LoadModel(bytes.NewReader(st.Model))
	if err != nil {
		return nil, fmt.Errorf("analyze: restore state: %w", err)
	}
	a := New(st.Config, logger)
	a.records = st.Records
	a.model = model
	a.byPath = make(map[string]*tables.Table)
	for _, t := range a.model {
		for _, p := range t.Path {
			a.byPath[p] = t
		}
	}
	return a, nil
}
