package flatten

// TableConfig shapes the flattening of a single table. It is supplied by the
// caller and read-only to the engine.
type TableConfig struct {
	// Split renders child arrays as separate child tables; when false they
	// are inlined as repeated, index-qualified columns of this table.
	Split bool `json:"split"`
	// PrettyHeaders selects human-friendly titles over raw pointers when
	// sinks emit the header row.
	PrettyHeaders bool `json:"pretty_headers,omitempty"`
	// Headers overrides auto-derived titles per pointer.
	Headers map[string]string `json:"headers,omitempty"`
	// Only restricts output to the listed columns.
	Only []string `json:"only,omitempty"`
	// Repeat lists pointers whose value, once seen on a row, is copied onto
	// every descendant row produced while processing that branch.
	Repeat []string `json:"repeat,omitempty"`
	// Unnest lists descendant pointers whose scalar value is hoisted onto
	// the root table's row.
	Unnest []string `json:"unnest,omitempty"`
	// Name renames the output table.
	Name string `json:"name,omitempty"`
}

// Options configures a whole flattening run.
type Options struct {
	// Selection maps table name to its shaping config; tables absent from
	// the mapping produce no output at all.
	Selection map[string]*TableConfig `json:"selection"`
	// Count adds a sibling "<key>Count" column for every array pointer,
	// populated with the element count in the current record.
	Count bool `json:"count"`

	// GroupKey and RecordKey name the record fields carrying the group
	// identifier and the top-level record identifier. Empty values default
	// to "ocid" and "id".
	GroupKey  string `json:"group_key,omitempty"`
	RecordKey string `json:"record_key,omitempty"`
}

func (o Options) groupKey() string {
	if o.GroupKey == "" {
		return "ocid"
	}
	return o.GroupKey
}

func (o Options) recordKey() string {
	if o.RecordKey == "" {
		return "id"
	}
	return o.RecordKey
}

// IdentityColumns returns the four identity fields every row carries, in
// output order.
func IdentityColumns(o Options) []string {
	return []string{"rowID", o.recordKey(), "parentID", o.groupKey()}
}
