package nef

import (
	"encoding/json"
	"fmt"
	"time"
)

// Meta is the metadata block of the datastore document.
type Meta struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentVersion is written into Meta.Version of new documents.
const DocumentVersion = "1.0.0"

// Dump is a full snapshot of the datastore: metadata, every table, and any
// top-level keys the current version does not recognize. It marshals to the
// flat document layout {"meta": {...}, "<table>": [...], ...}.
type Dump struct {
	Meta   Meta
	Tables map[string][]Record
	Extra  map[string]json.RawMessage
}

// NewDump returns an empty dump with initialized maps.
func NewDump() *Dump {
	return &Dump{
		Tables: make(map[string][]Record),
		Extra:  make(map[string]json.RawMessage),
	}
}

// MarshalJSON flattens the dump into a single JSON object.
func (d *Dump) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Tables)+len(d.Extra)+1)
	for k, v := range d.Extra {
		flat[k] = v
	}
	for name, rows := range d.Tables {
		if rows == nil {
			rows = []Record{}
		}
		flat[name] = rows
	}
	flat["meta"] = d.Meta
	return json.Marshal(flat)
}

// UnmarshalJSON accepts any JSON object. Known tables whose value is an
// array populate Tables; "meta" populates Meta; every other key is kept
// verbatim in Extra. A known table whose value is not an array is kept in
// Extra so that the caller can decide whether to ignore it.
func (d *Dump) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDump, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: not an object", ErrInvalidDump)
	}

	d.Tables = make(map[string][]Record)
	d.Extra = make(map[string]json.RawMessage)
	for key, value := range raw {
		if key == "meta" {
			// A malformed meta block is replaced on the next persist.
			_ = json.Unmarshal(value, &d.Meta)
			continue
		}
		if IsKnownTable(key) {
			var rows []Record
			if err := json.Unmarshal(value, &rows); err == nil && rows != nil {
				d.Tables[key] = rows
				continue
			}
		}
		d.Extra[key] = value
	}
	return nil
}
