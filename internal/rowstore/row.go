// Package rowstore holds the per-row records of a corpus and gives
// random access to them by row id.
//
// Three backends share the RowStore interface: an in-memory array loaded
// from metadata.json, a JSON-lines file read through a byte-offset table,
// and a SQLite table. All of them yield the same Row values.
package rowstore

import (
	"encoding/json"
	"fmt"
)

// TextField is the key scalar rows are reported under.
const TextField = "text"

// Row is one stored record. Most rows are JSON objects; generic corpora may
// also store bare scalars (usually a string), which are kept in Scalar.
type Row struct {
	Fields map[string]any
	Scalar any
}

// IsObject reports whether the row was stored as a JSON object.
func (r Row) IsObject() bool {
	return r.Fields != nil
}

// Map returns the row as a field map. A scalar row is placed under "text".
// The returned map is a copy and may be modified by the caller.
func (r Row) Map() map[string]any {
	if !r.IsObject() {
		return map[string]any{TextField: r.Scalar}
	}
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}

// Text returns the row's text field, or "" when it is missing or not a string.
func (r Row) Text() string {
	var v any
	if r.IsObject() {
		v = r.Fields[TextField]
	} else {
		v = r.Scalar
	}
	s, _ := v.(string)
	return s
}

// MarshalJSON encodes the row as it was stored.
func (r Row) MarshalJSON() ([]byte, error) {
	if r.IsObject() {
		return json.Marshal(r.Fields)
	}
	return json.Marshal(r.Scalar)
}

// UnmarshalJSON decodes an object or a scalar.
func (r *Row) UnmarshalJSON(data []byte) error {
	row, err := ParseRow(data)
	if err != nil {
		return err
	}
	*r = row
	return nil
}

// ParseRow decodes one JSON value into a Row.
func ParseRow(data []byte) (Row, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Row{}, fmt.Errorf("decode row: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		return Row{Fields: m}, nil
	}
	return Row{Scalar: v}, nil
}

// ObjectRow wraps a field map.
func ObjectRow(fields map[string]any) Row {
	if fields == nil {
		fields = map[string]any{}
	}
	return Row{Fields: fields}
}

// ScalarRow wraps a bare value.
func ScalarRow(v any) Row {
	return Row{Scalar: v}
}

// RowStore gives random access to rows by id. Row returns false for ids
// out of range and for records that cannot be read or decoded.
type RowStore interface {
	Len() int
	Row(i int) (Row, bool)
}

// RowBatcher is implemented by stores that resolve several ids more
// cheaply together than one at a time. found[i] reports whether rows[i]
// holds the row for ids[i].
type RowBatcher interface {
	Rows(ids []int) (rows []Row, found []bool)
}
