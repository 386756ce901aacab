package query

import (
	"bytes"
	"encoding/json"
)

// Row is one materialized result: field names in projection order and their
// values. Rows marshal to JSON objects with keys in that same order.
type Row struct {
	columns []string
	values  []any
}

// NewRow pairs columns with values. Missing values are nil and surplus values dropped.
func NewRow(columns []string, values []any) Row {
	vals := make([]any, len(columns))
	copy(vals, values)
	return Row{columns: append([]string(nil), columns...), values: vals}
}

// Columns returns the field names.
func (r Row) Columns() []string { return r.columns }

// Values returns the field values aligned with Columns.
func (r Row) Values() []any { return r.values }

// Len is the number of fields.
func (r Row) Len() int { return len(r.columns) }

// Get looks a field up by name.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.columns {
		if c == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map copies the row into an unordered map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
