// Package frame holds small indexed tables: one index column plus named
// value columns, built from materialized query rows.
package frame

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"databuddy/internal/query"
)

// Frame is an indexed table. Data[i] holds the values of row i aligned with Columns.
type Frame struct {
	IndexName string
	Index     []any
	Columns   []string
	Data      [][]any
}

// New returns an empty frame.
func New(indexName string, columns ...string) *Frame {
	return &Frame{IndexName: indexName, Columns: append([]string(nil), columns...)}
}

// Append adds a row. Missing values are nil and surplus values dropped.
func (f *Frame) Append(index any, values ...any) {
	row := make([]any, len(f.Columns))
	copy(row, values)
	f.Index = append(f.Index, index)
	f.Data = append(f.Data, row)
}

// Len is the number of rows.
func (f *Frame) Len() int { return len(f.Index) }

// ColumnIndex returns the position of name among the value columns.
func (f *Frame) ColumnIndex(name string) int {
	return slices.Index(f.Columns, name)
}

// Column returns a copy of one value column.
func (f *Frame) Column(name string) ([]any, bool) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(f.Data))
	for i, row := range f.Data {
		out[i] = row[idx]
	}
	return out, true
}

// TimeIndexed reports whether every index value is a time.Time.
func (f *Frame) TimeIndexed() bool {
	if len(f.Index) == 0 {
		return false
	}
	for _, v := range f.Index {
		if _, ok := v.(time.Time); !ok {
			return false
		}
	}
	return true
}

// FillNull returns a copy with nil and NaN values replaced by v.
func (f *Frame) FillNull(v any) *Frame {
	out := &Frame{
		IndexName: f.IndexName,
		Index:     append([]any(nil), f.Index...),
		Columns:   append([]string(nil), f.Columns...),
		Data:      make([][]any, len(f.Data)),
	}
	for i, row := range f.Data {
		filled := make([]any, len(row))
		for j, cell := range row {
			if isNull(cell) {
				filled[j] = v
			} else {
				filled[j] = cell
			}
		}
		out.Data[i] = filled
	}
	return out
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}

// SortByIndex orders rows by index value. Times sort chronologically and
// everything else by its printed form.
func (f *Frame) SortByIndex() {
	order := make([]int, len(f.Index))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return compareIndex(f.Index[a], f.Index[b])
	})
	index := make([]any, len(order))
	data := make([][]any, len(order))
	for i, src := range order {
		index[i] = f.Index[src]
		data[i] = f.Data[src]
	}
	f.Index, f.Data = index, data
}

func compareIndex(a, b any) int {
	ta, okA := a.(time.Time)
	tb, okB := b.(time.Time)
	if okA && okB {
		return ta.Compare(tb)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Records flattens the frame into rows keyed by the index name followed by the columns.
func (f *Frame) Records() []query.Row {
	cols := f.AllColumns()
	out := make([]query.Row, len(f.Index))
	for i, idx := range f.Index {
		out[i] = query.NewRow(cols, append([]any{idx}, f.Data[i]...))
	}
	return out
}

// AllColumns is the index name followed by the value columns.
func (f *Frame) AllColumns() []string {
	return append([]string{f.IndexName}, f.Columns...)
}

// FromRows builds a frame indexed by indexCol. Remaining fields become columns
// in the order of the first row.
func FromRows(rows []query.Row, columns []string, indexCol string) (*Frame, error) {
	if !slices.Contains(columns, indexCol) {
		return nil, fmt.Errorf("index column %q not among %v", indexCol, columns)
	}
	valueCols := make([]string, 0, len(columns)-1)
	for _, c := range columns {
		if c != indexCol {
			valueCols = append(valueCols, c)
		}
	}
	f := New(indexCol, valueCols...)
	for _, r := range rows {
		idx, _ := r.Get(indexCol)
		values := make([]any, len(valueCols))
		for i, c := range valueCols {
			values[i], _ = r.Get(c)
		}
		f.Append(idx, values...)
	}
	return f, nil
}
