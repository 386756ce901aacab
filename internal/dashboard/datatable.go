package dashboard

import (
	"fmt"
	"slices"
	"time"

	"databuddy/internal/format"
	"databuddy/internal/frame"
	"databuddy/internal/naming"
	"databuddy/internal/response"
)

// DataTableColumn is one column header.
type DataTableColumn struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// DataTable is a display-ready table: headings plus rows keyed by column ID.
type DataTable struct {
	ID      string            `json:"id"`
	Columns []DataTableColumn `json:"columns"`
	Data    []map[string]any  `json:"data"`
}

// FieldTypes maps a field name to how its values are rendered.
type FieldTypes map[string]format.FieldType

// TableOptions controls frame to table conversion.
type TableOptions struct {
	ID         string
	FieldTypes FieldTypes
	Formatter  format.Formatter
	// Layout is a strftime pattern for period labels.
	Layout string
}

func (o TableOptions) formatter() format.Formatter {
	if o.Formatter.CurrencySymbol == "" {
		return format.NewFormatter("")
	}
	return o.Formatter
}

// TimestampFrameToDataTable renders a frame for display. A time-indexed frame
// gets one row per period. Any other frame is read as metrics by period: one
// row per metric with its index value humanized, and period headings taken
// from the column names.
func TimestampFrameToDataTable(f *frame.Frame, opts TableOptions) *DataTable {
	layout := opts.Layout
	if layout == "" {
		layout = format.MonthDisplayLayout
	}
	id := opts.ID
	if id == "" {
		id = "table"
	}
	fm := opts.formatter()
	filled := f.FillNull(0)
	dt := &DataTable{ID: id, Data: []map[string]any{}}

	if filled.TimeIndexed() {
		dt.Columns = append(dt.Columns, DataTableColumn{Name: "Period", ID: "period"})
		for _, c := range filled.Columns {
			dt.Columns = append(dt.Columns, DataTableColumn{Name: naming.Humanize(c), ID: c})
		}
		for i, idx := range filled.Index {
			row := map[string]any{"period": format.Strftime(idx.(time.Time), layout)}
			for j, c := range filled.Columns {
				row[c] = fm.Value(filled.Data[i][j], opts.FieldTypes[c])
			}
			dt.Data = append(dt.Data, row)
		}
		return dt
	}

	dt.Columns = append(dt.Columns, DataTableColumn{Name: "Metric", ID: "metric"})
	headings := make([]string, len(filled.Columns))
	for j, c := range filled.Columns {
		headings[j] = periodHeading(c, layout)
		dt.Columns = append(dt.Columns, DataTableColumn{Name: headings[j], ID: headings[j]})
	}
	for i, idx := range filled.Index {
		metric := fmt.Sprint(idx)
		row := map[string]any{"metric": naming.Humanize(metric)}
		for j := range filled.Columns {
			row[headings[j]] = fm.Value(filled.Data[i][j], opts.FieldTypes[metric])
		}
		dt.Data = append(dt.Data, row)
	}
	return dt
}

// DailyFrameToDataTable labels periods like "02 Jan 2024".
func DailyFrameToDataTable(f *frame.Frame, opts TableOptions) *DataTable {
	opts.Layout = format.DayDisplayLayout
	return TimestampFrameToDataTable(f, opts)
}

// MonthlyFrameToDataTable labels periods like "Jan 2024".
func MonthlyFrameToDataTable(f *frame.Frame, opts TableOptions) *DataTable {
	opts.Layout = format.MonthDisplayLayout
	return TimestampFrameToDataTable(f, opts)
}

var periodLayouts = []string{time.RFC3339, "2006-01-02", "2006-01"}

func periodHeading(col, layout string) string {
	for _, l := range periodLayouts {
		if t, err := time.Parse(l, col); err == nil {
			return format.Strftime(t, layout)
		}
	}
	return col
}

// Transpose turns a time-indexed frame into metrics by period: the value
// columns become the index and each period becomes a column.
func Transpose(f *frame.Frame) *frame.Frame {
	periods := make([]string, len(f.Index))
	for i, idx := range f.Index {
		if t, ok := idx.(time.Time); ok {
			periods[i] = t.Format(time.DateOnly)
		} else {
			periods[i] = fmt.Sprint(idx)
		}
	}
	out := frame.New("metric", periods...)
	for j, c := range f.Columns {
		values := make([]any, len(f.Index))
		for i := range f.Index {
			values[i] = f.Data[i][j]
		}
		out.Append(c, values...)
	}
	return out
}

// DataTableToFrame reads table rows back into a frame indexed by indexCol.
// Missing values become 0. An empty indexCol indexes rows by position.
func DataTableToFrame(dt *DataTable, indexCol string) (*frame.Frame, error) {
	ids := make([]string, 0, len(dt.Columns))
	for _, c := range dt.Columns {
		ids = append(ids, c.ID)
	}
	if indexCol != "" && !slices.Contains(ids, indexCol) {
		return nil, fmt.Errorf("data table %s has no column %q", dt.ID, indexCol)
	}
	columns := slices.DeleteFunc(ids, func(id string) bool { return id == indexCol })

	f := frame.New(indexCol, columns...)
	for i, row := range dt.Data {
		var idx any = i
		if indexCol != "" {
			idx = row[indexCol]
		}
		values := make([]any, len(columns))
		for j, c := range columns {
			values[j] = row[c]
		}
		f.Append(idx, values...)
	}
	return f.FillNull(0), nil
}

// CSV renders the table as a CSV payload with indexCol first.
func (dt *DataTable) CSV(indexCol string) (*response.Payload, error) {
	f, err := DataTableToFrame(dt, indexCol)
	if err != nil {
		return nil, err
	}
	return response.FromFrame(f, response.CSV)
}
