package frame

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"databuddy/internal/dbexec"
	"databuddy/internal/format"
	"databuddy/internal/query"
)

// Read materializes q into a frame indexed by indexCol.
func Read(ctx context.Context, exec dbexec.QueryExecutor, q *query.Query, indexCol string) (*Frame, error) {
	rows, err := query.Materialize(ctx, exec, q)
	if err != nil {
		return nil, err
	}
	return FromRows(rows, q.Columns(), indexCol)
}

// ReadInterval materializes an interval query, parses its bucket labels into
// times and sorts the frame chronologically. The NULL bucket is dropped.
func ReadInterval(ctx context.Context, exec dbexec.QueryExecutor, q *query.Query, interval query.Interval) (*Frame, error) {
	f, err := Read(ctx, exec, q, interval.Label)
	if err != nil {
		return nil, err
	}
	// Rows with a NULL date column land in a NULL bucket that has no place
	// on the timeline.
	index, data := f.Index[:0], f.Data[:0]
	for i, v := range f.Index {
		if v == nil {
			continue
		}
		t, err := parseBucket(interval.Pattern, v)
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", i, err)
		}
		index = append(index, t)
		data = append(data, f.Data[i])
	}
	f.Index, f.Data = index, data
	f.SortByIndex()
	return f, nil
}

func parseBucket(pattern string, v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return format.ParseStrftime(pattern, x)
	case []byte:
		return format.ParseStrftime(pattern, string(x))
	default:
		return time.Time{}, fmt.Errorf("unexpected bucket value %v (%T)", v, v)
	}
}

// Daily buckets table by local day of dateColumn and returns a day-indexed frame.
func Daily(ctx context.Context, exec dbexec.QueryExecutor, b *query.Builder, table, dateColumn string, fields []query.Field, filters ...sq.Sqlizer) (*Frame, error) {
	return ReadInterval(ctx, exec, b.DailyQuery(table, dateColumn, fields, filters...), query.Daily)
}

// Monthly buckets table by local month of dateColumn and returns a month-indexed frame.
func Monthly(ctx context.Context, exec dbexec.QueryExecutor, b *query.Builder, table, dateColumn string, fields []query.Field, filters ...sq.Sqlizer) (*Frame, error) {
	return ReadInterval(ctx, exec, b.MonthlyQuery(table, dateColumn, fields, filters...), query.Monthly)
}
