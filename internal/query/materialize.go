package query

import (
	"context"
	"fmt"

	"databuddy/internal/dbexec"
)

// Materialize runs q and returns its rows in result order. Row keys come from
// the query's projection labels for tuple rows and from the model's declared
// columns for entity rows; the driver's column names fill any gap.
func Materialize(ctx context.Context, exec dbexec.QueryExecutor, q *Query) ([]Row, error) {
	sqlText, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	driverCols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}
	keys := rowKeys(q.Columns(), driverCols)

	var out []Row
	for rows.Next() {
		values := make([]any, len(driverCols))
		dest := make([]any, len(driverCols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out = append(out, Row{columns: keys, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// Count returns the number of rows q matches, ignoring any pagination.
func Count(ctx context.Context, exec dbexec.QueryExecutor, q *Query) (int, error) {
	sqlText, args, err := q.CountSql()
	if err != nil {
		return 0, err
	}
	rows, err := exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("failed to scan row count: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return int(total), nil
}

func rowKeys(declared, driver []string) []string {
	keys := make([]string, len(driver))
	for i := range driver {
		if i < len(declared) && declared[i] != "" {
			keys[i] = declared[i]
		} else {
			keys[i] = driver[i]
		}
	}
	return keys
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
