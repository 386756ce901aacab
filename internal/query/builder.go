package query

import (
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"databuddy/internal/format"
	"databuddy/internal/sqlutil"
)

// Interval describes a date bucket: the label the bucket column is exposed
// under and the strftime pattern that renders it.
type Interval struct {
	Label   string
	Pattern string
}

var (
	Daily   = Interval{Label: "day", Pattern: format.DayLayout}
	Monthly = Interval{Label: "month", Pattern: format.MonthLayout}
)

// Builder constructs queries for one data source. Date helpers shift UTC
// columns by the configured offset before bucketing.
type Builder struct {
	dialect    sqlutil.Dialect
	offsetMins int
	now        func() time.Time
}

// NewBuilder returns a Builder for dialect with a timezone offset in minutes.
func NewBuilder(dialect sqlutil.Dialect, offsetMins int) *Builder {
	return &Builder{dialect: dialect, offsetMins: offsetMins, now: time.Now}
}

// WithClock replaces the clock used by LocalTime and NDaysAgo.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	c := *b
	c.now = now
	return &c
}

func (b *Builder) Dialect() sqlutil.Dialect { return b.dialect }

func (b *Builder) OffsetMins() int { return b.offsetMins }

// Col projects a column under its own (unqualified) name.
func (b *Builder) Col(name string) Field {
	label := name
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		label = name[idx+1:]
	}
	return Field{Expr: b.dialect.Quote(name), Label: label}
}

// As projects a raw expression under label.
func (b *Builder) As(expr, label string, args ...any) Field {
	return Field{Expr: expr, Label: label, Args: args}
}

// Sum projects a NULL-safe sum of column. An empty label reuses the column name.
func (b *Builder) Sum(column, label string) Field {
	if label == "" {
		label = b.Col(column).Label
	}
	return Field{Expr: b.dialect.NullSafeSum(column), Label: label}
}

// Count projects COUNT(*) under label.
func (b *Builder) Count(label string) Field {
	return Field{Expr: "COUNT(*)", Label: label}
}

// Select starts a tuple query over table.
func (b *Builder) Select(table string, fields ...Field) *Query {
	return newQuery(b.dialect, TupleRows, b.dialect.Quote(table), fields)
}

// ConstructQuery selects fields from table with every non-nil filter applied.
func (b *Builder) ConstructQuery(table string, fields []Field, filters ...sq.Sqlizer) *Query {
	return b.Select(table, fields...).Filter(filters...)
}

// Entity selects every declared column of m; rows are keyed by those columns.
func (b *Builder) Entity(m Model) *Query {
	cols := m.ColumnNames()
	fields := make([]Field, len(cols))
	for i, c := range cols {
		fields[i] = b.Col(c)
	}
	q := newQuery(b.dialect, EntityRows, b.dialect.Quote(m.TableName()), fields)
	q.model = m
	return q
}

// LocalTime is the current time in the configured offset.
func (b *Builder) LocalTime() time.Time {
	return format.LocalTime(b.now().UTC(), b.offsetMins)
}

// NDaysAgo is local midnight n days before today, as a UTC instant suitable
// for comparing against UTC columns.
func (b *Builder) NDaysAgo(n int) time.Time {
	return format.DayStart(b.LocalTime()).AddDate(0, 0, -n).UTC()
}

// LocalTZConvert is the SQL expression for column shifted into local time.
func (b *Builder) LocalTZConvert(column string) string {
	return b.dialect.LocalTZConvert(column, b.offsetMins)
}

// LocalTZConvertedDate is the SQL expression for the local calendar date of column.
func (b *Builder) LocalTZConvertedDate(column string) string {
	return b.dialect.LocalTZConvertedDate(column, b.offsetMins)
}

// IntervalQuery buckets rows of table by the local date of dateColumn. The
// bucket is projected first under interval.Label, followed by fields, and
// the query is grouped by the bucket.
func (b *Builder) IntervalQuery(table, dateColumn string, interval Interval, fields []Field, filters ...sq.Sqlizer) *Query {
	bucket := b.dialect.LocalDateBucket(dateColumn, b.offsetMins, interval.Pattern)
	projected := append([]Field{{Expr: bucket, Label: interval.Label}}, fields...)
	return b.ConstructQuery(table, projected, filters...).GroupByExpr(bucket)
}

// DailyQuery buckets by local day, labelled "day" as YYYY-MM-DD.
func (b *Builder) DailyQuery(table, dateColumn string, fields []Field, filters ...sq.Sqlizer) *Query {
	return b.IntervalQuery(table, dateColumn, Daily, fields, filters...)
}

// MonthlyQuery buckets by local month, labelled "month" as YYYY-MM.
func (b *Builder) MonthlyQuery(table, dateColumn string, fields []Field, filters ...sq.Sqlizer) *Query {
	return b.IntervalQuery(table, dateColumn, Monthly, fields, filters...)
}
