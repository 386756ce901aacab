package query

import (
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"

	"databuddy/internal/sqlutil"
)

// RowKind tells the materializer how a query's rows map onto field names.
type RowKind int

const (
	// TupleRows come from an explicit projection; keys are the field labels.
	TupleRows RowKind = iota
	// EntityRows come from a mapped table; keys are the model's declared columns.
	EntityRows
)

func (k RowKind) String() string {
	if k == EntityRows {
		return "entity"
	}
	return "tuple"
}

// Field is one projected expression and the label it is exposed under.
type Field struct {
	Expr  string
	Label string
	Args  []any
}

// Model is a mapped table: a name and its declared columns in order.
type Model interface {
	TableName() string
	ColumnNames() []string
}

// Query is an immutable SELECT with its projection labels. Every method that
// changes it returns a copy, so a base query can be counted and paged
// independently.
type Query struct {
	dialect sqlutil.Dialect
	kind    RowKind
	fields  []Field
	model   Model
	sel     sq.SelectBuilder

	orderBy []string
	page    *pageWindow
}

type pageWindow struct {
	limit  uint64
	offset uint64
}

func newQuery(d sqlutil.Dialect, kind RowKind, from string, fields []Field) *Query {
	sel := sq.Select()
	for _, f := range fields {
		sel = sel.Column(projection(d, f), f.Args...)
	}
	return &Query{
		dialect: d,
		kind:    kind,
		fields:  append([]Field(nil), fields...),
		sel:     sel.From(from),
	}
}

func projection(d sqlutil.Dialect, f Field) string {
	if f.Label == "" || f.Expr == d.Quote(f.Label) {
		return f.Expr
	}
	return f.Expr + " AS " + d.Quote(f.Label)
}

func (q *Query) clone() *Query {
	c := *q
	c.fields = append([]Field(nil), q.fields...)
	c.orderBy = append([]string(nil), q.orderBy...)
	if q.page != nil {
		w := *q.page
		c.page = &w
	}
	return &c
}

// Dialect is the SQL flavour the query renders for.
func (q *Query) Dialect() sqlutil.Dialect { return q.dialect }

// Kind reports how rows from this query are keyed.
func (q *Query) Kind() RowKind { return q.kind }

// Columns returns the row keys in projection order.
func (q *Query) Columns() []string {
	if q.kind == EntityRows && q.model != nil {
		return append([]string(nil), q.model.ColumnNames()...)
	}
	cols := make([]string, len(q.fields))
	for i, f := range q.fields {
		cols[i] = f.Label
	}
	return cols
}

// Where adds a filter. pred takes any form squirrel's Where accepts.
func (q *Query) Where(pred any, args ...any) *Query {
	c := q.clone()
	c.sel = c.sel.Where(pred, args...)
	return c
}

// Filter adds each non-nil predicate.
func (q *Query) Filter(preds ...sq.Sqlizer) *Query {
	c := q.clone()
	for _, p := range preds {
		if p != nil {
			c.sel = c.sel.Where(p)
		}
	}
	return c
}

// GroupByExpr groups by raw SQL expressions.
func (q *Query) GroupByExpr(exprs ...string) *Query {
	c := q.clone()
	c.sel = c.sel.GroupBy(exprs...)
	return c
}

// OrderByExpr orders by raw SQL expressions.
func (q *Query) OrderByExpr(exprs ...string) *Query {
	c := q.clone()
	c.orderBy = append(c.orderBy, exprs...)
	return c
}

// Apply returns a copy with m applied: grouping, then ordering, then either
// page based or limit/offset pagination.
func (q *Query) Apply(m Modifiers) *Query {
	c := q.clone()
	if len(m.GroupBy) > 0 {
		exprs := make([]string, len(m.GroupBy))
		for i, col := range m.GroupBy {
			exprs[i] = q.dialect.Quote(col)
		}
		c.sel = c.sel.GroupBy(exprs...)
	}
	if m.OrderBy != "" {
		dir := "ASC"
		if m.Sort == SortDesc {
			dir = "DESC"
		}
		c.orderBy = append(c.orderBy, q.dialect.Quote(m.OrderBy)+" "+dir)
	}
	switch {
	case m.Paginated():
		perPage := m.PageSize()
		c.page = &pageWindow{limit: uint64(perPage), offset: pageOffset(*m.Page, perPage)}
	case m.Limit != nil && *m.Limit > 0 && m.Offset != nil && *m.Offset > 0:
		c.page = &pageWindow{limit: uint64(*m.Limit), offset: uint64(*m.Offset - 1)}
	}
	return c
}

// maxOffset is the largest OFFSET the dialects accept (a signed bigint).
const maxOffset uint64 = math.MaxInt64

// pageOffset returns (page-1)*perPage for page, perPage > 0, clamped to
// maxOffset instead of wrapping.
func pageOffset(page, perPage int) uint64 {
	skip, size := uint64(page-1), uint64(perPage)
	if skip > maxOffset/size {
		return maxOffset
	}
	return skip * size
}

// ToSql renders the query with the dialect's placeholders.
func (q *Query) ToSql() (string, []any, error) {
	sel := q.sel
	if len(q.orderBy) > 0 {
		sel = sel.OrderBy(q.orderBy...)
	}
	if q.page != nil {
		if suffix, ok := q.dialect.PaginationSuffix(q.page.limit, q.page.offset); ok {
			if len(q.orderBy) == 0 {
				sel = sel.OrderBy("(SELECT NULL)")
			}
			sel = sel.Suffix(suffix)
		} else {
			sel = sel.Limit(q.page.limit).Offset(q.page.offset)
		}
	}
	sqlText, args, err := sel.PlaceholderFormat(q.dialect.Placeholder()).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query: %w", err)
	}
	return sqlText, args, nil
}

// CountSql renders a row count over the query without ordering or pagination.
func (q *Query) CountSql() (string, []any, error) {
	counted := sq.Select("COUNT(*)").FromSelect(q.sel, "count_subquery")
	sqlText, args, err := counted.PlaceholderFormat(q.dialect.Placeholder()).ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build count query: %w", err)
	}
	return sqlText, args, nil
}
