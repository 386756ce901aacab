package query

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/dbexec"
	"databuddy/internal/sqlutil"
)

type stubModel struct {
	table string
	cols  []string
}

func (m stubModel) TableName() string     { return m.table }
func (m stubModel) ColumnNames() []string { return m.cols }

func TestMaterializeTupleRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewBuilder(sqlutil.MySQL, 0)
	q := b.Select("orders", b.Col("id"), b.As("UPPER(status)", "status"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, UPPER(status) AS `status` FROM `orders`")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "UPPER(status)"}).
			AddRow(1, []byte("PAID")).
			AddRow(2, nil))

	rows, err := Materialize(context.Background(), dbexec.NewPool(db), q)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"id", "status"}, rows[0].Columns())
	status, ok := rows[0].Get("status")
	assert.True(t, ok)
	assert.Equal(t, "PAID", status)

	encoded, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"status":"PAID"},{"id":2,"status":null}]`, string(encoded))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeEntityRowsUseDeclaredColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewBuilder(sqlutil.MySQL, 0)
	q := b.Entity(stubModel{table: "customers", cols: []string{"id", "email"}})
	assert.Equal(t, EntityRows, q.Kind())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `email` FROM `customers`")).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "EMAIL"}).AddRow(7, "a@example.com"))

	rows, err := Materialize(context.Background(), dbexec.NewPool(db), q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"id": int64(7), "email": "a@example.com"}, normalizeInts(rows[0].Map()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializePreservesRowOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewBuilder(sqlutil.MySQL, 0)
	q := b.Select("events", b.Col("seq"))
	result := sqlmock.NewRows([]string{"seq"})
	for _, v := range []int64{5, 3, 9, 1} {
		result.AddRow(v)
	}
	mock.ExpectQuery("SELECT").WillReturnRows(result)

	rows, err := Materialize(context.Background(), dbexec.NewPool(db), q)
	require.NoError(t, err)
	var got []any
	for _, r := range rows {
		v, _ := r.Get("seq")
		got = append(got, v)
	}
	assert.Equal(t, []any{int64(5), int64(3), int64(9), int64(1)}, got)
}

func TestMaterializeQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewBuilder(sqlutil.MySQL, 0)
	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, err = Materialize(context.Background(), dbexec.NewPool(db), b.Select("orders", b.Col("id")))
	require.ErrorIs(t, err, assert.AnError)
}

func TestCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewBuilder(sqlutil.MySQL, 0)
	q := b.Select("orders", b.Col("id")).Apply(Modifiers{Page: intPtr(2), PerPage: intPtr(10)})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT `id` FROM `orders`) AS count_subquery")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(45))

	total, err := Count(context.Background(), dbexec.NewPool(db), q)
	require.NoError(t, err)
	assert.Equal(t, 45, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowMarshalKeepsColumnOrder(t *testing.T) {
	row := NewRow([]string{"zeta", "alpha", "mid"}, []any{1, "two"})
	encoded, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"two","mid":null}`, string(encoded))
}

func normalizeInts(m map[string]any) map[string]any {
	for k, v := range m {
		if i, ok := v.(int); ok {
			m[k] = int64(i)
		}
	}
	return m
}
