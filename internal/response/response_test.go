package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/dbexec"
	"databuddy/internal/frame"
	"databuddy/internal/query"
	"databuddy/internal/sqlutil"
)

func intPtr(v int) *int { return &v }

func TestNewMetaTotalPages(t *testing.T) {
	meta := NewMeta(45, []string{"id"}, query.Modifiers{Page: intPtr(1), PerPage: intPtr(20)})
	require.NotNil(t, meta.TotalPages)
	assert.Equal(t, 3, *meta.TotalPages)
	assert.Equal(t, 1, *meta.Page)
	assert.Equal(t, 20, *meta.PerPage)

	exact := NewMeta(40, nil, query.Modifiers{Page: intPtr(2), PerPage: intPtr(20)})
	assert.Equal(t, 2, *exact.TotalPages)
	assert.Equal(t, []string{}, exact.Columns)
}

func TestNewMetaOmitsPagingWithoutPage(t *testing.T) {
	meta := NewMeta(45, []string{"id"}, query.DefaultModifiers())
	encoded, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_items":45,"columns":["id"]}`, string(encoded))
}

func TestCSVText(t *testing.T) {
	cols := []string{"a", "b"}
	rows := []query.Row{
		query.NewRow(cols, []any{1, 2}),
		query.NewRow(cols, []any{3, 4}),
	}
	text, err := CSVText(cols, rows)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n3,4", text)
}

func TestCSVTextQuotingAndTypes(t *testing.T) {
	cols := []string{"name", "when", "ratio", "note"}
	rows := []query.Row{
		query.NewRow(cols, []any{"Acme, Inc", time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), 0.25, nil}),
	}
	text, err := CSVText(cols, rows)
	require.NoError(t, err)
	assert.Equal(t, "name,when,ratio,note\n\"Acme, Inc\",2024-05-01 09:30:00,0.25,", text)

	header, err := CSVText(cols, nil)
	require.NoError(t, err)
	assert.Equal(t, "name,when,ratio,note", header)
}

func TestSelectFormat(t *testing.T) {
	f, err := SelectFormat(CSV, url.Values{"format": {"json"}}, "")
	require.NoError(t, err)
	assert.Equal(t, CSV, f)

	f, err = SelectFormat("", url.Values{"format": {"CSV"}}, JSON)
	require.NoError(t, err)
	assert.Equal(t, CSV, f)

	f, err = SelectFormat("", url.Values{}, Dict)
	require.NoError(t, err)
	assert.Equal(t, Dict, f)

	f, err = SelectFormat("", nil, "")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)

	_, err = SelectFormat("", url.Values{"format": {"xml"}}, "")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Equal(t, http.StatusBadRequest, AsHTTPError(err).Code)
}

func ordersQuery() *query.Query {
	b := query.NewBuilder(sqlutil.MySQL, 0)
	return b.Select("orders", b.Col("id"), b.Col("total"))
}

func TestFromQueryJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT `id`, `total` FROM `orders`) AS count_subquery")).
		WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(45))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `total` FROM `orders` LIMIT 20 OFFSET 20")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(21, "9.50"))

	args := url.Values{"page": {"2"}}
	p, err := FromQuery(context.Background(), dbexec.NewPool(db), ordersQuery(), JSON, Options{}, args)
	require.NoError(t, err)
	assert.Equal(t, "application/json", p.ContentType)
	assert.JSONEq(t, `{
		"status": "success",
		"data": [{"id": 21, "total": "9.50"}],
		"meta": {"total_items": 45, "columns": ["id", "total"], "page": 2, "per_page": 20, "total_pages": 3}
	}`, string(p.Body))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFromQueryCSVUsesCSVModifiers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `total` FROM `orders` ORDER BY `total` DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(1, 2).AddRow(3, 4))

	opts := Options{
		JSONModifiers: map[string]any{"page": 1},
		CSVModifiers:  map[string]any{"order_by": "total", "sort": "desc"},
		PinModifiers:  true,
	}
	p, err := FromQuery(context.Background(), dbexec.NewPool(db), ordersQuery(), CSV, opts, url.Values{"page": {"5"}})
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", p.ContentType)
	assert.Equal(t, "id,total\n1,2\n3,4", string(p.Body))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFromQueryDict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "total"}))

	p, err := FromQuery(context.Background(), dbexec.NewPool(db), ordersQuery(), Dict, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(p.Body))
	assert.Empty(t, p.Rows)
}

func TestFromFrame(t *testing.T) {
	f := frame.New("region", "sales")
	f.Append("north", 10)
	f.Append("south", 20)

	p, err := FromFrame(f, CSV)
	require.NoError(t, err)
	assert.Equal(t, "region,sales\nnorth,10\nsouth,20", string(p.Body))

	p, err = FromFrame(f, JSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","data":[{"region":"north","sales":10},{"region":"south","sales":20}],
		"meta":{"total_items":2,"columns":["region","sales"]}}`, string(p.Body))
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, BadRequest("filter_params must be a JSON object", errors.New("syntax")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"failure","error":{"code":400,"name":"Bad Request","description":"filter_params must be a JSON object"}}`,
		rec.Body.String())

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("dial tcp: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), `"name":"Internal Server Error"`)
}
