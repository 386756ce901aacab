package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/config"
	"databuddy/internal/datasource"
	"databuddy/internal/frame"
	"databuddy/internal/query"
	"databuddy/internal/response"
)

type orderFilter struct {
	Status string `json:"status"`
}

func newShop(t *testing.T) (*datasource.Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ds, err := datasource.New(config.DataSourceConfig{Name: "shop", DBType: "mysql", DBName: "shop"}, db, 0)
	require.NoError(t, err)
	registry := datasource.NewRegistry()
	registry.Add(ds)
	return registry, mock
}

func ordersEndpoint(seen *any) QueryEndpoint {
	return QueryEndpoint{
		DataSource: "shop",
		NewParams:  func() any { return &orderFilter{} },
		Query: func(_ context.Context, env Env, params any) (*query.Query, error) {
			if seen != nil {
				*seen = params
			}
			b := env.Builder()
			q := b.Select("orders", b.Col("id"), b.Col("total"))
			if p, ok := params.(*orderFilter); ok && p.Status != "" {
				q = q.Where(sq.Eq{"status": p.Status})
			}
			return q, nil
		},
	}
}

func serve(t *testing.T, registry *datasource.Registry, endpoints map[string]QueryEndpoint, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	require.NoError(t, RegisterQueryEndpoints(mux, registry, "/api", endpoints, nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestQueryEndpoint_JSONWithFilterParams(t *testing.T) {
	registry, mock := newShop(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT `id`, `total` FROM `orders` WHERE status = ?) AS count_subquery")).
		WithArgs("paid").
		WillReturnRows(sqlmock.NewRows([]string{"c"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `total` FROM `orders` WHERE status = ?")).
		WithArgs("paid").
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(7, "12.00"))
	mock.ExpectRollback()

	var seen any
	target := "/api/shop/orders?" + url.Values{"filter_params": {`{"status":"paid"}`}}.Encode()
	rec := serve(t, registry, map[string]QueryEndpoint{"shop/orders": ordersEndpoint(&seen)}, target)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
	assert.Contains(t, rec.Body.String(), `"total_items":1`)
	assert.Equal(t, &orderFilter{Status: "paid"}, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEndpoint_AbsentParamsAreNil(t *testing.T) {
	registry, mock := newShop(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(1, 2))
	mock.ExpectRollback()

	seen := any("untouched")
	rec := serve(t, registry, map[string]QueryEndpoint{"shop/orders": ordersEndpoint(&seen)},
		"/api/shop/orders?format=dict&filter_params=null")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"id": 1, "total": 2}]`, rec.Body.String())
	assert.Nil(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEndpoint_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
	}{
		{"unknown filter key", url.Values{"filter_params": {`{"colour":"red"}`}}},
		{"malformed filter json", url.Values{"filter_params": {`{"status":`}}},
		{"unknown format", url.Values{"format": {"xml"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, mock := newShop(t)
			rec := serve(t, registry, map[string]QueryEndpoint{"shop/orders": ordersEndpoint(nil)},
				"/api/shop/orders?"+tt.query.Encode())

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"failure"`)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQueryEndpoint_ConstructorErrorRollsBack(t *testing.T) {
	registry, mock := newShop(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ep := QueryEndpoint{
		DataSource: "shop",
		Query: func(context.Context, Env, any) (*query.Query, error) {
			return nil, errors.New("boom")
		},
	}
	rec := serve(t, registry, map[string]QueryEndpoint{"shop/broken": ep}, "/api/shop/broken")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEndpoint_NilQueryIsAnError(t *testing.T) {
	registry, mock := newShop(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ds, err := registry.Get("shop")
	require.NoError(t, err)
	ep := QueryEndpoint{
		DataSource: "shop",
		Query:      func(context.Context, Env, any) (*query.Query, error) { return nil, nil },
	}
	_, err = RenderQueryResponse(context.Background(), ds, ep, nil)
	assert.ErrorIs(t, err, errNoQuery)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type csvOrders struct{}

func (csvOrders) DataSourceName() string { return "shop" }

func (csvOrders) Query(_ context.Context, env Env, _ any) (*query.Query, error) {
	b := env.Builder()
	return b.Select("orders", b.Col("id"), b.Col("total")), nil
}

func (csvOrders) ResponseFormat() response.Format { return response.CSV }

func (csvOrders) JSONModifiers() map[string]any { return nil }

func (csvOrders) CSVModifiers() map[string]any {
	return map[string]any{"order_by": "total", "sort": "desc"}
}

func TestEndpointFor_UsesControllerDefaults(t *testing.T) {
	ep := EndpointFor(csvOrders{})
	assert.Equal(t, "shop", ep.DataSource)
	assert.Equal(t, response.CSV, ep.Format)
	assert.Nil(t, ep.NewParams)

	registry, mock := newShop(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id`, `total` FROM `orders` ORDER BY `total` DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).AddRow(3, 4).AddRow(1, 2))
	mock.ExpectRollback()

	rec := serve(t, registry, map[string]QueryEndpoint{"/shop/orders-export/": ep}, "/api/shop/orders-export")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "id,total\n3,4\n1,2", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFrameEndpoint(t *testing.T) {
	ep := FrameEndpoint{
		NewParams: func() any { return &orderFilter{} },
		Frame: func(_ context.Context, params any) (*frame.Frame, error) {
			assert.Nil(t, params)
			f := frame.New("day", "orders")
			f.Append("2024-01-02", 3)
			return f, nil
		},
	}

	mux := http.NewServeMux()
	var wrapped []string
	wrap := func(name, dataSource string, h http.Handler) http.Handler {
		wrapped = append(wrapped, name)
		return h
	}
	require.NoError(t, RegisterFrameEndpoints(mux, "api", map[string]FrameEndpoint{"reports/daily-orders": ep}, wrap))
	assert.Equal(t, []string{"api_reports_daily_orders"}, wrapped)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/daily-orders?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "day,orders\n2024-01-02,3", rec.Body.String())
}

func TestRegisterQueryEndpoints_Errors(t *testing.T) {
	registry, _ := newShop(t)
	mux := http.NewServeMux()

	err := RegisterQueryEndpoints(mux, registry, "/api", map[string]QueryEndpoint{
		"warehouse/stock": {DataSource: "warehouse", Query: ordersEndpoint(nil).Query},
	}, nil)
	assert.ErrorIs(t, err, datasource.ErrUnknownDataSource)

	err = RegisterQueryEndpoints(mux, registry, "/api", map[string]QueryEndpoint{
		"shop/empty": {DataSource: "shop"},
	}, nil)
	assert.ErrorContains(t, err, "no query constructor")

	err = RegisterQueryEndpoints(mux, registry, "/api", map[string]QueryEndpoint{
		"shop/orders":  ordersEndpoint(nil),
		"/shop/orders": ordersEndpoint(nil),
	}, nil)
	assert.ErrorContains(t, err, "duplicate endpoint /api/shop/orders")
}

func TestEndpointNameAndJoinPath(t *testing.T) {
	assert.Equal(t, "api_shop_daily_orders", EndpointName("/api/shop/daily-orders/"))
	assert.Equal(t, "/api/shop", JoinPath("/api/", "/shop"))
	assert.Equal(t, "/shop", JoinPath("", "shop"))
	assert.Equal(t, "/api", JoinPath("api", ""))
}

func TestDecodeParamsWithoutSchema(t *testing.T) {
	params, err := decodeParams(url.Values{"filter_params": {`{"status":"","limit":5}`}}, nil)
	require.NoError(t, err)
	m, ok := params.(map[string]any)
	require.True(t, ok)
	assert.Nil(t, m["status"])
	assert.Contains(t, m, "limit")

	params, err = decodeParams(url.Values{}, nil)
	require.NoError(t, err)
	assert.Nil(t, params)
}
