package reports

import (
	"context"
	"database/sql/driver"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/config"
	"databuddy/internal/controller"
	"databuddy/internal/datasource"
	"databuddy/internal/naming"
)

// timeArg matches a time argument by instant rather than representation.
type timeArg time.Time

func (a timeArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(a))
}

func newSource(t *testing.T, cfg config.DataSourceConfig, offsetMins int) (*datasource.DataSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ds, err := datasource.New(cfg, db, offsetMins)
	require.NoError(t, err)
	return ds, mock
}

func shopConfig() config.DataSourceConfig {
	return config.DataSourceConfig{Name: "shop", DBType: "mysql", DBName: "shop", AutomapModels: true}
}

func dailyOrders(ds *datasource.DataSource) *Report {
	return &Report{
		Name:    "daily_orders",
		Segment: "daily-orders",
		Source:  ds,
		Config: config.ReportConfig{
			DataSource: "shop",
			Table:      "orders",
			DateColumn: "created_at",
			Interval:   "day",
			Sum:        []string{"amount"},
			Count:      true,
			Days:       7,
		},
	}
}

func TestReportFrame_ExplicitRange(t *testing.T) {
	ds, mock := newSource(t, shopConfig(), 330)
	report := dailyOrders(ds)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `orders` WHERE `created_at` >= ? AND `created_at` < ? GROUP BY")).
		WithArgs(
			timeArg(time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC)),
			timeArg(time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC)),
		).
		WillReturnRows(sqlmock.NewRows([]string{"day", "amount", "count"}).
			AddRow("2024-03-02", "75.50", 1).
			AddRow("2024-03-01", "150.00", 3))

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	f, err := report.Frame(context.Background(), &Params{From: &from, To: &to})
	require.NoError(t, err)

	assert.Equal(t, []string{"amount", "count"}, f.Columns)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.Index[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportFrame_DefaultWindow(t *testing.T) {
	ds, mock := newSource(t, shopConfig(), 330)
	ds.Builder = ds.Builder.WithClock(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) })
	report := dailyOrders(ds)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `orders` WHERE `created_at` >= ? GROUP BY")).
		WithArgs(timeArg(time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC))).
		WillReturnRows(sqlmock.NewRows([]string{"day", "amount", "count"}))

	f, err := report.Frame(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportMonthlyWithoutWindow(t *testing.T) {
	ds, _ := newSource(t, shopConfig(), 0)
	report := &Report{Name: "monthly_revenue", Source: ds, Config: config.ReportConfig{
		Table: "orders", DateColumn: "paid_at", Interval: "month", Sum: []string{"amount"},
	}}

	sqlText, args, err := report.Query(nil).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sqlText, "WHERE")
	assert.Contains(t, sqlText, "AS `month`, SUM(COALESCE(`amount`, 0)) AS `amount` FROM `orders` GROUP BY")
	assert.Empty(t, args)
	assert.Equal(t, "Monthly revenue", report.Title())
}

func TestParamsValidate(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 1, 0)
	assert.NoError(t, (&Params{From: &early, To: &late}).Validate())
	assert.NoError(t, (&Params{To: &late}).Validate())
	assert.Error(t, (&Params{From: &late, To: &early}).Validate())
}

func TestBuild(t *testing.T) {
	ds, _ := newSource(t, shopConfig(), 0)
	registry := datasource.NewRegistry()
	registry.Add(ds)

	reports, err := Build(map[string]config.ReportConfig{
		"Monthly Revenue": {DataSource: "shop", Table: "orders", DateColumn: "paid_at", Interval: "month"},
		"daily_orders":    {DataSource: "shop", Table: "orders", DateColumn: "created_at", Interval: "day", Title: "Orders per day"},
	}, registry, naming.Default())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "reports/monthly-revenue", reports[0].Path())
	assert.Equal(t, "Orders per day", reports[1].Title())

	endpoints := FrameEndpoints(reports)
	assert.Contains(t, endpoints, "reports/daily-orders")
	assert.NotNil(t, endpoints["reports/daily-orders"].NewParams)

	_, err = Build(map[string]config.ReportConfig{"x": {DataSource: "warehouse"}}, registry, naming.Default())
	assert.ErrorIs(t, err, datasource.ErrUnknownDataSource)
}

func TestReportEndpointOverHTTP(t *testing.T) {
	ds, mock := newSource(t, shopConfig(), 0)
	report := dailyOrders(ds)
	report.Config.Days = 0

	mock.ExpectQuery(regexp.QuoteMeta("FROM `orders` WHERE `created_at` >= ? GROUP BY")).
		WithArgs(timeArg(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))).
		WillReturnRows(sqlmock.NewRows([]string{"day", "amount", "count"}).AddRow("2024-03-01", "10.00", 2))

	mux := http.NewServeMux()
	require.NoError(t, controller.RegisterFrameEndpoints(mux, "/api", FrameEndpoints([]*Report{report}), nil))

	target := "/api/reports/daily-orders?format=csv&" + url.Values{"filter_params": {`{"from":"2024-03-01"}`}}.Encode()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "day,amount,count\n2024-03-01 00:00:00,10.00,2", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportEndpointRejectsInvertedRange(t *testing.T) {
	ds, mock := newSource(t, shopConfig(), 0)
	mux := http.NewServeMux()
	require.NoError(t, controller.RegisterFrameEndpoints(mux, "/api", FrameEndpoints([]*Report{dailyOrders(ds)}), nil))

	target := "/api/reports/daily-orders?" + url.Values{"filter_params": {`{"from":"2024-03-05","to":"2024-03-01"}`}}.Encode()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "from must not be after to")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverview(t *testing.T) {
	ds, mock := newSource(t, shopConfig(), 0)
	report := dailyOrders(ds)
	report.Config.Days = 0

	mock.ExpectQuery("GROUP BY").
		WillReturnRows(sqlmock.NewRows([]string{"day", "amount", "count"}).
			AddRow("2024-03-01", "10.00", 2).
			AddRow("2024-03-03", "4.00", 1))

	f, err := Overview(context.Background(), []*Report{report}, 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"daily_orders"}, f.Index)
	assert.Equal(t, [][]any{{"Daily orders", "day", 2, "2024-03-03"}}, f.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverviewFailsWhenAReportFails(t *testing.T) {
	ds, mock := newSource(t, shopConfig(), 0)
	report := dailyOrders(ds)
	report.Config.Days = 0
	mock.ExpectQuery("GROUP BY").WillReturnError(assert.AnError)

	_, err := Overview(context.Background(), []*Report{report}, 0)
	assert.ErrorIs(t, err, assert.AnError)
}
