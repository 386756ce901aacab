package datasource

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/config"
	"databuddy/internal/introspection"
	"databuddy/internal/logging"
	"databuddy/internal/sqlutil"
)

func shopConfig() config.DataSourceConfig {
	return config.DataSourceConfig{
		Name:            "shop",
		DBType:          "mysql",
		DBServer:        "db.internal",
		DBName:          "shop",
		ReflectMetadata: true,
		AutomapModels:   true,
		Filter:          introspection.Filter{DenyTables: []string{"audit_*"}},
	}
}

func expectShopSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")).
		WithArgs("shop", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
			AddRow("audit_log", "BASE TABLE").
			AddRow("orders", "BASE TABLE"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("shop", "audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("id", "bigint", "NO"))
	mock.ExpectQuery(regexp.QuoteMeta("tc.CONSTRAINT_TYPE = ?")).
		WithArgs("shop", "PRIMARY KEY", "audit_log").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("id", "int", "NO").
			AddRow("total", "decimal", "YES"))
	mock.ExpectQuery(regexp.QuoteMeta("tc.CONSTRAINT_TYPE = ?")).
		WithArgs("shop", "PRIMARY KEY", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))
}

func TestNew(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds, err := New(shopConfig(), db, 330)
	require.NoError(t, err)
	assert.Equal(t, "shop", ds.Name)
	assert.Equal(t, sqlutil.MySQL, ds.Dialect)
	assert.Equal(t, 330, ds.Builder.OffsetMins())
	assert.Nil(t, ds.Schema())

	_, err = New(config.DataSourceConfig{Name: "bad", DBType: "oracle"}, db, 0)
	assert.Error(t, err)
}

func TestReflectAppliesFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds, err := New(shopConfig(), db, 0)
	require.NoError(t, err)

	_, err = ds.Table("orders")
	assert.ErrorIs(t, err, ErrNotReflected)

	expectShopSchema(mock)
	require.NoError(t, ds.Reflect(logging.WithLogger(context.Background(), logging.Discard()), nil, "startup"))

	assert.Equal(t, []string{"orders"}, ds.Schema().TableNames())
	table, err := ds.Table("ORDERS")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "total"}, table.ColumnNames())

	_, err = ds.Table("audit_log")
	assert.ErrorIs(t, err, ErrUnknownTable)

	require.Len(t, ds.Models(), 1)
	assert.Equal(t, "orders", ds.Models()[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReflectKeepsPreviousSchemaOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds, err := New(shopConfig(), db, 0)
	require.NoError(t, err)

	expectShopSchema(mock)
	require.NoError(t, ds.Reflect(context.Background(), nil, "startup"))

	mock.ExpectQuery("INFORMATION_SCHEMA.TABLES").WillReturnError(errors.New("connection reset"))
	err = ds.Reflect(context.Background(), nil, "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reflect data source shop")

	assert.Equal(t, []string{"orders"}, ds.Schema().TableNames())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelsRequireAutomap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := shopConfig()
	cfg.AutomapModels = false
	ds, err := New(cfg, db, 0)
	require.NoError(t, err)

	expectShopSchema(mock)
	require.NoError(t, ds.Reflect(context.Background(), nil, "startup"))
	assert.Empty(t, ds.Models())
	assert.True(t, ds.Reflecting())
}

func TestWaitForDatabaseRetries(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	cfg := shopConfig()
	cfg.ConnectionTimeout = time.Second
	cfg.ConnectionRetryInterval = time.Millisecond
	ds, err := New(cfg, db, 0)
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	require.NoError(t, waitForDatabase(context.Background(), ds, logging.Discard()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDatabaseSingleAttempt(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	ds, err := New(shopConfig(), db, 0)
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = waitForDatabase(context.Background(), ds, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWaitForDatabaseHonoursContext(t *testing.T) {
	db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	cfg := shopConfig()
	cfg.ConnectionTimeout = time.Minute
	ds, err := New(cfg, db, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitForDatabase(ctx, ds, logging.Discard()), context.Canceled)
}

func TestDBSystem(t *testing.T) {
	assert.Equal(t, "mysql", dbSystem(sqlutil.MySQL).Value.AsString())
	assert.Equal(t, "postgresql", dbSystem(sqlutil.Postgres).Value.AsString())
	assert.Equal(t, "mssql", dbSystem(sqlutil.MSSQL).Value.AsString())
}
