package introspection

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/sqlutil"
)

func TestReflectMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ?")).
		WithArgs("shop", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
			AddRow("orders", "BASE TABLE").
			AddRow("order_totals", "VIEW"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("shop", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("id", "INT", "NO").
			AddRow("total", "decimal", "YES").
			AddRow("created_at", "datetime", "NO"))
	mock.ExpectQuery(regexp.QuoteMeta("tc.CONSTRAINT_TYPE = ?")).
		WithArgs("shop", "PRIMARY KEY", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("id"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("shop", "order_totals").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "IS_NULLABLE"}).
			AddRow("day", "date", "YES"))

	schema, err := Reflect(context.Background(), db, Target{Dialect: sqlutil.MySQL, Database: "shop"})
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)

	orders := schema.Tables[0]
	assert.Equal(t, "orders", orders.Name)
	assert.False(t, orders.IsView)
	assert.Equal(t, []Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "total", DataType: "decimal", IsNullable: true},
		{Name: "created_at", DataType: "datetime"},
	}, orders.Columns)

	assert.True(t, schema.Tables[1].IsView)
	assert.Len(t, schema.Models(), 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReflectPostgresUsesCatalogAndSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE TABLE_CATALOG = $1 AND TABLE_SCHEMA = $2")).
		WithArgs("shop", "reporting", "BASE TABLE", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}))

	schema, err := Reflect(context.Background(), db, Target{Dialect: sqlutil.Postgres, Database: "shop", Schema: "reporting"})
	require.NoError(t, err)
	assert.Empty(t, schema.Tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReflectPropagatesErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INFORMATION_SCHEMA.TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).AddRow("orders", "BASE TABLE"))
	mock.ExpectQuery("INFORMATION_SCHEMA.COLUMNS").WillReturnError(assert.AnError)

	_, err = Reflect(context.Background(), db, Target{Dialect: sqlutil.MSSQL, Database: "shop"})
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "orders")
}

func TestTargetSchemaDefaults(t *testing.T) {
	assert.Equal(t, "shop", Target{Dialect: sqlutil.MySQL, Database: "shop"}.schemaName())
	assert.Equal(t, "public", Target{Dialect: sqlutil.Postgres, Database: "shop"}.schemaName())
	assert.Equal(t, "dbo", Target{Dialect: sqlutil.MSSQL, Database: "shop"}.schemaName())
}
