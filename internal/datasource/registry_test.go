package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"databuddy/internal/config"
)

func newMockSource(t *testing.T, cfg config.DataSourceConfig) (*DataSource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	ds, err := New(cfg, db, 0)
	require.NoError(t, err)
	return ds, mock
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	shop, _ := newMockSource(t, shopConfig())
	erp, _ := newMockSource(t, config.DataSourceConfig{Name: "erp", DBType: "mssql", DBName: "erp"})
	registry.Add(shop)
	registry.Add(erp)

	assert.Equal(t, []string{"erp", "shop"}, registry.Names())

	got, err := registry.Get("shop")
	require.NoError(t, err)
	assert.Same(t, shop, got)

	builder, err := registry.QueryBuilder("erp")
	require.NoError(t, err)
	assert.Same(t, erp.Builder, builder)

	_, err = registry.Get("warehouse")
	assert.ErrorIs(t, err, ErrUnknownDataSource)
	_, err = registry.QueryBuilder("warehouse")
	assert.ErrorIs(t, err, ErrUnknownDataSource)
}

func TestRegistryReflectAllSkipsPlainSources(t *testing.T) {
	registry := NewRegistry()
	shop, shopMock := newMockSource(t, shopConfig())
	plain, plainMock := newMockSource(t, config.DataSourceConfig{Name: "plain", DBType: "postgres", DBName: "plain"})
	registry.Add(shop)
	registry.Add(plain)

	expectShopSchema(shopMock)
	require.NoError(t, registry.ReflectAll(context.Background(), nil, "admin"))
	assert.NotNil(t, shop.Schema())
	assert.Nil(t, plain.Schema())
	assert.NoError(t, shopMock.ExpectationsWereMet())
	assert.NoError(t, plainMock.ExpectationsWereMet())
}

func TestRegistryReflectAllJoinsErrors(t *testing.T) {
	registry := NewRegistry()
	shop, mock := newMockSource(t, shopConfig())
	registry.Add(shop)

	mock.ExpectQuery("INFORMATION_SCHEMA.TABLES").WillReturnError(errors.New("timeout"))
	err := registry.ReflectAll(context.Background(), nil, "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestRegistryClose(t *testing.T) {
	registry := NewRegistry()
	shop, mock := newMockSource(t, shopConfig())
	registry.Add(shop)

	mock.ExpectClose()
	require.NoError(t, registry.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrepareFailsOnBadDialect(t *testing.T) {
	cfg := &config.Config{DataSources: map[string]config.DataSourceConfig{
		"legacy": {DBType: "oracle", DBServer: "db", DBName: "legacy"},
	}}
	_, err := Prepare(context.Background(), cfg, Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy")
}
