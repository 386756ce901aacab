// Package datasource opens the configured databases and keeps the reflected
// schema of each one. A DataSource pairs a pooled *sql.DB with the query
// builder for its dialect; the Registry looks them up by configured name.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"databuddy/internal/config"
	"databuddy/internal/introspection"
	"databuddy/internal/logging"
	"databuddy/internal/observability"
	"databuddy/internal/query"
	"databuddy/internal/sqlutil"
)

var (
	// ErrUnknownDataSource is returned when a name is not configured.
	ErrUnknownDataSource = errors.New("unknown data source")
	// ErrUnknownTable is returned when a table is missing from the reflected schema.
	ErrUnknownTable = errors.New("unknown table")
	// ErrNotReflected is returned when a schema lookup runs before reflection.
	ErrNotReflected = errors.New("schema not reflected")
)

// DataSource is one configured database.
type DataSource struct {
	Name    string
	Config  config.DataSourceConfig
	Dialect sqlutil.Dialect
	DB      *sql.DB
	Builder *query.Builder

	statsReg interface{ Unregister() error }
	schema   atomic.Pointer[introspection.Schema]
}

// New wraps an already opened database handle.
func New(cfg config.DataSourceConfig, db *sql.DB, timedeltaMins int) (*DataSource, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, fmt.Errorf("data source %s: %w", cfg.Name, err)
	}
	return &DataSource{
		Name:    cfg.Name,
		Config:  cfg,
		Dialect: dialect,
		DB:      db,
		Builder: query.NewBuilder(dialect, timedeltaMins),
	}, nil
}

// Schema returns the last reflected schema, or nil before the first reflection.
func (d *DataSource) Schema() *introspection.Schema {
	return d.schema.Load()
}

// Table looks up a reflected table.
func (d *DataSource) Table(name string) (introspection.Table, error) {
	schema := d.Schema()
	if schema == nil {
		return introspection.Table{}, fmt.Errorf("%s: %w", d.Name, ErrNotReflected)
	}
	table, ok := schema.Table(name)
	if !ok {
		return introspection.Table{}, fmt.Errorf("%s.%s: %w", d.Name, name, ErrUnknownTable)
	}
	return table, nil
}

// Models returns the auto-mapped models. It is empty unless automap_models is set.
func (d *DataSource) Models() []introspection.Table {
	if !d.Config.AutomapModels {
		return nil
	}
	return d.Schema().Models()
}

// Reflecting reports whether the source loads schema metadata at all.
func (d *DataSource) Reflecting() bool {
	return d.Config.ReflectMetadata || d.Config.AutomapModels
}

// Reflect reads the schema, applies the configured filter and swaps it in.
// The previous schema stays in place when reflection fails.
func (d *DataSource) Reflect(ctx context.Context, metrics *observability.ReflectionMetrics, trigger string) error {
	start := time.Now()
	schema, err := introspection.Reflect(ctx, d.DB, introspection.Target{
		Dialect:  d.Dialect,
		Database: d.Config.DBName,
		Schema:   d.Config.Schema,
	})
	if err == nil {
		schema = d.Config.Filter.Apply(schema)
	}

	tables := 0
	if schema != nil {
		tables = len(schema.Tables)
	}
	if metrics != nil {
		metrics.RecordReflection(ctx, d.Name, time.Since(start), tables, err, trigger)
	}
	if err != nil {
		return fmt.Errorf("failed to reflect data source %s: %w", d.Name, err)
	}

	d.schema.Store(schema)
	logging.FromContext(ctx).WithDataSource(d.Name).Info("schema reflected",
		slog.Int("tables", tables),
		slog.Int("models", len(d.Models())),
		slog.String("trigger", trigger),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Ping checks connectivity.
func (d *DataSource) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close releases the pool and any registered stats callbacks.
func (d *DataSource) Close() error {
	if d.statsReg != nil {
		_ = d.statsReg.Unregister()
	}
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
