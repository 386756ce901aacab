package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"databuddy/internal/config"
	"databuddy/internal/logging"
	"databuddy/internal/sqlutil"
)

// Options control how Open connects.
type Options struct {
	Pool           config.PoolConfig
	TimedeltaMins  int
	MetricsEnabled bool
	TracingEnabled bool
	Logger         *logging.Logger
}

// Open connects to a configured data source, applies its pool settings and
// waits until the database answers.
func Open(ctx context.Context, cfg config.DataSourceConfig, opts Options) (*DataSource, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithDataSource(cfg.Name)

	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, fmt.Errorf("data source %s: %w", cfg.Name, err)
	}

	// Custom TLS configuration for verify-ca/verify-full modes.
	if err := cfg.RegisterTLS(); err != nil {
		return nil, fmt.Errorf("failed to register database TLS config for %s: %w", cfg.Name, err)
	}

	dsn, err := cfg.DriverDSN()
	if err != nil {
		return nil, fmt.Errorf("data source %s: %w", cfg.Name, err)
	}

	db, statsReg, err := connect(dialect, dsn, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open data source %s: %w", cfg.Name, err)
	}

	db.SetMaxOpenConns(opts.Pool.MaxOpen)
	db.SetMaxIdleConns(opts.Pool.MaxIdle)
	db.SetConnMaxLifetime(opts.Pool.MaxLifetime)

	ds, err := New(cfg, db, opts.TimedeltaMins)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ds.statsReg = statsReg

	if err := waitForDatabase(ctx, ds, logger); err != nil {
		_ = ds.Close()
		return nil, err
	}

	logger.Info("connected to data source",
		slog.String("uri", cfg.RedactedURI()),
		slog.String("dialect", string(dialect)),
		slog.Int("pool_max_open", opts.Pool.MaxOpen),
		slog.Int("pool_max_idle", opts.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", opts.Pool.MaxLifetime),
	)
	return ds, nil
}

func connect(dialect sqlutil.Dialect, dsn string, opts Options, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	driver := dialect.DriverName()
	if !opts.MetricsEnabled && !opts.TracingEnabled {
		db, err := sql.Open(driver, dsn)
		return db, nil, err
	}

	system := dbSystem(dialect)
	otelOpts := []otelsql.Option{otelsql.WithAttributes(system)}
	if opts.TracingEnabled {
		otelOpts = append(otelOpts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open(driver, dsn, otelOpts...)
	if err != nil {
		return nil, nil, err
	}

	var statsReg interface{ Unregister() error }
	if opts.MetricsEnabled {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", opts.MetricsEnabled),
		slog.Bool("tracing", opts.TracingEnabled),
	)
	return db, statsReg, nil
}

func dbSystem(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect {
	case sqlutil.Postgres:
		return semconv.DBSystemPostgreSQL
	case sqlutil.MSSQL:
		return semconv.DBSystemMSSQL
	default:
		return semconv.DBSystemMySQL
	}
}

func waitForDatabase(ctx context.Context, ds *DataSource, logger *logging.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := ds.Config.ConnectionTimeout
	interval := ds.Config.ConnectionRetryInterval

	// A zero timeout means a single attempt.
	if timeout == 0 {
		return ds.Ping(ctx)
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := ds.Ping(ctx)

		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("data source %s not available after %v: %w", ds.Name, timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}
