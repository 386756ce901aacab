package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"databuddy/internal/datasource"
	"databuddy/internal/logging"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	m, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if m.provider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return m.provider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("connecting to data sources",
		slog.Any("data_sources", a.cfg.DataSourceNames()),
		slog.Int("timedelta_mins", a.cfg.TimedeltaMins),
	)
	registry, err := datasource.Prepare(logging.WithLogger(ctx, a.logger), a.cfg, datasource.Options{
		MetricsEnabled: a.cfg.Observability.MetricsEnabled,
		TracingEnabled: a.cfg.Observability.TracingEnabled,
		Logger:         a.logger,
	}, m.reflection)
	if err != nil {
		return fmt.Errorf("failed to prepare data sources: %w", err)
	}
	cleanup.push("data sources", func(context.Context) error {
		return registry.Close()
	})

	routes, err := buildRoutes(a.cfg, a.logger, registry, m)
	if err != nil {
		return fmt.Errorf("failed to build routes: %w", err)
	}
	handler := wrapHTTPHandler(a.cfg, a.logger, routes.mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, err := buildServer(a.cfg, a.logger, handler, serverAddr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = m.provider
	a.queryMetrics = m.query
	a.reflectionMetrics = m.reflection
	a.securityMetrics = m.security
	a.tracerProvider = tracerProvider
	a.registry = registry
	a.reports = routes.reports
	a.catalog = routes.catalog
	a.dashboard = routes.dashboard
	a.mux = routes.mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
