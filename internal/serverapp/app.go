// Package serverapp wires configuration, data sources, endpoints and the
// HTTP server into one lifecycle: New, Init, Start, WaitForStop, Shutdown.
package serverapp

import (
	"fmt"
	"net/http"
	"sync"

	"databuddy/internal/config"
	"databuddy/internal/dashboard"
	"databuddy/internal/datasource"
	"databuddy/internal/logging"
	"databuddy/internal/observability"
	"databuddy/internal/reports"
)

// App owns runtime resources for the databuddy server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider     *observability.MeterProvider
	queryMetrics      *observability.QueryMetrics
	reflectionMetrics *observability.ReflectionMetrics
	securityMetrics   *observability.SecurityMetrics
	tracerProvider    *observability.TracerProvider

	registry  *datasource.Registry
	reports   []*reports.Report
	catalog   *reports.Catalog
	dashboard *dashboard.Dashboard

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(cfg.DataSources) == 0 {
		return nil, fmt.Errorf("at least one data source must be configured")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler is the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
