package serverapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"databuddy/internal/config"
	"databuddy/internal/controller"
	"databuddy/internal/dashboard"
	"databuddy/internal/datasource"
	"databuddy/internal/logging"
	"databuddy/internal/middleware"
	"databuddy/internal/naming"
	"databuddy/internal/observability"
	"databuddy/internal/reports"
	"databuddy/internal/response"
	"databuddy/internal/workers"
)

const (
	healthPath       = "/health"
	metricsPath      = "/metrics"
	adminReflectPath = "/admin/reflect-schema"

	adminReflectTimeout = 30 * time.Second
)

// metricsSet holds the instruments created at startup. Every field is nil
// when metrics are disabled.
type metricsSet struct {
	provider   *observability.MeterProvider
	query      *observability.QueryMetrics
	reflection *observability.ReflectionMetrics
	security   *observability.SecurityMetrics
}

type routeSet struct {
	mux       *http.ServeMux
	reports   []*reports.Report
	catalog   *reports.Catalog
	dashboard *dashboard.Dashboard
}

// buildRoutes mounts the API, dashboard, health, metrics and admin routes.
func buildRoutes(cfg *config.Config, logger *logging.Logger, registry *datasource.Registry, m metricsSet) (*routeSet, error) {
	namer := naming.New(cfg.Naming, logger.Logger)
	reps, err := reports.Build(cfg.Reports, registry, namer)
	if err != nil {
		return nil, err
	}
	catalog := reports.NewCatalog(registry, namer)

	auth, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg), logger, m.security)
	if err != nil {
		return nil, err
	}
	if cfg.Server.Auth.OIDCEnabled {
		logger.Info("OIDC auth middleware enabled")
	}

	mux := http.NewServeMux()
	if err := registerAPI(mux, cfg, logger, registry, reps, catalog, apiWrapper(logger, auth, m.query)); err != nil {
		return nil, err
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard.Enabled {
		dash, err = dashboard.New(cfg.Dashboard)
		if err != nil {
			return nil, err
		}
		var pages *reports.Catalog
		if cfg.Dashboard.TablesEnabled {
			pages = catalog
		}
		reports.RegisterDashboardPages(dash, cfg.Server.APIPrefix, reps, pages)
		dash.Mount(mux, func(h http.Handler) http.Handler {
			return middleware.LoggingMiddleware(logger)(auth(h))
		})
		if dash.Prefix() != "" {
			mux.Handle("GET /{$}", http.RedirectHandler(dash.Prefix()+"/", http.StatusFound))
		}
		logger.Info("dashboard enabled",
			slog.String("prefix", dash.Prefix()+"/"),
			slog.Int("pages", len(dash.Links())),
		)
	}

	mux.HandleFunc("GET "+healthPath, healthHandler(registry, cfg.Server.HealthCheckTimeout, cfg.Workers.Threads))

	if cfg.Observability.MetricsEnabled && m.provider != nil {
		mux.Handle("GET "+metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	if cfg.Server.Admin.SchemaReloadEnabled {
		admin, err := buildAdminHandler(cfg, logger, registry, m)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize admin handler: %w", err)
		}
		mux.Handle("POST "+adminReflectPath, admin)
	}

	return &routeSet{mux: mux, reports: reps, catalog: catalog, dashboard: dash}, nil
}

// registerAPI mounts browse, listing, report and overview endpoints under
// the API prefix.
func registerAPI(mux *http.ServeMux, cfg *config.Config, logger *logging.Logger, registry *datasource.Registry, reps []*reports.Report, catalog *reports.Catalog, wrap controller.Wrapper) error {
	browse := catalog.BrowseEndpoints()

	frames := map[string]controller.FrameEndpoint{}
	sources := []map[string]controller.FrameEndpoint{
		reports.FrameEndpoints(reps),
		catalog.ListingEndpoints(),
		{reports.OverviewPath: reports.OverviewEndpoint(reps, cfg.Workers.Threads)},
	}
	for _, eps := range sources {
		for path := range eps {
			if _, dup := frames[path]; dup {
				return fmt.Errorf("duplicate endpoint path %q", path)
			}
			if _, dup := browse[path]; dup {
				return fmt.Errorf("duplicate endpoint path %q", path)
			}
		}
		maps.Copy(frames, eps)
	}

	if err := controller.RegisterQueryEndpoints(mux, registry, cfg.Server.APIPrefix, browse, wrap); err != nil {
		return err
	}
	if err := controller.RegisterFrameEndpoints(mux, cfg.Server.APIPrefix, frames, wrap); err != nil {
		return err
	}
	logger.Info("API endpoints registered",
		slog.String("prefix", controller.JoinPath(cfg.Server.APIPrefix, "")),
		slog.Int("browse", len(browse)),
		slog.Int("reports", len(reps)),
		slog.Int("frames", len(frames)),
	)
	return nil
}

// apiWrapper orders per-endpoint middleware: logging, then auth, then
// query metrics closest to the handler.
func apiWrapper(logger *logging.Logger, auth func(http.Handler) http.Handler, metrics *observability.QueryMetrics) controller.Wrapper {
	logged := middleware.LoggingMiddleware(logger)
	return func(name, dataSource string, h http.Handler) http.Handler {
		h = middleware.QueryMetricsMiddleware(metrics, name, dataSource)(h)
		return logged(auth(h))
	}
}

func oidcAuthConfig(cfg *config.Config) middleware.OIDCAuthConfig {
	return middleware.OIDCAuthConfig{
		Enabled:   cfg.Server.Auth.OIDCEnabled,
		IssuerURL: cfg.Server.Auth.OIDCIssuerURL,
		Audience:  cfg.Server.Auth.OIDCAudience,
		ClockSkew: cfg.Server.Auth.OIDCClockSkew,
		CAFile:    cfg.Server.Auth.OIDCCAFile,
	}
}

// buildAdminHandler protects schema re-reflection with the admin token when
// one is configured, otherwise with OIDC.
func buildAdminHandler(cfg *config.Config, logger *logging.Logger, registry *datasource.Registry, m metricsSet) (http.Handler, error) {
	var handler http.Handler = http.HandlerFunc(reflectSchemaHandler(registry, m.reflection, m.security))

	switch {
	case cfg.Server.Admin.AuthToken != "":
		tokenAuth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:   cfg.Server.Admin.AuthToken,
			Metrics: m.security,
		})
		if err != nil {
			return nil, err
		}
		handler = tokenAuth(handler)
		logger.Info("admin endpoints require the admin token")
	case cfg.Server.Auth.OIDCEnabled:
		oidcAuth, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg), logger, m.security)
		if err != nil {
			return nil, err
		}
		handler = oidcAuth(handler)
		logger.Info("admin endpoints require authentication")
	default:
		logger.Warn("admin endpoints are not authenticated - configure server.admin.auth_token or OIDC")
	}
	return middleware.LoggingMiddleware(logger)(handler), nil
}

type healthReport struct {
	Status      string            `json:"status"`
	DataSources map[string]string `json:"data_sources"`
}

// healthHandler pings every data source concurrently. Any failure makes the
// whole service unhealthy; error details stay in the log.
func healthHandler(registry *datasource.Registry, timeout time.Duration, threads int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		sources := registry.All()
		calls := make([]workers.Call, len(sources))
		for i, ds := range sources {
			calls[i] = workers.Call{
				Name: ds.Name,
				Fn:   func(ctx context.Context) (any, error) { return nil, ds.Ping(ctx) },
			}
		}
		results, _ := workers.RunInThreads(ctx, threads, calls)

		report := healthReport{Status: "healthy", DataSources: map[string]string{}}
		status := http.StatusOK
		for _, res := range results {
			if res.Err != nil {
				reqLogger.Error("health check failed",
					slog.String("datasource", res.Name),
					slog.String("error", res.Err.Error()),
				)
				report.DataSources[res.Name] = "failed"
				report.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			report.DataSources[res.Name] = "ok"
		}
		if status == http.StatusOK {
			reqLogger.Debug("health check passed")
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

type reflectReport struct {
	Status      string   `json:"status"`
	DataSources []string `json:"data_sources"`
}

func reflectSchemaHandler(registry *datasource.Registry, reflection *observability.ReflectionMetrics, security *observability.SecurityMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		authCtx, authenticated := middleware.AuthFromContext(r.Context())
		logAttrs := []any{
			slog.String("operation", "schema_reflect"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if authenticated {
			logAttrs = append(logAttrs,
				slog.String("authenticated_user", authCtx.Subject),
				slog.String("issuer", authCtx.Issuer),
			)
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		ctx, cancel := context.WithTimeout(logging.WithLogger(r.Context(), reqLogger), adminReflectTimeout)
		defer cancel()

		if err := registry.ReflectAll(ctx, reflection, "admin"); err != nil {
			if security != nil {
				security.RecordAdminEndpointAccess(r.Context(), "schema_reflect", authenticated, false)
			}
			reqLogger.Error("schema reflection failed", slog.String("error", err.Error()))
			response.WriteStatus(w, http.StatusInternalServerError, "Schema reflection failed.")
			return
		}
		if security != nil {
			security.RecordAdminEndpointAccess(r.Context(), "schema_reflect", authenticated, true)
		}

		reflected := []string{}
		for _, ds := range registry.All() {
			if ds.Reflecting() {
				reflected = append(reflected, ds.Name)
			}
		}
		reqLogger.Info("schema reflected", logAttrs...)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(reflectReport{Status: "success", DataSources: reflected})
	}
}
