package middleware

import (
	"net/http"
	"strings"
	"time"

	"databuddy/internal/observability"
)

// QueryMetricsMiddleware records request counts, latency and status for one
// query endpoint. The metrics and labels are placed in the request context
// so handlers can report row counts.
func QueryMetricsMiddleware(metrics *observability.QueryMetrics, endpoint, dataSource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			labels := observability.QueryLabels{
				Endpoint:   endpoint,
				DataSource: dataSource,
				Format:     requestedFormat(r),
			}
			ctx := observability.ContextWithQueryMetrics(r.Context(), metrics)
			ctx = observability.ContextWithQueryLabels(ctx, labels)

			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			metrics.RecordRequest(ctx, labels, time.Since(start), rec.status)
		})
	}
}

// requestedFormat is the format label: the ?format argument, or "default"
// when the endpoint's own default applies.
func requestedFormat(r *http.Request) string {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		return "default"
	}
	switch format {
	case "json", "csv", "dict":
		return format
	default:
		return "invalid"
	}
}
