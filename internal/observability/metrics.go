package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueryMetrics tracks query endpoint traffic.
type QueryMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	rowsReturned    metric.Int64Histogram
}

// InitQueryMetrics registers the query endpoint instruments on the global meter provider.
func InitQueryMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	meter := otel.Meter("databuddy")

	requestDuration, err := meter.Float64Histogram(
		"databuddy.request.duration",
		metric.WithDescription("Duration of query endpoint requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"databuddy.requests.total",
		metric.WithDescription("Total number of query endpoint requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"databuddy.errors.total",
		metric.WithDescription("Total number of failed query endpoint requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"databuddy.requests.active",
		metric.WithDescription("Number of in-flight query endpoint requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	rowsReturned, err := meter.Int64Histogram(
		"databuddy.rows.returned",
		metric.WithDescription("Rows materialized per response"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows histogram: %w", err)
	}

	if logger != nil {
		logger.Info("query metrics initialized")
	}
	return &QueryMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		rowsReturned:    rowsReturned,
	}, nil
}

// QueryLabels identify one served request in metrics.
type QueryLabels struct {
	Endpoint   string
	DataSource string
	Format     string
}

func (l QueryLabels) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("endpoint", l.Endpoint),
		attribute.String("datasource", l.DataSource),
		attribute.String("format", l.Format),
	}
}

// RecordRequest records a finished request with its duration and HTTP status.
func (m *QueryMetrics) RecordRequest(ctx context.Context, labels QueryLabels, duration time.Duration, status int) {
	attrs := append(labels.attributes(), attribute.Int("status", status))
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if status >= 400 {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRows records how many rows a response carried.
func (m *QueryMetrics) RecordRows(ctx context.Context, labels QueryLabels, rows int) {
	m.rowsReturned.Record(ctx, int64(rows), metric.WithAttributes(labels.attributes()...))
}

// IncrementActiveRequests increments the active requests counter
func (m *QueryMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *QueryMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

type queryMetricsContextKey struct{}

// ContextWithQueryMetrics stores query metrics in the provided context.
func ContextWithQueryMetrics(ctx context.Context, metrics *QueryMetrics) context.Context {
	return context.WithValue(ctx, queryMetricsContextKey{}, metrics)
}

// QueryMetricsFromContext retrieves query metrics from the context, or nil.
func QueryMetricsFromContext(ctx context.Context) *QueryMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(queryMetricsContextKey{}).(*QueryMetrics)
	return metrics
}

type queryLabelsContextKey struct{}

// ContextWithQueryLabels stores the labels of the request being served.
func ContextWithQueryLabels(ctx context.Context, labels QueryLabels) context.Context {
	return context.WithValue(ctx, queryLabelsContextKey{}, labels)
}

// QueryLabelsFromContext returns the labels stored by ContextWithQueryLabels.
func QueryLabelsFromContext(ctx context.Context) (QueryLabels, bool) {
	if ctx == nil {
		return QueryLabels{}, false
	}
	labels, ok := ctx.Value(queryLabelsContextKey{}).(QueryLabels)
	return labels, ok
}

// RecordRowsFromContext records a row count against the metrics and labels
// carried by ctx. It does nothing when metrics are disabled.
func RecordRowsFromContext(ctx context.Context, rows int) {
	metrics := QueryMetricsFromContext(ctx)
	labels, ok := QueryLabelsFromContext(ctx)
	if metrics == nil || !ok {
		return
	}
	metrics.RecordRows(ctx, labels, rows)
}
