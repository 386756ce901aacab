package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReflectionMetrics tracks schema reflection per data source.
type ReflectionMetrics struct {
	reflectCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram

	mu          sync.Mutex
	lastSuccess map[string]int64
	tableCounts map[string]int64
}

// InitReflectionMetrics initializes schema reflection metrics.
func InitReflectionMetrics(logger *slog.Logger) (*ReflectionMetrics, error) {
	meter := otel.Meter("databuddy")

	reflectCounter, err := meter.Int64Counter(
		"schema.reflect.total",
		metric.WithDescription("Total number of schema reflection attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reflect counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"schema.reflect.errors.total",
		metric.WithDescription("Total number of failed schema reflection attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reflect error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"schema.reflect.duration",
		metric.WithDescription("Duration of schema reflection in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reflect duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"schema.reflect.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful reflection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reflect last success gauge: %w", err)
	}

	tablesGauge, err := meter.Int64ObservableGauge(
		"schema.reflect.tables",
		metric.WithDescription("Tables visible after the last successful reflection"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema tables gauge: %w", err)
	}

	m := &ReflectionMetrics{
		reflectCounter: reflectCounter,
		errorCounter:   errorCounter,
		durationHist:   durationHist,
		lastSuccess:    map[string]int64{},
		tableCounts:    map[string]int64{},
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			for ds, ts := range m.lastSuccess {
				observer.ObserveInt64(lastSuccessGauge, ts, metric.WithAttributes(attribute.String("datasource", ds)))
			}
			for ds, n := range m.tableCounts {
				observer.ObserveInt64(tablesGauge, n, metric.WithAttributes(attribute.String("datasource", ds)))
			}
			return nil
		},
		lastSuccessGauge, tablesGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema reflect gauge callback: %w", err)
	}

	if logger != nil {
		logger.Info("schema reflection metrics initialized")
	}
	return m, nil
}

// RecordReflection records one reflection attempt. tables is ignored on failure.
func (m *ReflectionMetrics) RecordReflection(ctx context.Context, dataSource string, duration time.Duration, tables int, err error, trigger string) {
	attrs := []attribute.KeyValue{
		attribute.String("datasource", dataSource),
		attribute.String("trigger", trigger),
		attribute.Bool("success", err == nil),
	}
	m.reflectCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("datasource", dataSource),
			attribute.String("trigger", trigger),
		))
		return
	}

	m.mu.Lock()
	m.lastSuccess[dataSource] = time.Now().Unix()
	m.tableCounts[dataSource] = int64(tables)
	m.mu.Unlock()
}
