package observability

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{ServiceName: "databuddy-test", ServiceVersion: "1.0.0", Environment: "test"}
}

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestInitMeterProvider(t *testing.T) {
	mp, err := InitMeterProvider(testConfig())
	require.NoError(t, err)
	require.NotNil(t, mp.Exporter())
	assert.NoError(t, mp.Shutdown(context.Background(), discardLogger()))
}

func TestQueryMetrics_RecordedToPrometheus(t *testing.T) {
	mp, err := InitMeterProvider(testConfig())
	require.NoError(t, err)
	defer mp.Shutdown(context.Background(), discardLogger())

	metrics, err := InitQueryMetrics(discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	labels := QueryLabels{Endpoint: "orders_daily", DataSource: "shop", Format: "json"}
	metrics.IncrementActiveRequests(ctx)
	metrics.RecordRows(ctx, labels, 12)
	metrics.RecordRequest(ctx, labels, 15*time.Millisecond, http.StatusOK)
	metrics.RecordRequest(ctx, labels, time.Millisecond, http.StatusBadRequest)
	metrics.DecrementActiveRequests(ctx)

	body := scrape(t)
	assert.Contains(t, body, "databuddy_requests_total")
	assert.Contains(t, body, `endpoint="orders_daily"`)
	assert.Contains(t, body, "databuddy_errors_total")
}

func TestQueryMetricsContext(t *testing.T) {
	assert.Nil(t, QueryMetricsFromContext(context.Background()))

	metrics := &QueryMetrics{}
	ctx := ContextWithQueryMetrics(context.Background(), metrics)
	assert.Same(t, metrics, QueryMetricsFromContext(ctx))

	_, ok := QueryLabelsFromContext(ctx)
	assert.False(t, ok)
	labels := QueryLabels{Endpoint: "orders", DataSource: "shop", Format: "csv"}
	got, ok := QueryLabelsFromContext(ContextWithQueryLabels(ctx, labels))
	assert.True(t, ok)
	assert.Equal(t, labels, got)

	assert.NotPanics(t, func() { RecordRowsFromContext(context.Background(), 3) })
}

func TestReflectionMetrics(t *testing.T) {
	mp, err := InitMeterProvider(testConfig())
	require.NoError(t, err)
	defer mp.Shutdown(context.Background(), discardLogger())

	metrics, err := InitReflectionMetrics(discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordReflection(ctx, "shop", 20*time.Millisecond, 7, nil, "startup")
	metrics.RecordReflection(ctx, "erp", time.Millisecond, 0, errors.New("boom"), "admin")

	body := scrape(t)
	assert.Contains(t, body, "schema_reflect_total")
	assert.True(t, strings.Contains(body, `datasource="shop"`))
	assert.Contains(t, body, "schema_reflect_errors_total")
}

func TestInitSecurityMetrics(t *testing.T) {
	metrics, err := InitSecurityMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		metrics.RecordAuthAttempt(ctx, "/api/orders")
		metrics.RecordAuthFailure(ctx, "/api/orders", "expired")
		metrics.RecordAuthSuccess(ctx, "/api/orders", "https://issuer")
		metrics.RecordAdminEndpointAccess(ctx, "reflect_schema", true, true)
		metrics.RecordUnauthorizedAttempt(ctx, "/admin/reflect-schema", "missing_token")
	})
}

func TestBuildTLSConfig_FileNotFound(t *testing.T) {
	_, err := buildTLSConfig(OTLPExporterConfig{TLSCertFile: "/nonexistent/ca.pem"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read OTLP TLS CA file")
}

func TestBuildTLSConfig_InvalidCertFormat(t *testing.T) {
	path := t.TempDir() + "/ca.pem"
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0o600))

	_, err := buildTLSConfig(OTLPExporterConfig{TLSCertFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OTLP TLS CA file")
}

func TestBuildTLSConfig_MissingClientKeyPair(t *testing.T) {
	path := t.TempDir() + "/client.crt"
	require.NoError(t, os.WriteFile(path, []byte("not-a-cert"), 0o600))

	_, err := buildTLSConfig(OTLPExporterConfig{TLSClientCertFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTLP TLS client cert and key must both be set")
}

func TestParseOTLPProtocol(t *testing.T) {
	p, err := parseOTLPProtocol("")
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, p)

	p, err = parseOTLPProtocol("HTTP")
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, p)

	_, err = parseOTLPProtocol("thrift")
	assert.Error(t, err)
}

func TestExportSettings(t *testing.T) {
	s, err := OTLPExporterConfig{
		Endpoint:    "https://collector:4318/v1/traces",
		Protocol:    "http/protobuf",
		Insecure:    true,
		Compression: "gzip",
	}.settings()
	require.NoError(t, err)
	assert.True(t, s.endpointURL)
	assert.Nil(t, s.tls)
	assert.Len(t, s.traceHTTP(), 3)
	assert.Len(t, s.logHTTP(), 3)

	s, err = OTLPExporterConfig{
		Endpoint:         "collector:4317",
		Headers:          map[string]string{"x-tenant": "shop"},
		RetryEnabled:     true,
		RetryMaxAttempts: 3,
	}.settings()
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolGRPC, s.protocol)
	assert.False(t, s.endpointURL)
	require.NotNil(t, s.tls)
	assert.Equal(t, uint16(tls.VersionTLS12), s.tls.MinVersion)
	assert.Len(t, s.traceGRPC(), 4)
	assert.Len(t, s.logGRPC(), 4)

	_, err = OTLPExporterConfig{Protocol: "thrift"}.settings()
	assert.Error(t, err)
}

func TestTraceSamplerForRatio_Boundaries(t *testing.T) {
	params := func(id byte) sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: context.Background(),
			TraceID:       trace.TraceID{id},
			Name:          "test",
		}
	}
	assert.Equal(t, sdktrace.Drop, traceSamplerForRatio(0).ShouldSample(params(1)).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, traceSamplerForRatio(1).ShouldSample(params(2)).Decision)
}

func TestTraceSamplerForRatio_ParentAwareMidRange(t *testing.T) {
	sampler := traceSamplerForRatio(0.5)

	parentSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{3},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
	decision := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentSampled,
		TraceID:       trace.TraceID{4},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.RecordAndSample, decision)

	parentNotSampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{5},
		SpanID:  trace.SpanID{2},
		Remote:  true,
	}))
	decision = sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: parentNotSampled,
		TraceID:       trace.TraceID{6},
		Name:          "child",
	}).Decision
	assert.Equal(t, sdktrace.Drop, decision)
}
