package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication outcomes and admin access.
type SecurityMetrics struct {
	authAttempts         metric.Int64Counter
	authFailures         metric.Int64Counter
	authSuccesses        metric.Int64Counter
	adminEndpointAccess  metric.Int64Counter
	unauthorizedAttempts metric.Int64Counter
}

// InitSecurityMetrics initializes security-specific metrics
func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter("databuddy/security")

	m := &SecurityMetrics{}
	for name, spec := range map[string]struct {
		target      *metric.Int64Counter
		description string
	}{
		"security.auth.attempts.total":         {&m.authAttempts, "Total number of authentication attempts"},
		"security.auth.failures.total":         {&m.authFailures, "Total number of authentication failures"},
		"security.auth.successes.total":        {&m.authSuccesses, "Total number of successful authentications"},
		"security.admin.access.total":          {&m.adminEndpointAccess, "Total number of admin endpoint access attempts"},
		"security.unauthorized.attempts.total": {&m.unauthorizedAttempts, "Total number of unauthorized access attempts"},
	} {
		counter, err := meter.Int64Counter(name, metric.WithDescription(spec.description))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", name, err)
		}
		*spec.target = counter
	}
	return m, nil
}

// RecordAuthAttempt records an authentication attempt
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthFailure records a failed authentication attempt
func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordAuthSuccess records a successful authentication
func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	m.authSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// RecordAdminEndpointAccess records access to admin endpoints
func (m *SecurityMetrics) RecordAdminEndpointAccess(ctx context.Context, operation string, authenticated bool, success bool) {
	m.adminEndpointAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}

// RecordUnauthorizedAttempt records an unauthorized access attempt
func (m *SecurityMetrics) RecordUnauthorizedAttempt(ctx context.Context, endpoint, reason string) {
	m.unauthorizedAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}
