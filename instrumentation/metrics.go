package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the OAuth manager.
type Metrics struct {
	// Flow metrics
	AuthorizationURLsIssued metric.Int64Counter
	CodeExchanged           metric.Int64Counter
	TokenRefreshed          metric.Int64Counter
	RefreshDeduplicated     metric.Int64Counter
	TokenRevoked            metric.Int64Counter
	TokenValidated          metric.Int64Counter

	// Security metrics
	StateRejected metric.Int64Counter

	// Platform call metrics
	PlatformCallsTotal   metric.Int64Counter
	PlatformCallDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	meter := inst.Meter("manager")
	m := &Metrics{}

	var err error
	m.AuthorizationURLsIssued, err = meter.Int64Counter(
		"oauth.authorization_urls.issued",
		metric.WithDescription("Number of authorization URLs issued"),
		metric.WithUnit("{url}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization_urls.issued counter: %w", err)
	}

	m.CodeExchanged, err = meter.Int64Counter(
		"oauth.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = meter.Int64Counter(
		"oauth.token.refreshed",
		metric.WithDescription("Number of token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.RefreshDeduplicated, err = meter.Int64Counter(
		"oauth.refresh.deduplicated",
		metric.WithDescription("Number of refresh callers that shared an in-flight refresh"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.deduplicated counter: %w", err)
	}

	m.TokenRevoked, err = meter.Int64Counter(
		"oauth.token.revoked",
		metric.WithDescription("Number of token revocations"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	m.TokenValidated, err = meter.Int64Counter(
		"oauth.token.validated",
		metric.WithDescription("Number of token validation probes"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.validated counter: %w", err)
	}

	m.StateRejected, err = meter.Int64Counter(
		"oauth.state.rejected",
		metric.WithDescription("Number of rejected state tokens (missing, expired, or replayed)"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create state.rejected counter: %w", err)
	}

	m.PlatformCallsTotal, err = meter.Int64Counter(
		"oauth.platform.calls.total",
		metric.WithDescription("Number of outbound platform API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform.calls.total counter: %w", err)
	}

	m.PlatformCallDuration, err = meter.Float64Histogram(
		"oauth.platform.call.duration",
		metric.WithDescription("Outbound platform API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform.call.duration histogram: %w", err)
	}

	return m, nil
}

// RecordAuthorizationURLIssued records an issued authorization URL.
func (m *Metrics) RecordAuthorizationURLIssued(ctx context.Context, platform string, pkce bool) {
	m.AuthorizationURLsIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("pkce", pkce),
	))
}

// RecordCodeExchange records a code exchange attempt with its result.
func (m *Metrics) RecordCodeExchange(ctx context.Context, platform, result string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("result", result),
	))
}

// RecordTokenRefresh records a refresh attempt with its result.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, platform, result string) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("result", result),
	))
}

// RecordRefreshDeduplicated records a caller that attached to an in-flight
// refresh instead of issuing its own platform call.
func (m *Metrics) RecordRefreshDeduplicated(ctx context.Context, platform string) {
	m.RefreshDeduplicated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
	))
}

// RecordTokenRevoked records a revocation. localOnly marks platforms without
// a revocation endpoint.
func (m *Metrics) RecordTokenRevoked(ctx context.Context, platform string, localOnly bool) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("local_only", localOnly),
	))
}

// RecordTokenValidated records a validation probe and its verdict.
func (m *Metrics) RecordTokenValidated(ctx context.Context, platform string, valid bool) {
	m.TokenValidated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.Bool("valid", valid),
	))
}

// RecordStateRejected records a rejected state token.
func (m *Metrics) RecordStateRejected(ctx context.Context, platform string) {
	m.StateRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
	))
}

// RecordPlatformCall records an outbound platform API call.
func (m *Metrics) RecordPlatformCall(ctx context.Context, platform, operation string, statusCode int, durationMs float64) {
	m.PlatformCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	))
	m.PlatformCallDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("operation", operation),
	))
}
