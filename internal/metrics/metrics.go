// Package metrics holds the OpenTelemetry instruments the authorization
// server emits. With no meter provider configured the instruments are no-ops.
package metrics

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/radiantplatform/oauth-core"

// Metrics holds the metric instruments for the token and key subsystems.
type Metrics struct {
	GrantsIssued  metric.Int64Counter
	GrantFailures metric.Int64Counter
	TokensRevoked metric.Int64Counter
	ReuseDetected metric.Int64Counter
	KeysRotated   metric.Int64Counter
}

// New creates and registers all metric instruments against the given meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.GrantsIssued, err = meter.Int64Counter(
		"oauth.grants.issued",
		metric.WithDescription("Number of successful token grants"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create grants.issued counter")
	}

	m.GrantFailures, err = meter.Int64Counter(
		"oauth.grants.failed",
		metric.WithDescription("Number of rejected token grants"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create grants.failed counter")
	}

	m.TokensRevoked, err = meter.Int64Counter(
		"oauth.tokens.revoked",
		metric.WithDescription("Number of tokens revoked through the revocation endpoint"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create tokens.revoked counter")
	}

	m.ReuseDetected, err = meter.Int64Counter(
		"oauth.refresh.reuse_detected",
		metric.WithDescription("Number of refresh token replay detections triggering lineage revocation"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create refresh.reuse_detected counter")
	}

	m.KeysRotated, err = meter.Int64Counter(
		"oauth.keys.rotated",
		metric.WithDescription("Number of signing key rotations"),
		metric.WithUnit("{rotation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create keys.rotated counter")
	}

	return m, nil
}

// Default creates the instruments on the globally registered meter provider.
func Default() (*Metrics, error) {
	return New(otel.Meter(meterName))
}

// CountGrant records a successful grant by type.
func (m *Metrics) CountGrant(ctx context.Context, grantType string) {
	if m == nil {
		return
	}
	m.GrantsIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// CountGrantFailure records a rejected grant by type and protocol error code.
func (m *Metrics) CountGrantFailure(ctx context.Context, grantType, code string) {
	if m == nil {
		return
	}
	m.GrantFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("error", code),
	))
}

// CountRevocation records a token revocation by token type.
func (m *Metrics) CountRevocation(ctx context.Context, tokenType string) {
	if m == nil {
		return
	}
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("token_type", tokenType)))
}

// CountReuseDetected records a refresh token replay detection.
func (m *Metrics) CountReuseDetected(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReuseDetected.Add(ctx, 1)
}

// CountKeyRotation records a signing key rotation.
func (m *Metrics) CountKeyRotation(ctx context.Context, tenantID string) {
	if m == nil {
		return
	}
	m.KeysRotated.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenantID)))
}
