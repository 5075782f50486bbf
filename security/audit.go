package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles credential lifecycle event logging with PII protection.
// User identifiers are hashed before logging; tokens never appear in events.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new auditor. When enabled is false all Log methods
// are no-ops.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a credential lifecycle audit event.
type Event struct {
	Type           string
	OrganizationID string
	UserID         string
	Platform       string
	Details        map[string]any
	Timestamp      time.Time
}

// LogEvent logs an audit event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("credential_audit",
		"event_type", event.Type,
		"organization_id", event.OrganizationID,
		"user_id_hash", hashForLogging(event.UserID),
		"platform", event.Platform,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogAuthorizationStarted logs issuance of an authorization URL.
func (a *Auditor) LogAuthorizationStarted(orgID, userID, platform string, pkce bool) {
	a.LogEvent(Event{
		Type:           "authorization_started",
		OrganizationID: orgID,
		UserID:         userID,
		Platform:       platform,
		Details: map[string]any{
			"pkce": pkce,
		},
	})
}

// LogTokenIssued logs a successful code exchange.
func (a *Auditor) LogTokenIssued(orgID, userID, platform, scope string) {
	a.LogEvent(Event{
		Type:           "token_issued",
		OrganizationID: orgID,
		UserID:         userID,
		Platform:       platform,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs a successful refresh. rotated indicates whether the
// platform issued a new refresh token.
func (a *Auditor) LogTokenRefreshed(orgID, userID, platform string, rotated bool) {
	a.LogEvent(Event{
		Type:           "token_refreshed",
		OrganizationID: orgID,
		UserID:         userID,
		Platform:       platform,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogTokenRevoked logs a revocation. localOnly indicates the platform has no
// revocation endpoint and only the stored record was removed.
func (a *Auditor) LogTokenRevoked(orgID, userID, platform string, localOnly bool) {
	a.LogEvent(Event{
		Type:           "token_revoked",
		OrganizationID: orgID,
		UserID:         userID,
		Platform:       platform,
		Details: map[string]any{
			"local_only": localOnly,
		},
	})
}

// LogAuthFailure logs a failed exchange or refresh.
func (a *Auditor) LogAuthFailure(orgID, userID, platform, reason string) {
	a.LogEvent(Event{
		Type:           "auth_failure",
		OrganizationID: orgID,
		UserID:         userID,
		Platform:       platform,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
