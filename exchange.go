package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

// ExchangeCode exchanges an authorization code for tokens. The state token
// is consumed first: a missing, expired, replayed, or mismatched state fails
// with an ExchangeError of KindInvalidState before any platform call is made.
//
// The returned record carries encrypted tokens and is NOT persisted; the
// caller decides whether and where to store it. Provider rejections are
// never retried because authorization codes are single-use.
func (m *Manager) ExchangeCode(ctx context.Context, platform providers.Platform, code, stateToken, redirectURI string) (*storage.TokenRecord, error) {
	ctx, span := m.tracer.Start(ctx, "oauth.exchange_code")
	defer span.End()

	state, err := m.stateStore.ConsumeState(ctx, stateToken)
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			m.rejectState(ctx, platform, "state not found or already consumed")
			return nil, &ExchangeError{Kind: KindInvalidState, Platform: platform, Err: ErrInvalidState}
		}
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}

	// A state issued for one platform or redirect URI must not complete an
	// exchange for another; a mismatch is indistinguishable from CSRF.
	if state.Platform != platform {
		m.rejectState(ctx, platform, "platform mismatch")
		return nil, &ExchangeError{Kind: KindInvalidState, Platform: platform, Err: ErrInvalidState}
	}
	if state.RedirectURI != redirectURI {
		m.rejectState(ctx, platform, "redirect URI mismatch")
		return nil, &ExchangeError{Kind: KindInvalidState, Platform: platform, Err: ErrInvalidState}
	}

	cfg, creds, err := m.resolve(platform)
	if err != nil {
		return nil, err
	}

	var opts []oauth2.AuthCodeOption
	if state.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(state.CodeVerifier))
	}

	callCtx, cancel := m.platformCallContext(ctx)
	defer cancel()

	start := time.Now()
	token, err := m.oauth2Config(cfg, creds, redirectURI).Exchange(callCtx, code, opts...)
	if err != nil {
		kind, providerMessage := classifyPlatformError(err)
		m.logger.Warn("Code exchange failed",
			"platform", platform,
			"kind", kind,
			"error", err)
		m.auditor.LogAuthFailure(state.OrganizationID, state.UserID, string(platform), string(kind))
		if m.metrics != nil {
			m.metrics.RecordCodeExchange(ctx, string(platform), string(kind))
		}
		return nil, &ExchangeError{Kind: kind, Platform: platform, ProviderMessage: providerMessage, Err: err}
	}

	result := normalizeToken(token, cfg)

	record, err := m.encryptResult(result, state.OrganizationID, state.UserID, platform)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Code exchange succeeded",
		"platform", platform,
		"organization_id", state.OrganizationID,
		"has_refresh_token", result.RefreshToken != "",
		"duration_ms", time.Since(start).Milliseconds())
	m.auditor.LogTokenIssued(state.OrganizationID, state.UserID, string(platform), result.Scope)
	if m.metrics != nil {
		m.metrics.RecordCodeExchange(ctx, string(platform), "success")
		m.metrics.RecordPlatformCall(ctx, string(platform), "exchange", 200, float64(time.Since(start).Milliseconds()))
	}

	return record, nil
}

// rejectState logs and counts a rejected state token.
func (m *Manager) rejectState(ctx context.Context, platform providers.Platform, reason string) {
	m.logger.Warn("Rejected authorization state",
		"platform", platform,
		"reason", reason)
	if m.metrics != nil {
		m.metrics.RecordStateRejected(ctx, string(platform))
	}
}

// oauth2Config builds the token-endpoint client configuration for a
// platform. Public-client platforms omit the secret; their token request
// authenticates through the PKCE verifier instead.
func (m *Manager) oauth2Config(cfg providers.Config, creds Credentials, redirectURI string) *oauth2.Config {
	secret := creds.ClientSecret
	if cfg.OmitClientSecret {
		secret = ""
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: secret,
		Endpoint:     cfg.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       cfg.Scopes,
	}
}

// platformCallContext derives the context for one outbound platform call:
// the manager's HTTP client is injected for the oauth2 transport and the
// per-call deadline is applied.
func (m *Manager) platformCallContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	return context.WithTimeout(ctx, m.requestTimeout)
}

// normalizeToken maps a platform token response into the common shape.
// Missing expiry means a non-expiring access token; a missing scope field
// falls back to the scopes that were requested.
func normalizeToken(token *oauth2.Token, cfg providers.Config) *ExchangeResult {
	result := &ExchangeResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		TokenType:    token.Type(),
	}

	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		result.Scope = scope
	} else {
		result.Scope = cfg.JoinScopes()
	}

	return result
}

// encryptResult turns a normalized exchange result into a storable record
// with ciphertext token fields.
func (m *Manager) encryptResult(result *ExchangeResult, orgID, userID string, platform providers.Platform) (*storage.TokenRecord, error) {
	accessCiphertext, err := m.encryptor.Encrypt(result.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	var refreshCiphertext string
	if result.RefreshToken != "" {
		refreshCiphertext, err = m.encryptor.Encrypt(result.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	now := time.Now()
	return &storage.TokenRecord{
		Platform:               platform,
		OrganizationID:         orgID,
		UserID:                 userID,
		AccessTokenCiphertext:  accessCiphertext,
		RefreshTokenCiphertext: refreshCiphertext,
		TokenType:              result.TokenType,
		Scope:                  result.Scope,
		IssuedAt:               now,
		ExpiresAt:              result.ExpiresAt,
		UpdatedAt:              now,
	}, nil
}

// classifyPlatformError maps a failed token-endpoint call onto the error
// taxonomy. A response from the platform, whatever its status, is a
// definitive rejection; only deadline and transport failures are classified
// as timeout or unreachable.
func classifyPlatformError(err error) (ErrorKind, string) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return KindProviderRejected, providerMessage(retrieveErr)
	}
	if isTimeoutError(err) {
		return KindTimeout, ""
	}
	return KindUnreachable, ""
}

// providerMessage extracts a loggable message from a token-endpoint error
// response, preferring the structured RFC 6749 error fields over the raw body.
func providerMessage(err *oauth2.RetrieveError) string {
	if err.ErrorCode != "" {
		if err.ErrorDescription != "" {
			return err.ErrorCode + ": " + err.ErrorDescription
		}
		return err.ErrorCode
	}
	body := strings.TrimSpace(string(err.Body))
	if len(body) > 256 {
		body = body[:256]
	}
	return body
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
