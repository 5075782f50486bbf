package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

const (
	// maxRefreshRetries bounds retries of transient refresh failures.
	maxRefreshRetries = 3

	// refreshBackoffBase is the first retry delay; it doubles per attempt.
	refreshBackoffBase = 500 * time.Millisecond
)

// Refresh exchanges the stored refresh token for a new access token and
// writes the refreshed record back to the token store.
//
// Refreshes are single-flighted per (organization, user, platform) key:
// concurrent callers for the same key share one platform call and receive
// the same result. This matters because many platforms invalidate the old
// refresh token the moment a new one is issued, so a second concurrent
// refresh would destroy the credential. Cancelling a waiting caller's
// context abandons only that caller's wait; the in-flight refresh and its
// other waiters are unaffected.
//
// Transient network and 5xx failures are retried up to 3 times with
// exponential backoff. An invalid_grant or invalid_token response means the
// refresh token itself is dead and surfaces as KindReAuthorizationRequired;
// the only recovery is a fresh authorization flow.
func (m *Manager) Refresh(ctx context.Context, platform providers.Platform, orgID, userID string) (*storage.TokenRecord, error) {
	ctx, span := m.tracer.Start(ctx, "oauth.refresh")
	defer span.End()

	cfg, creds, err := m.resolve(platform)
	if err != nil {
		return nil, err
	}

	key := storage.TokenKey(orgID, userID, platform)

	// The in-flight call runs on a context detached from this caller so
	// that one caller's cancellation cannot abort a refresh other callers
	// are waiting on. The per-call deadline still bounds it.
	flightCtx := context.WithoutCancel(ctx)

	ch := m.refreshGroup.DoChan(key, func() (any, error) {
		return m.doRefresh(flightCtx, cfg, creds, platform, orgID, userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared && m.metrics != nil {
			m.metrics.RecordRefreshDeduplicated(ctx, string(platform))
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*storage.TokenRecord), nil
	}
}

// doRefresh performs the actual refresh. It is only ever invoked through
// the single-flight group.
func (m *Manager) doRefresh(ctx context.Context, cfg providers.Config, creds Credentials, platform providers.Platform, orgID, userID string) (*storage.TokenRecord, error) {
	record, err := m.tokenStore.GetToken(ctx, orgID, userID, platform)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return nil, &RefreshError{
				Kind:     KindReAuthorizationRequired,
				Platform: platform,
				Err:      err,
			}
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	if record.RefreshTokenCiphertext == "" {
		return nil, &RefreshError{
			Kind:     KindReAuthorizationRequired,
			Platform: platform,
			Err:      errors.New("no refresh token stored"),
		}
	}

	refreshToken, err := m.encryptor.Decrypt(record.RefreshTokenCiphertext)
	if err != nil {
		// Undecryptable ciphertext is a data-integrity failure, never
		// swallowed into the retryable taxonomy.
		return nil, fmt.Errorf("failed to decrypt stored refresh token: %w", err)
	}

	ocfg := m.oauth2Config(cfg, creds, "")
	seed := &oauth2.Token{RefreshToken: refreshToken}

	var newToken *oauth2.Token
	var lastErr error
	lastKind := KindUnreachable

	for attempt := 0; attempt <= maxRefreshRetries; attempt++ {
		if attempt > 0 {
			backoff := refreshBackoffBase << (attempt - 1)
			m.logger.Debug("Retrying token refresh",
				"platform", platform,
				"attempt", attempt,
				"backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := m.platformCallContext(ctx)
		newToken, lastErr = ocfg.TokenSource(callCtx, seed).Token()
		cancel()
		if lastErr == nil {
			break
		}

		kind, retryable := classifyRefreshError(lastErr)
		lastKind = kind

		if !retryable {
			m.logger.Warn("Token refresh rejected",
				"platform", platform,
				"kind", kind,
				"error", lastErr)
			m.auditor.LogAuthFailure(orgID, userID, string(platform), string(kind))
			if m.metrics != nil {
				m.metrics.RecordTokenRefresh(ctx, string(platform), string(kind))
			}
			return nil, &RefreshError{Kind: kind, Platform: platform, Err: lastErr}
		}
	}

	if lastErr != nil {
		m.logger.Warn("Token refresh failed after retries",
			"platform", platform,
			"kind", lastKind,
			"retries", maxRefreshRetries,
			"error", lastErr)
		if m.metrics != nil {
			m.metrics.RecordTokenRefresh(ctx, string(platform), string(lastKind))
		}
		return nil, &RefreshError{Kind: lastKind, Platform: platform, Err: lastErr}
	}

	result := normalizeToken(newToken, cfg)
	// Platforms that do not rotate refresh tokens omit the field; the old
	// token stays valid and is kept.
	rotated := result.RefreshToken != "" && result.RefreshToken != refreshToken
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}

	refreshed, err := m.encryptResult(result, orgID, userID, platform)
	if err != nil {
		return nil, err
	}
	refreshed.IssuedAt = record.IssuedAt

	if err := m.tokenStore.SaveToken(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.logger.Info("Token refreshed",
		"platform", platform,
		"organization_id", orgID,
		"rotated", rotated)
	m.auditor.LogTokenRefreshed(orgID, userID, string(platform), rotated)
	if m.metrics != nil {
		m.metrics.RecordTokenRefresh(ctx, string(platform), "success")
	}

	return refreshed, nil
}

// classifyRefreshError maps a failed refresh call onto the error taxonomy
// and decides retryability. invalid_grant and invalid_token mean the stored
// refresh token has been invalidated; other 4xx responses are definitive
// rejections. 5xx responses and transport failures are transient.
func classifyRefreshError(err error) (kind ErrorKind, retryable bool) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_token":
			return KindReAuthorizationRequired, false
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return KindUnreachable, true
		}
		return KindProviderRejected, false
	}
	if isTimeoutError(err) {
		return KindTimeout, true
	}
	return KindUnreachable, true
}
