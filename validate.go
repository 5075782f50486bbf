package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/publora/oauth/providers"
)

// Validate probes whether the platform still accepts an access token by
// calling its identity endpoint. The token is supplied as stored ciphertext.
//
// A definitive 401/403 yields Valid=false with a nil error. A network
// failure or platform-side error yields an ExchangeError of KindUnreachable
// or KindTimeout instead: the token may well still be valid, and callers
// must not delete credentials because the platform was down.
func (m *Manager) Validate(ctx context.Context, platform providers.Platform, ciphertext string) (*ValidationResult, error) {
	ctx, span := m.tracer.Start(ctx, "oauth.validate")
	defer span.End()

	cfg, _, err := m.resolve(platform)
	if err != nil {
		return nil, err
	}
	if cfg.IdentityURL == "" {
		return nil, fmt.Errorf("platform %s has no identity endpoint", platform)
	}

	accessToken, err := m.encryptor.Decrypt(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, cfg.IdentityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		kind := KindUnreachable
		if isTimeoutError(err) {
			kind = KindTimeout
		}
		return nil, &ExchangeError{Kind: kind, Platform: platform, Err: err}
	}
	defer resp.Body.Close()

	if m.metrics != nil {
		m.metrics.RecordPlatformCall(ctx, string(platform), "validate", resp.StatusCode, float64(time.Since(start).Milliseconds()))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		m.logger.Info("Token no longer accepted by platform",
			"platform", platform,
			"status", resp.StatusCode)
		if m.metrics != nil {
			m.metrics.RecordTokenValidated(ctx, string(platform), false)
		}
		return &ValidationResult{Valid: false}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result := &ValidationResult{Valid: true}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if readErr == nil {
			var identity map[string]any
			if json.Unmarshal(body, &identity) == nil {
				result.Identity = identity
			}
		}
		if m.metrics != nil {
			m.metrics.RecordTokenValidated(ctx, string(platform), true)
		}
		return result, nil

	default:
		// Any other status says nothing definitive about the token.
		return nil, &ExchangeError{
			Kind:     KindUnreachable,
			Platform: platform,
			Err:      fmt.Errorf("identity endpoint returned %d", resp.StatusCode),
		}
	}
}
