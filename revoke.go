package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

// Revoke revokes a stored credential. The remote revocation call is
// best-effort: its failure is reported in RevocationResult.RemoteErr but
// never prevents deletion of the local record. Platforms without a
// revocation endpoint yield LocalOnly=true.
//
// An error is returned only for local failures (unknown platform, store
// errors); in that case the local record may still exist.
func (m *Manager) Revoke(ctx context.Context, platform providers.Platform, orgID, userID string) (*RevocationResult, error) {
	ctx, span := m.tracer.Start(ctx, "oauth.revoke")
	defer span.End()

	cfg, creds, err := m.resolve(platform)
	if err != nil {
		return nil, err
	}

	result := &RevocationResult{
		LocalOnly: cfg.RevokeMethod == providers.RevokeUnsupported,
	}

	record, err := m.tokenStore.GetToken(ctx, orgID, userID, platform)
	switch {
	case errors.Is(err, storage.ErrTokenNotFound):
		// Nothing stored, nothing to revoke.
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	if !result.LocalOnly {
		if remoteErr := m.revokeRemote(ctx, cfg, creds, record); remoteErr != nil {
			result.RemoteErr = &RevocationError{Platform: platform, Err: remoteErr}
			m.logger.Warn("Remote revocation failed, deleting local record anyway",
				"platform", platform,
				"error", remoteErr)
		}
	}

	if err := m.tokenStore.DeleteToken(ctx, orgID, userID, platform); err != nil {
		return nil, fmt.Errorf("failed to delete token record: %w", err)
	}

	m.logger.Info("Token revoked",
		"platform", platform,
		"organization_id", orgID,
		"local_only", result.LocalOnly)
	m.auditor.LogTokenRevoked(orgID, userID, string(platform), result.LocalOnly)
	if m.metrics != nil {
		m.metrics.RecordTokenRevoked(ctx, string(platform), result.LocalOnly)
	}

	return result, nil
}

// revokeRemote invokes the platform's revocation endpoint with the method
// its registry entry prescribes.
func (m *Manager) revokeRemote(ctx context.Context, cfg providers.Config, creds Credentials, record *storage.TokenRecord) error {
	accessToken, err := m.encryptor.Decrypt(record.AccessTokenCiphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt stored access token: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
	defer cancel()

	var req *http.Request
	switch cfg.RevokeMethod {
	case providers.RevokePostForm:
		form := url.Values{}
		form.Set("token", accessToken)
		form.Set("token_type_hint", "access_token")
		form.Set("client_id", creds.ClientID)
		if !cfg.OmitClientSecret && creds.ClientSecret != "" {
			form.Set("client_secret", creds.ClientSecret)
		}
		req, err = http.NewRequestWithContext(callCtx, http.MethodPost, cfg.RevokeURL, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("failed to build revocation request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	case providers.RevokeDelete:
		req, err = http.NewRequestWithContext(callCtx, http.MethodDelete, cfg.RevokeURL, nil)
		if err != nil {
			return fmt.Errorf("failed to build revocation request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

	default:
		return fmt.Errorf("unknown revocation method %q", cfg.RevokeMethod)
	}

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if m.metrics != nil {
		m.metrics.RecordPlatformCall(ctx, string(cfg.Platform), "revoke", resp.StatusCode, float64(time.Since(start).Milliseconds()))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("revocation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}
