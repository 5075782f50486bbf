package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/publora/oauth/instrumentation"
	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/security"
	"github.com/publora/oauth/storage"
)

// Manager coordinates OAuth authorization and token lifecycle across
// platforms. It holds no background goroutines and no global state; the
// single-flight refresh group is its only in-process mutable shared state.
type Manager struct {
	registry    *providers.Registry
	credentials map[providers.Platform]Credentials

	stateStore storage.StateStore
	tokenStore storage.TokenStore
	encryptor  *security.Encryptor

	httpClient *http.Client
	logger     *slog.Logger
	auditor    *security.Auditor
	metrics    *instrumentation.Metrics
	tracer     trace.Tracer

	stateTTL       time.Duration
	requestTimeout time.Duration

	// refreshGroup single-flights refreshes per (org, user, platform) key.
	refreshGroup singleflight.Group
}

// New creates a Manager from the given configuration.
func New(cfg Config) (*Manager, error) {
	if cfg.StateStore == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if cfg.TokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if len(cfg.Credentials) == 0 {
		return nil, fmt.Errorf("at least one platform credential is required")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = providers.NewRegistry()
	}

	// Credentials for unknown platforms are a configuration mistake;
	// surface it at construction rather than at first use.
	for platform := range cfg.Credentials {
		if _, err := registry.Lookup(platform); err != nil {
			return nil, fmt.Errorf("credentials configured for unknown platform %q: %w", platform, err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}

	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = DefaultStateTTL
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	var metrics *instrumentation.Metrics
	tracer := tracenoop.NewTracerProvider().Tracer("")
	if cfg.Instrumentation != nil {
		metrics = cfg.Instrumentation.Metrics()
		tracer = cfg.Instrumentation.Tracer("manager")
	}

	return &Manager{
		registry:       registry,
		credentials:    cfg.Credentials,
		stateStore:     cfg.StateStore,
		tokenStore:     cfg.TokenStore,
		encryptor:      cfg.Encryptor,
		httpClient:     httpClient,
		logger:         logger,
		auditor:        security.NewAuditor(logger, cfg.EnableAuditLogging),
		metrics:        metrics,
		tracer:         tracer,
		stateTTL:       stateTTL,
		requestTimeout: requestTimeout,
	}, nil
}

// Registry returns the manager's platform registry.
func (m *Manager) Registry() *providers.Registry {
	return m.registry
}

// resolve looks up the platform config and its credentials.
func (m *Manager) resolve(platform providers.Platform) (providers.Config, Credentials, error) {
	cfg, err := m.registry.Lookup(platform)
	if err != nil {
		return providers.Config{}, Credentials{}, err
	}
	creds, ok := m.credentials[platform]
	if !ok {
		return providers.Config{}, Credentials{}, fmt.Errorf("%w: %s", ErrMissingCredentials, platform)
	}
	return cfg, creds, nil
}

// BuildAuthorizationURL composes the authorization URL for a platform,
// issuing a one-time CSRF state bound to the organization/user pair and,
// for PKCE platforms, a fresh verifier/challenge pair.
//
// extraParams are appended to the URL query and override any
// platform-mandated extras on key collision.
func (m *Manager) BuildAuthorizationURL(ctx context.Context, platform providers.Platform, orgID, userID, redirectURI string, extraParams map[string]string) (*AuthorizationURL, error) {
	ctx, span := m.tracer.Start(ctx, "oauth.build_authorization_url")
	defer span.End()

	cfg, creds, err := m.resolve(platform)
	if err != nil {
		return nil, err
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("redirect URI is required")
	}

	var codeVerifier, codeChallenge string
	if cfg.RequiresPKCE {
		codeVerifier, codeChallenge, err = security.GeneratePKCE()
		if err != nil {
			return nil, fmt.Errorf("failed to generate PKCE pair: %w", err)
		}
	}

	stateToken, err := security.GenerateStateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	now := time.Now()
	state := &storage.AuthorizationState{
		State:          stateToken,
		OrganizationID: orgID,
		UserID:         userID,
		Platform:       platform,
		RedirectURI:    redirectURI,
		CodeVerifier:   codeVerifier,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.stateTTL),
	}
	if err := m.stateStore.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save authorization state: %w", err)
	}

	authURL, err := url.Parse(cfg.Endpoint.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization endpoint for %s: %w", platform, err)
	}

	q := authURL.Query()
	q.Set("client_id", creds.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", cfg.ResponseType)
	q.Set("scope", cfg.JoinScopes())
	q.Set("state", stateToken)
	if cfg.RequiresPKCE {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", cfg.PKCEMethod)
	}
	for k, v := range cfg.ExtraAuthParams {
		q.Set(k, v)
	}
	for k, v := range extraParams {
		q.Set(k, v)
	}
	authURL.RawQuery = q.Encode()

	m.logger.Debug("Issued authorization URL",
		"platform", platform,
		"organization_id", orgID,
		"state_prefix", stateToken[:8])
	m.auditor.LogAuthorizationStarted(orgID, userID, string(platform), cfg.RequiresPKCE)
	if m.metrics != nil {
		m.metrics.RecordAuthorizationURLIssued(ctx, string(platform), cfg.RequiresPKCE)
	}

	return &AuthorizationURL{
		URL:       authURL.String(),
		State:     stateToken,
		ExpiresIn: m.stateTTL,
	}, nil
}

// TokenStatus returns a public-safe view of a stored connection.
// A missing record yields Connected=false with a nil error.
func (m *Manager) TokenStatus(ctx context.Context, platform providers.Platform, orgID, userID string) (*TokenStatus, error) {
	record, err := m.tokenStore.GetToken(ctx, orgID, userID, platform)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return &TokenStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}

	return &TokenStatus{
		Connected:   true,
		Scope:       record.Scope,
		ExpiresAt:   record.ExpiresAt,
		ExpiresSoon: security.IsTokenExpiringSoon(record.ExpiresAt, DefaultExpiringSoonThreshold),
		UpdatedAt:   record.UpdatedAt,
	}, nil
}
