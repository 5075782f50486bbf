package oauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/publora/oauth/instrumentation"
	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/security"
	"github.com/publora/oauth/storage"
)

const (
	// DefaultStateTTL is how long an issued state token remains consumable.
	DefaultStateTTL = 600 * time.Second

	// DefaultRequestTimeout is the deadline applied to every outbound
	// platform HTTP call.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultExpiringSoonThreshold is the window TokenStatus uses to flag
	// tokens that should be refreshed proactively.
	DefaultExpiringSoonThreshold = 10 * time.Minute
)

// Credentials holds the OAuth client credentials for one platform.
type Credentials struct {
	// ClientID is the platform-issued OAuth client ID (required).
	ClientID string

	// ClientSecret is the OAuth client secret. Optional for platforms
	// whose PKCE flow treats the app as a public client.
	ClientSecret string
}

// Config holds the Manager configuration. Credentials, StateStore,
// TokenStore, and Encryptor are required; everything else has defaults.
type Config struct {
	// Credentials maps each enabled platform to its client credentials.
	// Platforms without an entry are rejected with ErrMissingCredentials.
	Credentials map[providers.Platform]Credentials

	// Registry overrides the built-in platform table. Optional.
	Registry *providers.Registry

	// StateStore persists ephemeral authorization state.
	StateStore storage.StateStore

	// TokenStore persists encrypted token records.
	TokenStore storage.TokenStore

	// Encryptor encrypts tokens before they reach the TokenStore.
	Encryptor *security.Encryptor

	// HTTPClient is a custom HTTP client for platform calls. Optional.
	HTTPClient *http.Client

	// Logger for structured logging. Optional, defaults to slog.Default().
	Logger *slog.Logger

	// Instrumentation provides OpenTelemetry metrics and tracing. Optional.
	Instrumentation *instrumentation.Instrumentation

	// EnableAuditLogging enables credential lifecycle audit events
	// (sensitive identifiers hashed, tokens never logged).
	EnableAuditLogging bool

	// StateTTL overrides DefaultStateTTL. Optional.
	StateTTL time.Duration

	// RequestTimeout overrides DefaultRequestTimeout. Optional.
	RequestTimeout time.Duration
}

// envCredentials is the environment layout for CredentialsFromEnv.
// One CLIENT_ID/CLIENT_SECRET pair per platform, e.g. TWITTER_CLIENT_ID.
type envCredentials struct {
	TwitterClientID       string `env:"TWITTER_CLIENT_ID"`
	TwitterClientSecret   string `env:"TWITTER_CLIENT_SECRET"`
	LinkedInClientID      string `env:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret  string `env:"LINKEDIN_CLIENT_SECRET"`
	FacebookClientID      string `env:"FACEBOOK_CLIENT_ID"`
	FacebookClientSecret  string `env:"FACEBOOK_CLIENT_SECRET"`
	InstagramClientID     string `env:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string `env:"INSTAGRAM_CLIENT_SECRET"`
	TikTokClientID        string `env:"TIKTOK_CLIENT_ID"`
	TikTokClientSecret    string `env:"TIKTOK_CLIENT_SECRET"`
	YouTubeClientID       string `env:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret   string `env:"YOUTUBE_CLIENT_SECRET"`
	PinterestClientID     string `env:"PINTEREST_CLIENT_ID"`
	PinterestClientSecret string `env:"PINTEREST_CLIENT_SECRET"`
}

// CredentialsFromEnv loads per-platform client credentials from the
// environment. Platforms whose CLIENT_ID variable is unset or empty are
// simply omitted, so deployments enable platforms by configuration alone.
func CredentialsFromEnv() (map[providers.Platform]Credentials, error) {
	var ec envCredentials
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("failed to parse credentials from environment: %w", err)
	}

	creds := make(map[providers.Platform]Credentials)
	add := func(platform providers.Platform, id, secret string) {
		if id != "" {
			creds[platform] = Credentials{ClientID: id, ClientSecret: secret}
		}
	}

	add(providers.PlatformTwitter, ec.TwitterClientID, ec.TwitterClientSecret)
	add(providers.PlatformLinkedIn, ec.LinkedInClientID, ec.LinkedInClientSecret)
	add(providers.PlatformFacebook, ec.FacebookClientID, ec.FacebookClientSecret)
	add(providers.PlatformInstagram, ec.InstagramClientID, ec.InstagramClientSecret)
	add(providers.PlatformTikTok, ec.TikTokClientID, ec.TikTokClientSecret)
	add(providers.PlatformYouTube, ec.YouTubeClientID, ec.YouTubeClientSecret)
	add(providers.PlatformPinterest, ec.PinterestClientID, ec.PinterestClientSecret)

	return creds, nil
}
