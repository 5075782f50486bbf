package providers

import (
	"fmt"
	"sort"

	"golang.org/x/oauth2"
)

// ErrUnsupportedPlatform is returned by Registry.Lookup for platforms
// without a registry entry. It indicates a configuration or programmer
// error and is never retried.
var ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

// Registry is an immutable table of platform OAuth configs.
// It is safe for concurrent use: entries are fixed at construction and
// Lookup returns configs by value.
type Registry struct {
	configs map[Platform]Config
}

// NewRegistry creates a registry with the built-in platform table.
func NewRegistry() *Registry {
	return NewRegistryWithConfigs(builtinConfigs())
}

// NewRegistryWithConfigs creates a registry from an explicit config set.
// Useful for tests and for deployments that support a platform subset or
// point at sandbox endpoints.
func NewRegistryWithConfigs(configs []Config) *Registry {
	m := make(map[Platform]Config, len(configs))
	for _, c := range configs {
		m[c.Platform] = c
	}
	return &Registry{configs: m}
}

// Lookup returns the config for a platform, or ErrUnsupportedPlatform.
func (r *Registry) Lookup(platform Platform) (Config, error) {
	c, ok := r.configs[platform]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}
	return c, nil
}

// Platforms returns the registered platforms in sorted order.
func (r *Registry) Platforms() []Platform {
	platforms := make([]Platform, 0, len(r.configs))
	for p := range r.configs {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// builtinConfigs returns the endpoint table for all supported platforms.
// Endpoint URLs and grant quirks follow each platform's published OAuth
// documentation; behavioral differences are expressed as data here so that
// no other component branches on the platform.
func builtinConfigs() []Config {
	return []Config{
		{
			Platform: PlatformTwitter,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://twitter.com/i/oauth2/authorize",
				TokenURL: "https://api.twitter.com/2/oauth2/token",
			},
			Scopes:         []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			ScopeSeparator: " ",
			ResponseType:   "code",
			// Twitter's OAuth 2.0 flow is PKCE-only and treats the app as a
			// public client: the token request carries the verifier, not the
			// client secret.
			RequiresPKCE:     true,
			PKCEMethod:       "S256",
			OmitClientSecret: true,
			RevokeURL:        "https://api.twitter.com/2/oauth2/revoke",
			RevokeMethod:     RevokePostForm,
			IdentityURL:      "https://api.twitter.com/2/users/me",
		},
		{
			Platform: PlatformLinkedIn,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.linkedin.com/oauth/v2/authorization",
				TokenURL: "https://www.linkedin.com/oauth/v2/accessToken",
			},
			Scopes:         []string{"openid", "profile", "w_member_social"},
			ScopeSeparator: " ",
			ResponseType:   "code",
			RevokeURL:      "https://www.linkedin.com/oauth/v2/revoke",
			RevokeMethod:   RevokePostForm,
			IdentityURL:    "https://api.linkedin.com/v2/userinfo",
		},
		{
			Platform: PlatformFacebook,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.facebook.com/v19.0/dialog/oauth",
				TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
			},
			Scopes:         []string{"pages_manage_posts", "pages_read_engagement", "pages_show_list"},
			ScopeSeparator: ",",
			ResponseType:   "code",
			// Facebook revokes by deleting the app's permissions for the user.
			RevokeURL:    "https://graph.facebook.com/v19.0/me/permissions",
			RevokeMethod: RevokeDelete,
			IdentityURL:  "https://graph.facebook.com/v19.0/me",
		},
		{
			Platform: PlatformInstagram,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://api.instagram.com/oauth/authorize",
				TokenURL: "https://api.instagram.com/oauth/access_token",
			},
			Scopes:         []string{"user_profile", "user_media"},
			ScopeSeparator: ",",
			ResponseType:   "code",
			// Instagram Basic Display has no revocation endpoint.
			IdentityURL: "https://graph.instagram.com/me",
		},
		{
			Platform: PlatformTikTok,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.tiktok.com/v2/auth/authorize/",
				TokenURL: "https://open.tiktokapis.com/v2/oauth/token/",
			},
			Scopes:         []string{"user.info.basic", "video.publish"},
			ScopeSeparator: ",",
			ResponseType:   "code",
			RevokeURL:      "https://open.tiktokapis.com/v2/oauth/revoke/",
			RevokeMethod:   RevokePostForm,
			IdentityURL:    "https://open.tiktokapis.com/v2/user/info/",
		},
		{
			Platform: PlatformYouTube,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes: []string{
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube.readonly",
			},
			ScopeSeparator: " ",
			ResponseType:   "code",
			// Google only issues a refresh token for offline access with
			// an explicit consent prompt.
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
			RevokeURL: "https://oauth2.googleapis.com/revoke",
			RevokeMethod:   RevokePostForm,
			IdentityURL:    "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		{
			Platform: PlatformPinterest,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.pinterest.com/oauth/",
				TokenURL: "https://api.pinterest.com/v5/oauth/token",
			},
			Scopes:         []string{"boards:read", "pins:read", "pins:write"},
			ScopeSeparator: ",",
			ResponseType:   "code",
			// Pinterest has no revocation endpoint.
			IdentityURL: "https://api.pinterest.com/v5/user_account",
		},
	}
}
