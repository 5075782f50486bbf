package providers

import (
	"strings"

	"golang.org/x/oauth2"
)

// Platform identifies a supported third-party platform.
// The set of platforms is closed: every value used at runtime must resolve
// through a Registry, so adding a platform means adding one registry entry.
type Platform string

// Supported platforms.
const (
	PlatformTwitter   Platform = "twitter"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformPinterest Platform = "pinterest"
)

// RevokeMethod describes how a platform's revocation endpoint is invoked.
type RevokeMethod string

const (
	// RevokeUnsupported means the platform has no server-side revocation
	// endpoint. Revocation is local-only: the caller deletes the stored
	// record and the remote grant remains until it expires or the user
	// removes it through the platform's settings.
	RevokeUnsupported RevokeMethod = ""

	// RevokePostForm revokes via a form-encoded POST with a "token" field.
	RevokePostForm RevokeMethod = "post_form"

	// RevokeDelete revokes via an HTTP DELETE carrying a bearer token.
	RevokeDelete RevokeMethod = "delete"
)

// Config describes a platform's OAuth endpoints and grant behavior.
// Configs are immutable registry data: per-platform differences (PKCE
// requirement, secret omission, revoke method, scope separator) live here
// rather than in conditionals at call sites.
type Config struct {
	// Platform is the platform this config belongs to.
	Platform Platform

	// Endpoint holds the authorization and token endpoint URLs.
	Endpoint oauth2.Endpoint

	// Scopes are the default scopes requested during authorization.
	Scopes []string

	// ScopeSeparator joins Scopes in the authorization URL.
	// Most platforms use a space (RFC 6749); Facebook and Instagram use a comma.
	ScopeSeparator string

	// ResponseType is the authorization response type, normally "code".
	ResponseType string

	// RequiresPKCE indicates the platform mandates RFC 7636 proof-of-possession.
	RequiresPKCE bool

	// PKCEMethod is the code challenge method when RequiresPKCE is set.
	PKCEMethod string

	// OmitClientSecret marks platforms where the PKCE flow uses a public
	// client: the token request carries the code verifier instead of a
	// client secret.
	OmitClientSecret bool

	// ExtraAuthParams are platform-mandated authorization URL parameters
	// beyond the standard set, e.g. Google's access_type=offline to
	// obtain a refresh token. Caller-supplied parameters override these.
	ExtraAuthParams map[string]string

	// RevokeURL is the token revocation endpoint, empty when unsupported.
	RevokeURL string

	// RevokeMethod selects how RevokeURL is invoked.
	RevokeMethod RevokeMethod

	// IdentityURL is a lightweight authenticated endpoint used to probe
	// whether an access token is still accepted by the platform.
	IdentityURL string
}

// JoinScopes joins the config's scopes using its separator.
func (c Config) JoinScopes() string {
	return JoinScopes(c.Scopes, c.ScopeSeparator)
}

// JoinScopes joins scopes with the given separator, defaulting to a space.
func JoinScopes(scopes []string, separator string) string {
	if separator == "" {
		separator = " "
	}
	return strings.Join(scopes, separator)
}
