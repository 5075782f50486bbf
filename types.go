package oauth

import (
	"time"
)

// AuthorizationURL is the result of BuildAuthorizationURL.
type AuthorizationURL struct {
	// URL is the fully qualified provider authorization URL to redirect
	// the user to.
	URL string

	// State is the one-time CSRF state token embedded in the URL. The
	// callback must present it to ExchangeCode within ExpiresIn.
	State string

	// ExpiresIn is how long the state token remains consumable.
	ExpiresIn time.Duration
}

// ExchangeResult is the normalized shape every platform's raw token
// response is mapped into before it becomes a storage.TokenRecord.
type ExchangeResult struct {
	AccessToken string

	// RefreshToken is empty when the platform issued none.
	RefreshToken string

	// ExpiresAt is zero when the access token does not expire.
	ExpiresAt time.Time

	Scope     string
	TokenType string
}

// ValidationResult is the outcome of a token validation probe.
type ValidationResult struct {
	// Valid reports whether the platform still accepts the token.
	// A definitive 401/403 yields Valid=false with a nil error; an
	// unreachable platform yields an error instead, so callers never
	// mistake an outage for a revoked token.
	Valid bool

	// Identity holds the platform's identity response when Valid, e.g.
	// the authenticated account's id and name fields. May be nil when the
	// platform returned a non-JSON body.
	Identity map[string]any
}

// RevocationResult is the outcome of Revoke. The stored record is always
// deleted locally; the fields describe what happened on the platform side.
type RevocationResult struct {
	// LocalOnly is true when the platform has no revocation endpoint.
	// The remote grant remains until it expires or the user removes it
	// through the platform's own settings.
	LocalOnly bool

	// RemoteErr holds the remote revocation failure, if any. It is
	// advisory: local deletion has already completed by the time the
	// caller sees it.
	RemoteErr error
}

// TokenStatus is a public-safe view of a stored connection. It carries no
// token material and can be returned to end users directly.
type TokenStatus struct {
	Connected   bool
	Scope       string
	ExpiresAt   time.Time
	ExpiresSoon bool
	UpdatedAt   time.Time
}
