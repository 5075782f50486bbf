package oauth

import (
	"errors"
	"fmt"

	"github.com/publora/oauth/providers"
)

// ErrorKind classifies flow failures for callers that need to choose a
// recovery path (retry, re-authorize, or give up).
type ErrorKind string

const (
	// KindInvalidState marks a missing, expired, or replayed state token.
	// The user must restart the authorization flow.
	KindInvalidState ErrorKind = "invalid_state"

	// KindProviderRejected marks a definitive rejection by the platform's
	// token endpoint. Never retried: authorization codes are single-use,
	// so a retry would fail identically or mask a genuine rejection.
	KindProviderRejected ErrorKind = "provider_rejected"

	// KindReAuthorizationRequired marks an invalidated refresh token.
	// Terminal: the only recovery is a fresh authorization flow, so this
	// must surface to the human-facing layer as "please reconnect".
	KindReAuthorizationRequired ErrorKind = "reauthorization_required"

	// KindTimeout marks a platform call that exceeded its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindUnreachable marks a network failure or persistent 5xx after
	// retries. Distinct from rejection so callers do not delete valid
	// credentials just because the platform was down.
	KindUnreachable ErrorKind = "unreachable"
)

// ErrInvalidState is the sentinel behind KindInvalidState errors.
// It covers CSRF, replay, and expiry uniformly: callers cannot and should
// not distinguish them.
var ErrInvalidState = errors.New("invalid, expired, or already used authorization state")

// ErrMissingCredentials is returned when a platform is registered but no
// client credentials were configured for it.
var ErrMissingCredentials = errors.New("no client credentials configured for platform")

// ExchangeError describes a failed authorization-code exchange or token
// validation probe.
type ExchangeError struct {
	Kind     ErrorKind
	Platform providers.Platform

	// ProviderMessage carries the platform's error payload for
	// KindProviderRejected, empty otherwise.
	ProviderMessage string

	Err error
}

func (e *ExchangeError) Error() string {
	if e.ProviderMessage != "" {
		return fmt.Sprintf("%s exchange failed (%s): %s", e.Platform, e.Kind, e.ProviderMessage)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s exchange failed (%s): %v", e.Platform, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s exchange failed (%s)", e.Platform, e.Kind)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// RefreshError describes a failed token refresh.
type RefreshError struct {
	Kind     ErrorKind
	Platform providers.Platform
	Err      error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s refresh failed (%s): %v", e.Platform, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s refresh failed (%s)", e.Platform, e.Kind)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// RevocationError describes a failed remote revocation call. It is
// advisory: callers log it and proceed with local token deletion, never the
// other way around.
type RevocationError struct {
	Platform providers.Platform
	Err      error
}

func (e *RevocationError) Error() string {
	return fmt.Sprintf("%s revocation failed: %v", e.Platform, e.Err)
}

func (e *RevocationError) Unwrap() error {
	return e.Err
}
