// Package storage defines interfaces for persisting authorization flow state
// and encrypted platform credentials. Implementations are provided in
// subpackages:
//   - storage/memory: in-memory storage for development and testing
//   - storage/valkey: Valkey/Redis-compatible distributed storage for production
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/publora/oauth/providers"
)

// Storage errors.
var (
	// ErrStateNotFound is returned when an authorization state is absent,
	// expired, or already consumed. Callers cannot distinguish the three
	// cases; all of them mean the state parameter must be rejected.
	ErrStateNotFound = errors.New("authorization state not found")

	// ErrTokenNotFound is returned when no token record exists for an
	// (organization, user, platform) triple.
	ErrTokenNotFound = errors.New("token record not found")
)

// AuthorizationState is the ephemeral record behind an OAuth state
// parameter. It binds the state token to the organization/user pair that
// initiated authorization and carries the PKCE verifier when the platform
// requires one.
//
// A state is valid for consumption at most once, within its TTL. Enforcement
// lives in StateStore.ConsumeState.
type AuthorizationState struct {
	// State is the opaque, unguessable token round-tripped through the
	// authorization redirect.
	State string

	OrganizationID string
	UserID         string
	Platform       providers.Platform

	// RedirectURI is the callback URI the authorization URL was built with.
	// The code exchange must present the same URI.
	RedirectURI string

	// CodeVerifier is the PKCE verifier, empty for platforms without PKCE.
	CodeVerifier string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the state's TTL has elapsed at time now.
func (s *AuthorizationState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// TokenRecord is the durable, encrypted credential for one
// (organization, user, platform) triple. Access and refresh tokens are
// stored as ciphertext produced by security.Encryptor; plaintext tokens
// never reach a store.
type TokenRecord struct {
	Platform       providers.Platform
	OrganizationID string
	UserID         string

	AccessTokenCiphertext string

	// RefreshTokenCiphertext is empty when the platform issued no refresh
	// token (e.g. non-expiring access tokens).
	RefreshTokenCiphertext string

	TokenType string
	Scope     string

	IssuedAt time.Time

	// ExpiresAt is zero when the access token does not expire.
	ExpiresAt time.Time

	UpdatedAt time.Time
}

// Key returns the canonical storage key for the record's triple.
func (r *TokenRecord) Key() string {
	return TokenKey(r.OrganizationID, r.UserID, r.Platform)
}

// TokenKey builds the canonical key for an (organization, user, platform)
// triple.
func TokenKey(orgID, userID string, platform providers.Platform) string {
	return fmt.Sprintf("%s/%s/%s", orgID, userID, platform)
}

// StateStore manages ephemeral authorization flow state.
// All methods accept context.Context for tracing and cancellation.
type StateStore interface {
	// SaveState stores an authorization state until its ExpiresAt.
	SaveState(ctx context.Context, state *AuthorizationState) error

	// ConsumeState atomically retrieves and deletes a state by its token.
	// Exactly one caller observes success for a given token, even under
	// concurrent invocation; every other caller (and any caller presenting
	// an expired or unknown token) receives ErrStateNotFound.
	//
	// SECURITY: This operation MUST be atomic (e.g. a mutexed get+delete or
	// a GETDEL on the backing store). A naive read-then-delete opens a
	// replay window for observed redirect URLs.
	ConsumeState(ctx context.Context, stateToken string) (*AuthorizationState, error)
}

// TokenStore manages durable encrypted token records.
// At most one record exists per (organization, user, platform) triple;
// SaveToken replaces any previous record atomically.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveToken upserts a token record.
	SaveToken(ctx context.Context, record *TokenRecord) error

	// GetToken retrieves the record for a triple, or ErrTokenNotFound.
	GetToken(ctx context.Context, orgID, userID string, platform providers.Platform) (*TokenRecord, error)

	// DeleteToken removes the record for a triple. Deleting an absent
	// record is not an error.
	DeleteToken(ctx context.Context, orgID, userID string, platform providers.Platform) error
}
