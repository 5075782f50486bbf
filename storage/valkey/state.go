package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

// authorizationStateJSON is the wire representation of an authorization state.
type authorizationStateJSON struct {
	State          string    `json:"state"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Platform       string    `json:"platform"`
	RedirectURI    string    `json:"redirect_uri"`
	CodeVerifier   string    `json:"code_verifier,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func toAuthorizationStateJSON(state *storage.AuthorizationState) *authorizationStateJSON {
	return &authorizationStateJSON{
		State:          state.State,
		OrganizationID: state.OrganizationID,
		UserID:         state.UserID,
		Platform:       string(state.Platform),
		RedirectURI:    state.RedirectURI,
		CodeVerifier:   state.CodeVerifier,
		CreatedAt:      state.CreatedAt,
		ExpiresAt:      state.ExpiresAt,
	}
}

func fromAuthorizationStateJSON(j *authorizationStateJSON) *storage.AuthorizationState {
	return &storage.AuthorizationState{
		State:          j.State,
		OrganizationID: j.OrganizationID,
		UserID:         j.UserID,
		Platform:       providers.Platform(j.Platform),
		RedirectURI:    j.RedirectURI,
		CodeVerifier:   j.CodeVerifier,
		CreatedAt:      j.CreatedAt,
		ExpiresAt:      j.ExpiresAt,
	}
}

// SaveState stores an authorization state with a TTL derived from its
// ExpiresAt. The server-side TTL makes expiry authoritative even if the
// process that issued the state dies.
func (s *Store) SaveState(ctx context.Context, state *storage.AuthorizationState) error {
	if state == nil || state.State == "" {
		return fmt.Errorf("invalid authorization state")
	}

	data, err := json.Marshal(toAuthorizationStateJSON(state))
	if err != nil {
		return fmt.Errorf("failed to marshal authorization state: %w", err)
	}

	ttl := calculateTTL(state.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization state already expired")
	}

	key := s.stateKey(state.State)
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save authorization state: %w", err)
	}

	s.logger.Debug("Saved authorization state",
		"state_prefix", safeTruncate(state.State, tokenIDLogLength),
		"platform", state.Platform)
	return nil
}

// ConsumeState atomically retrieves and deletes a state via GETDEL.
// GETDEL executes as a single server-side command, so exactly one of any
// number of concurrent callers receives the value; the rest observe a nil
// reply and get storage.ErrStateNotFound.
func (s *Store) ConsumeState(ctx context.Context, stateToken string) (*storage.AuthorizationState, error) {
	key := s.stateKey(stateToken)

	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}

	var j authorizationStateJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization state: %w", err)
	}

	state := fromAuthorizationStateJSON(&j)

	// TTL should have evicted expired states, but double-check for safety.
	if state.Expired(time.Now()) {
		return nil, storage.ErrStateNotFound
	}

	s.logger.Debug("Consumed authorization state",
		"state_prefix", safeTruncate(stateToken, tokenIDLogLength),
		"platform", state.Platform)
	return state, nil
}
