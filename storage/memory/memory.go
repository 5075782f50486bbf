// Package memory provides an in-memory implementation of the storage
// interfaces. It is intended for development, testing, and single-process
// deployments; state does not survive restarts and is not shared across
// processes.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

// Store is an in-memory implementation of storage.StateStore and
// storage.TokenStore. All operations are guarded by a single mutex;
// ConsumeState's get-and-delete is therefore atomic with respect to
// concurrent callers.
type Store struct {
	mu sync.Mutex

	states map[string]*storage.AuthorizationState
	tokens map[string]*storage.TokenRecord

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks.
var (
	_ storage.StateStore = (*Store)(nil)
	_ storage.TokenStore = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is 0 or negative, the default of 1 minute is
// used. Expiry is additionally enforced lazily at lookup time, so the
// cleanup loop only bounds memory growth.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		states:          make(map[string]*storage.AuthorizationState),
		tokens:          make(map[string]*storage.TokenRecord),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// SaveState stores an authorization state keyed by its state token.
func (s *Store) SaveState(_ context.Context, state *storage.AuthorizationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *state
	s.states[state.State] = &cp
	return nil
}

// ConsumeState atomically retrieves and deletes a state. Expired states are
// removed and reported as not found.
func (s *Store) ConsumeState(_ context.Context, stateToken string) (*storage.AuthorizationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[stateToken]
	if !ok {
		return nil, storage.ErrStateNotFound
	}

	// Delete before the expiry check: an expired state is unusable either way.
	delete(s.states, stateToken)

	if state.Expired(time.Now()) {
		return nil, storage.ErrStateNotFound
	}

	cp := *state
	return &cp, nil
}

// SaveToken upserts a token record for its (org, user, platform) triple.
func (s *Store) SaveToken(_ context.Context, record *storage.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.tokens[record.Key()] = &cp
	return nil
}

// GetToken retrieves a token record, or storage.ErrTokenNotFound.
func (s *Store) GetToken(_ context.Context, orgID, userID string, platform providers.Platform) (*storage.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[storage.TokenKey(orgID, userID, platform)]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	cp := *record
	return &cp, nil
}

// DeleteToken removes a token record. Absent records are ignored.
func (s *Store) DeleteToken(_ context.Context, orgID, userID string, platform providers.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, storage.TokenKey(orgID, userID, platform))
	return nil
}

// cleanupLoop periodically removes expired authorization states.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for token, state := range s.states {
		if state.Expired(now) {
			delete(s.states, token)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Cleaned up expired authorization states", "removed", removed)
	}
}
