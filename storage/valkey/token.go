package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

// tokenRecordJSON is the wire representation of a token record.
// Token fields hold ciphertext produced by the caller's encryptor; this
// store never sees plaintext tokens.
type tokenRecordJSON struct {
	Platform               string    `json:"platform"`
	OrganizationID         string    `json:"organization_id"`
	UserID                 string    `json:"user_id"`
	AccessTokenCiphertext  string    `json:"access_token_ciphertext"`
	RefreshTokenCiphertext string    `json:"refresh_token_ciphertext,omitempty"`
	TokenType              string    `json:"token_type,omitempty"`
	Scope                  string    `json:"scope,omitempty"`
	IssuedAt               time.Time `json:"issued_at"`
	ExpiresAt              time.Time `json:"expires_at,omitzero"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func toTokenRecordJSON(record *storage.TokenRecord) *tokenRecordJSON {
	return &tokenRecordJSON{
		Platform:               string(record.Platform),
		OrganizationID:         record.OrganizationID,
		UserID:                 record.UserID,
		AccessTokenCiphertext:  record.AccessTokenCiphertext,
		RefreshTokenCiphertext: record.RefreshTokenCiphertext,
		TokenType:              record.TokenType,
		Scope:                  record.Scope,
		IssuedAt:               record.IssuedAt,
		ExpiresAt:              record.ExpiresAt,
		UpdatedAt:              record.UpdatedAt,
	}
}

func fromTokenRecordJSON(j *tokenRecordJSON) *storage.TokenRecord {
	return &storage.TokenRecord{
		Platform:               providers.Platform(j.Platform),
		OrganizationID:         j.OrganizationID,
		UserID:                 j.UserID,
		AccessTokenCiphertext:  j.AccessTokenCiphertext,
		RefreshTokenCiphertext: j.RefreshTokenCiphertext,
		TokenType:              j.TokenType,
		Scope:                  j.Scope,
		IssuedAt:               j.IssuedAt,
		ExpiresAt:              j.ExpiresAt,
		UpdatedAt:              j.UpdatedAt,
	}
}

// SaveToken upserts a token record. SET replaces the previous value in a
// single command, so a refresh or re-authorization swaps the record
// atomically and the old ciphertext is never readable afterwards.
func (s *Store) SaveToken(ctx context.Context, record *storage.TokenRecord) error {
	if record == nil || record.OrganizationID == "" || record.UserID == "" || record.Platform == "" {
		return fmt.Errorf("invalid token record")
	}

	data, err := json.Marshal(toTokenRecordJSON(record))
	if err != nil {
		return fmt.Errorf("failed to marshal token record: %w", err)
	}

	key := s.tokenKey(record.Key())
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save token record: %w", err)
	}

	s.logger.Debug("Saved token record",
		"organization_id", record.OrganizationID,
		"platform", record.Platform)
	return nil
}

// GetToken retrieves a token record for a triple, or storage.ErrTokenNotFound.
func (s *Store) GetToken(ctx context.Context, orgID, userID string, platform providers.Platform) (*storage.TokenRecord, error) {
	key := s.tokenKey(storage.TokenKey(orgID, userID, platform))

	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token record: %w", err)
	}

	var j tokenRecordJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token record: %w", err)
	}

	return fromTokenRecordJSON(&j), nil
}

// DeleteToken removes a token record. Absent records are ignored.
func (s *Store) DeleteToken(ctx context.Context, orgID, userID string, platform providers.Platform) error {
	key := s.tokenKey(storage.TokenKey(orgID, userID, platform))

	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}

	s.logger.Debug("Deleted token record",
		"organization_id", orgID,
		"platform", platform)
	return nil
}
