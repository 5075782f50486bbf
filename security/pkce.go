package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// CodeChallengeMethodS256 is the SHA-256 PKCE challenge method (RFC 7636).
const CodeChallengeMethodS256 = "S256"

// codeVerifierBytes is the entropy of a generated code verifier.
// 32 bytes encodes to a 43-character base64url string, within the
// RFC 7636 43-128 character bounds.
const codeVerifierBytes = 32

// GenerateCodeVerifier generates a cryptographically random PKCE code
// verifier. A fresh verifier must be generated for every authorization
// attempt; verifiers are never reused across authorization URLs.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, codeVerifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CodeChallenge computes the S256 code challenge for a verifier:
// base64url(SHA256(verifier)) without padding.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GeneratePKCE returns a fresh (verifier, challenge) pair.
func GeneratePKCE() (verifier, challenge string, err error) {
	verifier, err = GenerateCodeVerifier()
	if err != nil {
		return "", "", err
	}
	return verifier, CodeChallenge(verifier), nil
}

// GenerateStateToken generates an unguessable token for the OAuth state
// parameter. 32 bytes of entropy, base64url encoded.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
