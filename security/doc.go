// Package security provides the cryptographic building blocks for the OAuth
// manager: PKCE verifier/challenge generation (RFC 7636), token encryption
// at rest (AES-256-GCM with HKDF key derivation), token expiry checks with
// clock-skew tolerance, and audit logging with PII hashing.
package security
