// Package oauth implements OAuth2 authorization and token lifecycle
// management for connecting organization/user pairs to third-party social
// and content platforms.
//
// The Manager is the single entry point. It is constructed once at process
// start from injected configuration (credentials, stores, cipher, HTTP
// client) and coordinates:
//
//   - authorization URL generation with CSRF state and PKCE where required
//   - one-time, TTL-bound state verification during the callback
//   - authorization-code-to-token exchange with normalized results
//   - token encryption at rest through security.Encryptor
//   - single-flighted token refresh with bounded retries
//   - best-effort token revocation and liveness validation
//
// The Manager owns no HTTP routes and performs no persistence of its own
// beyond the injected storage.StateStore and storage.TokenStore; the
// surrounding application exposes endpoints that call into it.
//
// Basic usage:
//
//	enc, _ := security.NewEncryptorFromSecret([]byte(os.Getenv("TOKEN_SECRET")))
//	store := memory.New()
//	creds, _ := oauth.CredentialsFromEnv()
//
//	mgr, err := oauth.New(oauth.Config{
//	    Credentials: creds,
//	    StateStore:  store,
//	    TokenStore:  store,
//	    Encryptor:   enc,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	auth, err := mgr.BuildAuthorizationURL(ctx, providers.PlatformTwitter,
//	    "org1", "user1", "https://app.example.com/callback", nil)
//	// redirect the user to auth.URL; later, in the callback:
//	record, err := mgr.ExchangeCode(ctx, providers.PlatformTwitter,
//	    code, state, "https://app.example.com/callback")
package oauth
