package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

func revokeTestConfig(revokeURL string, method providers.RevokeMethod) providers.Config {
	cfg := testPlatformConfig("https://provider.example/token")
	cfg.RevokeURL = revokeURL
	cfg.RevokeMethod = method
	return cfg
}

func TestRevoke_PostForm(t *testing.T) {
	var gotToken, gotHint, gotClientID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotToken = r.FormValue("token")
		gotHint = r.FormValue("token_type_hint")
		gotClientID = r.FormValue("client_id")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := newTestEnv(t, revokeTestConfig(server.URL, providers.RevokePostForm))
	seedToken(t, env, "AT1", "RT1")
	ctx := context.Background()

	result, err := env.manager.Revoke(ctx, providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if result.LocalOnly {
		t.Error("LocalOnly = true for platform with a revocation endpoint")
	}
	if result.RemoteErr != nil {
		t.Errorf("RemoteErr = %v, want nil", result.RemoteErr)
	}

	if gotToken != "AT1" {
		t.Errorf("revoked token = %q, want AT1", gotToken)
	}
	if gotHint != "access_token" {
		t.Errorf("token_type_hint = %q, want access_token", gotHint)
	}
	if gotClientID != "client-id" {
		t.Errorf("client_id = %q, want client-id", gotClientID)
	}

	if _, err := env.store.GetToken(ctx, "org1", "user1", providers.PlatformTwitter); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetToken() after revoke error = %v, want ErrTokenNotFound", err)
	}
}

func TestRevoke_Delete(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := newTestEnv(t, revokeTestConfig(server.URL, providers.RevokeDelete))
	seedToken(t, env, "AT1", "RT1")

	result, err := env.manager.Revoke(context.Background(), providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if result.RemoteErr != nil {
		t.Errorf("RemoteErr = %v, want nil", result.RemoteErr)
	}
	if gotAuth != "Bearer AT1" {
		t.Errorf("Authorization = %q, want Bearer AT1", gotAuth)
	}
}

func TestRevoke_LocalOnly(t *testing.T) {
	env := newTestEnv(t, revokeTestConfig("", providers.RevokeUnsupported))
	seedToken(t, env, "AT1", "RT1")
	ctx := context.Background()

	result, err := env.manager.Revoke(ctx, providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if !result.LocalOnly {
		t.Error("LocalOnly = false for platform without a revocation endpoint")
	}
	if result.RemoteErr != nil {
		t.Errorf("RemoteErr = %v, want nil", result.RemoteErr)
	}

	if _, err := env.store.GetToken(ctx, "org1", "user1", providers.PlatformTwitter); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetToken() after revoke error = %v, want ErrTokenNotFound", err)
	}
}

func TestRevoke_RemoteFailureStillDeletesLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	env := newTestEnv(t, revokeTestConfig(server.URL, providers.RevokePostForm))
	seedToken(t, env, "AT1", "RT1")
	ctx := context.Background()

	result, err := env.manager.Revoke(ctx, providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Revoke() error = %v, remote failure must not fail the call", err)
	}

	var revocationErr *RevocationError
	if !errors.As(result.RemoteErr, &revocationErr) {
		t.Errorf("RemoteErr = %T, want *RevocationError", result.RemoteErr)
	}

	if _, err := env.store.GetToken(ctx, "org1", "user1", providers.PlatformTwitter); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetToken() after revoke error = %v, want ErrTokenNotFound", err)
	}
}

func TestRevoke_NoStoredRecord(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	env := newTestEnv(t, revokeTestConfig(server.URL, providers.RevokePostForm))

	result, err := env.manager.Revoke(context.Background(), providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if result.RemoteErr != nil {
		t.Errorf("RemoteErr = %v, want nil", result.RemoteErr)
	}
	if called {
		t.Error("revocation endpoint should not be called without a stored record")
	}
}

func TestRevoke_UnknownPlatform(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.manager.Revoke(context.Background(), "myspace", "org1", "user1"); !errors.Is(err, providers.ErrUnsupportedPlatform) {
		t.Errorf("error = %v, want ErrUnsupportedPlatform", err)
	}
}
