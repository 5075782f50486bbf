package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/security"
)

func validateTestConfig(identityURL string) providers.Config {
	cfg := testPlatformConfig("https://provider.example/token")
	cfg.IdentityURL = identityURL
	return cfg
}

func TestValidate_AcceptedToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"12345","username":"someone"}}`))
	}))
	defer server.Close()

	env := newTestEnv(t, validateTestConfig(server.URL))
	ciphertext, err := env.encryptor.Encrypt("AT1")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	result, err := env.manager.Validate(context.Background(), providers.PlatformTwitter, ciphertext)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Valid {
		t.Error("Valid = false, want true")
	}
	if gotAuth != "Bearer AT1" {
		t.Errorf("Authorization = %q, want Bearer AT1", gotAuth)
	}
	if result.Identity == nil {
		t.Fatal("Identity = nil, want parsed response")
	}
	if _, ok := result.Identity["data"]; !ok {
		t.Error("Identity missing platform response fields")
	}
}

func TestValidate_RejectedToken(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			env := newTestEnv(t, validateTestConfig(server.URL))
			ciphertext, _ := env.encryptor.Encrypt("AT1")

			result, err := env.manager.Validate(context.Background(), providers.PlatformTwitter, ciphertext)
			if err != nil {
				t.Fatalf("Validate() error = %v, definitive rejection is not an error", err)
			}
			if result.Valid {
				t.Error("Valid = true, want false")
			}
		})
	}
}

func TestValidate_UnreachablePlatform(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	identityURL := server.URL
	server.Close()

	env := newTestEnv(t, validateTestConfig(identityURL))
	ciphertext, _ := env.encryptor.Encrypt("AT1")

	_, err := env.manager.Validate(context.Background(), providers.PlatformTwitter, ciphertext)
	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("error = %T, want *ExchangeError", err)
	}
	if exchangeErr.Kind != KindUnreachable {
		t.Errorf("Kind = %q, want %q", exchangeErr.Kind, KindUnreachable)
	}
}

func TestValidate_PlatformErrorIsNotInvalidity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	env := newTestEnv(t, validateTestConfig(server.URL))
	ciphertext, _ := env.encryptor.Encrypt("AT1")

	_, err := env.manager.Validate(context.Background(), providers.PlatformTwitter, ciphertext)
	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("error = %T, want *ExchangeError", err)
	}
	if exchangeErr.Kind != KindUnreachable {
		t.Errorf("Kind = %q, want %q", exchangeErr.Kind, KindUnreachable)
	}
}

func TestValidate_TamperedCiphertext(t *testing.T) {
	env := newTestEnv(t, validateTestConfig("https://provider.example/identity"))

	_, err := env.manager.Validate(context.Background(), providers.PlatformTwitter, "not-a-ciphertext")
	if !errors.Is(err, security.ErrDecryption) {
		t.Errorf("error = %v, want ErrDecryption", err)
	}
}

func TestValidate_NonJSONIdentityBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	env := newTestEnv(t, validateTestConfig(server.URL))
	ciphertext, _ := env.encryptor.Encrypt("AT1")

	result, err := env.manager.Validate(context.Background(), providers.PlatformTwitter, ciphertext)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !result.Valid {
		t.Error("Valid = false, want true")
	}
	if result.Identity != nil {
		t.Error("Identity should be nil for a non-JSON body")
	}
}
