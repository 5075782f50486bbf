package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/publora/oauth/providers"
	"github.com/publora/oauth/storage"
)

// seedToken persists an encrypted record for org1/user1/twitter.
func seedToken(t *testing.T, env *testEnv, accessToken, refreshToken string) {
	t.Helper()

	record := &storage.TokenRecord{
		Platform:       providers.PlatformTwitter,
		OrganizationID: "org1",
		UserID:         "user1",
		TokenType:      "bearer",
		Scope:          "tweet.read",
		IssuedAt:       time.Now().Add(-time.Hour),
		ExpiresAt:      time.Now().Add(-time.Minute),
		UpdatedAt:      time.Now().Add(-time.Hour),
	}

	var err error
	record.AccessTokenCiphertext, err = env.encryptor.Encrypt(accessToken)
	if err != nil {
		t.Fatalf("Encrypt(access) error = %v", err)
	}
	if refreshToken != "" {
		record.RefreshTokenCiphertext, err = env.encryptor.Encrypt(refreshToken)
		if err != nil {
			t.Fatalf("Encrypt(refresh) error = %v", err)
		}
	}

	if err := env.store.SaveToken(context.Background(), record); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}
}

func TestRefresh_RotatesAndPersists(t *testing.T) {
	var gotGrantType, gotRefreshToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGrantType = r.FormValue("grant_type")
		gotRefreshToken = r.FormValue("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT-new","refresh_token":"RT-new","token_type":"bearer","expires_in":7200}`))
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")
	ctx := context.Background()

	record, err := env.manager.Refresh(ctx, providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if gotGrantType != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", gotGrantType)
	}
	if gotRefreshToken != "RT-old" {
		t.Errorf("refresh_token sent = %q, want RT-old", gotRefreshToken)
	}

	access, err := env.encryptor.Decrypt(record.AccessTokenCiphertext)
	if err != nil {
		t.Fatalf("Decrypt(access) error = %v", err)
	}
	if access != "AT-new" {
		t.Errorf("access token = %q, want AT-new", access)
	}
	refresh, err := env.encryptor.Decrypt(record.RefreshTokenCiphertext)
	if err != nil {
		t.Fatalf("Decrypt(refresh) error = %v", err)
	}
	if refresh != "RT-new" {
		t.Errorf("refresh token = %q, want rotated RT-new", refresh)
	}

	// The refreshed record replaced the stored one.
	stored, err := env.store.GetToken(ctx, "org1", "user1", providers.PlatformTwitter)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if stored.AccessTokenCiphertext != record.AccessTokenCiphertext {
		t.Error("stored record does not match returned record")
	}
}

func TestRefresh_KeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT-new","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")

	record, err := env.manager.Refresh(context.Background(), providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	refresh, err := env.encryptor.Decrypt(record.RefreshTokenCiphertext)
	if err != nil {
		t.Fatalf("Decrypt(refresh) error = %v", err)
	}
	if refresh != "RT-old" {
		t.Errorf("refresh token = %q, want retained RT-old", refresh)
	}
}

func TestRefresh_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT-new","refresh_token":"RT-new","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")

	const concurrency = 10
	var wg sync.WaitGroup
	results := make([]*storage.TokenRecord, concurrency)
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.manager.Refresh(context.Background(), providers.PlatformTwitter, "org1", "user1")
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("outbound platform calls = %d, want 1", got)
	}
	for i := 0; i < concurrency; i++ {
		if errs[i] != nil {
			t.Fatalf("Refresh()[%d] error = %v", i, errs[i])
		}
		if results[i].AccessTokenCiphertext != results[0].AccessTokenCiphertext {
			t.Errorf("caller %d received a different record", i)
		}
	}
}

func TestRefresh_InvalidGrantMeansReAuthorization(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")

	_, err := env.manager.Refresh(context.Background(), providers.PlatformTwitter, "org1", "user1")
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("error = %T, want *RefreshError", err)
	}
	if refreshErr.Kind != KindReAuthorizationRequired {
		t.Errorf("Kind = %q, want %q", refreshErr.Kind, KindReAuthorizationRequired)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("outbound platform calls = %d, want 1 (invalid_grant is never retried)", got)
	}
}

func TestRefresh_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT-new","refresh_token":"RT-new","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")

	record, err := env.manager.Refresh(context.Background(), providers.PlatformTwitter, "org1", "user1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("outbound platform calls = %d, want 2", got)
	}

	access, _ := env.encryptor.Decrypt(record.AccessTokenCiphertext)
	if access != "AT-new" {
		t.Errorf("access token = %q, want AT-new", access)
	}
}

func TestRefresh_ExhaustedRetriesAreUnreachable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")

	_, err := env.manager.Refresh(context.Background(), providers.PlatformTwitter, "org1", "user1")
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("error = %T, want *RefreshError", err)
	}
	if refreshErr.Kind != KindUnreachable {
		t.Errorf("Kind = %q, want %q", refreshErr.Kind, KindUnreachable)
	}
	if got := calls.Load(); got != maxRefreshRetries+1 {
		t.Errorf("outbound platform calls = %d, want %d", got, maxRefreshRetries+1)
	}
}

func TestRefresh_WithoutStoredCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		_, err := env.manager.Refresh(ctx, providers.PlatformTwitter, "org1", "user1")
		var refreshErr *RefreshError
		if !errors.As(err, &refreshErr) {
			t.Fatalf("error = %T, want *RefreshError", err)
		}
		if refreshErr.Kind != KindReAuthorizationRequired {
			t.Errorf("Kind = %q, want %q", refreshErr.Kind, KindReAuthorizationRequired)
		}
	})

	t.Run("no refresh token", func(t *testing.T) {
		seedToken(t, env, "AT-only", "")

		_, err := env.manager.Refresh(ctx, providers.PlatformTwitter, "org1", "user1")
		var refreshErr *RefreshError
		if !errors.As(err, &refreshErr) {
			t.Fatalf("error = %T, want *RefreshError", err)
		}
		if refreshErr.Kind != KindReAuthorizationRequired {
			t.Errorf("Kind = %q, want %q", refreshErr.Kind, KindReAuthorizationRequired)
		}
	})
}

func TestRefresh_CallerCancelDoesNotAbortFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"AT-new","refresh_token":"RT-new","token_type":"bearer","expires_in":3600}`))
	}))
	defer server.Close()

	env := newTestEnv(t, testPlatformConfig(server.URL))
	seedToken(t, env, "AT-old", "RT-old")

	firstDone := make(chan error, 1)
	go func() {
		_, err := env.manager.Refresh(context.Background(), providers.PlatformTwitter, "org1", "user1")
		firstDone <- err
	}()

	// Let the first caller start its platform call, then attach and cancel
	// a second waiter.
	time.Sleep(50 * time.Millisecond)
	cancelCtx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := env.manager.Refresh(cancelCtx, providers.PlatformTwitter, "org1", "user1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled waiter error = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first caller error = %v, want success despite second caller's cancel", err)
	}
}
