package oauth

import (
	"errors"
	"strings"
	"testing"

	"github.com/publora/oauth/providers"
)

func TestExchangeError(t *testing.T) {
	underlying := errors.New("boom")

	tests := []struct {
		name string
		err  *ExchangeError
		want []string
	}{
		{
			name: "with provider message",
			err: &ExchangeError{
				Kind:            KindProviderRejected,
				Platform:        providers.PlatformTwitter,
				ProviderMessage: "invalid_request: code expired",
			},
			want: []string{"twitter", "provider_rejected", "code expired"},
		},
		{
			name: "with wrapped error",
			err: &ExchangeError{
				Kind:     KindUnreachable,
				Platform: providers.PlatformLinkedIn,
				Err:      underlying,
			},
			want: []string{"linkedin", "unreachable", "boom"},
		},
		{
			name: "bare",
			err:  &ExchangeError{Kind: KindTimeout, Platform: providers.PlatformFacebook},
			want: []string{"facebook", "timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	underlying := errors.New("boom")

	var err error = &ExchangeError{Kind: KindInvalidState, Platform: providers.PlatformTwitter, Err: ErrInvalidState}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("ExchangeError should unwrap to ErrInvalidState")
	}

	err = &RefreshError{Kind: KindUnreachable, Platform: providers.PlatformTwitter, Err: underlying}
	if !errors.Is(err, underlying) {
		t.Error("RefreshError should unwrap to its cause")
	}
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Error("errors.As should match *RefreshError")
	}

	err = &RevocationError{Platform: providers.PlatformTwitter, Err: underlying}
	if !errors.Is(err, underlying) {
		t.Error("RevocationError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "revocation failed") {
		t.Errorf("Error() = %q, missing context", err.Error())
	}
}

func TestRefreshError_Message(t *testing.T) {
	err := &RefreshError{Kind: KindReAuthorizationRequired, Platform: providers.PlatformTikTok}
	if !strings.Contains(err.Error(), "reauthorization_required") {
		t.Errorf("Error() = %q, missing kind", err.Error())
	}
}
