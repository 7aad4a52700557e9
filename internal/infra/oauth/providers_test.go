package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"
	"golang.org/x/oauth2"

	"github.com/arclightapps/identity-gateway/internal/infra/config"
)

func TestSupported(t *testing.T) {
	exchanger := NewExchanger(config.OAuthSettings{
		Google: config.OAuthProviderSettings{ClientID: "google-client"},
	}, zaptest.NewLogger(t))

	if !exchanger.Supported("google") {
		t.Fatal("google should be supported")
	}
	if !exchanger.Supported("Google") {
		t.Fatal("provider names should match case-insensitively")
	}
	if exchanger.Supported("apple") {
		t.Fatal("apple has no client id and should not be supported")
	}
}

func TestExchangeNormalizesIdentity(t *testing.T) {
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     "subject-123",
		"email":   "fed@example.com",
		"name":    "Fed User",
		"picture": "https://example.com/avatar.png",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign id token: %v", err)
	}

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "auth-code" {
			t.Errorf("unexpected code: %s", r.Form.Get("code"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "bearer",
			"id_token":     idToken,
		})
	}))
	defer tokenServer.Close()

	exchanger := &Exchanger{
		configs: map[string]*oauth2.Config{
			"google": {
				ClientID:     "google-client",
				ClientSecret: "google-secret",
				RedirectURL:  "https://app.example.com/callback",
				Endpoint:     oauth2.Endpoint{TokenURL: tokenServer.URL},
			},
		},
		logger: zaptest.NewLogger(t),
	}

	identity, err := exchanger.Exchange(context.Background(), "google", "auth-code", "")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if identity.Provider != "google" {
		t.Fatalf("unexpected provider: %s", identity.Provider)
	}
	if identity.Subject != "subject-123" {
		t.Fatalf("unexpected subject: %s", identity.Subject)
	}
	if identity.Email != "fed@example.com" {
		t.Fatalf("unexpected email: %s", identity.Email)
	}
	if identity.IDToken != idToken {
		t.Fatal("id token not carried through")
	}
	if identity.AccessToken != "provider-access-token" {
		t.Fatalf("unexpected access token: %s", identity.AccessToken)
	}
}

func TestExchangeUnknownProvider(t *testing.T) {
	exchanger := NewExchanger(config.OAuthSettings{}, zaptest.NewLogger(t))

	if _, err := exchanger.Exchange(context.Background(), "github", "code", ""); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}
