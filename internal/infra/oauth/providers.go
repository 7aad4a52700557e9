package oauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/infra/config"
)

var (
	googleEndpoint = oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	appleEndpoint = oauth2.Endpoint{
		AuthURL:  "https://appleid.apple.com/auth/authorize",
		TokenURL: "https://appleid.apple.com/auth/token",
	}
	microsoftEndpoint = oauth2.Endpoint{
		AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	}
)

// Exchanger performs authorization-code exchanges for the configured federated
// providers. Providers without a client ID are treated as not configured.
type Exchanger struct {
	configs map[string]*oauth2.Config
	logger  *zap.Logger
}

// NewExchanger builds per-provider oauth2 configs from settings.
func NewExchanger(cfg config.OAuthSettings, logger *zap.Logger) *Exchanger {
	configs := make(map[string]*oauth2.Config)

	register := func(name string, settings config.OAuthProviderSettings, endpoint oauth2.Endpoint, scopes []string) {
		if settings.ClientID == "" {
			return
		}
		configs[name] = &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		}
	}

	register("google", cfg.Google, googleEndpoint, []string{"openid", "email", "profile"})
	register("apple", cfg.Apple, appleEndpoint, []string{"openid", "email", "name"})
	register("microsoft", cfg.Microsoft, microsoftEndpoint, []string{"openid", "email", "profile"})

	return &Exchanger{configs: configs, logger: logger}
}

// Supported reports whether the named provider has a usable configuration.
func (e *Exchanger) Supported(provider string) bool {
	_, ok := e.configs[strings.ToLower(provider)]
	return ok
}

// Exchange redeems the authorization code and normalizes the resulting
// identity. Claims are read from the ID token without local verification: the
// credential provider validates the token again during sign-in, so the values
// here serve logging and display only.
func (e *Exchanger) Exchange(ctx context.Context, provider, code, redirectURI string) (*port.OAuthIdentity, error) {
	name := strings.ToLower(provider)
	conf, ok := e.configs[name]
	if !ok {
		return nil, fmt.Errorf("oauth provider %q is not configured", provider)
	}

	opts := []oauth2.AuthCodeOption{}
	if redirectURI != "" && redirectURI != conf.RedirectURL {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	}

	token, err := conf.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("provider %q returned no id token", provider)
	}

	identity := &port.OAuthIdentity{
		Provider:    name,
		IDToken:     idToken,
		AccessToken: token.AccessToken,
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		e.logger.Warn("Failed to parse id token claims", zap.String("provider", name), zap.Error(err))
		return identity, nil
	}

	if sub, ok := claims["sub"].(string); ok {
		identity.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if fullName, ok := claims["name"].(string); ok {
		identity.Name = fullName
	}
	if picture, ok := claims["picture"].(string); ok {
		identity.AvatarURL = picture
	}

	return identity, nil
}

var _ port.OAuthExchanger = (*Exchanger)(nil)
