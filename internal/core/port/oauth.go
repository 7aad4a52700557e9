package port

import "context"

// OAuthIdentity is the normalized result of a federated token exchange.
type OAuthIdentity struct {
	Provider    string
	Subject     string
	Email       string
	Name        string
	AvatarURL   string
	IDToken     string
	AccessToken string
}

// OAuthExchanger performs the authorization-code exchange against the named
// federated provider and returns a normalized identity.
type OAuthExchanger interface {
	Exchange(ctx context.Context, provider, code, redirectURI string) (*OAuthIdentity, error)
	Supported(provider string) bool
}
