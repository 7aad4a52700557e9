package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
)

// OAuthService handles federated sign-in: it exchanges the authorization code
// with the named provider, then redeems the resulting id token against the
// credential provider for a first-party session.
type OAuthService struct {
	provider  port.CredentialProvider
	exchanger port.OAuthExchanger
	security  *SecurityService
	logger    *zap.Logger
	timeout   time.Duration
}

// NewOAuthService constructs the federated sign-in coordinator.
func NewOAuthService(provider port.CredentialProvider, exchanger port.OAuthExchanger, securitySvc *SecurityService, log *zap.Logger) (*OAuthService, error) {
	if provider == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("oauth exchanger is required")
	}
	if securitySvc == nil {
		return nil, fmt.Errorf("security service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &OAuthService{
		provider:  provider,
		exchanger: exchanger,
		security:  securitySvc,
		logger:    log,
	}, nil
}

// WithProviderTimeout bounds outbound calls made during the exchange.
func (s *OAuthService) WithProviderTimeout(timeout time.Duration) *OAuthService {
	s.timeout = timeout
	return s
}

func (s *OAuthService) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// SignIn completes a federated login for the named provider. Availability is
// checked first so an unconfigured provider fails with a specific error before
// any network call.
func (s *OAuthService) SignIn(ctx context.Context, providerName, code, redirectURI string, client ClientInfo) (*domain.AuthUser, error) {
	result, err := s.SignInWithSession(ctx, providerName, code, redirectURI, client)
	if err != nil {
		return nil, err
	}
	return result.User, nil
}

// SignInWithSession is SignIn surfacing the provider token bundle for callers
// that hand tokens back to the client.
func (s *OAuthService) SignInWithSession(ctx context.Context, providerName, code, redirectURI string, client ClientInfo) (*LoginSession, error) {
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if providerName == "" {
		return nil, fmt.Errorf("oauth provider is required")
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	if !s.exchanger.Supported(providerName) {
		return nil, fmt.Errorf("oauth provider %q is not configured", providerName)
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	identity, err := s.exchanger.Exchange(cctx, providerName, code, redirectURI)
	if err != nil {
		s.logger.Warn("oauth exchange failed",
			zap.String("provider", providerName),
			zap.Error(err),
		)
		mapped := MapProviderError(err)
		s.recordSignInFailure(ctx, providerName, client, mapped.Error())
		return nil, mapped
	}

	session, err := s.provider.SignInWithIDToken(cctx, providerName, identity.IDToken, identity.AccessToken)
	if err != nil {
		mapped := MapProviderError(err)
		s.recordSignInFailure(ctx, providerName, client, mapped.Error())
		return nil, mapped
	}

	providerUser := session.User
	if providerUser == nil {
		providerUser, err = s.provider.GetUser(cctx, session.AccessToken)
		if err != nil {
			mapped := MapProviderError(err)
			s.recordSignInFailure(ctx, providerName, client, mapped.Error())
			return nil, mapped
		}
	}

	account, err := newAuthUserFromProvider(providerUser)
	if err != nil {
		s.recordSignInFailure(ctx, providerName, client, "provider identity incomplete")
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventOAuthLinked,
		UserID:    account.ID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details: map[string]any{
			"oauth_provider": providerName,
			"subject":        identity.Subject,
		},
	})

	return &LoginSession{
		User:         account,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
	}, nil
}

// recordSignInFailure audits a failed federated login. The user is unknown at
// this point, so the event is attributed by provider and client only; exactly
// one failure event is recorded per failed SignInWithSession call.
func (s *OAuthService) recordSignInFailure(ctx context.Context, providerName string, client ClientInfo, reason string) {
	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventLoginFailed,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details: map[string]any{
			"oauth_provider": providerName,
			"reason":         reason,
		},
	})
}

// Unlink records removal of a federated identity. The actual identity unlink
// happens provider-side; the gateway contributes the audit trail.
func (s *OAuthService) Unlink(ctx context.Context, accessToken, providerName string, client ClientInfo) error {
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if providerName == "" {
		return fmt.Errorf("oauth provider is required")
	}
	if strings.TrimSpace(accessToken) == "" {
		return ErrUserNotAuthenticated
	}

	cctx, cancel := s.callCtx(ctx)
	defer cancel()

	user, err := s.provider.GetUser(cctx, accessToken)
	if err != nil {
		return MapProviderError(err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventOAuthUnlinked,
		UserID:    user.ID,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"oauth_provider": providerName},
	})

	return nil
}
