package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/infra/logger"
)

const defaultChallengeTTL = 5 * time.Minute

// PasswordPolicy validates password strength before credentials reach the provider.
type PasswordPolicy interface {
	Validate(password string) error
}

// ClientInfo carries request attribution recorded on audit events.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// SessionService coordinates the login, registration, logout, session
// retrieval, and MFA challenge flows against the credential provider. Every
// attempt, success or failure, produces exactly one audit event for its
// outcome branch; raw provider errors never escape to callers.
//
// The service holds no mutable identity state across calls: CurrentUser always
// asks the provider afresh, trading a small latency cost for freshness.
type SessionService struct {
	provider  port.CredentialProvider
	security  *SecurityService
	passwords PasswordPolicy
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time

	mu            sync.Mutex
	observers     map[int]func(port.AuthStateChange)
	nextObserver  int
	providerUnsub func()
}

// NewSessionService constructs the orchestrator. All collaborators are
// injected so tests can substitute fakes without shared state.
func NewSessionService(provider port.CredentialProvider, security *SecurityService, passwords PasswordPolicy, log *zap.Logger) (*SessionService, error) {
	if provider == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if security == nil {
		return nil, fmt.Errorf("security service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &SessionService{
		provider:  provider,
		security:  security,
		passwords: passwords,
		logger:    log,
		now:       time.Now,
		observers: make(map[int]func(port.AuthStateChange)),
	}, nil
}

// WithProviderTimeout bounds every provider call. Zero disables the wrapper
// and defers entirely to the provider's own timeout behavior.
func (s *SessionService) WithProviderTimeout(timeout time.Duration) *SessionService {
	s.timeout = timeout
	return s
}

// WithClock overrides the time source. Intended for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SessionService) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// LoginSession pairs the normalized user with the provider token bundle for
// callers that manage their own session storage (the HTTP transport does).
type LoginSession struct {
	User         *domain.AuthUser
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
}

// Login authenticates primary credentials. When the account has MFA enabled it
// never returns a bare user: it fails with *MFARequiredError carrying a fresh
// challenge, and the caller must complete VerifyMFAChallenge next.
func (s *SessionService) Login(ctx context.Context, email, password string, client ClientInfo) (*domain.AuthUser, error) {
	result, err := s.LoginWithSession(ctx, email, password, client)
	if err != nil {
		return nil, err
	}
	return result.User, nil
}

// LoginWithSession behaves exactly like Login but also surfaces the provider
// token bundle. Exactly one audit event is recorded per call across both entry
// points; Login delegates here.
func (s *SessionService) LoginWithSession(ctx context.Context, email, password string, client ClientInfo) (*LoginSession, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		s.recordLoginFailure(ctx, "", email, client, "email is required")
		return nil, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}
	if password == "" {
		s.recordLoginFailure(ctx, "", email, client, "password is required")
		return nil, fmt.Errorf("%w: password is required", ErrInvalidCredentials)
	}

	s.logger.Debug("login attempt", zap.String("email", logger.MaskEmail(email)))

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	session, err := s.provider.SignInWithPassword(pctx, email, password)
	if err != nil {
		mapped := MapProviderError(err)
		s.recordLoginFailure(ctx, "", email, client, mapped.Error())
		return nil, mapped
	}

	providerUser, err := s.resolveSessionUser(pctx, session)
	if err != nil {
		mapped := MapProviderError(err)
		s.recordLoginFailure(ctx, "", email, client, mapped.Error())
		return nil, mapped
	}

	account, err := newAuthUserFromProvider(providerUser)
	if err != nil {
		s.recordLoginFailure(ctx, providerUser.ID, email, client, "provider identity rejected")
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}

	if providerUser.MFAEnabled {
		challenge, err := s.issueMFAChallenge(pctx, session.AccessToken, providerUser)
		if err != nil {
			mapped := MapProviderError(err)
			s.recordLoginFailure(ctx, account.ID, email, client, mapped.Error())
			return nil, mapped
		}

		s.security.Record(ctx, domain.SecurityEvent{
			Type:      domain.EventLogin,
			UserID:    account.ID,
			Severity:  domain.SeverityLow,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
			Details: map[string]any{
				"stage":        "password",
				"mfa_required": true,
				"method":       string(challenge.Method),
			},
		})

		return nil, &MFARequiredError{Challenge: *challenge, AccessToken: session.AccessToken}
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventLogin,
		UserID:    account.ID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"stage": "password"},
	})

	return &LoginSession{
		User:         account,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
	}, nil
}

// Register creates an account. The password is validated against policy before
// any provider call. When the backend withholds a session pending email
// confirmation, the returned user is the pending-confirmation placeholder.
func (s *SessionService) Register(ctx context.Context, email, password string, client ClientInfo) (*domain.AuthUser, error) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		s.recordRegistrationFailure(ctx, email, client, err.Error())
		return nil, err
	}
	if password == "" {
		s.recordRegistrationFailure(ctx, normalized, client, "password is required")
		return nil, fmt.Errorf("%w: password is required", ErrWeakPassword)
	}
	if s.passwords != nil {
		if err := s.passwords.Validate(password); err != nil {
			s.recordRegistrationFailure(ctx, normalized, client, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	result, err := s.provider.SignUp(pctx, normalized, password)
	if err != nil {
		mapped := MapProviderError(err)
		s.recordRegistrationFailure(ctx, normalized, client, mapped.Error())
		return nil, mapped
	}

	var account *domain.AuthUser
	confirmationPending := result == nil || result.Session == nil || result.User == nil
	if confirmationPending {
		account, err = domain.NewPendingConfirmationUser(normalized)
	} else {
		account, err = newAuthUserFromProvider(result.User)
	}
	if err != nil {
		s.recordRegistrationFailure(ctx, normalized, client, "provider identity incomplete")
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventAccountCreated,
		UserID:    account.ID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details: map[string]any{
			"email":                logger.MaskEmail(account.Email),
			"confirmation_pending": confirmationPending,
		},
	})

	return account, nil
}

// Logout invalidates the provider session. The current user is captured
// before invalidation so the audit entry can attribute who logged out. Calling
// Logout without an authenticated session is not an error; a provider-side
// failure is surfaced so the caller may retry remote invalidation, but the
// local session is considered torn down regardless.
func (s *SessionService) Logout(ctx context.Context, accessToken string, client ClientInfo) error {
	accessToken = strings.TrimSpace(accessToken)

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	var userID string
	hadSession := accessToken != ""
	if hadSession {
		if user, err := s.provider.GetUser(pctx, accessToken); err == nil && user != nil {
			userID = user.ID
		} else if err != nil {
			s.logger.Debug("logout could not resolve current user", zap.Error(err))
		}
	}

	var signOutErr error
	if hadSession {
		signOutErr = s.provider.SignOut(pctx, accessToken)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventLogout,
		UserID:    userID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details: map[string]any{
			"reason":         "user_initiated",
			"had_session":    hadSession,
			"remote_revoked": signOutErr == nil,
		},
	})

	if signOutErr != nil {
		return fmt.Errorf("revoke provider session: %w", MapProviderError(signOutErr))
	}

	return nil
}

// CurrentUser resolves the authenticated identity for the supplied token.
// Recoverable session problems (missing, invalid, expired, or malformed
// tokens) resolve to (nil, nil): an app cold start without a session is an
// expected steady state, not an exception. Infrastructure failures propagate,
// since they mean the session state could not be determined at all.
func (s *SessionService) CurrentUser(ctx context.Context, accessToken string) (*domain.AuthUser, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, nil
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	user, err := s.provider.GetUser(pctx, accessToken)
	if err != nil {
		if isSessionError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	account, err := newAuthUserFromProvider(user)
	if err != nil {
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}

	return account, nil
}

// VerifyMFAChallenge consumes a previously issued challenge. An invalid or
// expired code surfaces a typed error without creating a new challenge; the
// caller restarts login when the challenge itself expired.
func (s *SessionService) VerifyMFAChallenge(ctx context.Context, accessToken, factorID, challengeID, code string, client ClientInfo) (*domain.AuthUser, error) {
	result, err := s.VerifyMFAChallengeWithSession(ctx, accessToken, factorID, challengeID, code, client)
	if err != nil {
		return nil, err
	}
	return result.User, nil
}

// VerifyMFAChallengeWithSession is VerifyMFAChallenge surfacing the upgraded
// provider token bundle alongside the user.
func (s *SessionService) VerifyMFAChallengeWithSession(ctx context.Context, accessToken, factorID, challengeID, code string, client ClientInfo) (*LoginSession, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrUserNotAuthenticated
	}
	if strings.TrimSpace(challengeID) == "" {
		return nil, fmt.Errorf("challenge id is required")
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("verification code is required")
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	session, err := s.provider.VerifyFactorChallenge(pctx, accessToken, factorID, challengeID, code)
	if err != nil {
		mapped := MapProviderError(err)
		s.recordLoginFailure(ctx, "", "", client, "mfa verification failed: "+mapped.Error())
		return nil, mapped
	}

	providerUser, err := s.resolveSessionUser(pctx, session)
	if err != nil {
		return nil, MapProviderError(err)
	}

	account, err := newAuthUserFromProvider(providerUser)
	if err != nil {
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventLogin,
		UserID:    account.ID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"stage": "mfa"},
	})

	return &LoginSession{
		User:         account,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
	}, nil
}

// EnableMFA enrolls a new second factor for the authenticated user.
func (s *SessionService) EnableMFA(ctx context.Context, accessToken, factorType string, client ClientInfo) (*port.ProviderFactor, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrUserNotAuthenticated
	}
	if factorType == "" {
		factorType = string(domain.MFAMethodTOTP)
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	user, err := s.provider.GetUser(pctx, accessToken)
	if err != nil {
		return nil, MapProviderError(err)
	}

	factor, err := s.provider.EnrollFactor(pctx, accessToken, factorType)
	if err != nil {
		return nil, MapProviderError(err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventMFAEnabled,
		UserID:    user.ID,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"factor_type": factorType},
	})

	return factor, nil
}

// DisableMFA removes an enrolled factor.
func (s *SessionService) DisableMFA(ctx context.Context, accessToken, factorID string, client ClientInfo) error {
	if strings.TrimSpace(accessToken) == "" {
		return ErrUserNotAuthenticated
	}
	if strings.TrimSpace(factorID) == "" {
		return fmt.Errorf("factor id is required")
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	user, err := s.provider.GetUser(pctx, accessToken)
	if err != nil {
		return MapProviderError(err)
	}

	if err := s.provider.UnenrollFactor(pctx, accessToken, factorID); err != nil {
		return MapProviderError(err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventMFADisabled,
		UserID:    user.ID,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return nil
}

// RequestPasswordReset asks the provider to send a reset email. The outcome is
// intentionally identical whether or not the account exists.
func (s *SessionService) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return err
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	if err := s.provider.SendPasswordReset(pctx, normalized); err != nil {
		mapped := MapProviderError(err)
		if errors.Is(mapped, ErrUserNotFound) {
			// Do not leak account existence.
			return nil
		}
		return mapped
	}

	return nil
}

// VerifyEmail redeems an email verification token.
func (s *SessionService) VerifyEmail(ctx context.Context, token string, client ClientInfo) (*domain.AuthUser, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	pctx, cancel := s.providerCtx(ctx)
	defer cancel()

	user, err := s.provider.VerifyEmail(pctx, token)
	if err != nil {
		return nil, MapProviderError(err)
	}

	account, err := newAuthUserFromProvider(user)
	if err != nil {
		return nil, fmt.Errorf("normalize provider identity: %w", err)
	}

	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventEmailVerificationSuccess,
		UserID:    account.ID,
		Severity:  domain.SeverityLow,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})

	return account, nil
}

// ObserveAuthState registers a callback for session transitions and returns
// its unsubscribe function. The provider subscription is established lazily on
// first observer and torn down with the last.
func (s *SessionService) ObserveAuthState(fn func(port.AuthStateChange)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	if s.providerUnsub == nil {
		s.providerUnsub = s.provider.OnAuthStateChange(s.fanOut)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			if len(s.observers) == 0 && s.providerUnsub != nil {
				s.providerUnsub()
				s.providerUnsub = nil
			}
			s.mu.Unlock()
		})
	}
}

func (s *SessionService) fanOut(change port.AuthStateChange) {
	s.mu.Lock()
	observers := make([]func(port.AuthStateChange), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

func (s *SessionService) resolveSessionUser(ctx context.Context, session *port.ProviderSession) (*port.ProviderUser, error) {
	if session == nil {
		return nil, &port.ProviderError{Message: "provider returned no session"}
	}
	if session.User != nil {
		return session.User, nil
	}
	return s.provider.GetUser(ctx, session.AccessToken)
}

func (s *SessionService) issueMFAChallenge(ctx context.Context, accessToken string, user *port.ProviderUser) (*domain.MFAChallenge, error) {
	now := s.now().UTC()

	method := domain.MFAMethod(user.PreferredMFAMethod)
	switch method {
	case domain.MFAMethodTOTP, domain.MFAMethodSMS, domain.MFAMethodEmail:
	default:
		method = domain.MFAMethodTOTP
	}

	maskedTarget := logger.MaskEmail(user.Email)
	if method == domain.MFAMethodSMS && user.Phone != "" {
		maskedTarget = logger.MaskPhone(user.Phone)
	}

	factor := pickVerifiedFactor(user.Factors)
	if factor == nil {
		// Flagged MFA without an enrolled factor: synthesize a local challenge
		// handle so the caller still learns the required next step.
		return &domain.MFAChallenge{
			ChallengeID:  uuid.NewString(),
			Method:       method,
			MaskedTarget: maskedTarget,
			CreatedAt:    now,
			ExpiresAt:    now.Add(defaultChallengeTTL),
		}, nil
	}

	challenge, err := s.provider.ChallengeFactor(ctx, accessToken, factor.ID)
	if err != nil {
		return nil, err
	}

	expiresAt := challenge.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultChallengeTTL)
	}

	return &domain.MFAChallenge{
		ChallengeID:  challenge.ChallengeID,
		FactorID:     factor.ID,
		Method:       method,
		MaskedTarget: maskedTarget,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}, nil
}

func pickVerifiedFactor(factors []port.ProviderFactor) *port.ProviderFactor {
	for i := range factors {
		if factors[i].Status == "verified" {
			return &factors[i]
		}
	}
	if len(factors) > 0 {
		return &factors[0]
	}
	return nil
}

func (s *SessionService) recordRegistrationFailure(ctx context.Context, email string, client ClientInfo, reason string) {
	details := map[string]any{"reason": reason}
	if email != "" {
		details["email"] = logger.MaskEmail(email)
	}
	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventRegistrationFailed,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   details,
	})
}

func (s *SessionService) recordLoginFailure(ctx context.Context, userID, email string, client ClientInfo, reason string) {
	details := map[string]any{"reason": reason}
	if email != "" {
		details["email"] = logger.MaskEmail(email)
	}
	s.security.Record(ctx, domain.SecurityEvent{
		Type:      domain.EventLoginFailed,
		UserID:    userID,
		Severity:  domain.SeverityMedium,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   details,
	})
}

// isSessionError classifies provider failures that mean "there is no valid
// session" as opposed to "the session state could not be determined".
func isSessionError(err error) bool {
	var pe *port.ProviderError
	if errors.As(err, &pe) {
		if pe.ServerError() {
			return false
		}
		msg := strings.ToLower(pe.Message)
		if containsAny(msg, "token", "session", "expired", "jwt", "not authenticated", "malformed") {
			return true
		}
		return pe.HTTPStatus == 401
	}
	return false
}

func newAuthUserFromProvider(user *port.ProviderUser) (*domain.AuthUser, error) {
	if user == nil {
		return nil, fmt.Errorf("provider returned no user")
	}

	status := domain.UserStatusActive
	if !user.EmailConfirmed {
		status = domain.UserStatusPendingVerification
	}

	role := domain.UserRole(user.Role)
	switch role {
	case domain.RoleUser, domain.RoleModerator, domain.RoleAdmin:
	default:
		role = domain.RoleUser
	}

	return domain.NewAuthUser(domain.AuthUserParams{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailConfirmed,
		DisplayName:   user.DisplayName,
		PhotoURL:      user.AvatarURL,
		Phone:         user.Phone,
		PhoneVerified: user.PhoneConfirmed,
		Status:        status,
		Role:          role,
		Metadata: domain.UserMetadata{
			LastLoginAt: user.LastSignInAt,
			MFAEnabled:  user.MFAEnabled,
		},
	})
}
