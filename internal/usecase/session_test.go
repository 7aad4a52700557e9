package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
)

// fakeProvider implements port.CredentialProvider with pluggable behavior.
type fakeProvider struct {
	signInFn        func(ctx context.Context, email, password string) (*port.ProviderSession, error)
	signUpFn        func(ctx context.Context, email, password string) (*port.SignUpResult, error)
	signOutFn       func(ctx context.Context, accessToken string) error
	getUserFn       func(ctx context.Context, accessToken string) (*port.ProviderUser, error)
	resetFn         func(ctx context.Context, email string) error
	verifyEmailFn   func(ctx context.Context, token string) (*port.ProviderUser, error)
	challengeFn     func(ctx context.Context, accessToken, factorID string) (*port.FactorChallenge, error)
	verifyFactorFn  func(ctx context.Context, accessToken, factorID, challengeID, code string) (*port.ProviderSession, error)
	enrollFn        func(ctx context.Context, accessToken, factorType string) (*port.ProviderFactor, error)
	unenrollFn      func(ctx context.Context, accessToken, factorID string) error
	signInIDTokenFn func(ctx context.Context, provider, idToken, accessToken string) (*port.ProviderSession, error)

	mu       sync.Mutex
	signIns  int
	signUps  int
	signOuts int
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*port.ProviderSession, error) {
	f.mu.Lock()
	f.signIns++
	f.mu.Unlock()
	if f.signInFn == nil {
		return nil, errors.New("not configured")
	}
	return f.signInFn(ctx, email, password)
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string) (*port.SignUpResult, error) {
	f.mu.Lock()
	f.signUps++
	f.mu.Unlock()
	if f.signUpFn == nil {
		return nil, errors.New("not configured")
	}
	return f.signUpFn(ctx, email, password)
}

func (f *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	if f.signOutFn == nil {
		return nil
	}
	return f.signOutFn(ctx, accessToken)
}

func (f *fakeProvider) GetUser(ctx context.Context, accessToken string) (*port.ProviderUser, error) {
	if f.getUserFn == nil {
		return nil, errors.New("not configured")
	}
	return f.getUserFn(ctx, accessToken)
}

func (f *fakeProvider) SendPasswordReset(ctx context.Context, email string) error {
	if f.resetFn == nil {
		return nil
	}
	return f.resetFn(ctx, email)
}

func (f *fakeProvider) VerifyEmail(ctx context.Context, token string) (*port.ProviderUser, error) {
	if f.verifyEmailFn == nil {
		return nil, errors.New("not configured")
	}
	return f.verifyEmailFn(ctx, token)
}

func (f *fakeProvider) ChallengeFactor(ctx context.Context, accessToken, factorID string) (*port.FactorChallenge, error) {
	if f.challengeFn == nil {
		return nil, errors.New("not configured")
	}
	return f.challengeFn(ctx, accessToken, factorID)
}

func (f *fakeProvider) VerifyFactorChallenge(ctx context.Context, accessToken, factorID, challengeID, code string) (*port.ProviderSession, error) {
	if f.verifyFactorFn == nil {
		return nil, errors.New("not configured")
	}
	return f.verifyFactorFn(ctx, accessToken, factorID, challengeID, code)
}

func (f *fakeProvider) EnrollFactor(ctx context.Context, accessToken, factorType string) (*port.ProviderFactor, error) {
	if f.enrollFn == nil {
		return nil, errors.New("not configured")
	}
	return f.enrollFn(ctx, accessToken, factorType)
}

func (f *fakeProvider) UnenrollFactor(ctx context.Context, accessToken, factorID string) error {
	if f.unenrollFn == nil {
		return nil
	}
	return f.unenrollFn(ctx, accessToken, factorID)
}

func (f *fakeProvider) SignInWithIDToken(ctx context.Context, provider, idToken, accessToken string) (*port.ProviderSession, error) {
	if f.signInIDTokenFn == nil {
		return nil, errors.New("not configured")
	}
	return f.signInIDTokenFn(ctx, provider, idToken, accessToken)
}

func (f *fakeProvider) OnAuthStateChange(fn func(port.AuthStateChange)) func() {
	return func() {}
}

// memEventStore is an in-memory port.SecurityEventStore.
type memEventStore struct {
	mu        sync.Mutex
	events    []domain.SecurityEvent
	appendErr error
}

func (m *memEventStore) Append(_ context.Context, event domain.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memEventStore) ListByUserSince(_ context.Context, userID string, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SecurityEvent
	for _, e := range m.events {
		if e.UserID == userID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEventStore) CountByTypeSince(_ context.Context, userID string, eventType domain.SecurityEventType, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.events {
		if e.UserID == userID && e.Type == eventType && !e.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memEventStore) all() []domain.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SecurityEvent, len(m.events))
	copy(out, m.events)
	return out
}

func verifiedProviderUser() *port.ProviderUser {
	return &port.ProviderUser{
		ID:             "user-1",
		Email:          "erin@example.com",
		EmailConfirmed: true,
		DisplayName:    "Erin",
		Role:           "user",
	}
}

func newTestSession(t *testing.T, provider *fakeProvider, store *memEventStore) (*SessionService, *SecurityService) {
	t.Helper()
	security := NewSecurityService(store, nil, DefaultSecurityThresholds(), zaptest.NewLogger(t))
	svc, err := NewSessionService(provider, security, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	return svc, security
}

func TestLoginSuccessRecordsSingleEvent(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		signInFn: func(_ context.Context, email, password string) (*port.ProviderSession, error) {
			return &port.ProviderSession{
				AccessToken:  "at-1",
				RefreshToken: "rt-1",
				TokenType:    "bearer",
				ExpiresIn:    3600,
				User:         verifiedProviderUser(),
			}, nil
		},
	}
	svc, security := newTestSession(t, provider, store)

	result, err := svc.LoginWithSession(context.Background(), "erin@example.com", "hunter2!", ClientInfo{IPAddress: "10.0.0.9"})
	if err != nil {
		t.Fatalf("LoginWithSession: %v", err)
	}
	if result.User.ID != "user-1" {
		t.Fatalf("user ID = %q, want user-1", result.User.ID)
	}
	if result.AccessToken != "at-1" || result.RefreshToken != "rt-1" {
		t.Fatalf("unexpected token bundle: %+v", result)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want exactly 1", len(events))
	}
	if events[0].Type != domain.EventLogin {
		t.Fatalf("event type = %q, want login", events[0].Type)
	}
	if events[0].Details["stage"] != "password" {
		t.Fatalf("stage = %v, want password", events[0].Details["stage"])
	}
	if events[0].IPAddress != "10.0.0.9" {
		t.Fatalf("ip = %q, want 10.0.0.9", events[0].IPAddress)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		signInFn: func(context.Context, string, string) (*port.ProviderSession, error) {
			return nil, &port.ProviderError{Message: "Invalid login credentials", HTTPStatus: 400}
		},
	}
	svc, security := newTestSession(t, provider, store)

	_, err := svc.Login(context.Background(), "erin@example.com", "wrong", ClientInfo{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want exactly 1", len(events))
	}
	if events[0].Type != domain.EventLoginFailed {
		t.Fatalf("event type = %q, want login_failed", events[0].Type)
	}
	masked, _ := events[0].Details["email"].(string)
	if strings.Contains(masked, "erin@example.com") {
		t.Fatalf("audit event carries unmasked email: %q", masked)
	}
	if masked == "" {
		t.Fatal("audit event missing masked email")
	}
}

func TestLoginMissingPassword(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{}
	svc, security := newTestSession(t, provider, store)

	_, err := svc.Login(context.Background(), "erin@example.com", "", ClientInfo{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if provider.signIns != 0 {
		t.Fatalf("provider.SignInWithPassword called %d times, want 0", provider.signIns)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventLoginFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestLoginMFARequired(t *testing.T) {
	store := &memEventStore{}
	user := verifiedProviderUser()
	user.MFAEnabled = true
	user.PreferredMFAMethod = "totp"
	user.Factors = []port.ProviderFactor{{ID: "factor-1", Type: "totp", Status: "verified"}}

	provider := &fakeProvider{
		signInFn: func(context.Context, string, string) (*port.ProviderSession, error) {
			return &port.ProviderSession{AccessToken: "partial-token", User: user}, nil
		},
		challengeFn: func(_ context.Context, accessToken, factorID string) (*port.FactorChallenge, error) {
			if accessToken != "partial-token" {
				t.Fatalf("challenge used token %q", accessToken)
			}
			if factorID != "factor-1" {
				t.Fatalf("challenge used factor %q", factorID)
			}
			return &port.FactorChallenge{ChallengeID: "chal-1", FactorType: "totp"}, nil
		},
	}
	svc, security := newTestSession(t, provider, store)

	_, err := svc.LoginWithSession(context.Background(), "erin@example.com", "hunter2!", ClientInfo{})
	var mfaErr *MFARequiredError
	if !errors.As(err, &mfaErr) {
		t.Fatalf("err = %v, want *MFARequiredError", err)
	}
	if !errors.Is(err, ErrMFARequired) {
		t.Fatal("MFARequiredError must unwrap to ErrMFARequired")
	}
	if mfaErr.Challenge.ChallengeID != "chal-1" || mfaErr.Challenge.FactorID != "factor-1" {
		t.Fatalf("unexpected challenge: %+v", mfaErr.Challenge)
	}
	if mfaErr.Challenge.Method != domain.MFAMethodTOTP {
		t.Fatalf("method = %q, want totp", mfaErr.Challenge.Method)
	}
	if mfaErr.Challenge.MaskedTarget == "" || strings.Contains(mfaErr.Challenge.MaskedTarget, "erin@example.com") {
		t.Fatalf("masked target leaks identifier: %q", mfaErr.Challenge.MaskedTarget)
	}
	if mfaErr.AccessToken != "partial-token" {
		t.Fatalf("access token = %q, want partial-token", mfaErr.AccessToken)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want exactly 1", len(events))
	}
	if events[0].Type != domain.EventLogin || events[0].Details["mfa_required"] != true {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestLoginSucceedsWhenAuditStoreFails(t *testing.T) {
	store := &memEventStore{appendErr: errors.New("disk full")}
	provider := &fakeProvider{
		signInFn: func(context.Context, string, string) (*port.ProviderSession, error) {
			return &port.ProviderSession{AccessToken: "at-1", User: verifiedProviderUser()}, nil
		},
	}
	svc, security := newTestSession(t, provider, store)
	defer security.Close()

	user, err := svc.Login(context.Background(), "erin@example.com", "hunter2!", ClientInfo{})
	if err != nil {
		t.Fatalf("Login must succeed despite audit failure, got %v", err)
	}
	if user == nil || user.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestVerifyMFAChallenge(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		verifyFactorFn: func(_ context.Context, accessToken, factorID, challengeID, code string) (*port.ProviderSession, error) {
			if code != "123456" {
				return nil, &port.ProviderError{Message: "Invalid login credentials", HTTPStatus: 400}
			}
			return &port.ProviderSession{AccessToken: "upgraded", User: verifiedProviderUser()}, nil
		},
	}
	svc, security := newTestSession(t, provider, store)

	result, err := svc.VerifyMFAChallengeWithSession(context.Background(), "partial", "factor-1", "chal-1", "123456", ClientInfo{})
	if err != nil {
		t.Fatalf("VerifyMFAChallengeWithSession: %v", err)
	}
	if result.AccessToken != "upgraded" {
		t.Fatalf("access token = %q, want upgraded", result.AccessToken)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Details["stage"] != "mfa" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestVerifyMFAChallengeWrongCode(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		verifyFactorFn: func(context.Context, string, string, string, string) (*port.ProviderSession, error) {
			return nil, &port.ProviderError{Message: "Invalid login credentials", HTTPStatus: 400}
		},
	}
	svc, security := newTestSession(t, provider, store)

	_, err := svc.VerifyMFAChallenge(context.Background(), "partial", "factor-1", "chal-1", "000000", ClientInfo{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventLoginFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestVerifyMFAChallengeWithoutToken(t *testing.T) {
	svc, security := newTestSession(t, &fakeProvider{}, &memEventStore{})
	defer security.Close()

	_, err := svc.VerifyMFAChallenge(context.Background(), "", "f", "c", "123456", ClientInfo{})
	if !errors.Is(err, ErrUserNotAuthenticated) {
		t.Fatalf("err = %v, want ErrUserNotAuthenticated", err)
	}
}

func TestRegisterPendingConfirmation(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		signUpFn: func(context.Context, string, string) (*port.SignUpResult, error) {
			return &port.SignUpResult{User: &port.ProviderUser{ID: "user-2", Email: "new@example.com"}}, nil
		},
	}
	svc, security := newTestSession(t, provider, store)

	user, err := svc.Register(context.Background(), "new@example.com", "str0ng-Passw0rd", ClientInfo{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID != domain.PendingConfirmationID {
		t.Fatalf("user ID = %q, want pending placeholder", user.ID)
	}
	if user.Status != domain.UserStatusPendingVerification {
		t.Fatalf("status = %q, want pending_verification", user.Status)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventAccountCreated {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Details["confirmation_pending"] != true {
		t.Fatalf("confirmation_pending = %v, want true", events[0].Details["confirmation_pending"])
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		signUpFn: func(context.Context, string, string) (*port.SignUpResult, error) {
			return nil, &port.ProviderError{Code: "user_already_exists", Message: "User already registered", HTTPStatus: 422}
		},
	}
	svc, security := newTestSession(t, provider, store)

	_, err := svc.Register(context.Background(), "taken@example.com", "str0ng-Passw0rd", ClientInfo{})
	if !errors.Is(err, ErrEmailAlreadyInUse) {
		t.Fatalf("err = %v, want ErrEmailAlreadyInUse", err)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventRegistrationFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

type rejectAllPolicy struct{}

func (rejectAllPolicy) Validate(string) error { return errors.New("too guessable") }

func TestRegisterWeakPasswordSkipsProvider(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{}
	security := NewSecurityService(store, nil, DefaultSecurityThresholds(), zaptest.NewLogger(t))
	svc, err := NewSessionService(provider, security, rejectAllPolicy{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}

	_, err = svc.Register(context.Background(), "new@example.com", "password", ClientInfo{})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}
	if provider.signUps != 0 {
		t.Fatalf("provider.SignUp called %d times, want 0", provider.signUps)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventRegistrationFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Details["email"] != "new***@example.com" {
		t.Fatalf("email = %v, want masked address", events[0].Details["email"])
	}
}

func TestRegisterInvalidEmailRecordsEvent(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{}
	svc, security := newTestSession(t, provider, store)

	_, err := svc.Register(context.Background(), "not-an-address", "str0ng-Passw0rd", ClientInfo{})
	if !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("err = %v, want ErrInvalidEmail", err)
	}
	if provider.signUps != 0 {
		t.Fatalf("provider.SignUp called %d times, want 0", provider.signUps)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventRegistrationFailed {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestLogoutWithoutSessionIsIdempotent(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{}
	svc, security := newTestSession(t, provider, store)

	if err := svc.Logout(context.Background(), "", ClientInfo{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if provider.signOuts != 0 {
		t.Fatalf("SignOut called %d times, want 0", provider.signOuts)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventLogout {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Details["had_session"] != false {
		t.Fatalf("had_session = %v, want false", events[0].Details["had_session"])
	}
}

func TestLogoutRecordsUserBeforeRevocation(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		getUserFn: func(context.Context, string) (*port.ProviderUser, error) {
			return verifiedProviderUser(), nil
		},
	}
	svc, security := newTestSession(t, provider, store)

	if err := svc.Logout(context.Background(), "at-1", ClientInfo{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].UserID != "user-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCurrentUserWithoutToken(t *testing.T) {
	svc, security := newTestSession(t, &fakeProvider{}, &memEventStore{})
	defer security.Close()

	user, err := svc.CurrentUser(context.Background(), "")
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if user != nil {
		t.Fatalf("user = %+v, want nil", user)
	}
}

func TestCurrentUserExpiredSession(t *testing.T) {
	provider := &fakeProvider{
		getUserFn: func(context.Context, string) (*port.ProviderUser, error) {
			return nil, &port.ProviderError{Message: "Session expired", HTTPStatus: 401}
		},
	}
	svc, security := newTestSession(t, provider, &memEventStore{})
	defer security.Close()

	user, err := svc.CurrentUser(context.Background(), "stale-token")
	if err != nil {
		t.Fatalf("expired session must resolve to nil user, got err %v", err)
	}
	if user != nil {
		t.Fatalf("user = %+v, want nil", user)
	}
}

func TestCurrentUserInfrastructureFailure(t *testing.T) {
	provider := &fakeProvider{
		getUserFn: func(context.Context, string) (*port.ProviderUser, error) {
			return nil, &port.ProviderError{Message: "Service Unavailable", HTTPStatus: 503}
		},
	}
	svc, security := newTestSession(t, provider, &memEventStore{})
	defer security.Close()

	_, err := svc.CurrentUser(context.Background(), "token")
	if err == nil {
		t.Fatal("infrastructure failure must propagate, got nil error")
	}
}

func TestRequestPasswordResetHidesUnknownAccounts(t *testing.T) {
	provider := &fakeProvider{
		resetFn: func(context.Context, string) error {
			return &port.ProviderError{Code: "user_not_found", Message: "User not found", HTTPStatus: 404}
		},
	}
	svc, security := newTestSession(t, provider, &memEventStore{})
	defer security.Close()

	if err := svc.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown account must not be observable, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	provider := &fakeProvider{
		verifyEmailFn: func(context.Context, string) (*port.ProviderUser, error) {
			return nil, &port.ProviderError{Code: "otp_expired", Message: "Token has expired", HTTPStatus: 403}
		},
	}
	svc, security := newTestSession(t, provider, &memEventStore{})
	defer security.Close()

	_, err := svc.VerifyEmail(context.Background(), "stale", ClientInfo{})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestEnableMFARecordsEvent(t *testing.T) {
	store := &memEventStore{}
	provider := &fakeProvider{
		getUserFn: func(context.Context, string) (*port.ProviderUser, error) {
			return verifiedProviderUser(), nil
		},
		enrollFn: func(_ context.Context, _, factorType string) (*port.ProviderFactor, error) {
			return &port.ProviderFactor{ID: "factor-9", Type: factorType, Status: "unverified"}, nil
		},
	}
	svc, security := newTestSession(t, provider, store)

	factor, err := svc.EnableMFA(context.Background(), "at-1", "", ClientInfo{})
	if err != nil {
		t.Fatalf("EnableMFA: %v", err)
	}
	if factor.Type != string(domain.MFAMethodTOTP) {
		t.Fatalf("factor type = %q, want default totp", factor.Type)
	}

	security.Close()
	events := store.all()
	if len(events) != 1 || events[0].Type != domain.EventMFAEnabled {
		t.Fatalf("unexpected events: %+v", events)
	}
}
