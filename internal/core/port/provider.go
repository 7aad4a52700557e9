package port

import (
	"context"
	"fmt"
	"time"
)

// ProviderError is the tagged failure shape returned by the credential provider
// adapter. Keeping the classification question at the adapter boundary lets the
// error mapper work on a known type instead of duck-typing raw values.
type ProviderError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Code != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// ServerError reports whether the failure originated on the provider side
// rather than from the submitted request.
func (e *ProviderError) ServerError() bool {
	return e != nil && e.HTTPStatus >= 500
}

// ProviderFactor describes an enrolled second factor as reported by the provider.
type ProviderFactor struct {
	ID       string
	Type     string
	Status   string
	Friendly string
}

// ProviderUser mirrors the identity record returned by the credential provider.
// It is untrusted input: callers must pass it through domain validation before
// exposing it to consumers.
type ProviderUser struct {
	ID                 string
	Email              string
	EmailConfirmed     bool
	Phone              string
	PhoneConfirmed     bool
	DisplayName        string
	AvatarURL          string
	Role               string
	MFAEnabled         bool
	PreferredMFAMethod string
	Factors            []ProviderFactor
	LastSignInAt       *time.Time
	CreatedAt          time.Time
	AppMetadata        map[string]any
	UserMetadata       map[string]any
}

// ProviderSession is the token bundle issued by the credential provider.
type ProviderSession struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	User         *ProviderUser
}

// SignUpResult captures account creation output. Session is nil when the
// backend requires email confirmation before issuing tokens.
type SignUpResult struct {
	User    *ProviderUser
	Session *ProviderSession
}

// FactorChallenge is the provider-issued second-factor challenge handle.
type FactorChallenge struct {
	ChallengeID string
	FactorType  string
	ExpiresAt   time.Time
}

// AuthStateChange notifies subscribers about session transitions.
type AuthStateChange struct {
	Event   string
	UserID  string
	Session *ProviderSession
}

// CredentialProvider is the boundary into the external identity backend. All
// operations are fallible and network-bound; failures surface as *ProviderError
// when the provider classified them, or as plain errors for transport faults.
type CredentialProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderSession, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*ProviderUser, error)
	SendPasswordReset(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) (*ProviderUser, error)
	ChallengeFactor(ctx context.Context, accessToken, factorID string) (*FactorChallenge, error)
	VerifyFactorChallenge(ctx context.Context, accessToken, factorID, challengeID, code string) (*ProviderSession, error)
	EnrollFactor(ctx context.Context, accessToken, factorType string) (*ProviderFactor, error)
	UnenrollFactor(ctx context.Context, accessToken, factorID string) error
	SignInWithIDToken(ctx context.Context, provider, idToken, accessToken string) (*ProviderSession, error)
	OnAuthStateChange(fn func(AuthStateChange)) (unsubscribe func())
}
