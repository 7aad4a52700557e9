package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserPayload describes the normalized account view returned by the API.
type UserPayload struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	EmailVerified bool              `json:"email_verified"`
	DisplayName   string            `json:"display_name,omitempty"`
	PhotoURL      string            `json:"photo_url,omitempty"`
	Status        domain.UserStatus `json:"status"`
	Role          domain.UserRole   `json:"role"`
	Phone         string            `json:"phone,omitempty"`
	PhoneVerified bool              `json:"phone_verified,omitempty"`
	MFAEnabled    bool              `json:"mfa_enabled"`
	LastLoginAt   *time.Time        `json:"last_login_at,omitempty"`
}

// NewUserPayload converts a domain user to its API representation.
func NewUserPayload(user *domain.AuthUser) UserPayload {
	if user == nil {
		return UserPayload{}
	}
	return UserPayload{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		DisplayName:   user.DisplayName,
		PhotoURL:      user.PhotoURL,
		Status:        user.Status,
		Role:          user.Role,
		Phone:         user.Profile.PhoneNumber,
		PhoneVerified: user.Profile.PhoneVerified,
		MFAEnabled:    user.Metadata.MFAEnabled,
		LastLoginAt:   user.Metadata.LastLoginAt,
	}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a fully authenticated login.
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in,omitempty"`
	User         UserPayload `json:"user"`
}

// NewLoginResponse converts a usecase login result to its API representation.
func NewLoginResponse(result *usecase.LoginSession) LoginResponse {
	if result == nil {
		return LoginResponse{}
	}
	return LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresIn:    result.ExpiresIn,
		User:         NewUserPayload(result.User),
	}
}

// MFARequiredResponse is returned when login needs a second factor before a
// session is issued. The partial access token authorizes only the verify call.
type MFARequiredResponse struct {
	MFARequired  bool      `json:"mfa_required"`
	ChallengeID  string    `json:"challenge_id"`
	FactorID     string    `json:"factor_id,omitempty"`
	Method       string    `json:"method"`
	MaskedTarget string    `json:"masked_target"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessToken  string    `json:"access_token"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterResponse contains registration results and next steps.
type RegisterResponse struct {
	User                 UserPayload `json:"user"`
	RequiresVerification bool        `json:"requires_verification"`
	Message              string      `json:"message,omitempty"`
}

// MFAVerifyRequest holds the second-factor verification payload.
type MFAVerifyRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
	FactorID    string `json:"factor_id"`
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

// MFAEnableRequest holds the factor enrollment payload.
type MFAEnableRequest struct {
	FactorType string `json:"factor_type"`
}

// MFAEnableResponse returns the enrolled factor handle.
type MFAEnableResponse struct {
	FactorID   string `json:"factor_id"`
	FactorType string `json:"factor_type"`
	Status     string `json:"status"`
}

// MFADisableRequest holds the factor removal payload.
type MFADisableRequest struct {
	FactorID string `json:"factor_id" binding:"required"`
}

// PasswordResetRequest holds the reset request payload.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// VerifyEmailRequest holds the email confirmation payload.
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// BiometricEnrollRequest registers a device public key for signature login.
type BiometricEnrollRequest struct {
	PublicKeyPEM string `json:"public_key_pem" binding:"required"`
	BiometryType string `json:"biometry_type" binding:"required"`
	DeviceID     string `json:"device_id"`
}

// BiometricChallengeResponse carries the signing nonce for the device.
type BiometricChallengeResponse struct {
	Nonce string `json:"nonce"`
}

// BiometricAuthRequest submits the device signature over the issued nonce.
type BiometricAuthRequest struct {
	Signature string `json:"signature" binding:"required"`
}

// BiometricStatusResponse reports device-key enrollment state.
type BiometricStatusResponse struct {
	Available bool `json:"available"`
}

// OAuthSignInRequest completes a federated login.
type OAuthSignInRequest struct {
	Provider    string `json:"provider" binding:"required"`
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirect_uri"`
}

// OAuthUnlinkRequest removes a linked federated identity.
type OAuthUnlinkRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// SecurityEventPayload is the API view of one audit entry.
type SecurityEventPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
}

// SecurityEventsResponse wraps a user's recent audit entries.
type SecurityEventsResponse struct {
	Events []SecurityEventPayload `json:"events"`
}

// SecurityAlertPayload is the API view of one suspicious-activity alert.
type SecurityAlertPayload struct {
	Severity string    `json:"severity"`
	Reason   string    `json:"reason"`
	Count    int       `json:"count"`
	Window   string    `json:"window"`
	RaisedAt time.Time `json:"raised_at"`
}

// SecurityAlertsResponse wraps the active alerts for a user.
type SecurityAlertsResponse struct {
	Alerts []SecurityAlertPayload `json:"alerts"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

// ReadyResponse reports readiness with per-dependency outcomes.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
