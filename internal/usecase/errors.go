package usecase

import (
	"errors"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
)

var (
	// ErrInvalidCredentials indicates the email or password is incorrect, or the
	// email is not yet confirmed. Unconfirmed accounts deliberately surface as a
	// credentials problem so responses do not leak account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates no account exists for the supplied identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailAlreadyInUse indicates a registration collided with an existing account.
	ErrEmailAlreadyInUse = errors.New("email already in use")
	// ErrWeakPassword indicates the password fails the strength policy.
	ErrWeakPassword = errors.New("password does not meet strength requirements")
	// ErrMFARequired signals that primary credentials were verified but a second
	// factor is pending. It is a required next step, not a terminal failure.
	ErrMFARequired = errors.New("multi-factor authentication required")
	// ErrUserNotAuthenticated indicates no valid session where one was expected.
	ErrUserNotAuthenticated = errors.New("user not authenticated")
	// ErrInvalidToken indicates a malformed or unrecognized verification token.
	ErrInvalidToken = errors.New("invalid verification token")
	// ErrTokenExpired indicates the verification token is past its TTL.
	ErrTokenExpired = errors.New("verification token expired")
	// ErrEmailAlreadyVerified indicates verification was attempted on an already
	// verified account.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrBiometricNotAvailable indicates the device lacks biometric hardware or
	// no device key is enrolled for the account.
	ErrBiometricNotAvailable = errors.New("biometric authentication not available")
	// ErrAuthenticationFailed is the generic fallback for anything not otherwise
	// classified.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// MFARequiredError carries the synthesized challenge the caller must complete.
// The partial session token resumes verification against the provider.
type MFARequiredError struct {
	Challenge   domain.MFAChallenge
	AccessToken string
}

func (e *MFARequiredError) Error() string {
	return "multi-factor authentication required"
}

func (e *MFARequiredError) Unwrap() error {
	return ErrMFARequired
}
