package usecase

import (
	"errors"
	"strings"

	"github.com/arclightapps/identity-gateway/internal/core/port"
)

// MapProviderError translates a raw provider failure into exactly one sentinel
// of the closed domain taxonomy. The function is total: any input, including
// nil and unclassified transport errors, resolves to a domain error and never
// panics. Raw provider errors must not escape to callers.
//
// Provider error codes are consulted where populated, but message substrings
// are the primary signal: upstream code fields are inconsistently set across
// SDK versions while message text has proven stable. The matching is
// English-only, which is a documented limitation should the provider ever
// localize error text.
func MapProviderError(err error) error {
	if err == nil {
		return ErrAuthenticationFailed
	}

	var code, msg string
	var pe *port.ProviderError
	if errors.As(err, &pe) {
		code = strings.ToLower(strings.TrimSpace(pe.Code))
		msg = strings.ToLower(pe.Message)
	} else {
		msg = strings.ToLower(err.Error())
	}

	// Precedence is fixed: credentials, lookup, duplicates, password policy,
	// token validity, token expiry, redundant verification, then the fallback.
	switch {
	case code == "invalid_credentials" || code == "invalid_grant" || code == "email_not_confirmed" ||
		containsAny(msg,
			"invalid login credentials",
			"invalid credentials",
			"invalid email or password",
			"wrong password",
			"email not confirmed",
		):
		return ErrInvalidCredentials
	case code == "user_not_found" ||
		containsAny(msg, "user not found", "no user found", "user does not exist"):
		return ErrUserNotFound
	case code == "email_exists" || code == "user_already_exists" ||
		containsAny(msg,
			"already registered",
			"already in use",
			"already been registered",
			"duplicate",
			"user already exists",
		):
		return ErrEmailAlreadyInUse
	case code == "weak_password" ||
		containsAny(msg, "weak password", "password should be", "password is too", "password must"):
		return ErrWeakPassword
	case code == "bad_jwt" || code == "invalid_token" ||
		containsAny(msg, "invalid token", "token is invalid", "or is invalid", "malformed", "bad jwt"):
		return ErrInvalidToken
	case code == "otp_expired" ||
		containsAny(msg, "token has expired", "token expired", "otp expired", "link expired", "expired"):
		return ErrTokenExpired
	case containsAny(msg, "already verified", "already confirmed", "already been confirmed"):
		return ErrEmailAlreadyVerified
	default:
		return ErrAuthenticationFailed
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
