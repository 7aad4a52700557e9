package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/arclightapps/identity-gateway/internal/core/port"
)

func TestMapProviderErrorIsTotal(t *testing.T) {
	taxonomy := []error{
		ErrInvalidCredentials,
		ErrUserNotFound,
		ErrEmailAlreadyInUse,
		ErrWeakPassword,
		ErrInvalidToken,
		ErrTokenExpired,
		ErrEmailAlreadyVerified,
		ErrAuthenticationFailed,
	}

	inputs := []error{
		nil,
		errors.New(""),
		errors.New("connection refused"),
		fmt.Errorf("wrapped: %w", errors.New("dial tcp: i/o timeout")),
		&port.ProviderError{},
		&port.ProviderError{Code: "something_new", Message: "unrecognized failure", HTTPStatus: 418},
	}

	for _, input := range inputs {
		mapped := MapProviderError(input)
		if mapped == nil {
			t.Fatalf("MapProviderError(%v) returned nil", input)
		}
		found := false
		for _, sentinel := range taxonomy {
			if errors.Is(mapped, sentinel) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("MapProviderError(%v) = %v, not in the closed taxonomy", input, mapped)
		}
	}
}

func TestMapProviderErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "invalid login credentials message",
			err:  &port.ProviderError{Message: "Invalid login credentials", HTTPStatus: 400},
			want: ErrInvalidCredentials,
		},
		{
			name: "invalid grant code",
			err:  &port.ProviderError{Code: "invalid_grant", HTTPStatus: 400},
			want: ErrInvalidCredentials,
		},
		{
			name: "email not confirmed",
			err:  &port.ProviderError{Code: "email_not_confirmed", Message: "Email not confirmed", HTTPStatus: 400},
			want: ErrInvalidCredentials,
		},
		{
			name: "user not found",
			err:  &port.ProviderError{Message: "User not found", HTTPStatus: 404},
			want: ErrUserNotFound,
		},
		{
			name: "already registered",
			err:  &port.ProviderError{Message: "A user with this email address has already been registered", HTTPStatus: 422},
			want: ErrEmailAlreadyInUse,
		},
		{
			name: "weak password",
			err:  &port.ProviderError{Code: "weak_password", Message: "Password should be at least 8 characters", HTTPStatus: 422},
			want: ErrWeakPassword,
		},
		{
			name: "password policy message without code",
			err:  &port.ProviderError{Message: "Password must contain a number", HTTPStatus: 422},
			want: ErrWeakPassword,
		},
		{
			name: "bad jwt",
			err:  &port.ProviderError{Code: "bad_jwt", Message: "invalid JWT structure", HTTPStatus: 401},
			want: ErrInvalidToken,
		},
		{
			name: "token not found or invalid",
			err:  &port.ProviderError{Message: "Token has expired or is invalid", HTTPStatus: 403},
			want: ErrInvalidToken,
		},
		{
			name: "otp expired",
			err:  &port.ProviderError{Code: "otp_expired", Message: "Token has expired", HTTPStatus: 403},
			want: ErrTokenExpired,
		},
		{
			name: "plain expired message",
			err:  errors.New("verification link expired"),
			want: ErrTokenExpired,
		},
		{
			name: "already confirmed",
			err:  &port.ProviderError{Message: "Email address has already been confirmed", HTTPStatus: 400},
			want: ErrEmailAlreadyVerified,
		},
		{
			name: "transport fault falls through",
			err:  errors.New("dial tcp 10.0.0.1:443: connect: connection refused"),
			want: ErrAuthenticationFailed,
		},
		{
			name: "server error without classification",
			err:  &port.ProviderError{Message: "Internal Server Error", HTTPStatus: 500},
			want: ErrAuthenticationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapProviderError(tt.err)
			if !errors.Is(got, tt.want) {
				t.Fatalf("MapProviderError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMapProviderErrorPrecedence(t *testing.T) {
	// A message matching both the credentials and expiry branches must resolve
	// to credentials, which ranks higher.
	err := &port.ProviderError{Message: "Invalid login credentials (session expired)", HTTPStatus: 400}
	if got := MapProviderError(err); !errors.Is(got, ErrInvalidCredentials) {
		t.Fatalf("MapProviderError = %v, want ErrInvalidCredentials", got)
	}
}
