package security

import (
	"errors"
	"testing"
)

func TestDefaultPasswordValidator(t *testing.T) {
	validator := DefaultPasswordValidator()

	tests := []struct {
		name     string
		password string
		wantCode string
	}{
		{name: "too short", password: "aB1!", wantCode: "min_length"},
		{name: "single character class", password: "aaaaaaaaaaaa", wantCode: "character_classes"},
		{name: "common password", password: "Password1", wantCode: "weak_password"},
		{name: "strong password", password: "k7#Vvqn!berg-Statue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tt.password)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want nil", tt.password, err)
				}
				return
			}

			var verr *PasswordValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate(%q) = %v, want *PasswordValidationError", tt.password, err)
			}
			if verr.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", verr.Code, tt.wantCode)
			}
		})
	}
}

func TestValidatorStopsAtFirstViolation(t *testing.T) {
	called := 0
	validator := NewPasswordValidator(
		PasswordRuleFunc(func(string) error {
			called++
			return &PasswordValidationError{Code: "first", Message: "first rule"}
		}),
		PasswordRuleFunc(func(string) error {
			called++
			return nil
		}),
	)

	err := validator.Validate("anything")
	var verr *PasswordValidationError
	if !errors.As(err, &verr) || verr.Code != "first" {
		t.Fatalf("err = %v, want first rule violation", err)
	}
	if called != 1 {
		t.Fatalf("rules called %d times, want 1", called)
	}
}

func TestGenerateSecureToken(t *testing.T) {
	a, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken: %v", err)
	}
	b, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken: %v", err)
	}
	if a == b {
		t.Fatal("two tokens are identical")
	}
	if len(a) == 0 {
		t.Fatal("empty token")
	}

	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatal("zero length must be rejected")
	}
}
