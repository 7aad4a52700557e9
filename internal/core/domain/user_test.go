package domain

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewAuthUserValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  AuthUserParams
		wantErr error
	}{
		{
			name:    "missing id",
			params:  AuthUserParams{Email: "a@example.com"},
			wantErr: ErrMissingUserID,
		},
		{
			name:    "missing email",
			params:  AuthUserParams{ID: "u1"},
			wantErr: ErrMissingEmail,
		},
		{
			name:    "invalid email",
			params:  AuthUserParams{ID: "u1", Email: "not-an-address"},
			wantErr: ErrInvalidEmail,
		},
		{
			name:    "http photo url rejected",
			params:  AuthUserParams{ID: "u1", Email: "a@example.com", PhotoURL: "http://cdn.example.com/a.png"},
			wantErr: ErrInvalidPhotoURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthUser(tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewAuthUserDefaults(t *testing.T) {
	user, err := NewAuthUser(AuthUserParams{ID: "u1", Email: "  Erin@Example.COM "})
	if err != nil {
		t.Fatalf("NewAuthUser: %v", err)
	}
	if user.Email != "erin@example.com" {
		t.Fatalf("email = %q, want normalized lowercase", user.Email)
	}
	if user.Status != UserStatusActive {
		t.Fatalf("status = %q, want active default", user.Status)
	}
	if user.Role != RoleUser {
		t.Fatalf("role = %q, want user default", user.Role)
	}
	if user.Metadata.RiskLevel != RiskLow {
		t.Fatalf("risk level = %q, want low default", user.Metadata.RiskLevel)
	}
}

func TestNewAuthUserSanitizesDisplayName(t *testing.T) {
	user, err := NewAuthUser(AuthUserParams{
		ID:          "u1",
		Email:       "a@example.com",
		DisplayName: `<script>alert("x")</script> Erin `,
	})
	if err != nil {
		t.Fatalf("NewAuthUser: %v", err)
	}
	if strings.Contains(user.DisplayName, "<") || strings.Contains(user.DisplayName, ">") {
		t.Fatalf("display name carries markup: %q", user.DisplayName)
	}
	if !strings.Contains(user.DisplayName, "Erin") {
		t.Fatalf("display name lost content: %q", user.DisplayName)
	}
}

func TestSanitizeDisplayNameTruncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := SanitizeDisplayName(long); len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}
}

func TestSanitizeDisplayNameTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 500)
	got := SanitizeDisplayName(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated name is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 100 {
		t.Fatalf("rune count = %d, want 100", n)
	}
}

func TestNewPendingConfirmationUser(t *testing.T) {
	user, err := NewPendingConfirmationUser("New@Example.com")
	if err != nil {
		t.Fatalf("NewPendingConfirmationUser: %v", err)
	}
	if user.ID != PendingConfirmationID {
		t.Fatalf("ID = %q, want sentinel", user.ID)
	}
	if user.EmailVerified {
		t.Fatal("pending user must not be verified")
	}
	if user.Status != UserStatusPendingVerification {
		t.Fatalf("status = %q, want pending_verification", user.Status)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email = %q, want normalized", user.Email)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original, err := NewAuthUser(AuthUserParams{ID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("NewAuthUser: %v", err)
	}
	copied := original.Clone()
	copied.Email = "changed@example.com"
	if original.Email == copied.Email {
		t.Fatal("Clone shares state with the original")
	}
}
