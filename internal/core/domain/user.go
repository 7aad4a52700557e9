package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPendingVerification UserStatus = "pending_verification"
	UserStatusActive              UserStatus = "active"
	UserStatusSuspended           UserStatus = "suspended"
	UserStatusDeleted             UserStatus = "deleted"
)

// UserRole enumerates coarse authorization roles attached to an identity.
type UserRole string

const (
	RoleUser      UserRole = "user"
	RoleModerator UserRole = "moderator"
	RoleAdmin     UserRole = "admin"
)

// RiskLevel classifies the account's current risk posture.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// PendingConfirmationID is the sentinel identifier assigned to accounts created
// while the backend withholds a session until the email address is confirmed.
// The real provider-issued identity only exists after verification.
const PendingConfirmationID = "pending-confirmation"

const maxDisplayNameLength = 100

var (
	// ErrMissingUserID indicates the provider returned an identity without an id.
	ErrMissingUserID = errors.New("user id is required")
	// ErrMissingEmail indicates the provider returned an identity without an email.
	ErrMissingEmail = errors.New("email is required")
	// ErrInvalidEmail indicates the email does not parse as an address.
	ErrInvalidEmail = errors.New("email is not a valid address")
	// ErrInvalidPhotoURL indicates the photo URL is malformed or not HTTPS.
	ErrInvalidPhotoURL = errors.New("photo url must be a well-formed https url")
)

// UserProfile carries the mutable presentation attributes of an account.
type UserProfile struct {
	DisplayName   string
	AvatarURL     string
	PhoneNumber   string
	PhoneVerified bool
}

// UserMetadata tracks activity and security posture for an account.
type UserMetadata struct {
	LastLoginAt      *time.Time
	LastActiveAt     *time.Time
	LoginCount       int
	DeviceCount      int
	MFAEnabled       bool
	BiometricEnabled bool
	SecurityScore    int
	RiskLevel        RiskLevel
	Language         string
	Timezone         string
}

// AuthUser is the normalized, validated snapshot of an authenticated identity,
// independent of the backing provider's raw shape. Instances are immutable once
// constructed; callers receive copies, never shared references.
type AuthUser struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	Status        UserStatus
	Role          UserRole
	Profile       UserProfile
	Metadata      UserMetadata
}

// AuthUserParams captures untrusted provider data prior to validation.
type AuthUserParams struct {
	ID            string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	Phone         string
	PhoneVerified bool
	Status        UserStatus
	Role          UserRole
	Metadata      UserMetadata
}

// NewAuthUser validates untrusted provider data and builds the normalized
// snapshot. Construction fails closed: any invariant violation returns an error
// rather than a partially populated entity.
func NewAuthUser(params AuthUserParams) (*AuthUser, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrMissingUserID
	}

	email, err := NormalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}

	displayName := SanitizeDisplayName(params.DisplayName)

	photoURL := strings.TrimSpace(params.PhotoURL)
	if photoURL != "" {
		parsed, err := url.Parse(photoURL)
		if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
			return nil, ErrInvalidPhotoURL
		}
	}

	status := params.Status
	if status == "" {
		status = UserStatusActive
	}

	role := params.Role
	if role == "" {
		role = RoleUser
	}

	metadata := params.Metadata
	if metadata.RiskLevel == "" {
		metadata.RiskLevel = RiskLow
	}

	return &AuthUser{
		ID:            id,
		Email:         email,
		EmailVerified: params.EmailVerified,
		DisplayName:   displayName,
		PhotoURL:      photoURL,
		Status:        status,
		Role:          role,
		Profile: UserProfile{
			DisplayName:   displayName,
			AvatarURL:     photoURL,
			PhoneNumber:   strings.TrimSpace(params.Phone),
			PhoneVerified: params.PhoneVerified,
		},
		Metadata: metadata,
	}, nil
}

// NewPendingConfirmationUser builds the placeholder identity returned when the
// backend requires email confirmation before a session exists.
func NewPendingConfirmationUser(email string) (*AuthUser, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	return &AuthUser{
		ID:            PendingConfirmationID,
		Email:         normalized,
		EmailVerified: false,
		Status:        UserStatusPendingVerification,
		Role:          RoleUser,
		Metadata:      UserMetadata{RiskLevel: RiskLow},
	}, nil
}

// Clone returns an independent copy of the snapshot.
func (u *AuthUser) Clone() *AuthUser {
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

// NormalizeEmail lower-cases, trims, and validates the address.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrMissingEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return addr.Address, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeDisplayName strips markup and truncates to the allowed length. The
// limit counts runes so truncation never splits a multi-byte character.
func SanitizeDisplayName(name string) string {
	cleaned := htmlTagPattern.ReplaceAllString(name, "")
	cleaned = strings.TrimSpace(cleaned)
	if utf8.RuneCountInString(cleaned) > maxDisplayNameLength {
		cleaned = string([]rune(cleaned)[:maxDisplayNameLength])
	}
	return cleaned
}
