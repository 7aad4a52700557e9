package domain

import "time"

// SecurityEventType is the closed set of authentication-relevant audit actions.
type SecurityEventType string

const (
	EventLogin                    SecurityEventType = "login"
	EventLoginFailed              SecurityEventType = "login_failed"
	EventLogout                   SecurityEventType = "logout"
	EventAccountCreated           SecurityEventType = "account_created"
	EventRegistrationFailed       SecurityEventType = "registration_failed"
	EventPasswordChanged          SecurityEventType = "password_changed"
	EventMFAEnabled               SecurityEventType = "mfa_enabled"
	EventMFADisabled              SecurityEventType = "mfa_disabled"
	EventBiometricEnabled         SecurityEventType = "biometric_enabled"
	EventBiometricAuthSuccess     SecurityEventType = "biometric_auth_success"
	EventBiometricAuthFailed      SecurityEventType = "biometric_auth_failed"
	EventOAuthLinked              SecurityEventType = "oauth_linked"
	EventOAuthUnlinked            SecurityEventType = "oauth_unlinked"
	EventEmailVerificationSuccess SecurityEventType = "email_verification_success"
	EventSuspiciousActivity       SecurityEventType = "suspicious_activity"
)

// Severity grades security events and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is an append-only audit log entry. Entries are never mutated or
// deleted by this service; erasure happens only through the separate data
// retention path.
type SecurityEvent struct {
	ID        string
	Type      SecurityEventType
	UserID    string
	Timestamp time.Time
	Severity  Severity
	Details   map[string]any
	IPAddress string
	UserAgent string
}

// SecurityAlert is derived on demand from a trailing window of security events.
// Alerts are never persisted; each request recomputes them.
type SecurityAlert struct {
	UserID    string
	Severity  Severity
	Reason    string
	Count     int
	Window    time.Duration
	RaisedAt  time.Time
}
