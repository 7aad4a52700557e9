package domain

import "time"

// MFAMethod enumerates supported second-factor delivery methods.
type MFAMethod string

const (
	MFAMethodTOTP  MFAMethod = "totp"
	MFAMethodSMS   MFAMethod = "sms"
	MFAMethodEmail MFAMethod = "email"
)

// MFAChallenge represents "primary credentials verified, second factor pending".
// It is transient and single-use: the provider owns the challenge state, this
// layer only relays it. A challenge is consumed by exactly one matching verify
// call and expires after the provider-defined TTL.
type MFAChallenge struct {
	ChallengeID  string
	FactorID     string
	Method       MFAMethod
	MaskedTarget string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the challenge is past its TTL at the given time.
func (c MFAChallenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
