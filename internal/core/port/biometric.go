package port

import (
	"context"
	"time"
)

// BiometricKey stores the device secure-enclave public key enrolled for a user.
type BiometricKey struct {
	UserID       string
	PublicKeyPEM string
	BiometryType string
	DeviceID     string
	CreatedAt    time.Time
}

// BiometricKeyRepository persists enrolled device keys.
type BiometricKeyRepository interface {
	Save(ctx context.Context, key BiometricKey) error
	GetByUserID(ctx context.Context, userID string) (*BiometricKey, error)
	DeleteByUserID(ctx context.Context, userID string) error
	ExistsByUserID(ctx context.Context, userID string) (bool, error)
}

// BiometricNonceStore holds single-use challenge nonces with a TTL. Consume
// removes the nonce so a signature can never be replayed against a second
// authentication.
type BiometricNonceStore interface {
	Put(ctx context.Context, userID, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, userID string) (string, error)
}

// BiometricVerifier checks a device signature over a challenge nonce against
// the enrolled public key.
type BiometricVerifier interface {
	VerifySignature(publicKeyPEM string, nonce, signature string) error
}
