package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/repository"
)

const nonceKeyPrefix = "biometric:nonce"

// BiometricNonceRepository stores single-use challenge nonces in Redis.
// Consume uses GETDEL so a nonce can only ever authenticate once.
type BiometricNonceRepository struct {
	client *redis.Client
}

// NewBiometricNonceRepository constructs the nonce store.
func NewBiometricNonceRepository(client *redis.Client) *BiometricNonceRepository {
	return &BiometricNonceRepository{client: client}
}

// Put stores the nonce for a user, replacing any outstanding challenge.
func (r *BiometricNonceRepository) Put(ctx context.Context, userID, nonce string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(userID), nonce, ttl).Err(); err != nil {
		return fmt.Errorf("redis set nonce: %w", err)
	}
	return nil
}

// Consume atomically fetches and deletes the user's nonce. Expired or missing
// nonces return repository.ErrNotFound.
func (r *BiometricNonceRepository) Consume(ctx context.Context, userID string) (string, error) {
	value, err := r.client.GetDel(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis getdel nonce: %w", err)
	}
	return value, nil
}

func (r *BiometricNonceRepository) key(userID string) string {
	return fmt.Sprintf("%s:%s", nonceKeyPrefix, userID)
}

var _ port.BiometricNonceStore = (*BiometricNonceRepository)(nil)
