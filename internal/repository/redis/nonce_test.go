package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/arclightapps/identity-gateway/internal/repository"
)

func newTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	server := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: server.Addr()})
}

func TestBiometricNonceRepository_PutAndConsume(t *testing.T) {
	client := newTestRedis(t)
	repo := NewBiometricNonceRepository(client)
	ctx := context.Background()

	if err := repo.Put(ctx, "user-1", "nonce-abc", time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	nonce, err := repo.Consume(ctx, "user-1")
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if nonce != "nonce-abc" {
		t.Fatalf("unexpected nonce: %s", nonce)
	}

	if _, err := repo.Consume(ctx, "user-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second consume must miss, got %v", err)
	}
}

func TestBiometricNonceRepository_ConsumeMissing(t *testing.T) {
	client := newTestRedis(t)
	repo := NewBiometricNonceRepository(client)

	if _, err := repo.Consume(context.Background(), "user-unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}
}

func TestBiometricNonceRepository_PutReplacesOutstanding(t *testing.T) {
	client := newTestRedis(t)
	repo := NewBiometricNonceRepository(client)
	ctx := context.Background()

	if err := repo.Put(ctx, "user-1", "first", time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := repo.Put(ctx, "user-1", "second", time.Minute); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	nonce, err := repo.Consume(ctx, "user-1")
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if nonce != "second" {
		t.Fatalf("expected latest nonce, got %s", nonce)
	}
}
