package redis

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitRepository_SlidingWindow(t *testing.T) {
	client := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "ratelimit:login", TTL: time.Hour})
	ctx := context.Background()

	now := time.Now().UTC()
	window := time.Minute

	for i := 0; i < 3; i++ {
		if err := repo.RecordAttempt(ctx, "user@example.com", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}
	// One stale attempt outside the window.
	if err := repo.RecordAttempt(ctx, "user@example.com", now.Add(-2*window)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	reference := now.Add(3 * time.Second)

	count, err := repo.CountAttempts(ctx, "user@example.com", window, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts in window, got %d", count)
	}

	oldest, found, err := repo.OldestAttempt(ctx, "user@example.com", window, reference)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !found {
		t.Fatal("expected an attempt inside the window")
	}
	if got := oldest.UTC(); !got.Equal(now) {
		t.Fatalf("unexpected oldest attempt: %v want %v", got, now)
	}

	if err := repo.TrimWindow(ctx, "user@example.com", window, reference); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	count, err = repo.CountAttempts(ctx, "user@example.com", 3*window, reference)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("trim should have removed the stale attempt, got %d", count)
	}
}

func TestRateLimitRepository_EmptyWindow(t *testing.T) {
	client := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "ratelimit:login"})
	ctx := context.Background()

	count, err := repo.CountAttempts(ctx, "nobody@example.com", time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 attempts, got %d", count)
	}

	_, found, err := repo.OldestAttempt(ctx, "nobody@example.com", time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if found {
		t.Fatal("expected no attempts")
	}
}
