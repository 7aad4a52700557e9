package port

import (
	"context"
	"time"
)

// RateLimitStore persists authentication attempts for sliding-window
// throttling. Identifiers are opaque to the store; the transport layer decides
// whether they are IPs, emails, or composites of both.
type RateLimitStore interface {
	// TrimWindow drops attempts that fell out of the window ending at reference.
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	// CountAttempts reports how many attempts remain inside the window.
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	// RecordAttempt stores one attempt at the given instant.
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	// OldestAttempt returns the earliest attempt still inside the window, if any.
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}
