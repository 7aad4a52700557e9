package port

import (
	"context"
	"time"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
)

// SecurityEventStore is the append-only persistence target for audit entries.
type SecurityEventStore interface {
	Append(ctx context.Context, event domain.SecurityEvent) error
	ListByUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]domain.SecurityEvent, error)
	CountByTypeSince(ctx context.Context, userID string, eventType domain.SecurityEventType, since time.Time) (int, error)
}

// SecurityEventPublisher fans security events out to the message bus.
type SecurityEventPublisher interface {
	PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error
}
