package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// PublishSecurityEvent logs the event at info level and reports success.
func (p *StubPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEvent) error {
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", at.UTC()),
		zap.Any("details", event.Details),
	)
	return nil
}

var _ port.SecurityEventPublisher = (*StubPublisher)(nil)
