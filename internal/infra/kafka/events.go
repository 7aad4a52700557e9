package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/infra/config"
)

const schemaVersion = "1.0"

// SecurityEventTopic is the logical topic suffix for account security events.
const SecurityEventTopic = "security.event"

// SecurityEventPublisher implements port.SecurityEventPublisher using Kafka.
type SecurityEventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewSecurityEventPublisher constructs a Kafka-backed security event publisher.
func NewSecurityEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *SecurityEventPublisher {
	return &SecurityEventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

// PublishSecurityEvent publishes one security event to the shared topic.
func (p *SecurityEventPublisher) PublishSecurityEvent(ctx context.Context, event domain.SecurityEvent) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	payload := struct {
		Type      string         `json:"type"`
		UserID    string         `json:"user_id"`
		Severity  string         `json:"severity"`
		Details   map[string]any `json:"details,omitempty"`
		IPAddress string         `json:"ip_address,omitempty"`
		UserAgent string         `json:"user_agent,omitempty"`
	}{
		Type:      string(event.Type),
		UserID:    event.UserID,
		Severity:  string(event.Severity),
		Details:   event.Details,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: string(event.Type),
		UserID:    event.UserID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(SecurityEventTopic),
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.SecurityEventPublisher = (*SecurityEventPublisher)(nil)
