package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
)

const (
	defaultDispatchBuffer  = 256
	defaultDispatchTimeout = 5 * time.Second
)

// SecurityThresholds configures the suspicious-activity heuristic. Values are
// injected from configuration rather than hard-coded so the heuristic is
// tunable without code changes.
type SecurityThresholds struct {
	FailedLoginLimit    int
	PasswordChangeLimit int
	Window              time.Duration
}

// DefaultSecurityThresholds matches the documented heuristic baseline.
func DefaultSecurityThresholds() SecurityThresholds {
	return SecurityThresholds{
		FailedLoginLimit:    5,
		PasswordChangeLimit: 2,
		Window:              24 * time.Hour,
	}
}

// SecurityService owns the append-only security event log and the
// suspicious-activity heuristic. Recording is best-effort by construction: a
// failed audit write must never turn an authentication success into a failure,
// so writes happen on a dedicated dispatch goroutine with its own error
// boundary and are only reported through diagnostics.
type SecurityService struct {
	store      port.SecurityEventStore
	publisher  port.SecurityEventPublisher
	logger     *zap.Logger
	thresholds SecurityThresholds
	now        func() time.Time

	ch        chan domain.SecurityEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once

	recordedMetric EventCounter
	droppedMetric  EventCounter
}

// EventCounter is the minimal metric surface the dispatcher reports to.
// Prometheus counters satisfy it.
type EventCounter interface {
	Inc()
}

// NewSecurityService constructs the event log service and starts its dispatcher.
func NewSecurityService(store port.SecurityEventStore, publisher port.SecurityEventPublisher, thresholds SecurityThresholds, logger *zap.Logger) *SecurityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if thresholds.FailedLoginLimit <= 0 {
		thresholds.FailedLoginLimit = DefaultSecurityThresholds().FailedLoginLimit
	}
	if thresholds.PasswordChangeLimit <= 0 {
		thresholds.PasswordChangeLimit = DefaultSecurityThresholds().PasswordChangeLimit
	}
	if thresholds.Window <= 0 {
		thresholds.Window = DefaultSecurityThresholds().Window
	}

	s := &SecurityService{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		thresholds: thresholds,
		now:        time.Now,
		ch:         make(chan domain.SecurityEvent, defaultDispatchBuffer),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.dispatch()

	return s
}

// WithMetrics wires counters for accepted and dropped events.
func (s *SecurityService) WithMetrics(recorded, dropped EventCounter) *SecurityService {
	s.recordedMetric = recorded
	s.droppedMetric = dropped
	return s
}

// WithClock overrides the time source. Intended for tests.
func (s *SecurityService) WithClock(now func() time.Time) *SecurityService {
	if now != nil {
		s.now = now
	}
	return s
}

// Record appends a security event. It never blocks the calling authentication
// flow and never returns an error: when the buffer is full the event is
// dropped and counted.
func (s *SecurityService) Record(_ context.Context, event domain.SecurityEvent) {
	if s == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = domain.SeverityLow
	}

	select {
	case s.ch <- event:
		if s.recordedMetric != nil {
			s.recordedMetric.Inc()
		}
	case <-s.done:
	default:
		s.dropped.Add(1)
		if s.droppedMetric != nil {
			s.droppedMetric.Inc()
		}
		s.logger.Warn("security event buffer full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("user_id", event.UserID),
		)
	}
}

func (s *SecurityService) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.ch:
			s.persist(event)
		case <-s.done:
			for {
				select {
				case event := <-s.ch:
					s.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (s *SecurityService) persist(event domain.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultDispatchTimeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.Append(ctx, event); err != nil {
			s.logger.Warn("append security event failed",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
				zap.String("user_id", event.UserID),
			)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSecurityEvent(ctx, event); err != nil {
			s.logger.Warn("publish security event failed",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}

// Close drains pending events and stops the dispatcher.
func (s *SecurityService) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *SecurityService) Dropped() uint64 {
	return s.dropped.Load()
}

// RecentEvents lists the user's events inside the heuristic window.
func (s *SecurityService) RecentEvents(ctx context.Context, userID string, limit int) ([]domain.SecurityEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("security event store not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	since := s.now().UTC().Add(-s.thresholds.Window)
	events, err := s.store.ListByUserSince(ctx, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list security events: %w", err)
	}

	return events, nil
}

// CheckSuspiciousActivity recomputes alerts from the trailing window. A
// failed-login count above the configured limit raises a high-severity alert;
// a password-change count above its limit raises a medium-severity alert.
// Alerts for both criteria can co-exist in the same window.
func (s *SecurityService) CheckSuspiciousActivity(ctx context.Context, userID string) ([]domain.SecurityAlert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("security event store not configured")
	}

	now := s.now().UTC()
	since := now.Add(-s.thresholds.Window)

	failedLogins, err := s.store.CountByTypeSince(ctx, userID, domain.EventLoginFailed, since)
	if err != nil {
		return nil, fmt.Errorf("count failed logins: %w", err)
	}

	passwordChanges, err := s.store.CountByTypeSince(ctx, userID, domain.EventPasswordChanged, since)
	if err != nil {
		return nil, fmt.Errorf("count password changes: %w", err)
	}

	var alerts []domain.SecurityAlert
	if failedLogins > s.thresholds.FailedLoginLimit {
		alerts = append(alerts, domain.SecurityAlert{
			UserID:   userID,
			Severity: domain.SeverityHigh,
			Reason:   "excessive failed login attempts",
			Count:    failedLogins,
			Window:   s.thresholds.Window,
			RaisedAt: now,
		})
	}
	if passwordChanges > s.thresholds.PasswordChangeLimit {
		alerts = append(alerts, domain.SecurityAlert{
			UserID:   userID,
			Severity: domain.SeverityMedium,
			Reason:   "excessive password changes",
			Count:    passwordChanges,
			Window:   s.thresholds.Window,
			RaisedAt: now,
		})
	}

	if len(alerts) > 0 {
		s.Record(ctx, domain.SecurityEvent{
			Type:     domain.EventSuspiciousActivity,
			UserID:   userID,
			Severity: highestSeverity(alerts),
			Details: map[string]any{
				"alert_count":      len(alerts),
				"failed_logins":    failedLogins,
				"password_changes": passwordChanges,
			},
		})
	}

	return alerts, nil
}

func highestSeverity(alerts []domain.SecurityAlert) domain.Severity {
	result := domain.SeverityLow
	rank := map[domain.Severity]int{
		domain.SeverityLow:      0,
		domain.SeverityMedium:   1,
		domain.SeverityHigh:     2,
		domain.SeverityCritical: 3,
	}
	for _, alert := range alerts {
		if rank[alert.Severity] > rank[result] {
			result = alert.Severity
		}
	}
	return result
}
