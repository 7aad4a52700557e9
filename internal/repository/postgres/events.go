package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
)

// SecurityEventRepository implements port.SecurityEventStore using PostgreSQL.
type SecurityEventRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSecurityEventRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSecurityEventRepository(exec pgExecutor) *SecurityEventRepository {
	repo := &SecurityEventRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SecurityEventRepository) WithTx(tx pgx.Tx) *SecurityEventRepository {
	if tx == nil {
		return r
	}
	return &SecurityEventRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Append inserts one audit entry. Entries are never updated or deleted.
func (r *SecurityEventRepository) Append(ctx context.Context, event domain.SecurityEvent) error {
	var detailsValue any
	if len(event.Details) > 0 {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshal event details: %w", err)
		}
		detailsValue = encoded
	}

	var ipValue any
	if event.IPAddress != "" {
		ipValue = event.IPAddress
	}

	var agentValue any
	if event.UserAgent != "" {
		agentValue = event.UserAgent
	}

	query := r.builder.Insert("idgw.security_events").
		Columns(
			"id",
			"event_type",
			"user_id",
			"occurred_at",
			"severity",
			"details",
			"ip_address",
			"user_agent",
		).
		Values(
			event.ID,
			string(event.Type),
			event.UserID,
			event.Timestamp,
			string(event.Severity),
			detailsValue,
			ipValue,
			agentValue,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}

	return nil
}

// ListByUserSince returns the user's audit entries newest first.
func (r *SecurityEventRepository) ListByUserSince(ctx context.Context, userID string, since time.Time, limit int) ([]domain.SecurityEvent, error) {
	builder := r.builder.
		Select(
			"id",
			"event_type",
			"user_id",
			"occurred_at",
			"severity",
			"details",
			"ip_address",
			"user_agent",
		).
		From("idgw.security_events").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"occurred_at": since}).
		OrderBy("occurred_at DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		event, err := scanSecurityEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}

	return events, nil
}

// CountByTypeSince counts one event type for a user within the window.
func (r *SecurityEventRepository) CountByTypeSince(ctx context.Context, userID string, eventType domain.SecurityEventType, since time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("idgw.security_events").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"event_type": string(eventType)}).
		Where(squirrel.GtOrEq{"occurred_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count events sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}

	return count, nil
}

func scanSecurityEvent(row pgx.Row) (domain.SecurityEvent, error) {
	var (
		event     domain.SecurityEvent
		eventType string
		severity  string
		details   []byte
		ipAddress sql.NullString
		userAgent sql.NullString
	)

	if err := row.Scan(
		&event.ID,
		&eventType,
		&event.UserID,
		&event.Timestamp,
		&severity,
		&details,
		&ipAddress,
		&userAgent,
	); err != nil {
		return domain.SecurityEvent{}, fmt.Errorf("scan security event: %w", err)
	}

	event.Type = domain.SecurityEventType(eventType)
	event.Severity = domain.Severity(severity)

	if len(details) > 0 {
		if err := json.Unmarshal(details, &event.Details); err != nil {
			return domain.SecurityEvent{}, fmt.Errorf("unmarshal event details: %w", err)
		}
	}
	if ipAddress.Valid {
		event.IPAddress = ipAddress.String
	}
	if userAgent.Valid {
		event.UserAgent = userAgent.String
	}

	return event, nil
}

var _ port.SecurityEventStore = (*SecurityEventRepository)(nil)
