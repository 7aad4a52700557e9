package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arclightapps/identity-gateway/internal/core/domain"
	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/repository"
)

func TestSecurityEventRepository_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSecurityEventRepository(mock)

	occurredAt := time.Now().UTC()
	event := domain.SecurityEvent{
		ID:        "event-1",
		Type:      domain.EventLogin,
		UserID:    "user-1",
		Timestamp: occurredAt,
		Severity:  domain.SeverityLow,
		Details:   map[string]any{"stage": "password"},
		IPAddress: "203.0.113.4",
		UserAgent: "UA",
	}

	mock.ExpectExec(`INSERT INTO idgw\.security_events`).
		WithArgs(
			event.ID,
			string(event.Type),
			event.UserID,
			event.Timestamp,
			string(event.Severity),
			[]byte(`{"stage":"password"}`),
			event.IPAddress,
			event.UserAgent,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Append(context.Background(), event); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSecurityEventRepository_ListByUserSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSecurityEventRepository(mock)

	occurredAt := time.Now().UTC()
	since := occurredAt.Add(-24 * time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "event_type", "user_id", "occurred_at", "severity", "details", "ip_address", "user_agent",
	}).AddRow(
		"event-1", "login_failed", "user-1", occurredAt, "medium", []byte(`{"reason":"bad password"}`), "203.0.113.4", "UA",
	).AddRow(
		"event-2", "login", "user-1", occurredAt.Add(-time.Hour), "low", []byte(nil), nil, nil,
	)

	mock.ExpectQuery(`SELECT .+ FROM idgw\.security_events`).
		WithArgs("user-1", since).
		WillReturnRows(rows)

	events, err := repo.ListByUserSince(context.Background(), "user-1", since, 50)
	if err != nil {
		t.Fatalf("ListByUserSince returned error: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != domain.EventLoginFailed {
		t.Fatalf("unexpected first event type: %s", events[0].Type)
	}
	if events[0].Details["reason"] != "bad password" {
		t.Fatalf("details not decoded: %v", events[0].Details)
	}
	if events[1].IPAddress != "" {
		t.Fatalf("null ip should decode to empty string: %q", events[1].IPAddress)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSecurityEventRepository_CountByTypeSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSecurityEventRepository(mock)

	since := time.Now().UTC().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM idgw\.security_events`).
		WithArgs("user-1", "login_failed", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(6))

	count, err := repo.CountByTypeSince(context.Background(), "user-1", domain.EventLoginFailed, since)
	if err != nil {
		t.Fatalf("CountByTypeSince returned error: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBiometricKeyRepository_GetByUserIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewBiometricKeyRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM idgw\.biometric_keys`).
		WithArgs("user-unknown").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "public_key_pem", "biometry_type", "device_id", "created_at"}))

	_, err = repo.GetByUserID(context.Background(), "user-unknown")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected repository.ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBiometricKeyRepository_SaveAndExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewBiometricKeyRepository(mock)

	createdAt := time.Now().UTC()
	key := port.BiometricKey{
		UserID:       "user-1",
		PublicKeyPEM: "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----",
		BiometryType: "faceId",
		DeviceID:     "device-9",
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO idgw\.biometric_keys`).
		WithArgs(key.UserID, key.PublicKeyPEM, key.BiometryType, key.DeviceID, key.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Save(context.Background(), key); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	mock.ExpectQuery(`SELECT 1 FROM idgw\.biometric_keys`).
		WithArgs(key.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByUserID(context.Background(), key.UserID)
	if err != nil {
		t.Fatalf("ExistsByUserID returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected key to exist")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
