package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclightapps/identity-gateway/internal/core/port"
	"github.com/arclightapps/identity-gateway/internal/repository"
)

// BiometricKeyRepository implements port.BiometricKeyRepository using PostgreSQL.
// One enrolled device key per user; re-enrollment replaces the previous key.
type BiometricKeyRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewBiometricKeyRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewBiometricKeyRepository(exec pgExecutor) *BiometricKeyRepository {
	repo := &BiometricKeyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Save upserts the enrolled key for a user.
func (r *BiometricKeyRepository) Save(ctx context.Context, key port.BiometricKey) error {
	var deviceValue any
	if key.DeviceID != "" {
		deviceValue = key.DeviceID
	}

	query := r.builder.Insert("idgw.biometric_keys").
		Columns("user_id", "public_key_pem", "biometry_type", "device_id", "created_at").
		Values(key.UserID, key.PublicKeyPEM, key.BiometryType, deviceValue, key.CreatedAt).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET public_key_pem = EXCLUDED.public_key_pem, biometry_type = EXCLUDED.biometry_type, device_id = EXCLUDED.device_id, created_at = EXCLUDED.created_at")

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert biometric key sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert biometric key: %w", err)
	}

	return nil
}

// GetByUserID fetches the enrolled key for a user.
func (r *BiometricKeyRepository) GetByUserID(ctx context.Context, userID string) (*port.BiometricKey, error) {
	stmt, args, err := r.builder.
		Select("user_id", "public_key_pem", "biometry_type", "device_id", "created_at").
		From("idgw.biometric_keys").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select biometric key sql: %w", err)
	}

	var (
		key      port.BiometricKey
		deviceID sql.NullString
	)

	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&key.UserID, &key.PublicKeyPEM, &key.BiometryType, &deviceID, &key.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select biometric key: %w", err)
	}

	if deviceID.Valid {
		key.DeviceID = deviceID.String
	}

	return &key, nil
}

// DeleteByUserID removes the enrolled key for a user. Missing rows are not an error.
func (r *BiometricKeyRepository) DeleteByUserID(ctx context.Context, userID string) error {
	stmt, args, err := r.builder.
		Delete("idgw.biometric_keys").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete biometric key sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete biometric key: %w", err)
	}

	return nil
}

// ExistsByUserID reports whether a user has an enrolled key.
func (r *BiometricKeyRepository) ExistsByUserID(ctx context.Context, userID string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("idgw.biometric_keys").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists biometric key sql: %w", err)
	}

	var marker int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&marker); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check biometric key existence: %w", err)
	}

	return true, nil
}

var _ port.BiometricKeyRepository = (*BiometricKeyRepository)(nil)
