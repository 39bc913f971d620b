package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

// DeviceRepository implements port.DeviceRepository for PostgreSQL.
type DeviceRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

var _ port.DeviceRepository = (*DeviceRepository)(nil)

// NewDeviceRepository constructs a DeviceRepository.
func NewDeviceRepository(pool *pgxpool.Pool) *DeviceRepository {
	return &DeviceRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var deviceColumns = []string{
	"id",
	"account_id",
	"fingerprint_hash",
	"label",
	"ip_created",
	"user_agent",
	"created_at",
	"last_used",
	"expires_at",
}

// Create inserts a device trust record.
func (r *DeviceRepository) Create(ctx context.Context, trust domain.DeviceTrust) error {
	sql, args, err := r.builder.Insert("auth.device_trusts").
		Columns(deviceColumns...).
		Values(
			trust.ID,
			trust.AccountID,
			trust.FingerprintHash,
			trust.Label,
			trust.IPCreated,
			trust.UserAgent,
			trust.CreatedAt,
			trust.LastUsed,
			trust.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert device trust sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert device trust: %w", err)
	}

	return nil
}

// GetByID fetches a device trust by primary key.
func (r *DeviceRepository) GetByID(ctx context.Context, trustID string) (*domain.DeviceTrust, error) {
	sql, args, err := r.builder.Select(deviceColumns...).
		From("auth.device_trusts").
		Where(squirrel.Eq{"id": trustID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select device trust sql: %w", err)
	}

	var trust domain.DeviceTrust
	err = r.pool.QueryRow(ctx, sql, args...).Scan(
		&trust.ID,
		&trust.AccountID,
		&trust.FingerprintHash,
		&trust.Label,
		&trust.IPCreated,
		&trust.UserAgent,
		&trust.CreatedAt,
		&trust.LastUsed,
		&trust.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select device trust: %w", err)
	}

	return &trust, nil
}

// ListByAccount returns trusts for an account ordered oldest first.
func (r *DeviceRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.DeviceTrust, error) {
	sql, args, err := r.builder.Select(deviceColumns...).
		From("auth.device_trusts").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list device trusts sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list device trusts: %w", err)
	}
	defer rows.Close()

	var trusts []domain.DeviceTrust
	for rows.Next() {
		var trust domain.DeviceTrust
		if err := rows.Scan(
			&trust.ID,
			&trust.AccountID,
			&trust.FingerprintHash,
			&trust.Label,
			&trust.IPCreated,
			&trust.UserAgent,
			&trust.CreatedAt,
			&trust.LastUsed,
			&trust.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan device trust: %w", err)
		}
		trusts = append(trusts, trust)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device trusts: %w", err)
	}

	return trusts, nil
}

// CountByAccount returns the number of stored trusts for an account.
func (r *DeviceRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	sql, args, err := r.builder.Select("COUNT(*)").
		From("auth.device_trusts").
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count device trusts sql: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count device trusts: %w", err)
	}

	return count, nil
}

// Touch stamps the trust's last successful use.
func (r *DeviceRepository) Touch(ctx context.Context, trustID string, at time.Time) error {
	sql, args, err := r.builder.Update("auth.device_trusts").
		Set("last_used", at).
		Where(squirrel.Eq{"id": trustID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch device trust sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch device trust: %w", err)
	}

	return nil
}

// Delete removes a trust record.
func (r *DeviceRepository) Delete(ctx context.Context, trustID string) error {
	sql, args, err := r.builder.Delete("auth.device_trusts").
		Where(squirrel.Eq{"id": trustID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete device trust sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete device trust: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteOldest evicts the account's oldest trust in a single statement and
// returns the evicted id.
func (r *DeviceRepository) DeleteOldest(ctx context.Context, accountID string) (string, error) {
	const sql = `
		DELETE FROM auth.device_trusts
		WHERE id = (
			SELECT id FROM auth.device_trusts
			WHERE account_id = $1
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING id`

	var evicted string
	if err := r.pool.QueryRow(ctx, sql, accountID).Scan(&evicted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("delete oldest device trust: %w", err)
	}

	return evicted, nil
}

// DeleteAllForAccount removes every trust for an account and returns the
// ids of the deleted records.
func (r *DeviceRepository) DeleteAllForAccount(ctx context.Context, accountID string) ([]string, error) {
	sql, args, err := r.builder.Delete("auth.device_trusts").
		Where(squirrel.Eq{"account_id": accountID}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete device trusts sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("delete device trusts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted trust id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read deleted trust ids: %w", err)
	}
	return ids, nil
}
