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

// ResetTokenRepository implements port.ResetTokenRepository for PostgreSQL.
type ResetTokenRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

var _ port.ResetTokenRepository = (*ResetTokenRepository)(nil)

// NewResetTokenRepository constructs a ResetTokenRepository.
func NewResetTokenRepository(pool *pgxpool.Pool) *ResetTokenRepository {
	return &ResetTokenRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a reset token record.
func (r *ResetTokenRepository) Create(ctx context.Context, token domain.PasswordResetToken) error {
	sql, args, err := r.builder.Insert("auth.password_reset_tokens").
		Columns(
			"id",
			"account_id",
			"token_hash",
			"ip",
			"user_agent",
			"created_at",
			"expires_at",
			"used_at",
		).
		Values(
			token.ID,
			token.AccountID,
			token.TokenHash,
			token.IP,
			token.UserAgent,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset token sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

// GetByHash fetches a reset token by its stored hash.
func (r *ResetTokenRepository) GetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	sql, args, err := r.builder.Select(
		"id",
		"account_id",
		"token_hash",
		"ip",
		"user_agent",
		"created_at",
		"expires_at",
		"used_at",
	).
		From("auth.password_reset_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset token sql: %w", err)
	}

	var token domain.PasswordResetToken
	err = r.pool.QueryRow(ctx, sql, args...).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.IP,
		&token.UserAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select reset token: %w", err)
	}

	return &token, nil
}

// Consume marks the token used only when still unused, so concurrent
// redemptions collapse to a single winner.
func (r *ResetTokenRepository) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	const sql = `
		UPDATE auth.password_reset_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL`

	tag, err := r.pool.Exec(ctx, sql, id, at)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
