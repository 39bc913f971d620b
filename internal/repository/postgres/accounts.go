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

// AccountRepository implements port.AccountRepository for PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var accountColumns = []string{
	"id",
	"email",
	"phone",
	"password_digest",
	"status",
	"mfa_enabled",
	"totp_secret",
	"failed_attempts",
	"locked_until",
	"created_at",
	"updated_at",
	"last_login",
}

// GetByID fetches an account by primary key.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByEmail fetches an account by normalized email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

func (r *AccountRepository) getBy(ctx context.Context, cond squirrel.Eq) (*domain.Account, error) {
	sql, args, err := r.builder.Select(accountColumns...).
		From("auth.accounts").
		Where(cond).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	var account domain.Account
	err = r.pool.QueryRow(ctx, sql, args...).Scan(
		&account.ID,
		&account.Email,
		&account.Phone,
		&account.PasswordDigest,
		&account.Status,
		&account.MFAEnabled,
		&account.TOTPSecret,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}

	return &account, nil
}

// RecordFailure increments the failed-attempt counter and applies the lock
// in the same statement when the threshold is reached. The increment and
// the threshold comparison never race because they share one UPDATE.
func (r *AccountRepository) RecordFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	const sql = `
		UPDATE auth.accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE
		        WHEN failed_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts, locked_until`

	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.pool.QueryRow(ctx, sql, id, threshold, lockUntil).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, repository.ErrNotFound
		}
		return 0, nil, fmt.Errorf("record failure: %w", err)
	}

	return attempts, lockedUntil, nil
}

// ResetFailures zeroes the counter and clears any lock.
func (r *AccountRepository) ResetFailures(ctx context.Context, id string) error {
	sql, args, err := r.builder.Update("auth.accounts").
		Set("failed_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failures sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}

	return nil
}

// ClearLock removes an elapsed lock and restarts the failure counter.
func (r *AccountRepository) ClearLock(ctx context.Context, id string) error {
	sql, args, err := r.builder.Update("auth.accounts").
		Set("locked_until", nil).
		Set("failed_attempts", 0).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear lock sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("clear lock: %w", err)
	}

	return nil
}

// UpdatePassword swaps the stored digest.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordDigest string, changedAt time.Time) error {
	sql, args, err := r.builder.Update("auth.accounts").
		Set("password_digest", passwordDigest).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// RecordLogin stamps the last successful sign-in.
func (r *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	sql, args, err := r.builder.Update("auth.accounts").
		Set("last_login", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	return nil
}
