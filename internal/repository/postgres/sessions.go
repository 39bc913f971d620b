package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

// SessionRepository implements port.SessionRepository for PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

var _ port.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var sessionColumns = []string{
	"id",
	"family_id",
	"account_id",
	"device_label",
	"ip_first",
	"ip_last",
	"user_agent",
	"created_at",
	"last_seen",
	"expires_at",
	"revoked_at",
	"revoke_reason",
}

// Create inserts a session record.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	sql, args, err := r.builder.Insert("auth.sessions").
		Columns(sessionColumns...).
		Values(
			session.ID,
			session.FamilyID,
			session.AccountID,
			session.DeviceLabel,
			session.IPFirst,
			session.IPLast,
			session.UserAgent,
			session.CreatedAt,
			session.LastSeen,
			session.ExpiresAt,
			session.RevokedAt,
			session.RevokeReason,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByID fetches a session record by primary key.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	sql, args, err := r.builder.Select(sessionColumns...).
		From("auth.sessions").
		Where(squirrel.Eq{"id": sessionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var session domain.Session
	err = r.pool.QueryRow(ctx, sql, args...).Scan(
		&session.ID,
		&session.FamilyID,
		&session.AccountID,
		&session.DeviceLabel,
		&session.IPFirst,
		&session.IPLast,
		&session.UserAgent,
		&session.CreatedAt,
		&session.LastSeen,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.RevokeReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}

	return &session, nil
}

// Touch updates session last-seen metadata.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, ip *string, userAgent *string) error {
	const sql = `
		UPDATE auth.sessions
		SET last_seen = now(),
		    ip_first = COALESCE(ip_first, $2),
		    ip_last = COALESCE($2, ip_last),
		    user_agent = COALESCE($3, user_agent)
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, sql, sessionID, ip, userAgent); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Revoke marks a session as revoked. Already revoked sessions are untouched.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, reason string) error {
	const sql = `
		UPDATE auth.sessions
		SET revoked_at = now(), revoke_reason = $2
		WHERE id = $1 AND revoked_at IS NULL`

	if _, err := r.pool.Exec(ctx, sql, sessionID, reason); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForAccount revokes every active session for an account and
// returns the ids of the sessions that changed state.
func (r *SessionRepository) RevokeAllForAccount(ctx context.Context, accountID string, reason string) ([]string, error) {
	const sql = `
		UPDATE auth.sessions
		SET revoked_at = now(), revoke_reason = $2
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > now()
		RETURNING id`

	rows, err := r.pool.Query(ctx, sql, accountID, reason)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions for account: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan revoked session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read revoked session ids: %w", err)
	}
	return ids, nil
}

// ListActiveByAccount returns active sessions ordered oldest first.
func (r *SessionRepository) ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	sql, args, err := r.builder.Select(sessionColumns...).
		From("auth.sessions").
		Where(squirrel.Eq{"account_id": accountID}).
		Where("revoked_at IS NULL").
		Where("expires_at > now()").
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.FamilyID,
			&session.AccountID,
			&session.DeviceLabel,
			&session.IPFirst,
			&session.IPLast,
			&session.UserAgent,
			&session.CreatedAt,
			&session.LastSeen,
			&session.ExpiresAt,
			&session.RevokedAt,
			&session.RevokeReason,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// RotateFamily performs the compare-and-swap at the heart of refresh token
// rotation. The WHERE clause matches only when the presented token's family
// is still current, so two concurrent refreshes can never both succeed.
func (r *SessionRepository) RotateFamily(ctx context.Context, sessionID, oldFamily, newFamily string) (bool, error) {
	const sql = `
		UPDATE auth.sessions
		SET family_id = $3, last_seen = now()
		WHERE id = $1 AND family_id = $2 AND revoked_at IS NULL`

	tag, err := r.pool.Exec(ctx, sql, sessionID, oldFamily, newFamily)
	if err != nil {
		return false, fmt.Errorf("rotate session family: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
