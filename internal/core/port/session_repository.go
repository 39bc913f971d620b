package port

import (
	"context"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (*domain.Session, error)
	Touch(ctx context.Context, sessionID string, ip *string, userAgent *string) error
	Revoke(ctx context.Context, sessionID string, reason string) error
	// RevokeAllForAccount revokes every active session the account holds
	// and returns the ids of the sessions it touched.
	RevokeAllForAccount(ctx context.Context, accountID string, reason string) ([]string, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]domain.Session, error)
	// RotateFamily swaps the session's token family in a single conditional
	// update. Returns false when the stored family no longer matches
	// oldFamily, which signals the presented refresh token was already
	// rotated out.
	RotateFamily(ctx context.Context, sessionID, oldFamily, newFamily string) (bool, error)
}
