package port

import (
	"context"
	"time"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
)

// AccountRepository exposes persistence behavior for customer accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// RecordFailure atomically increments the failed-attempt counter and,
	// when the new count reaches threshold, applies lockUntil in the same
	// statement. Returns the post-increment count and effective lock.
	RecordFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	// ResetFailures zeroes the counter and clears any lock.
	ResetFailures(ctx context.Context, id string) error
	// ClearLock removes an elapsed lock while leaving the counter at zero.
	ClearLock(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passwordDigest string, changedAt time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}
