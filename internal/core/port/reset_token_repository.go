package port

import (
	"context"
	"time"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
)

// ResetTokenRepository manages password reset token records.
type ResetTokenRepository interface {
	Create(ctx context.Context, token domain.PasswordResetToken) error
	GetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	// Consume marks the token used. Returns false when it was already
	// consumed by a concurrent request.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
}
