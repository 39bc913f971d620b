package port

import (
	"context"
	"time"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
)

// ChallengeStore keeps pending MFA challenges in an expiring store.
type ChallengeStore interface {
	Save(ctx context.Context, challenge domain.MFAChallenge, ttl time.Duration) error
	Get(ctx context.Context, token string) (*domain.MFAChallenge, error)
	// IncrementAttempts atomically bumps the attempt counter and returns
	// the post-increment value.
	IncrementAttempts(ctx context.Context, token string) (int, error)
	// UpdateCode swaps the stored code hash on resend without touching the
	// challenge TTL or attempt counter.
	UpdateCode(ctx context.Context, token string, codeHash string, sentAt time.Time) error
	Delete(ctx context.Context, token string) error
	// ConsumeCodeBucket marks a delivered code's time bucket as used.
	// Returns false when the bucket was already consumed.
	ConsumeCodeBucket(ctx context.Context, accountID string, bucket string, ttl time.Duration) (bool, error)
}
