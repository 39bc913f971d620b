package port

import (
	"context"
	"time"
)

// RateLimitStore defines the storage operation backing expiring-window counters.
type RateLimitStore interface {
	// Increment bumps the counter for identifier in a single atomic round
	// trip, starting the window on first increment. Returns the
	// post-increment count and the time remaining in the window.
	Increment(ctx context.Context, identifier string, window time.Duration) (int64, time.Duration, error)
}
