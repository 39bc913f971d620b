package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/meridian-commerce/customer-auth/internal/core/port"
)

const defaultRateLimitPrefix = "ratelimit"

// RateLimitRepository keeps expiring-window attempt counters in Redis.
// Each window is a plain counter whose key expires with the window, so
// the increment and the window start are a single atomic exchange.
type RateLimitRepository struct {
	client *red.Client
	prefix string
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)

// NewRateLimitRepository constructs a repository using the provided Redis client and key prefix.
func NewRateLimitRepository(client *red.Client, keyPrefix string) *RateLimitRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RateLimitRepository{client: client, prefix: prefix}
}

// Increment bumps the counter for identifier, starting the window on the
// first hit. INCR, EXPIRE NX, and TTL travel in one MULTI/EXEC round trip
// so a concurrent increment can never observe a counter without a window.
func (r *RateLimitRepository) Increment(ctx context.Context, identifier string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		return 0, 0, errors.New("window must be positive")
	}

	key := r.key(identifier)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis increment window: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}

	return incr.Val(), remaining, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	return fmt.Sprintf("%s:%s", r.prefix, identifier)
}
