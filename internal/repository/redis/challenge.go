package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

const (
	defaultChallengePrefix = "mfa"

	fieldAccountID = "account_id"
	fieldMethod    = "method"
	fieldCodeHash  = "code_hash"
	fieldAttempts  = "attempts"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldLastSent  = "last_sent"
)

// ChallengeRepository persists pending MFA challenges in Redis hashes.
type ChallengeRepository struct {
	client *red.Client
	prefix string
}

var _ port.ChallengeStore = (*ChallengeRepository)(nil)

// NewChallengeRepository constructs a challenge store with the provided Redis client and key prefix.
func NewChallengeRepository(client *red.Client, keyPrefix string) *ChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultChallengePrefix
	}

	return &ChallengeRepository{
		client: client,
		prefix: prefix,
	}
}

// Save persists the challenge hash and applies the TTL in one transaction.
func (r *ChallengeRepository) Save(ctx context.Context, challenge domain.MFAChallenge, ttl time.Duration) error {
	if challenge.Token == "" {
		return errors.New("challenge token is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	key := r.challengeKey(challenge.Token)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		fieldAccountID: challenge.AccountID,
		fieldMethod:    string(challenge.Method),
		fieldCodeHash:  challenge.CodeHash,
		fieldAttempts:  strconv.Itoa(challenge.Attempts),
		fieldCreatedAt: strconv.FormatInt(challenge.CreatedAt.Unix(), 10),
		fieldExpiresAt: strconv.FormatInt(challenge.ExpiresAt.Unix(), 10),
		fieldLastSent:  strconv.FormatInt(challenge.LastSent.Unix(), 10),
	})
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save challenge: %w", err)
	}

	return nil
}

// Get retrieves a pending challenge by its opaque token.
func (r *ChallengeRepository) Get(ctx context.Context, token string) (*domain.MFAChallenge, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token is required")
	}

	values, err := r.client.HGetAll(ctx, r.challengeKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	attempts, err := strconv.Atoi(values[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("parse attempts: %w", err)
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseUnix(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	lastSent, err := parseUnix(values[fieldLastSent])
	if err != nil {
		return nil, fmt.Errorf("parse last_sent: %w", err)
	}

	return &domain.MFAChallenge{
		Token:     token,
		AccountID: values[fieldAccountID],
		Method:    domain.MFAMethod(values[fieldMethod]),
		CodeHash:  values[fieldCodeHash],
		Attempts:  attempts,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		LastSent:  lastSent,
	}, nil
}

// IncrementAttempts atomically bumps the attempt counter.
func (r *ChallengeRepository) IncrementAttempts(ctx context.Context, token string) (int, error) {
	count, err := r.client.HIncrBy(ctx, r.challengeKey(token), fieldAttempts, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis increment attempts: %w", err)
	}
	return int(count), nil
}

// UpdateCode swaps the stored code hash on resend. The challenge TTL and
// attempt counter are deliberately untouched.
func (r *ChallengeRepository) UpdateCode(ctx context.Context, token string, codeHash string, sentAt time.Time) error {
	err := r.client.HSet(ctx, r.challengeKey(token), map[string]any{
		fieldCodeHash: codeHash,
		fieldLastSent: strconv.FormatInt(sentAt.Unix(), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("redis update code: %w", err)
	}
	return nil
}

// Delete removes the challenge after redemption or abandonment.
func (r *ChallengeRepository) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.challengeKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	return nil
}

// ConsumeCodeBucket marks a delivered code's time bucket as used via SETNX.
// Returns false when another verification already consumed the bucket.
func (r *ChallengeRepository) ConsumeCodeBucket(ctx context.Context, accountID string, bucket string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s:used:%s:%s", r.prefix, accountID, bucket)

	set, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis consume code bucket: %w", err)
	}
	return set, nil
}

func (r *ChallengeRepository) challengeKey(token string) string {
	return fmt.Sprintf("%s:challenge:%s", r.prefix, token)
}

func parseUnix(value string) (time.Time, error) {
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ts, 0).UTC(), nil
}
