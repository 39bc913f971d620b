package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
)

// Rate limit scope names recorded on errors and metrics.
const (
	RateLimitScopeIP      = "signin_ip"
	RateLimitScopeAccount = "signin_account"
	RateLimitScopeResend  = "mfa_resend"
	RateLimitScopeReset   = "password_reset"
	// RateLimitScopeUnknown shadows the lockout counter for emails that have
	// no account, so their failure responses count down like real ones.
	RateLimitScopeUnknown = "signin_unknown"
)

// LimiterService enforces expiring-window attempt counters. Store failures
// never block the caller; the degradation is logged and counted so it can
// be alerted on.
type LimiterService struct {
	cfg    *config.AppConfig
	store  port.RateLimitStore
	logger *zap.Logger

	storeFailures *prometheus.CounterVec
}

// NewLimiterService constructs a LimiterService backed by the supplied store.
func NewLimiterService(cfg *config.AppConfig, store port.RateLimitStore, logger *zap.Logger) *LimiterService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LimiterService{
		cfg:           cfg,
		store:         store,
		logger:        logger,
		storeFailures: newStoreFailureCounter(prometheus.DefaultRegisterer),
	}
}

// WithRegisterer re-registers the degradation counter, for tests that need
// an isolated registry.
func (s *LimiterService) WithRegisterer(reg prometheus.Registerer) *LimiterService {
	s.storeFailures = newStoreFailureCounter(reg)
	return s
}

func newStoreFailureCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auth",
		Subsystem: "ratelimit",
		Name:      "store_failures_total",
		Help:      "Rate limit store errors that caused a fail-open decision.",
	}, []string{"scope"})

	if reg == nil {
		return counter
	}
	if err := reg.Register(counter); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return counter
}

// Allow consumes one attempt for identifier within scope. It returns a
// RateLimitExceededError when the counter is over limit, and nil when the
// attempt is admitted. A store error admits the attempt.
func (s *LimiterService) Allow(ctx context.Context, scope, identifier string, limit int, window time.Duration) error {
	if s.store == nil || limit <= 0 || identifier == "" {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}

	key := fmt.Sprintf("%s:%s", scope, identifier)
	count, remaining, err := s.store.Increment(ctx, key, window)
	if err != nil {
		s.storeFailures.WithLabelValues(scope).Inc()
		s.logger.Error("rate limit store unavailable, admitting attempt",
			zap.String("scope", scope),
			zap.Error(err))
		return nil
	}

	if count > int64(limit) {
		return &RateLimitExceededError{Scope: scope, RetryAfter: remaining}
	}

	return nil
}

// ObserveFailure counts a failed attempt for identifier within scope and
// returns the post-increment count together with the time left in the
// window. A store error reports a first failure so the caller's response
// stays well-formed.
func (s *LimiterService) ObserveFailure(ctx context.Context, scope, identifier string, window time.Duration) (int, time.Duration) {
	if s.store == nil || identifier == "" {
		return 1, window
	}
	if window <= 0 {
		window = time.Minute
	}

	key := fmt.Sprintf("%s:%s", scope, identifier)
	count, remaining, err := s.store.Increment(ctx, key, window)
	if err != nil {
		s.storeFailures.WithLabelValues(scope).Inc()
		s.logger.Error("rate limit store unavailable, reporting first failure",
			zap.String("scope", scope),
			zap.Error(err))
		return 1, window
	}

	return int(count), remaining
}

// AllowSignin applies the sign-in counters in order: the source IP first,
// then the target account identifier. Both consume an attempt.
func (s *LimiterService) AllowSignin(ctx context.Context, ip, email string) error {
	if err := s.Allow(ctx, RateLimitScopeIP, ip, s.cfg.RateLimit.IPLimit, s.cfg.RateLimit.IPWindow); err != nil {
		return err
	}
	return s.Allow(ctx, RateLimitScopeAccount, email, s.cfg.RateLimit.AccountLimit, s.cfg.RateLimit.AccountWindow)
}
