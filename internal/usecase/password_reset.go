package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/infra/logger"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

const resetTokenBytes = 32

// ResetRequestResult acknowledges a reset request. Its shape is the same
// whether or not the submitted email belongs to an account.
type ResetRequestResult struct {
	RequestID string
}

// ResetOutcome reports the effects of a completed password reset.
type ResetOutcome struct {
	AccountID           string
	ChangedAt           time.Time
	SessionsInvalidated int
	DeviceTrustsRevoked int
}

// PasswordResetService drives the forgot-password flow.
type PasswordResetService struct {
	cfg       *config.AppConfig
	accounts  port.AccountRepository
	tokens    port.ResetTokenRepository
	sessions  *SessionService
	devices   *DeviceService
	limiter   *LimiterService
	notifier  port.Notifier
	validator *security.PasswordValidator
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	tokens port.ResetTokenRepository,
	sessions *SessionService,
	devices *DeviceService,
	limiter *LimiterService,
	notifier port.Notifier,
	validator *security.PasswordValidator,
	events port.EventPublisher,
	log *zap.Logger,
) *PasswordResetService {
	if log == nil {
		log = zap.NewNop()
	}
	if validator == nil {
		validator = security.NewPasswordValidator(security.DefaultPasswordRules()...)
	}

	return &PasswordResetService{
		cfg:       cfg,
		accounts:  accounts,
		tokens:    tokens,
		sessions:  sessions,
		devices:   devices,
		limiter:   limiter,
		notifier:  notifier,
		validator: validator,
		events:    events,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// RequestReset opens a password reset for the submitted email. The returned
// acknowledgement never discloses whether the email matched an account; a
// miss performs the same work shape and returns the same result.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string, ip, userAgent *string) (*ResetRequestResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, RateLimitScopeReset, email, s.cfg.Reset.RequestLimit, s.cfg.Reset.RequestWindow); err != nil {
			return nil, err
		}
	}

	requestID := uuid.NewString()
	now := s.now().UTC()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Keep the miss path indistinguishable from a hit.
			if _, genErr := security.GenerateSecureToken(resetTokenBytes); genErr != nil {
				s.logger.Warn("reset token generation failed on miss path", zap.Error(genErr))
			}
			return &ResetRequestResult{RequestID: requestID}, nil
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	rawToken, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	record := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: security.HashToken(rawToken),
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL()),
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store reset token: %w", err)
	}

	s.deliverEmail(ctx, account.Email, rawToken)

	if s.events != nil {
		if err := s.events.PublishPasswordResetRequested(ctx, domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			AccountID:         account.ID,
			RequestID:         requestID,
			MaskedDestination: logger.MaskEmail(account.Email),
			IPAddress:         ip,
			ExpiresAt:         record.ExpiresAt,
			OccurredAt:        now,
		}); err != nil {
			s.logger.Warn("publish password reset requested event failed", zap.Error(err))
		}
	}

	return &ResetRequestResult{RequestID: requestID}, nil
}

// ValidateToken checks a reset token without consuming it. Used to decide
// whether to render the new-password form.
func (s *PasswordResetService) ValidateToken(ctx context.Context, rawToken string) (*domain.PasswordResetToken, error) {
	record, err := s.lookupToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// EvaluatePassword runs the password rule checklist without changing anything.
func (s *PasswordResetService) EvaluatePassword(password string) []security.PasswordRuleResult {
	return s.validator.Evaluate(password)
}

// CompleteReset consumes the token, sets the new password, and revokes
// every session and device trust the account holds.
func (s *PasswordResetService) CompleteReset(ctx context.Context, rawToken, newPassword string, ip, userAgent *string) (*ResetOutcome, error) {
	if err := s.validator.Validate(newPassword); err != nil {
		return nil, err
	}

	record, err := s.lookupToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	consumed, err := s.tokens.Consume(ctx, record.ID, now)
	if err != nil {
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	if !consumed {
		// Lost the race against a concurrent consume.
		return nil, ErrResetTokenUsed
	}

	digest, err := security.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, record.AccountID, digest, now); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	if err := s.accounts.ResetFailures(ctx, record.AccountID); err != nil {
		s.logger.Warn("reset failure counter after password change failed",
			zap.String("account_id", record.AccountID), zap.Error(err))
	}

	outcome := &ResetOutcome{AccountID: record.AccountID, ChangedAt: now}

	if s.sessions != nil {
		revoked, err := s.sessions.RevokeAll(ctx, record.AccountID, domain.RevokeReasonPasswordReset)
		if err != nil {
			return nil, err
		}
		outcome.SessionsInvalidated = revoked
	}

	if s.devices != nil {
		revoked, err := s.devices.RevokeAll(ctx, record.AccountID, DeviceRevokedReset)
		if err != nil {
			return nil, err
		}
		outcome.DeviceTrustsRevoked = revoked
	}

	if s.events != nil {
		if err := s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			EventID:             uuid.NewString(),
			AccountID:           record.AccountID,
			ChangedBy:           "password_reset",
			SessionsRevoked:     outcome.SessionsInvalidated,
			DeviceTrustsRevoked: outcome.DeviceTrustsRevoked,
			OccurredAt:          now,
		}); err != nil {
			s.logger.Warn("publish password changed event failed", zap.Error(err))
		}
	}

	return outcome, nil
}

func (s *PasswordResetService) lookupToken(ctx context.Context, rawToken string) (*domain.PasswordResetToken, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrResetTokenInvalid
	}

	record, err := s.tokens.GetByHash(ctx, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResetTokenInvalid
		}
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}

	// Used and expired are distinct outcomes: the caller already holds the
	// token, so naming the reason leaks nothing.
	if record.UsedAt != nil {
		return nil, ErrResetTokenUsed
	}
	if !record.ExpiresAt.After(s.now().UTC()) {
		return nil, ErrResetTokenExpired
	}

	return record, nil
}

func (s *PasswordResetService) deliverEmail(ctx context.Context, email, token string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendResetEmail(ctx, email, token); err != nil {
		s.logger.Error("reset email delivery failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
	}
}

func (s *PasswordResetService) tokenTTL() time.Duration {
	if ttl := s.cfg.Reset.TokenTTL; ttl > 0 {
		return ttl
	}
	return time.Hour
}
