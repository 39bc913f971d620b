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

// Failure reasons recorded on login failed events.
const (
	loginFailReasonUnknownAccount = "unknown_account"
	loginFailReasonBadPassword    = "bad_password"
	loginFailReasonLocked         = "account_locked"
	loginFailReasonInactive       = "account_inactive"
)

// LoginInput carries a sign-in request.
type LoginInput struct {
	Email             string
	Password          string
	IP                *string
	UserAgent         *string
	DeviceTrustID     string
	DeviceFingerprint string
}

// LoginResult is the outcome of a successful credential check. When the
// account requires a second factor the token pair is absent and Challenge
// describes the pending verification.
type LoginResult struct {
	Account     *domain.Account
	MFARequired bool
	Challenge   *ChallengeResult
	Tokens      *TokenPair
}

// AuthService coordinates the credential validation flow.
type AuthService struct {
	cfg      *config.AppConfig
	accounts port.AccountRepository
	limiter  *LimiterService
	tokens   *TokenService
	mfa      *MFAService
	devices  *DeviceService
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	limiter *LimiterService,
	tokens *TokenService,
	mfa *MFAService,
	devices *DeviceService,
	events port.EventPublisher,
	log *zap.Logger,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		cfg:      cfg,
		accounts: accounts,
		limiter:  limiter,
		tokens:   tokens,
		mfa:      mfa,
		devices:  devices,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login validates the submitted credentials and either issues tokens or
// opens a second-factor challenge. The response for an unknown email is
// indistinguishable from a wrong password, including the time a digest
// comparison takes.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	ip := ""
	if input.IP != nil {
		ip = *input.IP
	}
	if s.limiter != nil {
		if err := s.limiter.AllowSignin(ctx, ip, email); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			security.DummyVerify(input.Password)
			return nil, s.recordUnknownAttempt(ctx, email, input.IP, now)
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if account.IsLocked(now) {
		s.publishLoginFailed(ctx, &account.ID, email, loginFailReasonLocked, account.FailedAttempts, input.IP, now)
		return nil, &AccountLockedError{RetryAfter: account.LockedUntil.Sub(now)}
	}

	if account.HasExpiredLock(now) {
		if err := s.accounts.ClearLock(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("clear expired lock: %w", err)
		}
		account.LockedUntil = nil
		account.FailedAttempts = 0
		s.publishUnlocked(ctx, account.ID, "lock_expired", now)
	}

	if !security.VerifyPassword(input.Password, account.PasswordDigest) {
		return nil, s.recordFailedAttempt(ctx, account, email, input.IP, now)
	}

	if !account.CanAuthenticate() {
		s.publishLoginFailed(ctx, &account.ID, email, loginFailReasonInactive, account.FailedAttempts, input.IP, now)
		return nil, &AccountInactiveError{Status: string(account.Status)}
	}

	if err := s.accounts.ResetFailures(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("reset failure counter: %w", err)
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil

	mfaRequired := account.MFAEnabled
	var trustID *string
	if mfaRequired && input.DeviceTrustID != "" && s.devices != nil {
		trusted, err := s.devices.VerifyTrust(ctx, account.ID, input.DeviceTrustID, input.DeviceFingerprint)
		if err != nil {
			return nil, err
		}
		if trusted {
			mfaRequired = false
			id := input.DeviceTrustID
			trustID = &id
		}
	}

	if mfaRequired {
		challenge, err := s.mfa.CreateChallenge(ctx, account)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Account: account, MFARequired: true, Challenge: challenge}, nil
	}

	pair, err := s.FinishLogin(ctx, account, SessionMetadata{IP: input.IP, UserAgent: input.UserAgent}, false, trustID)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Account: account, Tokens: pair}, nil
}

// FinishLogin issues a token pair for an authenticated account and records
// the sign-in. Called directly after a password-only login and again by the
// second-factor flow once its challenge is verified.
func (s *AuthService) FinishLogin(ctx context.Context, account *domain.Account, meta SessionMetadata, mfaUsed bool, deviceTrustID *string) (*TokenPair, error) {
	pair, err := s.tokens.IssueTokens(ctx, account.ID, meta)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.accounts.RecordLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("record last login failed", zap.String("account_id", account.ID), zap.Error(err))
	}

	if s.events != nil {
		if err := s.events.PublishLoginSucceeded(ctx, domain.LoginSucceededEvent{
			EventID:     uuid.NewString(),
			AccountID:   account.ID,
			SessionID:   pair.SessionID,
			MFAUsed:     mfaUsed,
			IPAddress:   meta.IP,
			UserAgent:   meta.UserAgent,
			OccurredAt:  now,
			DeviceTrust: deviceTrustID,
		}); err != nil {
			s.logger.Warn("publish login succeeded event failed", zap.Error(err))
		}
	}

	return pair, nil
}

// recordUnknownAttempt mirrors the real failure counter for emails with no
// account. The shadow counter lives in the rate limit store with the same
// threshold and window as the lockout, so the response at every attempt is
// the one a real account would produce: a countdown, then a lock.
func (s *AuthService) recordUnknownAttempt(ctx context.Context, email string, ip *string, now time.Time) error {
	count := 1
	retryAfter := s.lockoutDuration()
	if s.limiter != nil {
		count, retryAfter = s.limiter.ObserveFailure(ctx, RateLimitScopeUnknown, email, s.lockoutDuration())
	}

	s.publishLoginFailed(ctx, nil, email, loginFailReasonUnknownAccount, count, ip, now)

	if count >= s.lockoutThreshold() {
		return &AccountLockedError{RetryAfter: retryAfter}
	}
	return &InvalidCredentialsError{AttemptsRemaining: s.remainingAttempts(count)}
}

// recordFailedAttempt bumps the failure counter and applies the lockout when
// the threshold is reached, all in one statement against the account row.
func (s *AuthService) recordFailedAttempt(ctx context.Context, account *domain.Account, email string, ip *string, now time.Time) error {
	threshold := s.lockoutThreshold()
	lockUntil := now.Add(s.lockoutDuration())

	count, lockedUntil, err := s.accounts.RecordFailure(ctx, account.ID, threshold, lockUntil)
	if err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}

	s.publishLoginFailed(ctx, &account.ID, email, loginFailReasonBadPassword, count, ip, now)

	if lockedUntil != nil && lockedUntil.After(now) {
		s.logger.Warn("account locked after repeated failures",
			zap.String("account_id", account.ID),
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("failures", count))

		if s.events != nil {
			if err := s.events.PublishAccountLocked(ctx, domain.AccountLockedEvent{
				EventID:     uuid.NewString(),
				AccountID:   account.ID,
				LockedUntil: *lockedUntil,
				Failures:    count,
				IPAddress:   ip,
				OccurredAt:  now,
			}); err != nil {
				s.logger.Warn("publish account locked event failed", zap.Error(err))
			}
		}

		return &AccountLockedError{RetryAfter: lockedUntil.Sub(now)}
	}

	return &InvalidCredentialsError{AttemptsRemaining: s.remainingAttempts(count)}
}

func (s *AuthService) publishLoginFailed(ctx context.Context, accountID *string, email, reason string, failures int, ip *string, now time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLoginFailed(ctx, domain.LoginFailedEvent{
		EventID:        uuid.NewString(),
		AccountID:      accountID,
		Email:          logger.MaskEmail(email),
		Reason:         reason,
		FailedAttempts: failures,
		IPAddress:      ip,
		OccurredAt:     now,
	}); err != nil {
		s.logger.Warn("publish login failed event failed", zap.Error(err))
	}
}

func (s *AuthService) publishUnlocked(ctx context.Context, accountID, cause string, now time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishAccountUnlocked(ctx, domain.AccountUnlockedEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		Cause:      cause,
		OccurredAt: now,
	}); err != nil {
		s.logger.Warn("publish account unlocked event failed", zap.Error(err))
	}
}

func (s *AuthService) remainingAttempts(used int) int {
	remaining := s.lockoutThreshold() - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *AuthService) lockoutThreshold() int {
	if t := s.cfg.Lockout.Threshold; t > 0 {
		return t
	}
	return 5
}

func (s *AuthService) lockoutDuration() time.Duration {
	if d := s.cfg.Lockout.Duration; d > 0 {
		return d
	}
	return 15 * time.Minute
}
