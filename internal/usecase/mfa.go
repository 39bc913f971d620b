package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
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

const smsCodeLength = 6

// ChallengeResult describes a pending second-factor challenge handed back
// to the client.
type ChallengeResult struct {
	Token       string
	Method      domain.MFAMethod
	Destination string
	ExpiresAt   time.Time
}

// MFAService issues and verifies second-factor challenges.
type MFAService struct {
	cfg        *config.AppConfig
	challenges port.ChallengeStore
	accounts   port.AccountRepository
	notifier   port.Notifier
	limiter    *LimiterService
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewMFAService constructs an MFAService.
func NewMFAService(
	cfg *config.AppConfig,
	challenges port.ChallengeStore,
	accounts port.AccountRepository,
	notifier port.Notifier,
	limiter *LimiterService,
	events port.EventPublisher,
	log *zap.Logger,
) *MFAService {
	if log == nil {
		log = zap.NewNop()
	}

	return &MFAService{
		cfg:        cfg,
		challenges: challenges,
		accounts:   accounts,
		notifier:   notifier,
		limiter:    limiter,
		events:     events,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (s *MFAService) WithClock(now func() time.Time) *MFAService {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateChallenge opens a pending challenge for the account. Accounts with
// an enrolled authenticator verify against it; otherwise a code is sent to
// the account's phone.
func (s *MFAService) CreateChallenge(ctx context.Context, account *domain.Account) (*ChallengeResult, error) {
	if account == nil {
		return nil, fmt.Errorf("account is required")
	}

	now := s.now().UTC()
	ttl := s.challengeTTL()

	challenge := domain.MFAChallenge{
		Token:     uuid.NewString(),
		AccountID: account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		LastSent:  now,
	}

	destination := ""
	switch {
	case account.TOTPSecret != nil && *account.TOTPSecret != "":
		challenge.Method = domain.MFAMethodTOTP
	case account.Phone != nil && *account.Phone != "":
		challenge.Method = domain.MFAMethodSMS
		code, err := security.GenerateNumericCode(smsCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate sms code: %w", err)
		}
		challenge.CodeHash = security.HashToken(code)
		destination = logger.MaskPhone(*account.Phone)
		s.deliverSMS(ctx, *account.Phone, code)
	default:
		return nil, fmt.Errorf("account %s has no usable second factor", account.ID)
	}

	if err := s.challenges.Save(ctx, challenge, ttl); err != nil {
		return nil, fmt.Errorf("save mfa challenge: %w", err)
	}

	s.publishIssued(ctx, challenge, destination, false, now)

	return &ChallengeResult{
		Token:       challenge.Token,
		Method:      challenge.Method,
		Destination: destination,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// Verify checks a submitted code against the pending challenge. The
// challenge is removed on success; after the attempt budget is spent it is
// removed regardless of the submitted code. A non-empty method must name
// the challenge's own method.
func (s *MFAService) Verify(ctx context.Context, challengeToken, code, method string) (*domain.Account, error) {
	if challengeToken == "" || code == "" {
		return nil, ErrInvalidMFACode
	}

	challenge, err := s.challenges.Get(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("lookup mfa challenge: %w", err)
	}

	if method != "" && method != string(challenge.Method) {
		return nil, ErrChallengeMethodMismatch
	}

	now := s.now().UTC()
	if challenge.IsExpired(now) {
		s.discard(ctx, challenge.Token)
		return nil, ErrChallengeExpired
	}

	attempts, err := s.challenges.IncrementAttempts(ctx, challenge.Token)
	if err != nil {
		return nil, fmt.Errorf("count mfa attempt: %w", err)
	}
	if attempts > s.maxAttempts() {
		s.discard(ctx, challenge.Token)
		return nil, ErrChallengeExhausted
	}

	account, err := s.accounts.GetByID(ctx, challenge.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.discard(ctx, challenge.Token)
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	matched, err := s.matchCode(ctx, challenge, account, code, now)
	if err != nil {
		return nil, err
	}
	if !matched {
		if attempts >= s.maxAttempts() {
			s.discard(ctx, challenge.Token)
			return nil, ErrChallengeExhausted
		}
		return nil, &MFAInvalidCodeError{AttemptsRemaining: s.maxAttempts() - attempts}
	}

	s.discard(ctx, challenge.Token)

	if s.events != nil {
		if err := s.events.PublishMFAVerified(ctx, domain.MFAVerifiedEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			Method:     string(challenge.Method),
			OccurredAt: now,
		}); err != nil {
			s.logger.Warn("publish mfa verified event failed", zap.Error(err))
		}
	}

	return account, nil
}

// Resend delivers a fresh code for a pending SMS challenge, subject to a
// cooldown between sends and an hourly cap. A non-empty method must name
// the challenge's own method.
func (s *MFAService) Resend(ctx context.Context, challengeToken, method string) (*ChallengeResult, error) {
	challenge, err := s.challenges.Get(ctx, challengeToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("lookup mfa challenge: %w", err)
	}

	if method != "" && method != string(challenge.Method) {
		return nil, ErrChallengeMethodMismatch
	}

	if challenge.Method != domain.MFAMethodSMS {
		return nil, ErrResendNotSupported
	}

	now := s.now().UTC()
	if challenge.IsExpired(now) {
		s.discard(ctx, challenge.Token)
		return nil, ErrChallengeExpired
	}

	if cooldown := s.cfg.MFA.ResendCooldown; cooldown > 0 {
		if elapsed := now.Sub(challenge.LastSent); elapsed < cooldown {
			return nil, ErrResendCooldown
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, RateLimitScopeResend, challenge.AccountID, s.cfg.MFA.ResendLimit, s.cfg.MFA.ResendWindow); err != nil {
			return nil, err
		}
	}

	account, err := s.accounts.GetByID(ctx, challenge.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.discard(ctx, challenge.Token)
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account.Phone == nil || *account.Phone == "" {
		return nil, ErrResendNotSupported
	}

	code, err := security.GenerateNumericCode(smsCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate sms code: %w", err)
	}

	codeHash := security.HashToken(code)
	if err := s.challenges.UpdateCode(ctx, challenge.Token, codeHash, now); err != nil {
		return nil, fmt.Errorf("update mfa challenge code: %w", err)
	}

	s.deliverSMS(ctx, *account.Phone, code)

	destination := logger.MaskPhone(*account.Phone)
	challenge.CodeHash = codeHash
	challenge.LastSent = now
	s.publishIssued(ctx, *challenge, destination, true, now)

	return &ChallengeResult{
		Token:       challenge.Token,
		Method:      challenge.Method,
		Destination: destination,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// matchCode verifies the submitted code per challenge method. A delivered
// SMS code is additionally bound to its send bucket so the same code cannot
// redeem twice even across challenges.
func (s *MFAService) matchCode(ctx context.Context, challenge *domain.MFAChallenge, account *domain.Account, code string, now time.Time) (bool, error) {
	switch challenge.Method {
	case domain.MFAMethodTOTP:
		if account.TOTPSecret == nil || *account.TOTPSecret == "" {
			return false, nil
		}
		ok, err := security.ValidateTOTP(code, *account.TOTPSecret, now)
		if err != nil {
			return false, nil
		}
		return ok, nil

	case domain.MFAMethodSMS:
		submitted := security.HashToken(code)
		if subtle.ConstantTimeCompare([]byte(submitted), []byte(challenge.CodeHash)) != 1 {
			return false, nil
		}

		bucket := fmt.Sprintf("%s:%d", challenge.CodeHash, challenge.LastSent.Unix())
		fresh, err := s.challenges.ConsumeCodeBucket(ctx, account.ID, bucket, s.challengeTTL())
		if err != nil {
			return false, fmt.Errorf("consume sms code bucket: %w", err)
		}
		return fresh, nil

	default:
		return false, fmt.Errorf("unknown challenge method %q", challenge.Method)
	}
}

func (s *MFAService) deliverSMS(ctx context.Context, phone, code string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendSMSCode(ctx, phone, code); err != nil {
		s.logger.Error("sms code delivery failed",
			zap.String("phone", logger.MaskPhone(phone)),
			zap.Error(err))
	}
}

func (s *MFAService) discard(ctx context.Context, token string) {
	if err := s.challenges.Delete(ctx, token); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("mfa challenge delete failed", zap.Error(err))
	}
}

func (s *MFAService) publishIssued(ctx context.Context, challenge domain.MFAChallenge, destination string, resend bool, now time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishMFAChallengeIssued(ctx, domain.MFAChallengeIssuedEvent{
		EventID:     uuid.NewString(),
		AccountID:   challenge.AccountID,
		Method:      string(challenge.Method),
		Resend:      resend,
		Destination: destination,
		ExpiresAt:   challenge.ExpiresAt,
		OccurredAt:  now,
	}); err != nil {
		s.logger.Warn("publish mfa challenge issued event failed", zap.Error(err))
	}
}

func (s *MFAService) challengeTTL() time.Duration {
	if ttl := s.cfg.MFA.ChallengeTTL; ttl > 0 {
		return ttl
	}
	return 5 * time.Minute
}

func (s *MFAService) maxAttempts() int {
	if max := s.cfg.MFA.MaxAttempts; max > 0 {
		return max
	}
	return 3
}
