package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

type mfaFixture struct {
	now        time.Time
	accounts   *stubAccountRepo
	challenges *stubChallengeStore
	limits     *stubRateLimitStore
	notifier   *stubNotifier
	events     *stubEventRecorder
	svc        *MFAService
}

func newMFAFixture(t *testing.T, account *domain.Account) *mfaFixture {
	t.Helper()

	fx := &mfaFixture{
		now:        testBaseTime,
		accounts:   newStubAccountRepo(account),
		challenges: newStubChallengeStore(),
		limits:     newStubRateLimitStore(),
		notifier:   &stubNotifier{},
		events:     &stubEventRecorder{},
	}

	cfg := testConfig()
	limiter := NewLimiterService(cfg, fx.limits, nil).WithRegisterer(prometheus.NewRegistry())
	fx.svc = NewMFAService(cfg, fx.challenges, fx.accounts, fx.notifier, limiter, fx.events, nil).
		WithClock(func() time.Time { return fx.now })
	return fx
}

func (fx *mfaFixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
}

func totpAccount() *domain.Account {
	secret := testTOTPSecret
	return &domain.Account{
		ID:         "acct-1",
		Email:      "shopper@example.com",
		Status:     domain.AccountStatusActive,
		MFAEnabled: true,
		TOTPSecret: &secret,
	}
}

func smsAccount() *domain.Account {
	phone := "+15551230001"
	return &domain.Account{
		ID:         "acct-1",
		Email:      "shopper@example.com",
		Status:     domain.AccountStatusActive,
		MFAEnabled: true,
		Phone:      &phone,
	}
}

func totpCodeAt(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(testTOTPSecret, at)
	if err != nil {
		t.Fatalf("generate totp code: %v", err)
	}
	return code
}

func TestVerifyTOTPAcceptsAdjacentSteps(t *testing.T) {
	cases := []struct {
		name  string
		drift time.Duration
	}{
		{name: "same step", drift: 25 * time.Second},
		{name: "next step", drift: 45 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newMFAFixture(t, totpAccount())
			challenge, err := fx.svc.CreateChallenge(context.Background(), totpAccount())
			if err != nil {
				t.Fatalf("create challenge: %v", err)
			}

			code := totpCodeAt(t, testBaseTime)
			fx.advance(tc.drift)

			account, err := fx.svc.Verify(context.Background(), challenge.Token, code, "")
			if err != nil {
				t.Fatalf("verify at +%s: %v", tc.drift, err)
			}
			if account.ID != "acct-1" {
				t.Fatalf("unexpected account %s", account.ID)
			}
			if !fx.events.has("mfa.verified") {
				t.Fatal("expected mfa verified event")
			}
		})
	}
}

func TestVerifyTOTPRejectsStaleCode(t *testing.T) {
	fx := newMFAFixture(t, totpAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), totpAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	code := totpCodeAt(t, testBaseTime)
	fx.advance(65 * time.Second)

	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, ""); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode two steps out, got %v", err)
	}
}

func TestVerifySMSCodeIsSingleUse(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if challenge.Method != domain.MFAMethodSMS {
		t.Fatalf("expected sms challenge, got %s", challenge.Method)
	}

	code := fx.notifier.lastSMSCode()
	if len(code) != smsCodeLength {
		t.Fatalf("expected %d-digit code, got %q", smsCodeLength, code)
	}

	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// The challenge is discarded on success, so the same code cannot redeem again.
	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, ""); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound on reuse, got %v", err)
	}
}

func TestVerifySMSCodeBucketBlocksReplay(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())

	code := "123456"
	seed := domain.MFAChallenge{
		AccountID: "acct-1",
		Method:    domain.MFAMethodSMS,
		CodeHash:  security.HashToken(code),
		CreatedAt: testBaseTime,
		ExpiresAt: testBaseTime.Add(5 * time.Minute),
		LastSent:  testBaseTime,
	}

	first := seed
	first.Token = "challenge-a"
	second := seed
	second.Token = "challenge-b"
	fx.challenges.Save(context.Background(), first, 5*time.Minute)
	fx.challenges.Save(context.Background(), second, 5*time.Minute)

	if _, err := fx.svc.Verify(context.Background(), first.Token, code, ""); err != nil {
		t.Fatalf("first redemption: %v", err)
	}

	// The same delivered code presented through another pending challenge
	// lands in an already consumed time bucket.
	if _, err := fx.svc.Verify(context.Background(), second.Token, code, ""); !errors.Is(err, ErrInvalidMFACode) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
}

func TestVerifyWrongCodeReportsRemainingAttempts(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	for i, want := range []int{2, 1} {
		_, err := fx.svc.Verify(context.Background(), challenge.Token, "000000", "")
		var invalid *MFAInvalidCodeError
		if !errors.As(err, &invalid) {
			t.Fatalf("attempt %d: expected MFAInvalidCodeError, got %v", i+1, err)
		}
		if invalid.AttemptsRemaining != want {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i+1, want, invalid.AttemptsRemaining)
		}
	}
}

func TestVerifyRejectsMismatchedMethod(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	code := fx.notifier.lastSMSCode()

	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, "totp"); !errors.Is(err, ErrChallengeMethodMismatch) {
		t.Fatalf("expected ErrChallengeMethodMismatch, got %v", err)
	}

	// A mismatched method is rejected before the attempt budget is touched.
	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, "sms"); err != nil {
		t.Fatalf("verify with matching method: %v", err)
	}
}

func TestResendRejectsMismatchedMethod(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	fx.advance(61 * time.Second)
	if _, err := fx.svc.Resend(context.Background(), challenge.Token, "totp"); !errors.Is(err, ErrChallengeMethodMismatch) {
		t.Fatalf("expected ErrChallengeMethodMismatch, got %v", err)
	}
	if _, err := fx.svc.Resend(context.Background(), challenge.Token, "sms"); err != nil {
		t.Fatalf("resend with matching method: %v", err)
	}
}

func TestVerifyExhaustsAttemptBudget(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	for i := 1; i <= 2; i++ {
		if _, err := fx.svc.Verify(context.Background(), challenge.Token, "000000", ""); !errors.Is(err, ErrInvalidMFACode) {
			t.Fatalf("attempt %d: expected ErrInvalidMFACode, got %v", i, err)
		}
	}

	if _, err := fx.svc.Verify(context.Background(), challenge.Token, "000000", ""); !errors.Is(err, ErrChallengeExhausted) {
		t.Fatalf("expected ErrChallengeExhausted on third failure, got %v", err)
	}

	// Exhaustion invalidates the challenge even for the correct code.
	code := fx.notifier.lastSMSCode()
	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, ""); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected challenge gone after exhaustion, got %v", err)
	}
}

func TestVerifyExpiredChallenge(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	code := fx.notifier.lastSMSCode()

	fx.advance(5*time.Minute + time.Second)

	if _, err := fx.svc.Verify(context.Background(), challenge.Token, code, ""); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestResendCooldownAndFreshCode(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	firstCode := fx.notifier.lastSMSCode()

	fx.advance(30 * time.Second)
	if _, err := fx.svc.Resend(context.Background(), challenge.Token, ""); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("expected ErrResendCooldown inside the window, got %v", err)
	}

	fx.advance(31 * time.Second)
	if _, err := fx.svc.Resend(context.Background(), challenge.Token, ""); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	if len(fx.notifier.smsCodes) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(fx.notifier.smsCodes))
	}

	// The superseded code no longer matches the stored hash.
	newCode := fx.notifier.lastSMSCode()
	if firstCode != newCode {
		if _, err := fx.svc.Verify(context.Background(), challenge.Token, firstCode, ""); !errors.Is(err, ErrInvalidMFACode) {
			t.Fatalf("expected stale code to fail, got %v", err)
		}
	}
	if _, err := fx.svc.Verify(context.Background(), challenge.Token, newCode, ""); err != nil {
		t.Fatalf("verify resent code: %v", err)
	}
}

func TestResendHourlyCap(t *testing.T) {
	fx := newMFAFixture(t, smsAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), smsAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	for i := 1; i <= 3; i++ {
		fx.advance(61 * time.Second)
		if _, err := fx.svc.Resend(context.Background(), challenge.Token, ""); err != nil {
			t.Fatalf("resend %d: %v", i, err)
		}
	}

	fx.advance(61 * time.Second)
	_, err = fx.svc.Resend(context.Background(), challenge.Token, "")
	var limited *RateLimitExceededError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if limited.Scope != RateLimitScopeResend {
		t.Fatalf("expected resend scope, got %s", limited.Scope)
	}
}

func TestResendNotSupportedForTOTP(t *testing.T) {
	fx := newMFAFixture(t, totpAccount())
	challenge, err := fx.svc.CreateChallenge(context.Background(), totpAccount())
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}

	if _, err := fx.svc.Resend(context.Background(), challenge.Token, ""); !errors.Is(err, ErrResendNotSupported) {
		t.Fatalf("expected ErrResendNotSupported, got %v", err)
	}
}
