package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*StubPublisher)(nil)

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.logEvent("customer.login", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	accountID := ""
	if event.AccountID != nil {
		accountID = *event.AccountID
	}
	p.logEvent("customer.login_failed", accountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent("customer.locked", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishAccountUnlocked(_ context.Context, event domain.AccountUnlockedEvent) error {
	p.logEvent("customer.unlocked", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishMFAChallengeIssued(_ context.Context, event domain.MFAChallengeIssuedEvent) error {
	p.logEvent("mfa.challenge_issued", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishMFAVerified(_ context.Context, event domain.MFAVerifiedEvent) error {
	p.logEvent("mfa.verified", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishDeviceTrusted(_ context.Context, event domain.DeviceTrustedEvent) error {
	p.logEvent("device.trusted", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishDeviceTrustRevoked(_ context.Context, event domain.DeviceTrustRevokedEvent) error {
	p.logEvent("device.revoked", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishSessionCreated(_ context.Context, event domain.SessionCreatedEvent) error {
	p.logEvent("session.created", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent("session.revoked", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	p.logEvent("token.reuse_detected", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent("password.reset_requested", event.AccountID, event.OccurredAt, event)
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent("password.changed", event.AccountID, event.OccurredAt, event)
	return nil
}
