package port

import (
	"context"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishAccountUnlocked(ctx context.Context, event domain.AccountUnlockedEvent) error
	PublishMFAChallengeIssued(ctx context.Context, event domain.MFAChallengeIssuedEvent) error
	PublishMFAVerified(ctx context.Context, event domain.MFAVerifiedEvent) error
	PublishDeviceTrusted(ctx context.Context, event domain.DeviceTrustedEvent) error
	PublishDeviceTrustRevoked(ctx context.Context, event domain.DeviceTrustRevokedEvent) error
	PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}
