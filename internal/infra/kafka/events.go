package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

var _ port.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(accountID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishLoginSucceeded publishes customer.login events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		AccountID   string         `json:"account_id"`
		SessionID   string         `json:"session_id"`
		MFAUsed     bool           `json:"mfa_used"`
		IPAddress   *string        `json:"ip_address,omitempty"`
		UserAgent   *string        `json:"user_agent,omitempty"`
		DeviceTrust *string        `json:"device_trust,omitempty"`
		OccurredAt  time.Time      `json:"occurred_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:   event.AccountID,
		SessionID:   event.SessionID,
		MFAUsed:     event.MFAUsed,
		IPAddress:   event.IPAddress,
		UserAgent:   event.UserAgent,
		DeviceTrust: event.DeviceTrust,
		OccurredAt:  event.OccurredAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "customer.login", event.AccountID, event.OccurredAt, payload)
}

// PublishLoginFailed publishes customer.login_failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	accountID := ""
	if event.AccountID != nil {
		accountID = *event.AccountID
	}

	payload := struct {
		AccountID      *string        `json:"account_id,omitempty"`
		Email          string         `json:"email"`
		Reason         string         `json:"reason"`
		FailedAttempts int            `json:"failed_attempts"`
		IPAddress      *string        `json:"ip_address,omitempty"`
		OccurredAt     time.Time      `json:"occurred_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:      event.AccountID,
		Email:          event.Email,
		Reason:         event.Reason,
		FailedAttempts: event.FailedAttempts,
		IPAddress:      event.IPAddress,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "customer.login_failed", accountID, event.OccurredAt, payload)
}

// PublishAccountLocked publishes customer.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		AccountID   string         `json:"account_id"`
		LockedUntil time.Time      `json:"locked_until"`
		Failures    int            `json:"failures"`
		IPAddress   *string        `json:"ip_address,omitempty"`
		OccurredAt  time.Time      `json:"occurred_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:   event.AccountID,
		LockedUntil: event.LockedUntil.UTC(),
		Failures:    event.Failures,
		IPAddress:   event.IPAddress,
		OccurredAt:  event.OccurredAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "customer.locked", event.AccountID, event.OccurredAt, payload)
}

// PublishAccountUnlocked publishes customer.unlocked events.
func (p *EventPublisher) PublishAccountUnlocked(ctx context.Context, event domain.AccountUnlockedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		Cause      string         `json:"cause"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		Cause:      event.Cause,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "customer.unlocked", event.AccountID, event.OccurredAt, payload)
}

// PublishMFAChallengeIssued publishes mfa.challenge_issued events.
func (p *EventPublisher) PublishMFAChallengeIssued(ctx context.Context, event domain.MFAChallengeIssuedEvent) error {
	payload := struct {
		AccountID   string         `json:"account_id"`
		Method      string         `json:"method"`
		Resend      bool           `json:"resend"`
		Destination string         `json:"destination,omitempty"`
		ExpiresAt   time.Time      `json:"expires_at"`
		OccurredAt  time.Time      `json:"occurred_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:   event.AccountID,
		Method:      event.Method,
		Resend:      event.Resend,
		Destination: event.Destination,
		ExpiresAt:   event.ExpiresAt.UTC(),
		OccurredAt:  event.OccurredAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "mfa.challenge_issued", event.AccountID, event.OccurredAt, payload)
}

// PublishMFAVerified publishes mfa.verified events.
func (p *EventPublisher) PublishMFAVerified(ctx context.Context, event domain.MFAVerifiedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		Method     string         `json:"method"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		Method:     event.Method,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "mfa.verified", event.AccountID, event.OccurredAt, payload)
}

// PublishDeviceTrusted publishes device.trusted events.
func (p *EventPublisher) PublishDeviceTrusted(ctx context.Context, event domain.DeviceTrustedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		DeviceID   string         `json:"device_id"`
		Evicted    *string        `json:"evicted,omitempty"`
		ExpiresAt  time.Time      `json:"expires_at"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		DeviceID:   event.DeviceID,
		Evicted:    event.Evicted,
		ExpiresAt:  event.ExpiresAt.UTC(),
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "device.trusted", event.AccountID, event.OccurredAt, payload)
}

// PublishDeviceTrustRevoked publishes device.revoked events.
func (p *EventPublisher) PublishDeviceTrustRevoked(ctx context.Context, event domain.DeviceTrustRevokedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		DeviceID   string         `json:"device_id"`
		Cause      string         `json:"cause"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		DeviceID:   event.DeviceID,
		Cause:      event.Cause,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "device.revoked", event.AccountID, event.OccurredAt, payload)
}

// PublishSessionCreated publishes session.created events.
func (p *EventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		SessionID  string         `json:"session_id"`
		FamilyID   string         `json:"family_id"`
		IPAddress  *string        `json:"ip_address,omitempty"`
		UserAgent  *string        `json:"user_agent,omitempty"`
		ExpiresAt  time.Time      `json:"expires_at"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		SessionID:  event.SessionID,
		FamilyID:   event.FamilyID,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		ExpiresAt:  event.ExpiresAt.UTC(),
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "session.created", event.AccountID, event.OccurredAt, payload)
}

// PublishSessionRevoked publishes session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		SessionID  string         `json:"session_id"`
		Reason     string         `json:"reason"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		SessionID:  event.SessionID,
		Reason:     event.Reason,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "session.revoked", event.AccountID, event.OccurredAt, payload)
}

// PublishTokenReuseDetected publishes token.reuse_detected events.
func (p *EventPublisher) PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		SessionID  string         `json:"session_id"`
		FamilyID   string         `json:"family_id"`
		IPAddress  *string        `json:"ip_address,omitempty"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		SessionID:  event.SessionID,
		FamilyID:   event.FamilyID,
		IPAddress:  event.IPAddress,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "token.reuse_detected", event.AccountID, event.OccurredAt, payload)
}

// PublishPasswordResetRequested publishes password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID         string         `json:"account_id"`
		RequestID         string         `json:"request_id"`
		MaskedDestination string         `json:"masked_destination"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		ExpiresAt         time.Time      `json:"expires_at"`
		OccurredAt        time.Time      `json:"occurred_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:         event.AccountID,
		RequestID:         event.RequestID,
		MaskedDestination: event.MaskedDestination,
		IPAddress:         event.IPAddress,
		ExpiresAt:         event.ExpiresAt.UTC(),
		OccurredAt:        event.OccurredAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "password.reset_requested", event.AccountID, event.OccurredAt, payload)
}

// PublishPasswordChanged publishes password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID           string         `json:"account_id"`
		ChangedBy           string         `json:"changed_by"`
		SessionsRevoked     int            `json:"sessions_revoked"`
		DeviceTrustsRevoked int            `json:"device_trusts_revoked"`
		OccurredAt          time.Time      `json:"occurred_at"`
		Metadata            map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:           event.AccountID,
		ChangedBy:           event.ChangedBy,
		SessionsRevoked:     event.SessionsRevoked,
		DeviceTrustsRevoked: event.DeviceTrustsRevoked,
		OccurredAt:          event.OccurredAt.UTC(),
		Metadata:            event.Metadata,
	}

	return p.publish(ctx, event.EventID, "password.changed", event.AccountID, event.OccurredAt, payload)
}
