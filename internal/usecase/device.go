package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

// Causes recorded on device trust revocation events.
const (
	DeviceRevokedByCustomer = "customer_revoked"
	DeviceRevokedExpired    = "expired"
	DeviceRevokedEvicted    = "evicted"
	DeviceRevokedReset      = "password_reset"
)

// DeviceService manages remembered-device trust grants.
type DeviceService struct {
	cfg     *config.AppConfig
	devices port.DeviceRepository
	events  port.EventPublisher
	logger  *zap.Logger
	now     func() time.Time
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(cfg *config.AppConfig, devices port.DeviceRepository, events port.EventPublisher, log *zap.Logger) *DeviceService {
	if log == nil {
		log = zap.NewNop()
	}

	return &DeviceService{
		cfg:     cfg,
		devices: devices,
		events:  events,
		logger:  log,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *DeviceService) WithClock(now func() time.Time) *DeviceService {
	if now != nil {
		s.now = now
	}
	return s
}

// VerifyTrust reports whether the supplied trust grant is valid for the
// account and device fingerprint. Expiry is checked before the fingerprint
// is compared; an elapsed trust is removed and never matches.
func (s *DeviceService) VerifyTrust(ctx context.Context, accountID, trustID, fingerprint string) (bool, error) {
	if trustID == "" || fingerprint == "" {
		return false, nil
	}

	trust, err := s.devices.GetByID(ctx, trustID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup device trust: %w", err)
	}

	if trust.AccountID != accountID {
		return false, nil
	}

	now := s.now().UTC()
	if trust.IsExpired(now) {
		s.removeTrust(ctx, trust, DeviceRevokedExpired, now)
		return false, nil
	}

	if trust.FingerprintHash != security.HashToken(fingerprint) {
		return false, nil
	}

	if err := s.devices.Touch(ctx, trust.ID, now); err != nil {
		s.logger.Warn("device trust touch failed", zap.String("trust_id", trust.ID), zap.Error(err))
	}

	return true, nil
}

// CreateTrust remembers the current device for the account. When the account
// is at its trust cap the oldest grant is evicted first.
func (s *DeviceService) CreateTrust(ctx context.Context, accountID, fingerprint string, label, ip, userAgent *string) (*domain.DeviceTrust, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	if fingerprint == "" {
		return nil, fmt.Errorf("device fingerprint is required")
	}

	now := s.now().UTC()

	var evicted *string
	if max := s.cfg.Device.MaxPerAccount; max > 0 {
		count, err := s.devices.CountByAccount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("count device trusts: %w", err)
		}
		if count >= max {
			evictedID, err := s.devices.DeleteOldest(ctx, accountID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("evict oldest device trust: %w", err)
			}
			if evictedID != "" {
				evicted = &evictedID
				s.publishRevoked(ctx, accountID, evictedID, DeviceRevokedEvicted, now)
			}
		}
	}

	trust := domain.DeviceTrust{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		FingerprintHash: security.HashToken(fingerprint),
		Label:           label,
		IPCreated:       ip,
		UserAgent:       userAgent,
		CreatedAt:       now,
		LastUsed:        now,
		ExpiresAt:       now.Add(s.trustTTL()),
	}

	if err := s.devices.Create(ctx, trust); err != nil {
		return nil, fmt.Errorf("create device trust: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishDeviceTrusted(ctx, domain.DeviceTrustedEvent{
			EventID:    uuid.NewString(),
			AccountID:  accountID,
			DeviceID:   trust.ID,
			Evicted:    evicted,
			ExpiresAt:  trust.ExpiresAt,
			OccurredAt: now,
		}); err != nil {
			s.logger.Warn("publish device trusted event failed", zap.Error(err))
		}
	}

	return &trust, nil
}

// List returns the account's trust grants, oldest first.
func (s *DeviceService) List(ctx context.Context, accountID string) ([]domain.DeviceTrust, error) {
	return s.devices.ListByAccount(ctx, accountID)
}

// Revoke removes a trust grant at the customer's request.
func (s *DeviceService) Revoke(ctx context.Context, accountID, trustID string) error {
	trust, err := s.devices.GetByID(ctx, trustID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDeviceTrustNotFound
		}
		return fmt.Errorf("lookup device trust: %w", err)
	}
	if trust.AccountID != accountID {
		return ErrDeviceTrustNotFound
	}

	s.removeTrust(ctx, trust, DeviceRevokedByCustomer, s.now().UTC())
	return nil
}

// RevokeAll removes every trust grant for the account and returns how many
// were removed. Each deleted trust gets its own revocation event.
func (s *DeviceService) RevokeAll(ctx context.Context, accountID, cause string) (int, error) {
	ids, err := s.devices.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete device trusts: %w", err)
	}

	now := s.now().UTC()
	for _, id := range ids {
		s.publishRevoked(ctx, accountID, id, cause, now)
	}

	return len(ids), nil
}

func (s *DeviceService) removeTrust(ctx context.Context, trust *domain.DeviceTrust, cause string, now time.Time) {
	if err := s.devices.Delete(ctx, trust.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("device trust delete failed", zap.String("trust_id", trust.ID), zap.Error(err))
		return
	}
	s.publishRevoked(ctx, trust.AccountID, trust.ID, cause, now)
}

func (s *DeviceService) publishRevoked(ctx context.Context, accountID, deviceID, cause string, now time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishDeviceTrustRevoked(ctx, domain.DeviceTrustRevokedEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		DeviceID:   deviceID,
		Cause:      cause,
		OccurredAt: now,
	}); err != nil {
		s.logger.Warn("publish device trust revoked event failed", zap.Error(err))
	}
}

func (s *DeviceService) trustTTL() time.Duration {
	if ttl := s.cfg.Device.TrustTTL; ttl > 0 {
		return ttl
	}
	return 30 * 24 * time.Hour
}
