package port

import (
	"context"
	"time"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
)

// DeviceRepository persists remembered-device trust grants.
type DeviceRepository interface {
	Create(ctx context.Context, trust domain.DeviceTrust) error
	GetByID(ctx context.Context, trustID string) (*domain.DeviceTrust, error)
	ListByAccount(ctx context.Context, accountID string) ([]domain.DeviceTrust, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	Touch(ctx context.Context, trustID string, at time.Time) error
	Delete(ctx context.Context, trustID string) error
	// DeleteOldest removes the account's oldest trust and returns its id.
	DeleteOldest(ctx context.Context, accountID string) (string, error)
	// DeleteAllForAccount removes every trust the account holds and
	// returns the ids of the deleted records.
	DeleteAllForAccount(ctx context.Context, accountID string) ([]string, error)
}
