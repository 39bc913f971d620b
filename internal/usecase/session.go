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
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

// SessionService handles session lifecycle outside of token issuance.
type SessionService struct {
	sessions port.SessionRepository
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, events port.EventPublisher, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}

	return &SessionService{
		sessions: sessions,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	if now != nil {
		s.now = now
	}
	return s
}

// ListActive returns the account's live sessions, oldest first.
func (s *SessionService) ListActive(ctx context.Context, accountID string) ([]domain.Session, error) {
	return s.sessions.ListActiveByAccount(ctx, accountID)
}

// Logout revokes a single session owned by the account. Revoking an already
// revoked or unknown session is not an error.
func (s *SessionService) Logout(ctx context.Context, accountID, sessionID string) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	if session.AccountID != accountID || session.RevokedAt != nil {
		return nil
	}

	if err := s.sessions.Revoke(ctx, sessionID, domain.RevokeReasonLogout); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.publishRevoked(ctx, accountID, sessionID, domain.RevokeReasonLogout)
	return nil
}

// LogoutAll revokes every live session for the account and returns how many
// were revoked.
func (s *SessionService) LogoutAll(ctx context.Context, accountID string) (int, error) {
	return s.RevokeAll(ctx, accountID, domain.RevokeReasonLogoutAll)
}

// RevokeAll revokes every live session for the account with the supplied
// reason. Downstream consumers key on session ids, so each revoked session
// gets its own event.
func (s *SessionService) RevokeAll(ctx context.Context, accountID, reason string) (int, error) {
	ids, err := s.sessions.RevokeAllForAccount(ctx, accountID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}

	for _, id := range ids {
		s.publishRevoked(ctx, accountID, id, reason)
	}

	return len(ids), nil
}

func (s *SessionService) publishRevoked(ctx context.Context, accountID, sessionID, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionRevoked(ctx, domain.SessionRevokedEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		SessionID:  sessionID,
		Reason:     reason,
		OccurredAt: s.now().UTC(),
	}); err != nil {
		s.logger.Warn("publish session revoked event failed", zap.Error(err))
	}
}
