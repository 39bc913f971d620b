package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/core/port"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/infra/logger"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

// TokenPair bundles a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// SessionMetadata carries request context recorded on new sessions.
type SessionMetadata struct {
	IP          *string
	UserAgent   *string
	DeviceLabel *string
}

// TokenService issues RS256 token pairs bound to sessions and rotates
// refresh token families.
type TokenService struct {
	cfg      *config.AppConfig
	sessions port.SessionRepository
	jwt      *security.JWTManager
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(
	cfg *config.AppConfig,
	sessions port.SessionRepository,
	jwtManager *security.JWTManager,
	events port.EventPublisher,
	log *zap.Logger,
) *TokenService {
	if log == nil {
		log = zap.NewNop()
	}

	return &TokenService{
		cfg:      cfg,
		sessions: sessions,
		jwt:      jwtManager,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// IssueTokens creates a session for the account and signs an access and
// refresh token pair for it. When the account is at its concurrent session
// cap the oldest session is revoked, which also invalidates that session's
// refresh token family.
func (s *TokenService) IssueTokens(ctx context.Context, accountID string, meta SessionMetadata) (*TokenPair, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	now := s.now().UTC()

	if err := s.enforceSessionCap(ctx, accountID, now); err != nil {
		return nil, err
	}

	session := domain.Session{
		ID:          uuid.NewString(),
		FamilyID:    uuid.NewString(),
		AccountID:   accountID,
		DeviceLabel: meta.DeviceLabel,
		IPFirst:     meta.IP,
		IPLast:      meta.IP,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
		LastSeen:    now,
		ExpiresAt:   now.Add(s.refreshTTL()),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	pair, err := s.signPair(session.ID, session.FamilyID, accountID, now)
	if err != nil {
		return nil, err
	}

	s.publishSessionCreated(ctx, session, now)

	return pair, nil
}

// Refresh validates a refresh token, rotates its family, and issues a new
// pair. Presenting a token whose family was already rotated out revokes the
// whole session and returns ErrTokenReuseDetected.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string, ip, userAgent *string) (*TokenPair, error) {
	claims, err := s.parseRefreshClaims(refreshToken)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if session.RevokedAt != nil {
		return nil, ErrSessionRevoked
	}
	if !session.ExpiresAt.After(now) {
		return nil, ErrInvalidRefreshToken
	}

	newFamily := uuid.NewString()
	rotated, err := s.sessions.RotateFamily(ctx, session.ID, claims.FamilyID, newFamily)
	if err != nil {
		return nil, fmt.Errorf("rotate token family: %w", err)
	}

	if !rotated {
		return nil, s.handleTokenReuse(ctx, session, claims.FamilyID, ip, now)
	}

	if err := s.sessions.Touch(ctx, session.ID, ip, userAgent); err != nil {
		s.logger.Warn("session touch failed", zap.String("session_id", session.ID), zap.Error(err))
	}

	return s.signPair(session.ID, newFamily, session.AccountID, now)
}

// ParseAccessToken verifies an access token and returns its claims. The
// signature check alone is not enough: revoking a session (logout, cap
// eviction, token reuse, password reset) must stop its access tokens
// immediately, so the bound session is confirmed live as well.
func (s *TokenService) ParseAccessToken(ctx context.Context, tokenString string) (*security.AccessTokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidAccessToken
	}

	claims := &security.AccessTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.jwt.Keyfunc, s.parserOptions()...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidAccessToken
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidAccessToken
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !session.IsActive(s.now().UTC()) {
		return nil, ErrSessionRevoked
	}

	return claims, nil
}

func (s *TokenService) parseRefreshClaims(tokenString string) (*security.RefreshTokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims := &security.RefreshTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, s.jwt.Keyfunc, s.parserOptions()...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidRefreshToken
	}
	if claims.SessionID == "" || claims.FamilyID == "" {
		return nil, ErrInvalidRefreshToken
	}

	return claims, nil
}

func (s *TokenService) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.cfg.JWT.Issuer),
	}
	if s.cfg.JWT.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.JWT.Audience))
	}
	return opts
}

func (s *TokenService) handleTokenReuse(ctx context.Context, session *domain.Session, staleFamily string, ip *string, now time.Time) error {
	maskedIP := ""
	if ip != nil {
		maskedIP = logger.MaskIP(*ip)
	}
	s.logger.Warn("rotated-out refresh token presented",
		zap.String("session_id", session.ID),
		zap.String("account_id", session.AccountID),
		zap.String("ip", maskedIP))

	if err := s.sessions.Revoke(ctx, session.ID, domain.RevokeReasonTokenReuse); err != nil {
		s.logger.Error("revoke session after token reuse failed",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	if s.events != nil {
		if err := s.events.PublishTokenReuseDetected(ctx, domain.TokenReuseDetectedEvent{
			EventID:    uuid.NewString(),
			AccountID:  session.AccountID,
			SessionID:  session.ID,
			FamilyID:   staleFamily,
			IPAddress:  ip,
			OccurredAt: now,
		}); err != nil {
			s.logger.Warn("publish token reuse event failed", zap.Error(err))
		}
		if err := s.events.PublishSessionRevoked(ctx, domain.SessionRevokedEvent{
			EventID:    uuid.NewString(),
			AccountID:  session.AccountID,
			SessionID:  session.ID,
			Reason:     domain.RevokeReasonTokenReuse,
			OccurredAt: now,
		}); err != nil {
			s.logger.Warn("publish session revoked event failed", zap.Error(err))
		}
	}

	return ErrTokenReuseDetected
}

func (s *TokenService) enforceSessionCap(ctx context.Context, accountID string, now time.Time) error {
	max := s.cfg.Session.MaxPerAccount
	if max <= 0 {
		return nil
	}

	active, err := s.sessions.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(active) < max {
		return nil
	}

	// ListActiveByAccount returns oldest first.
	for i := 0; i <= len(active)-max; i++ {
		oldest := active[i]
		if err := s.sessions.Revoke(ctx, oldest.ID, domain.RevokeReasonSessionCap); err != nil {
			return fmt.Errorf("revoke oldest session: %w", err)
		}
		if s.events != nil {
			if err := s.events.PublishSessionRevoked(ctx, domain.SessionRevokedEvent{
				EventID:    uuid.NewString(),
				AccountID:  accountID,
				SessionID:  oldest.ID,
				Reason:     domain.RevokeReasonSessionCap,
				OccurredAt: now,
			}); err != nil {
				s.logger.Warn("publish session revoked event failed", zap.Error(err))
			}
		}
	}

	return nil
}

func (s *TokenService) signPair(sessionID, familyID, accountID string, now time.Time) (*TokenPair, error) {
	accessTTL := s.cfg.JWT.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := s.refreshTTL()

	audience := []string{}
	if s.cfg.JWT.Audience != "" {
		audience = append(audience, s.cfg.JWT.Audience)
	}

	accessClaims, err := security.NewAccessTokenClaims(security.TokenOptions{
		AccountID: accountID,
		SessionID: sessionID,
		Issuer:    s.cfg.JWT.Issuer,
		Audience:  audience,
		TTL:       accessTTL,
		IssuedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("build access claims: %w", err)
	}

	refreshClaims, err := security.NewRefreshTokenClaims(security.TokenOptions{
		AccountID: accountID,
		SessionID: sessionID,
		FamilyID:  familyID,
		Issuer:    s.cfg.JWT.Issuer,
		Audience:  audience,
		TTL:       refreshTTL,
		IssuedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("build refresh claims: %w", err)
	}

	kid := s.signingKid()

	accessToken, err := s.jwt.Sign(kid, accessClaims)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, err := s.jwt.Sign(kid, refreshClaims)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
		SessionID:        sessionID,
	}, nil
}

func (s *TokenService) signingKid() string {
	if kid := s.cfg.JWT.SigningKid; kid != "" {
		return kid
	}
	if provider, ok := s.jwt.KeyProvider.(interface{ SigningKid() string }); ok {
		return provider.SigningKid()
	}
	return ""
}

func (s *TokenService) refreshTTL() time.Duration {
	if ttl := s.cfg.JWT.RefreshTokenTTL; ttl > 0 {
		return ttl
	}
	return 7 * 24 * time.Hour
}

func (s *TokenService) publishSessionCreated(ctx context.Context, session domain.Session, now time.Time) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionCreated(ctx, domain.SessionCreatedEvent{
		EventID:    uuid.NewString(),
		AccountID:  session.AccountID,
		SessionID:  session.ID,
		FamilyID:   session.FamilyID,
		IPAddress:  session.IPFirst,
		UserAgent:  session.UserAgent,
		ExpiresAt:  session.ExpiresAt,
		OccurredAt: now,
	}); err != nil {
		s.logger.Warn("publish session created event failed", zap.Error(err))
	}
}
