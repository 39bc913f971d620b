package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/infra/kafka"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
	"github.com/meridian-commerce/customer-auth/internal/repository"
	"github.com/meridian-commerce/customer-auth/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}); err != nil {
		panic(err)
	}
}

func testHandlerConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{Name: "customer-auth", Env: "test"},
		RateLimit: config.RateLimitSettings{
			IPLimit: 10, IPWindow: time.Minute,
			AccountLimit: 5, AccountWindow: time.Minute,
		},
		Lockout: config.LockoutSettings{Threshold: 5, Duration: 15 * time.Minute},
		MFA: config.MFASettings{
			ChallengeTTL: 5 * time.Minute, MaxAttempts: 3,
			ResendCooldown: time.Minute, ResendLimit: 3, ResendWindow: time.Hour,
		},
		Device:  config.DeviceSettings{TrustTTL: 30 * 24 * time.Hour, MaxPerAccount: 10},
		Session: config.SessionSettings{MaxPerAccount: 5},
		Reset:   config.ResetSettings{TokenTTL: time.Hour, RequestLimit: 3, RequestWindow: time.Hour},
		JWT: config.JWTSettings{
			Issuer: "https://auth.test", Audience: "storefront",
			AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}
}

// memAccountRepo is a minimal in-memory AccountRepository for handler tests.
type memAccountRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Account
}

func newMemAccountRepo(accounts ...*domain.Account) *memAccountRepo {
	repo := &memAccountRepo{byID: make(map[string]*domain.Account)}
	for _, account := range accounts {
		copied := *account
		repo.byID[account.ID] = &copied
	}
	return repo
}

func (r *memAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		copied := *account
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.byID {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memAccountRepo) RecordFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	account.FailedAttempts++
	if account.FailedAttempts >= threshold {
		until := lockUntil
		account.LockedUntil = &until
	}
	return account.FailedAttempts, account.LockedUntil, nil
}

func (r *memAccountRepo) ResetFailures(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		account.FailedAttempts = 0
		account.LockedUntil = nil
	}
	return nil
}

func (r *memAccountRepo) ClearLock(_ context.Context, id string) error {
	return r.ResetFailures(nil, id)
}

func (r *memAccountRepo) UpdatePassword(_ context.Context, id, digest string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		account.PasswordDigest = digest
		account.UpdatedAt = changedAt
	}
	return nil
}

func (r *memAccountRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		login := at
		account.LastLogin = &login
	}
	return nil
}

// memSessionRepo backs the session service in handler tests.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memSessionRepo) Touch(_ context.Context, sessionID string, ip, userAgent *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		session.Touch(time.Now().UTC(), ip, userAgent)
	}
	return nil
}

func (r *memSessionRepo) Revoke(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		session.Revoke(time.Now().UTC(), reason)
		return nil
	}
	return repository.ErrNotFound
}

func (r *memSessionRepo) RevokeAllForAccount(_ context.Context, accountID, reason string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, session := range r.sessions {
		if session.AccountID == accountID && session.Revoke(time.Now().UTC(), reason) {
			ids = append(ids, session.ID)
		}
	}
	return ids, nil
}

func (r *memSessionRepo) ListActiveByAccount(_ context.Context, accountID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	active := make([]domain.Session, 0)
	for _, session := range r.sessions {
		if session.AccountID == accountID && session.IsActive(now) {
			active = append(active, *session)
		}
	}
	return active, nil
}

func (r *memSessionRepo) RotateFamily(_ context.Context, sessionID, oldFamily, newFamily string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok || session.FamilyID != oldFamily || session.RevokedAt != nil {
		return false, nil
	}
	session.FamilyID = newFamily
	return true, nil
}

// memDeviceRepo backs the device trust service in handler tests.
type memDeviceRepo struct {
	mu     sync.Mutex
	trusts map[string]*domain.DeviceTrust
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{trusts: make(map[string]*domain.DeviceTrust)}
}

func (r *memDeviceRepo) Create(_ context.Context, trust domain.DeviceTrust) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := trust
	r.trusts[trust.ID] = &copied
	return nil
}

func (r *memDeviceRepo) GetByID(_ context.Context, trustID string) (*domain.DeviceTrust, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trust, ok := r.trusts[trustID]; ok {
		copied := *trust
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memDeviceRepo) ListByAccount(_ context.Context, accountID string) ([]domain.DeviceTrust, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DeviceTrust, 0)
	for _, trust := range r.trusts {
		if trust.AccountID == accountID {
			out = append(out, *trust)
		}
	}
	return out, nil
}

func (r *memDeviceRepo) CountByAccount(_ context.Context, accountID string) (int, error) {
	list, _ := r.ListByAccount(nil, accountID)
	return len(list), nil
}

func (r *memDeviceRepo) Touch(_ context.Context, trustID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trust, ok := r.trusts[trustID]; ok {
		trust.LastUsed = at
	}
	return nil
}

func (r *memDeviceRepo) Delete(_ context.Context, trustID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trusts[trustID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.trusts, trustID)
	return nil
}

func (r *memDeviceRepo) DeleteOldest(_ context.Context, accountID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.DeviceTrust
	for _, trust := range r.trusts {
		if trust.AccountID != accountID {
			continue
		}
		if oldest == nil || trust.CreatedAt.Before(oldest.CreatedAt) {
			oldest = trust
		}
	}
	if oldest == nil {
		return "", repository.ErrNotFound
	}
	delete(r.trusts, oldest.ID)
	return oldest.ID, nil
}

func (r *memDeviceRepo) DeleteAllForAccount(_ context.Context, accountID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, trust := range r.trusts {
		if trust.AccountID == accountID {
			delete(r.trusts, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// memResetTokenRepo backs the reset service in handler tests.
type memResetTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.PasswordResetToken
}

func newMemResetTokenRepo() *memResetTokenRepo {
	return &memResetTokenRepo{tokens: make(map[string]*domain.PasswordResetToken)}
}

func (r *memResetTokenRepo) Create(_ context.Context, token domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *memResetTokenRepo) GetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.TokenHash == hash {
			copied := *token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memResetTokenRepo) Consume(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok || token.UsedAt != nil {
		return false, nil
	}
	used := at
	token.UsedAt = &used
	return true, nil
}

// memChallengeStore holds pending MFA challenges in memory.
type memChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*domain.MFAChallenge
	buckets    map[string]bool
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{
		challenges: make(map[string]*domain.MFAChallenge),
		buckets:    make(map[string]bool),
	}
}

func (s *memChallengeStore) Save(_ context.Context, challenge domain.MFAChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := challenge
	s.challenges[challenge.Token] = &copied
	return nil
}

func (s *memChallengeStore) Get(_ context.Context, token string) (*domain.MFAChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge, ok := s.challenges[token]; ok {
		copied := *challenge
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (s *memChallengeStore) IncrementAttempts(_ context.Context, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[token]
	if !ok {
		return 0, repository.ErrNotFound
	}
	challenge.Attempts++
	return challenge.Attempts, nil
}

func (s *memChallengeStore) UpdateCode(_ context.Context, token, codeHash string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[token]
	if !ok {
		return repository.ErrNotFound
	}
	challenge.CodeHash = codeHash
	challenge.LastSent = sentAt
	return nil
}

func (s *memChallengeStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, token)
	return nil
}

func (s *memChallengeStore) ConsumeCodeBucket(_ context.Context, accountID, bucket string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountID + ":" + bucket
	if s.buckets[key] {
		return false, nil
	}
	s.buckets[key] = true
	return true, nil
}

// memRateLimitStore counts attempts without expiry.
type memRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemRateLimitStore() *memRateLimitStore {
	return &memRateLimitStore{counts: make(map[string]int64)}
}

func (s *memRateLimitStore) Increment(_ context.Context, identifier string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[identifier]++
	return s.counts[identifier], window, nil
}

// captureNotifier records delivered reset tokens and SMS codes.
type captureNotifier struct {
	mu    sync.Mutex
	codes []string
	links []string
}

func (n *captureNotifier) SendSMSCode(_ context.Context, _, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
	return nil
}

func (n *captureNotifier) SendResetEmail(_ context.Context, _, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, token)
	return nil
}

func (n *captureNotifier) lastResetToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.links) == 0 {
		return ""
	}
	return n.links[len(n.links)-1]
}

func (n *captureNotifier) lastSMSCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 {
		return ""
	}
	return n.codes[len(n.codes)-1]
}

func newTestLimiter(cfg *config.AppConfig) *usecase.LimiterService {
	return usecase.NewLimiterService(cfg, newMemRateLimitStore(), nil).
		WithRegisterer(prometheus.NewRegistry())
}

func newTestEvents(t *testing.T) *kafka.StubPublisher {
	t.Helper()
	return kafka.NewStubPublisher(zap.NewNop())
}
