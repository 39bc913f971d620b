package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/repository"
)

// stubAccountRepo is a map-backed AccountRepository with the same
// increment-and-lock semantics as the SQL implementation.
type stubAccountRepo struct {
	mu       sync.Mutex
	byID     map[string]*domain.Account
	failures map[string]error
}

func newStubAccountRepo(accounts ...*domain.Account) *stubAccountRepo {
	repo := &stubAccountRepo{
		byID:     make(map[string]*domain.Account),
		failures: make(map[string]error),
	}
	for _, account := range accounts {
		copied := *account
		repo.byID[account.ID] = &copied
	}
	return repo
}

func (r *stubAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		copied := *account
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
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

func (r *stubAccountRepo) RecordFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
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

func (r *stubAccountRepo) ResetFailures(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		account.FailedAttempts = 0
		account.LockedUntil = nil
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubAccountRepo) ClearLock(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		account.FailedAttempts = 0
		account.LockedUntil = nil
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubAccountRepo) UpdatePassword(_ context.Context, id, digest string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		account.PasswordDigest = digest
		account.UpdatedAt = changedAt
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubAccountRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		login := at
		account.LastLogin = &login
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubAccountRepo) stored(id string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.byID[id]; ok {
		copied := *account
		return &copied
	}
	return nil
}

// stubSessionRepo is a map-backed SessionRepository.
type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	clock    func() time.Time
}

func newStubSessionRepo(clock func() time.Time) *stubSessionRepo {
	if clock == nil {
		clock = time.Now
	}
	return &stubSessionRepo{
		sessions: make(map[string]*domain.Session),
		clock:    clock,
	}
}

func (r *stubSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *stubSessionRepo) GetByID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) Touch(_ context.Context, sessionID string, ip, userAgent *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		session.Touch(r.clock(), ip, userAgent)
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubSessionRepo) Revoke(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		session.Revoke(r.clock(), reason)
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubSessionRepo) RevokeAllForAccount(_ context.Context, accountID, reason string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, session := range r.sessions {
		if session.AccountID == accountID && session.Revoke(r.clock(), reason) {
			ids = append(ids, session.ID)
		}
	}
	return ids, nil
}

func (r *stubSessionRepo) ListActiveByAccount(_ context.Context, accountID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	active := make([]domain.Session, 0)
	for _, session := range r.sessions {
		if session.AccountID == accountID && session.IsActive(now) {
			active = append(active, *session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (r *stubSessionRepo) RotateFamily(_ context.Context, sessionID, oldFamily, newFamily string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return false, nil
	}
	if session.FamilyID != oldFamily || session.RevokedAt != nil {
		return false, nil
	}
	session.FamilyID = newFamily
	session.LastSeen = r.clock()
	return true, nil
}

func (r *stubSessionRepo) stored(id string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		copied := *session
		return &copied
	}
	return nil
}

// stubDeviceRepo is a map-backed DeviceRepository.
type stubDeviceRepo struct {
	mu     sync.Mutex
	trusts map[string]*domain.DeviceTrust
}

func newStubDeviceRepo() *stubDeviceRepo {
	return &stubDeviceRepo{trusts: make(map[string]*domain.DeviceTrust)}
}

func (r *stubDeviceRepo) Create(_ context.Context, trust domain.DeviceTrust) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := trust
	r.trusts[trust.ID] = &copied
	return nil
}

func (r *stubDeviceRepo) GetByID(_ context.Context, trustID string) (*domain.DeviceTrust, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trust, ok := r.trusts[trustID]; ok {
		copied := *trust
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubDeviceRepo) ListByAccount(_ context.Context, accountID string) ([]domain.DeviceTrust, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DeviceTrust, 0)
	for _, trust := range r.trusts {
		if trust.AccountID == accountID {
			out = append(out, *trust)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *stubDeviceRepo) CountByAccount(_ context.Context, accountID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, trust := range r.trusts {
		if trust.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (r *stubDeviceRepo) Touch(_ context.Context, trustID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trust, ok := r.trusts[trustID]; ok {
		trust.LastUsed = at
		return nil
	}
	return repository.ErrNotFound
}

func (r *stubDeviceRepo) Delete(_ context.Context, trustID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trusts[trustID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.trusts, trustID)
	return nil
}

func (r *stubDeviceRepo) DeleteOldest(_ context.Context, accountID string) (string, error) {
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

func (r *stubDeviceRepo) DeleteAllForAccount(_ context.Context, accountID string) ([]string, error) {
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

// stubChallengeStore is a map-backed ChallengeStore.
type stubChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*domain.MFAChallenge
	buckets    map[string]bool
}

func newStubChallengeStore() *stubChallengeStore {
	return &stubChallengeStore{
		challenges: make(map[string]*domain.MFAChallenge),
		buckets:    make(map[string]bool),
	}
}

func (s *stubChallengeStore) Save(_ context.Context, challenge domain.MFAChallenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := challenge
	s.challenges[challenge.Token] = &copied
	return nil
}

func (s *stubChallengeStore) Get(_ context.Context, token string) (*domain.MFAChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge, ok := s.challenges[token]; ok {
		copied := *challenge
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubChallengeStore) IncrementAttempts(_ context.Context, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge, ok := s.challenges[token]; ok {
		challenge.Attempts++
		return challenge.Attempts, nil
	}
	return 0, repository.ErrNotFound
}

func (s *stubChallengeStore) UpdateCode(_ context.Context, token, codeHash string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge, ok := s.challenges[token]; ok {
		challenge.CodeHash = codeHash
		challenge.LastSent = sentAt
		return nil
	}
	return repository.ErrNotFound
}

func (s *stubChallengeStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, token)
	return nil
}

func (s *stubChallengeStore) ConsumeCodeBucket(_ context.Context, accountID, bucket string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountID + ":" + bucket
	if s.buckets[key] {
		return false, nil
	}
	s.buckets[key] = true
	return true, nil
}

// stubRateLimitStore counts attempts per identifier without expiry. A
// non-nil err makes every call fail, for exercising the fail-open path.
type stubRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
	window time.Duration
	err    error
}

func newStubRateLimitStore() *stubRateLimitStore {
	return &stubRateLimitStore{counts: make(map[string]int64)}
}

func (s *stubRateLimitStore) Increment(_ context.Context, identifier string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	s.counts[identifier]++
	s.window = window
	return s.counts[identifier], window, nil
}

// stubNotifier records outbound messages.
type stubNotifier struct {
	mu       sync.Mutex
	smsCodes []string
	smsTo    []string
	emails   []string
	tokens   []string
}

func (n *stubNotifier) SendSMSCode(_ context.Context, phone, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.smsTo = append(n.smsTo, phone)
	n.smsCodes = append(n.smsCodes, code)
	return nil
}

func (n *stubNotifier) SendResetEmail(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, email)
	n.tokens = append(n.tokens, token)
	return nil
}

func (n *stubNotifier) lastSMSCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.smsCodes) == 0 {
		return ""
	}
	return n.smsCodes[len(n.smsCodes)-1]
}

func (n *stubNotifier) lastResetToken() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.tokens) == 0 {
		return ""
	}
	return n.tokens[len(n.tokens)-1]
}

// stubEventRecorder captures event types in publish order, plus the record
// ids carried by revocation events.
type stubEventRecorder struct {
	mu                sync.Mutex
	events            []string
	revokedSessionIDs []string
	revokedDeviceIDs  []string
}

func (r *stubEventRecorder) record(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *stubEventRecorder) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, recorded := range r.events {
		if recorded == eventType {
			return true
		}
	}
	return false
}

func (r *stubEventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, recorded := range r.events {
		if recorded == eventType {
			total++
		}
	}
	return total
}

func (r *stubEventRecorder) PublishLoginSucceeded(_ context.Context, _ domain.LoginSucceededEvent) error {
	r.record("customer.login")
	return nil
}

func (r *stubEventRecorder) PublishLoginFailed(_ context.Context, _ domain.LoginFailedEvent) error {
	r.record("customer.login_failed")
	return nil
}

func (r *stubEventRecorder) PublishAccountLocked(_ context.Context, _ domain.AccountLockedEvent) error {
	r.record("customer.locked")
	return nil
}

func (r *stubEventRecorder) PublishAccountUnlocked(_ context.Context, _ domain.AccountUnlockedEvent) error {
	r.record("customer.unlocked")
	return nil
}

func (r *stubEventRecorder) PublishMFAChallengeIssued(_ context.Context, _ domain.MFAChallengeIssuedEvent) error {
	r.record("mfa.challenge_issued")
	return nil
}

func (r *stubEventRecorder) PublishMFAVerified(_ context.Context, _ domain.MFAVerifiedEvent) error {
	r.record("mfa.verified")
	return nil
}

func (r *stubEventRecorder) PublishDeviceTrusted(_ context.Context, _ domain.DeviceTrustedEvent) error {
	r.record("device.trusted")
	return nil
}

func (r *stubEventRecorder) PublishDeviceTrustRevoked(_ context.Context, event domain.DeviceTrustRevokedEvent) error {
	r.record("device.revoked")
	r.mu.Lock()
	r.revokedDeviceIDs = append(r.revokedDeviceIDs, event.DeviceID)
	r.mu.Unlock()
	return nil
}

func (r *stubEventRecorder) PublishSessionCreated(_ context.Context, _ domain.SessionCreatedEvent) error {
	r.record("session.created")
	return nil
}

func (r *stubEventRecorder) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	r.record("session.revoked")
	r.mu.Lock()
	r.revokedSessionIDs = append(r.revokedSessionIDs, event.SessionID)
	r.mu.Unlock()
	return nil
}

func (r *stubEventRecorder) PublishTokenReuseDetected(_ context.Context, _ domain.TokenReuseDetectedEvent) error {
	r.record("token.reuse_detected")
	return nil
}

func (r *stubEventRecorder) PublishPasswordResetRequested(_ context.Context, _ domain.PasswordResetRequestedEvent) error {
	r.record("password.reset_requested")
	return nil
}

func (r *stubEventRecorder) PublishPasswordChanged(_ context.Context, _ domain.PasswordChangedEvent) error {
	r.record("password.changed")
	return nil
}

// stubResetTokenRepo is a map-backed ResetTokenRepository.
type stubResetTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.PasswordResetToken
}

func newStubResetTokenRepo() *stubResetTokenRepo {
	return &stubResetTokenRepo{tokens: make(map[string]*domain.PasswordResetToken)}
}

func (r *stubResetTokenRepo) Create(_ context.Context, token domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *stubResetTokenRepo) GetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
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

func (r *stubResetTokenRepo) Consume(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok {
		return false, fmt.Errorf("token %s missing", id)
	}
	if token.UsedAt != nil {
		return false, nil
	}
	used := at
	token.UsedAt = &used
	return true, nil
}
