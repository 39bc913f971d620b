package domain

import "time"

// LoginSucceededEvent represents the payload for auth.customer.login messages.
type LoginSucceededEvent struct {
	EventID     string
	AccountID   string
	SessionID   string
	MFAUsed     bool
	IPAddress   *string
	UserAgent   *string
	OccurredAt  time.Time
	DeviceTrust *string
	Metadata    map[string]any
}

// LoginFailedEvent represents the payload for auth.customer.login_failed messages.
type LoginFailedEvent struct {
	EventID        string
	AccountID      *string
	Email          string
	Reason         string
	FailedAttempts int
	IPAddress      *string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// AccountLockedEvent represents the payload for auth.customer.locked messages.
type AccountLockedEvent struct {
	EventID     string
	AccountID   string
	LockedUntil time.Time
	Failures    int
	IPAddress   *string
	OccurredAt  time.Time
	Metadata    map[string]any
}

// AccountUnlockedEvent represents the payload for auth.customer.unlocked messages.
type AccountUnlockedEvent struct {
	EventID    string
	AccountID  string
	Cause      string
	OccurredAt time.Time
	Metadata   map[string]any
}

// MFAChallengeIssuedEvent represents the payload for auth.mfa.challenge_issued messages.
type MFAChallengeIssuedEvent struct {
	EventID     string
	AccountID   string
	Method      string
	Resend      bool
	Destination string
	ExpiresAt   time.Time
	OccurredAt  time.Time
	Metadata    map[string]any
}

// MFAVerifiedEvent represents the payload for auth.mfa.verified messages.
type MFAVerifiedEvent struct {
	EventID    string
	AccountID  string
	Method     string
	OccurredAt time.Time
	Metadata   map[string]any
}

// DeviceTrustedEvent represents the payload for auth.device.trusted messages.
type DeviceTrustedEvent struct {
	EventID    string
	AccountID  string
	DeviceID   string
	Evicted    *string
	ExpiresAt  time.Time
	OccurredAt time.Time
	Metadata   map[string]any
}

// DeviceTrustRevokedEvent represents the payload for auth.device.revoked messages.
type DeviceTrustRevokedEvent struct {
	EventID    string
	AccountID  string
	DeviceID   string
	Cause      string
	OccurredAt time.Time
	Metadata   map[string]any
}

// SessionCreatedEvent represents the payload for auth.session.created messages.
type SessionCreatedEvent struct {
	EventID    string
	AccountID  string
	SessionID  string
	FamilyID   string
	IPAddress  *string
	UserAgent  *string
	ExpiresAt  time.Time
	OccurredAt time.Time
	Metadata   map[string]any
}

// SessionRevokedEvent represents the payload for auth.session.revoked messages.
type SessionRevokedEvent struct {
	EventID    string
	AccountID  string
	SessionID  string
	Reason     string
	OccurredAt time.Time
	Metadata   map[string]any
}

// TokenReuseDetectedEvent represents the payload for auth.token.reuse_detected messages.
// Emitted when a rotated-out refresh token is presented again.
type TokenReuseDetectedEvent struct {
	EventID    string
	AccountID  string
	SessionID  string
	FamilyID   string
	IPAddress  *string
	OccurredAt time.Time
	Metadata   map[string]any
}

// PasswordResetRequestedEvent represents the payload for auth.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	RequestID         string
	MaskedDestination string
	IPAddress         *string
	ExpiresAt         time.Time
	OccurredAt        time.Time
	Metadata          map[string]any
}

// PasswordChangedEvent represents the payload for auth.password.changed messages.
type PasswordChangedEvent struct {
	EventID             string
	AccountID           string
	ChangedBy           string
	SessionsRevoked     int
	DeviceTrustsRevoked int
	OccurredAt          time.Time
	Metadata            map[string]any
}
