package domain

import "time"

// AccountStatus enumerates possible customer account states.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusClosed    AccountStatus = "closed"
	AccountStatusPending   AccountStatus = "pending_verification"
)

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID             string
	Email          string
	Phone          *string
	PasswordDigest string
	Status         AccountStatus
	MFAEnabled     bool
	TOTPSecret     *string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLogin      *time.Time
}

// IsLocked reports whether a lockout is in force at the supplied moment.
func (a Account) IsLocked(at time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(at)
}

// HasExpiredLock reports whether a previously applied lockout has elapsed
// and should be cleared on the next attempt.
func (a Account) HasExpiredLock(at time.Time) bool {
	return a.LockedUntil != nil && !a.LockedUntil.After(at)
}

// CanAuthenticate reports whether the account status permits sign-in.
func (a Account) CanAuthenticate() bool {
	return a.Status == AccountStatusActive
}
