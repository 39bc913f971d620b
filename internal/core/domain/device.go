package domain

import "time"

// DeviceTrust records a remembered device that skips the second factor
// while the trust is valid. The fingerprint is stored as a hash and the
// IP is kept for audit only.
type DeviceTrust struct {
	ID              string
	AccountID       string
	FingerprintHash string
	Label           *string
	IPCreated       *string
	UserAgent       *string
	CreatedAt       time.Time
	LastUsed        time.Time
	ExpiresAt       time.Time
}

// IsExpired reports whether the trust is past its validity window.
func (d DeviceTrust) IsExpired(at time.Time) bool {
	return !d.ExpiresAt.After(at)
}
