package domain

import "time"

// MFAMethod enumerates supported second-factor delivery methods.
type MFAMethod string

const (
	MFAMethodTOTP MFAMethod = "totp"
	MFAMethodSMS  MFAMethod = "sms"
)

// MFAChallenge is a short-lived pending second-factor verification.
// SMS challenges carry a hash of the delivered code; TOTP challenges
// are verified against the account's enrolled secret.
type MFAChallenge struct {
	Token     string
	AccountID string
	Method    MFAMethod
	CodeHash  string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
	LastSent  time.Time
}

// IsExpired reports whether the challenge is past its validity window.
func (c MFAChallenge) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}
