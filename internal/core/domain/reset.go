package domain

import "time"

// PasswordResetToken represents a single-use password reset token hash.
type PasswordResetToken struct {
	ID        string
	AccountID string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsUsable reports whether the token can still redeem a reset at the supplied moment.
func (t PasswordResetToken) IsUsable(at time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(at)
}
