package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrChallengeNotFound indicates the MFA challenge token does not exist or has expired.
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	// ErrChallengeExpired indicates the MFA challenge outlived its validity window.
	ErrChallengeExpired = errors.New("mfa challenge expired")
	// ErrChallengeExhausted indicates the MFA attempt budget was consumed.
	ErrChallengeExhausted = errors.New("mfa attempts exhausted")
	// ErrInvalidMFACode indicates the submitted second-factor code did not match.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrResendCooldown indicates a resend was requested before the cooldown elapsed.
	ErrResendCooldown = errors.New("resend cooldown in effect")
	// ErrResendNotSupported indicates resend was requested for a non-deliverable method.
	ErrResendNotSupported = errors.New("resend not supported for challenge method")
	// ErrInvalidRefreshToken indicates the presented refresh token is malformed,
	// expired, or bound to a missing session.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrTokenReuseDetected indicates a rotated-out refresh token was presented.
	// The whole session is revoked when this is returned.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrSessionRevoked indicates the session was revoked ahead of validation.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrInvalidAccessToken indicates the access token is malformed or failed
	// signature validation.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrChallengeMethodMismatch indicates the request named a second-factor
	// method that does not match the pending challenge.
	ErrChallengeMethodMismatch = errors.New("challenge method mismatch")
	// ErrResetTokenInvalid indicates the reset token does not exist.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrResetTokenExpired indicates the reset token outlived its validity window.
	ErrResetTokenExpired = errors.New("password reset token expired")
	// ErrResetTokenUsed indicates the reset token was already consumed.
	ErrResetTokenUsed = errors.New("password reset token already used")
	// ErrDeviceTrustNotFound indicates the referenced device trust does not exist.
	ErrDeviceTrustNotFound = errors.New("device trust not found")
	// ErrAccountNotFound indicates the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// InvalidCredentialsError reports a rejected email/password pair along with
// how many attempts remain before lockout. Unwraps to ErrInvalidCredentials.
type InvalidCredentialsError struct {
	AttemptsRemaining int
}

func (e *InvalidCredentialsError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *InvalidCredentialsError) Unwrap() error {
	return ErrInvalidCredentials
}

// MFAInvalidCodeError reports a rejected second-factor code along with how
// many attempts remain on the challenge. Unwraps to ErrInvalidMFACode.
type MFAInvalidCodeError struct {
	AttemptsRemaining int
}

func (e *MFAInvalidCodeError) Error() string {
	return ErrInvalidMFACode.Error()
}

func (e *MFAInvalidCodeError) Unwrap() error {
	return ErrInvalidMFACode
}

// AccountLockedError is returned while a lockout is in force.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter)
}

// AccountInactiveError is returned when credentials match but the account
// status does not permit sign-in.
type AccountInactiveError struct {
	Status string
}

func (e *AccountInactiveError) Error() string {
	return fmt.Sprintf("account is %s", e.Status)
}

// RateLimitExceededError is returned when an expiring-window counter is over
// its limit. Scope names the exhausted counter.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}
