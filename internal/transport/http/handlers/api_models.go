package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridian-commerce/customer-auth/internal/core/domain"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary describes a minimal view of an account returned by the API.
type AccountSummary struct {
	ID         string               `json:"id"`
	Email      string               `json:"email"`
	Status     domain.AccountStatus `json:"status"`
	MFAEnabled bool                 `json:"mfa_enabled"`
}

func newAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:         account.ID,
		Email:      account.Email,
		Status:     account.Status,
		MFAEnabled: account.MFAEnabled,
	}
}

// SigninRequest defines the payload for the signin endpoint.
type SigninRequest struct {
	Email             string `json:"email" binding:"required"`
	Password          string `json:"password" binding:"required"`
	DeviceFingerprint string `json:"device_fingerprint"`
	DeviceLabel       string `json:"device_label"`
}

// TokenResponse describes an issued token pair. The refresh token travels in
// a path-scoped cookie, not in the body.
type TokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
	SessionID   string          `json:"session_id"`
	Account     *AccountSummary `json:"account,omitempty"`
}

// MFARequiredResponse tells the client to complete a second-factor challenge.
type MFARequiredResponse struct {
	MFARequired    bool      `json:"mfa_required"`
	ChallengeToken string    `json:"challenge_token"`
	Method         string    `json:"method"`
	Destination    string    `json:"destination,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// InvalidCredentialsResponse carries how many attempts remain before lockout.
type InvalidCredentialsResponse struct {
	Error             string `json:"error"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	TraceID           string `json:"trace_id,omitempty"`
}

// AccountLockedResponse reports an active lockout.
type AccountLockedResponse struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	TraceID           string `json:"trace_id,omitempty"`
}

// MFAVerifyRequest defines the payload for second-factor verification.
// Method is optional; when present it must name the challenge's own method.
type MFAVerifyRequest struct {
	ChallengeToken    string `json:"challenge_token" binding:"required"`
	Code              string `json:"code" binding:"required"`
	Method            string `json:"method" binding:"omitempty,oneof=totp sms"`
	RememberDevice    bool   `json:"remember_device"`
	DeviceFingerprint string `json:"device_fingerprint"`
	DeviceLabel       string `json:"device_label"`
}

// MFAResendRequest defines the payload for requesting a fresh SMS code.
type MFAResendRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Method         string `json:"method" binding:"omitempty,oneof=totp sms"`
}

// MFAResendResponse acknowledges a resent challenge code.
type MFAResendResponse struct {
	ChallengeToken string    `json:"challenge_token"`
	Method         string    `json:"method"`
	Destination    string    `json:"destination,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// LogoutAllResponse reports how many sessions a bulk logout revoked.
type LogoutAllResponse struct {
	Message         string `json:"message"`
	SessionsRevoked int    `json:"sessions_revoked"`
}

// PasswordResetRequestBody defines the payload for requesting a reset link.
type PasswordResetRequestBody struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetValidateResponse reports whether a reset token can be used.
// Status is one of "valid", "invalid", "expired", or "used"; the last two are
// safe to surface because the bearer already holds the token.
type PasswordResetValidateResponse struct {
	Valid     bool       `json:"valid"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PasswordResetConfirmRequest defines the payload for completing a reset.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// PasswordResetConfirmResponse reports the side effects of a completed reset.
type PasswordResetConfirmResponse struct {
	Message             string `json:"message"`
	SessionsInvalidated int    `json:"sessions_invalidated"`
	DeviceTrustsRevoked int    `json:"device_trusts_revoked"`
}

// PasswordPolicyResponse returns the rule checklist for a rejected password.
type PasswordPolicyResponse struct {
	Error   string                        `json:"error"`
	Rules   []security.PasswordRuleResult `json:"rules"`
	TraceID string                        `json:"trace_id,omitempty"`
}

// DeviceResponse describes a remembered device trust grant.
type DeviceResponse struct {
	ID        string    `json:"id"`
	Label     *string   `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DeviceRevokeAllResponse reports how many trust grants were removed.
type DeviceRevokeAllResponse struct {
	Message        string `json:"message"`
	DevicesRevoked int    `json:"devices_revoked"`
}

// DeviceListResponse wraps the account's device trust grants.
type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
}

func newDeviceResponse(trust domain.DeviceTrust) DeviceResponse {
	return DeviceResponse{
		ID:        trust.ID,
		Label:     trust.Label,
		CreatedAt: trust.CreatedAt,
		LastUsed:  trust.LastUsed,
		ExpiresAt: trust.ExpiresAt,
	}
}

// SessionSummary provides a compact view of a login session.
type SessionSummary struct {
	ID          string    `json:"id"`
	DeviceLabel *string   `json:"device_label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	ExpiresAt   time.Time `json:"expires_at"`
	Current     bool      `json:"current"`
}

// SessionListResponse wraps the account's active sessions.
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// HealthResponse reports liveness information.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the outcome of dependency checks.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RateLimitResponse is an RFC 9457 style payload for throttled requests.
type RateLimitResponse struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}
