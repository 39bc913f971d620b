package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridian-commerce/customer-auth/internal/infra/security"
	"github.com/meridian-commerce/customer-auth/internal/usecase"
)

// Every request path answers with this exact body so the response never
// reveals which emails have accounts.
const resetRequestedMessage = "If that email is registered, a reset link is on its way."

const (
	resetStatusValid   = "valid"
	resetStatusInvalid = "invalid"
	resetStatusExpired = "expired"
	resetStatusUsed    = "used"
)

// PasswordHandler exposes the forgot-password endpoints.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(reset *usecase.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{reset: reset}
}

// RegisterRoutes binds the password reset routes.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.request)
	r.GET("/:token", h.validate)
	r.POST("/confirm", h.confirm)
}

func (h *PasswordHandler) request(c *gin.Context) {
	var req PasswordResetRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "a valid email is required"))
		return
	}

	ip, userAgent := requestOrigin(c)

	if _, err := h.reset.RequestReset(c.Request.Context(), req.Email, ip, userAgent); err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "reset request failed"))
		return
	}

	c.JSON(http.StatusAccepted, MessageResponse{Message: resetRequestedMessage})
}

func (h *PasswordHandler) validate(c *gin.Context) {
	token := c.Param("token")

	record, err := h.reset.ValidateToken(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrResetTokenExpired):
			c.JSON(http.StatusGone, PasswordResetValidateResponse{Valid: false, Status: resetStatusExpired})
		case errors.Is(err, usecase.ErrResetTokenUsed):
			c.JSON(http.StatusGone, PasswordResetValidateResponse{Valid: false, Status: resetStatusUsed})
		case errors.Is(err, usecase.ErrResetTokenInvalid):
			c.JSON(http.StatusNotFound, PasswordResetValidateResponse{Valid: false, Status: resetStatusInvalid})
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "token validation failed"))
		}
		return
	}

	c.JSON(http.StatusOK, PasswordResetValidateResponse{
		Valid:     true,
		Status:    resetStatusValid,
		ExpiresAt: &record.ExpiresAt,
	})
}

func (h *PasswordHandler) confirm(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new password are required"))
		return
	}

	ip, userAgent := requestOrigin(c)

	outcome, err := h.reset.CompleteReset(c.Request.Context(), req.Token, req.NewPassword, ip, userAgent)
	if err != nil {
		var policyErr *security.PasswordPolicyError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusUnprocessableEntity, PasswordPolicyResponse{
				Error: "password does not meet requirements",
				Rules: policyErr.Results,
			})
			return
		}
		switch {
		case errors.Is(err, usecase.ErrResetTokenExpired):
			c.JSON(http.StatusGone, NewErrorResponse(c, "reset token has expired"))
		case errors.Is(err, usecase.ErrResetTokenUsed):
			c.JSON(http.StatusGone, NewErrorResponse(c, "reset token was already used"))
		case errors.Is(err, usecase.ErrResetTokenInvalid):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "reset token is invalid"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "password reset failed"))
		}
		return
	}

	c.JSON(http.StatusOK, PasswordResetConfirmResponse{
		Message:             "password updated",
		SessionsInvalidated: outcome.SessionsInvalidated,
		DeviceTrustsRevoked: outcome.DeviceTrustsRevoked,
	})
}
