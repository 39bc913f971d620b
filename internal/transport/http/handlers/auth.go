package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/transport/http/middleware"
	"github.com/meridian-commerce/customer-auth/internal/usecase"
)

const (
	rateLimitProblemType  = "https://auth.meridian-commerce.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"

	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
	deviceCookieName  = "device_trust"
	deviceCookiePath  = "/"
)

// AuthHandler exposes the sign-in, second-factor, and session endpoints.
type AuthHandler struct {
	cfg      *config.AppConfig
	auth     *usecase.AuthService
	mfa      *usecase.MFAService
	tokens   *usecase.TokenService
	sessions *usecase.SessionService
	devices  *usecase.DeviceService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(
	cfg *config.AppConfig,
	auth *usecase.AuthService,
	mfa *usecase.MFAService,
	tokens *usecase.TokenService,
	sessions *usecase.SessionService,
	devices *usecase.DeviceService,
) *AuthHandler {
	return &AuthHandler{
		cfg:      cfg,
		auth:     auth,
		mfa:      mfa,
		tokens:   tokens,
		sessions: sessions,
		devices:  devices,
	}
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signin", h.signin)
	r.POST("/mfa/verify", h.verifyMFA)
	r.POST("/mfa/resend", h.resendMFA)
	r.POST("/refresh", h.refresh)

	authRequired := middleware.RequireAuth(h.tokens)
	r.POST("/logout", authRequired, h.logout)
	r.POST("/logout/all", authRequired, h.logoutAll)
}

func (h *AuthHandler) signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid signin payload"))
		return
	}

	ip, userAgent := requestOrigin(c)

	input := usecase.LoginInput{
		Email:             req.Email,
		Password:          req.Password,
		IP:                ip,
		UserAgent:         userAgent,
		DeviceFingerprint: req.DeviceFingerprint,
	}
	if trustID, err := c.Cookie(deviceCookieName); err == nil {
		input.DeviceTrustID = trustID
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	if result.MFARequired {
		c.JSON(http.StatusOK, MFARequiredResponse{
			MFARequired:    true,
			ChallengeToken: result.Challenge.Token,
			Method:         string(result.Challenge.Method),
			Destination:    result.Challenge.Destination,
			ExpiresAt:      result.Challenge.ExpiresAt,
		})
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken, result.Tokens.RefreshExpiresAt)

	summary := newAccountSummary(*result.Account)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: result.Tokens.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn(result.Tokens.AccessExpiresAt),
		SessionID:   result.Tokens.SessionID,
		Account:     &summary,
	})
}

func (h *AuthHandler) verifyMFA(c *gin.Context) {
	var req MFAVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	account, err := h.mfa.Verify(c.Request.Context(), req.ChallengeToken, req.Code, req.Method)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	ip, userAgent := requestOrigin(c)

	var trustID *string
	if req.RememberDevice && req.DeviceFingerprint != "" {
		var label *string
		if req.DeviceLabel != "" {
			label = &req.DeviceLabel
		}
		trust, err := h.devices.CreateTrust(c.Request.Context(), account.ID, req.DeviceFingerprint, label, ip, userAgent)
		if err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to remember device"))
			return
		}
		trustID = &trust.ID
		h.setDeviceCookie(c, trust.ID, trust.ExpiresAt)
	}

	pair, err := h.auth.FinishLogin(c.Request.Context(), account, usecase.SessionMetadata{IP: ip, UserAgent: userAgent}, true, trustID)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)

	summary := newAccountSummary(*account)
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn(pair.AccessExpiresAt),
		SessionID:   pair.SessionID,
		Account:     &summary,
	})
}

func (h *AuthHandler) resendMFA(c *gin.Context) {
	var req MFAResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid resend payload"))
		return
	}

	challenge, err := h.mfa.Resend(c.Request.Context(), req.ChallengeToken, req.Method)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MFAResendResponse{
		ChallengeToken: challenge.Token,
		Method:         string(challenge.Method),
		Destination:    challenge.Destination,
		ExpiresAt:      challenge.ExpiresAt,
	})
}

func (h *AuthHandler) refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookieName)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing refresh token"))
		return
	}

	ip, userAgent := requestOrigin(c)

	pair, err := h.tokens.Refresh(c.Request.Context(), refreshToken, ip, userAgent)
	if err != nil {
		h.clearRefreshCookie(c)
		h.respondAuthError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.RefreshExpiresAt)

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn(pair.AccessExpiresAt),
		SessionID:   pair.SessionID,
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	accountID := middleware.AccountID(c)
	sessionID := middleware.SessionID(c)

	if err := h.sessions.Logout(c.Request.Context(), accountID, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, MessageResponse{Message: "signed out"})
}

func (h *AuthHandler) logoutAll(c *gin.Context) {
	accountID := middleware.AccountID(c)

	revoked, err := h.sessions.LogoutAll(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, LogoutAllResponse{
		Message:         "signed out everywhere",
		SessionsRevoked: revoked,
	})
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		respondRateLimitExceeded(c, rateErr)
		return
	}

	var lockedErr *usecase.AccountLockedError
	if errors.As(err, &lockedErr) {
		c.JSON(http.StatusLocked, AccountLockedResponse{
			Error:             "account temporarily locked",
			RetryAfterSeconds: ceilSeconds(lockedErr.RetryAfter),
			TraceID:           middleware.GetTraceID(c),
		})
		return
	}

	var credsErr *usecase.InvalidCredentialsError
	if errors.As(err, &credsErr) {
		c.JSON(http.StatusUnauthorized, InvalidCredentialsResponse{
			Error:             "invalid credentials",
			AttemptsRemaining: credsErr.AttemptsRemaining,
			TraceID:           middleware.GetTraceID(c),
		})
		return
	}

	var inactiveErr *usecase.AccountInactiveError
	if errors.As(err, &inactiveErr) {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account is "+inactiveErr.Status))
		return
	}

	var mfaErr *usecase.MFAInvalidCodeError
	if errors.As(err, &mfaErr) {
		c.JSON(http.StatusUnauthorized, InvalidCredentialsResponse{
			Error:             "invalid verification code",
			AttemptsRemaining: mfaErr.AttemptsRemaining,
			TraceID:           middleware.GetTraceID(c),
		})
		return
	}

	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
		{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "challenge not found"},
		{Err: usecase.ErrChallengeExpired, Status: http.StatusGone, Message: "challenge expired"},
		{Err: usecase.ErrChallengeExhausted, Status: http.StatusTooManyRequests, Message: "verification attempts exhausted"},
		{Err: usecase.ErrInvalidMFACode, Status: http.StatusUnauthorized, Message: "invalid verification code"},
		{Err: usecase.ErrChallengeMethodMismatch, Status: http.StatusBadRequest, Message: "method does not match the challenge"},
		{Err: usecase.ErrResendCooldown, Status: http.StatusTooManyRequests, Message: "wait before requesting another code"},
		{Err: usecase.ErrResendNotSupported, Status: http.StatusBadRequest, Message: "challenge does not support resend"},
		{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
		{Err: usecase.ErrSessionRevoked, Status: http.StatusUnauthorized, Message: "session revoked"},
		{Err: usecase.ErrTokenReuseDetected, Status: http.StatusUnauthorized, Message: "session revoked"},
	}, http.StatusInternalServerError, "authentication failed")
}

func respondRateLimitExceeded(c *gin.Context, rateErr *usecase.RateLimitExceededError) {
	retryAfter := ceilSeconds(rateErr.RetryAfter)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.JSON(http.StatusTooManyRequests, RateLimitResponse{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     "Too many attempts. Try again later.",
		Instance:   instance,
		RetryAfter: retryAfter,
		TraceID:    middleware.GetTraceID(c),
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt) / time.Second)
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, maxAge, refreshCookiePath, "", h.secureCookies(), true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.secureCookies(), true)
}

func (h *AuthHandler) setDeviceCookie(c *gin.Context, trustID string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt) / time.Second)
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(deviceCookieName, trustID, maxAge, deviceCookiePath, "", h.secureCookies(), true)
}

func (h *AuthHandler) secureCookies() bool {
	return h.cfg == nil || h.cfg.App.Env != "development"
}

func requestOrigin(c *gin.Context) (ip *string, userAgent *string) {
	if clientIP := c.ClientIP(); clientIP != "" {
		ip = &clientIP
	}
	if ua := c.Request.UserAgent(); ua != "" {
		userAgent = &ua
	}
	return ip, userAgent
}

func expiresIn(expiresAt time.Time) int {
	seconds := int(time.Until(expiresAt) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	seconds := int(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	return seconds
}
