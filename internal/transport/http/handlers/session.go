package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridian-commerce/customer-auth/internal/transport/http/middleware"
	"github.com/meridian-commerce/customer-auth/internal/usecase"
)

// SessionHandler exposes session listing for the authenticated customer.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session routes. All routes require authentication.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
}

func (h *SessionHandler) list(c *gin.Context) {
	accountID := middleware.AccountID(c)
	currentSession := middleware.SessionID(c)

	active, err := h.sessions.ListActive(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	sessions := make([]SessionSummary, 0, len(active))
	for _, session := range active {
		sessions = append(sessions, SessionSummary{
			ID:          session.ID,
			DeviceLabel: session.DeviceLabel,
			CreatedAt:   session.CreatedAt,
			LastSeen:    session.LastSeen,
			ExpiresAt:   session.ExpiresAt,
			Current:     session.ID == currentSession,
		})
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: sessions})
}
