package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridian-commerce/customer-auth/internal/transport/http/middleware"
	"github.com/meridian-commerce/customer-auth/internal/usecase"
)

// DeviceHandler exposes the remembered-device management endpoints.
type DeviceHandler struct {
	devices *usecase.DeviceService
}

// NewDeviceHandler constructs DeviceHandler.
func NewDeviceHandler(devices *usecase.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// RegisterRoutes binds device trust routes. All routes require authentication.
func (h *DeviceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.DELETE("", h.revokeAll)
	r.DELETE("/:id", h.revoke)
}

func (h *DeviceHandler) list(c *gin.Context) {
	accountID := middleware.AccountID(c)

	trusts, err := h.devices.List(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list devices"))
		return
	}

	devices := make([]DeviceResponse, 0, len(trusts))
	for _, trust := range trusts {
		devices = append(devices, newDeviceResponse(trust))
	}

	c.JSON(http.StatusOK, DeviceListResponse{Devices: devices})
}

func (h *DeviceHandler) revokeAll(c *gin.Context) {
	accountID := middleware.AccountID(c)

	count, err := h.devices.RevokeAll(c.Request.Context(), accountID, usecase.DeviceRevokedByCustomer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke devices"))
		return
	}

	c.JSON(http.StatusOK, DeviceRevokeAllResponse{
		Message:        "device trusts revoked",
		DevicesRevoked: count,
	})
}

func (h *DeviceHandler) revoke(c *gin.Context) {
	accountID := middleware.AccountID(c)
	trustID := c.Param("id")

	if err := h.devices.Revoke(c.Request.Context(), accountID, trustID); err != nil {
		if errors.Is(err, usecase.ErrDeviceTrustNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "device not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke device"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "device trust revoked"})
}
