package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/actuator/pkg/api/types"
)

// DeviceHandler reports the device identity and status
type DeviceHandler struct {
	status StatusSource
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(status StatusSource) *DeviceHandler {
	return &DeviceHandler{status: status}
}

// GetDevice handles GET /device
// @Summary      Get device
// @Description  Returns the device identity, session state, hardware readiness and output
// @Tags         device
// @Produce      json
// @Success      200  {object}  types.DeviceResponse
// @Router       /device [get]
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	s := h.status.Status()
	c.JSON(http.StatusOK, types.DeviceResponse{
		DeviceID:      s.DeviceID,
		Session:       s.Session,
		SessionSince:  s.SessionSince,
		HardwareReady: s.HardwareReady,
		Output:        s.Output,
	})
}
