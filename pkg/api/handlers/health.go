package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/actuator/pkg/agent"
	"github.com/urmzd/actuator/pkg/api/types"
	"github.com/urmzd/actuator/pkg/session"
)

// StatusSource reports the agent status.
type StatusSource interface {
	Status() agent.Status
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	status StatusSource
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(status StatusSource) *HealthHandler {
	return &HealthHandler{status: status}
}

// Health handles GET /health
// @Summary      Health check
// @Description  Returns the session and hardware state of the agent
// @Tags         health
// @Produce      json
// @Success      200  {object}  types.HealthResponse  "Agent is healthy"
// @Failure      503  {object}  types.HealthResponse  "Agent is degraded"
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	s := h.status.Status()

	hardware := "not_ready"
	if s.HardwareReady {
		hardware = "ready"
	}

	status := "healthy"
	httpStatus := http.StatusOK

	if s.Session != session.StateConnected.String() || !s.HardwareReady {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, types.HealthResponse{
		Status:    status,
		Session:   s.Session,
		Hardware:  hardware,
		Timestamp: time.Now(),
	})
}
