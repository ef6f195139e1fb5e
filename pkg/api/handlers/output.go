package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urmzd/actuator/pkg/api/types"
	"github.com/urmzd/actuator/pkg/control/schema"
	"github.com/urmzd/actuator/pkg/engine"
)

// OutputController is the engine surface the local UI uses.
type OutputController interface {
	Output() (value bool, known bool)
	RequestWrite(ctx context.Context, value bool, actor string) error
	Subscribe() <-chan engine.Change
	Unsubscribe(ch <-chan engine.Change)
}

var setOutputSchema = json.RawMessage(`{
	"type": "object",
	"required": ["value"],
	"properties": {
		"value": {"type": "boolean"}
	},
	"additionalProperties": false
}`)

// OutputHandler handles output endpoints
type OutputHandler struct {
	output    OutputController
	validator *schema.Validator
	heartbeat time.Duration
}

// NewOutputHandler creates a new output handler
func NewOutputHandler(output OutputController, validator *schema.Validator) *OutputHandler {
	return &OutputHandler{output: output, validator: validator, heartbeat: 30 * time.Second}
}

func outputResponse(value, known bool) types.OutputResponse {
	resp := types.OutputResponse{Known: known, Timestamp: time.Now()}
	if known {
		resp.Value = &value
	}
	return resp
}

// GetOutput handles GET /output
// @Summary      Get output
// @Description  Returns the cached output value; value is null until one is established
// @Tags         output
// @Produce      json
// @Success      200  {object}  types.OutputResponse
// @Router       /output [get]
func (h *OutputHandler) GetOutput(c *gin.Context) {
	c.JSON(http.StatusOK, outputResponse(h.output.Output()))
}

// SetOutput handles PUT /output
// @Summary      Set output
// @Description  Writes the output as the local user
// @Tags         output
// @Accept       json
// @Produce      json
// @Param        request  body      types.SetOutputRequest  true  "Output value"
// @Success      200      {object}  types.OutputResponse
// @Failure      400      {object}  types.ErrorResponse  "Invalid request"
// @Failure      504      {object}  types.ErrorResponse  "Write timed out"
// @Router       /output [put]
func (h *OutputHandler) SetOutput(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	if _, err := h.validator.Decode(setOutputSchema, body); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	var req types.SetOutputRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	if err := h.output.RequestWrite(c.Request.Context(), req.Value, engine.ActorLocal); err != nil {
		c.JSON(http.StatusGatewayTimeout, types.ErrorResponse{
			Error:   "timeout",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, outputResponse(h.output.Output()))
}

// Events handles GET /output/events (SSE stream)
// @Summary      Subscribe to output changes
// @Description  Server-Sent Events stream of output changes made by remote or local users
// @Tags         output
// @Produce      text/event-stream
// @Success      200  {string}  string  "SSE event stream"
// @Router       /output/events [get]
func (h *OutputHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	changes := h.output.Subscribe()
	defer h.output.Unsubscribe(changes)

	value, known := h.output.Output()
	sendSSEEvent(c.Writer, "connected", outputResponse(value, known))
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return

		case change, ok := <-changes:
			if !ok {
				return
			}
			sendSSEEvent(c.Writer, "output", change)
			c.Writer.Flush()

		case <-ticker.C:
			sendSSEEvent(c.Writer, "heartbeat", map[string]any{
				"timestamp": time.Now(),
			})
			c.Writer.Flush()
		}
	}
}

// sendSSEEvent writes an SSE event to the response
func sendSSEEvent(w io.Writer, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	io.WriteString(w, "event: "+eventType+"\n")
	io.WriteString(w, "data: "+string(jsonData)+"\n\n")
}
