package types

import (
	"time"
)

// --- Request DTOs ---

// SetOutputRequest is the request body for PUT /output
type SetOutputRequest struct {
	Value bool `json:"value"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Session   string    `json:"session"`
	Hardware  string    `json:"hardware"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceResponse is returned from GET /device
type DeviceResponse struct {
	DeviceID      string     `json:"device_id"`
	Session       string     `json:"session"`
	SessionSince  *time.Time `json:"session_since,omitempty"`
	HardwareReady bool       `json:"hardware_ready"`
	Output        *bool      `json:"output"`
}

// OutputResponse is returned from GET/PUT /output
type OutputResponse struct {
	Value     *bool     `json:"value"`
	Known     bool      `json:"known"`
	Timestamp time.Time `json:"timestamp"`
}
