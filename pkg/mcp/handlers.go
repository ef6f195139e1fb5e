package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/actuator/pkg/engine"
	"github.com/urmzd/actuator/pkg/sensor"
)

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	broker := "disconnected"
	if s.remote.Connected() {
		broker = "connected"
	}

	status := "healthy"
	if broker != "connected" {
		status = "unhealthy"
	}

	out := GetHealthOutput{
		Status:    status,
		Broker:    broker,
		DeviceID:  s.remote.DeviceID(),
		Timestamp: now(),
	}

	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleListParameters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, err := s.remote.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list parameters: %s", err)), nil
	}

	out := ListParametersOutput{
		Parameters: params,
		Count:      len(params),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, known, err := s.remote.Get(ctx, sensor.FieldNameOutput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get output: %s", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(OutputState{Value: v, Known: known, Time: now()})), nil
}

func (s *Server) handleSetOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	value, err := requiredBool(request, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	v, err := s.remote.Set(ctx, sensor.FieldNameOutput, value, engine.ActorMCP)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set output: %s", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(OutputState{Value: v, Known: true, Time: now()})), nil
}

func (s *Server) handleReadSensor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var names []string
	if raw, ok := request.GetArguments()["types"]; ok && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return mcp.NewToolResultError(`parameter "types" must be an array of strings`), nil
		}
		for _, it := range items {
			n, ok := it.(string)
			if !ok {
				return mcp.NewToolResultError(`parameter "types" must be an array of strings`), nil
			}
			names = append(names, n)
		}
	}

	types, err := parseFieldTypes(names)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fields, err := s.remote.Readout(ctx, sensor.ReadoutRequest{Types: types, Actor: engine.ActorMCP})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read sensor: %s", err)), nil
	}
	if fields == nil {
		fields = []sensor.Field{}
	}

	return mcp.NewToolResultText(formatJSON(ReadSensorOutput{Fields: fields, Count: len(fields)})), nil
}

func requiredBool(request mcp.CallToolRequest, key string) (bool, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return false, fmt.Errorf("required parameter %q is missing", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean", key)
	}
	return b, nil
}

func formatJSON(v any) string {
	b, err := encodeJSON(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
