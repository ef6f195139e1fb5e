// Package mcp bridges MCP tool calls to an actuator's control and sensor
// channels over the broker. It is a remote party like any other; writes go
// through the device's control channel.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urmzd/actuator/pkg/control"
	"github.com/urmzd/actuator/pkg/sensor"
)

// Remote is the device as seen from the broker.
type Remote interface {
	Connected() bool
	DeviceID() string
	List(ctx context.Context) ([]control.Descriptor, error)
	Get(ctx context.Context, name string) (value any, known bool, err error)
	Set(ctx context.Context, name string, value any, actor string) (any, error)
	Readout(ctx context.Context, req sensor.ReadoutRequest) ([]sensor.Field, error)
}

// Server wraps the MCP server with the actuator tools
type Server struct {
	mcpServer *server.MCPServer
	remote    Remote
}

// NewServer creates a new MCP server for one device
func NewServer(remote Remote) *Server {
	s := &Server{remote: remote}

	s.mcpServer = server.NewMCPServer(
		"actuator",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
