package mcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Check the broker connection used to reach the actuator"),
		),
		s.handleGetHealth,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_parameters",
			mcp.WithDescription("List the control parameters the actuator exposes"),
		),
		s.handleListParameters,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_output",
			mcp.WithDescription("Get the current output value of the actuator"),
		),
		s.handleGetOutput,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_output",
			mcp.WithDescription("Switch the actuator output on or off"),
			mcp.WithBoolean("value",
				mcp.Required(),
				mcp.Description("true to switch the output on, false to switch it off"),
			),
		),
		s.handleSetOutput,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("read_sensor",
			mcp.WithDescription("Read the actuator's sensor fields (identity and momentary output)"),
			mcp.WithArray("types",
				mcp.Description("Field types to read (default: all)"),
				mcp.Items(map[string]any{
					"type": "string",
					"enum": fieldTypeNames(),
				}),
			),
		),
		s.handleReadSensor,
	)
}
