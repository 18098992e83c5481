package docrepos

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// textResult wraps plain text in a successful tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errorResult wraps a user-facing failure in a tool result. Tool
// handlers report failures this way instead of returning a Go error,
// so the transport session stays alive.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// RegisterTools registers every documentation tool with an MCP server.
func RegisterTools(server *mcp.Server, service *Service) {
	RegisterSearchTool(server, service)
	RegisterReadTool(server, service)
	RegisterListRepositoriesTool(server, service)
	RegisterSyncTool(server, service)
	RegisterBlocklistTools(server, service)
	RegisterSpecTool(server, service)
}
