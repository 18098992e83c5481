package docrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetSpecificationArgument defines spec parameters. The tool takes none.
type GetSpecificationArgument struct{}

// GetSpecificationHandler handles the get_specification MCP tool.
type GetSpecificationHandler struct {
	service *Service
}

// NewGetSpecificationHandler creates a new spec handler.
func NewGetSpecificationHandler(service *Service) *GetSpecificationHandler {
	return &GetSpecificationHandler{
		service: service,
	}
}

// Handle returns the cached protocol specification document.
func (h *GetSpecificationHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args GetSpecificationArgument) (*mcp.CallToolResult, any, error) {
	payload, fetchedAt, source, err := h.service.GetSpecification(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("Specification unavailable: %s", err)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Source**: %s\n", source))
	sb.WriteString(fmt.Sprintf("**Fetched**: %s\n\n", fetchedAt.Format("2006-01-02 15:04:05 UTC")))
	sb.WriteString("```json\n")
	sb.Write(payload)
	sb.WriteString("\n```")
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *GetSpecificationHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_specification",
		Description: "Get the MCP protocol specification schema, cached locally and refreshed daily",
	}
}

// RegisterSpecTool registers the specification tool with an MCP server.
func RegisterSpecTool(server *mcp.Server, service *Service) {
	handler := NewGetSpecificationHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
