package docrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListRepositoriesArgument defines list parameters. The tool takes none.
type ListRepositoriesArgument struct{}

// ListRepositoriesHandler handles the list_repositories MCP tool.
type ListRepositoriesHandler struct {
	service *Service
}

// NewListRepositoriesHandler creates a new list handler.
func NewListRepositoriesHandler(service *Service) *ListRepositoriesHandler {
	return &ListRepositoriesHandler{
		service: service,
	}
}

// Handle returns the current sync set with per-repository state.
func (h *ListRepositoriesHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ListRepositoriesArgument) (*mcp.CallToolResult, any, error) {
	statuses := h.service.ListRepositories()
	if len(statuses) == 0 {
		return textResult("No repositories are configured or discovered yet."), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Tracked repositories (%d):\n\n", len(statuses)))

	for _, st := range statuses {
		repo := st.Repository
		sb.WriteString(fmt.Sprintf("- **%s** (%s, %s): %d files",
			repo.FullName(), repo.Branch, repo.Classification, st.State.FileCount))
		if !st.State.LastSynced.IsZero() {
			sb.WriteString(fmt.Sprintf(", last synced %s", st.State.LastSynced.Format("2006-01-02 15:04:05 UTC")))
		} else {
			sb.WriteString(", not synced yet")
		}
		if st.State.LastError != "" {
			sb.WriteString(fmt.Sprintf("\n  last error: %s", st.State.LastError))
		}
		sb.WriteString("\n")
	}

	if last := h.service.LastSync(); !last.IsZero() {
		sb.WriteString(fmt.Sprintf("\nLast sync pass: %s\n", last.Format("2006-01-02 15:04:05 UTC")))
	}

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ListRepositoriesHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "list_repositories",
		Description: "List the documentation repositories being tracked, with their sync state",
	}
}

// RegisterListRepositoriesTool registers the list tool with an MCP server.
func RegisterListRepositoriesTool(server *mcp.Server, service *Service) {
	handler := NewListRepositoriesHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
