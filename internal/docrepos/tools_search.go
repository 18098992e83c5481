package docrepos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxSearchResults bounds the max_results argument of the search tool.
const MaxSearchResults = 50

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query      string `json:"query" jsonschema_description:"Text to search for in indexed documentation (case-insensitive)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema_description:"Maximum number of results to return, between 1 and 50 (default 10)"`
}

// SearchHandler handles the search_docs MCP tool.
type SearchHandler struct {
	service *Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service *Service) *SearchHandler {
	return &SearchHandler{
		service: service,
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	// Validate query
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	// Validate result limit
	if args.MaxResults < 0 || args.MaxResults > MaxSearchResults {
		return errorResult(fmt.Sprintf("max_results must be between 1 and %d", MaxSearchResults)), nil, nil
	}

	results, err := h.service.Search(args.Query, args.MaxResults)
	if err != nil {
		if errors.Is(err, ErrQueryTooShort) {
			return errorResult(fmt.Sprintf("Query must be at least %d characters", MinQueryLength)), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	return h.formatResults(results, args.Query), nil, nil
}

// formatResults renders ranked hits for the MCP response.
func (h *SearchHandler) formatResults(results []domain.SearchResult, queryStr string) *mcp.CallToolResult {
	if len(results) == 0 {
		return textResult(fmt.Sprintf("No results found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d results for '%s':\n\n", len(results), queryStr))

	for i, hit := range results {
		sb.WriteString(fmt.Sprintf("### %d. %s/%s:%s\n", i+1, hit.Owner, hit.Name, hit.Path))
		sb.WriteString(fmt.Sprintf("**Score**: %.2f\n\n", hit.RelevanceScore))

		if hit.Snippet != "" {
			sb.WriteString("```\n")
			sb.WriteString(hit.Snippet)
			sb.WriteString("\n```\n")
		}

		sb.WriteString("\n")
	}

	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_docs",
		Description: "Search across indexed MCP documentation repositories",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, service *Service) {
	handler := NewSearchHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
