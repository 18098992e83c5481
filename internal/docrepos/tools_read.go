package docrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ReadDocArgument defines read parameters.
type ReadDocArgument struct {
	Owner  string `json:"owner" jsonschema_description:"Repository owner login (e.g., modelcontextprotocol)"`
	Name   string `json:"name" jsonschema_description:"Repository name (e.g., docs)"`
	Branch string `json:"branch,omitempty" jsonschema_description:"Branch the file was indexed from (default: main)"`
	Path   string `json:"path" jsonschema_description:"File path relative to the repository root"`
}

// ReadDocHandler handles the read_doc MCP tool.
type ReadDocHandler struct {
	service *Service
}

// NewReadDocHandler creates a new read handler.
func NewReadDocHandler(service *Service) *ReadDocHandler {
	return &ReadDocHandler{
		service: service,
	}
}

// Handle returns the full indexed content of one document.
func (h *ReadDocHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadDocArgument) (*mcp.CallToolResult, any, error) {
	// Validate coordinates
	if strings.TrimSpace(args.Owner) == "" {
		return errorResult("Owner cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Name) == "" {
		return errorResult("Name cannot be empty"), nil, nil
	}
	if strings.TrimSpace(args.Path) == "" {
		return errorResult("Path cannot be empty"), nil, nil
	}
	if err := ValidateRelPath(args.Path); err != nil {
		return errorResult(fmt.Sprintf("Invalid path: %s", err)), nil, nil
	}

	branch := args.Branch
	if branch == "" {
		branch = "main"
	}

	doc, ok := h.service.GetDocument(DocumentID(args.Owner, args.Name, branch, args.Path))
	if !ok {
		return errorResult(fmt.Sprintf(
			"Document not found: %s/%s@%s:%s. It may not be indexed yet; try trigger_sync or check list_repositories.",
			args.Owner, args.Name, branch, args.Path)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**File**: `%s`\n", doc.Path))
	sb.WriteString(fmt.Sprintf("**Repository**: %s/%s (%s)\n", doc.Owner, doc.Name, doc.Branch))
	sb.WriteString(fmt.Sprintf("**Size**: %d bytes\n", doc.Size))
	sb.WriteString(fmt.Sprintf("**Last indexed**: %s\n\n", doc.LastIndexed.Format("2006-01-02 15:04:05 UTC")))
	sb.WriteString(fmt.Sprintf("```%s\n%s\n```", docLanguage(doc.FileType), doc.Content))

	return textResult(sb.String()), nil, nil
}

// docLanguage maps a file extension to a code-fence language hint.
func docLanguage(ext string) string {
	switch strings.ToLower(ext) {
	case "md", "mdx":
		return "markdown"
	case "txt":
		return "text"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	}
	return ext
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadDocHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_doc",
		Description: "Read the full content of an indexed documentation file",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, service *Service) {
	handler := NewReadDocHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
