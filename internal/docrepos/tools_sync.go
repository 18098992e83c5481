package docrepos

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TriggerSyncArgument defines sync parameters.
type TriggerSyncArgument struct {
	Force bool `json:"force,omitempty" jsonschema_description:"Rebuild the whole index instead of an incremental update, dropping documents whose files or repositories no longer exist"`
}

// TriggerSyncHandler handles the trigger_sync MCP tool.
type TriggerSyncHandler struct {
	service *Service
}

// NewTriggerSyncHandler creates a new sync handler.
func NewTriggerSyncHandler(service *Service) *TriggerSyncHandler {
	return &TriggerSyncHandler{
		service: service,
	}
}

// Handle runs a sync pass and reports its outcome, or queues the
// request behind a pass already in flight.
func (h *TriggerSyncHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args TriggerSyncArgument) (*mcp.CallToolResult, any, error) {
	summary, queued, err := h.service.RunSync(ctx, args.Force)
	if err != nil {
		if errors.Is(err, ErrReadOnly) {
			return errorResult("This instance is read-only: another instance holds the data directory lock, so it owns syncing."), nil, nil
		}
		if errors.Is(err, ErrSyncUnavailable) {
			return errorResult(fmt.Sprintf("Sync is unavailable: %s", err)), nil, nil
		}
		return errorResult(fmt.Sprintf("Sync failed to start: %s", err)), nil, nil
	}

	if queued {
		return textResult("A sync pass is already running. Your request was queued and will run when the current pass completes."), nil, nil
	}

	kind := "Incremental"
	if summary.Forced {
		kind = "Forced"
	}
	text := fmt.Sprintf(
		"%s sync complete in %s: %d repositories synced (%d failed), %d documents indexed, %d documents in the index.",
		kind, summary.Duration, summary.RepositoriesTouched, summary.RepositoriesFailed,
		summary.DocumentsIndexed, summary.IndexedTotal)
	return textResult(text), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *TriggerSyncHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "trigger_sync",
		Description: "Sync the tracked documentation repositories now, optionally forcing a full index rebuild",
	}
}

// RegisterSyncTool registers the sync tool with an MCP server.
func RegisterSyncTool(server *mcp.Server, service *Service) {
	handler := NewTriggerSyncHandler(service)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
