package docrepos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AddBlocklistEntryArgument defines the fields of a new ledger entry.
type AddBlocklistEntryArgument struct {
	Kind       string `json:"kind" jsonschema_description:"Entry kind: \"server\" blocks a server by name, \"file_pattern\" blocks a file path pattern"`
	ServerName string `json:"server_name,omitempty" jsonschema_description:"Server name to block (required for kind \"server\"), e.g. \"owner/repo\""`
	Pattern    string `json:"pattern,omitempty" jsonschema_description:"File path pattern to block (required for kind \"file_pattern\"), e.g. \"**/secrets.md\""`
	Version    string `json:"version,omitempty" jsonschema_description:"Optional version that narrows a server block"`
	Reason     string `json:"reason" jsonschema_description:"Why the entry is being added; recorded in the audit trail"`
}

// AddBlocklistEntryHandler handles the add_blocklist_entry MCP tool.
type AddBlocklistEntryHandler struct {
	service *Service
}

// NewAddBlocklistEntryHandler creates a new add handler.
func NewAddBlocklistEntryHandler(service *Service) *AddBlocklistEntryHandler {
	return &AddBlocklistEntryHandler{
		service: service,
	}
}

// Handle validates and appends one ledger entry.
func (h *AddBlocklistEntryHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args AddBlocklistEntryArgument) (*mcp.CallToolResult, any, error) {
	kind := domain.BlocklistEntryKind(strings.TrimSpace(args.Kind))
	switch kind {
	case domain.BlocklistKindServer:
		if strings.TrimSpace(args.ServerName) == "" {
			return errorResult("server_name is required for kind \"server\""), nil, nil
		}
	case domain.BlocklistKindFilePattern:
		if strings.TrimSpace(args.Pattern) == "" {
			return errorResult("pattern is required for kind \"file_pattern\""), nil, nil
		}
	default:
		return errorResult(fmt.Sprintf("Unknown kind %q: use \"server\" or \"file_pattern\"", args.Kind)), nil, nil
	}
	if strings.TrimSpace(args.Reason) == "" {
		return errorResult("Reason cannot be empty"), nil, nil
	}

	entry, err := h.service.AddBlocklistEntry(domain.BlocklistEntry{
		Kind:       kind,
		ServerName: strings.TrimSpace(args.ServerName),
		Pattern:    strings.TrimSpace(args.Pattern),
		Version:    strings.TrimSpace(args.Version),
		Reason:     strings.TrimSpace(args.Reason),
		Source:     domain.BlocklistSourceUser,
	})
	if err != nil {
		if errors.Is(err, ErrReadOnly) {
			return errorResult("This instance is read-only and cannot modify the blocklist ledger."), nil, nil
		}
		return errorResult(fmt.Sprintf("Failed to add blocklist entry: %s", err)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Blocklist entry added.\n\n")
	sb.WriteString(fmt.Sprintf("**Kind**: %s\n", entry.Kind))
	sb.WriteString(fmt.Sprintf("**Target**: %s\n", blocklistTarget(entry)))
	if entry.Version != "" {
		sb.WriteString(fmt.Sprintf("**Version**: %s\n", entry.Version))
	}
	sb.WriteString(fmt.Sprintf("**Reason**: %s\n", entry.Reason))
	sb.WriteString(fmt.Sprintf("**Recorded**: %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 UTC")))
	sb.WriteString(fmt.Sprintf("**Integrity hash**: `%s`\n", entry.IntegrityHash))
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *AddBlocklistEntryHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "add_blocklist_entry",
		Description: "Append a server or file pattern block to the tamper-evident blocklist ledger",
	}
}

// CheckBlocklistArgument defines check parameters. At least one of the
// two fields must be set.
type CheckBlocklistArgument struct {
	ServerName string `json:"server_name,omitempty" jsonschema_description:"Server name to check"`
	Pattern    string `json:"pattern,omitempty" jsonschema_description:"File path pattern to check (compared by exact string equality)"`
}

// CheckBlocklistHandler handles the check_blocklist MCP tool.
type CheckBlocklistHandler struct {
	service *Service
}

// NewCheckBlocklistHandler creates a new check handler.
func NewCheckBlocklistHandler(service *Service) *CheckBlocklistHandler {
	return &CheckBlocklistHandler{
		service: service,
	}
}

// Handle reports whether a server or pattern is blocked.
func (h *CheckBlocklistHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args CheckBlocklistArgument) (*mcp.CallToolResult, any, error) {
	serverName := strings.TrimSpace(args.ServerName)
	pattern := strings.TrimSpace(args.Pattern)
	if serverName == "" && pattern == "" {
		return errorResult("Provide server_name or pattern to check"), nil, nil
	}

	blocked, reason, err := h.service.CheckBlocklist(serverName, pattern)
	if err != nil {
		return errorResult(fmt.Sprintf("Blocklist is unavailable: %s", err)), nil, nil
	}

	target := serverName
	if target == "" {
		target = pattern
	}
	if blocked {
		return textResult(fmt.Sprintf("%s is blocked: %s", target, reason)), nil, nil
	}
	return textResult(fmt.Sprintf("%s is not blocked.", target)), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *CheckBlocklistHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_blocklist",
		Description: "Check whether a server name or file pattern is on the blocklist",
	}
}

// SetBlocklistOverrideArgument identifies the entry to toggle.
type SetBlocklistOverrideArgument struct {
	IntegrityHash string `json:"integrity_hash" jsonschema_description:"Integrity hash of the ledger entry to toggle, as returned by add_blocklist_entry"`
	Allow         bool   `json:"allow" jsonschema_description:"true marks the entry overridable (not enforced during sync), false restores enforcement"`
}

// SetBlocklistOverrideHandler handles the set_blocklist_override MCP
// tool. Ledger entries are otherwise immutable; this audited toggle is
// the only way to change one, since hand-editing the persisted file
// breaks its integrity hash.
type SetBlocklistOverrideHandler struct {
	service *Service
}

// NewSetBlocklistOverrideHandler creates a new override handler.
func NewSetBlocklistOverrideHandler(service *Service) *SetBlocklistOverrideHandler {
	return &SetBlocklistOverrideHandler{
		service: service,
	}
}

// Handle toggles the allow_override flag of one ledger entry.
func (h *SetBlocklistOverrideHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SetBlocklistOverrideArgument) (*mcp.CallToolResult, any, error) {
	hash := strings.TrimSpace(args.IntegrityHash)
	if hash == "" {
		return errorResult("integrity_hash cannot be empty"), nil, nil
	}

	entry, err := h.service.SetBlocklistOverride(hash, args.Allow)
	if err != nil {
		if errors.Is(err, ErrReadOnly) {
			return errorResult("This instance is read-only and cannot modify the blocklist ledger."), nil, nil
		}
		if errors.Is(err, ErrEntryNotFound) {
			return errorResult(fmt.Sprintf("No ledger entry has integrity hash %s", hash)), nil, nil
		}
		return errorResult(fmt.Sprintf("Failed to update entry: %s", err)), nil, nil
	}

	state := "enforced"
	if entry.AllowOverride {
		state = "overridable (not enforced during sync)"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Entry for %s is now %s.\n\n", blocklistTarget(entry), state))
	sb.WriteString(fmt.Sprintf("**New integrity hash**: `%s`\n", entry.IntegrityHash))
	sb.WriteString("The hash changed because it covers every field, including allow_override.\n")
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SetBlocklistOverrideHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "set_blocklist_override",
		Description: "Toggle the allow_override flag of a blocklist ledger entry by its integrity hash",
	}
}

// blocklistTarget returns the field an entry blocks on.
func blocklistTarget(entry domain.BlocklistEntry) string {
	if entry.Kind == domain.BlocklistKindServer {
		return entry.ServerName
	}
	return entry.Pattern
}

// RegisterBlocklistTools registers the blocklist tools with an MCP server.
func RegisterBlocklistTools(server *mcp.Server, service *Service) {
	add := NewAddBlocklistEntryHandler(service)
	mcp.AddTool(server, add.GetToolDefinition(), add.Handle)

	check := NewCheckBlocklistHandler(service)
	mcp.AddTool(server, check.GetToolDefinition(), check.Handle)

	override := NewSetBlocklistOverrideHandler(service)
	mcp.AddTool(server, override.GetToolDefinition(), override.Handle)
}
