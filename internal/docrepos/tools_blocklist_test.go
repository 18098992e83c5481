package docrepos

import (
	"context"
	"strings"
	"testing"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestAddBlocklistEntryHandler_Validation(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})
	handler := NewAddBlocklistEntryHandler(svc)

	tests := []struct {
		name string
		args AddBlocklistEntryArgument
	}{
		{"unknown kind", AddBlocklistEntryArgument{Kind: "host", ServerName: "x", Reason: "r"}},
		{"server without name", AddBlocklistEntryArgument{Kind: "server", Reason: "r"}},
		{"pattern without pattern", AddBlocklistEntryArgument{Kind: "file_pattern", Reason: "r"}},
		{"missing reason", AddBlocklistEntryArgument{Kind: "server", ServerName: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !result.IsError {
				t.Error("Expected error result")
			}
		})
	}
}

func TestAddBlocklistEntryHandler_AppendsEntry(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	handler := NewAddBlocklistEntryHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, AddBlocklistEntryArgument{
		Kind:       "server",
		ServerName: "evil/server",
		Reason:     "serves malware",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "evil/server") {
		t.Errorf("Result should name the target, got: %s", text)
	}
	if !strings.Contains(text, "Integrity hash") {
		t.Errorf("Result should include the integrity hash, got: %s", text)
	}

	blocked, reason, err := svc.CheckBlocklist("evil/server", "")
	if err != nil {
		t.Fatalf("CheckBlocklist failed: %v", err)
	}
	if !blocked || reason != "serves malware" {
		t.Errorf("CheckBlocklist = (%v, %q), want blocked with the recorded reason", blocked, reason)
	}
}

func TestCheckBlocklistHandler_RequiresTarget(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})
	handler := NewCheckBlocklistHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, CheckBlocklistArgument{})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected error result when no target is given")
	}
}

func TestCheckBlocklistHandler_ReportsStatus(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	add := NewAddBlocklistEntryHandler(svc)
	if result, _, _ := add.Handle(context.Background(), &mcp.CallToolRequest{}, AddBlocklistEntryArgument{
		Kind: "file_pattern", Pattern: "**/secrets.md", Reason: "credentials",
	}); result.IsError {
		t.Fatalf("Add failed: %s", resultText(t, result))
	}

	handler := NewCheckBlocklistHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{},
		CheckBlocklistArgument{Pattern: "**/secrets.md"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "is blocked: credentials") {
		t.Errorf("Result text = %q", resultText(t, result))
	}

	result, _, err = handler.Handle(context.Background(), &mcp.CallToolRequest{},
		CheckBlocklistArgument{ServerName: "friendly/server"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "is not blocked") {
		t.Errorf("Result text = %q", resultText(t, result))
	}
}

func TestSetBlocklistOverrideHandler_TogglesEntry(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	entry, err := svc.AddBlocklistEntry(domain.BlocklistEntry{
		Kind:       domain.BlocklistKindServer,
		ServerName: "acme/docs",
		Reason:     "testing",
		Source:     domain.BlocklistSourceUser,
	})
	if err != nil {
		t.Fatalf("AddBlocklistEntry failed: %v", err)
	}

	handler := NewSetBlocklistOverrideHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SetBlocklistOverrideArgument{
		IntegrityHash: entry.IntegrityHash,
		Allow:         true,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Expected success, got error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	if !strings.Contains(text, "overridable") {
		t.Errorf("Result should report the new state, got: %s", text)
	}
	if strings.Contains(text, entry.IntegrityHash) {
		t.Error("The hash must change when the override flag flips")
	}

	entries, err := svc.BlocklistEntries()
	if err != nil {
		t.Fatalf("BlocklistEntries failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].AllowOverride {
		t.Errorf("Ledger entry should carry the override flag, got %+v", entries)
	}
}

func TestSetBlocklistOverrideHandler_UnknownHash(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	handler := NewSetBlocklistOverrideHandler(svc)
	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SetBlocklistOverrideArgument{
		IntegrityHash: "0000",
		Allow:         true,
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("Expected error result for an unknown hash")
	}
	if !strings.Contains(resultText(t, result), "No ledger entry") {
		t.Errorf("Error text = %q", resultText(t, result))
	}
}

func TestBlocklistHandlers_GetToolDefinitions(t *testing.T) {
	names := map[string]string{
		NewAddBlocklistEntryHandler(nil).GetToolDefinition().Name:    "add_blocklist_entry",
		NewCheckBlocklistHandler(nil).GetToolDefinition().Name:       "check_blocklist",
		NewSetBlocklistOverrideHandler(nil).GetToolDefinition().Name: "set_blocklist_override",
	}
	for got, want := range names {
		if got != want {
			t.Errorf("Tool name = %q, want %q", got, want)
		}
	}
}
