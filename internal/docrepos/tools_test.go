package docrepos

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// resultText concatenates the text content of a tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	text := ""
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

// setupToolService builds a service with one synced repository,
// acme/docs on main, holding the given files.
func setupToolService(t *testing.T, paths []string, contents map[string]string) (*Service, *FakeProvider) {
	t.Helper()

	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main", paths, contents)

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(svc.Stop)

	svc.runPass(context.Background(), false)
	return svc, provider
}

func TestRegisterTools(t *testing.T) {
	svc, _ := setupToolService(t,
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "1.0"}, nil)
	RegisterTools(server, svc)
}
