package mcp

import (
	"github.com/lorekeep/mcp-lore-server/internal/docrepos"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	DocsSvc *docrepos.Service
}

// CreateServer creates the MCP server and registers the documentation
// tools when a docs service is available.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.DocsSvc != nil {
		docrepos.RegisterTools(s, cfg.DocsSvc)
	}

	return s
}
