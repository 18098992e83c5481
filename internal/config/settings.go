package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DocsSettings configuration for the documentation index
type DocsSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	DataDir     string `mapstructure:"data_dir"`
	GitHubToken string `mapstructure:"github_token"`
	GitHubUser  string `mapstructure:"github_user"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
	MaxResults  int    `mapstructure:"max_results"`
}

// Settings application settings
type Settings struct {
	Transport string       `mapstructure:"transport"`
	Host      string       `mapstructure:"host"`
	Port      int          `mapstructure:"port"`
	Auth      AuthSettings `mapstructure:"auth"`
	Docs      DocsSettings `mapstructure:"docs"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Docs defaults
	v.SetDefault("docs.enabled", true)
	v.SetDefault("docs.data_dir", defaultDataDir())
	v.SetDefault("docs.max_file_size", int64(1024*1024)) // 1MB
	v.SetDefault("docs.max_results", 10)

	// Environment variables
	v.SetEnvPrefix("LORE_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("auth.type", "LORE_MCP_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "LORE_MCP_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "LORE_MCP_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "LORE_MCP_AUTH_API_KEYS")

	// Docs env var bindings. The token also falls back to the
	// conventional GITHUB_TOKEN.
	_ = v.BindEnv("docs.enabled", "LORE_MCP_DOCS_ENABLED")
	_ = v.BindEnv("docs.data_dir", "LORE_MCP_DOCS_DATA_DIR")
	_ = v.BindEnv("docs.github_token", "LORE_MCP_DOCS_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("docs.github_user", "LORE_MCP_DOCS_GITHUB_USER")
	_ = v.BindEnv("docs.max_file_size", "LORE_MCP_DOCS_MAX_FILE_SIZE")
	_ = v.BindEnv("docs.max_results", "LORE_MCP_DOCS_MAX_RESULTS")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		// Docs CLI flags
		_ = v.BindPFlag("docs.enabled", flags.Lookup("docs-enabled"))
		_ = v.BindPFlag("docs.data_dir", flags.Lookup("docs-data-dir"))
		_ = v.BindPFlag("docs.github_token", flags.Lookup("docs-github-token"))
		_ = v.BindPFlag("docs.github_user", flags.Lookup("docs-github-user"))
		_ = v.BindPFlag("docs.max_file_size", flags.Lookup("docs-max-file-size"))
		_ = v.BindPFlag("docs.max_results", flags.Lookup("docs-max-results"))
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv("LORE_MCP_AUTH_API_KEYS")
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}

	// Expand home directory in data_dir
	settings.Docs.DataDir = expandHomeDir(settings.Docs.DataDir)

	return &settings, nil
}

// defaultDataDir returns the default data directory for the docs index
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lore-mcp"
	}
	return filepath.Join(home, ".lore-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	// Validate docs settings
	if err := validateDocsSettings(&s.Docs); err != nil {
		return err
	}

	return nil
}

// validateDocsSettings validates the documentation index configuration
func validateDocsSettings(d *DocsSettings) error {
	if !d.Enabled {
		return nil // No validation needed when disabled
	}

	if d.DataDir == "" {
		return errors.New("docs-data-dir cannot be empty")
	}

	if d.MaxFileSize <= 0 {
		return errors.New("docs-max-file-size must be positive")
	}

	if d.MaxResults <= 0 {
		return errors.New("docs-max-results must be positive")
	}

	return nil
}
