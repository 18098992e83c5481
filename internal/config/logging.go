package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: auth.type", "value", s.Auth.Type)
	switch s.Auth.Type {
	case AuthTypeBasic:
		logger.InfoContext(ctx, "Config: auth.basic.username", "value", s.Auth.Basic.Username)
		logger.InfoContext(ctx, "Config: auth.basic.password", "value", "****")
	case AuthTypeAPIKey:
		logger.InfoContext(ctx, "Config: auth.api_keys", "count", len(s.Auth.APIKeys))
	}

	logger.InfoContext(ctx, "Config: docs.enabled", "value", s.Docs.Enabled)
	if s.Docs.Enabled {
		logger.InfoContext(ctx, "Config: docs.data_dir", "value", s.Docs.DataDir)
		logger.InfoContext(ctx, "Config: docs.github_token", "value", maskSecret(s.Docs.GitHubToken))
		if s.Docs.GitHubUser != "" {
			logger.InfoContext(ctx, "Config: docs.github_user", "value", s.Docs.GitHubUser)
		}
		logger.InfoContext(ctx, "Config: docs.max_file_size", "value", s.Docs.MaxFileSize)
		logger.InfoContext(ctx, "Config: docs.max_results", "value", s.Docs.MaxResults)
	}
}

// maskSecret hides a secret value, distinguishing set from unset
func maskSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	return "****"
}

// AuthSettingsLogValue returns a slog.Value for AuthSettings with masked data
func AuthSettingsLogValue(s AuthSettings) slog.Value {
	keys := make([]string, len(s.APIKeys))
	for i := range s.APIKeys {
		keys[i] = "****"
	}
	return slog.GroupValue(
		slog.String("type", s.Type),
		slog.Any("basic", BasicAuthSettingsLogValue(s.Basic)),
		slog.Any("api_keys", keys),
	)
}

// BasicAuthSettingsLogValue returns a slog.Value for BasicAuthSettings with masked data
func BasicAuthSettingsLogValue(s BasicAuthSettings) slog.Value {
	return slog.GroupValue(
		slog.String("username", s.Username),
		slog.String("password", "****"),
	)
}

// DocsSettingsLogValue returns a slog.Value for DocsSettings with masked data
func DocsSettingsLogValue(s DocsSettings) slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", s.Enabled),
		slog.String("data_dir", s.DataDir),
		slog.String("github_token", maskSecret(s.GitHubToken)),
		slog.String("github_user", s.GitHubUser),
		slog.Int64("max_file_size", s.MaxFileSize),
		slog.Int("max_results", s.MaxResults),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("auth", AuthSettingsLogValue(s.Auth)),
		slog.Any("docs", DocsSettingsLogValue(s.Docs)),
	)
}
