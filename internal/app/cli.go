package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	flags.Bool("docs-enabled", true, "Enable the documentation index")
	flags.String("docs-data-dir", "", "Data directory for the documentation index")
	flags.String("docs-github-token", "", "GitHub token for fetching repository content")
	flags.String("docs-github-user", "", "GitHub user whose repositories are scanned for documentation")
	flags.Int64("docs-max-file-size", 0, "Maximum indexed file size in bytes")
	flags.Int("docs-max-results", 0, "Maximum number of search results")
}
