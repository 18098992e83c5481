package docrepos

import (
	"log/slog"
	"slices"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
)

// MarkerPath is the file a repository carries to opt in to discovery.
// Discovered repositories without it are never indexed.
const MarkerPath = ".mcp-docs"

// OfficialRepositories returns the built-in official documentation
// sources.
func OfficialRepositories() []domain.RepositoryDescriptor {
	return builtinSet(domain.ClassificationOfficial, [][2]string{
		{"modelcontextprotocol", "modelcontextprotocol"},
		{"modelcontextprotocol", "docs"},
		{"modelcontextprotocol", "servers"},
	})
}

// CommunityRepositories returns the built-in community documentation
// sources.
func CommunityRepositories() []domain.RepositoryDescriptor {
	return builtinSet(domain.ClassificationCommunity, [][2]string{
		{"punkpeye", "awesome-mcp-servers"},
		{"wong2", "awesome-mcp-servers"},
	})
}

func builtinSet(class domain.Classification, repos [][2]string) []domain.RepositoryDescriptor {
	out := make([]domain.RepositoryDescriptor, 0, len(repos))
	for _, r := range repos {
		out = append(out, domain.RepositoryDescriptor{
			Owner:           r[0],
			Name:            r[1],
			Branch:          "main",
			IncludePatterns: slices.Clone(DefaultIncludePatterns),
			ExcludePatterns: slices.Clone(DefaultExcludePatterns),
			IndexingEnabled: true,
			Classification:  class,
		})
	}
	return out
}

// DescriptorForDiscovered builds a descriptor for a repository found
// through user discovery, carrying the default pattern sets.
func DescriptorForDiscovered(r RemoteRepository) domain.RepositoryDescriptor {
	return domain.RepositoryDescriptor{
		Owner:           r.Owner,
		Name:            r.Name,
		Branch:          r.DefaultBranch,
		IncludePatterns: slices.Clone(DefaultIncludePatterns),
		ExcludePatterns: slices.Clone(DefaultExcludePatterns),
		IndexingEnabled: true,
		Classification:  domain.ClassificationUser,
	}
}

// assembleSources builds the repository set for one sync pass:
// explicitly configured repositories first, then the discovered,
// official and community sets as the configuration enables them.
// When the same repository appears twice the first occurrence wins,
// so explicit configuration overrides every other source.
//
// blockedServers and blockedPatterns carry the strict blocklist
// enforcement state: a repository whose name or owner/name is a
// blocked server is skipped, and blocked file patterns extend every
// repository's excludes.
func assembleSources(cfg StoreConfig, discovered []domain.RepositoryDescriptor, blockedServers map[string]string, blockedPatterns []string) []domain.RepositoryDescriptor {
	var candidates []domain.RepositoryDescriptor
	candidates = append(candidates, cfg.Repositories...)
	candidates = append(candidates, discovered...)
	if cfg.Sync.IncludeOfficialRepos {
		candidates = append(candidates, OfficialRepositories()...)
	}
	if cfg.Sync.IncludeCommunityRepos {
		candidates = append(candidates, CommunityRepositories()...)
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]domain.RepositoryDescriptor, 0, len(candidates))
	for _, repo := range candidates {
		if !repo.IndexingEnabled {
			continue
		}
		if seen[repo.Key()] {
			continue
		}
		seen[repo.Key()] = true

		if reason, blocked := blockedFor(repo, blockedServers); blocked {
			slog.Info("Skipping blocked repository",
				"repository", repo.FullName(), "reason", reason)
			continue
		}

		if len(blockedPatterns) > 0 {
			excludes := make([]string, 0, len(repo.ExcludePatterns)+len(blockedPatterns))
			excludes = append(excludes, repo.ExcludePatterns...)
			excludes = append(excludes, blockedPatterns...)
			repo.ExcludePatterns = excludes
		}
		out = append(out, repo)
	}
	return out
}

func blockedFor(repo domain.RepositoryDescriptor, blockedServers map[string]string) (string, bool) {
	if reason, ok := blockedServers[repo.FullName()]; ok {
		return reason, true
	}
	if reason, ok := blockedServers[repo.Name]; ok {
		return reason, true
	}
	return "", false
}
