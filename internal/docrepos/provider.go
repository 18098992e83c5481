package docrepos

import "context"

// TreeEntry describes one file in a repository tree listing.
type TreeEntry struct {
	// Path relative to the repository root, slash-separated.
	// Format: "docs/guides/start.md"
	Path string

	// SHA is the git blob object name of the file contents.
	SHA string

	// Size of the file in bytes.
	Size int64
}

// RemoteRepository describes a repository discovered on the remote host.
type RemoteRepository struct {
	Owner         string
	Name          string
	DefaultBranch string
}

// ContentProvider is the remote host capability a sync pass depends
// on. Implementations classify failures through ProviderError so
// callers can tell transient conditions from permanent ones.
type ContentProvider interface {
	// ListTree returns every file in the repository tree at ref,
	// recursively. truncated reports that the host cut the listing
	// short; callers proceed with the partial result.
	ListTree(ctx context.Context, owner, name, ref string) (entries []TreeEntry, truncated bool, err error)

	// FetchBlob downloads file contents by blob object name.
	FetchBlob(ctx context.Context, owner, name, sha string) ([]byte, error)

	// FetchFile downloads file contents by path at ref.
	FetchFile(ctx context.Context, owner, name, ref, path string) ([]byte, error)

	// DiscoverRepositories lists repositories owned by the given user.
	DiscoverRepositories(ctx context.Context, user string) ([]RemoteRepository, error)

	// FileExists reports whether a file is present at ref without
	// downloading it.
	FileExists(ctx context.Context, owner, name, ref, path string) (bool, error)
}
