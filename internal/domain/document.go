package domain

import "time"

// IndexedDocument represents one indexed file from a synced repository.
// It is the unit stored in the in-memory document index and mirrored in
// the local content cache.
type IndexedDocument struct {
	// ID is a unique identifier combining repository identity and file path.
	// Format: "owner/name/branch/path/to/file.md"
	ID string `json:"id"`

	// Owner is the repository owner login.
	Owner string `json:"owner"`

	// Name is the repository name.
	Name string `json:"name"`

	// Branch is the branch the content was taken from.
	Branch string `json:"branch"`

	// Path is the file path relative to the repository root.
	// Example: "docs/getting-started.md"
	Path string `json:"path"`

	// Content is the full file content used for search and snippets.
	Content string `json:"content"`

	// FileType is the file extension without the leading dot.
	// Example: "md", "mdx", "txt"
	FileType string `json:"file_type"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`

	// ContentHash is the provider's content address for the file
	// (the git blob SHA for GitHub-hosted repositories).
	ContentHash string `json:"content_hash"`

	// LastIndexed records when the document was last written to the index.
	LastIndexed time.Time `json:"last_indexed"`
}

// SearchResult is a single ranked hit returned by the document index.
type SearchResult struct {
	// ID identifies the matched document, together with the repository
	// coordinates and path below.
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Branch string `json:"branch"`
	Path   string `json:"path"`

	// RelevanceScore is in [0, 1], derived from the number of query
	// occurrences in the document content.
	RelevanceScore float64 `json:"relevance_score"`

	// Snippet is a short excerpt around the first query occurrence.
	Snippet string `json:"snippet"`
}
