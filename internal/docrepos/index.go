package docrepos

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
)

const (
	// MinQueryLength is the shortest accepted search query. Shorter
	// queries are contained in nearly every document and would rank the
	// whole index at offset zero.
	MinQueryLength = 2

	// DefaultSearchResults is used when a caller does not limit results.
	DefaultSearchResults = 10

	// scoreSaturation is the occurrence count at which relevance reaches 1.0.
	scoreSaturation = 10

	// Snippet window around the first query occurrence, in bytes.
	snippetBefore = 100
	snippetAfter  = 200
)

// DocumentIndex is an in-memory keyed store of indexed documents with
// deterministic containment search. Upserts are last-write-wins by
// document ID; iteration follows insertion order, which also breaks
// ranking ties.
type DocumentIndex struct {
	mu    sync.RWMutex
	docs  map[string]domain.IndexedDocument
	order []string
}

// IndexStats summarizes the index contents.
type IndexStats struct {
	DocumentCount int            `json:"document_count"`
	Repositories  []string       `json:"repositories"`
	FileTypes     map[string]int `json:"file_types"`
}

// RepositoryCount is one row of ListRepositories output.
type RepositoryCount struct {
	Owner     string `json:"owner"`
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
}

// NewDocumentIndex creates an empty document index.
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{
		docs: make(map[string]domain.IndexedDocument),
	}
}

// AddDocuments upserts each document by ID. An existing document is
// overwritten in place and keeps its insertion position; new documents
// are appended.
func (x *DocumentIndex) AddDocuments(batch []domain.IndexedDocument) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, doc := range batch {
		if _, exists := x.docs[doc.ID]; !exists {
			x.order = append(x.order, doc.ID)
		}
		x.docs[doc.ID] = doc
	}
}

// Get returns the document stored under the given ID.
func (x *DocumentIndex) Get(id string) (domain.IndexedDocument, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	doc, ok := x.docs[id]
	return doc, ok
}

// Count returns the number of stored documents.
func (x *DocumentIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Search ranks documents containing the query, case-insensitively.
//
// The relevance score is occurrenceCount/10 capped at 1.0, where
// occurrenceCount counts non-overlapping occurrences. Results are sorted
// by score descending with a stable sort, so equal scores keep insertion
// order. maxResults truncates after sorting; values <= 0 fall back to
// DefaultSearchResults. Queries shorter than MinQueryLength (after
// trimming) are rejected with ErrQueryTooShort.
func (x *DocumentIndex) Search(query string, maxResults int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	if maxResults <= 0 {
		maxResults = DefaultSearchResults
	}

	loweredQuery := strings.ToLower(query)

	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []domain.SearchResult
	for _, id := range x.order {
		doc := x.docs[id]
		lowered := strings.ToLower(doc.Content)

		first := strings.Index(lowered, loweredQuery)
		if first < 0 {
			continue
		}
		count := strings.Count(lowered, loweredQuery)

		score := float64(count) / scoreSaturation
		if score > 1.0 {
			score = 1.0
		}

		results = append(results, domain.SearchResult{
			ID:             doc.ID,
			Owner:          doc.Owner,
			Name:           doc.Name,
			Branch:         doc.Branch,
			Path:           doc.Path,
			RelevanceScore: score,
			Snippet:        makeSnippet(doc.Content, first, len(loweredQuery)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// makeSnippet extracts a window around the first occurrence, clamped to
// the content bounds, aligned to rune boundaries and wrapped with
// ellipsis markers on clipped edges.
func makeSnippet(content string, offset, queryLen int) string {
	end := offset + queryLen + snippetAfter
	if end > len(content) {
		end = len(content)
	}
	start := offset - snippetBefore
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}

	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	snippet := content[start:end]
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(content) {
		snippet += "…"
	}
	return snippet
}

// Stats returns the document count, the distinct repositories present and
// a count of documents per file type.
func (x *DocumentIndex) Stats() IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	stats := IndexStats{
		DocumentCount: len(x.docs),
		FileTypes:     make(map[string]int),
	}

	seen := make(map[string]bool)
	for _, id := range x.order {
		doc := x.docs[id]
		repo := doc.Owner + "/" + doc.Name
		if !seen[repo] {
			seen[repo] = true
			stats.Repositories = append(stats.Repositories, repo)
		}
		stats.FileTypes[doc.FileType]++
	}

	return stats
}

// ListRepositories groups stored documents by (owner, name) with per-repo
// file counts, in first-seen order.
func (x *DocumentIndex) ListRepositories() []RepositoryCount {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var repos []RepositoryCount
	position := make(map[string]int)

	for _, id := range x.order {
		doc := x.docs[id]
		repo := doc.Owner + "/" + doc.Name
		if pos, ok := position[repo]; ok {
			repos[pos].FileCount++
			continue
		}
		position[repo] = len(repos)
		repos = append(repos, RepositoryCount{
			Owner:     doc.Owner,
			Name:      doc.Name,
			FileCount: 1,
		})
	}

	return repos
}

// DocumentsForRepository returns the documents of one repository at the
// given branch, in insertion order.
func (x *DocumentIndex) DocumentsForRepository(owner, name, branch string) []domain.IndexedDocument {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []domain.IndexedDocument
	for _, id := range x.order {
		doc := x.docs[id]
		if doc.Owner == owner && doc.Name == name && doc.Branch == branch {
			out = append(out, doc)
		}
	}
	return out
}

// Clear removes every document. Used only when a forced resync rebuilds
// the index from scratch.
func (x *DocumentIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.docs = make(map[string]domain.IndexedDocument)
	x.order = nil
}

// ReplaceAll swaps the entire index contents in one step, so readers see
// either the old document set or the new one, never a half-built state.
func (x *DocumentIndex) ReplaceAll(batch []domain.IndexedDocument) {
	docs := make(map[string]domain.IndexedDocument, len(batch))
	var order []string
	for _, doc := range batch {
		if _, exists := docs[doc.ID]; !exists {
			order = append(order, doc.ID)
		}
		docs[doc.ID] = doc
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = docs
	x.order = order
}
