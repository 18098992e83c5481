package docrepos

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// SpecCacheFilename is the specification cache filename inside the
	// data directory.
	SpecCacheFilename = "spec-cache.json"

	// SpecMaxAge is how old a cached specification may grow before a
	// refresh is attempted.
	SpecMaxAge = 24 * time.Hour
)

// Upstream location of the protocol specification document.
const (
	SpecRepoOwner  = "modelcontextprotocol"
	SpecRepoName   = "modelcontextprotocol"
	SpecRepoBranch = "main"
	SpecRepoPath   = "schema/draft/schema.json"
)

type specRecord struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// SpecCache holds the protocol specification document fetched from its
// upstream repository. The payload is kept verbatim and served as-is;
// a stale copy is still served when a refresh fails.
type SpecCache struct {
	path string

	mu        sync.RWMutex
	fetchedAt time.Time
	source    string
	payload   json.RawMessage
}

// LoadSpecCache reads the cache file at path. A missing file yields an
// empty cache. An unparseable file is discarded with a warning rather
// than failing: the specification can always be fetched again.
func LoadSpecCache(path string) *SpecCache {
	sc := &SpecCache{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read specification cache", "path", path, "error", err)
		}
		return sc
	}

	var record specRecord
	if err := json.Unmarshal(data, &record); err != nil {
		slog.Warn("Discarding unparseable specification cache", "path", path, "error", err)
		return sc
	}

	sc.fetchedAt = record.FetchedAt
	sc.source = record.Source
	sc.payload = record.Payload
	return sc
}

// Payload returns the cached document, its fetch time and source.
// ok is false when nothing has ever been cached.
func (sc *SpecCache) Payload() (payload json.RawMessage, fetchedAt time.Time, source string, ok bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.payload, sc.fetchedAt, sc.source, len(sc.payload) > 0
}

// Stale reports whether the cache is empty or older than SpecMaxAge.
func (sc *SpecCache) Stale(now time.Time) bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if len(sc.payload) == 0 {
		return true
	}
	return now.Sub(sc.fetchedAt) > SpecMaxAge
}

// Store replaces the cached document and persists it. The previous
// copy is restored if persisting fails.
func (sc *SpecCache) Store(payload json.RawMessage, source string, now time.Time) error {
	if !json.Valid(payload) {
		return fmt.Errorf("specification payload is not valid JSON")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	prevPayload, prevFetchedAt, prevSource := sc.payload, sc.fetchedAt, sc.source
	sc.payload = payload
	sc.fetchedAt = now.UTC()
	sc.source = source

	if err := sc.saveLocked(); err != nil {
		sc.payload, sc.fetchedAt, sc.source = prevPayload, prevFetchedAt, prevSource
		return err
	}
	return nil
}

func (sc *SpecCache) saveLocked() error {
	record := specRecord{
		FetchedAt: sc.fetchedAt,
		Source:    sc.source,
		Payload:   sc.payload,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal specification cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(sc.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tempPath := sc.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write spec cache temp file: %w", err)
	}
	if err := os.Rename(tempPath, sc.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename spec cache file: %w", err)
	}
	return nil
}
