package docrepos

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// BlobSHA returns the git blob object name for content, computed the
// way git does: SHA-1 over "blob <size>\x00" followed by the bytes.
// Matching this against tree entry SHAs lets a sync pass skip
// downloading files that have not changed.
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentCache mirrors fetched document contents on local disk, keyed
// by repository owner, name and file path. Entries are the raw file
// bytes; the blob SHA is recomputed from content on read, so no
// sidecar metadata is kept.
type ContentCache struct {
	dir string
}

// NewContentCache creates a cache rooted at dir.
func NewContentCache(dir string) *ContentCache {
	return &ContentCache{dir: dir}
}

// Dir returns the cache root directory.
func (c *ContentCache) Dir() string {
	return c.dir
}

func (c *ContentCache) entryPath(owner, name, path string) (string, error) {
	if err := ValidateRelPath(path); err != nil {
		return "", err
	}
	return filepath.Join(c.dir, owner, name, filepath.FromSlash(path)), nil
}

// Get returns the cached content and its blob SHA for a repository
// file, or ok=false when the file has never been cached.
func (c *ContentCache) Get(owner, name, path string) ([]byte, string, bool) {
	entry, err := c.entryPath(owner, name, path)
	if err != nil {
		return nil, "", false
	}
	content, err := os.ReadFile(entry)
	if err != nil {
		return nil, "", false
	}
	return content, BlobSHA(content), true
}

// Put writes content for a repository file, replacing any prior copy.
func (c *ContentCache) Put(owner, name, path string, content []byte) error {
	entry, err := c.entryPath(owner, name, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(entry), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Write to temporary file first, then rename into place.
	tempPath := entry + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write cache temp file: %w", err)
	}
	if err := os.Rename(tempPath, entry); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}
