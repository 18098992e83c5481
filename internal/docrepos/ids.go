package docrepos

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidRepoName indicates a repository reference that is not in
// "owner/name" form.
var ErrInvalidRepoName = errors.New("invalid repository name")

// DocumentID builds the composite index key for one file.
//
// Examples:
//   - ("acme", "docs", "main", "readme.md") -> acme/docs/main/readme.md
//   - ("acme", "docs", "main", "guide/setup.md") -> acme/docs/main/guide/setup.md
func DocumentID(owner, name, branch, path string) string {
	return owner + "/" + name + "/" + branch + "/" + strings.TrimPrefix(path, "/")
}

// ParseFullName splits an "owner/name" reference into its parts.
func ParseFullName(full string) (owner, name string, err error) {
	full = strings.TrimSpace(full)
	owner, name, found := strings.Cut(full, "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: %q (want owner/name)", ErrInvalidRepoName, full)
	}
	return owner, name, nil
}

// ValidateRelPath rejects paths that could escape a repository root when
// joined onto a local directory.
func ValidateRelPath(path string) error {
	cleaned := filepath.Clean(filepath.ToSlash(path))

	if filepath.IsAbs(cleaned) {
		return errors.New("absolute paths are not allowed")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return errors.New("path traversal is not allowed")
	}
	return nil
}
