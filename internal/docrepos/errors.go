package docrepos

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncUnavailable indicates this instance cannot run sync passes,
	// typically because the sync configuration failed to load.
	ErrSyncUnavailable = errors.New("sync is unavailable on this instance")

	// ErrReadOnly indicates another process holds the data directory
	// lock, so this instance refuses all writes.
	ErrReadOnly = errors.New("data directory is locked by another instance")

	// ErrQueryTooShort rejects search queries below MinQueryLength.
	ErrQueryTooShort = errors.New("query is too short")

	// ErrBadPattern indicates a path pattern that cannot be compiled.
	ErrBadPattern = errors.New("malformed pattern")

	// ErrEntryNotFound indicates a ledger entry lookup by hash found nothing.
	ErrEntryNotFound = errors.New("blocklist entry not found")
)

// ConfigError indicates persisted state that exists but cannot be used.
// It is fatal to the owning subsystem's startup; the rest of the service
// keeps running in degraded mode.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unusable persisted state at %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ProviderError wraps a content provider failure together with a
// transient/permanent classification. Transient failures (rate limits,
// server errors, network faults) may succeed on a later sync pass;
// permanent ones (bad credentials, missing repositories) will not.
type ProviderError struct {
	Op        string
	Repo      string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	if e.Repo != "" {
		return fmt.Sprintf("%s %s: %s provider error: %v", e.Op, e.Repo, class, e.Err)
	}
	return fmt.Sprintf("%s: %s provider error: %v", e.Op, class, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a provider error classified as transient.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}

// IntegrityError reports a ledger entry whose stored integrity hash does
// not match the hash recomputed from its fields. It is surfaced as a
// warning on load; the ledger remains usable.
type IntegrityError struct {
	Index    int
	Stored   string
	Computed string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger entry %d: integrity hash mismatch (stored %s, computed %s)",
		e.Index, e.Stored, e.Computed)
}
