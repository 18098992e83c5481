package docrepos

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
)

const (
	// LedgerVersion is the current ledger schema version.
	LedgerVersion = 1

	// LedgerFilename is the default ledger filename.
	LedgerFilename = "blocklist.json"
)

// ledgerRecord is the persisted ledger file layout.
type ledgerRecord struct {
	Version     int                     `json:"version"`
	LastUpdated time.Time               `json:"last_updated"`
	Entries     []domain.BlocklistEntry `json:"entries"`
}

// BlocklistLedger is the append-only, hash-verifiable log of exclusion
// decisions. Entries are never edited or removed; later entries shadow
// earlier identical ones by ledger order. The single audited mutation is
// SetAllowOverride.
type BlocklistLedger struct {
	path string

	mu                sync.RWMutex
	entries           []domain.BlocklistEntry
	lastUpdated       time.Time
	integrityWarnings int
}

// EntryHash computes the integrity hash of an entry: a SHA-256 over every
// field except the hash itself, serialized as "name=value" lines with the
// field names in lexicographic order. Empty optional fields participate,
// so the hash is a total function of the entry.
func EntryHash(e domain.BlocklistEntry) string {
	var sb strings.Builder
	field := func(name, value string) {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(value)
		sb.WriteByte('\n')
	}

	// Serialized field names in lexicographic order.
	field("allow_override", strconv.FormatBool(e.AllowOverride))
	field("kind", string(e.Kind))
	field("pattern", e.Pattern)
	field("reason", e.Reason)
	field("server_name", e.ServerName)
	field("source", string(e.Source))
	field("timestamp", e.Timestamp.UTC().Format(time.RFC3339Nano))
	field("version", e.Version)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// LoadLedger reads the ledger from disk, creating an empty one if the
// file does not exist. Every entry's integrity hash is recomputed from
// its fields; mismatches are logged as warnings and counted, but the
// ledger stays usable so one tampered entry cannot take the blocklist
// down. A present-but-unparseable file is a ConfigError.
func LoadLedger(path string) (*BlocklistLedger, error) {
	ledger := &BlocklistLedger{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ledger, nil
		}
		return nil, &ConfigError{Path: path, Err: err}
	}

	var record ledgerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	ledger.entries = record.Entries
	ledger.lastUpdated = record.LastUpdated

	for i, entry := range ledger.entries {
		computed := EntryHash(entry)
		if computed != entry.IntegrityHash {
			ledger.integrityWarnings++
			ierr := &IntegrityError{Index: i, Stored: entry.IntegrityHash, Computed: computed}
			slog.Warn("Blocklist ledger entry failed integrity check, audit trail may have been altered",
				"entry", i, "error", ierr)
		}
	}

	return ledger, nil
}

// Append computes the entry's integrity hash, appends it to the ledger
// and persists the result. The entry's timestamp is set to the current
// time if zero, and normalized to UTC either way.
func (l *BlocklistLedger) Append(entry domain.BlocklistEntry) (domain.BlocklistEntry, error) {
	switch entry.Kind {
	case domain.BlocklistKindServer:
		if entry.ServerName == "" {
			return domain.BlocklistEntry{}, fmt.Errorf("server entry requires a server name")
		}
	case domain.BlocklistKindFilePattern:
		if entry.Pattern == "" {
			return domain.BlocklistEntry{}, fmt.Errorf("file_pattern entry requires a pattern")
		}
	default:
		return domain.BlocklistEntry{}, fmt.Errorf("unknown blocklist entry kind: %q", entry.Kind)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()
	entry.IntegrityHash = EntryHash(entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	previousUpdate := l.lastUpdated
	l.lastUpdated = time.Now().UTC()

	if err := l.saveLocked(); err != nil {
		// Keep memory and disk consistent.
		l.entries = l.entries[:len(l.entries)-1]
		l.lastUpdated = previousUpdate
		return domain.BlocklistEntry{}, fmt.Errorf("failed to persist ledger: %w", err)
	}

	return entry, nil
}

// IsBlocked checks the ledger for a matching entry. A server name matches
// the first entry of kind "server" with an equal ServerName; a pattern
// matches the first entry of kind "file_pattern" with an exactly equal
// Pattern string. The first match in ledger order wins and supplies the
// reason; later identical entries are shadowed.
func (l *BlocklistLedger) IsBlocked(serverName, pattern string) (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.entries {
		switch entry.Kind {
		case domain.BlocklistKindServer:
			if serverName != "" && entry.ServerName == serverName {
				return true, entry.Reason
			}
		case domain.BlocklistKindFilePattern:
			if pattern != "" && entry.Pattern == pattern {
				return true, entry.Reason
			}
		}
	}
	return false, ""
}

// SetAllowOverride toggles the AllowOverride flag of the first entry
// whose current integrity hash equals hash. The hash is recomputed for
// the changed entry, the ledger is persisted, and the action is logged
// for the audit trail. Returns the updated entry.
func (l *BlocklistLedger) SetAllowOverride(hash string, allow bool) (domain.BlocklistEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].IntegrityHash != hash {
			continue
		}

		previous := l.entries[i]
		previousUpdate := l.lastUpdated

		l.entries[i].AllowOverride = allow
		l.entries[i].IntegrityHash = EntryHash(l.entries[i])
		l.lastUpdated = time.Now().UTC()

		if err := l.saveLocked(); err != nil {
			l.entries[i] = previous
			l.lastUpdated = previousUpdate
			return domain.BlocklistEntry{}, fmt.Errorf("failed to persist ledger: %w", err)
		}

		slog.Info("Blocklist entry override flag toggled",
			"previous_hash", hash,
			"new_hash", l.entries[i].IntegrityHash,
			"allow_override", allow)
		return l.entries[i], nil
	}

	return domain.BlocklistEntry{}, ErrEntryNotFound
}

// Entries returns a copy of the ledger entries in append order.
func (l *BlocklistLedger) Entries() []domain.BlocklistEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]domain.BlocklistEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// Len returns the number of ledger entries.
func (l *BlocklistLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// LastUpdated returns the time the ledger was last appended to or toggled.
func (l *BlocklistLedger) LastUpdated() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdated
}

// IntegrityWarnings returns how many entries failed their integrity check
// on load.
func (l *BlocklistLedger) IntegrityWarnings() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.integrityWarnings
}

// EnforcedServerBlocks returns the blocked server names that sync must
// honor, mapped to the blocking reason. Entries with AllowOverride set
// are recorded in the ledger but not enforced.
func (l *BlocklistLedger) EnforcedServerBlocks() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	blocked := make(map[string]string)
	for _, entry := range l.entries {
		if entry.Kind != domain.BlocklistKindServer || entry.AllowOverride {
			continue
		}
		if _, ok := blocked[entry.ServerName]; !ok {
			blocked[entry.ServerName] = entry.Reason
		}
	}
	return blocked
}

// EnforcedFilePatterns returns the blocked file patterns that sync must
// honor, in first-occurrence order without duplicates.
func (l *BlocklistLedger) EnforcedFilePatterns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	var patterns []string
	for _, entry := range l.entries {
		if entry.Kind != domain.BlocklistKindFilePattern || entry.AllowOverride {
			continue
		}
		if !seen[entry.Pattern] {
			seen[entry.Pattern] = true
			patterns = append(patterns, entry.Pattern)
		}
	}
	return patterns
}

// saveLocked writes the ledger to disk atomically. Callers must hold the
// write lock.
func (l *BlocklistLedger) saveLocked() error {
	record := ledgerRecord{
		Version:     LedgerVersion,
		LastUpdated: l.lastUpdated,
		Entries:     l.entries,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// Write to temporary file first, then rename into place.
	tempPath := l.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger temp file: %w", err)
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}

	return nil
}
