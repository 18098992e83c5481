package domain

import "time"

// BlocklistEntryKind distinguishes what a blocklist entry targets.
type BlocklistEntryKind string

// Blocklist entry kinds.
const (
	// BlocklistKindServer blocks a server by name.
	BlocklistKindServer BlocklistEntryKind = "server"

	// BlocklistKindFilePattern blocks a file path pattern.
	BlocklistKindFilePattern BlocklistEntryKind = "file_pattern"
)

// BlocklistSource records who authored a blocklist entry.
type BlocklistSource string

// Blocklist entry sources.
const (
	BlocklistSourceUser      BlocklistSource = "user"
	BlocklistSourceSystem    BlocklistSource = "system"
	BlocklistSourceCommunity BlocklistSource = "community"
)

// BlocklistEntry is one record in the append-only blocklist ledger.
// Entries are immutable once appended; corrections are new entries that
// shadow earlier ones by ledger order. The single audited exception is
// the AllowOverride flag, which may be toggled after the fact.
type BlocklistEntry struct {
	// Timestamp is when the entry was appended.
	Timestamp time.Time `json:"timestamp"`

	// Kind selects which of ServerName or Pattern is meaningful.
	Kind BlocklistEntryKind `json:"kind"`

	// ServerName is set for kind "server".
	ServerName string `json:"server_name,omitempty"`

	// Version optionally narrows a server block to one version.
	Version string `json:"version,omitempty"`

	// Pattern is set for kind "file_pattern". Blocklist checks compare
	// it by exact string equality, not by glob evaluation.
	Pattern string `json:"pattern,omitempty"`

	// Reason documents why the entry was appended.
	Reason string `json:"reason"`

	// IntegrityHash is a SHA-256 over every other field, making
	// out-of-band edits to the persisted ledger detectable.
	IntegrityHash string `json:"integrity_hash"`

	// AllowOverride marks the entry as overridable by an operator.
	AllowOverride bool `json:"allow_override"`

	// Source records who authored the entry.
	Source BlocklistSource `json:"source"`
}
