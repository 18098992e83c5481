package domain

import "time"

// Classification records how a repository entered the sync set.
type Classification string

// Repository classifications.
const (
	ClassificationUser      Classification = "user"
	ClassificationOfficial  Classification = "official"
	ClassificationCommunity Classification = "community"
)

// Sync interval bounds in minutes. Persisted values outside the range
// are clamped on load and rejected on save.
const (
	MinSyncIntervalMinutes     = 5
	MaxSyncIntervalMinutes     = 1440
	DefaultSyncIntervalMinutes = 30
)

// RepositoryDescriptor identifies one repository to index together with
// its path filters. Identity is the (Owner, Name, Branch) tuple.
type RepositoryDescriptor struct {
	// Owner is the repository owner login.
	Owner string `json:"owner"`

	// Name is the repository name.
	Name string `json:"name"`

	// Branch is the branch to index.
	Branch string `json:"branch"`

	// IncludePatterns selects files to index. An empty set matches nothing.
	IncludePatterns []string `json:"include_patterns"`

	// ExcludePatterns removes files from the included set.
	ExcludePatterns []string `json:"exclude_patterns"`

	// IndexingEnabled gates whether this repository participates in sync.
	IndexingEnabled bool `json:"indexing_enabled"`

	// Classification records which source set contributed the repository.
	Classification Classification `json:"classification"`
}

// FullName returns the "owner/name" form used in logs and tool output.
func (r RepositoryDescriptor) FullName() string {
	return r.Owner + "/" + r.Name
}

// Key returns the identity string "owner/name/branch".
func (r RepositoryDescriptor) Key() string {
	return r.Owner + "/" + r.Name + "/" + r.Branch
}

// SyncConfiguration controls the periodic sync loop and source discovery.
type SyncConfiguration struct {
	// Enabled gates the periodic timer. Manual sync stays available.
	Enabled bool `json:"enabled"`

	// IntervalMinutes is the timer period, within [5, 1440].
	IntervalMinutes int `json:"interval_minutes"`

	// AutoDiscoverUserRepos enables marker-based discovery of the
	// configured user's repositories.
	AutoDiscoverUserRepos bool `json:"auto_discover_user_repos"`

	// IncludeOfficialRepos adds the built-in official repository set.
	IncludeOfficialRepos bool `json:"include_official_repos"`

	// IncludeCommunityRepos adds the built-in community repository set.
	IncludeCommunityRepos bool `json:"include_community_repos"`
}

// Interval returns the configured timer period as a duration.
func (c SyncConfiguration) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
