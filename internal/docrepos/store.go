package docrepos

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lorekeep/mcp-lore-server/internal/domain"
)

const (
	// ConfigVersion is the current configuration schema version.
	ConfigVersion = 1

	// ConfigFilename is the configuration filename inside the data directory.
	ConfigFilename = "config.json"

	// DefaultMaxCacheSizeMB is recorded in new configurations. The limit
	// is not enforced; it is carried for operators and future use.
	DefaultMaxCacheSizeMB = 512
)

// StorageSettings holds local storage paths and limits.
type StorageSettings struct {
	CacheDir       string `json:"cache_dir"`
	MaxCacheSizeMB int    `json:"max_cache_size_mb"`
}

// BlocklistSettings gates blocklist enforcement during sync. Strict mode
// skips blocked repositories and applies blocked file patterns as
// excludes while syncing.
type BlocklistSettings struct {
	Enabled bool `json:"enabled"`
	Strict  bool `json:"strict"`
}

// StoreConfig is the persisted configuration record: the sync
// configuration, the explicit repository list and storage paths.
type StoreConfig struct {
	Version      int                           `json:"version"`
	Sync         domain.SyncConfiguration      `json:"sync"`
	Repositories []domain.RepositoryDescriptor `json:"repositories"`
	Storage      StorageSettings               `json:"storage"`
	Blocklist    BlocklistSettings             `json:"blocklist"`
}

// ConfigStore loads and saves the durable sync configuration under the
// service data directory.
type ConfigStore struct {
	dataDir string
	path    string
	mu      sync.Mutex
}

// NewConfigStore creates a store rooted at the given data directory.
func NewConfigStore(dataDir string) *ConfigStore {
	return &ConfigStore{
		dataDir: dataDir,
		path:    filepath.Join(dataDir, ConfigFilename),
	}
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// DefaultConfig returns the configuration persisted on first use: sync
// enabled on a 30-minute interval, all discovery sources on, blocklist
// enabled and strict, no explicit repositories.
func (s *ConfigStore) DefaultConfig() StoreConfig {
	return StoreConfig{
		Version: ConfigVersion,
		Sync: domain.SyncConfiguration{
			Enabled:               true,
			IntervalMinutes:       domain.DefaultSyncIntervalMinutes,
			AutoDiscoverUserRepos: true,
			IncludeOfficialRepos:  true,
			IncludeCommunityRepos: true,
		},
		Repositories: []domain.RepositoryDescriptor{},
		Storage: StorageSettings{
			CacheDir:       filepath.Join(s.dataDir, "cache"),
			MaxCacheSizeMB: DefaultMaxCacheSizeMB,
		},
		Blocklist: BlocklistSettings{
			Enabled: true,
			Strict:  true,
		},
	}
}

// Load reads the configuration, creating and persisting the default one
// when no prior state exists. A present-but-unparseable file is a
// ConfigError. Out-of-range sync intervals are clamped into bounds with
// a warning so the interval invariant holds for every caller.
func (s *ConfigStore) Load() (StoreConfig, error) {
	return s.load(true)
}

// Peek is Load for instances that must not write: a missing file yields
// the defaults without persisting them.
func (s *ConfigStore) Peek() (StoreConfig, error) {
	return s.load(false)
}

func (s *ConfigStore) load(persistDefaults bool) (StoreConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := s.DefaultConfig()
			if !persistDefaults {
				return cfg, nil
			}
			if err := s.Save(cfg); err != nil {
				return StoreConfig{}, fmt.Errorf("failed to persist default configuration: %w", err)
			}
			slog.Info("Created default sync configuration", "path", s.path)
			return cfg, nil
		}
		return StoreConfig{}, &ConfigError{Path: s.path, Err: err}
	}

	var cfg StoreConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StoreConfig{}, &ConfigError{Path: s.path, Err: err}
	}

	s.normalize(&cfg)
	return cfg, nil
}

// normalize repairs loaded values that violate invariants.
func (s *ConfigStore) normalize(cfg *StoreConfig) {
	switch {
	case cfg.Sync.IntervalMinutes == 0:
		slog.Warn("Sync interval not set, using default",
			"interval_minutes", domain.DefaultSyncIntervalMinutes)
		cfg.Sync.IntervalMinutes = domain.DefaultSyncIntervalMinutes
	case cfg.Sync.IntervalMinutes < domain.MinSyncIntervalMinutes:
		slog.Warn("Sync interval below minimum, clamping",
			"configured", cfg.Sync.IntervalMinutes, "minimum", domain.MinSyncIntervalMinutes)
		cfg.Sync.IntervalMinutes = domain.MinSyncIntervalMinutes
	case cfg.Sync.IntervalMinutes > domain.MaxSyncIntervalMinutes:
		slog.Warn("Sync interval above maximum, clamping",
			"configured", cfg.Sync.IntervalMinutes, "maximum", domain.MaxSyncIntervalMinutes)
		cfg.Sync.IntervalMinutes = domain.MaxSyncIntervalMinutes
	}

	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = filepath.Join(s.dataDir, "cache")
	}

	for _, repo := range cfg.Repositories {
		if repo.IndexingEnabled && len(repo.IncludePatterns) == 0 {
			slog.Warn("Repository has indexing enabled but no include patterns, nothing will match",
				"repository", repo.FullName())
		}
	}
}

// Save validates and writes the configuration atomically.
func (s *ConfigStore) Save(cfg StoreConfig) error {
	if cfg.Sync.IntervalMinutes < domain.MinSyncIntervalMinutes ||
		cfg.Sync.IntervalMinutes > domain.MaxSyncIntervalMinutes {
		return fmt.Errorf("interval_minutes %d out of range [%d, %d]",
			cfg.Sync.IntervalMinutes, domain.MinSyncIntervalMinutes, domain.MaxSyncIntervalMinutes)
	}
	for _, repo := range cfg.Repositories {
		if repo.Owner == "" || repo.Name == "" || repo.Branch == "" {
			return fmt.Errorf("repository %q missing owner, name or branch", repo.FullName())
		}
	}
	cfg.Version = ConfigVersion

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to temporary file first, then rename into place.
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	return nil
}
