package docrepos

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lorekeep/mcp-lore-server/internal/config"
	"github.com/lorekeep/mcp-lore-server/internal/domain"
)

// MaxParallelSyncs is the maximum number of repositories synced
// concurrently within one pass.
const MaxParallelSyncs = 4

// RepoSyncState records the outcome of the most recent sync attempt
// for one repository.
type RepoSyncState struct {
	LastSynced time.Time
	LastError  string
	FileCount  int
}

// RepositoryStatus pairs a repository in the current sync set with its
// indexing state.
type RepositoryStatus struct {
	Repository domain.RepositoryDescriptor
	State      RepoSyncState
}

// Service owns the document index and all its surrounding state: the
// sync configuration, the blocklist ledger, the on-disk content cache
// and the specification cache. Construction degrades rather than
// fails: a subsystem whose persisted state is unusable is disabled
// while the rest keeps working.
type Service struct {
	settings *config.DocsSettings
	provider ContentProvider

	store  *ConfigStore
	ledger *BlocklistLedger
	index  *DocumentIndex
	cache  *ContentCache
	specs  *SpecCache
	lock   *FileLock

	// Set once during construction.
	readOnly  bool
	cfgErr    error
	ledgerErr error

	mu        sync.RWMutex
	cfg       StoreConfig
	assembled []domain.RepositoryDescriptor
	repoState map[string]RepoSyncState
	lastSync  time.Time

	syncMu       sync.Mutex
	syncRunning  bool
	pendingSync  bool
	pendingForce bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates the documentation service rooted at the settings'
// data directory. It acquires the data directory lock; when another
// process already holds it the service starts read-only, with sync and
// all writes disabled.
func NewService(settings *config.DocsSettings, provider ContentProvider) (*Service, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := NewFileLock(filepath.Join(settings.DataDir, LockFilename))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire data directory lock: %w", err)
	}
	if !acquired {
		slog.Warn("Another instance holds the data directory, starting read-only",
			"lock", lock.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		settings:  settings,
		provider:  provider,
		store:     NewConfigStore(settings.DataDir),
		index:     NewDocumentIndex(),
		specs:     LoadSpecCache(filepath.Join(settings.DataDir, SpecCacheFilename)),
		lock:      lock,
		readOnly:  !acquired,
		repoState: make(map[string]RepoSyncState),
		ctx:       ctx,
		cancel:    cancel,
	}

	cfg, err := svc.loadConfig()
	if err != nil {
		slog.Error("Sync configuration unusable, sync disabled", "error", err)
		svc.cfgErr = err
		cfg = svc.store.DefaultConfig()
	}
	svc.cfg = cfg
	svc.cache = NewContentCache(cfg.Storage.CacheDir)

	ledger, err := LoadLedger(filepath.Join(settings.DataDir, LedgerFilename))
	if err != nil {
		slog.Error("Blocklist ledger unusable, blocklist disabled", "error", err)
		svc.ledgerErr = err
	} else {
		svc.ledger = ledger
	}

	return svc, nil
}

func (s *Service) loadConfig() (StoreConfig, error) {
	if s.readOnly {
		return s.store.Peek()
	}
	return s.store.Load()
}

// Start runs the initial sync pass and launches the periodic timer.
// Read-only instances and instances without a usable sync
// configuration skip both; an explicitly disabled sync skips the timer
// but still allows manual triggers.
func (s *Service) Start() {
	if s.readOnly {
		slog.Info("Read-only instance, periodic sync disabled")
		return
	}
	if s.cfgErr != nil {
		return
	}

	s.mu.RLock()
	enabled := s.cfg.Sync.Enabled
	interval := s.cfg.Sync.Interval()
	s.mu.RUnlock()

	if !enabled {
		slog.Info("Periodic sync disabled by configuration")
		return
	}

	if _, err := s.TriggerSync(false); err != nil {
		slog.Error("Initial sync failed to start", "error", err)
	}

	s.wg.Add(1)
	go s.timerLoop(interval)
}

func (s *Service) timerLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Periodic sync scheduled", "interval", interval)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.TriggerSync(false); err != nil {
				slog.Warn("Scheduled sync could not start", "error", err)
			}
		}
	}
}

// Stop cancels any running sync pass, halts the timer and releases the
// data directory lock. Safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("Failed to release data directory lock", "error", err)
		}
	})
}

// SyncSummary reports the outcome of one completed sync pass.
type SyncSummary struct {
	RepositoriesTouched int
	RepositoriesFailed  int
	DocumentsIndexed    int
	IndexedTotal        int
	Forced              bool
	Duration            time.Duration
}

// TriggerSync requests a sync pass. When no pass is running one is
// started in the background and queued is false. When a pass is
// already running the request coalesces into at most one follow-up
// pass, forced if any coalesced request was forced, and queued is
// true.
func (s *Service) TriggerSync(force bool) (queued bool, err error) {
	if s.readOnly {
		return false, ErrReadOnly
	}
	if s.cfgErr != nil {
		return false, fmt.Errorf("%w: %v", ErrSyncUnavailable, s.cfgErr)
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if s.syncRunning {
		s.pendingSync = true
		s.pendingForce = s.pendingForce || force
		return true, nil
	}

	s.syncRunning = true
	s.wg.Add(1)
	go s.passLoop(force)
	return false, nil
}

// RunSync runs a sync pass on the calling goroutine and reports its
// outcome. It shares the single-flight guard with TriggerSync: when a
// pass is already running the request coalesces and queued is true
// with a nil summary.
func (s *Service) RunSync(ctx context.Context, force bool) (summary *SyncSummary, queued bool, err error) {
	if s.readOnly {
		return nil, false, ErrReadOnly
	}
	if s.cfgErr != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrSyncUnavailable, s.cfgErr)
	}

	s.syncMu.Lock()
	if s.syncRunning {
		s.pendingSync = true
		s.pendingForce = s.pendingForce || force
		s.syncMu.Unlock()
		return nil, true, nil
	}
	s.syncRunning = true
	s.syncMu.Unlock()

	result := s.runPass(ctx, force)

	s.syncMu.Lock()
	if s.pendingSync && s.ctx.Err() == nil {
		// Hand the coalesced follow-up to a background pass while the
		// running flag stays set.
		followForce := s.pendingForce
		s.pendingSync, s.pendingForce = false, false
		s.wg.Add(1)
		go s.passLoop(followForce)
		s.syncMu.Unlock()
		return &result, false, nil
	}
	s.syncRunning = false
	s.syncMu.Unlock()
	return &result, false, nil
}

// passLoop runs one pass, then any coalesced follow-up, then exits.
// The caller must have set syncRunning.
func (s *Service) passLoop(force bool) {
	defer s.wg.Done()

	for {
		s.runPass(s.ctx, force)

		s.syncMu.Lock()
		if s.pendingSync && s.ctx.Err() == nil {
			force = s.pendingForce
			s.pendingSync, s.pendingForce = false, false
			s.syncMu.Unlock()
			continue
		}
		s.pendingSync, s.pendingForce = false, false
		s.syncRunning = false
		s.syncMu.Unlock()
		return
	}
}

// SyncRunning reports whether a sync pass is in flight.
func (s *Service) SyncRunning() bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.syncRunning
}

// LastSync returns when the most recent sync pass finished, zero if
// none has.
func (s *Service) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

type repoResult struct {
	repo domain.RepositoryDescriptor
	docs []domain.IndexedDocument
	err  error
}

// runPass executes one full sync pass: assemble the repository set,
// sync each repository with bounded parallelism, then fold the results
// into the index. Incremental passes only add and update documents; a
// forced pass rebuilds the index, dropping entries whose files or
// repositories no longer exist, while keeping the previous documents
// of repositories that failed this pass.
func (s *Service) runPass(ctx context.Context, force bool) SyncSummary {
	started := time.Now()

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	blockedServers, blockedPatterns := s.enforcement(cfg)
	discovered := s.discover(ctx, cfg)
	sources := assembleSources(cfg, discovered, blockedServers, blockedPatterns)

	s.mu.Lock()
	s.assembled = sources
	s.mu.Unlock()

	sem := make(chan struct{}, MaxParallelSyncs)
	var wg sync.WaitGroup
	results := make(chan repoResult, len(sources))

	for _, repo := range sources {
		wg.Add(1)
		go func(repo domain.RepositoryDescriptor) {
			defer wg.Done()
			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			docs, err := s.syncRepository(ctx, repo, force)
			results <- repoResult{repo: repo, docs: docs, err: err}
		}(repo)
	}

	wg.Wait()
	close(results)

	byKey := make(map[string]repoResult, len(sources))
	for r := range results {
		byKey[r.repo.Key()] = r
	}

	// Fold in source order so index insertion order, and with it the
	// tie order of equal-score search results, does not depend on
	// goroutine completion order.
	var docs []domain.IndexedDocument
	synced, failed, fresh := 0, 0, 0
	now := time.Now()

	s.mu.Lock()
	for _, repo := range sources {
		r := byKey[repo.Key()]
		if r.err != nil {
			slog.Error("Repository sync failed", "repository", repo.FullName(), "error", r.err)
			state := s.repoState[repo.Key()]
			state.LastError = r.err.Error()
			s.repoState[repo.Key()] = state
			failed++
			if force {
				// Keep the previous documents of a failed repository so a
				// transient outage does not empty its search results.
				docs = append(docs, s.index.DocumentsForRepository(repo.Owner, repo.Name, repo.Branch)...)
			}
			continue
		}
		synced++
		fresh += len(r.docs)
		docs = append(docs, r.docs...)
		s.repoState[repo.Key()] = RepoSyncState{
			LastSynced: now,
			FileCount:  len(r.docs),
		}
	}
	s.lastSync = now
	s.mu.Unlock()

	if force {
		s.index.ReplaceAll(docs)
	} else {
		s.index.AddDocuments(docs)
	}

	summary := SyncSummary{
		RepositoriesTouched: synced,
		RepositoriesFailed:  failed,
		DocumentsIndexed:    fresh,
		IndexedTotal:        s.index.Count(),
		Forced:              force,
		Duration:            time.Since(started).Round(time.Millisecond),
	}

	slog.Info("Sync pass complete",
		"repositories", summary.RepositoriesTouched,
		"failed", summary.RepositoriesFailed,
		"documents", summary.DocumentsIndexed,
		"indexed_total", summary.IndexedTotal,
		"forced", force,
		"duration", summary.Duration)

	// Keep the specification cache warm so reads rarely have to fetch.
	s.refreshSpecification(ctx)

	return summary
}

// refreshSpecification fetches the protocol specification when the
// cached copy is stale, tolerating failure. GetSpecification performs
// the same refresh on demand.
func (s *Service) refreshSpecification(ctx context.Context) {
	if !s.specs.Stale(time.Now()) {
		return
	}

	payload, err := s.provider.FetchFile(ctx, SpecRepoOwner, SpecRepoName, SpecRepoBranch, SpecRepoPath)
	if err != nil {
		slog.Warn("Specification refresh failed, keeping cached copy", "error", err)
		return
	}
	if !json.Valid(payload) {
		slog.Warn("Specification refresh returned invalid JSON, keeping cached copy")
		return
	}
	if err := s.specs.Store(payload, SpecRepoOwner+"/"+SpecRepoName, time.Now()); err != nil {
		slog.Warn("Failed to cache fetched specification", "error", err)
	}
}

// enforcement returns the strict blocklist state for a pass. Without a
// usable ledger the pass proceeds unenforced, once the configuration
// asks for enforcement this is logged.
func (s *Service) enforcement(cfg StoreConfig) (map[string]string, []string) {
	if !cfg.Blocklist.Enabled || !cfg.Blocklist.Strict {
		return nil, nil
	}
	if s.ledger == nil {
		slog.Warn("Blocklist unusable, syncing without enforcement")
		return nil, nil
	}
	return s.ledger.EnforcedServerBlocks(), s.ledger.EnforcedFilePatterns()
}

// discover lists the configured user's repositories and keeps the ones
// opting in through the marker file. Discovery failures degrade to an
// empty result; the pass still syncs every other source.
func (s *Service) discover(ctx context.Context, cfg StoreConfig) []domain.RepositoryDescriptor {
	if !cfg.Sync.AutoDiscoverUserRepos || s.settings.GitHubUser == "" {
		return nil
	}

	repos, err := s.provider.DiscoverRepositories(ctx, s.settings.GitHubUser)
	if err != nil {
		slog.Warn("Repository discovery failed", "user", s.settings.GitHubUser, "error", err)
		return nil
	}

	var out []domain.RepositoryDescriptor
	for _, r := range repos {
		marked, err := s.provider.FileExists(ctx, r.Owner, r.Name, r.DefaultBranch, MarkerPath)
		if err != nil {
			slog.Warn("Marker probe failed, skipping repository",
				"repository", r.Owner+"/"+r.Name, "error", err)
			continue
		}
		if !marked {
			continue
		}
		out = append(out, DescriptorForDiscovered(r))
	}
	return out
}

// syncRepository lists one repository tree and builds documents for
// every eligible file. Individual file failures are skipped; a tree
// listing failure fails the whole repository.
func (s *Service) syncRepository(ctx context.Context, repo domain.RepositoryDescriptor, force bool) ([]domain.IndexedDocument, error) {
	entries, truncated, err := s.provider.ListTree(ctx, repo.Owner, repo.Name, repo.Branch)
	if err != nil {
		return nil, err
	}
	if truncated {
		slog.Warn("Tree listing truncated, proceeding with partial tree",
			"repository", repo.FullName())
	}

	rules := NewRuleSet(repo.IncludePatterns, repo.ExcludePatterns)
	now := time.Now().UTC()

	var docs []domain.IndexedDocument
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !rules.Eligible(entry.Path) {
			continue
		}
		if err := ValidateRelPath(entry.Path); err != nil {
			slog.Warn("Skipping file with unsafe path",
				"repository", repo.FullName(), "path", entry.Path, "error", err)
			continue
		}
		if entry.Size > s.settings.MaxFileSize {
			slog.Debug("Skipping oversized file",
				"repository", repo.FullName(), "path", entry.Path, "size", entry.Size)
			continue
		}

		content, err := s.fetchDocument(ctx, repo, entry, force)
		if err != nil {
			slog.Warn("Skipping file, fetch failed",
				"repository", repo.FullName(), "path", entry.Path, "error", err)
			continue
		}
		if IsBinary(content) {
			continue
		}

		docs = append(docs, domain.IndexedDocument{
			ID:          DocumentID(repo.Owner, repo.Name, repo.Branch, entry.Path),
			Owner:       repo.Owner,
			Name:        repo.Name,
			Branch:      repo.Branch,
			Path:        entry.Path,
			Content:     string(content),
			FileType:    FileExtension(entry.Path),
			Size:        int64(len(content)),
			ContentHash: BlobSHA(content),
			LastIndexed: now,
		})
	}
	return docs, nil
}

// fetchDocument returns file contents, served from the local cache
// when the upstream blob is unchanged. A failed download falls back to
// the cached copy when one exists. force bypasses the unchanged-blob
// shortcut but not the fallback.
func (s *Service) fetchDocument(ctx context.Context, repo domain.RepositoryDescriptor, entry TreeEntry, force bool) ([]byte, error) {
	cached, sha, ok := s.cache.Get(repo.Owner, repo.Name, entry.Path)
	if ok && !force && sha == entry.SHA {
		return cached, nil
	}

	content, err := s.provider.FetchBlob(ctx, repo.Owner, repo.Name, entry.SHA)
	if err != nil {
		if ok {
			slog.Warn("Fetch failed, using cached copy",
				"repository", repo.FullName(), "path", entry.Path, "error", err)
			return cached, nil
		}
		return nil, err
	}

	if err := s.cache.Put(repo.Owner, repo.Name, entry.Path, content); err != nil {
		slog.Warn("Failed to cache file",
			"repository", repo.FullName(), "path", entry.Path, "error", err)
	}
	return content, nil
}

// Search runs a containment search over the index. maxResults <= 0
// uses the configured default.
func (s *Service) Search(query string, maxResults int) ([]domain.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = s.settings.MaxResults
	}
	return s.index.Search(query, maxResults)
}

// GetDocument returns one indexed document by its identifier.
func (s *Service) GetDocument(id string) (domain.IndexedDocument, bool) {
	return s.index.Get(id)
}

// Stats returns aggregate index statistics.
func (s *Service) Stats() IndexStats {
	return s.index.Stats()
}

// ListRepositories returns the current sync set with per-repository
// state. Before the first pass the set is assembled from configuration
// alone, without discovery.
func (s *Service) ListRepositories() []RepositoryStatus {
	s.mu.RLock()
	sources := s.assembled
	cfg := s.cfg
	s.mu.RUnlock()

	if sources == nil {
		if s.cfgErr != nil {
			return nil
		}
		blockedServers, blockedPatterns := s.enforcement(cfg)
		sources = assembleSources(cfg, nil, blockedServers, blockedPatterns)
	}

	out := make([]RepositoryStatus, 0, len(sources))
	s.mu.RLock()
	for _, repo := range sources {
		out = append(out, RepositoryStatus{
			Repository: repo,
			State:      s.repoState[repo.Key()],
		})
	}
	s.mu.RUnlock()
	return out
}

// AddBlocklistEntry validates and appends one entry to the ledger.
func (s *Service) AddBlocklistEntry(entry domain.BlocklistEntry) (domain.BlocklistEntry, error) {
	if s.ledgerErr != nil {
		return domain.BlocklistEntry{}, s.ledgerErr
	}
	if s.readOnly {
		return domain.BlocklistEntry{}, ErrReadOnly
	}
	return s.ledger.Append(entry)
}

// CheckBlocklist reports whether a server name or file pattern is
// blocked, with the recorded reason.
func (s *Service) CheckBlocklist(serverName, pattern string) (bool, string, error) {
	if s.ledgerErr != nil {
		return false, "", s.ledgerErr
	}
	blocked, reason := s.ledger.IsBlocked(serverName, pattern)
	return blocked, reason, nil
}

// BlocklistEntries returns all ledger entries in append order.
func (s *Service) BlocklistEntries() ([]domain.BlocklistEntry, error) {
	if s.ledgerErr != nil {
		return nil, s.ledgerErr
	}
	return s.ledger.Entries(), nil
}

// SetBlocklistOverride flips the allow_override flag of the entry with
// the given integrity hash and returns the updated entry.
func (s *Service) SetBlocklistOverride(hash string, allow bool) (domain.BlocklistEntry, error) {
	if s.ledgerErr != nil {
		return domain.BlocklistEntry{}, s.ledgerErr
	}
	if s.readOnly {
		return domain.BlocklistEntry{}, ErrReadOnly
	}
	return s.ledger.SetAllowOverride(hash, allow)
}

// GetSpecification returns the protocol specification document,
// refreshing the cache when it is empty or older than SpecMaxAge. A
// failed refresh falls back to the stale copy; with nothing cached the
// failure is returned.
func (s *Service) GetSpecification(ctx context.Context) (json.RawMessage, time.Time, string, error) {
	now := time.Now()
	if !s.specs.Stale(now) {
		payload, fetchedAt, source, _ := s.specs.Payload()
		return payload, fetchedAt, source, nil
	}

	source := SpecRepoOwner + "/" + SpecRepoName
	payload, err := s.provider.FetchFile(ctx, SpecRepoOwner, SpecRepoName, SpecRepoBranch, SpecRepoPath)
	if err == nil {
		if !json.Valid(payload) {
			err = fmt.Errorf("fetched specification is not valid JSON")
		} else {
			if !s.readOnly {
				if storeErr := s.specs.Store(payload, source, now); storeErr != nil {
					slog.Warn("Failed to cache fetched specification", "error", storeErr)
				}
			}
			return payload, now, source, nil
		}
	}

	if cached, fetchedAt, cachedSource, ok := s.specs.Payload(); ok {
		slog.Warn("Serving stale specification", "fetched_at", fetchedAt, "error", err)
		return cached, fetchedAt, cachedSource, nil
	}
	return nil, time.Time{}, "", fmt.Errorf("specification unavailable: %w", err)
}

// IsReadOnly reports whether this instance runs without the data
// directory lock.
func (s *Service) IsReadOnly() bool {
	return s.readOnly
}

// SyncConfigured reports whether sync is possible on this instance and
// the configured interval.
func (s *Service) SyncConfigured() (enabled bool, interval time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Sync.Enabled && !s.readOnly && s.cfgErr == nil, s.cfg.Sync.Interval()
}
