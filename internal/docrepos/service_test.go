package docrepos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lorekeep/mcp-lore-server/internal/config"
	"github.com/lorekeep/mcp-lore-server/internal/domain"
)

func testSettings(dir string) *config.DocsSettings {
	return &config.DocsSettings{
		Enabled:     true,
		DataDir:     dir,
		MaxFileSize: 256 * 1024,
		MaxResults:  10,
	}
}

func mdRepo(owner, name string) domain.RepositoryDescriptor {
	return domain.RepositoryDescriptor{
		Owner:           owner,
		Name:            name,
		Branch:          "main",
		IncludePatterns: []string{"*.md", "**/*.md"},
		IndexingEnabled: true,
		Classification:  domain.ClassificationUser,
	}
}

func writeSyncConfig(t *testing.T, dir string, repos ...domain.RepositoryDescriptor) {
	t.Helper()
	cfg := StoreConfig{
		Sync: domain.SyncConfiguration{
			Enabled:         true,
			IntervalMinutes: 30,
		},
		Repositories: repos,
		Blocklist:    BlocklistSettings{Enabled: true, Strict: true},
	}
	if err := NewConfigStore(dir).Save(cfg); err != nil {
		t.Fatalf("Save config failed: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met within timeout")
}

func TestNewService(t *testing.T) {
	dir := t.TempDir()

	svc, err := NewService(testSettings(dir), NewFakeProvider())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	if svc.IsReadOnly() {
		t.Error("Service should hold the lock in a fresh data directory")
	}

	// First load persists the default configuration.
	if _, err := os.Stat(filepath.Join(dir, ConfigFilename)); err != nil {
		t.Errorf("Default config should have been written: %v", err)
	}

	// Stop again should be safe
	svc.Stop()
	svc.Stop()
}

func TestNewService_NilSettings(t *testing.T) {
	_, err := NewService(nil, NewFakeProvider())
	if err == nil {
		t.Error("Expected error for nil settings")
	}
}

func TestNewService_NilProvider(t *testing.T) {
	_, err := NewService(testSettings(t.TempDir()), nil)
	if err == nil {
		t.Error("Expected error for nil provider")
	}
}

func TestNewService_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "path", "data")

	svc, err := NewService(testSettings(dir), NewFakeProvider())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Data directory should exist: %v", err)
	}
}

func TestNewService_ReadOnlyWhenLocked(t *testing.T) {
	dir := t.TempDir()

	holder := NewFileLock(filepath.Join(dir, LockFilename))
	acquired, err := holder.TryLock()
	if err != nil || !acquired {
		t.Fatalf("Failed to pre-acquire lock: acquired=%v err=%v", acquired, err)
	}
	defer releaseLock(t, holder)

	svc, err := NewService(testSettings(dir), NewFakeProvider())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	if !svc.IsReadOnly() {
		t.Fatal("Service should be read-only when the lock is held elsewhere")
	}

	if _, err := svc.TriggerSync(false); !errors.Is(err, ErrReadOnly) {
		t.Errorf("TriggerSync error = %v, want ErrReadOnly", err)
	}
	if _, err := svc.AddBlocklistEntry(domain.BlocklistEntry{
		Kind: domain.BlocklistKindServer, ServerName: "x", Reason: "r",
	}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("AddBlocklistEntry error = %v, want ErrReadOnly", err)
	}
	if _, err := svc.SetBlocklistOverride("deadbeef", true); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetBlocklistOverride error = %v, want ErrReadOnly", err)
	}

	// Reads still work.
	if _, err := svc.Search("anything", 0); err != nil {
		t.Errorf("Search failed: %v", err)
	}

	// A read-only instance must not write defaults either.
	if _, err := os.Stat(filepath.Join(dir, ConfigFilename)); !os.IsNotExist(err) {
		t.Errorf("Read-only instance should not persist defaults, stat err = %v", err)
	}
}

func TestService_SyncPassIndexesEligibleFiles(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md", "guide/setup.md", "data.md", "big.md", "script.sh"},
		map[string]string{
			"readme.md":      "Getting started with the search service.",
			"guide/setup.md": "Install the server and run it.",
			"data.md":        "\x00\x01binary blob",
			"big.md":         strings.Repeat("x", 300*1024),
			"script.sh":      "echo hi",
		})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)

	// script.sh fails the include patterns, big.md is oversized and
	// data.md is binary.
	if got := svc.Stats().DocumentCount; got != 2 {
		t.Fatalf("DocumentCount = %d, want 2", got)
	}

	results, err := svc.Search("install", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Path != "guide/setup.md" {
		t.Errorf("Search results = %+v, want one hit on guide/setup.md", results)
	}

	doc, ok := svc.GetDocument("acme/docs/main/readme.md")
	if !ok {
		t.Fatal("Expected readme.md to be indexed")
	}
	if doc.FileType != "md" {
		t.Errorf("FileType = %q, want %q", doc.FileType, "md")
	}
	if doc.ContentHash != BlobSHA([]byte(doc.Content)) {
		t.Error("ContentHash should be the blob SHA of the content")
	}

	statuses := svc.ListRepositories()
	if len(statuses) != 1 {
		t.Fatalf("ListRepositories returned %d entries, want 1", len(statuses))
	}
	if statuses[0].State.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", statuses[0].State.FileCount)
	}
	if statuses[0].State.LastError != "" {
		t.Errorf("LastError = %q, want empty", statuses[0].State.LastError)
	}
	if statuses[0].State.LastSynced.IsZero() {
		t.Error("LastSynced should be set after a pass")
	}
}

func TestService_IncrementalKeepsRemovedFilesUntilForced(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md", "old.md"},
		map[string]string{"readme.md": "keep me", "old.md": "remove me"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)
	if got := svc.Stats().DocumentCount; got != 2 {
		t.Fatalf("DocumentCount after first pass = %d, want 2", got)
	}

	// Upstream deletes old.md.
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"},
		map[string]string{"readme.md": "keep me"})

	svc.runPass(context.Background(), false)
	if got := svc.Stats().DocumentCount; got != 2 {
		t.Errorf("Incremental pass should keep removed files, DocumentCount = %d, want 2", got)
	}

	svc.runPass(context.Background(), true)
	if got := svc.Stats().DocumentCount; got != 1 {
		t.Errorf("Forced pass should drop removed files, DocumentCount = %d, want 1", got)
	}
	if _, ok := svc.GetDocument("acme/docs/main/old.md"); ok {
		t.Error("old.md should be gone after a forced pass")
	}
}

func TestService_ForcedPassRetainsFailedRepos(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"), mdRepo("beta", "notes"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "acme content"})
	provider.SetRepo("beta", "notes", "main",
		[]string{"notes.md"}, map[string]string{"notes.md": "beta content"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)
	if got := svc.Stats().DocumentCount; got != 2 {
		t.Fatalf("DocumentCount after first pass = %d, want 2", got)
	}

	provider.FailWith("ListTree", "acme/docs/main", errors.New("upstream down"))
	svc.runPass(context.Background(), true)

	if got := svc.Stats().DocumentCount; got != 2 {
		t.Errorf("Forced pass should retain documents of failed repos, DocumentCount = %d, want 2", got)
	}
	if _, ok := svc.GetDocument("acme/docs/main/readme.md"); !ok {
		t.Error("acme document should survive the failed forced pass")
	}

	for _, st := range svc.ListRepositories() {
		switch st.Repository.FullName() {
		case "acme/docs":
			if st.State.LastError == "" {
				t.Error("acme/docs should record the sync error")
			}
		case "beta/notes":
			if st.State.LastError != "" {
				t.Errorf("beta/notes LastError = %q, want empty", st.State.LastError)
			}
		}
	}
}

func TestService_CacheAvoidsRefetchingUnchangedBlobs(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"a.md", "b.md"},
		map[string]string{"a.md": "alpha", "b.md": "bravo"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)
	if got := provider.CallCount("FetchBlob"); got != 2 {
		t.Fatalf("FetchBlob calls after first pass = %d, want 2", got)
	}

	svc.runPass(context.Background(), false)
	if got := provider.CallCount("FetchBlob"); got != 2 {
		t.Errorf("Unchanged blobs should be served from cache, FetchBlob calls = %d, want 2", got)
	}
	if got := svc.Stats().DocumentCount; got != 2 {
		t.Errorf("DocumentCount = %d, want 2", got)
	}
}

func TestService_FetchFailureFallsBackToCache(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "cached content"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)

	// A forced pass bypasses the unchanged-blob shortcut, so the fetch
	// runs, fails, and falls back to the cached copy.
	provider.FailWith("FetchBlob", "", errors.New("api down"))
	svc.runPass(context.Background(), true)

	doc, ok := svc.GetDocument("acme/docs/main/readme.md")
	if !ok {
		t.Fatal("Document should survive via the cache fallback")
	}
	if doc.Content != "cached content" {
		t.Errorf("Content = %q, want cached copy", doc.Content)
	}

	statuses := svc.ListRepositories()
	if len(statuses) != 1 || statuses[0].State.LastError != "" {
		t.Errorf("Repository should not record an error when the cache covers the fetch, got %+v", statuses)
	}
}

func TestService_BlockedServerSkippedUntilOverridden(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	seed, err := LoadLedger(filepath.Join(dir, LedgerFilename))
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	entry, err := seed.Append(domain.BlocklistEntry{
		Kind:       domain.BlocklistKindServer,
		ServerName: "acme/docs",
		Reason:     "license dispute",
		Source:     domain.BlocklistSourceUser,
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "acme content"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)
	if got := svc.Stats().DocumentCount; got != 0 {
		t.Fatalf("Blocked repository should not be synced, DocumentCount = %d", got)
	}
	for _, st := range svc.ListRepositories() {
		if st.Repository.FullName() == "acme/docs" {
			t.Error("Blocked repository should not appear in the sync set")
		}
	}

	blocked, reason, err := svc.CheckBlocklist("acme/docs", "")
	if err != nil {
		t.Fatalf("CheckBlocklist failed: %v", err)
	}
	if !blocked || reason != "license dispute" {
		t.Errorf("CheckBlocklist = (%v, %q), want blocked with reason", blocked, reason)
	}

	if _, err := svc.SetBlocklistOverride(entry.IntegrityHash, true); err != nil {
		t.Fatalf("SetBlocklistOverride failed: %v", err)
	}

	svc.runPass(context.Background(), false)
	if got := svc.Stats().DocumentCount; got != 1 {
		t.Errorf("Overridden block should sync again, DocumentCount = %d, want 1", got)
	}
}

func TestService_SetBlocklistOverride_UnknownHash(t *testing.T) {
	svc, err := NewService(testSettings(t.TempDir()), NewFakeProvider())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	if _, err := svc.SetBlocklistOverride("no-such-hash", true); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("SetBlocklistOverride error = %v, want ErrEntryNotFound", err)
	}
}

func TestService_BlockedPatternsExtendExcludes(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	seed, err := LoadLedger(filepath.Join(dir, LedgerFilename))
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}
	if _, err := seed.Append(domain.BlocklistEntry{
		Kind:    domain.BlocklistKindFilePattern,
		Pattern: "**/secret.md",
		Reason:  "contains credentials",
		Source:  domain.BlocklistSourceSystem,
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md", "notes/secret.md"},
		map[string]string{"readme.md": "public", "notes/secret.md": "hidden"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)

	if got := svc.Stats().DocumentCount; got != 1 {
		t.Fatalf("DocumentCount = %d, want 1", got)
	}
	if _, ok := svc.GetDocument("acme/docs/main/notes/secret.md"); ok {
		t.Error("Blocked pattern should exclude the file from indexing")
	}
}

func TestService_DiscoveryIndexesMarkedRepos(t *testing.T) {
	dir := t.TempDir()
	cfg := StoreConfig{
		Sync: domain.SyncConfiguration{
			Enabled:               true,
			IntervalMinutes:       30,
			AutoDiscoverUserRepos: true,
		},
		Blocklist: BlocklistSettings{Enabled: true, Strict: true},
	}
	if err := NewConfigStore(dir).Save(cfg); err != nil {
		t.Fatalf("Save config failed: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetUserRepos("octo", []RemoteRepository{
		{Owner: "octo", Name: "notes", DefaultBranch: "main"},
		{Owner: "octo", Name: "scratch", DefaultBranch: "main"},
	})
	// Only notes opts in through the marker file.
	provider.SetFile("octo", "notes", "main", MarkerPath, []byte{})
	provider.SetRepo("octo", "notes", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "marked repo"})

	settings := testSettings(dir)
	settings.GitHubUser = "octo"

	svc, err := NewService(settings, provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)

	if got := svc.Stats().DocumentCount; got != 1 {
		t.Fatalf("DocumentCount = %d, want 1", got)
	}

	var found bool
	for _, st := range svc.ListRepositories() {
		if st.Repository.FullName() == "octo/notes" {
			found = true
			if st.Repository.Classification != domain.ClassificationUser {
				t.Errorf("Classification = %q, want %q", st.Repository.Classification, domain.ClassificationUser)
			}
		}
		if st.Repository.FullName() == "octo/scratch" {
			t.Error("Unmarked repository should not join the sync set")
		}
	}
	if !found {
		t.Error("Marked repository should join the sync set")
	}
}

func TestService_DiscoveryFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	cfg := StoreConfig{
		Sync: domain.SyncConfiguration{
			Enabled:               true,
			IntervalMinutes:       30,
			AutoDiscoverUserRepos: true,
		},
		Repositories: []domain.RepositoryDescriptor{mdRepo("acme", "docs")},
		Blocklist:    BlocklistSettings{Enabled: true, Strict: true},
	}
	if err := NewConfigStore(dir).Save(cfg); err != nil {
		t.Fatalf("Save config failed: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "configured repo"})
	provider.FailWith("DiscoverRepositories", "octo", errors.New("api down"))

	settings := testSettings(dir)
	settings.GitHubUser = "octo"

	svc, err := NewService(settings, provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)

	if got := svc.Stats().DocumentCount; got != 1 {
		t.Errorf("Configured repos should still sync when discovery fails, DocumentCount = %d, want 1", got)
	}
}

// gatedProvider holds every ListTree call until release is closed, so
// tests can observe an in-flight sync pass.
type gatedProvider struct {
	*FakeProvider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *gatedProvider) ListTree(ctx context.Context, owner, name, ref string) ([]TreeEntry, bool, error) {
	p.once.Do(func() { close(p.entered) })
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	return p.FakeProvider.ListTree(ctx, owner, name, ref)
}

func TestService_TriggerSync_SingleFlight(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	fake := NewFakeProvider()
	fake.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})
	provider := &gatedProvider{
		FakeProvider: fake,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	queued, err := svc.TriggerSync(false)
	if err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	if queued {
		t.Error("First TriggerSync should start a pass, not queue one")
	}

	<-provider.entered

	// Requests during a running pass coalesce into one follow-up.
	for i := 0; i < 3; i++ {
		queued, err := svc.TriggerSync(i == 1)
		if err != nil {
			t.Fatalf("TriggerSync failed: %v", err)
		}
		if !queued {
			t.Error("TriggerSync during a running pass should queue")
		}
	}

	close(provider.release)
	waitFor(t, 2*time.Second, func() bool { return !svc.SyncRunning() })

	if got := fake.CallCount("ListTree"); got != 2 {
		t.Errorf("ListTree calls = %d, want 2 (initial pass plus one coalesced)", got)
	}
	if svc.LastSync().IsZero() {
		t.Error("LastSync should be set after the passes finish")
	}
}

func TestService_RunSync_ReportsCounts(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md", "guide.md"},
		map[string]string{"readme.md": "one", "guide.md": "two"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	summary, queued, err := svc.RunSync(context.Background(), false)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if queued {
		t.Fatal("RunSync with no pass in flight should not queue")
	}
	if summary.RepositoriesTouched != 1 {
		t.Errorf("RepositoriesTouched = %d, want 1", summary.RepositoriesTouched)
	}
	if summary.DocumentsIndexed != 2 {
		t.Errorf("DocumentsIndexed = %d, want 2", summary.DocumentsIndexed)
	}
	if summary.IndexedTotal != 2 {
		t.Errorf("IndexedTotal = %d, want 2", summary.IndexedTotal)
	}
	if summary.Forced {
		t.Error("Forced should be false")
	}
	if svc.SyncRunning() {
		t.Error("No pass should be running after RunSync returns")
	}
}

func TestService_RunSync_QueuesBehindRunningPass(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	fake := NewFakeProvider()
	fake.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})
	provider := &gatedProvider{
		FakeProvider: fake,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	if _, err := svc.TriggerSync(false); err != nil {
		t.Fatalf("TriggerSync failed: %v", err)
	}
	<-provider.entered

	summary, queued, err := svc.RunSync(context.Background(), true)
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}
	if !queued {
		t.Error("RunSync during a running pass should queue")
	}
	if summary != nil {
		t.Errorf("Queued RunSync should not return a summary, got %+v", summary)
	}

	close(provider.release)
	waitFor(t, 2*time.Second, func() bool { return !svc.SyncRunning() })

	// The queued request ran as the coalesced follow-up pass.
	if got := fake.CallCount("ListTree"); got != 2 {
		t.Errorf("ListTree calls = %d, want 2", got)
	}
}

func TestService_TriggerSync_UnavailableOnBadConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	svc, err := NewService(testSettings(dir), NewFakeProvider())
	if err != nil {
		t.Fatalf("NewService should degrade, not fail: %v", err)
	}
	defer svc.Stop()

	if _, err := svc.TriggerSync(false); !errors.Is(err, ErrSyncUnavailable) {
		t.Errorf("TriggerSync error = %v, want ErrSyncUnavailable", err)
	}
	if got := svc.ListRepositories(); got != nil {
		t.Errorf("ListRepositories = %+v, want nil without a usable config", got)
	}

	// Search and blocklist writes keep working.
	if _, err := svc.Search("anything", 0); err != nil {
		t.Errorf("Search failed: %v", err)
	}
	if _, err := svc.AddBlocklistEntry(domain.BlocklistEntry{
		Kind: domain.BlocklistKindServer, ServerName: "bad/server", Reason: "r",
	}); err != nil {
		t.Errorf("AddBlocklistEntry failed: %v", err)
	}
}

func TestService_BlocklistUnavailableOnBadLedger(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))
	if err := os.WriteFile(filepath.Join(dir, LedgerFilename), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write ledger: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService should degrade, not fail: %v", err)
	}
	defer svc.Stop()

	var cfgErr *ConfigError
	if _, err := svc.AddBlocklistEntry(domain.BlocklistEntry{
		Kind: domain.BlocklistKindServer, ServerName: "x", Reason: "r",
	}); !errors.As(err, &cfgErr) {
		t.Errorf("AddBlocklistEntry error = %v, want ConfigError", err)
	}
	if _, _, err := svc.CheckBlocklist("x", ""); !errors.As(err, &cfgErr) {
		t.Errorf("CheckBlocklist error = %v, want ConfigError", err)
	}
	if _, err := svc.BlocklistEntries(); !errors.As(err, &cfgErr) {
		t.Errorf("BlocklistEntries error = %v, want ConfigError", err)
	}

	// Sync proceeds without enforcement.
	svc.runPass(context.Background(), false)
	if got := svc.Stats().DocumentCount; got != 1 {
		t.Errorf("Sync should proceed without the ledger, DocumentCount = %d, want 1", got)
	}
}

func TestService_GetSpecification(t *testing.T) {
	dir := t.TempDir()

	provider := NewFakeProvider()
	provider.SetFile(SpecRepoOwner, SpecRepoName, SpecRepoBranch, SpecRepoPath,
		[]byte(`{"jsonrpc": "2.0"}`))

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	payload, fetchedAt, source, err := svc.GetSpecification(context.Background())
	if err != nil {
		t.Fatalf("GetSpecification failed: %v", err)
	}
	if string(payload) != `{"jsonrpc": "2.0"}` {
		t.Errorf("payload = %s", payload)
	}
	if source != SpecRepoOwner+"/"+SpecRepoName {
		t.Errorf("source = %q", source)
	}
	if fetchedAt.IsZero() {
		t.Error("fetchedAt should be set")
	}
	if _, err := os.Stat(filepath.Join(dir, SpecCacheFilename)); err != nil {
		t.Errorf("Spec cache should be persisted: %v", err)
	}

	// Second call is served from the cache.
	if _, _, _, err := svc.GetSpecification(context.Background()); err != nil {
		t.Fatalf("Second GetSpecification failed: %v", err)
	}
	if got := provider.CallCount("FetchFile"); got != 1 {
		t.Errorf("FetchFile calls = %d, want 1", got)
	}
}

func TestService_GetSpecification_RefreshesWhenStale(t *testing.T) {
	dir := t.TempDir()

	stale := LoadSpecCache(filepath.Join(dir, SpecCacheFilename))
	if err := stale.Store([]byte(`{"old": true}`), "seed", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("Failed to seed spec cache: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetFile(SpecRepoOwner, SpecRepoName, SpecRepoBranch, SpecRepoPath,
		[]byte(`{"new": true}`))

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	payload, _, _, err := svc.GetSpecification(context.Background())
	if err != nil {
		t.Fatalf("GetSpecification failed: %v", err)
	}
	if string(payload) != `{"new": true}` {
		t.Errorf("payload = %s, want the refreshed document", payload)
	}
}

func TestService_GetSpecification_StaleFallback(t *testing.T) {
	dir := t.TempDir()

	stale := LoadSpecCache(filepath.Join(dir, SpecCacheFilename))
	if err := stale.Store([]byte(`{"old": true}`), "seed", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("Failed to seed spec cache: %v", err)
	}

	provider := NewFakeProvider()
	provider.FailWith("FetchFile", "", errors.New("api down"))

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	payload, _, source, err := svc.GetSpecification(context.Background())
	if err != nil {
		t.Fatalf("GetSpecification should fall back to the stale copy: %v", err)
	}
	if string(payload) != `{"old": true}` {
		t.Errorf("payload = %s, want the stale copy", payload)
	}
	if source != "seed" {
		t.Errorf("source = %q, want %q", source, "seed")
	}
}

func TestService_GetSpecification_Unavailable(t *testing.T) {
	provider := NewFakeProvider()
	provider.FailWith("FetchFile", "", errors.New("api down"))

	svc, err := NewService(testSettings(t.TempDir()), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	_, _, _, err = svc.GetSpecification(context.Background())
	if err == nil {
		t.Fatal("Expected error with no cache and a failing fetch")
	}
	if !strings.Contains(err.Error(), "specification unavailable") {
		t.Errorf("error = %v", err)
	}
}

func TestService_SyncWarmsSpecificationCache(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})
	provider.SetFile(SpecRepoOwner, SpecRepoName, SpecRepoBranch, SpecRepoPath,
		[]byte(`{"jsonrpc": "2.0"}`))

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.runPass(context.Background(), false)

	// The pass fetched and persisted the specification, so reading it
	// afterwards does not touch the provider again.
	if _, err := os.Stat(filepath.Join(dir, SpecCacheFilename)); err != nil {
		t.Fatalf("Spec cache should be persisted by the sync pass: %v", err)
	}
	before := provider.CallCount("FetchFile")
	if before != 1 {
		t.Errorf("FetchFile calls after sync = %d, want 1", before)
	}
	if _, _, _, err := svc.GetSpecification(context.Background()); err != nil {
		t.Fatalf("GetSpecification failed: %v", err)
	}
	if got := provider.CallCount("FetchFile"); got != before {
		t.Errorf("FetchFile calls = %d, want %d (served from cache)", got, before)
	}
}

func TestService_StartRunsInitialSync(t *testing.T) {
	dir := t.TempDir()
	writeSyncConfig(t, dir, mdRepo("acme", "docs"))

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.Start()
	waitFor(t, 2*time.Second, func() bool { return !svc.LastSync().IsZero() })

	if got := svc.Stats().DocumentCount; got != 1 {
		t.Errorf("DocumentCount = %d, want 1", got)
	}

	enabled, interval := svc.SyncConfigured()
	if !enabled {
		t.Error("SyncConfigured should report enabled")
	}
	if interval != 30*time.Minute {
		t.Errorf("interval = %v, want 30m", interval)
	}
}

func TestService_StartDisabledStillAllowsManualSync(t *testing.T) {
	dir := t.TempDir()
	cfg := StoreConfig{
		Sync:      domain.SyncConfiguration{Enabled: false, IntervalMinutes: 30},
		Blocklist: BlocklistSettings{Enabled: true, Strict: true},
		Repositories: []domain.RepositoryDescriptor{
			mdRepo("acme", "docs"),
		},
	}
	if err := NewConfigStore(dir).Save(cfg); err != nil {
		t.Fatalf("Save config failed: %v", err)
	}

	provider := NewFakeProvider()
	provider.SetRepo("acme", "docs", "main",
		[]string{"readme.md"}, map[string]string{"readme.md": "content"})

	svc, err := NewService(testSettings(dir), provider)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer svc.Stop()

	svc.Start()
	time.Sleep(50 * time.Millisecond)
	if got := provider.CallCount("ListTree"); got != 0 {
		t.Fatalf("Disabled sync should not run at start, ListTree calls = %d", got)
	}

	queued, err := svc.TriggerSync(false)
	if err != nil {
		t.Fatalf("Manual TriggerSync should work when periodic sync is disabled: %v", err)
	}
	if queued {
		t.Error("Manual TriggerSync should start immediately")
	}
	waitFor(t, 2*time.Second, func() bool { return !svc.SyncRunning() })

	if got := svc.Stats().DocumentCount; got != 1 {
		t.Errorf("DocumentCount = %d, want 1", got)
	}
}
