package docrepos

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// FakeProvider implements ContentProvider against configured fixtures.
// It records calls and is safe for the concurrent use the sync pass
// makes of it. This is exported for use in integration tests.
type FakeProvider struct {
	mu sync.Mutex

	trees     map[string][]TreeEntry
	truncated map[string]bool
	blobs     map[string][]byte
	files     map[string][]byte
	users     map[string][]RemoteRepository
	failures  map[string]error
	calls     []ProviderCall
}

// ProviderCall records one provider invocation.
type ProviderCall struct {
	Op  string
	Key string
}

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		trees:     make(map[string][]TreeEntry),
		truncated: make(map[string]bool),
		blobs:     make(map[string][]byte),
		files:     make(map[string][]byte),
		users:     make(map[string][]RemoteRepository),
		failures:  make(map[string]error),
	}
}

// SetRepo registers a repository tree built from the given path to
// content mapping, in the order of paths, together with the matching
// blobs.
func (f *FakeProvider) SetRepo(owner, name, ref string, paths []string, contents map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]TreeEntry, 0, len(paths))
	for _, path := range paths {
		content := []byte(contents[path])
		sha := BlobSHA(content)
		entries = append(entries, TreeEntry{Path: path, SHA: sha, Size: int64(len(content))})
		f.blobs[owner+"/"+name+"/"+sha] = content
	}
	f.trees[owner+"/"+name+"/"+ref] = entries
}

// SetTruncated marks a repository's tree listing as truncated.
func (f *FakeProvider) SetTruncated(owner, name, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncated[owner+"/"+name+"/"+ref] = true
}

// SetFile registers content served through FetchFile and makes the
// path visible to FileExists.
func (f *FakeProvider) SetFile(owner, name, ref, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[owner+"/"+name+"/"+ref+"/"+path] = content
}

// SetUserRepos registers the discovery result for a user.
func (f *FakeProvider) SetUserRepos(user string, repos []RemoteRepository) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user] = repos
}

// FailWith makes every call of the given op against the given key
// return err. An empty key fails the op for all keys.
func (f *FakeProvider) FailWith(op, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"|"+key] = err
}

func (f *FakeProvider) record(op, key string) error {
	f.calls = append(f.calls, ProviderCall{Op: op, Key: key})
	if err, ok := f.failures[op+"|"+key]; ok {
		return err
	}
	if err, ok := f.failures[op+"|"]; ok {
		return err
	}
	return nil
}

// ListTree implements ContentProvider.
func (f *FakeProvider) ListTree(_ context.Context, owner, name, ref string) ([]TreeEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner + "/" + name + "/" + ref
	if err := f.record("ListTree", key); err != nil {
		return nil, false, err
	}
	entries, ok := f.trees[key]
	if !ok {
		return nil, false, errors.New("no tree fixture for " + key)
	}
	return entries, f.truncated[key], nil
}

// FetchBlob implements ContentProvider.
func (f *FakeProvider) FetchBlob(_ context.Context, owner, name, sha string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner + "/" + name + "/" + sha
	if err := f.record("FetchBlob", key); err != nil {
		return nil, err
	}
	content, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("no blob fixture for " + key)
	}
	return content, nil
}

// FetchFile implements ContentProvider.
func (f *FakeProvider) FetchFile(_ context.Context, owner, name, ref, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner + "/" + name + "/" + ref + "/" + path
	if err := f.record("FetchFile", key); err != nil {
		return nil, err
	}
	content, ok := f.files[key]
	if !ok {
		return nil, errors.New("no file fixture for " + key)
	}
	return content, nil
}

// DiscoverRepositories implements ContentProvider.
func (f *FakeProvider) DiscoverRepositories(_ context.Context, user string) ([]RemoteRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("DiscoverRepositories", user); err != nil {
		return nil, err
	}
	return f.users[user], nil
}

// FileExists implements ContentProvider.
func (f *FakeProvider) FileExists(_ context.Context, owner, name, ref, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := owner + "/" + name + "/" + ref + "/" + path
	if err := f.record("FileExists", key); err != nil {
		return false, err
	}
	_, ok := f.files[key]
	return ok, nil
}

// Calls returns all recorded provider calls.
func (f *FakeProvider) Calls() []ProviderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ProviderCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many calls of the given op were recorded.
func (f *FakeProvider) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// MustGetLastCall returns the last recorded call, fails the test if no
// calls were made.
func (f *FakeProvider) MustGetLastCall(t *testing.T) ProviderCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("Expected at least one provider call")
	}
	return f.calls[len(f.calls)-1]
}
