package docrepos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

const discoverPageSize = 100

var transientRetryDelay = 2 * time.Second

// GitHubProvider implements ContentProvider against the GitHub API.
// A configured token raises the API rate limit from 60 to 5000
// requests per hour; without one the provider still works for public
// repositories.
type GitHubProvider struct {
	client *github.Client
}

// NewGitHubProvider creates a provider, authenticated when token is
// non-empty.
func NewGitHubProvider(ctx context.Context, token string) *GitHubProvider {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	return &GitHubProvider{client: github.NewClient(httpClient)}
}

// classify wraps a GitHub API failure in a ProviderError. Rate limits,
// server errors and network failures are transient; client errors such
// as a missing repository are permanent.
func classify(op, repo string, resp *github.Response, err error) *ProviderError {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return &ProviderError{Op: op, Repo: repo, Transient: true, Err: err}
	}
	if resp == nil {
		return &ProviderError{Op: op, Repo: repo, Transient: true, Err: err}
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return &ProviderError{Op: op, Repo: repo, Transient: true, Err: err}
	}
	return &ProviderError{Op: op, Repo: repo, Transient: false, Err: err}
}

// do runs one API call, retrying once after a short delay when the
// failure is transient.
func (p *GitHubProvider) do(ctx context.Context, op, repo string, fn func() (*github.Response, error)) error {
	resp, err := fn()
	if err == nil {
		return nil
	}
	perr := classify(op, repo, resp, err)
	if !perr.Transient {
		return perr
	}

	slog.Warn("Transient GitHub failure, retrying once",
		"op", op, "repository", repo, "error", err)
	select {
	case <-ctx.Done():
		return &ProviderError{Op: op, Repo: repo, Transient: true, Err: ctx.Err()}
	case <-time.After(transientRetryDelay):
	}

	if resp, err = fn(); err != nil {
		return classify(op, repo, resp, err)
	}
	return nil
}

// ListTree returns all files in the repository tree at ref.
func (p *GitHubProvider) ListTree(ctx context.Context, owner, name, ref string) ([]TreeEntry, bool, error) {
	repo := owner + "/" + name

	var tree *github.Tree
	err := p.do(ctx, "list tree", repo, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		tree, resp, err = p.client.Git.GetTree(ctx, owner, name, ref, true)
		return resp, err
	})
	if err != nil {
		return nil, false, err
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			Size: int64(e.GetSize()),
		})
	}
	return entries, tree.GetTruncated(), nil
}

// FetchBlob downloads file contents by blob object name.
func (p *GitHubProvider) FetchBlob(ctx context.Context, owner, name, sha string) ([]byte, error) {
	repo := owner + "/" + name

	var content []byte
	err := p.do(ctx, "fetch blob", repo, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		content, resp, err = p.client.Git.GetBlobRaw(ctx, owner, name, sha)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// FetchFile downloads file contents by path at ref.
func (p *GitHubProvider) FetchFile(ctx context.Context, owner, name, ref, path string) ([]byte, error) {
	repo := owner + "/" + name
	opts := &github.RepositoryContentGetOptions{Ref: ref}

	var file *github.RepositoryContent
	err := p.do(ctx, "fetch file", repo, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		file, _, resp, err = p.client.Repositories.GetContents(ctx, owner, name, path, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, &ProviderError{Op: "fetch file", Repo: repo, Transient: false,
			Err: fmt.Errorf("%s is a directory", path)}
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, &ProviderError{Op: "fetch file", Repo: repo, Transient: false, Err: err}
	}
	return []byte(content), nil
}

// DiscoverRepositories lists the user's repositories, skipping
// archived ones. Pagination is followed to the end.
func (p *GitHubProvider) DiscoverRepositories(ctx context.Context, user string) ([]RemoteRepository, error) {
	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: discoverPageSize},
	}

	var discovered []RemoteRepository
	for {
		var repos []*github.Repository
		var page *github.Response
		err := p.do(ctx, "discover repositories", user, func() (*github.Response, error) {
			var err error
			repos, page, err = p.client.Repositories.ListByUser(ctx, user, opts)
			return page, err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range repos {
			if r.GetArchived() {
				continue
			}
			owner := r.GetOwner().GetLogin()
			if owner == "" {
				owner = user
			}
			branch := r.GetDefaultBranch()
			if branch == "" {
				branch = "main"
			}
			discovered = append(discovered, RemoteRepository{
				Owner:         owner,
				Name:          r.GetName(),
				DefaultBranch: branch,
			})
		}

		if page.NextPage == 0 {
			break
		}
		opts.Page = page.NextPage
	}
	return discovered, nil
}

// FileExists probes for a file at ref. A 404 is a negative answer,
// not an error.
func (p *GitHubProvider) FileExists(ctx context.Context, owner, name, ref, path string) (bool, error) {
	repo := owner + "/" + name
	opts := &github.RepositoryContentGetOptions{Ref: ref}

	found := false
	err := p.do(ctx, "probe file", repo, func() (*github.Response, error) {
		_, _, resp, err := p.client.Repositories.GetContents(ctx, owner, name, path, opts)
		if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
			return resp, nil
		}
		if err == nil {
			found = true
		}
		return resp, err
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
