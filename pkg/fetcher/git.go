package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/cuemby/crater/pkg/types"
)

// GitFetcher clones a Package's Ref (a remote URL) into a subdirectory of
// Root named for the package's identity, checking out Version as a
// revision if it resolves to one. It is the SourceGit strategy.
type GitFetcher struct {
	// Root is the parent directory source trees are cloned under;
	// cmd/crater's agent run uses <work-dir>/src.
	Root string
}

// NewGitFetcher returns a GitFetcher rooted at dir.
func NewGitFetcher(dir string) *GitFetcher {
	return &GitFetcher{Root: dir}
}

// Fetch implements Fetcher. A clone that already exists for this package
// identity is fetched and re-checked-out rather than re-cloned, so a
// second Prepare for the same package across experiments reuses disk.
func (g *GitFetcher) Fetch(ctx context.Context, pkg types.Package) (string, error) {
	if pkg.Source != types.SourceGit {
		return "", ErrUnsupportedSource
	}
	if pkg.Ref == "" {
		return "", fmt.Errorf("fetcher: package %s has no git remote URL", pkg.Key())
	}

	dir := filepath.Join(g.Root, sanitize(pkg.Key()))

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return dir, g.refresh(ctx, dir, pkg)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL: pkg.Ref,
	})
	if err != nil {
		return "", fmt.Errorf("fetcher: clone %s: %w", pkg.Ref, err)
	}

	if err := checkoutVersion(repo, pkg.Version); err != nil {
		return "", err
	}
	return dir, nil
}

func (g *GitFetcher) refresh(ctx context.Context, dir string, pkg types.Package) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("fetcher: open %s: %w", dir, err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("fetcher: resolve origin for %s: %w", dir, err)
	}
	if err := remote.FetchContext(ctx, &git.FetchOptions{}); err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetcher: fetch %s: %w", pkg.Ref, err)
	}

	return checkoutVersion(repo, pkg.Version)
}

func checkoutVersion(repo *git.Repository, version string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("fetcher: worktree: %w", err)
	}

	opts := &git.CheckoutOptions{}
	if version != "" {
		opts.Hash = plumbing.NewHash(version)
		if opts.Hash.IsZero() {
			opts.Branch = plumbing.NewBranchReferenceName(version)
		}
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("fetcher: checkout %s: %w", version, err)
	}
	return nil
}

func sanitize(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
