package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Git serves a repository from an in-memory worktree. One clone replaces
// the per-directory and per-file API calls of the GitHub source.
type Git struct {
	fs billy.Filesystem
}

// NewGitFromFS wraps an existing worktree filesystem.
func NewGitFromFS(fs billy.Filesystem) *Git {
	return &Git{fs: fs}
}

// CloneGit shallow-clones repo into memory. cloneURL overrides the
// github.com URL derived from repo when non-empty.
func CloneGit(ctx context.Context, repo Repository, cloneURL string, token config.Secret, depth int) (*Git, error) {
	if cloneURL == "" {
		cloneURL = repo.URL() + ".git"
	}
	if depth <= 0 {
		depth = 1
	}

	opts := &git.CloneOptions{
		URL:          cloneURL,
		Depth:        depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if token.IsSet() {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token.Value()}
	}

	if isCommitHash(repo.Ref) {
		return cloneAtCommit(ctx, repo.Ref, cloneURL, opts.Auth)
	}

	refs := []plumbing.ReferenceName{""}
	if repo.Ref != "" {
		refs = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(repo.Ref),
			plumbing.NewTagReferenceName(repo.Ref),
		}
	}

	var errs []error
	for _, ref := range refs {
		opts.ReferenceName = ref
		fs := memfs.New()
		_, err := git.CloneContext(ctx, memory.NewStorage(), fs, opts)
		if err == nil {
			return &Git{fs: fs}, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &RetrievalError{Op: "clone", Path: cloneURL, Err: errors.Join(errs...)}
}

// cloneAtCommit fetches full history since a shallow clone cannot reach an
// arbitrary commit, then checks the worktree out at rev.
func cloneAtCommit(ctx context.Context, rev, cloneURL string, auth transport.AuthMethod) (*Git, error) {
	fs := memfs.New()
	r, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:  cloneURL,
		Auth: auth,
		Tags: git.NoTags,
	})
	if err != nil {
		return nil, &RetrievalError{Op: "clone", Path: cloneURL, Err: err}
	}
	if err := checkoutRevision(r, rev); err != nil {
		return nil, &RetrievalError{Op: "checkout", Path: rev, Err: err}
	}
	return &Git{fs: fs}, nil
}

func checkoutRevision(r *git.Repository, rev string) error {
	h, err := r.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return err
	}
	w, err := r.Worktree()
	if err != nil {
		return err
	}
	return w.Checkout(&git.CheckoutOptions{Hash: *h, Force: true})
}

// isCommitHash reports refs that look like full or abbreviated SHA-1s.
func isCommitHash(ref string) bool {
	if len(ref) < 7 || len(ref) > 40 {
		return false
	}
	for _, c := range ref {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

func fsPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

// List returns the children of the directory at p.
func (g *Git) List(ctx context.Context, p string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RetrievalError{Op: "list", Path: p, Err: err}
	}

	info, err := g.fs.Stat(fsPath(p))
	if err != nil {
		return nil, &RetrievalError{Op: "list", Path: p, Err: err}
	}
	if !info.IsDir() {
		return nil, &RetrievalError{Op: "list", Path: p, Err: ErrNotDirectory}
	}

	infos, err := g.fs.ReadDir(fsPath(p))
	if err != nil {
		return nil, &RetrievalError{Op: "list", Path: p, Err: err}
	}

	base := strings.Trim(p, "/")
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if fi.Mode()&os.ModeSymlink != 0 {
			continue
		}
		e := Entry{Name: fi.Name(), Path: path.Join(base, fi.Name()), Type: TypeFile, Size: fi.Size()}
		if fi.IsDir() {
			e.Type = TypeDir
			e.Size = 0
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Fetch returns the content of the file at p.
func (g *Git) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RetrievalError{Op: "fetch", Path: p, Err: err}
	}
	data, err := util.ReadFile(g.fs, fsPath(p))
	if err != nil {
		return nil, &RetrievalError{Op: "fetch", Path: p, Err: fmt.Errorf("reading worktree: %w", err)}
	}
	return data, nil
}
