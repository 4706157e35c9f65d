// Package source lists and fetches entries of a remote repository tree.
//
// Two backends exist: GitHub reads through the contents API one call per
// directory or file, and Git clones the repository shallowly into memory.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// EntryType distinguishes files from directories.
type EntryType string

const (
	TypeFile EntryType = "file"
	TypeDir  EntryType = "dir"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name string
	Path string
	Type EntryType
	Size int64
}

// Source lists directories and fetches raw file content.
type Source interface {
	List(ctx context.Context, path string) ([]Entry, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// ErrRetrieval is wrapped by every RetrievalError.
var ErrRetrieval = errors.New("retrieval failed")

// ErrNotDirectory is returned when List targets a file.
var ErrNotDirectory = errors.New("not a directory")

// RetrievalError is a failed listing or fetch of one path.
type RetrievalError struct {
	Op   string // list or fetch
	Path string
	Err  error
}

func (e *RetrievalError) Error() string {
	p := e.Path
	if p == "" {
		p = "/"
	}
	return fmt.Sprintf("%s %s: %v", e.Op, p, e.Err)
}

func (e *RetrievalError) Unwrap() []error {
	return []error{ErrRetrieval, e.Err}
}

// Repository identifies a GitHub repository and an optional ref and sub-path.
type Repository struct {
	Owner string
	Name  string
	Ref   string // branch, tag or commit; empty means the default branch
	Path  string // sub-directory to start from; empty means the root
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// URL returns the repository's web URL.
func (r Repository) URL() string {
	return "https://github.com/" + r.FullName()
}

// ParseRepository accepts "owner/name", "github.com/owner/name" or a full
// https URL, optionally with "/tree/<ref>/<path>" as GitHub renders it.
// A ref containing slashes cannot be told apart from the path this way; pass
// it separately.
func ParseRepository(s string) (Repository, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Repository{}, errors.New("empty repository")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Repository{}, fmt.Errorf("parsing repository url: %w", err)
		}
		raw = u.Path
	} else {
		raw = strings.TrimPrefix(raw, "github.com/")
	}

	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Repository{}, fmt.Errorf("repository %q must be owner/name", s)
	}

	repo := Repository{Owner: parts[0], Name: strings.TrimSuffix(parts[1], ".git")}
	rest := parts[2:]
	if len(rest) >= 2 && (rest[0] == "tree" || rest[0] == "blob") {
		repo.Ref = rest[1]
		repo.Path = strings.Join(rest[2:], "/")
	} else if len(rest) > 0 {
		return Repository{}, fmt.Errorf("repository %q has unexpected path %q", s, strings.Join(rest, "/"))
	}
	return repo, nil
}
