package source

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorktree(t *testing.T, files map[string]string) *Git {
	t.Helper()
	fs := memfs.New()
	for p, content := range files {
		require.NoError(t, util.WriteFile(fs, p, []byte(content), 0o644))
	}
	return NewGitFromFS(fs)
}

func TestGit_ListAndFetch(t *testing.T) {
	g := newWorktree(t, map[string]string{
		"README.md":    "hello",
		"src/main.go":  "package main",
		"src/util.go":  "package main",
		"docs/a/b.txt": "deep",
	})
	ctx := context.Background()

	root, err := g.List(ctx, "")
	require.NoError(t, err)
	sort.Slice(root, func(i, j int) bool { return root[i].Name < root[j].Name })
	require.Len(t, root, 3)
	assert.Equal(t, Entry{Name: "README.md", Path: "README.md", Type: TypeFile, Size: 5}, root[0])
	assert.Equal(t, TypeDir, root[1].Type)
	assert.Equal(t, "docs", root[1].Path)

	src, err := g.List(ctx, "src")
	require.NoError(t, err)
	require.Len(t, src, 2)
	for _, e := range src {
		assert.Equal(t, "src/"+e.Name, e.Path)
	}

	data, err := g.Fetch(ctx, "docs/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "deep", string(data))
}

func TestGit_Errors(t *testing.T) {
	g := newWorktree(t, map[string]string{"README.md": "hello"})
	ctx := context.Background()

	_, err := g.List(ctx, "README.md")
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = g.List(ctx, "nope")
	assert.ErrorIs(t, err, ErrRetrieval)

	_, err = g.Fetch(ctx, "nope.txt")
	assert.ErrorIs(t, err, ErrRetrieval)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Fetch(cancelled, "README.md")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsCommitHash(t *testing.T) {
	assert.True(t, isCommitHash("3f2a9c1"))
	assert.True(t, isCommitHash("3f2a9c1e5b7d4a6f8e0c2b4d6f8a0c2e4b6d8f0a"))
	assert.False(t, isCommitHash("main"))
	assert.False(t, isCommitHash("v1.2.3"))
	assert.False(t, isCommitHash("abc"))
	assert.False(t, isCommitHash("3F2A9C1"))
}

func TestCheckoutRevision(t *testing.T) {
	fs := memfs.New()
	r, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	w, err := r.Worktree()
	require.NoError(t, err)

	commit := func(content, msg string) string {
		require.NoError(t, util.WriteFile(fs, "README.md", []byte(content), 0o644))
		_, err := w.Add("README.md")
		require.NoError(t, err)
		h, err := w.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "octo", Email: "octo@example.com", When: time.Now()},
		})
		require.NoError(t, err)
		return h.String()
	}
	first := commit("first", "initial")
	commit("second", "update")

	require.NoError(t, checkoutRevision(r, first[:10]))
	data, err := NewGitFromFS(fs).Fetch(context.Background(), "README.md")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	assert.Error(t, checkoutRevision(r, "0000000000"))
}
