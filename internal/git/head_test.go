package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T) (string, string) {
	t.Helper()
	repoPath := t.TempDir()

	repo, err := git.PlainInit(repoPath, false)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(repoPath, "src"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, "src", "main.go"), []byte("package main\n"), 0o600))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)

	hash, err := wt.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return repoPath, hash.String()
}

func TestReadHead_Repository(t *testing.T) {
	repoPath, commit := initRepoWithCommit(t)

	head, err := ReadHead(repoPath)
	require.NoError(t, err)
	assert.Equal(t, commit, head.Commit)
	assert.Equal(t, "master", head.Branch)
}

func TestReadHead_Subdirectory(t *testing.T) {
	repoPath, commit := initRepoWithCommit(t)

	head, err := ReadHead(filepath.Join(repoPath, "src"))
	require.NoError(t, err)
	assert.Equal(t, commit, head.Commit)
}

func TestReadHead_NotRepository(t *testing.T) {
	_, err := ReadHead(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotRepository))
}

func TestReadHead_NoCommits(t *testing.T) {
	repoPath := t.TempDir()
	_, err := git.PlainInit(repoPath, false)
	require.NoError(t, err)

	_, err = ReadHead(repoPath)
	require.Error(t, err)
}

func TestCommitResolver(t *testing.T) {
	repoPath, commit := initRepoWithCommit(t)

	got, ok := CommitResolver{}.HeadCommit(repoPath)
	require.True(t, ok)
	assert.Equal(t, commit, got)

	_, ok = CommitResolver{}.HeadCommit(t.TempDir())
	assert.False(t, ok)
}
