package git

import (
	"errors"
	"log/slog"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

var ErrNotRepository = ferrors.NotFoundError("not a git repository").Build()

// Head describes the checked-out revision of a repository.
type Head struct {
	Commit string
	Branch string // empty when HEAD is detached
}

// ReadHead opens the repository containing path (searching parent
// directories) and returns its HEAD.
func ReadHead(path string) (Head, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Head{}, ferrors.WrapError(err, ferrors.CategoryNotFound, ErrNotRepository.Message()).
				WithContext("path", path).
				Build()
		}
		return Head{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to open repository").
			WithContext("path", path).
			Build()
	}

	ref, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Freshly initialised repository with no commits yet.
			return Head{}, ferrors.WrapError(err, ferrors.CategoryNotFound, "repository has no commits").
				WithContext("path", path).
				Build()
		}
		return Head{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve HEAD").
			WithContext("path", path).
			Build()
	}

	head := Head{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		head.Branch = ref.Name().Short()
	}
	return head, nil
}

// CommitResolver stamps build records with the HEAD commit of their root.
type CommitResolver struct{}

// HeadCommit returns the HEAD commit hash of root, or false when root is not
// inside a repository with at least one commit.
func (CommitResolver) HeadCommit(root string) (string, bool) {
	head, err := ReadHead(root)
	if err != nil {
		slog.Debug("No commit for root", logfields.Root(root), logfields.Error(err))
		return "", false
	}
	return head.Commit, true
}
