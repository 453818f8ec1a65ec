package git

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// OpenRepository opens the Git repository containing path, searching parent
// directories for the .git directory.
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
}

// ReadRevision describes HEAD of the repository holding the corpus at path.
// It returns (nil, nil) when path is not inside a Git repository or the
// repository has no commits yet.
func ReadRevision(path string) (*Revision, error) {
	repo, err := OpenRepository(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus repository: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	rev := &Revision{
		Hash:        commit.Hash.String(),
		ShortHash:   commit.Hash.String()[:8],
		Subject:     parseSubject(commit.Message),
		Author:      ParseAuthor(commit.Author),
		CommittedAt: commit.Committer.When,
		RemoteURL:   GetRemoteURL(repo, "origin"),
	}
	if head.Name().IsBranch() {
		rev.Branch = head.Name().Short()
	}

	dirty, err := isDirty(repo)
	if err != nil {
		return nil, err
	}
	rev.Dirty = dirty

	return rev, nil
}

// ParseAuthor converts go-git Signature to Author
func ParseAuthor(sig object.Signature) Author {
	return Author{
		Name:  sig.Name,
		Email: sig.Email,
		When:  sig.When,
	}
}

// parseSubject returns the first line of a commit message
func parseSubject(message string) string {
	subject, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(subject)
}

func isDirty(repo *git.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to read worktree status: %w", err)
	}
	return !status.IsClean(), nil
}

// GetRemoteURL returns the URL for a given remote name (e.g., "origin")
// Returns empty string if remote doesn't exist
func GetRemoteURL(repo *git.Repository, remoteName string) string {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return ""
	}

	config := remote.Config()
	if len(config.URLs) == 0 {
		return ""
	}

	return config.URLs[0]
}
