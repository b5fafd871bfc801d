package workspace

import (
	"fmt"

	gogit "github.com/go-git/go-git/v5"
)

// Status is a read-only snapshot of a worktree's checkout state.
type Status struct {
	Branch    string
	HeadHash  string
	Dirty     bool
	FileCount int
}

// Inspect opens worktreePath with go-git (no subprocess spawn) and
// reports its current branch, HEAD commit, and whether it has
// uncommitted changes. Used by startup recovery's orphan-worktree
// cleanup as a cheaper alternative to `git status` for a single check.
func Inspect(worktreePath string) (*Status, error) {
	repo, err := gogit.PlainOpen(worktreePath)
	if err != nil {
		return nil, fmt.Errorf("opening worktree %s: %w", worktreePath, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD in %s: %w", worktreePath, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree handle for %s: %w", worktreePath, err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting status for %s: %w", worktreePath, err)
	}

	return &Status{
		Branch:    head.Name().Short(),
		HeadHash:  head.Hash().String(),
		Dirty:     !st.IsClean(),
		FileCount: len(st),
	}, nil
}
