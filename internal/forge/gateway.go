// Package forge talks to the code-forge (GitHub) and the local git
// checkout by shelling out to the gh and git CLIs, mirroring how this
// system's Python ancestor drove both tools as subprocesses.
package forge

import (
	"context"
	"time"
)

// Issue is an open forge issue eligible for dispatch.
type Issue struct {
	Number int64
	Title  string
	Body   string
	Labels []string
}

// PullRequest is a minimal view of an open PR this orchestrator created.
type PullRequest struct {
	Number        int64
	HeadRefName   string
	HeadRepoOwner string
}

// CheckRun is one CI check reported against a PR's head commit.
type CheckRun struct {
	Name       string
	State      string // queued, in_progress, completed
	Conclusion string // CLI: gh's bucket (pass, fail, pending, skipping, cancel); GraphQL-style values (failure, timed_out, ...) are also recognized
}

// ReviewComment is one inline review comment left on a PR diff.
type ReviewComment struct {
	ID        int64
	Body      string
	Path      string
	CreatedAt time.Time
	Resolved  bool
}

// ThreadComment is one comment within a structured review thread.
type ThreadComment struct {
	Body   string
	Author string
}

// ReviewThread is one review thread as reported by the forge's
// structured query API, with authoritative resolution status — the
// primary signal the PR Reviewer uses to decide whether a PR needs
// more fixes.
type ReviewThread struct {
	IsResolved bool
	Path       string
	Line       int
	Comments   []ThreadComment
}

// Gateway is everything the Control Plane and Worker Pool need from the
// forge and the local git checkout. A real implementation shells out to
// gh/git; tests inject a fake.
type Gateway interface {
	// ListOpenIssues returns open issues carrying the trigger label.
	ListOpenIssues(ctx context.Context, label string) ([]Issue, error)
	// AddLabel attaches a label to an issue (used to mark needs_human).
	AddLabel(ctx context.Context, issueNumber int64, label string) error
	// CommentOnIssue posts a comment on an issue. Best-effort by callers.
	CommentOnIssue(ctx context.Context, issueNumber int64, body string) error
	// IssueComments returns the bodies of every comment on an issue, used
	// to check for a trigger mention before dispatching a pending issue.
	IssueComments(ctx context.Context, issueNumber int64) ([]string, error)

	// FindOpenPRForBranch returns the open PR whose head is branch, or
	// nil if none exists.
	FindOpenPRForBranch(ctx context.Context, branch string) (*PullRequest, error)
	// CreatePR opens a PR from head onto base and returns its number.
	CreatePR(ctx context.Context, base, head, title, body string) (int64, error)
	// PRHeadBranch returns a PR's head branch name.
	PRHeadBranch(ctx context.Context, prNumber int64) (string, error)
	// PRReviewComments returns inline review comments on a PR's diff.
	// This is the REST fallback used when PRReviewThreads returns an error.
	PRReviewComments(ctx context.Context, prNumber int64) ([]ReviewComment, error)
	// PRReviewThreads queries the forge's structured query API for
	// per-thread resolution status. Any error (including a response
	// that fails to parse) signals the caller to fall back to the
	// REST comment-count heuristic.
	PRReviewThreads(ctx context.Context, prNumber int64) ([]ReviewThread, error)
	// PRChecks returns the CI checks reported against a PR's head commit.
	PRChecks(ctx context.Context, prNumber int64) ([]CheckRun, error)

	// UpdateRepo fetches and pulls the latest base branch into the
	// target repo checkout before a fresh worktree is created from it.
	UpdateRepo(ctx context.Context, repoPath, baseBranch string) error
	// FetchBranch fetches a remote branch into the local checkout.
	FetchBranch(ctx context.Context, repoPath, branch string) error
	// BranchExistsOnRemote reports whether branch exists on origin.
	BranchExistsOnRemote(ctx context.Context, repoPath, branch string) (bool, error)
	// HasCommitsSince reports whether HEAD has commits beyond base in a
	// worktree, used to decide whether an implement worker produced
	// usable work.
	HasCommitsSince(ctx context.Context, worktreePath, base string) (bool, error)
	// PushBranch pushes branch to origin from worktreePath, creating the
	// upstream if absent.
	PushBranch(ctx context.Context, worktreePath, branch string) error

	// AddWorktree creates a new worktree at path on a new branch created
	// off base.
	AddWorktree(ctx context.Context, repoPath, path, branch, base string) error
	// AddWorktreeForBranch creates a worktree at path checked out onto an
	// existing branch (used for fix-review workers).
	AddWorktreeForBranch(ctx context.Context, repoPath, path, branch string) error
	// RemoveWorktree force-removes a worktree.
	RemoveWorktree(ctx context.Context, repoPath, path string) error
	// ListWorktrees lists the repo's registered worktrees.
	ListWorktrees(ctx context.Context, repoPath string) ([]string, error)
}
