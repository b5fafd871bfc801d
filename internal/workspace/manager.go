// Package workspace creates and tracks the per-task git worktrees that
// workers execute in, mirroring the target-repo worktree lifecycle from
// this system's Python ancestor (orchestrator/worktree.py) but against
// the forge.Gateway abstraction instead of shelling out directly.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude-swarm/orchestrator/internal/forge"
)

// Manager creates, tracks, and releases worktrees under a single
// worktree directory against one target repo checkout.
type Manager struct {
	gateway      forge.Gateway
	repoPath     string
	worktreeDir  string
	baseBranch   string
	manifestPath string
}

// New builds a Manager rooted at worktreeDir, operating against the
// git checkout at repoPath.
func New(gateway forge.Gateway, repoPath, worktreeDir, baseBranch string) *Manager {
	return &Manager{
		gateway:      gateway,
		repoPath:     repoPath,
		worktreeDir:  worktreeDir,
		baseBranch:   baseBranch,
		manifestPath: filepath.Join(worktreeDir, ".swarm-manifest.yaml"),
	}
}

// Workspace describes one created worktree.
type Workspace struct {
	Path       string
	BranchName string
}

// issuePath returns the conventional worktree path for an issue.
func (m *Manager) issuePath(issueNumber int64) string {
	return filepath.Join(m.worktreeDir, fmt.Sprintf("issue-%d", issueNumber))
}

// prFixPath returns the conventional worktree path for a PR fix-review.
func (m *Manager) prFixPath(prNumber int64) string {
	return filepath.Join(m.worktreeDir, fmt.Sprintf("pr-fix-%d", prNumber))
}

// EnsureRepoUpdated fetches and fast-forwards the base branch in the
// target repo checkout. Called before every worktree creation so new
// worktrees branch from up-to-date history.
func (m *Manager) EnsureRepoUpdated(ctx context.Context) error {
	return m.gateway.UpdateRepo(ctx, m.repoPath, m.baseBranch)
}

// CreateForIssue creates a fresh worktree on a new fix/issue-N branch
// off base (or m.baseBranch if base is empty). A stale worktree at the
// same path is force-released first.
func (m *Manager) CreateForIssue(ctx context.Context, issueNumber int64, base string) (*Workspace, error) {
	if base == "" {
		base = m.baseBranch
	}
	path := m.issuePath(issueNumber)
	branch := fmt.Sprintf("fix/issue-%d", issueNumber)

	if err := m.releaseIfExists(ctx, path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.worktreeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating worktree dir: %w", err)
	}

	slog.Info("Creating worktree", "path", path, "branch", branch)
	if err := m.gateway.AddWorktree(ctx, m.repoPath, path, branch, base); err != nil {
		return nil, fmt.Errorf("creating worktree for issue %d: %w", issueNumber, err)
	}

	ws := &Workspace{Path: path, BranchName: branch}
	m.recordManifest(ctx, ws)
	return ws, nil
}

// CreateForPRFix fetches branch and creates a worktree checked out onto
// it, for a fix-review worker addressing PR review comments.
func (m *Manager) CreateForPRFix(ctx context.Context, prNumber int64, branch string) (*Workspace, error) {
	path := m.prFixPath(prNumber)

	if err := m.releaseIfExists(ctx, path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.worktreeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating worktree dir: %w", err)
	}

	if err := m.gateway.FetchBranch(ctx, m.repoPath, branch); err != nil {
		slog.Warn("Fetching PR branch before worktree creation failed, continuing", "branch", branch, "error", err)
	}

	slog.Info("Creating worktree for PR fix", "path", path, "branch", branch)
	if err := m.gateway.AddWorktreeForBranch(ctx, m.repoPath, path, branch); err != nil {
		return nil, fmt.Errorf("creating worktree for PR %d: %w", prNumber, err)
	}

	ws := &Workspace{Path: path, BranchName: branch}
	m.recordManifest(ctx, ws)
	return ws, nil
}

// Release force-removes a worktree.
func (m *Manager) Release(ctx context.Context, path string) error {
	slog.Info("Releasing worktree", "path", path)
	if err := m.gateway.RemoveWorktree(ctx, m.repoPath, path); err != nil {
		return fmt.Errorf("removing worktree %s: %w", path, err)
	}
	m.forgetManifest(path)
	return nil
}

func (m *Manager) releaseIfExists(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	slog.Warn("Worktree already exists, removing first", "path", path)
	return m.Release(ctx, path)
}

// List enumerates worktree paths currently registered with git. Used
// during startup recovery to reconcile with the database's Worker rows
// — the directory/registration state is authoritative, the manifest
// cache is only a fast-path hint.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.gateway.ListWorktrees(ctx, m.repoPath)
}

// HasUsableWork reports whether a worktree has commits beyond base,
// used by the Worker Pool's implement-reconciliation procedure to
// decide whether to push/open a PR or fall the issue back to pending.
func (m *Manager) HasUsableWork(ctx context.Context, worktreePath, base string) (bool, error) {
	return m.gateway.HasCommitsSince(ctx, worktreePath, base)
}

// Push pushes a worktree's branch to origin.
func (m *Manager) Push(ctx context.Context, worktreePath, branch string) error {
	return m.gateway.PushBranch(ctx, worktreePath, branch)
}
