package controlplane

import (
	"context"
	"log/slog"

	gops "github.com/mitchellh/go-ps"

	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/internal/workspace"
	"github.com/claude-swarm/orchestrator/models"
)

// recover reconciles persisted running-worker rows against live
// process state on startup, the same gap this project's ancestor left
// for an operator to close by hand. A worker whose pid is still alive
// is left alone: recovery does not reattach a reader or monitor to it,
// so it finishes unsupervised and its row stays running until a later
// startup finds its pid gone. A worker whose pid is gone is marked failed
// and its claim released so the issue is picked back up.
func (e *Engine) recover(ctx context.Context) error {
	running, err := e.store.ListRunningWorkers(ctx)
	if err != nil {
		return err
	}

	for _, w := range running {
		if w.PID != nil && pidAlive(*w.PID) {
			slog.Info("Recovered worker still running, leaving it alone", "agent_id", w.AgentID, "pid", *w.PID)
			continue
		}
		slog.Warn("Recovered worker's process is gone, marking interrupted", "agent_id", w.AgentID)
		status := models.WorkerStatusFailed
		msg := "interrupted by supervisor restart"
		if err := e.store.UpdateWorker(ctx, w.AgentID, store.WorkerUpdate{Status: &status, ErrorMessage: &msg, Finished: true}); err != nil {
			slog.Error("Marking interrupted worker failed", "agent_id", w.AgentID, "error", err)
		}
		if w.AgentType == models.AgentTypeImplement {
			pending := models.IssueStatusPending
			if err := e.store.UpdateIssue(ctx, w.IssueNumber, store.IssueUpdate{Status: &pending, ClearAgentID: true}); err != nil {
				slog.Error("Resetting issue after interrupted worker failed", "issue", w.IssueNumber, "error", err)
			}
		}
		if err := e.workspace.Release(ctx, w.WorktreePath); err != nil {
			slog.Warn("Releasing interrupted worker's workspace failed", "path", w.WorktreePath, "error", err)
		}
	}

	rateLimited, err := e.store.ListRateLimitedWorkers(ctx)
	if err != nil {
		return err
	}

	claimed := make(map[string]bool, len(running)+len(rateLimited))
	for _, w := range running {
		claimed[w.WorktreePath] = true
	}
	for _, w := range rateLimited {
		claimed[w.WorktreePath] = true
	}
	e.releaseOrphanWorktrees(ctx, claimed)

	slog.Info("Startup recovery complete", "reconciled_running", len(running), "rate_limited_preserved", len(rateLimited))
	return nil
}

// releaseOrphanWorktrees removes worktrees that survived a crash but
// belong to no still-claimed worker. List() asks git directly; if that
// fails (e.g. the target repo is unreachable on this restart), the
// on-disk manifest is consulted as a fast-path fallback per its own
// stated purpose. Each orphan is inspected with go-git before removal:
// a dirty worktree (uncommitted work) is left for a human to look at
// rather than silently discarded.
func (e *Engine) releaseOrphanWorktrees(ctx context.Context, claimed map[string]bool) {
	paths, err := e.workspace.List(ctx)
	if err != nil {
		slog.Warn("Listing worktrees via git failed, falling back to the manifest cache", "error", err)
		paths, err = e.workspace.CachedWorktrees()
		if err != nil {
			slog.Warn("Reading worktree manifest cache failed, skipping orphan cleanup", "error", err)
			return
		}
	}

	for _, path := range paths {
		if claimed[path] {
			continue
		}
		status, err := workspace.Inspect(path)
		if err != nil {
			slog.Warn("Inspecting orphaned worktree failed, leaving it in place", "path", path, "error", err)
			continue
		}
		if status.Dirty {
			slog.Warn("Orphaned worktree has uncommitted changes, leaving it for manual review", "path", path, "branch", status.Branch)
			continue
		}
		if err := e.workspace.Release(ctx, path); err != nil {
			slog.Warn("Releasing orphaned worktree failed", "path", path, "error", err)
			continue
		}
		slog.Info("Released orphaned worktree left over from a prior run", "path", path, "branch", status.Branch)
	}
}

func pidAlive(pid int) bool {
	proc, err := gops.FindProcess(pid)
	return err == nil && proc != nil
}
