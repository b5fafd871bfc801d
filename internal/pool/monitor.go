package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"syscall"
	"time"

	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/internal/stream"
	"github.com/claude-swarm/orchestrator/models"
)

const monitorInterval = 5 * time.Second

type waitResult struct {
	exitCode int
	stderr   string
}

// monitor polls a worker's liveness until it exits naturally or is
// killed for exceeding the configured wall-clock timeout, then hands
// off to reconciliation. Runs for the lifetime of one worker.
func (p *Pool) monitor(a *agent) {
	timeout := p.cfg.Agent.Timeout()
	done := make(chan waitResult, 1)
	go func() {
		code, stderr := a.proc.wait()
		done <- waitResult{code, stderr}
	}()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	var res waitResult
	timedOut := false
	sentTerm := false
	var termSentAt time.Time

loop:
	for {
		select {
		case res = <-done:
			break loop
		case <-ticker.C:
			elapsed := time.Since(a.startedAt)
			switch {
			case !timedOut && elapsed > timeout:
				timedOut = true
				sentTerm = true
				termSentAt = time.Now()
				slog.Warn("Worker exceeded timeout, sending SIGTERM", "agent_id", a.agentID, "timeout_seconds", p.cfg.Agent.AgentTimeoutSeconds)
				_ = a.proc.signal(syscall.SIGTERM)
			case sentTerm && time.Since(termSentAt) > 10*time.Second:
				sentTerm = false
				slog.Warn("Worker still alive after grace period, sending SIGKILL", "agent_id", a.agentID)
				_ = a.proc.signal(syscall.SIGKILL)
			}
		}
	}

	p.unregister(a.agentID)
	p.reconcile(a, res.exitCode, res.stderr, timedOut)
}

// reconcile applies a worker's terminal outcome to the Store, releases
// or preserves its workspace, and notifies the completion callback.
// Runs detached from the caller's context — reconciliation must finish
// even if the dispatching poll cycle's context has since been canceled.
func (p *Pool) reconcile(a *agent, exitCode int, stderrOut string, timedOut bool) {
	ctx := context.Background()
	events := a.snapshotEvents()

	turnsUsed := countAssistantEvents(events)
	update := store.WorkerUpdate{Finished: true, TurnsUsed: &turnsUsed}
	if sid, ok := stream.ExtractSessionID(events); ok {
		update.SessionID = &sid
	}

	switch {
	case timedOut:
		status := models.WorkerStatusTimeout
		msg := "exceeded agent timeout"
		update.Status, update.ErrorMessage = &status, &msg
		p.applyWorkerUpdate(ctx, a.agentID, update)
		if a.agentType == models.AgentTypeImplement {
			p.resetIssuePending(ctx, a.issueNumber)
		}
		p.releaseWorkspace(ctx, a.worktree)

	case exitCode != 0 && isRateLimitedExit(stderrOut, events):
		status := models.WorkerStatusRateLimited
		at := time.Now().UTC().Format(time.RFC3339Nano)
		update.Status, update.RateLimitedAt = &status, &at
		p.applyWorkerUpdate(ctx, a.agentID, update)
		slog.Warn("Worker rate-limited, preserving workspace for resume", "agent_id", a.agentID, "issue", a.issueNumber)
		// Workspace, issue status, and attempts are left untouched: a
		// rate-limited worker keeps its claim until resumed or exhausted.

	case exitCode == 0 && a.agentType == models.AgentTypeImplement:
		status := models.WorkerStatusCompleted
		update.Status = &status
		p.applyWorkerUpdate(ctx, a.agentID, update)
		p.reconcileImplement(ctx, a, events)

	case exitCode == 0 && a.agentType == models.AgentTypeFixReview:
		status := models.WorkerStatusCompleted
		update.Status = &status
		p.applyWorkerUpdate(ctx, a.agentID, update)
		p.releaseWorkspace(ctx, a.worktree)

	default:
		status := models.WorkerStatusFailed
		msg := failureMessage(stderrOut, exitCode)
		update.Status, update.ErrorMessage = &status, &msg
		p.applyWorkerUpdate(ctx, a.agentID, update)
		if a.agentType == models.AgentTypeImplement {
			p.resetIssuePending(ctx, a.issueNumber)
		}
		p.releaseWorkspace(ctx, a.worktree)
	}

	p.notifyComplete(ctx, a.agentID)
}

// reconcileImplement follows the implement-worker reconciliation
// procedure: find the PR the worker should have produced through
// progressively more corrective steps before giving up and returning
// the issue to pending.
func (p *Pool) reconcileImplement(ctx context.Context, a *agent, events []*stream.Event) {
	issueNumber := a.issueNumber

	if prNum, ok := stream.ExtractPRNumber(events); ok {
		p.linkPR(ctx, a.agentID, issueNumber, prNum, a.worktree)
		return
	}

	if pr, err := p.gateway.FindOpenPRForBranch(ctx, a.branch); err != nil {
		slog.Warn("Checking for an existing PR failed", "issue", issueNumber, "branch", a.branch, "error", err)
	} else if pr != nil {
		p.linkPR(ctx, a.agentID, issueNumber, pr.Number, a.worktree)
		return
	}

	baseBranch := p.cfg.Forge.BaseBranch
	if exists, err := p.gateway.BranchExistsOnRemote(ctx, p.cfg.Forge.TargetRepoPath, a.branch); err != nil {
		slog.Warn("Checking remote branch existence failed", "issue", issueNumber, "branch", a.branch, "error", err)
	} else if exists {
		if prNum, ok := p.openPR(ctx, issueNumber, a.branch, baseBranch); ok {
			p.linkPR(ctx, a.agentID, issueNumber, prNum, a.worktree)
			return
		}
	}

	hasCommits, err := p.workspace.HasUsableWork(ctx, a.worktree, baseBranch)
	if err != nil {
		slog.Warn("Checking for unpushed commits failed", "issue", issueNumber, "error", err)
	}
	if hasCommits {
		if err := p.workspace.Push(ctx, a.worktree, a.branch); err != nil {
			slog.Error("Pushing branch failed", "issue", issueNumber, "branch", a.branch, "error", err)
		} else if prNum, ok := p.openPR(ctx, issueNumber, a.branch, baseBranch); ok {
			p.linkPR(ctx, a.agentID, issueNumber, prNum, a.worktree)
			return
		}
	}

	msg := "agent exited cleanly but produced no pull request, branch, or commits"
	status := models.WorkerStatusFailed
	p.applyWorkerUpdate(ctx, a.agentID, store.WorkerUpdate{Status: &status, ErrorMessage: &msg})
	p.resetIssuePending(ctx, issueNumber)
	p.releaseWorkspace(ctx, a.worktree)
}

func (p *Pool) openPR(ctx context.Context, issueNumber int64, branch, baseBranch string) (int64, bool) {
	title := fmt.Sprintf("Fix #%d: Auto-created from agent work", issueNumber)
	body := fmt.Sprintf("Closes #%d.\n\nOpened automatically after the agent pushed %s without creating a pull request.", issueNumber, branch)
	prNum, err := p.gateway.CreatePR(ctx, baseBranch, branch, title, body)
	if err != nil {
		slog.Error("Auto-creating PR failed", "issue", issueNumber, "branch", branch, "error", err)
		return 0, false
	}
	return prNum, true
}

func (p *Pool) linkPR(ctx context.Context, agentID string, issueNumber, prNumber int64, worktreePath string) {
	if err := p.store.UpdateWorker(ctx, agentID, store.WorkerUpdate{PRNumber: &prNumber}); err != nil {
		slog.Error("Linking PR to worker failed", "agent_id", agentID, "pr", prNumber, "error", err)
	}
	status := models.IssueStatusPRCreated
	if err := p.store.UpdateIssue(ctx, issueNumber, store.IssueUpdate{Status: &status, PRNumber: &prNumber}); err != nil {
		slog.Error("Linking PR to issue failed", "issue", issueNumber, "pr", prNumber, "error", err)
	}
	p.releaseWorkspace(ctx, worktreePath)
}

func (p *Pool) applyWorkerUpdate(ctx context.Context, agentID string, u store.WorkerUpdate) {
	if err := p.store.UpdateWorker(ctx, agentID, u); err != nil {
		slog.Error("Updating worker record failed", "agent_id", agentID, "error", err)
	}
}

func (p *Pool) resetIssuePending(ctx context.Context, issueNumber int64) {
	status := models.IssueStatusPending
	if err := p.store.UpdateIssue(ctx, issueNumber, store.IssueUpdate{Status: &status, ClearAgentID: true}); err != nil {
		slog.Error("Resetting issue to pending failed", "issue", issueNumber, "error", err)
	}
}

func (p *Pool) releaseWorkspace(ctx context.Context, worktreePath string) {
	if err := p.workspace.Release(ctx, worktreePath); err != nil {
		slog.Error("Releasing workspace failed", "path", worktreePath, "error", err)
	}
}

func (p *Pool) notifyComplete(ctx context.Context, agentID string) {
	if p.onComplete == nil {
		return
	}
	w, err := p.store.GetWorker(ctx, agentID)
	if err != nil {
		slog.Error("Loading reconciled worker for completion callback failed", "agent_id", agentID, "error", err)
		return
	}
	p.onComplete(w)
}

func countAssistantEvents(events []*stream.Event) int {
	n := 0
	for _, e := range events {
		if e.Type == models.EventTypeAssistant {
			n++
		}
	}
	return n
}

func failureMessage(stderrOut string, exitCode int) string {
	s := strings.TrimSpace(stderrOut)
	if s == "" {
		return fmt.Sprintf("agent exited with code %d", exitCode)
	}
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
