package pool

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/prompts"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/models"
)

// DispatchImplement prepares a fresh workspace for issueNumber and
// spawns an implement worker in it. The caller is responsible for
// checking invariants (no other running worker for this issue) before
// calling — the pool only enforces its own concurrency cap.
func (p *Pool) DispatchImplement(ctx context.Context, issueNumber int64, title string) (string, error) {
	if !p.CanDispatch() {
		return "", fmt.Errorf("pool full (%d/%d running)", p.runningCount(), p.cfg.Agent.MaxConcurrentAgents)
	}

	if err := p.workspace.EnsureRepoUpdated(ctx); err != nil {
		slog.Warn("Updating target repo before dispatch failed, continuing with existing checkout", "issue", issueNumber, "error", err)
	}

	ws, err := p.workspace.CreateForIssue(ctx, issueNumber, "")
	if err != nil {
		return "", fmt.Errorf("creating workspace for issue #%d: %w", issueNumber, err)
	}

	agentID := fmt.Sprintf("agent-issue-%d-%d", issueNumber, time.Now().Unix())
	proc, err := p.spawn(spawnSpec{
		Prompt:        prompts.Implement(issueNumber, title, "", p.cfg.Agent.AgentMaxTurnsImplement),
		WorkDir:       ws.Path,
		ClaudeToken:   p.cfg.Forge.ClaudeOAuthToken,
		ForgeToken:    p.cfg.Forge.ForgeToken,
		SkillsEnabled: p.cfg.Agent.SkillsEnabled,
	})
	if err != nil {
		_ = p.workspace.Release(ctx, ws.Path)
		return "", fmt.Errorf("spawning implement worker for issue #%d: %w", issueNumber, err)
	}

	pid := proc.Pid()
	w := &models.Worker{
		AgentID:      agentID,
		IssueNumber:  issueNumber,
		AgentType:    models.AgentTypeImplement,
		Status:       models.WorkerStatusRunning,
		WorktreePath: ws.Path,
		BranchName:   ws.BranchName,
		PID:          &pid,
	}
	if err := p.store.CreateWorker(ctx, w); err != nil {
		_ = proc.signal(syscall.SIGTERM)
		_ = p.workspace.Release(ctx, ws.Path)
		return "", fmt.Errorf("persisting worker %s: %w", agentID, err)
	}

	inProgress := models.IssueStatusInProgress
	aid := agentID
	if err := p.store.UpdateIssue(ctx, issueNumber, store.IssueUpdate{
		Status: &inProgress, AgentID: &aid, IncrementAttempt: true,
	}); err != nil {
		slog.Error("Marking issue in_progress after dispatch failed", "issue", issueNumber, "error", err)
	}

	p.start(&agent{
		agentID:     agentID,
		issueNumber: issueNumber,
		agentType:   models.AgentTypeImplement,
		worktree:    ws.Path,
		branch:      ws.BranchName,
		startedAt:   time.Now(),
		proc:        proc,
	})

	slog.Info("Dispatched implement worker", "agent_id", agentID, "issue", issueNumber)
	return agentID, nil
}

// DispatchFixReview prepares a workspace checked out onto an existing
// PR branch and spawns a fix-review worker against the given unresolved
// comments (or none, if the dispatch is purely to address failing CI).
func (p *Pool) DispatchFixReview(ctx context.Context, prNumber, issueNumber int64, branch string, comments []forge.ReviewComment) (string, error) {
	if !p.CanDispatch() {
		return "", fmt.Errorf("pool full (%d/%d running)", p.runningCount(), p.cfg.Agent.MaxConcurrentAgents)
	}

	if err := p.workspace.EnsureRepoUpdated(ctx); err != nil {
		slog.Warn("Updating target repo before dispatch failed, continuing with existing checkout", "pr", prNumber, "error", err)
	}

	ws, err := p.workspace.CreateForPRFix(ctx, prNumber, branch)
	if err != nil {
		return "", fmt.Errorf("creating workspace for PR #%d: %w", prNumber, err)
	}

	agentID := fmt.Sprintf("agent-pr-fix-%d-%d", prNumber, time.Now().Unix())
	proc, err := p.spawn(spawnSpec{
		Prompt:        prompts.FixReview(prNumber, issueNumber, comments, p.cfg.Agent.AgentMaxTurnsFix),
		WorkDir:       ws.Path,
		ClaudeToken:   p.cfg.Forge.ClaudeOAuthToken,
		ForgeToken:    p.cfg.Forge.ForgeToken,
		SkillsEnabled: p.cfg.Agent.SkillsEnabled,
	})
	if err != nil {
		_ = p.workspace.Release(ctx, ws.Path)
		return "", fmt.Errorf("spawning fix-review worker for PR #%d: %w", prNumber, err)
	}

	pid := proc.Pid()
	pr := prNumber
	w := &models.Worker{
		AgentID:      agentID,
		IssueNumber:  issueNumber,
		PRNumber:     &pr,
		AgentType:    models.AgentTypeFixReview,
		Status:       models.WorkerStatusRunning,
		WorktreePath: ws.Path,
		BranchName:   ws.BranchName,
		PID:          &pid,
	}
	if err := p.store.CreateWorker(ctx, w); err != nil {
		_ = proc.signal(syscall.SIGTERM)
		_ = p.workspace.Release(ctx, ws.Path)
		return "", fmt.Errorf("persisting worker %s: %w", agentID, err)
	}

	p.start(&agent{
		agentID:     agentID,
		issueNumber: issueNumber,
		prNumber:    &pr,
		agentType:   models.AgentTypeFixReview,
		worktree:    ws.Path,
		branch:      ws.BranchName,
		startedAt:   time.Now(),
		proc:        proc,
	})

	slog.Info("Dispatched fix-review worker", "agent_id", agentID, "pr", prNumber, "issue", issueNumber)
	return agentID, nil
}
