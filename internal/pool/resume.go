package pool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/claude-swarm/orchestrator/internal/prompts"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/models"
)

// ResumeRateLimited spawns a fresh subprocess against a rate-limited
// worker's preserved workspace, resuming its assistant session (or
// falling back to --continue if no session id was captured), and
// registers the resumption as a new Worker row chained to the old one.
func (p *Pool) ResumeRateLimited(ctx context.Context, old models.Worker) (string, error) {
	if old.ResumeCount+1 > p.cfg.Agent.MaxRateLimitResumes {
		msg := fmt.Sprintf("exceeded max rate-limit resumes (%d)", p.cfg.Agent.MaxRateLimitResumes)
		p.failResumeChain(ctx, old, msg)
		return "", fmt.Errorf("agent %s: %s", old.AgentID, msg)
	}
	if _, err := os.Stat(old.WorktreePath); err != nil {
		p.failResumeChain(ctx, old, "worktree lost while rate-limited")
		return "", fmt.Errorf("agent %s: worktree %s no longer exists", old.AgentID, old.WorktreePath)
	}
	if !p.CanDispatch() {
		return "", fmt.Errorf("pool full (%d/%d running)", p.runningCount(), p.cfg.Agent.MaxConcurrentAgents)
	}

	maxTurns := p.cfg.Agent.AgentMaxTurnsImplement
	if old.AgentType == models.AgentTypeFixReview {
		maxTurns = p.cfg.Agent.AgentMaxTurnsFix
	}

	spec := spawnSpec{
		Prompt:        prompts.Resume(old.IssueNumber, maxTurns),
		WorkDir:       old.WorktreePath,
		ClaudeToken:   p.cfg.Forge.ClaudeOAuthToken,
		ForgeToken:    p.cfg.Forge.ForgeToken,
		SkillsEnabled: p.cfg.Agent.SkillsEnabled,
	}
	if old.SessionID != nil && *old.SessionID != "" {
		spec.ResumeSessionID = *old.SessionID
	} else {
		spec.Continue = true
	}

	proc, err := p.spawn(spec)
	if err != nil {
		return "", fmt.Errorf("spawning resumed worker for agent %s: %w", old.AgentID, err)
	}

	resumeCount := old.ResumeCount + 1
	newID := fmt.Sprintf("%s-resume-%d", old.AgentID, resumeCount)
	pid := proc.Pid()
	w := &models.Worker{
		AgentID:      newID,
		IssueNumber:  old.IssueNumber,
		PRNumber:     old.PRNumber,
		AgentType:    old.AgentType,
		Status:       models.WorkerStatusRunning,
		WorktreePath: old.WorktreePath,
		BranchName:   old.BranchName,
		PID:          &pid,
		ResumeCount:  resumeCount,
	}
	if err := p.store.CreateWorker(ctx, w); err != nil {
		_ = proc.signal(syscall.SIGTERM)
		return "", fmt.Errorf("persisting resumed worker %s: %w", newID, err)
	}

	resumedStatus := models.WorkerStatusResumed
	if err := p.store.UpdateWorker(ctx, old.AgentID, store.WorkerUpdate{Status: &resumedStatus, Finished: true}); err != nil {
		slog.Error("Marking rate-limited worker as resumed failed", "agent_id", old.AgentID, "error", err)
	}
	if old.AgentType == models.AgentTypeImplement {
		agentIDCopy := newID
		if err := p.store.UpdateIssue(ctx, old.IssueNumber, store.IssueUpdate{AgentID: &agentIDCopy}); err != nil {
			slog.Error("Repointing issue to resumed worker failed", "issue", old.IssueNumber, "error", err)
		}
	}

	p.start(&agent{
		agentID:     newID,
		issueNumber: old.IssueNumber,
		prNumber:    old.PRNumber,
		agentType:   old.AgentType,
		worktree:    old.WorktreePath,
		branch:      old.BranchName,
		startedAt:   time.Now(),
		proc:        proc,
	})

	slog.Info("Resumed rate-limited worker", "old_agent_id", old.AgentID, "new_agent_id", newID, "resume_count", resumeCount)
	return newID, nil
}

func (p *Pool) failResumeChain(ctx context.Context, old models.Worker, msg string) {
	status := models.WorkerStatusFailed
	if err := p.store.UpdateWorker(ctx, old.AgentID, store.WorkerUpdate{Status: &status, ErrorMessage: &msg, Finished: true}); err != nil {
		slog.Error("Failing exhausted resume chain failed", "agent_id", old.AgentID, "error", err)
	}
	if old.AgentType == models.AgentTypeImplement {
		p.resetIssuePending(ctx, old.IssueNumber)
	}
	p.releaseWorkspace(ctx, old.WorktreePath)
}

// Probe sends a trivial one-turn prompt to the assistant to check
// whether a prior rate limit has cleared. It runs outside the pool's
// concurrency accounting and registry — it never becomes a tracked
// agent regardless of outcome.
func (p *Pool) Probe(ctx context.Context) bool {
	proc, err := p.spawn(spawnSpec{
		Prompt:      "Reply with just the word OK.",
		WorkDir:     p.cfg.Forge.TargetRepoPath,
		ClaudeToken: p.cfg.Forge.ClaudeOAuthToken,
		ForgeToken:  p.cfg.Forge.ForgeToken,
	})
	if err != nil {
		slog.Debug("Rate-limit probe failed to spawn", "error", err)
		return false
	}

	exitCode, stderrOut, timedOut := waitWithTimeout(proc, 60*time.Second)
	if timedOut {
		slog.Debug("Rate-limit probe timed out, assuming still limited")
		return false
	}
	if exitCode == 0 {
		return true
	}
	if isRateLimitOutput(stderrOut) {
		return false
	}
	// A non-zero exit for some other reason is treated as capacity
	// being available, matching this project's ancestor probe behavior.
	return true
}
