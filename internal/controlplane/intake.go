package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/models"
)

// runIntakeLoop polls the forge for open issues carrying the trigger
// label, records newly discovered ones, and dispatches implement
// workers for anything eligible. Mirrors the discovery-then-dispatch
// cycle this project's Python ancestor ran from orchestrator's issue
// poller, adding the MaxIssueRetries ceiling and needs_human
// escalation that snapshot never implemented.
func (e *Engine) runIntakeLoop(ctx context.Context) {
	var bo pollBackoff
	for {
		if err := e.intakeCycle(ctx); err != nil {
			slog.Error("Issue intake cycle failed", "error", err)
			bo.recordFailure()
		} else {
			bo.recordSuccess()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.interval(e.cfg.Agent.PollInterval())):
		}
	}
}

func (e *Engine) intakeCycle(ctx context.Context) error {
	issues, err := e.gateway.ListOpenIssues(ctx, e.cfg.Forge.IssueLabel)
	if err != nil {
		return err
	}

	for _, iss := range issues {
		e.recordDiscoveredIssue(ctx, iss)
	}

	if err := e.healResolvedIssues(ctx); err != nil {
		slog.Error("Self-healing resolved issues failed", "error", err)
	}

	pending, err := e.store.ListIssuesByStatus(ctx, models.IssueStatusPending)
	if err != nil {
		return err
	}

	for _, issue := range pending {
		if issue.Attempts >= e.cfg.Agent.MaxIssueRetries {
			e.escalateToNeedsHuman(ctx, issue, "exceeded the maximum number of implement attempts")
			continue
		}
		triggered, err := e.isTriggered(ctx, issue.IssueNumber)
		if err != nil {
			slog.Error("Checking trigger mention failed", "issue", issue.IssueNumber, "error", err)
			continue
		}
		if !triggered {
			continue
		}
		if !e.dispatch.CanDispatch() {
			break
		}
		running, err := e.store.RunningWorkerForIssue(ctx, issue.IssueNumber)
		if err != nil {
			slog.Error("Checking for a running worker failed", "issue", issue.IssueNumber, "error", err)
			continue
		}
		if running != nil {
			continue
		}
		if _, err := e.dispatch.DispatchImplement(ctx, issue.IssueNumber, issue.Title); err != nil {
			slog.Error("Dispatching implement worker failed", "issue", issue.IssueNumber, "error", err)
		}
	}
	return nil
}

// recordDiscoveredIssue inserts a never-seen issue, checking first for an
// already-open PR on its fix/issue-N branch so an issue whose work is
// already under review doesn't re-enter the pending/dispatch path.
func (e *Engine) recordDiscoveredIssue(ctx context.Context, iss forge.Issue) {
	exists, err := e.store.IssueExists(ctx, iss.Number)
	if err != nil {
		slog.Error("Checking issue existence failed", "issue", iss.Number, "error", err)
		return
	}
	if exists {
		return
	}

	branch := fmt.Sprintf("fix/issue-%d", iss.Number)
	pr, err := e.gateway.FindOpenPRForBranch(ctx, branch)
	if err != nil {
		slog.Error("Checking for an existing PR failed", "issue", iss.Number, "error", err)
		pr = nil
	}

	issue := &models.Issue{
		IssueNumber: iss.Number,
		Title:       iss.Title,
		Status:      models.IssueStatusPending,
	}
	if pr != nil {
		issue.Status = models.IssueStatusPRCreated
		prNumber := pr.Number
		issue.PRNumber = &prNumber
	}
	if err := e.store.CreateIssue(ctx, issue); err != nil {
		slog.Error("Recording newly discovered issue failed", "issue", iss.Number, "error", err)
	}
}

// healResolvedIssues reverts a resolved issue back to pr_created when the
// forge still shows its PR open, so a premature or mistaken resolution
// gets picked back up by the PR Reviewer.
func (e *Engine) healResolvedIssues(ctx context.Context) error {
	resolved, err := e.store.ListIssuesByStatus(ctx, models.IssueStatusResolved)
	if err != nil {
		return err
	}
	for _, issue := range resolved {
		if issue.PRNumber == nil {
			continue
		}
		branch, err := e.gateway.PRHeadBranch(ctx, *issue.PRNumber)
		if err != nil {
			slog.Error("Checking resolved issue's PR failed", "issue", issue.IssueNumber, "error", err)
			continue
		}
		pr, err := e.gateway.FindOpenPRForBranch(ctx, branch)
		if err != nil {
			slog.Error("Checking resolved issue's PR failed", "issue", issue.IssueNumber, "error", err)
			continue
		}
		if pr == nil {
			continue
		}
		status := models.IssueStatusPRCreated
		if err := e.store.UpdateIssue(ctx, issue.IssueNumber, store.IssueUpdate{Status: &status}); err != nil {
			slog.Error("Reverting resolved issue to pr_created failed", "issue", issue.IssueNumber, "error", err)
			continue
		}
		slog.Warn("Issue reverted from resolved to pr_created, its PR is still open", "issue", issue.IssueNumber)
	}
	return nil
}

// isTriggered reports whether a pending issue has a comment containing
// the configured trigger mention. An empty TriggerMention disables
// triggering entirely, making every pending issue immediately eligible.
func (e *Engine) isTriggered(ctx context.Context, issueNumber int64) (bool, error) {
	mention := e.cfg.Forge.TriggerMention
	if mention == "" {
		return true, nil
	}
	comments, err := e.gateway.IssueComments(ctx, issueNumber)
	if err != nil {
		return false, err
	}
	mention = strings.ToLower(mention)
	for _, body := range comments {
		if strings.Contains(strings.ToLower(body), mention) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) escalateToNeedsHuman(ctx context.Context, issue models.Issue, reason string) {
	if issue.Status == models.IssueStatusNeedsHuman {
		return
	}
	status := models.IssueStatusNeedsHuman
	if err := e.store.UpdateIssue(ctx, issue.IssueNumber, store.IssueUpdate{Status: &status, ClearAgentID: true}); err != nil {
		slog.Error("Escalating issue to needs_human failed", "issue", issue.IssueNumber, "error", err)
		return
	}
	if err := e.gateway.AddLabel(ctx, issue.IssueNumber, "needs-human"); err != nil {
		slog.Warn("Labeling escalated issue failed", "issue", issue.IssueNumber, "error", err)
	}
	if err := e.gateway.CommentOnIssue(ctx, issue.IssueNumber, "This issue "+reason+" and needs a human to take over."); err != nil {
		slog.Warn("Commenting on escalated issue failed", "issue", issue.IssueNumber, "error", err)
	}
	slog.Warn("Issue escalated to needs_human", "issue", issue.IssueNumber, "reason", reason)
}
