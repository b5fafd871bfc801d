package controlplane

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/models"
)

// runPRReviewerLoop polls every open PR for failing CI or outstanding
// review feedback and dispatches fix-review workers against it.
// Grounded on this project's Python ancestor's PR poller: a structural
// thread-resolution query is the primary signal, with a REST
// comment-count heuristic as fallback when the structural query fails.
func (e *Engine) runPRReviewerLoop(ctx context.Context) {
	var bo pollBackoff
	for {
		if err := e.prReviewCycle(ctx); err != nil {
			slog.Error("PR review cycle failed", "error", err)
			bo.recordFailure()
		} else {
			bo.recordSuccess()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.interval(e.cfg.Agent.PRPollInterval())):
		}
	}
}

func (e *Engine) prReviewCycle(ctx context.Context) error {
	issues, err := e.store.ListIssuesByStatus(ctx, models.IssueStatusPRCreated)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		if issue.PRNumber == nil {
			continue
		}
		e.reviewOnePR(ctx, issue, *issue.PRNumber)
	}
	return nil
}

// reviewOnePR runs the review-and-fix cycle for a single PR:
//  1. escalate if the fix-attempt ceiling has been exceeded
//  2. skip if a fix-review worker is already running against it
//  3. skip if CI is still in progress
//  4. dispatch a fix-review worker if CI failed
//  5. dispatch a fix-review worker for unresolved structural threads
//  6. fall back to a REST comment-count heuristic if the structural
//     query itself failed, and mark resolved only once that heuristic
//     stops seeing growth
func (e *Engine) reviewOnePR(ctx context.Context, issue models.Issue, prNumber int64) {
	iterations, err := e.store.CountPRReviewIterations(ctx, prNumber)
	if err != nil {
		slog.Error("Counting PR review iterations failed", "pr", prNumber, "error", err)
		return
	}
	if iterations >= e.cfg.Agent.MaxPRFixRetries {
		e.escalateToNeedsHuman(ctx, issue, "exceeded the maximum number of PR fix attempts")
		return
	}

	if running, err := e.store.RunningFixReviewWorkerForPR(ctx, prNumber); err != nil {
		slog.Error("Checking for a running fix-review worker failed", "pr", prNumber, "error", err)
		return
	} else if running != nil {
		return
	}

	if !e.dispatch.CanDispatch() {
		return
	}

	branch, err := e.gateway.PRHeadBranch(ctx, prNumber)
	if err != nil {
		slog.Error("Fetching PR head branch failed", "pr", prNumber, "error", err)
		return
	}

	if checks, err := e.gateway.PRChecks(ctx, prNumber); err != nil {
		slog.Warn("Fetching PR checks failed, reviewing feedback anyway", "pr", prNumber, "error", err)
	} else {
		for _, c := range checks {
			if checkPending(c) {
				return // CI still running, try again next cycle
			}
		}
		for _, c := range checks {
			if checkFailed(c) {
				e.dispatchFixOnBranch(ctx, issue, prNumber, branch, nil, "failing CI checks")
				return
			}
		}
	}

	threads, err := e.gateway.PRReviewThreads(ctx, prNumber)
	if err == nil {
		unresolved := unresolvedComments(threads)
		if len(unresolved) == 0 {
			e.markResolved(ctx, issue, prNumber)
			return
		}
		e.dispatchFixOnBranch(ctx, issue, prNumber, branch, unresolved, "unresolved review threads")
		return
	}
	slog.Warn("Structural review-thread query failed, falling back to comment count", "pr", prNumber, "error", err)

	comments, cerr := e.gateway.PRReviewComments(ctx, prNumber)
	if cerr != nil {
		slog.Error("REST review-comment fallback failed", "pr", prNumber, "error", cerr)
		return
	}
	latest, lerr := e.store.LatestPRReviewIteration(ctx, prNumber)
	if lerr != nil {
		slog.Error("Loading latest PR review iteration failed", "pr", prNumber, "error", lerr)
		return
	}
	if len(comments) == 0 {
		if latest != nil {
			e.markResolved(ctx, issue, prNumber)
		}
		return
	}
	if latest != nil && len(comments) <= latest.CommentsCount {
		// Comment count hasn't grown since the last fix pass went out,
		// so the PR is treated as resolved. A reviewer re-opening exactly
		// as many threads as were just fixed would be missed here — the
		// known cost of not having a working structural query.
		e.markResolved(ctx, issue, prNumber)
		return
	}
	e.dispatchFixOnBranch(ctx, issue, prNumber, branch, comments, "new review comments (REST fallback)")
}

func (e *Engine) dispatchFixOnBranch(ctx context.Context, issue models.Issue, prNumber int64, branch string, comments []forge.ReviewComment, reason string) {
	agentID, err := e.dispatch.DispatchFixReview(ctx, prNumber, issue.IssueNumber, branch, comments)
	if err != nil {
		slog.Error("Dispatching fix-review worker failed", "pr", prNumber, "reason", reason, "error", err)
		return
	}

	n, err := e.store.CountPRReviewIterations(ctx, prNumber)
	if err != nil {
		slog.Error("Counting PR review iterations failed", "pr", prNumber, "error", err)
	}
	commentsJSON, _ := json.Marshal(comments)
	it := &models.PRReviewIteration{
		PRNumber:      prNumber,
		Iteration:     n + 1,
		CommentsCount: len(comments),
		CommentsJSON:  string(commentsJSON),
		AgentID:       &agentID,
		Status:        "dispatched",
	}
	if err := e.store.CreatePRReviewIteration(ctx, it); err != nil {
		slog.Error("Recording PR review iteration failed", "pr", prNumber, "error", err)
	}
	slog.Info("Dispatched fix-review worker", "pr", prNumber, "agent_id", agentID, "reason", reason)
}

func (e *Engine) markResolved(ctx context.Context, issue models.Issue, prNumber int64) {
	status := models.IssueStatusResolved
	if err := e.store.UpdateIssue(ctx, issue.IssueNumber, store.IssueUpdate{Status: &status}); err != nil {
		slog.Error("Marking issue resolved failed", "issue", issue.IssueNumber, "error", err)
		return
	}
	slog.Info("Issue resolved, PR has no outstanding feedback", "issue", issue.IssueNumber, "pr", prNumber)
}

func unresolvedComments(threads []forge.ReviewThread) []forge.ReviewComment {
	var out []forge.ReviewComment
	for _, t := range threads {
		if t.IsResolved {
			continue
		}
		body := ""
		for i, c := range t.Comments {
			if i > 0 {
				body += "\n---\n"
			}
			body += c.Author + ": " + c.Body
		}
		out = append(out, forge.ReviewComment{Path: t.Path, Body: body})
	}
	return out
}

// checkPending reports whether a check run hasn't finished yet: its
// state is queued/in_progress/pending, or its gh bucket (carried in
// Conclusion) is "pending". Anything else (including an empty value
// from a minimal fake) counts as finished rather than stalling the
// poller forever.
func checkPending(c forge.CheckRun) bool {
	if c.Conclusion == "pending" {
		return true
	}
	switch c.State {
	case "queued", "in_progress", "pending":
		return true
	default:
		return false
	}
}

// checkFailed reports whether a finished check run failed. gh's
// --json bucket field uses "fail", but GitHub's GraphQL conclusion
// enum uses "failure" — accept both along with timeout/cancellation.
func checkFailed(c forge.CheckRun) bool {
	switch c.Conclusion {
	case "failure", "fail", "timed_out", "cancelled", "cancel":
		return true
	default:
		return false
	}
}
