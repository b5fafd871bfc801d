package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/claude-swarm/orchestrator/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIssueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	issue := &models.Issue{IssueNumber: 42, Title: "fix the thing", Status: models.IssueStatusPending}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	got, err := s.GetIssue(ctx, 42)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if got.Title != "fix the thing" || got.Status != models.IssueStatusPending {
		t.Fatalf("unexpected issue: %+v", got)
	}

	status := models.IssueStatusInProgress
	agent := "agent-issue-42-1"
	if err := s.UpdateIssue(ctx, 42, IssueUpdate{Status: &status, AgentID: &agent, IncrementAttempt: true}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	got, err = s.GetIssue(ctx, 42)
	if err != nil {
		t.Fatalf("GetIssue after update: %v", err)
	}
	if got.Status != models.IssueStatusInProgress || got.AgentID == nil || *got.AgentID != agent || got.Attempts != 1 {
		t.Fatalf("update did not apply: %+v", got)
	}
}

func TestIssueExistsMissing(t *testing.T) {
	s := openTestStore(t)
	ok, err := s.IssueExists(context.Background(), 999)
	if err != nil {
		t.Fatalf("IssueExists: %v", err)
	}
	if ok {
		t.Fatal("expected issue 999 not to exist")
	}
}

func TestWorkerLifecycleAndQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	issue := &models.Issue{IssueNumber: 7, Title: "t", Status: models.IssueStatusPending}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	w := &models.Worker{
		AgentID:      "agent-issue-7-1",
		IssueNumber:  7,
		AgentType:    models.AgentTypeImplement,
		Status:       models.WorkerStatusRunning,
		WorktreePath: "/tmp/issue-7",
		BranchName:   "fix/issue-7",
	}
	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	running, err := s.ListRunningWorkers(ctx)
	if err != nil {
		t.Fatalf("ListRunningWorkers: %v", err)
	}
	if len(running) != 1 || running[0].AgentID != w.AgentID {
		t.Fatalf("unexpected running workers: %+v", running)
	}

	byIssue, err := s.RunningWorkerForIssue(ctx, 7)
	if err != nil {
		t.Fatalf("RunningWorkerForIssue: %v", err)
	}
	if byIssue == nil || byIssue.AgentID != w.AgentID {
		t.Fatalf("expected worker for issue 7, got %+v", byIssue)
	}

	turns := 4
	status := models.WorkerStatusCompleted
	if err := s.UpdateWorker(ctx, w.AgentID, WorkerUpdate{Status: &status, TurnsUsed: &turns, Finished: true}); err != nil {
		t.Fatalf("UpdateWorker: %v", err)
	}

	got, err := s.GetWorker(ctx, w.AgentID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Status != models.WorkerStatusCompleted || got.TurnsUsed != 4 || got.FinishedAt == nil {
		t.Fatalf("unexpected worker after update: %+v", got)
	}

	running, err = s.ListRunningWorkers(ctx)
	if err != nil {
		t.Fatalf("ListRunningWorkers after completion: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("expected no running workers, got %+v", running)
	}
}

func TestRateLimitedWorkerOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, ts := range []string{"2024-01-01T00:00:02Z", "2024-01-01T00:00:01Z"} {
		issueNum := int64(100 + i)
		if err := s.CreateIssue(ctx, &models.Issue{IssueNumber: issueNum, Title: "x", Status: models.IssueStatusInProgress}); err != nil {
			t.Fatalf("CreateIssue: %v", err)
		}
		agentID := "agent-rl-" + ts
		w := &models.Worker{
			AgentID: agentID, IssueNumber: issueNum, AgentType: models.AgentTypeImplement,
			Status: models.WorkerStatusRunning, WorktreePath: "/tmp/x", BranchName: "b",
		}
		if err := s.CreateWorker(ctx, w); err != nil {
			t.Fatalf("CreateWorker: %v", err)
		}
		rlStatus := models.WorkerStatusRateLimited
		tsCopy := ts
		if err := s.UpdateWorker(ctx, agentID, WorkerUpdate{Status: &rlStatus, RateLimitedAt: &tsCopy}); err != nil {
			t.Fatalf("UpdateWorker: %v", err)
		}
	}

	limited, err := s.ListRateLimitedWorkers(ctx)
	if err != nil {
		t.Fatalf("ListRateLimitedWorkers: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 rate-limited workers, got %d", len(limited))
	}
	if limited[0].RateLimitedAt == nil || limited[0].RateLimitedAt.After(*limited[1].RateLimitedAt) {
		t.Fatalf("expected oldest rate_limited_at first, got %+v", limited)
	}
}

func TestWorkerEventsSinceCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateIssue(ctx, &models.Issue{IssueNumber: 1, Title: "x", Status: models.IssueStatusInProgress}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	w := &models.Worker{AgentID: "a1", IssueNumber: 1, AgentType: models.AgentTypeImplement, Status: models.WorkerStatusRunning, WorktreePath: "/tmp", BranchName: "b"}
	if err := s.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.InsertWorkerEvent(ctx, "a1", models.EventTypeAssistant, `{"n":1}`); err != nil {
			t.Fatalf("InsertWorkerEvent: %v", err)
		}
	}

	evs, err := s.WorkerEventsSince(ctx, "a1", 0, 100)
	if err != nil {
		t.Fatalf("WorkerEventsSince: %v", err)
	}
	if len(evs) != 5 {
		t.Fatalf("expected 5 events, got %d", len(evs))
	}

	evs, err = s.WorkerEventsSince(ctx, "a1", evs[2].ID, 100)
	if err != nil {
		t.Fatalf("WorkerEventsSince with cursor: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events after cursor, got %d", len(evs))
	}

	count, err := s.CountAssistantEvents(ctx, "a1")
	if err != nil {
		t.Fatalf("CountAssistantEvents: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 assistant events, got %d", count)
	}
}

func TestPRReviewIterationContiguous(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestPRReviewIteration(ctx, 77)
	if err != nil {
		t.Fatalf("LatestPRReviewIteration: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no prior iteration, got %+v", latest)
	}

	for i := 1; i <= 3; i++ {
		it := &models.PRReviewIteration{PRNumber: 77, Iteration: i, CommentsCount: i, CommentsJSON: "[]", Status: "pending"}
		if err := s.CreatePRReviewIteration(ctx, it); err != nil {
			t.Fatalf("CreatePRReviewIteration: %v", err)
		}
	}

	latest, err = s.LatestPRReviewIteration(ctx, 77)
	if err != nil {
		t.Fatalf("LatestPRReviewIteration: %v", err)
	}
	if latest == nil || latest.Iteration != 3 {
		t.Fatalf("expected latest iteration 3, got %+v", latest)
	}

	n, err := s.CountPRReviewIterations(ctx, 77)
	if err != nil {
		t.Fatalf("CountPRReviewIterations: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 iterations, got %d", n)
	}
}

func TestAggregateMetrics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateIssue(ctx, &models.Issue{IssueNumber: 1, Title: "a", Status: models.IssueStatusPending}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if err := s.CreateIssue(ctx, &models.Issue{IssueNumber: 2, Title: "b", Status: models.IssueStatusResolved}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	m, err := s.AggregateMetrics(ctx)
	if err != nil {
		t.Fatalf("AggregateMetrics: %v", err)
	}
	if m.IssuesByStatus[models.IssueStatusPending] != 1 || m.IssuesByStatus[models.IssueStatusResolved] != 1 {
		t.Fatalf("unexpected issue metrics: %+v", m.IssuesByStatus)
	}
}

func TestSchemaEvolutionIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evolve.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	// Re-opening an already-evolved database must not error.
	s2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen after evolution: %v", err)
	}
	defer s2.Close()

	has, err := s2.hasColumn(ctx, "workers", "rate_limited_at")
	if err != nil {
		t.Fatalf("hasColumn: %v", err)
	}
	if !has {
		t.Fatal("expected rate_limited_at column to be present after evolution")
	}
}

var _ = sql.ErrNoRows
