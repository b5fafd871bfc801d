package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/pool"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/models"
)

type fakeAgents struct{ snapshots []pool.AgentSnapshot }

func (f fakeAgents) ActiveAgents() []pool.AgentSnapshot { return f.snapshots }

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cfg := &config.Config{Dashboard: config.DashboardConfig{Port: 0}}
	agents := fakeAgents{snapshots: []pool.AgentSnapshot{{AgentID: "a1", IssueNumber: 1}}}
	return New(st, agents, cfg), st
}

func TestHandleAgentsReturnsSnapshots(t *testing.T) {
	s, _ := testServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got []pool.AgentSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].AgentID != "a1" {
		t.Fatalf("unexpected agents payload: %+v", got)
	}
}

func TestHandleIssuesReturnsAll(t *testing.T) {
	s, st := testServer(t)
	ctx := context.Background()
	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 5, Title: "x", Status: models.IssueStatusPending}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/issues", nil)
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got []models.Issue
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].IssueNumber != 5 {
		t.Fatalf("unexpected issues payload: %+v", got)
	}
}

func TestHandleAgentLogsFiltersSince(t *testing.T) {
	s, st := testServer(t)
	ctx := context.Background()
	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 1, Title: "x", Status: models.IssueStatusInProgress}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if err := st.CreateWorker(ctx, &models.Worker{
		AgentID: "agent-1", IssueNumber: 1, AgentType: models.AgentTypeImplement,
		Status: models.WorkerStatusRunning, WorktreePath: t.TempDir(), BranchName: "fix/issue-1",
	}); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	if err := st.InsertWorkerEvent(ctx, "agent-1", models.EventTypeAssistant, `{"n":1}`); err != nil {
		t.Fatalf("InsertWorkerEvent: %v", err)
	}
	if err := st.InsertWorkerEvent(ctx, "agent-1", models.EventTypeAssistant, `{"n":2}`); err != nil {
		t.Fatalf("InsertWorkerEvent: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/agents/agent-1/logs?since=1", nil)
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got []models.WorkerEvent
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one event after id 1, got %d", len(got))
	}
}

func TestHandleMetricsReturnsCounts(t *testing.T) {
	s, st := testServer(t)
	ctx := context.Background()
	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 1, Title: "x", Status: models.IssueStatusPending}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got store.Metrics
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.IssuesByStatus[models.IssueStatusPending] != 1 {
		t.Fatalf("expected one pending issue, got %+v", got.IssuesByStatus)
	}
}
