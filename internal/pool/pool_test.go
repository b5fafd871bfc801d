package pool

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/internal/workspace"
	"github.com/claude-swarm/orchestrator/models"
)

// shellSpawn fakes the assistant CLI with a shell script so tests drive
// the real process/monitor/reconcile machinery without depending on an
// actual `claude` binary being on PATH.
func shellSpawn(script string) func(spawnSpec) (*process, error) {
	return func(spec spawnSpec) (*process, error) {
		cmd := exec.Command("sh", "-c", script)
		// No cmd.Dir: the fake gateway registers worktrees without
		// creating their directories, and the probe's repo path is absent.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &process{cmd: cmd, pid: cmd.Process.Pid, stdout: stdout, stderr: &stderr}, nil
	}
}

func testPool(t *testing.T, gw forge.Gateway) (*Pool, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		Agent: config.AgentConfig{
			MaxConcurrentAgents: 3,
			AgentTimeoutSeconds: 5,
			MaxRateLimitResumes: 2,
		},
		Forge: config.ForgeConfig{BaseBranch: "main", TargetRepoPath: "/repo"},
	}
	ws := workspace.New(gw, "/repo", t.TempDir(), "main")
	return New(st, gw, ws, cfg), st
}

func awaitCompletion(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker reconciliation")
	}
}

func TestDispatchImplementLinksPRFromStream(t *testing.T) {
	gw := forge.NewFake()
	p, st := testPool(t, gw)
	ctx := context.Background()

	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 5, Title: "fix it", Status: models.IssueStatusPending}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	p.OnComplete(func(*models.Worker) { wg.Done() })
	p.spawn = shellSpawn(`echo '{"type":"assistant","message":{"content":[{"type":"text","text":"Opened pull request #42 for this fix."}]}}'`)

	agentID, err := p.DispatchImplement(ctx, 5, "fix it")
	if err != nil {
		t.Fatalf("DispatchImplement: %v", err)
	}
	awaitCompletion(t, &wg)

	w, err := st.GetWorker(ctx, agentID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.Status != models.WorkerStatusCompleted {
		t.Fatalf("expected completed, got %s", w.Status)
	}
	if w.PRNumber == nil || *w.PRNumber != 42 {
		t.Fatalf("expected PR 42 linked, got %+v", w.PRNumber)
	}

	issue, err := st.GetIssue(ctx, 5)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Status != models.IssueStatusPRCreated || issue.PRNumber == nil || *issue.PRNumber != 42 {
		t.Fatalf("expected issue pr_created with pr 42, got %+v", issue)
	}
}

func TestDispatchImplementFallsBackToPending(t *testing.T) {
	gw := forge.NewFake()
	p, st := testPool(t, gw)
	ctx := context.Background()

	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 6, Title: "x", Status: models.IssueStatusPending}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	p.OnComplete(func(*models.Worker) { wg.Done() })
	p.spawn = shellSpawn(`exit 0`) // no PR, no branch, no commits

	agentID, err := p.DispatchImplement(ctx, 6, "x")
	if err != nil {
		t.Fatalf("DispatchImplement: %v", err)
	}
	awaitCompletion(t, &wg)

	w, err := st.GetWorker(ctx, agentID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.Status != models.WorkerStatusFailed {
		t.Fatalf("expected failed, got %s", w.Status)
	}

	issue, err := st.GetIssue(ctx, 6)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Status != models.IssueStatusPending || issue.AgentID != nil {
		t.Fatalf("expected issue reset to pending with no agent, got %+v", issue)
	}
}

func TestDispatchImplementRateLimited(t *testing.T) {
	gw := forge.NewFake()
	p, st := testPool(t, gw)
	ctx := context.Background()

	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 9, Title: "x", Status: models.IssueStatusPending}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	p.OnComplete(func(*models.Worker) { wg.Done() })
	p.spawn = shellSpawn(`echo "Error: rate limit exceeded, please try again later" 1>&2; exit 1`)

	agentID, err := p.DispatchImplement(ctx, 9, "x")
	if err != nil {
		t.Fatalf("DispatchImplement: %v", err)
	}
	awaitCompletion(t, &wg)

	w, err := st.GetWorker(ctx, agentID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.Status != models.WorkerStatusRateLimited {
		t.Fatalf("expected rate_limited, got %s", w.Status)
	}

	issue, err := st.GetIssue(ctx, 9)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Status != models.IssueStatusInProgress {
		t.Fatalf("expected issue to remain in_progress while rate-limited, got %s", issue.Status)
	}
}

func TestCanDispatchRespectsCap(t *testing.T) {
	gw := forge.NewFake()
	p, _ := testPool(t, gw)
	p.cfg.Agent.MaxConcurrentAgents = 0
	if p.CanDispatch() {
		t.Fatal("expected CanDispatch to be false when the pool is at capacity")
	}
}

func TestResumeRateLimitedExceedsCeiling(t *testing.T) {
	gw := forge.NewFake()
	p, st := testPool(t, gw)
	ctx := context.Background()

	if err := st.CreateIssue(ctx, &models.Issue{IssueNumber: 3, Title: "x", Status: models.IssueStatusInProgress}); err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	old := models.Worker{
		AgentID: "agent-issue-3-1", IssueNumber: 3, AgentType: models.AgentTypeImplement,
		Status: models.WorkerStatusRateLimited, WorktreePath: t.TempDir(), BranchName: "fix/issue-3",
		ResumeCount: p.cfg.Agent.MaxRateLimitResumes,
	}
	if err := st.CreateWorker(ctx, &old); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	if _, err := p.ResumeRateLimited(ctx, old); err == nil {
		t.Fatal("expected an error once the resume ceiling is exceeded")
	}

	issue, err := st.GetIssue(ctx, 3)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if issue.Status != models.IssueStatusPending {
		t.Fatalf("expected issue reset to pending, got %s", issue.Status)
	}

	w, err := st.GetWorker(ctx, old.AgentID)
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if w.Status != models.WorkerStatusFailed {
		t.Fatalf("expected worker marked failed after exhausted resumes, got %s", w.Status)
	}
}

func TestProbeReportsAvailability(t *testing.T) {
	gw := forge.NewFake()
	p, _ := testPool(t, gw)

	p.spawn = shellSpawn("exit 0")
	if !p.Probe(context.Background()) {
		t.Fatal("expected probe to report the assistant available")
	}

	p.spawn = shellSpawn(`echo "429 too many requests" 1>&2; exit 1`)
	if p.Probe(context.Background()) {
		t.Fatal("expected probe to report still rate-limited")
	}
}

func TestIsRateLimitOutput(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Error 429: Too Many Requests", true},
		{"usage limit reached for this account", true},
		{"please try again later", true},
		{"panic: nil pointer dereference", false},
	}
	for _, c := range cases {
		if got := isRateLimitOutput(c.in); got != c.want {
			t.Errorf("isRateLimitOutput(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
