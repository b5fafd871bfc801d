package workspace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/claude-swarm/orchestrator/internal/forge"
)

func TestCreateForIssue(t *testing.T) {
	dir := t.TempDir()
	f := forge.NewFake()
	m := New(f, "/repo", dir, "main")

	ws, err := m.CreateForIssue(context.Background(), 7, "")
	if err != nil {
		t.Fatalf("CreateForIssue: %v", err)
	}
	if ws.BranchName != "fix/issue-7" {
		t.Fatalf("unexpected branch: %s", ws.BranchName)
	}
	if ws.Path != filepath.Join(dir, "issue-7") {
		t.Fatalf("unexpected path: %s", ws.Path)
	}
	if len(f.Worktrees) != 1 {
		t.Fatalf("expected 1 worktree registered, got %+v", f.Worktrees)
	}

	cached, err := m.CachedWorktrees()
	if err != nil {
		t.Fatalf("CachedWorktrees: %v", err)
	}
	if len(cached) != 1 || cached[0] != ws.Path {
		t.Fatalf("expected manifest to record %s, got %+v", ws.Path, cached)
	}
}

func TestCreateForPRFix(t *testing.T) {
	dir := t.TempDir()
	f := forge.NewFake()
	m := New(f, "/repo", dir, "main")

	ws, err := m.CreateForPRFix(context.Background(), 9, "feature/x")
	if err != nil {
		t.Fatalf("CreateForPRFix: %v", err)
	}
	if ws.Path != filepath.Join(dir, "pr-fix-9") {
		t.Fatalf("unexpected path: %s", ws.Path)
	}
}

func TestReleaseRemovesFromManifest(t *testing.T) {
	dir := t.TempDir()
	f := forge.NewFake()
	m := New(f, "/repo", dir, "main")
	ctx := context.Background()

	ws, err := m.CreateForIssue(ctx, 1, "")
	if err != nil {
		t.Fatalf("CreateForIssue: %v", err)
	}
	if err := m.Release(ctx, ws.Path); err != nil {
		t.Fatalf("Release: %v", err)
	}

	cached, err := m.CachedWorktrees()
	if err != nil {
		t.Fatalf("CachedWorktrees: %v", err)
	}
	if len(cached) != 0 {
		t.Fatalf("expected manifest cleared, got %+v", cached)
	}
	if len(f.Worktrees) != 0 {
		t.Fatalf("expected gateway worktree removed, got %+v", f.Worktrees)
	}
}

func TestHasUsableWork(t *testing.T) {
	f := forge.NewFake()
	f.CommitsSince["/wt/issue-3"] = true
	m := New(f, "/repo", t.TempDir(), "main")

	ok, err := m.HasUsableWork(context.Background(), "/wt/issue-3", "main")
	if err != nil {
		t.Fatalf("HasUsableWork: %v", err)
	}
	if !ok {
		t.Fatal("expected usable work to be true")
	}
}
