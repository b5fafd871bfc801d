package prompts

import (
	"strings"
	"testing"

	"github.com/claude-swarm/orchestrator/internal/forge"
)

func TestImplementStatesTurnBudget(t *testing.T) {
	p := Implement(42, "fix the thing", "", 30)
	if !strings.Contains(p, "issue #42") {
		t.Fatalf("expected prompt to reference the issue number, got %q", p)
	}
	if !strings.Contains(p, "30 turns") {
		t.Fatalf("expected prompt to state the turn budget, got %q", p)
	}
}

func TestFixReviewStatesTurnBudget(t *testing.T) {
	threads := []forge.ReviewComment{{Path: "main.go", Body: "fix this"}}
	p := FixReview(7, 42, threads, 20)
	if !strings.Contains(p, "PR #7") {
		t.Fatalf("expected prompt to reference the PR number, got %q", p)
	}
	if !strings.Contains(p, "20 turns") {
		t.Fatalf("expected prompt to state the turn budget, got %q", p)
	}
}

func TestFixReviewWithNoThreadsMentionsCI(t *testing.T) {
	p := FixReview(7, 42, nil, 20)
	if !strings.Contains(p, "CI has failed") {
		t.Fatalf("expected a CI-failure prompt when there are no threads, got %q", p)
	}
}

func TestResumeStatesRemainingBudget(t *testing.T) {
	p := Resume(42, 15)
	if !strings.Contains(p, "issue #42") || !strings.Contains(p, "15 more turns") {
		t.Fatalf("expected resume prompt to reference issue and remaining budget, got %q", p)
	}
}
