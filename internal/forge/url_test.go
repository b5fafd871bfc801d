package forge

import (
	"context"
	"testing"
)

func TestPRNumberFromURL(t *testing.T) {
	n, err := prNumberFromURL("https://github.com/acme/widgets/pull/42\n")
	if err != nil {
		t.Fatalf("prNumberFromURL: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
}

func TestPRNumberFromURLMissing(t *testing.T) {
	if _, err := prNumberFromURL("no url here"); err == nil {
		t.Fatal("expected error for missing PR URL")
	}
}

func TestFakeGatewayIssueAndPRFlow(t *testing.T) {
	f := NewFake()
	f.Issues = []Issue{{Number: 1, Title: "bug", Labels: []string{"agent"}}}

	issues, err := f.ListOpenIssues(context.Background(), "agent")
	if err != nil {
		t.Fatalf("ListOpenIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 1 {
		t.Fatalf("unexpected issues: %+v", issues)
	}

	prNum, err := f.CreatePR(context.Background(), "main", "fix/issue-1", "Fix issue 1", "body")
	if err != nil {
		t.Fatalf("CreatePR: %v", err)
	}

	pr, err := f.FindOpenPRForBranch(context.Background(), "fix/issue-1")
	if err != nil {
		t.Fatalf("FindOpenPRForBranch: %v", err)
	}
	if pr == nil || pr.Number != prNum {
		t.Fatalf("expected PR %d, got %+v", prNum, pr)
	}
}
