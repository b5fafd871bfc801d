package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CLI is the real Gateway backed by the gh and git executables.
type CLI struct {
	Repo  string // owner/name
	Token string
}

// NewCLI builds a CLI-backed Gateway for repo, authenticating gh via
// GH_TOKEN in the child process environment.
func NewCLI(repo, token string) *CLI {
	return &CLI{Repo: repo, Token: token}
}

var _ Gateway = (*CLI)(nil)

func (c *CLI) gh(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Env = append(os.Environ(), "GH_TOKEN="+c.Token)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("gh %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// ghTolerant runs gh like gh, but returns whatever stdout it printed
// even when the process exits non-zero (gh pr checks does this when a
// check has failed or is still pending).
func (c *CLI) ghTolerant(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Env = append(os.Environ(), "GH_TOKEN="+c.Token)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil {
		runErr = fmt.Errorf("gh %s: %w: %s", strings.Join(args, " "), runErr, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), runErr
}

func (c *CLI) git(ctx context.Context, dir string, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (c *CLI) ListOpenIssues(ctx context.Context, label string) ([]Issue, error) {
	out, err := c.gh(ctx, 30*time.Second, "issue", "list",
		"--repo", c.Repo, "--label", label, "--state", "open",
		"--json", "number,title,body,labels", "--limit", "100")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Number int64  `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing gh issue list output: %w", err)
	}

	issues := make([]Issue, 0, len(raw))
	for _, r := range raw {
		labels := make([]string, 0, len(r.Labels))
		for _, l := range r.Labels {
			labels = append(labels, l.Name)
		}
		issues = append(issues, Issue{Number: r.Number, Title: r.Title, Body: r.Body, Labels: labels})
	}
	return issues, nil
}

func (c *CLI) AddLabel(ctx context.Context, issueNumber int64, label string) error {
	_, err := c.gh(ctx, 30*time.Second, "issue", "edit", strconv.FormatInt(issueNumber, 10),
		"--repo", c.Repo, "--add-label", label)
	return err
}

func (c *CLI) CommentOnIssue(ctx context.Context, issueNumber int64, body string) error {
	_, err := c.gh(ctx, 30*time.Second, "issue", "comment", strconv.FormatInt(issueNumber, 10),
		"--repo", c.Repo, "--body", body)
	return err
}

func (c *CLI) IssueComments(ctx context.Context, issueNumber int64) ([]string, error) {
	out, err := c.gh(ctx, 30*time.Second, "issue", "view", strconv.FormatInt(issueNumber, 10),
		"--repo", c.Repo, "--json", "comments")
	if err != nil {
		return nil, err
	}

	var raw struct {
		Comments []struct {
			Body string `json:"body"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing gh issue view output: %w", err)
	}

	bodies := make([]string, 0, len(raw.Comments))
	for _, c := range raw.Comments {
		bodies = append(bodies, c.Body)
	}
	return bodies, nil
}

func (c *CLI) FindOpenPRForBranch(ctx context.Context, branch string) (*PullRequest, error) {
	out, err := c.gh(ctx, 30*time.Second, "pr", "list",
		"--repo", c.Repo, "--head", branch, "--state", "open",
		"--json", "number,headRefName,headRepositoryOwner")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Number      int64  `json:"number"`
		HeadRefName string `json:"headRefName"`
		HeadOwner   struct {
			Login string `json:"login"`
		} `json:"headRepositoryOwner"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing gh pr list output: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return &PullRequest{Number: raw[0].Number, HeadRefName: raw[0].HeadRefName, HeadRepoOwner: raw[0].HeadOwner.Login}, nil
}

func (c *CLI) CreatePR(ctx context.Context, base, head, title, body string) (int64, error) {
	out, err := c.gh(ctx, 30*time.Second, "pr", "create",
		"--repo", c.Repo, "--base", base, "--head", head, "--title", title, "--body", body)
	if err != nil {
		return 0, err
	}

	n, perr := prNumberFromURL(string(out))
	if perr != nil {
		return 0, perr
	}
	return n, nil
}

func (c *CLI) PRHeadBranch(ctx context.Context, prNumber int64) (string, error) {
	out, err := c.gh(ctx, 30*time.Second, "pr", "view", strconv.FormatInt(prNumber, 10),
		"--repo", c.Repo, "--json", "headRefName")
	if err != nil {
		return "", err
	}
	var raw struct {
		HeadRefName string `json:"headRefName"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return "", fmt.Errorf("parsing gh pr view output: %w", err)
	}
	return raw.HeadRefName, nil
}

func (c *CLI) PRReviewComments(ctx context.Context, prNumber int64) ([]ReviewComment, error) {
	out, err := c.gh(ctx, 30*time.Second, "api",
		fmt.Sprintf("repos/%s/pulls/%d/comments", c.Repo, prNumber), "--paginate")
	if err != nil {
		return nil, err
	}

	var raw []struct {
		ID        int64  `json:"id"`
		Body      string `json:"body"`
		Path      string `json:"path"`
		CreatedAt string `json:"created_at"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parsing gh api pulls/comments output: %w", err)
	}

	comments := make([]ReviewComment, 0, len(raw))
	for _, r := range raw {
		createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
		comments = append(comments, ReviewComment{ID: r.ID, Body: r.Body, Path: r.Path, CreatedAt: createdAt})
	}
	return comments, nil
}

// PRChecks reports CI checks for a PR. gh pr checks exits non-zero
// whenever any check has failed or is pending, so the raw run error is
// ignored as long as it printed parseable JSON.
func (c *CLI) PRChecks(ctx context.Context, prNumber int64) ([]CheckRun, error) {
	out, runErr := c.ghTolerant(ctx, 30*time.Second, "pr", "checks", strconv.FormatInt(prNumber, 10),
		"--repo", c.Repo, "--json", "name,state,bucket")

	var raw []struct {
		Name   string `json:"name"`
		State  string `json:"state"`
		Bucket string `json:"bucket"`
	}
	if jsonErr := json.Unmarshal(out, &raw); jsonErr != nil {
		if runErr != nil {
			return nil, runErr
		}
		return nil, fmt.Errorf("parsing gh pr checks output: %w", jsonErr)
	}

	checks := make([]CheckRun, 0, len(raw))
	for _, r := range raw {
		checks = append(checks, CheckRun{Name: r.Name, State: r.State, Conclusion: r.Bucket})
	}
	return checks, nil
}

func (c *CLI) FetchBranch(ctx context.Context, repoPath, branch string) error {
	_, err := c.git(ctx, repoPath, 30*time.Second, "fetch", "origin", branch)
	return err
}

func (c *CLI) BranchExistsOnRemote(ctx context.Context, repoPath, branch string) (bool, error) {
	out, err := c.git(ctx, repoPath, 30*time.Second, "ls-remote", "--heads", "origin", branch)
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

func (c *CLI) HasCommitsSince(ctx context.Context, worktreePath, base string) (bool, error) {
	out, err := c.git(ctx, worktreePath, 30*time.Second, "log", base+"..HEAD", "--oneline")
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}

func (c *CLI) PushBranch(ctx context.Context, worktreePath, branch string) error {
	_, err := c.git(ctx, worktreePath, 60*time.Second, "push", "-u", "origin", branch)
	return err
}

func (c *CLI) AddWorktree(ctx context.Context, repoPath, path, branch, base string) error {
	_, err := c.git(ctx, repoPath, 30*time.Second, "worktree", "add", "-b", branch, path, base)
	return err
}

func (c *CLI) AddWorktreeForBranch(ctx context.Context, repoPath, path, branch string) error {
	_, err := c.git(ctx, repoPath, 30*time.Second, "worktree", "add", path, branch)
	return err
}

func (c *CLI) RemoveWorktree(ctx context.Context, repoPath, path string) error {
	_, err := c.git(ctx, repoPath, 30*time.Second, "worktree", "remove", "--force", path)
	return err
}

func (c *CLI) ListWorktrees(ctx context.Context, repoPath string) ([]string, error) {
	out, err := c.git(ctx, repoPath, 30*time.Second, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}
