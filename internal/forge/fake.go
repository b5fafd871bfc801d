package forge

import "context"

// Fake is an in-memory Gateway used by tests for the Control Plane and
// Worker Pool, which should never shell out to gh/git in unit tests.
type Fake struct {
	Issues         []Issue
	OpenPRs        map[string]*PullRequest // branch -> PR
	PRHeadBranches map[int64]string
	ReviewComments map[int64][]ReviewComment
	ReviewThreads  map[int64][]ReviewThread
	ThreadsErr     map[int64]error // simulates a structural-query failure, forcing the REST fallback
	Checks         map[int64][]CheckRun
	RemoteBranches map[string]bool
	CommitsSince   map[string]bool    // worktreePath -> has commits
	Comments       map[int64][]string // issueNumber -> comment bodies

	Labeled      []int64
	IssueComment []string
	CreatedPRs   []PullRequest
	Worktrees    []string
	ReposUpdated int

	NextPRNumber int64
}

var _ Gateway = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		OpenPRs:        map[string]*PullRequest{},
		PRHeadBranches: map[int64]string{},
		ReviewComments: map[int64][]ReviewComment{},
		ReviewThreads:  map[int64][]ReviewThread{},
		ThreadsErr:     map[int64]error{},
		Checks:         map[int64][]CheckRun{},
		RemoteBranches: map[string]bool{},
		CommitsSince:   map[string]bool{},
		Comments:       map[int64][]string{},
		NextPRNumber:   1,
	}
}

func (f *Fake) ListOpenIssues(ctx context.Context, label string) ([]Issue, error) {
	var out []Issue
	for _, iss := range f.Issues {
		for _, l := range iss.Labels {
			if l == label {
				out = append(out, iss)
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) AddLabel(ctx context.Context, issueNumber int64, label string) error {
	f.Labeled = append(f.Labeled, issueNumber)
	return nil
}

func (f *Fake) CommentOnIssue(ctx context.Context, issueNumber int64, body string) error {
	f.IssueComment = append(f.IssueComment, body)
	return nil
}

func (f *Fake) IssueComments(ctx context.Context, issueNumber int64) ([]string, error) {
	return f.Comments[issueNumber], nil
}

func (f *Fake) FindOpenPRForBranch(ctx context.Context, branch string) (*PullRequest, error) {
	return f.OpenPRs[branch], nil
}

func (f *Fake) CreatePR(ctx context.Context, base, head, title, body string) (int64, error) {
	n := f.NextPRNumber
	f.NextPRNumber++
	pr := PullRequest{Number: n, HeadRefName: head}
	f.OpenPRs[head] = &pr
	f.PRHeadBranches[n] = head
	f.CreatedPRs = append(f.CreatedPRs, pr)
	return n, nil
}

func (f *Fake) PRHeadBranch(ctx context.Context, prNumber int64) (string, error) {
	return f.PRHeadBranches[prNumber], nil
}

func (f *Fake) PRReviewComments(ctx context.Context, prNumber int64) ([]ReviewComment, error) {
	return f.ReviewComments[prNumber], nil
}

func (f *Fake) PRReviewThreads(ctx context.Context, prNumber int64) ([]ReviewThread, error) {
	if err := f.ThreadsErr[prNumber]; err != nil {
		return nil, err
	}
	return f.ReviewThreads[prNumber], nil
}

func (f *Fake) UpdateRepo(ctx context.Context, repoPath, baseBranch string) error {
	f.ReposUpdated++
	return nil
}

func (f *Fake) PRChecks(ctx context.Context, prNumber int64) ([]CheckRun, error) {
	return f.Checks[prNumber], nil
}

func (f *Fake) FetchBranch(ctx context.Context, repoPath, branch string) error {
	return nil
}

func (f *Fake) BranchExistsOnRemote(ctx context.Context, repoPath, branch string) (bool, error) {
	return f.RemoteBranches[branch], nil
}

func (f *Fake) HasCommitsSince(ctx context.Context, worktreePath, base string) (bool, error) {
	return f.CommitsSince[worktreePath], nil
}

func (f *Fake) PushBranch(ctx context.Context, worktreePath, branch string) error {
	f.RemoteBranches[branch] = true
	return nil
}

func (f *Fake) AddWorktree(ctx context.Context, repoPath, path, branch, base string) error {
	f.Worktrees = append(f.Worktrees, path)
	return nil
}

func (f *Fake) AddWorktreeForBranch(ctx context.Context, repoPath, path, branch string) error {
	f.Worktrees = append(f.Worktrees, path)
	return nil
}

func (f *Fake) RemoveWorktree(ctx context.Context, repoPath, path string) error {
	for i, p := range f.Worktrees {
		if p == path {
			f.Worktrees = append(f.Worktrees[:i], f.Worktrees[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) ListWorktrees(ctx context.Context, repoPath string) ([]string, error) {
	return append([]string(nil), f.Worktrees...), nil
}
