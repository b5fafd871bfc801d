package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claude-swarm/orchestrator/models"
)

// CreateIssue inserts a newly discovered issue.
func (s *Store) CreateIssue(ctx context.Context, issue *models.Issue) error {
	issue.CreatedAt = nowTime()
	issue.UpdatedAt = issue.CreatedAt
	_, err := s.insert(ctx, "issues", issue)
	return err
}

// GetIssue fetches an issue by number. Returns sql.ErrNoRows if absent.
func (s *Store) GetIssue(ctx context.Context, issueNumber int64) (*models.Issue, error) {
	var issue models.Issue
	err := s.getInto(ctx, &issue,
		`SELECT issue_number, title, status, agent_id, pr_number, attempts, created_at, updated_at
		 FROM issues WHERE issue_number = ?`, issueNumber)
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssuesByStatus returns all issues in the given status.
func (s *Store) ListIssuesByStatus(ctx context.Context, status string) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.selectInto(ctx, &issues,
		`SELECT issue_number, title, status, agent_id, pr_number, attempts, created_at, updated_at
		 FROM issues WHERE status = ? ORDER BY issue_number`, status)
	return issues, err
}

// IssueUpdate describes a partial update applied to an issue row.
type IssueUpdate struct {
	Status          *string
	AgentID         *string
	ClearAgentID    bool
	PRNumber        *int64
	IncrementAttempt bool
}

// UpdateIssue applies a partial update and bumps updated_at.
func (s *Store) UpdateIssue(ctx context.Context, issueNumber int64, u IssueUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{nowString()}

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.ClearAgentID {
		sets = append(sets, "agent_id = NULL")
	} else if u.AgentID != nil {
		sets = append(sets, "agent_id = ?")
		args = append(args, *u.AgentID)
	}
	if u.PRNumber != nil {
		sets = append(sets, "pr_number = ?")
		args = append(args, *u.PRNumber)
	}
	if u.IncrementAttempt {
		sets = append(sets, "attempts = attempts + 1")
	}

	query := fmt.Sprintf("UPDATE issues SET %s WHERE issue_number = ?", joinComma(sets))
	args = append(args, issueNumber)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// ListAllIssues returns every known issue, newest first. Used by the
// dashboard's issues endpoint.
func (s *Store) ListAllIssues(ctx context.Context) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.selectInto(ctx, &issues,
		`SELECT issue_number, title, status, agent_id, pr_number, attempts, created_at, updated_at
		 FROM issues ORDER BY issue_number DESC`)
	return issues, err
}

// ListIssuesWithPR returns every issue that has an associated PR,
// ordered by PR number. Used by the dashboard's PRs endpoint.
func (s *Store) ListIssuesWithPR(ctx context.Context) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.selectInto(ctx, &issues,
		`SELECT issue_number, title, status, agent_id, pr_number, attempts, created_at, updated_at
		 FROM issues WHERE pr_number IS NOT NULL ORDER BY pr_number DESC`)
	return issues, err
}

// IssueExists reports whether the issue has already been seen.
func (s *Store) IssueExists(ctx context.Context, issueNumber int64) (bool, error) {
	_, err := s.GetIssue(ctx, issueNumber)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
