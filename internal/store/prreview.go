package store

import (
	"context"
	"database/sql"

	"github.com/claude-swarm/orchestrator/models"
)

// LatestPRReviewIteration returns the highest-iteration row for a PR,
// or nil if none exists yet.
func (s *Store) LatestPRReviewIteration(ctx context.Context, prNumber int64) (*models.PRReviewIteration, error) {
	var it models.PRReviewIteration
	err := s.getInto(ctx, &it,
		`SELECT id, pr_number, iteration, comments_count, comments_json, agent_id, status, created_at
		 FROM pr_review_iterations WHERE pr_number = ? ORDER BY iteration DESC LIMIT 1`, prNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// CreatePRReviewIteration inserts the next iteration row for a PR.
// Callers are expected to be single-threaded per PR per poll cycle
// (the PR Reviewer), which is what keeps iteration numbers contiguous.
func (s *Store) CreatePRReviewIteration(ctx context.Context, it *models.PRReviewIteration) error {
	it.CreatedAt = nowTime()
	_, err := s.insert(ctx, "pr_review_iterations", it)
	return err
}

// CountPRReviewIterations returns how many iterations exist for a PR.
func (s *Store) CountPRReviewIterations(ctx context.Context, prNumber int64) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pr_review_iterations WHERE pr_number = ?`, prNumber)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
