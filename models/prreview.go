package models

import "time"

// PRReviewIteration records one decision to dispatch a fix-worker
// against a pull request's outstanding review feedback.
type PRReviewIteration struct {
	ID            int64     `db:"id"`
	PRNumber      int64     `db:"pr_number"`
	Iteration     int       `db:"iteration"`
	CommentsCount int       `db:"comments_count"`
	CommentsJSON  string    `db:"comments_json"`
	AgentID       *string   `db:"agent_id"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
}
