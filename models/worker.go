package models

import "time"

// Worker agent types.
const (
	AgentTypeImplement = "implement"
	AgentTypeFixReview = "fix_review"
)

// Worker statuses.
const (
	WorkerStatusRunning     = "running"
	WorkerStatusCompleted   = "completed"
	WorkerStatusFailed      = "failed"
	WorkerStatusTimeout     = "timeout"
	WorkerStatusRateLimited = "rate_limited"
	WorkerStatusResumed     = "resumed"
)

// Worker is one instance of the assistant subprocess working one task.
type Worker struct {
	AgentID       string     `db:"agent_id"`
	IssueNumber   int64      `db:"issue_number"`
	PRNumber      *int64     `db:"pr_number"`
	AgentType     string     `db:"agent_type"`
	Status        string     `db:"status"`
	WorktreePath  string     `db:"worktree_path"`
	BranchName    string     `db:"branch_name"`
	PID           *int       `db:"pid"`
	SessionID     *string    `db:"session_id"`
	TurnsUsed     int        `db:"turns_used"`
	ResumeCount   int        `db:"resume_count"`
	RateLimitedAt *time.Time `db:"rate_limited_at"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
	ErrorMessage  *string    `db:"error_message"`
}

// IsRunning reports whether the worker's status is running. A worker
// paused as rate_limited reports false.
func (w *Worker) IsRunning() bool {
	return w.Status == WorkerStatusRunning
}
