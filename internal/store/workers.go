package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/claude-swarm/orchestrator/models"
)

// CreateWorker persists a newly dispatched worker.
func (s *Store) CreateWorker(ctx context.Context, w *models.Worker) error {
	if w.StartedAt.IsZero() {
		w.StartedAt = nowTime()
	}
	_, err := s.insert(ctx, "workers", w)
	return err
}

const workerColumns = `agent_id, issue_number, pr_number, agent_type, status, worktree_path,
	branch_name, turns_used, pid, session_id, resume_count, rate_limited_at,
	started_at, finished_at, error_message`

// GetWorker fetches a worker by agent id.
func (s *Store) GetWorker(ctx context.Context, agentID string) (*models.Worker, error) {
	var w models.Worker
	err := s.getInto(ctx, &w,
		`SELECT `+workerColumns+` FROM workers WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListRunningWorkers returns all workers with status=running.
func (s *Store) ListRunningWorkers(ctx context.Context) ([]models.Worker, error) {
	var ws []models.Worker
	err := s.selectInto(ctx, &ws,
		`SELECT `+workerColumns+` FROM workers WHERE status = ? ORDER BY started_at`, models.WorkerStatusRunning)
	return ws, err
}

// ListRateLimitedWorkers returns all workers currently rate_limited,
// ordered by rate_limited_at ascending (oldest first, per the watcher's
// resume-in-order requirement).
func (s *Store) ListRateLimitedWorkers(ctx context.Context) ([]models.Worker, error) {
	var ws []models.Worker
	err := s.selectInto(ctx, &ws,
		`SELECT `+workerColumns+` FROM workers WHERE status = ? ORDER BY rate_limited_at ASC`, models.WorkerStatusRateLimited)
	return ws, err
}

// RunningWorkerForIssue returns the running worker for an issue, if any.
func (s *Store) RunningWorkerForIssue(ctx context.Context, issueNumber int64) (*models.Worker, error) {
	var w models.Worker
	err := s.getInto(ctx, &w,
		`SELECT `+workerColumns+` FROM workers WHERE issue_number = ? AND status = ? LIMIT 1`,
		issueNumber, models.WorkerStatusRunning)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// RunningFixReviewWorkerForPR returns the running fix_review worker for
// a PR, if any.
func (s *Store) RunningFixReviewWorkerForPR(ctx context.Context, prNumber int64) (*models.Worker, error) {
	var w models.Worker
	err := s.getInto(ctx, &w,
		`SELECT `+workerColumns+` FROM workers WHERE pr_number = ? AND agent_type = ? AND status = ? LIMIT 1`,
		prNumber, models.AgentTypeFixReview, models.WorkerStatusRunning)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// WorkerUpdate describes a partial update applied to a worker row.
type WorkerUpdate struct {
	Status        *string
	PRNumber      *int64
	TurnsUsed     *int
	PID           *int
	SessionID     *string
	ResumeCount   *int
	RateLimitedAt *string // RFC3339, nil clears
	Finished      bool
	ErrorMessage  *string
}

// UpdateWorker applies a partial update to a worker row.
func (s *Store) UpdateWorker(ctx context.Context, agentID string, u WorkerUpdate) error {
	var sets []string
	var args []interface{}

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.PRNumber != nil {
		sets = append(sets, "pr_number = ?")
		args = append(args, *u.PRNumber)
	}
	if u.TurnsUsed != nil {
		sets = append(sets, "turns_used = ?")
		args = append(args, *u.TurnsUsed)
	}
	if u.PID != nil {
		sets = append(sets, "pid = ?")
		args = append(args, *u.PID)
	}
	if u.SessionID != nil {
		sets = append(sets, "session_id = ?")
		args = append(args, *u.SessionID)
	}
	if u.ResumeCount != nil {
		sets = append(sets, "resume_count = ?")
		args = append(args, *u.ResumeCount)
	}
	if u.RateLimitedAt != nil {
		sets = append(sets, "rate_limited_at = ?")
		args = append(args, *u.RateLimitedAt)
	}
	if u.Finished {
		sets = append(sets, "finished_at = ?")
		args = append(args, nowString())
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE workers SET %s WHERE agent_id = ?", joinComma(sets))
	args = append(args, agentID)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// InsertWorkerEvent appends one event record for a worker.
func (s *Store) InsertWorkerEvent(ctx context.Context, agentID, eventType, eventData string) error {
	ev := &models.WorkerEvent{
		AgentID:   agentID,
		EventType: eventType,
		EventData: eventData,
		Timestamp: nowTime(),
	}
	_, err := s.insert(ctx, "worker_events", ev)
	return err
}

// WorkerEventsSince returns up to limit events for the given worker
// with id > sinceID, in ascending id order.
func (s *Store) WorkerEventsSince(ctx context.Context, agentID string, sinceID, limit int64) ([]models.WorkerEvent, error) {
	var evs []models.WorkerEvent
	err := s.selectInto(ctx, &evs,
		`SELECT id, agent_id, event_type, event_data, timestamp FROM worker_events
		 WHERE agent_id = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		agentID, sinceID, limit)
	return evs, err
}

// CountAssistantEvents returns the number of assistant-type events
// stored for a worker.
func (s *Store) CountAssistantEvents(ctx context.Context, agentID string) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM worker_events WHERE agent_id = ? AND event_type = ?`,
		agentID, models.EventTypeAssistant)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Metrics is the aggregate view used by the dashboard and `status`.
type Metrics struct {
	IssuesByStatus  map[string]int
	WorkersByStatus map[string]int
	AvgTurnsUsed    float64
}

// AggregateMetrics computes counts grouped by status for issues and
// workers, plus the average turns_used over completed workers.
func (s *Store) AggregateMetrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{IssuesByStatus: map[string]int{}, WorkersByStatus: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM issues GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		m.IssuesByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM workers GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		m.WorkersByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(turns_used), 0) FROM workers WHERE status = ?`, models.WorkerStatusCompleted)
	if err := row.Scan(&m.AvgTurnsUsed); err != nil {
		return nil, err
	}
	return m, nil
}
