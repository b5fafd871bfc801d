package controlplane

import (
	"context"

	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/pool"
	"github.com/claude-swarm/orchestrator/models"
)

// Dispatcher is everything the pollers need from the Worker Pool.
// Satisfied by *pool.Pool; tests substitute a fake that records calls
// without spawning real subprocesses.
type Dispatcher interface {
	CanDispatch() bool
	DispatchImplement(ctx context.Context, issueNumber int64, title string) (string, error)
	DispatchFixReview(ctx context.Context, prNumber, issueNumber int64, branch string, comments []forge.ReviewComment) (string, error)
	ResumeRateLimited(ctx context.Context, old models.Worker) (string, error)
	Probe(ctx context.Context) bool
	ActiveAgents() []pool.AgentSnapshot
}

var _ Dispatcher = (*pool.Pool)(nil)
