// Package controlplane runs the independent poll loops that decide
// what the Worker Pool should do next: Issue Intake, PR Reviewer, and
// Rate-Limit Watcher. These mirror the cooperating loops this system's
// Python ancestor ran as separate orchestrator/*.py modules, unified
// here under one Engine that shares a Store, Gateway, and Dispatcher.
package controlplane

import (
	"context"
	"log/slog"
	"sync"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/internal/workspace"
)

// Engine owns the poll loops and startup recovery.
type Engine struct {
	store     *store.Store
	gateway   forge.Gateway
	workspace *workspace.Manager
	dispatch  Dispatcher
	cfg       *config.Config
}

// New builds an Engine wired against the given Store, Gateway,
// Workspace Manager, and Dispatcher.
func New(st *store.Store, gw forge.Gateway, ws *workspace.Manager, dispatcher Dispatcher, cfg *config.Config) *Engine {
	return &Engine{store: st, gateway: gw, workspace: ws, dispatch: dispatcher, cfg: cfg}
}

// Run reconciles persisted state against reality once, then runs the
// three pollers concurrently until ctx is canceled. Shutdown is
// non-terminal: it stops scheduling new work but never signals an
// already-dispatched worker, which keeps running detached from this
// process until it finishes or times out on its own.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		slog.Error("Startup recovery failed, continuing with pollers", "error", err)
	}

	loops := []func(context.Context){e.runIntakeLoop, e.runPRReviewerLoop, e.runRateLimitLoop}
	var wg sync.WaitGroup
	wg.Add(len(loops))
	for _, loop := range loops {
		loop := loop
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}

	<-ctx.Done()
	slog.Info("Control plane shutting down, running workers are left to finish on their own")
	wg.Wait()
	return nil
}
