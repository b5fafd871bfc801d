package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/controlplane"
	"github.com/claude-swarm/orchestrator/internal/dashboard"
	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/pool"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/internal/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor: issue intake, PR review, and rate-limit watch",
	Long: `Starts the long-running supervisor. It loads configuration from the
environment, opens the embedded store, and runs three independent poll
loops against the Worker Pool:

  - Issue Intake      dispatches implement workers for eligible issues
  - PR Reviewer        dispatches fix-review workers against CI failures
                        and outstanding review feedback
  - Rate-Limit Watcher resumes workers once the assistant reports capacity

A read-only dashboard is served alongside it. Press Ctrl+C to stop
gracefully — already-dispatched workers are left running and finish (or
time out) unsupervised; the next startup reconciles them.`,
	RunE: runSupervisor,
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gracefully (running workers are left alone)...")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := forge.ValidateToken(ctx, cfg.Forge.ForgeToken); err != nil {
		return fmt.Errorf("startup token check: %w", err)
	}

	st, err := store.Open(ctx, cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	gw := forge.NewCLI(cfg.Forge.GithubRepo, cfg.Forge.ForgeToken)
	ws := workspace.New(gw, cfg.Forge.TargetRepoPath, cfg.Workspace.WorktreeDir, cfg.Forge.BaseBranch)
	wp := pool.New(st, gw, ws, cfg)
	engine := controlplane.New(st, gw, ws, wp, cfg)
	dash := dashboard.New(st, wp, cfg)

	slog.Info("Supervisor starting",
		"repo", cfg.Forge.GithubRepo,
		"max_concurrent_agents", cfg.Agent.MaxConcurrentAgents,
		"dashboard_port", cfg.Dashboard.Port,
	)

	errs := make(chan error, 2)
	go func() { errs <- engine.Run(ctx) }()
	go func() { errs <- dash.Run(ctx) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
