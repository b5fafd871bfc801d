// Package dashboard exposes a small read-only HTTP API over the Store
// and the Worker Pool's live agent snapshots. It is an external
// collaborator, not part of the orchestration loop itself: nothing
// else in this codebase depends on it being up.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/pool"
	"github.com/claude-swarm/orchestrator/internal/store"
)

// ActiveAgentsSource is the subset of pool.Pool the dashboard reads.
type ActiveAgentsSource interface {
	ActiveAgents() []pool.AgentSnapshot
}

// Server serves the dashboard's JSON API and static assets.
type Server struct {
	store   *store.Store
	agents  ActiveAgentsSource
	cfg     *config.Config
	startAt time.Time
}

// New builds a Server wired against the given Store and agent source.
func New(st *store.Store, agents ActiveAgentsSource, cfg *config.Config) *Server {
	return &Server{store: st, agents: agents, cfg: cfg, startAt: time.Now()}
}

// Run serves the dashboard until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Dashboard.Port)
	srv := &http.Server{Addr: addr, Handler: s.routes()}

	snapshots := s.startMetricsLog(ctx)
	defer snapshots.Stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Dashboard listening", "addr", "http://"+addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard http server: %w", err)
	}
	return nil
}

// startMetricsLog schedules a periodic aggregate-metrics log line on the
// configured cron expression. Returns a no-op cron.Cron if the schedule
// is empty or fails to parse, so a bad value degrades to "no snapshot
// log" rather than failing the dashboard.
func (s *Server) startMetricsLog(ctx context.Context) *cron.Cron {
	c := cron.New()
	if s.cfg.Dashboard.MetricsLogCron == "" {
		return c
	}
	_, err := c.AddFunc(s.cfg.Dashboard.MetricsLogCron, func() {
		m, err := s.store.AggregateMetrics(ctx)
		if err != nil {
			slog.Warn("Metrics snapshot failed", "error", err)
			return
		}
		slog.Info("Metrics snapshot", "issues_by_status", m.IssuesByStatus, "workers_by_status", m.WorkersByStatus)
	})
	if err != nil {
		slog.Warn("Invalid dashboard metrics cron schedule, snapshot log disabled",
			"schedule", s.cfg.Dashboard.MetricsLogCron, "error", err)
		return cron.New()
	}
	c.Start()
	return c
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/agents/{id}/logs", s.handleAgentLogs)
	mux.HandleFunc("GET /api/issues", s.handleIssues)
	mux.HandleFunc("GET /api/prs", s.handlePRs)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	return mux
}
