package controlplane

import (
	"context"
	"log/slog"
	"time"
)

// runRateLimitLoop watches for rate-limited workers and resumes them
// once the assistant reports capacity again. A single probe covers the
// whole fleet per cycle — rate limits are account-wide, not
// per-worker, so there is no point probing once per stuck worker.
func (e *Engine) runRateLimitLoop(ctx context.Context) {
	var bo pollBackoff
	for {
		if err := e.rateLimitCycle(ctx); err != nil {
			slog.Error("Rate-limit watcher cycle failed", "error", err)
			bo.recordFailure()
		} else {
			bo.recordSuccess()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.interval(e.cfg.Agent.RateLimitInterval())):
		}
	}
}

func (e *Engine) rateLimitCycle(ctx context.Context) error {
	workers, err := e.store.ListRateLimitedWorkers(ctx)
	if err != nil {
		return err
	}
	if len(workers) == 0 {
		return nil
	}

	if !e.dispatch.Probe(ctx) {
		slog.Debug("Rate-limit probe reports still limited, skipping resumes this cycle", "waiting", len(workers))
		return nil
	}

	for _, w := range workers {
		if !e.dispatch.CanDispatch() {
			break
		}
		if _, err := e.dispatch.ResumeRateLimited(ctx, w); err != nil {
			slog.Error("Resuming rate-limited worker failed", "agent_id", w.AgentID, "error", err)
		}
	}
	return nil
}
