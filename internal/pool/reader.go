package pool

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/claude-swarm/orchestrator/internal/stream"
	"github.com/claude-swarm/orchestrator/models"
)

// readStream consumes a worker's stdout line by line, decoding and
// persisting each event in arrival order. One reader goroutine per
// worker: events for a given agent are never interleaved by a second
// writer, so the Store's event log stays strictly ordered.
func (p *Pool) readStream(a *agent) {
	scanner := bufio.NewScanner(a.proc.stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		ev, ok := stream.DecodeLine(scanner.Text())
		if !ok {
			continue
		}
		a.appendEvent(ev)

		raw, err := json.Marshal(ev.Raw)
		if err != nil {
			slog.Warn("Marshaling worker event failed", "agent_id", a.agentID, "error", err)
			continue
		}
		if err := p.store.InsertWorkerEvent(context.Background(), a.agentID, ev.Type, string(raw)); err != nil {
			slog.Warn("Persisting worker event failed", "agent_id", a.agentID, "error", err)
		}
		if ev.Type == models.EventTypeToolUse {
			slog.Debug("Worker tool use", "agent_id", a.agentID, "summary", ev.Summary)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Reading worker stdout stopped early", "agent_id", a.agentID, "error", err)
	}
}
