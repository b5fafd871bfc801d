// Package pool dispatches, monitors, and reconciles the assistant
// subprocess workers that actually do the coding work, mirroring the
// lifecycle this system's Python ancestor drove from
// orchestrator/agent_pool.py but adding the resumption and reconciliation
// steps that snapshot never implemented.
package pool

import (
	"sync"
	"time"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/forge"
	"github.com/claude-swarm/orchestrator/internal/store"
	"github.com/claude-swarm/orchestrator/internal/stream"
	"github.com/claude-swarm/orchestrator/internal/workspace"
	"github.com/claude-swarm/orchestrator/models"
)

// AgentSnapshot is a point-in-time view of one live worker, used by the
// dashboard's agents endpoint.
type AgentSnapshot struct {
	AgentID        string
	IssueNumber    int64
	PRNumber       *int64
	AgentType      string
	Branch         string
	ElapsedSeconds int
	EventCount     int
}

// agent is the in-memory record of one live (running) worker. Only
// running workers live here; once reconciled they are dropped from the
// map and exist solely as Store rows.
type agent struct {
	mu          sync.Mutex
	agentID     string
	issueNumber int64
	prNumber    *int64
	agentType   string
	worktree    string
	branch      string
	startedAt   time.Time
	proc        *process
	events      []*stream.Event
	eventCount  int
}

func (a *agent) appendEvent(ev *stream.Event) {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.eventCount++
	a.mu.Unlock()
}

func (a *agent) snapshotEvents() []*stream.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*stream.Event(nil), a.events...)
}

// Pool admits, spawns, monitors, and reconciles assistant subprocess
// workers under a concurrency cap.
type Pool struct {
	store     *store.Store
	gateway   forge.Gateway
	workspace *workspace.Manager
	cfg       *config.Config

	mu     sync.Mutex
	agents map[string]*agent

	spawn      func(spec spawnSpec) (*process, error)
	onComplete func(*models.Worker)
}

// New builds a Pool wired against the given Store, Gateway, and
// Workspace Manager.
func New(st *store.Store, gw forge.Gateway, ws *workspace.Manager, cfg *config.Config) *Pool {
	return &Pool{
		store:     st,
		gateway:   gw,
		workspace: ws,
		cfg:       cfg,
		agents:    map[string]*agent{},
		spawn:     defaultSpawn,
	}
}

// OnComplete registers a callback invoked after a worker is reconciled
// to a terminal status, with its final Store row. Optional: with no
// callback registered, reconciliation only updates the Store.
func (p *Pool) OnComplete(fn func(*models.Worker)) { p.onComplete = fn }

// CanDispatch reports whether the pool has room for another worker
// under MaxConcurrentAgents.
func (p *Pool) CanDispatch() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents) < p.cfg.Agent.MaxConcurrentAgents
}

// ActiveAgents returns a snapshot of all currently running workers.
func (p *Pool) ActiveAgents() []AgentSnapshot {
	p.mu.Lock()
	live := make([]*agent, 0, len(p.agents))
	for _, a := range p.agents {
		live = append(live, a)
	}
	p.mu.Unlock()

	out := make([]AgentSnapshot, 0, len(live))
	for _, a := range live {
		a.mu.Lock()
		out = append(out, AgentSnapshot{
			AgentID:        a.agentID,
			IssueNumber:    a.issueNumber,
			PRNumber:       a.prNumber,
			AgentType:      a.agentType,
			Branch:         a.branch,
			ElapsedSeconds: int(time.Since(a.startedAt).Seconds()),
			EventCount:     a.eventCount,
		})
		a.mu.Unlock()
	}
	return out
}

func (p *Pool) register(a *agent) {
	p.mu.Lock()
	p.agents[a.agentID] = a
	p.mu.Unlock()
}

func (p *Pool) unregister(agentID string) {
	p.mu.Lock()
	delete(p.agents, agentID)
	p.mu.Unlock()
}

func (p *Pool) runningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

func (p *Pool) start(a *agent) {
	p.register(a)
	go p.readStream(a)
	go p.monitor(a)
}
