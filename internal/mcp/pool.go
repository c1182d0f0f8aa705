package mcp

import (
	"context"
	"log"
	"sync"

	sdk "github.com/mark3labs/mcp-go/mcp"

	"github.com/pocketomega/pocket-agent/internal/tool"
)

// Pool owns the lifecycle of all MCP server sessions. Reads go through a
// snapshot map that is swapped under a short write lock on add/remove, so
// the hot path never blocks on session churn.
type Pool struct {
	clientInfo sdk.Implementation

	mu       sync.Mutex
	sessions map[string]*Client
	snapshot map[string]*Client // read-only copy, replaced on mutation
}

// NewPool creates an empty pool identifying itself as clientInfo during
// handshakes.
func NewPool(clientInfo sdk.Implementation) *Pool {
	return &Pool{
		clientInfo: clientInfo,
		sessions:   make(map[string]*Client),
		snapshot:   make(map[string]*Client),
	}
}

// swapSnapshot rebuilds the read snapshot. Callers hold mu.
func (p *Pool) swapSnapshot() {
	snap := make(map[string]*Client, len(p.sessions))
	for name, c := range p.sessions {
		snap[name] = c
	}
	p.snapshot = snap
}

// Get returns the session for name, if any.
func (p *Pool) Get(name string) (*Client, bool) {
	p.mu.Lock()
	snap := p.snapshot
	p.mu.Unlock()
	c, ok := snap[name]
	return c, ok
}

// All returns every session in the current snapshot.
func (p *Pool) All() []*Client {
	p.mu.Lock()
	snap := p.snapshot
	p.mu.Unlock()

	out := make([]*Client, 0, len(snap))
	for _, c := range snap {
		out = append(out, c)
	}
	return out
}

// Ready returns every session currently in the Ready state.
func (p *Pool) Ready() []*Client {
	var out []*Client
	for _, c := range p.All() {
		if state, _ := c.State(); state == StateReady {
			out = append(out, c)
		}
	}
	return out
}

// Connect registers cfg and initializes its session. Re-registering a
// config identical to an existing session's is a no-op returning the
// existing session; a changed config (or force) replaces the session,
// shutting the old one down. Init failures leave a Degraded session in
// the pool so the operator can inspect the reason.
func (p *Pool) Connect(ctx context.Context, cfg ServerConfig, force bool) *Client {
	p.mu.Lock()
	if existing, ok := p.sessions[cfg.Name]; ok {
		if existing.Config().Equal(cfg) && !force {
			p.mu.Unlock()
			return existing
		}
		delete(p.sessions, cfg.Name)
		p.swapSnapshot()
		p.mu.Unlock()
		existing.Shutdown()
		p.mu.Lock()
	}

	client := NewClient(cfg)
	p.sessions[cfg.Name] = client
	p.swapSnapshot()
	p.mu.Unlock()

	if err := client.Init(ctx, p.clientInfo); err != nil {
		log.Printf("[MCP] connect %q: %v", cfg.Name, err)
	}
	return client
}

// Adopt registers an externally constructed session (e.g. one attached
// over an existing transport) under its configured name, replacing any
// previous session with that name.
func (p *Pool) Adopt(client *Client) {
	p.mu.Lock()
	old := p.sessions[client.Name()]
	p.sessions[client.Name()] = client
	p.swapSnapshot()
	p.mu.Unlock()

	if old != nil && old != client {
		old.Shutdown()
	}
}

// ConnectAll initializes a session for every config. Failures degrade
// individual sessions without affecting the others.
func (p *Pool) ConnectAll(ctx context.Context, configs []ServerConfig) {
	for _, cfg := range configs {
		p.Connect(ctx, cfg, false)
	}
}

// Remove shuts down and forgets one session. Returns whether it existed.
func (p *Pool) Remove(name string) bool {
	p.mu.Lock()
	client, ok := p.sessions[name]
	if ok {
		delete(p.sessions, name)
		p.swapSnapshot()
	}
	p.mu.Unlock()

	if ok {
		client.Shutdown()
	}
	return ok
}

// Shutdown terminates every session.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Client)
	p.swapSnapshot()
	p.mu.Unlock()

	for _, c := range sessions {
		c.Shutdown()
	}
}

// SyncRegistry projects every Ready session's tool catalog into the
// registry as adapters, and drops catalogs of sessions that are no longer
// Ready. Closed sessions' tools disappear from the next snapshot.
func (p *Pool) SyncRegistry(ctx context.Context, reg *tool.Registry) {
	for _, c := range p.All() {
		state, _ := c.State()
		if state != StateReady {
			reg.RemoveServer(c.Name())
			continue
		}
		tools, err := c.Tools(ctx)
		if err != nil {
			log.Printf("[MCP] %q: refresh tools: %v", c.Name(), err)
			reg.RemoveServer(c.Name())
			continue
		}
		adapters := make([]tool.Tool, 0, len(tools))
		for _, t := range tools {
			adapters = append(adapters, NewAdapter(c, t))
		}
		reg.SetServerTools(c.Name(), adapters)
	}
}
