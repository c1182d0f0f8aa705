package tool

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/pocketomega/pocket-agent/internal/llm"
)

// DummyToolName is the placeholder published to the model when the
// aggregate tool list would otherwise be empty (the API requires at least
// one tool). It never appears in operator-visible listings, and underlying
// catalogs that advertise it are filtered the same way.
const DummyToolName = "DUMMY"

// Entry is one registry slot: the tool plus its origin and the display
// name it resolved to after collision handling.
type Entry struct {
	Tool        Tool
	Origin      string // "" for native tools, otherwise the MCP server name
	DisplayName string // model- and operator-visible name
}

// Registry merges the native tool set with each Ready MCP session's
// catalog. When two sources advertise the same name, MCP entries are
// renamed to "{origin}_{name}"; native tools win the short name, and two
// colliding MCP servers both lose it.
type Registry struct {
	mu      sync.RWMutex
	native  []Tool
	servers map[string][]Tool // server name → catalog, insertion-agnostic
	order   []string          // stable server iteration order
	entries map[string]Entry  // display name → entry, rebuilt on mutation
}

// NewRegistry creates a registry over the given native tools.
func NewRegistry(native ...Tool) *Registry {
	r := &Registry{
		native:  native,
		servers: make(map[string][]Tool),
	}
	r.rebuild()
	return r
}

// RegisterNative adds a native tool.
func (r *Registry) RegisterNative(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.native = append(r.native, t)
	r.rebuild()
}

// SetServerTools replaces the catalog for an MCP server. Passing an empty
// slice keeps the server known but toolless; use RemoveServer to drop it.
func (r *Registry) SetServerTools(server string, tools []Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.servers[server]; !known {
		r.order = append(r.order, server)
	}
	r.servers[server] = tools
	r.rebuild()
}

// RemoveServer drops an MCP server's catalog (e.g. after its session
// closed). Its tools disappear from the next snapshot.
func (r *Registry) RemoveServer(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.servers, server)
	for i, name := range r.order {
		if name == server {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.rebuild()
}

// rebuild recomputes the display-name map. Callers hold mu.
func (r *Registry) rebuild() {
	entries := make(map[string]Entry)

	// Native tools claim their short names first; they never lose them.
	for _, t := range r.native {
		name := t.Name()
		if name == DummyToolName {
			continue
		}
		if _, dup := entries[name]; dup {
			log.Printf("[Registry] WARNING: duplicate native tool %q, keeping first", name)
			continue
		}
		entries[name] = Entry{Tool: t, DisplayName: name}
	}

	// MCP tools: collisions against natives or other servers rename the
	// MCP entry to {origin}_{name}. When two servers collide with each
	// other, both are renamed — the short name disappears entirely.
	type claim struct {
		server string
		tool   Tool
	}
	claims := make(map[string][]claim)
	for _, server := range r.order {
		for _, t := range r.servers[server] {
			if t.Name() == DummyToolName {
				continue
			}
			claims[t.Name()] = append(claims[t.Name()], claim{server: server, tool: t})
		}
	}

	names := make([]string, 0, len(claims))
	for name := range claims {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cs := claims[name]
		_, nativeOwns := entries[name]
		if !nativeOwns && len(cs) == 1 {
			entries[name] = Entry{Tool: cs[0].tool, Origin: cs[0].server, DisplayName: name}
			continue
		}
		for _, c := range cs {
			prefixed := fmt.Sprintf("%s_%s", c.server, name)
			if _, dup := entries[prefixed]; dup {
				log.Printf("[Registry] WARNING: cannot place tool %q from server %q", name, c.server)
				continue
			}
			entries[prefixed] = Entry{Tool: c.tool, Origin: c.server, DisplayName: prefixed}
		}
	}

	r.entries = entries
}

// Get retrieves an entry by display name.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns all entries sorted by display name. The DUMMY sentinel is
// never listed.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// Names returns all display names, sorted.
func (r *Registry) Names() []string {
	entries := r.List()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.DisplayName
	}
	return names
}

// Definitions returns the model-visible tool definitions. When the
// registry is empty, the DUMMY placeholder is published so the request
// always carries at least one tool.
func (r *Registry) Definitions() []llm.ToolDefinition {
	entries := r.List()
	if len(entries) == 0 {
		return []llm.ToolDefinition{{
			Name:        DummyToolName,
			Description: "placeholder",
			Parameters:  BuildSchema(),
		}}
	}
	defs := make([]llm.ToolDefinition, len(entries))
	for i, e := range entries {
		defs[i] = llm.ToolDefinition{
			Name:        e.DisplayName,
			Description: e.Tool.Description(),
			Parameters:  e.Tool.InputSchema(),
		}
	}
	return defs
}

// SchemaJSON returns the aggregate JSON Schema presented to the model,
// keyed by display name. Used by /tools schema and for context-window
// accounting.
func (r *Registry) SchemaJSON() json.RawMessage {
	aggregate := make(map[string]json.RawMessage)
	for _, e := range r.List() {
		aggregate[e.DisplayName] = e.Tool.InputSchema()
	}
	data, err := json.MarshalIndent(aggregate, "", "  ")
	if err != nil {
		log.Printf("[Registry] marshal aggregate schema: %v", err)
		return json.RawMessage("{}")
	}
	return data
}
