// Package prompts surfaces MCP prompts and resources to the operator and
// resolves @name references against the owning server.
package prompts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/mcp"
)

// ArgSpec describes one declared prompt argument.
type ArgSpec struct {
	Name        string
	Description string
	Required    bool
}

// Entry is one listed prompt with its origin.
type Entry struct {
	Origin      string
	Name        string
	Description string
	Arguments   []ArgSpec
}

// Ref renders the unambiguous server/name reference.
func (e Entry) Ref() string { return e.Origin + "/" + e.Name }

// AmbiguousError reports a prompt name published by two or more servers.
type AmbiguousError struct {
	Name         string
	Alternatives []string // server/name refs
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("prompt %q is ambiguous; use one of: %s", e.Name, strings.Join(e.Alternatives, ", "))
}

// Aggregator lists and resolves prompts across every Ready MCP session.
type Aggregator struct {
	pool *mcp.Pool
}

// NewAggregator creates an aggregator over the pool.
func NewAggregator(pool *mcp.Pool) *Aggregator {
	return &Aggregator{pool: pool}
}

// List returns all prompts, optionally filtered by a substring of the
// name, ordered by origin then name.
func (a *Aggregator) List(ctx context.Context, word string) ([]Entry, error) {
	var out []Entry
	for _, client := range a.pool.Ready() {
		prompts, err := client.Prompts(ctx)
		if err != nil {
			return nil, fmt.Errorf("prompts: list on %q: %w", client.Name(), err)
		}
		for _, p := range prompts {
			if word != "" && !strings.Contains(p.Name, word) {
				continue
			}
			entry := Entry{
				Origin:      client.Name(),
				Name:        p.Name,
				Description: p.Description,
			}
			for _, arg := range p.Arguments {
				entry.Arguments = append(entry.Arguments, ArgSpec{
					Name:        arg.Name,
					Description: arg.Description,
					Required:    arg.Required,
				})
			}
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Resolve finds the single owner of ref. A ref is either "name" or
// "server/name"; a bare name owned by two or more servers fails with
// AmbiguousError, never sending anything to the model.
func (a *Aggregator) Resolve(ctx context.Context, ref string) (Entry, error) {
	var wantOrigin, wantName string
	if idx := strings.Index(ref, "/"); idx >= 0 {
		wantOrigin, wantName = ref[:idx], ref[idx+1:]
	} else {
		wantName = ref
	}

	all, err := a.List(ctx, "")
	if err != nil {
		return Entry{}, err
	}

	var matches []Entry
	for _, e := range all {
		if e.Name != wantName {
			continue
		}
		if wantOrigin != "" && e.Origin != wantOrigin {
			continue
		}
		matches = append(matches, e)
	}

	switch len(matches) {
	case 0:
		return Entry{}, fmt.Errorf("prompts: no prompt named %q", ref)
	case 1:
		return matches[0], nil
	default:
		alts := make([]string, len(matches))
		for i, m := range matches {
			alts[i] = m.Ref()
		}
		return Entry{}, &AmbiguousError{Name: wantName, Alternatives: alts}
	}
}

// Get resolves ref and renders the prompt with positional args bound to
// the declared argument names in order.
func (a *Aggregator) Get(ctx context.Context, ref string, args []string) ([]mcp.PromptMessage, error) {
	entry, err := a.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if required := countRequired(entry.Arguments); len(args) < required {
		return nil, fmt.Errorf("prompts: %s needs %d argument(s), got %d", entry.Ref(), required, len(args))
	}

	bound := make(map[string]string)
	for i, arg := range args {
		if i >= len(entry.Arguments) {
			break
		}
		bound[entry.Arguments[i].Name] = arg
	}

	client, ok := a.pool.Get(entry.Origin)
	if !ok {
		return nil, fmt.Errorf("prompts: server %q no longer available", entry.Origin)
	}
	return client.GetPrompt(ctx, entry.Name, bound)
}

func countRequired(args []ArgSpec) int {
	n := 0
	for _, a := range args {
		if a.Required {
			n++
		}
	}
	return n
}
