package session

import (
	"encoding/json"
	"fmt"
	"log"
)

// History is the committed conversation: strictly alternating
// (user, assistant) pairs plus an optional synthetic compaction summary.
//
// The in-flight user turn is staged outside committed history until its
// assistant reply arrives, so committed history never ends on a dangling
// user message.
//
// History is single-owner: the chat orchestrator task. It is not safe for
// concurrent mutation and does not lock.
type History struct {
	pairs   []Pair
	summary string
	staged  *UserMessage
	usedIDs map[string]struct{}
	window  int // context-window token ceiling
}

// NewHistory creates an empty history with the given token ceiling.
// window <= 0 selects DefaultContextWindow.
func NewHistory(window int) *History {
	if window <= 0 {
		window = DefaultContextWindow
	}
	return &History{
		usedIDs: make(map[string]struct{}),
		window:  window,
	}
}

// Window returns the configured token ceiling.
func (h *History) Window() int { return h.window }

// Len returns the number of committed pairs.
func (h *History) Len() int { return len(h.pairs) }

// Pairs returns a copy of the committed pairs.
func (h *History) Pairs() []Pair {
	out := make([]Pair, len(h.pairs))
	copy(out, h.pairs)
	return out
}

// Summary returns the synthetic compaction summary, if any.
func (h *History) Summary() string { return h.summary }

// Staged returns the in-flight user message, or nil.
func (h *History) Staged() *UserMessage { return h.staged }

// Clear erases all committed history, the summary and any staged turn.
func (h *History) Clear() {
	h.pairs = nil
	h.summary = ""
	h.staged = nil
	h.usedIDs = make(map[string]struct{})
}

// lastAssistant returns the most recently committed assistant message, or nil.
func (h *History) lastAssistant() *AssistantMessage {
	if len(h.pairs) == 0 {
		return nil
	}
	return &h.pairs[len(h.pairs)-1].Assistant
}

// StageUser validates m against the pairing invariant and holds it as the
// in-flight turn. If the last committed assistant message requested tool
// uses, m must answer exactly those ids: missing ids get synthesized
// cancellation errors, extras are dropped, and results are reordered to
// match the assistant's request order. The fixed-up message is returned.
func (h *History) StageUser(m UserMessage) UserMessage {
	// A fresh prompt arriving while cancelled-batch results are already
	// staged merges into them: real results from tools that did run are
	// kept, and the prompt rides along on the same turn.
	if h.staged != nil && h.staged.HasToolResults() && !m.HasToolResults() {
		merged := *h.staged
		merged.Kind = KindCancelled
		merged.Prompt = m.Prompt
		merged.AdditionalContext = m.AdditionalContext
		merged.Env = m.Env
		m = merged
	}

	last := h.lastAssistant()
	if last != nil && len(last.ToolUses) > 0 {
		m = h.fixUpToolResults(m, last.ToolUses)
	} else if m.HasToolResults() {
		// Results with no preceding tool-use turn cannot be paired; drop
		// them and keep any prompt text so the turn is still usable.
		log.Printf("[Session] dropping %d orphan tool results", len(m.Results))
		m.Results = nil
		m.Kind = KindPrompt
	}
	h.staged = &m
	return m
}

// fixUpToolResults reshapes m so its result set equals the id set of uses.
func (h *History) fixUpToolResults(m UserMessage, uses []ToolUse) UserMessage {
	byID := make(map[string]ToolResult, len(m.Results))
	for _, r := range m.Results {
		byID[r.ToolUseID] = r
	}

	fixed := make([]ToolResult, 0, len(uses))
	synthesized := 0
	for _, u := range uses {
		if r, ok := byID[u.ID]; ok {
			fixed = append(fixed, r)
			delete(byID, u.ID)
		} else {
			fixed = append(fixed, CancelledResult(u.ID))
			synthesized++
		}
	}
	if len(byID) > 0 {
		log.Printf("[Session] dropping %d tool results with unknown ids", len(byID))
	}
	if synthesized > 0 {
		log.Printf("[Session] synthesized %d cancelled tool results", synthesized)
	}

	m.Results = fixed
	if m.Kind == KindPrompt {
		// A prompt arriving while tool uses are outstanding means the batch
		// was abandoned; record it as a cancellation that carries the prompt.
		m.Kind = KindCancelled
	}
	return m
}

// AbandonTurn drops the staged user message, leaving committed history
// intact. Used when a turn fails outside a tool call.
func (h *History) AbandonTurn() { h.staged = nil }

// CommitAssistant pairs the staged user message with a, enforcing global
// tool-use id uniqueness: colliding ids are rewritten with a stable "#n"
// suffix before commit. The possibly-rewritten message is returned so the
// caller executes tools under the committed ids.
func (h *History) CommitAssistant(a AssistantMessage) (AssistantMessage, error) {
	if h.staged == nil {
		return a, fmt.Errorf("session: commit assistant with no staged user turn")
	}

	for i := range a.ToolUses {
		id := a.ToolUses[i].ID
		if _, taken := h.usedIDs[id]; taken {
			renamed := h.rewriteID(id)
			log.Printf("[Session] tool use id %q already used, rewritten to %q", id, renamed)
			a.ToolUses[i].ID = renamed
			id = renamed
		}
		h.usedIDs[id] = struct{}{}
	}

	h.pairs = append(h.pairs, Pair{User: *h.staged, Assistant: a})
	h.staged = nil
	return a, nil
}

// rewriteID finds the first free "#n" variant of id, starting at #2.
func (h *History) rewriteID(id string) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s#%d", id, n)
		if _, taken := h.usedIDs[candidate]; !taken {
			return candidate
		}
	}
}

// TokensInHistory approximates the token weight of committed history plus
// the summary.
func (h *History) TokensInHistory() int {
	total := EstimateTokens(h.summary)
	for i := range h.pairs {
		total += estimatePairTokens(&h.pairs[i])
	}
	return total
}

// TrimToFit drops oldest pairs until history + extra fits the window.
// A pair whose successor carries the matching tool results is dropped
// together with that successor so a tool-use/result chain is never split.
// Returns the number of pairs dropped; at most one warning is logged per
// trim event.
func (h *History) TrimToFit(extra int) int {
	dropped := 0
	for len(h.pairs) > 1 && h.TokensInHistory()+extra > h.window {
		h.pairs = h.pairs[1:]
		dropped++
		// The new head may be the results half of a chain whose tool-use
		// half was just dropped; it cannot stand alone.
		for len(h.pairs) > 1 && h.pairs[0].User.HasToolResults() {
			h.pairs = h.pairs[1:]
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("[Session] context window pressure: dropped %d oldest exchange(s)", dropped)
	}
	return dropped
}

// ── serialization ──

type historyJSON struct {
	Pairs   []Pair `json:"pairs"`
	Summary string `json:"summary,omitempty"`
	Window  int    `json:"window"`
}

// MarshalJSON serializes committed history. The staged turn is in-flight
// state and deliberately excluded.
func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyJSON{Pairs: h.pairs, Summary: h.summary, Window: h.window})
}

// UnmarshalJSON restores committed history and rebuilds the id set.
func (h *History) UnmarshalJSON(data []byte) error {
	var raw historyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("session: decode history: %w", err)
	}
	h.pairs = raw.Pairs
	h.summary = raw.Summary
	h.window = raw.Window
	if h.window <= 0 {
		h.window = DefaultContextWindow
	}
	h.staged = nil
	h.usedIDs = make(map[string]struct{})
	for i := range h.pairs {
		for _, u := range h.pairs[i].Assistant.ToolUses {
			h.usedIDs[u.ID] = struct{}{}
		}
	}
	return nil
}
