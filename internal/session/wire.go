package session

import (
	"strings"

	"github.com/pocketomega/pocket-agent/internal/llm"
)

const (
	userEntryStartHeader = "--- USER MESSAGE BEGIN ---\n"
	userEntryEndHeader   = "\n--- USER MESSAGE END ---"
)

// BuildRequest snapshots committed history plus the staged user turn into
// the wire shape the model transport consumes. The caller supplies the
// aggregate tool schema; systemPrompt may be empty.
func (h *History) BuildRequest(tools []llm.ToolDefinition, systemPrompt string) llm.ChatRequest {
	var msgs []llm.Message

	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	if h.summary != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: "[Conversation summary]\n" + h.summary,
		})
	}

	for i := range h.pairs {
		msgs = append(msgs, userWire(&h.pairs[i].User)...)
		msgs = append(msgs, assistantWire(&h.pairs[i].Assistant))
	}
	if h.staged != nil {
		msgs = append(msgs, userWire(h.staged)...)
	}

	return llm.ChatRequest{Messages: msgs, Tools: tools}
}

// userWire expands one user entry into wire messages: tool results become
// role-tool messages (order preserved), any prompt text follows as a user
// message carrying the env context block.
func userWire(m *UserMessage) []llm.Message {
	var out []llm.Message

	for _, r := range m.Results {
		parts := make([]string, 0, len(r.Content))
		for _, b := range r.Content {
			parts = append(parts, b.Render())
		}
		content := strings.Join(parts, "\n")
		if r.Status == StatusError {
			content = "Error: " + content
		}
		out = append(out, llm.Message{
			Role:       llm.RoleTool,
			Content:    content,
			ToolCallID: r.ToolUseID,
		})
	}

	if m.Prompt != "" || len(m.Results) == 0 {
		var sb strings.Builder
		if m.AdditionalContext != "" {
			sb.WriteString(m.AdditionalContext)
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.Env.Block())
		sb.WriteString("\n\n")
		sb.WriteString(userEntryStartHeader)
		sb.WriteString(m.Prompt)
		sb.WriteString(userEntryEndHeader)
		out = append(out, llm.Message{Role: llm.RoleUser, Content: sb.String()})
	}

	return out
}

// assistantWire converts one assistant entry to the wire shape.
func assistantWire(m *AssistantMessage) llm.Message {
	out := llm.Message{Role: llm.RoleAssistant, Content: m.Content}
	for _, u := range m.ToolUses {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        u.ID,
			Name:      u.Name,
			Arguments: u.Arguments,
		})
	}
	return out
}
