package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pocketomega/pocket-agent/internal/llm"
	"github.com/pocketomega/pocket-agent/internal/util"
)

// DefaultCompactKeep is the number of newest exchanges kept verbatim below
// the synthetic summary when no count is given to /compact.
const DefaultCompactKeep = 2

// compactTimeout caps the summary-generation call. Compaction may be
// triggered from contexts with no deadline of their own.
const compactTimeout = 60 * time.Second

// Compact asks the model to summarize all but the newest keepN exchanges,
// then replaces them with the synthetic summary. An existing summary is
// merged into the new one. The keep boundary is widened when it would
// split a tool-use/result chain.
func (h *History) Compact(ctx context.Context, provider llm.LLMProvider, keepN int) error {
	if keepN < 0 {
		keepN = DefaultCompactKeep
	}
	if len(h.pairs) <= keepN {
		return nil
	}

	start := len(h.pairs) - keepN
	// Never let the kept tail open on the results half of a chain.
	for start > 0 && h.pairs[start].User.HasToolResults() {
		start--
	}
	if start == 0 {
		return nil
	}

	summary, err := buildCompactSummary(ctx, provider, h.pairs[:start], h.summary)
	if err != nil {
		return err
	}

	h.summary = summary
	h.pairs = h.pairs[start:]
	// usedIDs is kept whole: id uniqueness spans the entire conversation,
	// including exchanges that now live only inside the summary.
	return nil
}

// buildCompactSummary generates a summary of old exchanges using the model,
// merging an existing summary when present.
func buildCompactSummary(ctx context.Context, provider llm.LLMProvider, old []Pair, existing string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Condense the following conversation into a brief summary. ")
	sb.WriteString("Preserve key facts, decisions, file paths, and unfinished work:\n\n")

	if existing != "" {
		sb.WriteString("## Existing summary\n")
		sb.WriteString(existing)
		sb.WriteString("\n\n## New conversation to merge\n\n")
	}

	for i := range old {
		p := &old[i]
		sb.WriteString(fmt.Sprintf("Round %d:\nUser: %s\nAssistant: %s\n",
			i+1,
			util.TruncateRunes(p.User.Prompt, 500),
			util.TruncateRunes(p.Assistant.Content, 500)))
		for _, u := range p.Assistant.ToolUses {
			sb.WriteString(fmt.Sprintf("Tool: %s %s\n", u.Name, util.TruncateRunes(string(u.Arguments), 200)))
		}
		sb.WriteString("\n")
	}

	llmCtx, cancel := context.WithTimeout(ctx, compactTimeout)
	defer cancel()

	resp, err := provider.CallLLM(llmCtx, llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleUser, Content: sb.String()},
	}})
	if err != nil {
		return "", fmt.Errorf("session: summary generation failed: %w", err)
	}
	return resp.Content, nil
}
