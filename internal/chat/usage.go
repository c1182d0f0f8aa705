package chat

import (
	"fmt"
	"io"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/session"
)

// UsageBreakdown is the token share of each window category.
type UsageBreakdown struct {
	ContextFiles int
	ToolsSchema  int
	Assistant    int
	User         int
	Window       int
}

// Total is the sum of all categories.
func (u UsageBreakdown) Total() int {
	return u.ContextFiles + u.ToolsSchema + u.Assistant + u.User
}

// measureUsage splits the current session across the usage categories.
func measureUsage(svc *Services) UsageBreakdown {
	u := UsageBreakdown{Window: svc.History.Window()}
	if svc.Context != nil {
		u.ContextFiles = svc.Context.Tokens()
	}
	u.ToolsSchema = session.EstimateTokens(string(svc.Registry.SchemaJSON()))

	for _, p := range svc.History.Pairs() {
		u.User += session.EstimateTokens(p.User.Prompt)
		for _, r := range p.User.Results {
			for _, b := range r.Content {
				u.User += session.EstimateTokens(b.Render())
			}
		}
		u.Assistant += session.EstimateTokens(p.Assistant.Content)
		for _, use := range p.Assistant.ToolUses {
			u.Assistant += session.EstimateTokens(string(use.Arguments))
		}
	}
	if summary := svc.History.Summary(); summary != "" {
		u.Assistant += session.EstimateTokens(summary)
	}
	return u
}

const usageBarWidth = 40

// renderUsage draws the stacked usage bar and the per-category legend.
func renderUsage(w io.Writer, u UsageBreakdown) {
	total := u.Total()
	fmt.Fprintf(w, "Context window: %d of %d tokens used (%.1f%%)\n",
		total, u.Window, 100*float64(total)/float64(u.Window))

	segments := []struct {
		label  string
		tokens int
		fill   rune
	}{
		{"context files", u.ContextFiles, '█'},
		{"tools schema", u.ToolsSchema, '▓'},
		{"assistant", u.Assistant, '▒'},
		{"user", u.User, '░'},
	}

	var bar strings.Builder
	used := 0
	for _, seg := range segments {
		cells := scaleCells(seg.tokens, u.Window)
		bar.WriteString(strings.Repeat(string(seg.fill), cells))
		used += cells
	}
	if used > usageBarWidth {
		used = usageBarWidth
	}
	fmt.Fprintf(w, "[%-*s]\n", usageBarWidth, bar.String()[:byteLenForCells(bar.String(), used)])

	for _, seg := range segments {
		pct := 0.0
		if u.Window > 0 {
			pct = 100 * float64(seg.tokens) / float64(u.Window)
		}
		fmt.Fprintf(w, "  %s %-14s %8d tokens (%.1f%%)\n", string(seg.fill), seg.label, seg.tokens, pct)
	}
}

// scaleCells maps a token count onto bar cells, rounding up so nonzero
// categories are always visible.
func scaleCells(tokens, window int) int {
	if tokens <= 0 || window <= 0 {
		return 0
	}
	cells := tokens * usageBarWidth / window
	if cells == 0 {
		cells = 1
	}
	if cells > usageBarWidth {
		cells = usageBarWidth
	}
	return cells
}

// byteLenForCells returns the byte length covering the first n runes.
func byteLenForCells(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
