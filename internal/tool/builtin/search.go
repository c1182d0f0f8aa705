package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/tool"
)

// SearchIndex is the opaque index the semantic search tool delegates to.
// The index implementation lives outside the core; the shipped one
// (search.LocalIndex) is a term-frequency scan, not an embedding index.
type SearchIndex interface {
	// Search returns ranked snippets for query, at most limit.
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// SearchHit is one ranked snippet.
type SearchHit struct {
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

const defaultSearchLimit = 8

// SemanticSearchTool answers natural-language queries against the index.
type SemanticSearchTool struct {
	index SearchIndex
}

func NewSemanticSearchTool(index SearchIndex) *SemanticSearchTool {
	return &SemanticSearchTool{index: index}
}

func (t *SemanticSearchTool) Name() string { return "semantic_search" }

func (t *SemanticSearchTool) Description() string {
	return "Search the workspace knowledge index with a natural-language query and return ranked snippets."
}

func (t *SemanticSearchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "query", Type: "string", Description: "Natural-language search query", Required: true},
		tool.SchemaParam{Name: "limit", Type: "integer", Description: "Maximum number of results"},
	)
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (t *SemanticSearchTool) Validate(_ context.Context, args json.RawMessage) error {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("semantic_search: parse args: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return fmt.Errorf("semantic_search: query must not be empty")
	}
	return nil
}

func (t *SemanticSearchTool) RequiresConfirmation(json.RawMessage) bool { return false }

func (t *SemanticSearchTool) Describe(w io.Writer, args json.RawMessage) {
	var a searchArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will search the knowledge index for: %s\n", a.Query)
}

func (t *SemanticSearchTool) Invoke(ctx context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("semantic_search: parse args: %w", err)
	}
	if t.index == nil {
		return tool.InvokeOutput{}, fmt.Errorf("semantic_search: no index configured")
	}
	limit := a.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	hits, err := t.index.Search(ctx, a.Query, limit)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("semantic_search: %w", err)
	}
	return tool.JSONOutput(hits)
}
