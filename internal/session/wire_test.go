package session

import (
	"context"
	"strings"
	"testing"

	"github.com/pocketomega/pocket-agent/internal/llm"
)

// fakeProvider returns canned responses; used by wire and compact tests.
type fakeProvider struct {
	reply llm.Message
	err   error
	calls int
	last  llm.ChatRequest
}

func (f *fakeProvider) CallLLM(_ context.Context, req llm.ChatRequest) (llm.Message, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func (f *fakeProvider) CallLLMStream(ctx context.Context, req llm.ChatRequest, onChunk llm.StreamCallback) (llm.Message, error) {
	if onChunk != nil && f.reply.Content != "" {
		onChunk(f.reply.Content)
	}
	return f.CallLLM(ctx, req)
}

func (f *fakeProvider) GetName() string { return "fake" }

// ── BuildRequest ──

func TestBuildRequest_OrderingAndRoles(t *testing.T) {
	h := NewHistory(0)
	commit(t, h, promptMsg("list files"), assistantTools("t1"))
	h.StageUser(resultsMsg("t1"))

	req := h.BuildRequest(nil, "you are an agent")

	wantRoles := []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleTool}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d: %+v", len(req.Messages), len(wantRoles), req.Messages)
	}
	for i, want := range wantRoles {
		if req.Messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, req.Messages[i].Role, want)
		}
	}

	// Assistant tool uses cross the wire as tool calls.
	if len(req.Messages[2].ToolCalls) != 1 || req.Messages[2].ToolCalls[0].ID != "t1" {
		t.Errorf("assistant tool calls = %+v", req.Messages[2].ToolCalls)
	}
	// The tool result references the triggering id.
	if req.Messages[3].ToolCallID != "t1" {
		t.Errorf("tool result ToolCallID = %q, want t1", req.Messages[3].ToolCallID)
	}
}

func TestBuildRequest_UserMessageCarriesEnvAndHeaders(t *testing.T) {
	h := NewHistory(0)
	m := promptMsg("hello")
	m.AdditionalContext = "project notes"
	h.StageUser(m)

	req := h.BuildRequest(nil, "")
	if len(req.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(req.Messages))
	}
	content := req.Messages[0].Content
	for _, want := range []string{"project notes", "os: linux", "USER MESSAGE BEGIN", "hello"} {
		if !strings.Contains(content, want) {
			t.Errorf("content missing %q:\n%s", want, content)
		}
	}
}

func TestBuildRequest_ErrorResultsPrefixed(t *testing.T) {
	h := NewHistory(0)
	commit(t, h, promptMsg("run"), assistantTools("t1"))
	h.StageUser(UserMessage{
		Kind: KindToolResults,
		Results: []ToolResult{{
			ToolUseID: "t1",
			Status:    StatusError,
			Content:   []ContentBlock{TextBlock("exit 1")},
		}},
	})

	req := h.BuildRequest(nil, "")
	last := req.Messages[len(req.Messages)-1]
	if !strings.HasPrefix(last.Content, "Error: ") {
		t.Errorf("error result not prefixed: %q", last.Content)
	}
}

func TestBuildRequest_SummaryRendered(t *testing.T) {
	h := NewHistory(0)
	h.summary = "we agreed on plan A"
	h.StageUser(promptMsg("continue"))

	req := h.BuildRequest(nil, "")
	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[0].Content, "plan A") {
		t.Errorf("summary message = %+v", req.Messages[0])
	}
}

func TestBuildRequest_ToolsPassThrough(t *testing.T) {
	h := NewHistory(0)
	h.StageUser(promptMsg("hi"))
	tools := []llm.ToolDefinition{{Name: "shell_run", Parameters: []byte(`{"type":"object"}`)}}

	req := h.BuildRequest(tools, "")
	if len(req.Tools) != 1 || req.Tools[0].Name != "shell_run" {
		t.Errorf("tools = %+v", req.Tools)
	}
}

// ── compaction ──

func TestCompact_ReplacesOldPairsWithSummary(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 5; i++ {
		commit(t, h, promptMsg("q"), assistantText("a"))
	}

	p := &fakeProvider{reply: llm.Message{Role: llm.RoleAssistant, Content: "summary text"}}
	if err := h.Compact(context.Background(), p, 2); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
	if h.Summary() != "summary text" {
		t.Errorf("Summary = %q", h.Summary())
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}

func TestCompact_NothingToDo(t *testing.T) {
	h := NewHistory(0)
	commit(t, h, promptMsg("q"), assistantText("a"))

	p := &fakeProvider{}
	if err := h.Compact(context.Background(), p, 2); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if p.calls != 0 {
		t.Errorf("provider calls = %d, want 0", p.calls)
	}
}

func TestCompact_MergesExistingSummary(t *testing.T) {
	h := NewHistory(0)
	h.summary = "earlier facts"
	for i := 0; i < 4; i++ {
		commit(t, h, promptMsg("q"), assistantText("a"))
	}

	p := &fakeProvider{reply: llm.Message{Content: "merged"}}
	if err := h.Compact(context.Background(), p, 1); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	sent := p.last.Messages[0].Content
	if !strings.Contains(sent, "earlier facts") {
		t.Errorf("existing summary not included in prompt:\n%s", sent)
	}
	if h.Summary() != "merged" {
		t.Errorf("Summary = %q, want merged", h.Summary())
	}
}

func TestCompact_BoundaryAvoidsSplittingToolChain(t *testing.T) {
	h := NewHistory(0)
	commit(t, h, promptMsg("one"), assistantText("1"))
	commit(t, h, promptMsg("two"), assistantTools("t1"))
	h.StageUser(resultsMsg("t1"))
	if _, err := h.CommitAssistant(assistantText("done")); err != nil {
		t.Fatalf("CommitAssistant: %v", err)
	}

	p := &fakeProvider{reply: llm.Message{Content: "s"}}
	// keep=1 would start the tail on the results pair; the boundary must
	// widen to keep the tool-use pair too.
	if err := h.Compact(context.Background(), p, 1); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (chain kept whole)", h.Len())
	}
	if h.Pairs()[0].User.HasToolResults() {
		t.Error("kept tail begins with orphaned tool results")
	}
}
