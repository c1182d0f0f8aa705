package chat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/mark3labs/mcp-go/mcp"

	"github.com/pocketomega/pocket-agent/internal/llm"
	"github.com/pocketomega/pocket-agent/internal/mcp"
	"github.com/pocketomega/pocket-agent/internal/prompts"
	"github.com/pocketomega/pocket-agent/internal/session"
	"github.com/pocketomega/pocket-agent/internal/tool"
)

func newCommandServices(t *testing.T, tools ...tool.Tool) (*Services, *scriptedIO) {
	t.Helper()
	io_ := &scriptedIO{}
	dir := t.TempDir()
	ctxFiles, err := LoadContextFiles(ContextStorePath(dir))
	if err != nil {
		t.Fatal(err)
	}
	pool := mcp.NewPool(sdk.Implementation{Name: "pocket-agent", Version: "0.1.0"})
	svc := &Services{
		Provider:        &scriptedProvider{},
		Registry:        tool.NewRegistry(tools...),
		Permissions:     tool.NewPermissions("fs_read"),
		Pool:            pool,
		Prompts:         prompts.NewAggregator(pool),
		History:         session.NewHistory(0),
		Context:         ctxFiles,
		IO:              io_,
		Cancel:          NewCancelFlag(),
		WorkspaceConfig: filepath.Join(dir, ".pocket-agent", "mcp.json"),
		GlobalConfig:    filepath.Join(dir, "global", "mcp.json"),
	}
	return svc, io_
}

func dispatch(t *testing.T, svc *Services, line string) error {
	t.Helper()
	d := NewDispatcher(svc, func([]mcp.PromptMessage) {})
	return d.Dispatch(context.Background(), line)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	svc, _ := newCommandServices(t)
	if err := dispatch(t, svc, "/bogus"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestDispatch_Help(t *testing.T) {
	svc, io_ := newCommandServices(t)
	if err := dispatch(t, svc, "/help"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(io_.out.String(), "/tools") {
		t.Errorf("help output = %q", io_.out.String())
	}
}

func TestDispatch_ToolsListShowsTrust(t *testing.T) {
	svc, io_ := newCommandServices(t, &flagTool{name: "fs_read"}, &flagTool{name: "deploy", confirm: true})
	if err := dispatch(t, svc, "/tools"); err != nil {
		t.Fatal(err)
	}
	out := io_.out.String()
	if !strings.Contains(out, "fs_read") || !strings.Contains(out, "trusted") {
		t.Errorf("listing = %q", out)
	}
	if !strings.Contains(out, "per-request") {
		t.Errorf("untrusted marker missing: %q", out)
	}
}

func TestDispatch_ToolsTrustUntrust(t *testing.T) {
	svc, _ := newCommandServices(t, &flagTool{name: "deploy", confirm: true})

	if err := dispatch(t, svc, "/tools trust deploy"); err != nil {
		t.Fatal(err)
	}
	if !svc.Permissions.IsTrusted("deploy") {
		t.Error("trust not applied")
	}
	if err := dispatch(t, svc, "/tools untrust deploy"); err != nil {
		t.Fatal(err)
	}
	if svc.Permissions.IsTrusted("deploy") {
		t.Error("untrust not applied")
	}
}

func TestDispatch_ToolsTrustUnknownName(t *testing.T) {
	svc, _ := newCommandServices(t)
	if err := dispatch(t, svc, "/tools trust nope"); err == nil {
		t.Fatal("expected error trusting an unknown tool")
	}
}

func TestDispatch_ToolsTrustAllAndReset(t *testing.T) {
	svc, _ := newCommandServices(t, &flagTool{name: "deploy", confirm: true})

	if err := dispatch(t, svc, "/tools trust-all"); err != nil {
		t.Fatal(err)
	}
	if !svc.Permissions.IsTrusted("deploy") {
		t.Error("trust-all not applied")
	}
	if err := dispatch(t, svc, "/tools reset"); err != nil {
		t.Fatal(err)
	}
	if svc.Permissions.IsTrusted("deploy") {
		t.Error("reset did not clear trust-all")
	}
}

func TestDispatch_ToolsSchema(t *testing.T) {
	svc, io_ := newCommandServices(t, &flagTool{name: "deploy"})
	if err := dispatch(t, svc, "/tools schema"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(io_.out.String(), "deploy") {
		t.Errorf("schema output = %q", io_.out.String())
	}
}

func TestDispatch_Usage(t *testing.T) {
	svc, io_ := newCommandServices(t)
	svc.History.StageUser(session.NewPrompt("hello"))
	if _, err := svc.History.CommitAssistant(session.AssistantMessage{Content: "world"}); err != nil {
		t.Fatal(err)
	}

	if err := dispatch(t, svc, "/usage"); err != nil {
		t.Fatal(err)
	}
	out := io_.out.String()
	for _, want := range []string{"Context window", "tools schema", "assistant", "user", "context files"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage output missing %q:\n%s", want, out)
		}
	}
}

func TestDispatch_Clear(t *testing.T) {
	svc, _ := newCommandServices(t)
	svc.History.StageUser(session.NewPrompt("a"))
	if _, err := svc.History.CommitAssistant(session.AssistantMessage{Content: "b"}); err != nil {
		t.Fatal(err)
	}

	if err := dispatch(t, svc, "/clear"); err != nil {
		t.Fatal(err)
	}
	if svc.History.Len() != 0 {
		t.Error("history not cleared")
	}
}

func TestDispatch_Compact(t *testing.T) {
	svc, _ := newCommandServices(t)
	provider := svc.Provider.(*scriptedProvider)
	provider.script = []func(llm.ChatRequest) (llm.Message, error){textReply("the summary")}
	for i := 0; i < 4; i++ {
		svc.History.StageUser(session.NewPrompt("q"))
		if _, err := svc.History.CommitAssistant(session.AssistantMessage{Content: "a"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := dispatch(t, svc, "/compact 1"); err != nil {
		t.Fatal(err)
	}
	if svc.History.Len() != 1 {
		t.Errorf("pairs = %d, want 1", svc.History.Len())
	}
	if svc.History.Summary() != "the summary" {
		t.Errorf("summary = %q", svc.History.Summary())
	}
}

func TestDispatch_ContextAddShowRm(t *testing.T) {
	svc, io_ := newCommandServices(t)
	file := filepath.Join(t.TempDir(), "notes.md")
	if err := writeTestFile(file, "remember this"); err != nil {
		t.Fatal(err)
	}

	if err := dispatch(t, svc, "/context add "+file); err != nil {
		t.Fatal(err)
	}
	if err := dispatch(t, svc, "/context show"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(io_.out.String(), file) {
		t.Errorf("show output = %q", io_.out.String())
	}
	if !strings.Contains(svc.Context.Render(), "remember this") {
		t.Errorf("render = %q", svc.Context.Render())
	}

	if err := dispatch(t, svc, "/context rm "+file); err != nil {
		t.Fatal(err)
	}
	if len(svc.Context.Paths()) != 0 {
		t.Error("path not removed")
	}
	if err := dispatch(t, svc, "/context rm "+file); err == nil {
		t.Error("removing a non-context file should error")
	}
}

func TestDispatch_McpAddPersistsAndLists(t *testing.T) {
	svc, io_ := newCommandServices(t)

	// The binary does not exist: the session degrades but stays listed
	// with its reason inspectable via /mcp status.
	err := dispatch(t, svc, "/mcp add fs /nonexistent/fs-server --timeout 200")
	if err != nil {
		t.Fatalf("/mcp add: %v", err)
	}

	servers, err := mcp.LoadConfig(svc.WorkspaceConfig)
	if err != nil {
		t.Fatal(err)
	}
	cfg, ok := servers["fs"]
	if !ok || cfg.Command != "/nonexistent/fs-server" || cfg.TimeoutMs != 200 {
		t.Errorf("persisted config = %+v", cfg)
	}

	io_.out.Reset()
	if err := dispatch(t, svc, "/mcp list"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(io_.out.String(), "fs") || !strings.Contains(io_.out.String(), "degraded") {
		t.Errorf("list output = %q", io_.out.String())
	}

	io_.out.Reset()
	if err := dispatch(t, svc, "/mcp status fs"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(io_.out.String(), "reason:") {
		t.Errorf("status output missing reason: %q", io_.out.String())
	}
}

func TestDispatch_McpAddDuplicateNeedsForce(t *testing.T) {
	svc, _ := newCommandServices(t)
	if err := dispatch(t, svc, "/mcp add fs /bin/true"); err != nil {
		t.Fatal(err)
	}
	if err := dispatch(t, svc, "/mcp add fs /bin/false"); err == nil {
		t.Fatal("duplicate add without --force should fail")
	}
	if err := dispatch(t, svc, "/mcp add fs /bin/false --force"); err != nil {
		t.Fatalf("forced add: %v", err)
	}
}

func TestDispatch_McpRemove(t *testing.T) {
	svc, _ := newCommandServices(t)
	if err := dispatch(t, svc, "/mcp add fs /nonexistent/bin"); err != nil {
		t.Fatal(err)
	}
	if err := dispatch(t, svc, "/mcp remove fs"); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Pool.Get("fs"); ok {
		t.Error("session survived /mcp remove")
	}
	servers, _ := mcp.LoadConfig(svc.WorkspaceConfig)
	if len(servers) != 0 {
		t.Error("config entry survived /mcp remove")
	}
}

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestSplitFlags(t *testing.T) {
	flags, rest := splitFlags([]string{"fs", "--scope", "global", "cmd", "--force", "--timeout=99"})
	if flags["scope"] != "global" || flags["force"] != "true" || flags["timeout"] != "99" {
		t.Errorf("flags = %v", flags)
	}
	if len(rest) != 2 || rest[0] != "fs" || rest[1] != "cmd" {
		t.Errorf("rest = %v", rest)
	}
}
