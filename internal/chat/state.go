package chat

import (
	"sync"

	"github.com/pocketomega/pocket-agent/internal/llm"
	"github.com/pocketomega/pocket-agent/internal/mcp"
	"github.com/pocketomega/pocket-agent/internal/prompts"
	"github.com/pocketomega/pocket-agent/internal/session"
	"github.com/pocketomega/pocket-agent/internal/tool"
)

// Services bundles every collaborator the chat loop needs. There is no
// global state: tests construct their own bundle.
type Services struct {
	Provider     llm.LLMProvider
	Registry     *tool.Registry
	Permissions  *tool.Permissions
	Pool         *mcp.Pool
	Prompts      *prompts.Aggregator
	History      *session.History
	Context      *ContextFiles
	IO           OperatorIO
	Cancel       *CancelFlag
	Hooks        Hooks
	SystemPrompt string

	// On-disk MCP config locations for the /mcp subcommands.
	WorkspaceConfig string
	GlobalConfig    string
}

// Hooks are typed event callbacks fired at turn boundaries. The core
// never serializes them; a telemetry collaborator decides what to do.
// Nil hooks are skipped.
type Hooks struct {
	TurnStart   func(prompt string)
	TurnEnd     func(err error)
	ToolInvoked func(name string, status session.ResultStatus)
}

func (h Hooks) turnStart(prompt string) {
	if h.TurnStart != nil {
		h.TurnStart(prompt)
	}
}

func (h Hooks) turnEnd(err error) {
	if h.TurnEnd != nil {
		h.TurnEnd(err)
	}
}

func (h Hooks) toolInvoked(name string, status session.ResultStatus) {
	if h.ToolInvoked != nil {
		h.ToolInvoked(name, status)
	}
}

// CancelFlag is the level-triggered cancellation signal: once set, every
// suspension point short-circuits until the orchestrator clears it at the
// prompt boundary.
type CancelFlag struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

// NewCancelFlag creates a cleared flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{ch: make(chan struct{})}
}

// Set raises the flag, waking any Watch listeners.
func (f *CancelFlag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		f.set = true
		close(f.ch)
	}
}

// Clear lowers the flag.
func (f *CancelFlag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		f.set = false
		f.ch = make(chan struct{})
	}
}

// IsSet reports whether the flag is raised.
func (f *CancelFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set
}

// Watch returns a channel closed when the flag is next raised.
func (f *CancelFlag) Watch() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

// toolDecision carries one tool use through approval into execution.
type toolDecision struct {
	use      session.ToolUse
	entry    tool.Entry
	approved bool
	// failure set during validation/lookup turns into an error result
	// without ever invoking the tool.
	failure string
}

// turnState is the flow state for a single agent turn. The staged user
// message lives in History; everything here is per-turn scratch.
type turnState struct {
	svc *Services

	assistant session.AssistantMessage // committed assistant turn
	decisions []toolDecision
	results   []session.ToolResult
	trimmed   bool // one auto-trim per turn
	err       error
}
