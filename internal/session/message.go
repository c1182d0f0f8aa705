// Package session implements the conversation state engine: the ordered,
// validated turn history that is resent to the model on every request.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// maxCwdLen bounds the working-directory string carried in the env context.
const maxCwdLen = 256

// CancelledByUser is the tool-result text used whenever a tool use is
// refused, interrupted, or left unanswered by the operator.
const CancelledByUser = "Tool use was cancelled by the user"

// ToolUse is a single tool invocation requested by the assistant.
// IDs are unique within a turn; the engine enforces global uniqueness
// across the whole history at commit time.
type ToolUse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ResultStatus is the outcome of a tool invocation.
type ResultStatus string

const (
	StatusSuccess   ResultStatus = "success"
	StatusError     ResultStatus = "error"
	StatusCancelled ResultStatus = "cancelled"
)

// ContentBlock is one piece of tool-result content: plain text or an
// opaque JSON value. Exactly one field is set.
type ContentBlock struct {
	Text string          `json:"text,omitempty"`
	JSON json.RawMessage `json:"json,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(s string) ContentBlock { return ContentBlock{Text: s} }

// JSONBlock builds a JSON content block.
func JSONBlock(v json.RawMessage) ContentBlock { return ContentBlock{JSON: v} }

// Render flattens the block to the string handed to the model.
func (b ContentBlock) Render() string {
	if b.Text != "" {
		return b.Text
	}
	return string(b.JSON)
}

// ToolResult answers one ToolUse.
type ToolResult struct {
	ToolUseID string         `json:"tool_use_id"`
	Status    ResultStatus   `json:"status"`
	Content   []ContentBlock `json:"content"`
}

// CancelledResult synthesizes the error result used for refused or
// never-started tool uses.
func CancelledResult(toolUseID string) ToolResult {
	return ToolResult{
		ToolUseID: toolUseID,
		Status:    StatusCancelled,
		Content:   []ContentBlock{TextBlock(CancelledByUser)},
	}
}

// EnvContext captures the operator environment at message creation time.
type EnvContext struct {
	OS        string `json:"os"`
	Cwd       string `json:"cwd"`
	ShellName string `json:"shell_name"`
}

// CaptureEnv snapshots the current environment.
func CaptureEnv() EnvContext {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	if len(cwd) > maxCwdLen {
		cwd = cwd[:maxCwdLen]
	}
	shell := os.Getenv("SHELL")
	return EnvContext{OS: runtime.GOOS, Cwd: cwd, ShellName: shell}
}

// Block renders the env context as the preamble attached to user messages.
func (e EnvContext) Block() string {
	return fmt.Sprintf("[Environment]\nos: %s\ncwd: %s\nshell: %s", e.OS, e.Cwd, e.ShellName)
}

// UserKind tags the variant of a user message.
type UserKind string

const (
	// KindPrompt is a plain operator prompt.
	KindPrompt UserKind = "prompt"
	// KindToolResults answers a preceding assistant tool-use turn.
	KindToolResults UserKind = "tool_results"
	// KindCancelled answers a tool-use turn whose batch was cancelled;
	// it may also carry a fresh operator prompt.
	KindCancelled UserKind = "cancelled_tool_uses"
)

// UserMessage is one user-side turn entry.
type UserMessage struct {
	Kind              UserKind     `json:"kind"`
	Prompt            string       `json:"prompt,omitempty"`
	Results           []ToolResult `json:"results,omitempty"`
	Env               EnvContext   `json:"env"`
	AdditionalContext string       `json:"additional_context,omitempty"`
}

// NewPrompt creates a plain prompt message with a fresh env snapshot.
func NewPrompt(prompt string) UserMessage {
	return UserMessage{Kind: KindPrompt, Prompt: prompt, Env: CaptureEnv()}
}

// NewToolResults creates a tool-results message with a fresh env snapshot.
func NewToolResults(results []ToolResult) UserMessage {
	return UserMessage{Kind: KindToolResults, Results: results, Env: CaptureEnv()}
}

// NewCancelledToolUses creates the user message that answers a cancelled
// batch: one cancelled result per id, plus an optional fresh prompt.
func NewCancelledToolUses(prompt string, toolUseIDs []string) UserMessage {
	results := make([]ToolResult, 0, len(toolUseIDs))
	for _, id := range toolUseIDs {
		results = append(results, CancelledResult(id))
	}
	return UserMessage{Kind: KindCancelled, Prompt: prompt, Results: results, Env: CaptureEnv()}
}

// HasToolResults reports whether this message answers tool uses.
func (m *UserMessage) HasToolResults() bool {
	return m.Kind == KindToolResults || m.Kind == KindCancelled
}

// AssistantMessage is one assistant-side turn entry. ToolUses is empty for
// a plain response.
type AssistantMessage struct {
	MessageID string    `json:"message_id,omitempty"`
	Content   string    `json:"content"`
	ToolUses  []ToolUse `json:"tool_uses,omitempty"`
}

// Pair is one committed (user, assistant) exchange.
type Pair struct {
	User      UserMessage      `json:"user"`
	Assistant AssistantMessage `json:"assistant"`
}

// chars reports the approximate character weight of a pair for token
// accounting.
func (p *Pair) chars() int {
	n := len(p.User.Prompt) + len(p.User.AdditionalContext) + len(p.Assistant.Content)
	for _, r := range p.User.Results {
		for _, b := range r.Content {
			n += len(b.Text) + len(b.JSON)
		}
	}
	for _, u := range p.Assistant.ToolUses {
		n += len(u.Name) + len(u.Arguments)
	}
	return n
}
