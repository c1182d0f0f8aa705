package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/pocketomega/pocket-agent/internal/core"
	"github.com/pocketomega/pocket-agent/internal/llm"
	"github.com/pocketomega/pocket-agent/internal/session"
)

// The agent turn is a flow over the core engine:
//
//	send ──(tools)──▶ approve ──(execute)──▶ execute ──(send)──▶ send
//	  │                  └──(cancel)──▶ cancelAll ──(send)──▶ send
//	  └──(end/failure)──▶ flow exits, control returns to the prompt
//
// The staged user message lives in History before the flow starts; every
// node mutates turnState and History only from the single flow goroutine.

// newTurnFlow wires the per-turn node graph.
func newTurnFlow() *core.Flow[turnState] {
	send := core.NewNode[turnState, *turnState, llm.Message](&sendNode{}, 0)
	approve := core.NewNode[turnState, *turnState, []toolDecision](&approveNode{}, 0)
	execute := core.NewNode[turnState, *turnState, []session.ToolResult](&executeNode{}, 0)
	cancelAll := core.NewNode[turnState, *turnState, []session.ToolResult](&cancelAllNode{}, 0)

	send.AddSuccessor(approve, core.ActionTools)
	approve.AddSuccessor(execute, core.ActionExecute)
	approve.AddSuccessor(cancelAll, core.ActionCancel)
	execute.AddSuccessor(send, core.ActionSend)
	cancelAll.AddSuccessor(send, core.ActionSend)

	return core.NewFlow[turnState](send)
}

// ── send: SEND_TO_MODEL + STREAMING ──

type sendNode struct{}

func (n *sendNode) Prep(state *turnState) []*turnState { return []*turnState{state} }

func (n *sendNode) Exec(ctx context.Context, state *turnState) (llm.Message, error) {
	svc := state.svc

	// Cancellation is checked before every send.
	if svc.Cancel.IsSet() {
		return llm.Message{}, errCancelled
	}

	req := svc.History.BuildRequest(svc.Registry.Definitions(), svc.SystemPrompt)
	onChunk := func(chunk string) {
		if !svc.Cancel.IsSet() {
			fmt.Fprint(svc.IO, chunk)
		}
	}

	msg, err := callModel(ctx, svc.Provider, req, onChunk)
	if errors.Is(err, llm.ErrContextOverflow) && !state.trimmed {
		// Exactly one auto-trim per turn; a second overflow fails it.
		state.trimmed = true
		schemaTokens := session.EstimateTokens(string(svc.Registry.SchemaJSON()))
		svc.History.TrimToFit(schemaTokens)
		fmt.Fprintln(svc.IO, "\n(context window exceeded; oldest history trimmed, retrying)")
		req = svc.History.BuildRequest(svc.Registry.Definitions(), svc.SystemPrompt)
		msg, err = callModel(ctx, svc.Provider, req, onChunk)
	}
	if err != nil {
		state.err = err
		return llm.Message{}, err
	}
	return msg, nil
}

// ExecFallback returns the zero message; its empty Role marks the failed
// call for Post.
func (n *sendNode) ExecFallback(err error) llm.Message {
	return llm.Message{}
}

func (n *sendNode) Post(state *turnState, _ []*turnState, results ...llm.Message) core.Action {
	svc := state.svc
	if len(results) == 0 {
		return core.ActionFailure
	}
	msg := results[0]

	if msg.Role == "" { // fallback marker: the call itself failed
		// The turn is dropped; committed history stays intact. If the
		// staged message answers tool uses it is kept for the next send.
		if staged := svc.History.Staged(); staged == nil || !staged.HasToolResults() {
			svc.History.AbandonTurn()
		}
		return core.ActionFailure
	}

	assistant := session.AssistantMessage{
		MessageID: uuid.NewString(),
		Content:   msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		assistant.ToolUses = append(assistant.ToolUses, session.ToolUse{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}

	committed, err := svc.History.CommitAssistant(assistant)
	if err != nil {
		log.Printf("[Chat] invariant violation: %v", err)
		state.err = err
		return core.ActionFailure
	}
	state.assistant = committed
	fmt.Fprintln(svc.IO)

	if len(committed.ToolUses) == 0 {
		return core.ActionEnd
	}
	return core.ActionTools
}

// errCancelled aborts the send path when the operator interrupted.
var errCancelled = errors.New("chat: cancelled by operator")

// ── approve: VALIDATE_TOOLS + APPROVE_TOOLS ──

type approveNode struct{}

func (n *approveNode) Prep(state *turnState) []*turnState { return []*turnState{state} }

// Exec walks the batch in the model's order. The first refusal cancels
// the whole batch; remaining tools are not prompted for.
func (n *approveNode) Exec(ctx context.Context, state *turnState) ([]toolDecision, error) {
	svc := state.svc
	decisions := make([]toolDecision, 0, len(state.assistant.ToolUses))

	for _, use := range state.assistant.ToolUses {
		d := toolDecision{use: use}

		entry, ok := svc.Registry.Get(use.Name)
		if !ok {
			d.failure = fmt.Sprintf("unknown tool %q", use.Name)
			decisions = append(decisions, d)
			continue
		}
		d.entry = entry

		if err := entry.Tool.Validate(ctx, use.Arguments); err != nil {
			d.failure = err.Error()
			decisions = append(decisions, d)
			continue
		}

		needsConfirmation := entry.Tool.RequiresConfirmation(use.Arguments) &&
			!svc.Permissions.IsTrusted(entry.DisplayName)
		if !needsConfirmation {
			d.approved = true
			decisions = append(decisions, d)
			continue
		}

		entry.Tool.Describe(svc.IO, use.Arguments)
		decision, err := svc.IO.Confirm(ctx, fmt.Sprintf("Run %s?", entry.DisplayName))
		if err != nil {
			return decisions, err
		}
		switch decision {
		case DecisionYesTrust:
			svc.Permissions.Trust(entry.DisplayName)
			d.approved = true
		case DecisionYes:
			d.approved = true
		case DecisionNo:
			// Cancel the whole batch; the caller sees approved=false.
			decisions = append(decisions, d)
			state.decisions = decisions
			return decisions, nil
		}
		decisions = append(decisions, d)
	}

	state.decisions = decisions
	return decisions, nil
}

func (n *approveNode) ExecFallback(err error) []toolDecision { return nil }

func (n *approveNode) Post(state *turnState, _ []*turnState, results ...[]toolDecision) core.Action {
	if len(results) == 0 || results[0] == nil {
		return core.ActionCancel
	}
	for _, d := range results[0] {
		if !d.approved && d.failure == "" {
			return core.ActionCancel
		}
	}
	return core.ActionExecute
}

// ── execute: EXECUTE + SEND_RESULTS ──

type executeNode struct{}

func (n *executeNode) Prep(state *turnState) []*turnState { return []*turnState{state} }

// Exec runs the approved batch sequentially, in the exact order the model
// requested. The cancellation flag is checked between tools: tools not
// yet started report Cancelled, already-finished tools keep their real
// result.
func (n *executeNode) Exec(ctx context.Context, state *turnState) ([]session.ToolResult, error) {
	svc := state.svc
	results := make([]session.ToolResult, 0, len(state.decisions))

	for _, d := range state.decisions {
		switch {
		case svc.Cancel.IsSet():
			results = append(results, session.CancelledResult(d.use.ID))
			svc.Hooks.toolInvoked(d.use.Name, session.StatusCancelled)
		case d.failure != "":
			results = append(results, session.ToolResult{
				ToolUseID: d.use.ID,
				Status:    session.StatusError,
				Content:   []session.ContentBlock{session.TextBlock(d.failure)},
			})
			svc.Hooks.toolInvoked(d.use.Name, session.StatusError)
		default:
			results = append(results, invokeOne(ctx, state, d))
		}
	}
	return results, nil
}

// invokeOne executes a single approved tool, mapping every failure onto
// an error result for the model rather than surfacing it to the operator.
func invokeOne(ctx context.Context, state *turnState, d toolDecision) session.ToolResult {
	svc := state.svc
	out, err := d.entry.Tool.Invoke(ctx, d.use.Arguments, svc.IO)
	if err != nil {
		svc.Hooks.toolInvoked(d.use.Name, session.StatusError)
		return session.ToolResult{
			ToolUseID: d.use.ID,
			Status:    session.StatusError,
			Content:   []session.ContentBlock{session.TextBlock(err.Error())},
		}
	}

	svc.Hooks.toolInvoked(d.use.Name, session.StatusSuccess)
	block := session.TextBlock(out.Text)
	if out.JSON != nil {
		block = session.JSONBlock(out.JSON)
	}
	return session.ToolResult{
		ToolUseID: d.use.ID,
		Status:    session.StatusSuccess,
		Content:   []session.ContentBlock{block},
	}
}

func (n *executeNode) ExecFallback(err error) []session.ToolResult { return nil }

func (n *executeNode) Post(state *turnState, _ []*turnState, results ...[]session.ToolResult) core.Action {
	if len(results) == 0 {
		return core.ActionFailure
	}
	state.results = results[0]
	state.svc.History.StageUser(session.NewToolResults(state.results))

	if state.svc.Cancel.IsSet() {
		// Results stay staged as the pending user turn; control returns to the
		// prompt so the conversation stays well-formed.
		return core.ActionEnd
	}
	return core.ActionSend
}

// ── cancelAll: CANCEL_ALL + SEND_CANCELLED_RESULTS ──

type cancelAllNode struct{}

func (n *cancelAllNode) Prep(state *turnState) []*turnState { return []*turnState{state} }

func (n *cancelAllNode) Exec(_ context.Context, state *turnState) ([]session.ToolResult, error) {
	results := make([]session.ToolResult, 0, len(state.assistant.ToolUses))
	for _, use := range state.assistant.ToolUses {
		results = append(results, session.CancelledResult(use.ID))
	}
	return results, nil
}

func (n *cancelAllNode) ExecFallback(err error) []session.ToolResult { return nil }

func (n *cancelAllNode) Post(state *turnState, _ []*turnState, results ...[]session.ToolResult) core.Action {
	if len(results) == 0 {
		return core.ActionFailure
	}
	state.results = results[0]
	state.svc.History.StageUser(session.NewToolResults(state.results))
	fmt.Fprintln(state.svc.IO, "Tool batch cancelled.")
	// The model sees the refusal and may respond with text instead.
	return core.ActionSend
}
