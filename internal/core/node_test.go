package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pocketomega/pocket-agent/internal/core"
)

// ── retryBaseNode: simulates Exec failures for retry testing ──

type retryState struct{}

type retryBaseNode struct {
	failUntil int // fail the first N Exec calls
	calls     int
}

func (r *retryBaseNode) Prep(_ *retryState) []string { return []string{"work"} }
func (r *retryBaseNode) Post(_ *retryState, _ []string, results ...string) core.Action {
	if len(results) > 0 && results[0] == "fallback" {
		return core.ActionFailure
	}
	return core.ActionSuccess
}
func (r *retryBaseNode) ExecFallback(_ error) string { return "fallback" }
func (r *retryBaseNode) Exec(_ context.Context, _ string) (string, error) {
	r.calls++
	if r.calls <= r.failUntil {
		return "", errors.New("transient error")
	}
	return "ok", nil
}

// ── Node tests ──

func TestNode_Run_SucceedsFirstAttempt(t *testing.T) {
	state := &retryState{}
	impl := &retryBaseNode{failUntil: 0}
	node := core.NewNode[retryState, string, string](impl, 2)
	node.Run(context.Background(), state)

	if impl.calls != 1 {
		t.Errorf("expected 1 Exec call, got %d", impl.calls)
	}
}

func TestNode_Run_RetriesOnError(t *testing.T) {
	state := &retryState{}
	impl := &retryBaseNode{failUntil: 2} // fail first 2, succeed on 3rd
	node := core.NewNode[retryState, string, string](impl, 3)
	action := node.Run(context.Background(), state)

	if impl.calls != 3 {
		t.Errorf("expected 3 Exec calls, got %d", impl.calls)
	}
	if action != core.ActionSuccess {
		t.Errorf("expected ActionSuccess after retries, got %q", action)
	}
}

func TestNode_Run_FallbackAfterAllRetriesExhausted(t *testing.T) {
	state := &retryState{}
	impl := &retryBaseNode{failUntil: 99} // always fail
	node := core.NewNode[retryState, string, string](impl, 2)
	action := node.Run(context.Background(), state)

	// maxRetries=2 → 3 total attempts
	if impl.calls != 3 {
		t.Errorf("expected 3 Exec calls (1 + 2 retries), got %d", impl.calls)
	}
	if action != core.ActionFailure {
		t.Errorf("expected ActionFailure from fallback path, got %q", action)
	}
}

func TestNode_Run_ContextCancelledBeforeExec(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := &retryState{}
	impl := &retryBaseNode{failUntil: 99}
	node := core.NewNode[retryState, string, string](impl, 5)

	// Should not panic and should stop early due to cancelled context
	node.Run(ctx, state)
	if impl.calls != 0 {
		t.Errorf("expected 0 Exec calls under cancelled context, got %d", impl.calls)
	}
}

// ── ordering: Prep items execute sequentially, in order ──

type orderState struct{ seen []string }

type orderBaseNode struct{ items []string }

func (o *orderBaseNode) Prep(_ *orderState) []string { return o.items }
func (o *orderBaseNode) Exec(_ context.Context, item string) (string, error) {
	return item, nil
}
func (o *orderBaseNode) Post(state *orderState, _ []string, results ...string) core.Action {
	state.seen = append(state.seen, results...)
	return core.ActionEnd
}
func (o *orderBaseNode) ExecFallback(_ error) string { return "" }

func TestNode_Run_ExecutesPrepItemsInOrder(t *testing.T) {
	state := &orderState{}
	node := core.NewNode[orderState, string, string](&orderBaseNode{items: []string{"t1", "t2", "t3"}}, 0)
	node.Run(context.Background(), state)

	want := []string{"t1", "t2", "t3"}
	if len(state.seen) != len(want) {
		t.Fatalf("seen = %v, want %v", state.seen, want)
	}
	for i := range want {
		if state.seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, state.seen[i], want[i])
		}
	}
}

func TestNode_AddSuccessor_Chaining(t *testing.T) {
	a := core.NewNode[retryState, string, string](&retryBaseNode{}, 0)
	b := core.NewNode[retryState, string, string](&retryBaseNode{}, 0)

	returned := a.AddSuccessor(b, core.ActionSuccess)
	if returned != b {
		t.Error("AddSuccessor should return the added successor")
	}
	if a.GetSuccessor(core.ActionSuccess) != b {
		t.Error("GetSuccessor should return the connected node")
	}
}
