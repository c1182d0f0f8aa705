package core_test

import (
	"context"
	"testing"

	"github.com/pocketomega/pocket-agent/internal/core"
)

// ── stub node for flow routing tests ──

type flowState struct {
	visited []string
}

type flowBaseNode struct {
	name   string
	action core.Action
}

func (s *flowBaseNode) Prep(state *flowState) []string {
	state.visited = append(state.visited, s.name+":prep")
	return []string{"item"}
}

func (s *flowBaseNode) Exec(_ context.Context, _ string) (string, error) {
	return "result", nil
}

func (s *flowBaseNode) Post(state *flowState, _ []string, _ ...string) core.Action {
	state.visited = append(state.visited, s.name+":post")
	return s.action
}

func (s *flowBaseNode) ExecFallback(_ error) string { return "fallback" }

func newFlowNode(name string, action core.Action) *core.Node[flowState, string, string] {
	return core.NewNode[flowState, string, string](&flowBaseNode{name: name, action: action}, 0)
}

// ── Flow tests ──

func TestFlow_RunSingleNode(t *testing.T) {
	state := &flowState{}
	flow := core.NewFlow[flowState](newFlowNode("A", core.ActionEnd))

	action := flow.Run(context.Background(), state)

	if action != core.ActionEnd {
		t.Errorf("expected ActionEnd, got %q", action)
	}
	if len(state.visited) != 2 {
		t.Errorf("expected 2 visited phases, got %v", state.visited)
	}
}

func TestFlow_RoutesThroughSuccessors(t *testing.T) {
	state := &flowState{}
	a := newFlowNode("A", core.ActionSend)
	b := newFlowNode("B", core.ActionTools)
	c := newFlowNode("C", core.ActionEnd)
	a.AddSuccessor(b, core.ActionSend)
	b.AddSuccessor(c, core.ActionTools)

	flow := core.NewFlow[flowState](a)
	action := flow.Run(context.Background(), state)

	if action != core.ActionEnd {
		t.Errorf("expected ActionEnd, got %q", action)
	}
	want := []string{"A:prep", "A:post", "B:prep", "B:post", "C:prep", "C:post"}
	if len(state.visited) != len(want) {
		t.Fatalf("visited = %v, want %v", state.visited, want)
	}
	for i := range want {
		if state.visited[i] != want[i] {
			t.Errorf("visited[%d] = %q, want %q", i, state.visited[i], want[i])
		}
	}
}

func TestFlow_FlowLevelSuccessorFallback(t *testing.T) {
	state := &flowState{}
	a := newFlowNode("A", core.ActionCancel)
	b := newFlowNode("B", core.ActionEnd)

	flow := core.NewFlow[flowState](a)
	// No node-level successor for ActionCancel; the flow-level one applies.
	flow.AddSuccessor(b, core.ActionCancel)

	if action := flow.Run(context.Background(), state); action != core.ActionEnd {
		t.Errorf("expected ActionEnd via flow-level successor, got %q", action)
	}
}

func TestFlow_NilStartNode(t *testing.T) {
	flow := core.NewFlow[flowState](nil)
	if action := flow.Run(context.Background(), &flowState{}); action != core.ActionFailure {
		t.Errorf("expected ActionFailure for nil start node, got %q", action)
	}
}

func TestFlow_InfiniteLoopGuard(t *testing.T) {
	state := &flowState{}
	a := newFlowNode("A", core.ActionContinue)
	a.AddSuccessor(a, core.ActionContinue) // self-loop

	flow := core.NewFlow[flowState](a)
	if action := flow.Run(context.Background(), state); action != core.ActionFailure {
		t.Errorf("expected ActionFailure from iteration cap, got %q", action)
	}
}
