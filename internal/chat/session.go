package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/mcp"
	"github.com/pocketomega/pocket-agent/internal/session"
)

// Session is the interactive chat loop: it owns the prompt boundary,
// slash-command dispatch, @prompt expansion, and one turn flow per user
// message.
type Session struct {
	svc        *Services
	dispatcher *Dispatcher
	// pending holds rendered MCP prompt messages; the loop drains them
	// ahead of new operator input.
	pending []mcp.PromptMessage
}

// NewSession wires a session over the service bundle.
func NewSession(svc *Services) *Session {
	s := &Session{svc: svc}
	s.dispatcher = NewDispatcher(svc, s.enqueuePrompts)
	return s
}

func (s *Session) enqueuePrompts(msgs []mcp.PromptMessage) {
	s.pending = append(s.pending, msgs...)
}

// Run drives the prompt loop until the operator ends the session (EOF)
// or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	svc := s.svc
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		// The cancellation flag is level-triggered; the prompt boundary is
		// the only place it is cleared.
		svc.Cancel.Clear()

		input, ok, err := s.nextInput(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		s.runTurn(ctx, input)
	}
}

// nextInput produces the next user prompt: queued prompt messages first,
// then operator input. Slash commands and @prompt references are handled
// here and produce no turn (ok=false).
func (s *Session) nextInput(ctx context.Context) (string, bool, error) {
	svc := s.svc

	if len(s.pending) > 0 {
		var sb strings.Builder
		for _, m := range s.pending {
			if m.Role != "" && m.Role != "user" {
				fmt.Fprintf(&sb, "[%s]\n", m.Role)
			}
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		s.pending = nil
		return strings.TrimRight(sb.String(), "\n"), true, nil
	}

	line, err := svc.IO.ReadLine(ctx, "> ")
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSpace(line)

	switch {
	case line == "":
		return "", false, nil
	case strings.HasPrefix(line, "/"):
		if err := s.dispatcher.Dispatch(ctx, line); err != nil {
			// Operator errors render inline; the turn is not consumed.
			fmt.Fprintf(svc.IO, "error: %v\n", err)
		}
		return "", false, nil
	case strings.HasPrefix(line, "@"):
		fields := strings.Fields(line)
		msgs, err := svc.Prompts.Get(ctx, strings.TrimPrefix(fields[0], "@"), fields[1:])
		if err != nil {
			fmt.Fprintf(svc.IO, "error: %v\n", err)
			return "", false, nil
		}
		s.enqueuePrompts(msgs)
		return "", false, nil
	default:
		return line, true, nil
	}
}

// runTurn stages the user message and runs the turn flow to completion.
func (s *Session) runTurn(ctx context.Context, input string) {
	svc := s.svc
	svc.Hooks.turnStart(input)

	user := session.NewPrompt(input)
	if svc.Context != nil {
		user.AdditionalContext = svc.Context.Render()
	}
	svc.History.StageUser(user)

	// The level-triggered flag feeds a per-turn context so streaming and
	// tool invocations unwind at their next suspension point.
	turnCtx, stop := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-svc.Cancel.Watch():
			stop()
		case <-watchDone:
		}
	}()

	state := &turnState{svc: svc}
	newTurnFlow().Run(turnCtx, state)

	close(watchDone)
	stop()

	if state.err != nil && !errors.Is(state.err, errCancelled) {
		fmt.Fprintf(svc.IO, "error: %v\n", state.err)
	}
	svc.Hooks.turnEnd(state.err)
}
