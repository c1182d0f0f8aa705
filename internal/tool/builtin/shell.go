// Package builtin provides the native tool set: shell execution, file
// operations, and semantic search.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pocketomega/pocket-agent/internal/shell"
	"github.com/pocketomega/pocket-agent/internal/tool"
)

// ShellRunTool executes a command under the operator's login shell.
type ShellRunTool struct {
	runner *shell.Runner
}

// NewShellRunTool creates the shell tool rooted at workDir.
func NewShellRunTool(workDir string) *ShellRunTool {
	return &ShellRunTool{runner: &shell.Runner{WorkDir: workDir}}
}

func (t *ShellRunTool) Name() string { return "shell_run" }

func (t *ShellRunTool) Description() string {
	return "Execute a shell command and return its exit status, stdout, and stderr."
}

func (t *ShellRunTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "command", Type: "string", Description: "The command to execute", Required: true},
		tool.SchemaParam{Name: "summary", Type: "string", Description: "Brief explanation of what the command does"},
	)
}

type shellArgs struct {
	Command string `json:"command"`
	Summary string `json:"summary"`
}

func parseShellArgs(args json.RawMessage) (shellArgs, error) {
	var a shellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return a, fmt.Errorf("shell_run: parse args: %w", err)
	}
	if a.Command == "" {
		return a, fmt.Errorf("shell_run: command must not be empty")
	}
	return a, nil
}

func (t *ShellRunTool) Validate(_ context.Context, args json.RawMessage) error {
	_, err := parseShellArgs(args)
	return err
}

// RequiresConfirmation delegates to the static safety analyzer: readonly
// pipelines auto-run, everything else is gated.
func (t *ShellRunTool) RequiresConfirmation(args json.RawMessage) bool {
	a, err := parseShellArgs(args)
	if err != nil {
		return true
	}
	return shell.RequiresConfirmation(a.Command)
}

func (t *ShellRunTool) Describe(w io.Writer, args json.RawMessage) {
	a, err := parseShellArgs(args)
	if err != nil {
		fmt.Fprintf(w, "I will run a shell command (unparseable arguments: %v)\n", err)
		return
	}
	fmt.Fprintf(w, "I will run the following shell command: %s\n", a.Command)
	if a.Summary != "" {
		fmt.Fprintf(w, "Purpose: %s\n", a.Summary)
	}
}

func (t *ShellRunTool) Invoke(ctx context.Context, args json.RawMessage, progress io.Writer) (tool.InvokeOutput, error) {
	a, err := parseShellArgs(args)
	if err != nil {
		return tool.InvokeOutput{}, err
	}

	result, err := t.runner.Run(ctx, a.Command, progress)
	if err != nil {
		return tool.InvokeOutput{}, err
	}
	return tool.JSONOutput(result)
}
