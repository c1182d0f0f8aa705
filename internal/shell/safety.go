// Package shell provides static safety analysis of candidate shell commands
// and a login-shell runner with streaming and bounded capture.
package shell

import (
	"strings"

	"github.com/google/shlex"
)

// readonlyCommands are commands that are safe to execute without operator
// confirmation (portable subset).
var readonlyCommands = map[string]bool{
	"ls": true, "cat": true, "echo": true, "pwd": true, "which": true,
	"head": true, "tail": true, "find": true, "grep": true, "dir": true,
	"type": true,
}

// dangerousPatterns are substrings that force confirmation wherever they
// appear in a token: process substitution, command substitution,
// redirection, chaining, and backgrounding.
var dangerousPatterns = []string{"<(", "$(", "`", ">", "&&", "||", "&", ";"}

// RequiresConfirmation decides whether command needs operator approval
// before execution.
//
// The decision is conservative: anything that fails to tokenize, contains
// shell metacharacters, or pipes through a non-readonly head requires
// confirmation. Only pipelines in which every stage starts with a known
// readonly command auto-run.
func RequiresConfirmation(command string) bool {
	args, err := shlex.Split(command)
	if err != nil {
		return true
	}

	for _, arg := range args {
		for _, p := range dangerousPatterns {
			if strings.Contains(arg, p) {
				return true
			}
		}
	}

	// Split the pipeline on standalone "|" tokens.
	var stages [][]string
	var current []string
	for _, arg := range args {
		switch {
		case arg == "|":
			if len(current) > 0 {
				stages = append(stages, current)
			}
			current = nil
		case strings.Contains(arg, "|"):
			// An unspaced pipe (`echo file|xargs rm`) survives tokenization
			// as part of a word; confirm rather than guess.
			return true
		default:
			current = append(current, arg)
		}
	}
	if len(current) > 0 {
		stages = append(stages, current)
	}

	for _, stage := range stages {
		if len(stage) == 0 {
			return true
		}
		head := stage[0]
		switch {
		case head == "find" && anyContains(stage, "-exec", "-delete", "-ok"):
			// -exec covers -execdir, -ok covers -okdir.
			return true
		case head == "grep" && anyContains(stage, "-P"):
			// Perl regexp has RCE vectors via (?{...}).
			return true
		case !readonlyCommands[head]:
			return true
		}
	}

	return false
}

func anyContains(args []string, subs ...string) bool {
	for _, arg := range args {
		for _, sub := range subs {
			if strings.Contains(arg, sub) {
				return true
			}
		}
	}
	return false
}
