package shell

import "testing"

func TestRequiresConfirmation_Table(t *testing.T) {
	cases := []struct {
		cmd  string
		want bool
	}{
		// Safe commands
		{"ls ~", false},
		{"ls -al ~", false},
		{"pwd", false},
		{"echo 'Hello, world!'", false},
		{"which aws", false},
		{"head -n 5 log.txt", false},
		{"tail -f app.log", false},

		// Redirection and substitution
		{"echo hi > myimportantfile", true},
		{"ls -al >myimportantfile", true},
		{"echo hi 2> myimportantfile", true},
		{"echo hi >> myimportantfile", true},
		{"echo $(rm myimportantfile)", true},
		{"echo `rm myimportantfile`", true},
		{"echo <(rm myimportantfile)", true},
		{"cat <<< 'some string here' > myimportantfile", true},
		{"cat <<EOF > myimportantfile\nhello world\nEOF", true},

		// Chaining and backgrounding
		{"echo hello && rm myimportantfile", true},
		{"echo hello&&rm myimportantfile", true},
		{"ls nonexistantpath || rm myimportantfile", true},
		{"sleep 10 &", true},
		{"true; rm myimportantfile", true},

		// Pipes
		{"find . -name '*.go' | grep main", false},
		{"ls -la | grep .git", false},
		{"cat file.txt | grep pattern | head -5", false},
		{"echo myimportantfile | xargs rm", true},
		{"echo myimportantfile|args rm", true},

		// find special cases
		{"find . -name '*.txt'", false},
		{"find . -name '*.txt' -delete", true},
		{"find . -name '*.txt' -exec rm {} \\;", true},
		{"find . -name '*.txt' -execdir rm {} \\;", true},
		{"find . -name '*.txt' -ok rm {} \\;", true},
		{"find . -name '*.txt' -okdir rm {} \\;", true},

		// grep special case
		{"grep -P '(?{system(\"rm -rf /\")})' file", true},
		{"grep -r pattern .", false},

		// Non-readonly heads
		{"rm file", true},
		{"mv a b", true},
		{"cp a b", true},
		{"git status", true},
		{"cat file | sed 's/a/b/'", true},

		// Unparseable input
		{"echo 'unterminated", true},
	}

	for _, tc := range cases {
		if got := RequiresConfirmation(tc.cmd); got != tc.want {
			t.Errorf("RequiresConfirmation(%q) = %v, want %v", tc.cmd, got, tc.want)
		}
	}
}

// Whitespace-equivalent commands must get the same verdict; quoting games
// around a command name must not slip past.
func TestRequiresConfirmation_WhitespaceStable(t *testing.T) {
	variants := []string{
		"ls -la | grep .git",
		"ls  -la  |  grep  .git",
		"ls -la\t|\tgrep .git",
	}
	for _, v := range variants {
		if RequiresConfirmation(v) {
			t.Errorf("RequiresConfirmation(%q) = true, want false", v)
		}
	}

	// Operator splitting: r''m tokenizes to "rm", which is not readonly.
	if !RequiresConfirmation("r''m file") {
		t.Error(`RequiresConfirmation("r''m file") = false, want true`)
	}
	if !RequiresConfirmation(`"r"m file`) {
		t.Error(`RequiresConfirmation("\"r\"m file") = false, want true`)
	}
}

func TestRequiresConfirmation_EmptyCommand(t *testing.T) {
	// An empty pipeline has no stages to flag; nothing runs anyway.
	if RequiresConfirmation("") {
		t.Error(`RequiresConfirmation("") = true, want false`)
	}
}
