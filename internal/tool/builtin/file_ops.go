package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/tool"
)

// ── fs_list ──

// ListDirTool lists a directory's entries.
type ListDirTool struct {
	workDir string
}

func NewListDirTool(workDir string) *ListDirTool { return &ListDirTool{workDir: workDir} }

func (t *ListDirTool) Name() string { return "fs_list" }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory. Directories are suffixed with '/'."
}

func (t *ListDirTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "Directory path (absolute or workspace-relative)", Required: true},
	)
}

type pathArgs struct {
	Path string `json:"path"`
}

func (t *ListDirTool) Validate(_ context.Context, args json.RawMessage) error {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("fs_list: parse args: %w", err)
	}
	_, err := resolvePath(t.workDir, a.Path)
	return err
}

func (t *ListDirTool) RequiresConfirmation(json.RawMessage) bool { return false }

func (t *ListDirTool) Describe(w io.Writer, args json.RawMessage) {
	var a pathArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will list the directory: %s\n", a.Path)
}

func (t *ListDirTool) Invoke(_ context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_list: parse args: %w", err)
	}
	path, err := resolvePath(t.workDir, a.Path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_list: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_list: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return tool.TextOutput(strings.Join(names, "\n")), nil
}

// ── fs_create_dir ──

// CreateDirTool creates a directory, including missing parents.
type CreateDirTool struct {
	workDir string
}

func NewCreateDirTool(workDir string) *CreateDirTool { return &CreateDirTool{workDir: workDir} }

func (t *CreateDirTool) Name() string { return "fs_create_dir" }

func (t *CreateDirTool) Description() string {
	return "Create a directory, including any missing parent directories."
}

func (t *CreateDirTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "Directory path (absolute or workspace-relative)", Required: true},
	)
}

func (t *CreateDirTool) Validate(_ context.Context, args json.RawMessage) error {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("fs_create_dir: parse args: %w", err)
	}
	_, err := resolvePath(t.workDir, a.Path)
	return err
}

func (t *CreateDirTool) RequiresConfirmation(json.RawMessage) bool { return true }

func (t *CreateDirTool) Describe(w io.Writer, args json.RawMessage) {
	var a pathArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will create the directory: %s\n", a.Path)
}

func (t *CreateDirTool) Invoke(_ context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_create_dir: parse args: %w", err)
	}
	path, err := resolvePath(t.workDir, a.Path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_create_dir: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_create_dir: %w", err)
	}
	return tool.TextOutput("created " + path), nil
}

// ── fs_read_symlink ──

// ReadSymlinkTool resolves a symbolic link's target.
type ReadSymlinkTool struct {
	workDir string
}

func NewReadSymlinkTool(workDir string) *ReadSymlinkTool { return &ReadSymlinkTool{workDir: workDir} }

func (t *ReadSymlinkTool) Name() string { return "fs_read_symlink" }

func (t *ReadSymlinkTool) Description() string {
	return "Read the target of a symbolic link without following it further."
}

func (t *ReadSymlinkTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "Symlink path (absolute or workspace-relative)", Required: true},
	)
}

func (t *ReadSymlinkTool) Validate(_ context.Context, args json.RawMessage) error {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("fs_read_symlink: parse args: %w", err)
	}
	_, err := resolvePath(t.workDir, a.Path)
	return err
}

func (t *ReadSymlinkTool) RequiresConfirmation(json.RawMessage) bool { return false }

func (t *ReadSymlinkTool) Describe(w io.Writer, args json.RawMessage) {
	var a pathArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will read the symlink: %s\n", a.Path)
}

func (t *ReadSymlinkTool) Invoke(_ context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_read_symlink: parse args: %w", err)
	}
	path, err := resolvePath(t.workDir, a.Path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_read_symlink: %w", err)
	}
	target, err := os.Readlink(path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_read_symlink: %w", err)
	}
	return tool.TextOutput(target), nil
}
