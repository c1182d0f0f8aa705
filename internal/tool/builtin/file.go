package builtin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pocketomega/pocket-agent/internal/shell"
	"github.com/pocketomega/pocket-agent/internal/tool"
	"github.com/pocketomega/pocket-agent/internal/util"
)

// resolvePath canonicalizes p relative to workDir. Absolute paths are
// cleaned; relative paths are rooted at the workspace.
func resolvePath(workDir, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(workDir, p)
	}
	return filepath.Clean(p), nil
}

// ── fs_read ──

// FileReadTool reads a file, UTF-8 by default with an explicit binary flag.
type FileReadTool struct {
	workDir string
}

func NewFileReadTool(workDir string) *FileReadTool { return &FileReadTool{workDir: workDir} }

func (t *FileReadTool) Name() string { return "fs_read" }

func (t *FileReadTool) Description() string {
	return "Read a file. Text is returned as UTF-8; pass binary=true for base64 content."
}

func (t *FileReadTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path (absolute or workspace-relative)", Required: true},
		tool.SchemaParam{Name: "binary", Type: "boolean", Description: "Return base64 instead of UTF-8 text"},
	)
}

type fileReadArgs struct {
	Path   string `json:"path"`
	Binary bool   `json:"binary"`
}

func (t *FileReadTool) Validate(_ context.Context, args json.RawMessage) error {
	var a fileReadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("fs_read: parse args: %w", err)
	}
	_, err := resolvePath(t.workDir, a.Path)
	return err
}

func (t *FileReadTool) RequiresConfirmation(json.RawMessage) bool { return false }

func (t *FileReadTool) Describe(w io.Writer, args json.RawMessage) {
	var a fileReadArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will read the file: %s\n", a.Path)
}

func (t *FileReadTool) Invoke(_ context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a fileReadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_read: parse args: %w", err)
	}
	path, err := resolvePath(t.workDir, a.Path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_read: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_read: %w", err)
	}

	if a.Binary {
		return tool.TextOutput(base64.StdEncoding.EncodeToString(data)), nil
	}
	content := string(data)
	if len(content) > shell.MaxToolResponseSize {
		content = util.TruncateBytes(content, shell.MaxToolResponseSize) + " ... truncated"
	}
	return tool.TextOutput(content), nil
}

// ── fs_write ──

// FileWriteTool writes (creates or overwrites) a file.
type FileWriteTool struct {
	workDir string
}

func NewFileWriteTool(workDir string) *FileWriteTool { return &FileWriteTool{workDir: workDir} }

func (t *FileWriteTool) Name() string { return "fs_write" }

func (t *FileWriteTool) Description() string {
	return "Create or overwrite a file with the given UTF-8 content."
}

func (t *FileWriteTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path (absolute or workspace-relative)", Required: true},
		tool.SchemaParam{Name: "content", Type: "string", Description: "File content", Required: true},
	)
}

type fileWriteArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *FileWriteTool) Validate(_ context.Context, args json.RawMessage) error {
	var a fileWriteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("fs_write: parse args: %w", err)
	}
	_, err := resolvePath(t.workDir, a.Path)
	return err
}

func (t *FileWriteTool) RequiresConfirmation(json.RawMessage) bool { return true }

func (t *FileWriteTool) Describe(w io.Writer, args json.RawMessage) {
	var a fileWriteArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will write %d bytes to: %s\n", len(a.Content), a.Path)
}

func (t *FileWriteTool) Invoke(_ context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a fileWriteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_write: parse args: %w", err)
	}
	path, err := resolvePath(t.workDir, a.Path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_write: %w", err)
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_write: %w", err)
	}
	return tool.TextOutput(fmt.Sprintf("wrote %d bytes to %s", len(a.Content), path)), nil
}

// ── fs_append ──

// FileAppendTool appends to a file, creating it if missing.
type FileAppendTool struct {
	workDir string
}

func NewFileAppendTool(workDir string) *FileAppendTool { return &FileAppendTool{workDir: workDir} }

func (t *FileAppendTool) Name() string { return "fs_append" }

func (t *FileAppendTool) Description() string {
	return "Append UTF-8 content to a file, creating it if it does not exist."
}

func (t *FileAppendTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path (absolute or workspace-relative)", Required: true},
		tool.SchemaParam{Name: "content", Type: "string", Description: "Content to append", Required: true},
	)
}

func (t *FileAppendTool) Validate(_ context.Context, args json.RawMessage) error {
	var a fileWriteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("fs_append: parse args: %w", err)
	}
	_, err := resolvePath(t.workDir, a.Path)
	return err
}

func (t *FileAppendTool) RequiresConfirmation(json.RawMessage) bool { return true }

func (t *FileAppendTool) Describe(w io.Writer, args json.RawMessage) {
	var a fileWriteArgs
	_ = json.Unmarshal(args, &a)
	fmt.Fprintf(w, "I will append %d bytes to: %s\n", len(a.Content), a.Path)
}

func (t *FileAppendTool) Invoke(_ context.Context, args json.RawMessage, _ io.Writer) (tool.InvokeOutput, error) {
	var a fileWriteArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_append: parse args: %w", err)
	}
	path, err := resolvePath(t.workDir, a.Path)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_append: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_append: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(a.Content); err != nil {
		return tool.InvokeOutput{}, fmt.Errorf("fs_append: %w", err)
	}
	return tool.TextOutput(fmt.Sprintf("appended %d bytes to %s", len(a.Content), path)), nil
}
