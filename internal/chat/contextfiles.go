package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pocketomega/pocket-agent/internal/session"
	"github.com/pocketomega/pocket-agent/internal/util"
)

// maxContextFileBytes caps how much of each context file is rendered into
// a user message.
const maxContextFileBytes = 32_000

// ContextFiles manages the external files appended to every user message.
// The path list persists to a JSON file next to the workspace MCP config;
// file contents are read fresh at send time.
type ContextFiles struct {
	storePath string
	paths     []string
}

type contextStore struct {
	Paths []string `json:"paths"`
}

// ContextStorePath returns the on-disk location for the path list.
func ContextStorePath(workDir string) string {
	return filepath.Join(workDir, ".pocket-agent", "context.json")
}

// LoadContextFiles restores the path list from storePath. A missing store
// yields an empty list.
func LoadContextFiles(storePath string) (*ContextFiles, error) {
	c := &ContextFiles{storePath: storePath}
	data, err := os.ReadFile(storePath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat: read context store %q: %w", storePath, err)
	}
	var store contextStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("chat: parse context store %q: %w", storePath, err)
	}
	c.paths = store.Paths
	return c, nil
}

func (c *ContextFiles) save() error {
	if c.storePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.storePath), 0o755); err != nil {
		return fmt.Errorf("chat: create context store dir: %w", err)
	}
	data, err := json.MarshalIndent(contextStore{Paths: c.paths}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.storePath, append(data, '\n'), 0o644)
}

// Paths returns the managed path list.
func (c *ContextFiles) Paths() []string {
	return append([]string(nil), c.paths...)
}

// Add registers a path. Duplicates are rejected; the file must exist.
func (c *ContextFiles) Add(path string) error {
	for _, p := range c.paths {
		if p == path {
			return fmt.Errorf("chat: %q is already a context file", path)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("chat: context file: %w", err)
	}
	c.paths = append(c.paths, path)
	return c.save()
}

// Remove drops a path. Returns whether it was present.
func (c *ContextFiles) Remove(path string) (bool, error) {
	for i, p := range c.paths {
		if p == path {
			c.paths = append(c.paths[:i], c.paths[i+1:]...)
			return true, c.save()
		}
	}
	return false, nil
}

// Clear drops every path.
func (c *ContextFiles) Clear() error {
	c.paths = nil
	return c.save()
}

// Render reads every context file and formats the block prepended to user
// messages. Unreadable files are reported in-band rather than failing
// the turn.
func (c *ContextFiles) Render() string {
	if len(c.paths) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, path := range c.paths {
		fmt.Fprintf(&sb, "[Context file: %s]\n", path)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(&sb, "(unreadable: %v)\n\n", err)
			continue
		}
		content := string(data)
		if len(content) > maxContextFileBytes {
			content = util.TruncateBytes(content, maxContextFileBytes) + " ... truncated"
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Tokens estimates the context-file share of the window.
func (c *ContextFiles) Tokens() int {
	return session.EstimateTokens(c.Render())
}
