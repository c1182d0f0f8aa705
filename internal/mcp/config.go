package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultTimeoutMs is the per-request timeout applied when a server config
// does not override it.
const DefaultTimeoutMs = 120_000

// Scope selects which on-disk config file an operation targets.
type Scope string

const (
	ScopeWorkspace Scope = "workspace"
	ScopeGlobal    Scope = "global"
)

// ServerConfig describes a single MCP server connection. The Name field is
// populated from the map key in mcp.json, not from a JSON field.
type ServerConfig struct {
	Name      string            `json:"-"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	TimeoutMs int64             `json:"timeout,omitempty"` // milliseconds
}

// Equal reports whether two configs describe the same connection.
func (c ServerConfig) Equal(other ServerConfig) bool {
	a, _ := json.Marshal(c)
	b, _ := json.Marshal(other)
	return c.Name == other.Name && string(a) == string(b)
}

// configFile mirrors the top-level structure of mcp.json.
type configFile struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// WorkspaceConfigPath returns the workspace-scope config location.
func WorkspaceConfigPath(workDir string) string {
	return filepath.Join(workDir, ".pocket-agent", "mcp.json")
}

// GlobalConfigPath returns the user-scope config location.
func GlobalConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("mcp: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "pocket-agent", "mcp.json"), nil
}

// LoadConfig reads and parses one mcp.json. A missing file yields an empty
// map, not an error.
func LoadConfig(path string) (map[string]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]ServerConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: read config %q: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("mcp: parse config %q: %w", path, err)
	}
	if file.MCPServers == nil {
		return map[string]ServerConfig{}, nil
	}

	// Populate Name from the map key.
	for key, cfg := range file.MCPServers {
		cfg.Name = key
		file.MCPServers[key] = cfg
	}
	return file.MCPServers, nil
}

// SaveConfig writes the server map back to path, creating parent
// directories as needed.
func SaveConfig(path string, servers map[string]ServerConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mcp: create config dir for %q: %w", path, err)
	}
	data, err := json.MarshalIndent(configFile{MCPServers: servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("mcp: marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("mcp: write config %q: %w", path, err)
	}
	return nil
}

// LoadMerged loads both scopes and merges them; the workspace file wins on
// key collision. Returned configs are sorted by name for stable iteration.
func LoadMerged(workspacePath, globalPath string) ([]ServerConfig, error) {
	merged := make(map[string]ServerConfig)

	if globalPath != "" {
		global, err := LoadConfig(globalPath)
		if err != nil {
			return nil, err
		}
		for name, cfg := range global {
			merged[name] = cfg
		}
	}
	if workspacePath != "" {
		workspace, err := LoadConfig(workspacePath)
		if err != nil {
			return nil, err
		}
		for name, cfg := range workspace {
			merged[name] = cfg
		}
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServerConfig, 0, len(names))
	for _, name := range names {
		out = append(out, merged[name])
	}
	return out, nil
}

// AddServer inserts or (with force) overwrites one server in the file at
// path.
func AddServer(path string, cfg ServerConfig, force bool) error {
	servers, err := LoadConfig(path)
	if err != nil {
		return err
	}
	if _, exists := servers[cfg.Name]; exists && !force {
		return fmt.Errorf("mcp: server %q already exists in %s (use --force to overwrite)", cfg.Name, path)
	}
	servers[cfg.Name] = cfg
	return SaveConfig(path, servers)
}

// RemoveServer deletes one server from the file at path. Returns whether
// the server was present.
func RemoveServer(path string, name string) (bool, error) {
	servers, err := LoadConfig(path)
	if err != nil {
		return false, err
	}
	if _, exists := servers[name]; !exists {
		return false, nil
	}
	delete(servers, name)
	return true, SaveConfig(path, servers)
}

// ImportConfig merges every server from another config file into the file
// at path. Existing entries are overwritten only with force. Returns the
// names imported.
func ImportConfig(path string, fromPath string, force bool) ([]string, error) {
	src, err := LoadConfig(fromPath)
	if err != nil {
		return nil, err
	}
	dst, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	var imported []string
	for name, cfg := range src {
		if _, exists := dst[name]; exists && !force {
			continue
		}
		dst[name] = cfg
		imported = append(imported, name)
	}
	sort.Strings(imported)
	if len(imported) == 0 {
		return nil, nil
	}
	return imported, SaveConfig(path, dst)
}
