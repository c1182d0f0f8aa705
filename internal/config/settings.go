// Package config resolves the agent's on-disk configuration: an optional
// YAML settings file layered under LLM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pocketomega/pocket-agent/internal/session"
)

// Settings are the operator-tunable defaults. Environment variables win
// over the file; the file wins over built-in defaults.
type Settings struct {
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	ContextWindow int    `yaml:"context_window"` // tokens
	SystemPrompt  string `yaml:"system_prompt"`
}

// SettingsPath returns the user-scope settings location.
func SettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "pocket-agent", "config.yaml"), nil
}

// LoadSettings reads the settings file and applies env overrides. A
// missing file yields pure defaults.
func LoadSettings(path string) (Settings, error) {
	s := Settings{ContextWindow: session.DefaultContextWindow}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return s, fmt.Errorf("config: read settings %q: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("config: parse settings %q: %w", path, err)
		}
		if s.ContextWindow <= 0 {
			s.ContextWindow = session.DefaultContextWindow
		}
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		s.Model = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		s.BaseURL = v
	}
	return s, nil
}
