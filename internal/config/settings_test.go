package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pocketomega/pocket-agent/internal/session"
)

func TestLoadSettings_MissingFileUsesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ContextWindow != session.DefaultContextWindow {
		t.Errorf("ContextWindow = %d", s.ContextWindow)
	}
}

func TestLoadSettings_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "model: test-model\nbase_url: http://localhost:8000/v1\ncontext_window: 50000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Model != "test-model" || s.ContextWindow != 50000 {
		t.Errorf("settings = %+v", s)
	}
}

func TestLoadSettings_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_MODEL", "from-env")

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Model != "from-env" {
		t.Errorf("Model = %q, want from-env", s.Model)
	}
}

func TestLoadSettings_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected parse error")
	}
}
