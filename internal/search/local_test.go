package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func seedWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"readme.md":      "pocket agent readme with deployment notes",
		"notes/plan.txt": "deployment deployment deployment checklist",
		"other.txt":      "nothing relevant here",
	}
	for path, content := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLocalIndex_RanksByFrequency(t *testing.T) {
	idx := NewLocalIndex(seedWorkspace(t))

	hits, err := idx.Search(context.Background(), "deployment", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2: %+v", len(hits), hits)
	}
	if filepath.ToSlash(hits[0].Path) != "notes/plan.txt" {
		t.Errorf("top hit = %q, want notes/plan.txt", hits[0].Path)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v", hits)
	}
	if hits[0].Snippet == "" {
		t.Error("empty snippet")
	}
}

func TestLocalIndex_LimitAndNoMatches(t *testing.T) {
	idx := NewLocalIndex(seedWorkspace(t))

	hits, err := idx.Search(context.Background(), "deployment notes", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("limit ignored: %d hits", len(hits))
	}

	none, err := idx.Search(context.Background(), "zzzmissing", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unexpected hits: %+v", none)
	}
}

func TestLocalIndex_SkipsBinaryAndDotGit(t *testing.T) {
	dir := seedWorkspace(t)
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".git", "blob.txt"), []byte("deployment"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0xff, 0xfe, 'd'}, 0o644); err != nil {
		t.Fatal(err)
	}

	hits, err := NewLocalIndex(dir).Search(context.Background(), "deployment", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if filepath.ToSlash(h.Path) == ".git/blob.txt" || h.Path == "bin.dat" {
			t.Errorf("indexed excluded file %q", h.Path)
		}
	}
}
