// Package search provides the default workspace index behind the
// semantic_search tool: a term-frequency scan over workspace text files.
// An embedding-backed index can replace it behind the same interface.
package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pocketomega/pocket-agent/internal/tool/builtin"
)

const (
	maxFileBytes   = 256 * 1024
	snippetRadius  = 120
	maxFilesWalked = 5000
)

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "target": true, "vendor": true,
	".pocket-agent": true,
}

// LocalIndex scores workspace files by query-term frequency.
type LocalIndex struct {
	root string
}

// NewLocalIndex creates an index over root.
func NewLocalIndex(root string) *LocalIndex {
	return &LocalIndex{root: root}
}

// Search implements builtin.SearchIndex.
func (x *LocalIndex) Search(ctx context.Context, query string, limit int) ([]builtin.SearchHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []builtin.SearchHit
	walked := 0
	err := filepath.WalkDir(x.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if walked++; walked > maxFilesWalked {
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxFileBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil
		}

		content := strings.ToLower(string(data))
		score := 0.0
		first := -1
		for _, term := range terms {
			n := strings.Count(content, term)
			if n == 0 {
				continue
			}
			score += float64(n)
			if idx := strings.Index(content, term); first < 0 || (idx >= 0 && idx < first) {
				first = idx
			}
		}
		if score == 0 {
			return nil
		}

		rel, relErr := filepath.Rel(x.root, path)
		if relErr != nil {
			rel = path
		}
		hits = append(hits, builtin.SearchHit{
			Path:    rel,
			Snippet: snippetAround(string(data), first),
			Score:   score,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// snippetAround extracts a window of text centered on offset.
func snippetAround(content string, offset int) string {
	if offset < 0 {
		offset = 0
	}
	start := offset - snippetRadius
	if start < 0 {
		start = 0
	}
	end := offset + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}
	return strings.TrimSpace(content[start:end])
}
