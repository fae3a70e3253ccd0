// Package assets stores generated files (images, exported HTML) under a
// per-thread directory tree and lists them by glob pattern.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"

	"contentflow/pkg/logx"
)

// Store is a directory-backed asset store.
type Store struct {
	root   string
	logger *logx.Logger
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &Store{root: root, logger: logx.NewLogger("assets")}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// Put writes data under threadID with the given name and returns the
// stored path and a unique asset ID. Name collisions are disambiguated by
// the ID prefix.
func (s *Store) Put(threadID, name string, data []byte) (string, string, error) {
	id := ulid.Make().String()

	dir := filepath.Join(s.root, sanitize(threadID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create thread asset directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s", strings.ToLower(id[len(id)-6:]), sanitize(name)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write asset %s: %w", name, err)
	}

	s.logger.Debug("stored asset %s at %s (%d bytes)", id, path, len(data))
	return path, id, nil
}

// List returns asset paths under the store matching pattern, relative to
// the root; "**/*.png" finds every image across threads. Results are
// sorted for stable output.
func (s *Store) List(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.root), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid asset pattern %q: %w", pattern, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(s.root, m))
	}
	sort.Strings(out)
	return out, nil
}

// ListThread returns all assets stored for one thread.
func (s *Store) ListThread(threadID string) ([]string, error) {
	return s.List(filepath.Join(sanitize(threadID), "**", "*"))
}

// sanitize keeps identifiers filesystem-safe.
func sanitize(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, name)
	// No path traversal through kept dots.
	for strings.Contains(mapped, "..") {
		mapped = strings.ReplaceAll(mapped, "..", "-")
	}
	return mapped
}
