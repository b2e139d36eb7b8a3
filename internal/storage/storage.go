// Package storage provides the file store for a utopia node: text and YAML
// artifacts rooted at the node directory. There is no index or manifest; every
// caller reconstructs what exists from directory listings and reads.
package storage

import (
	"os"
	"path/filepath"
	"sync"
)

// Canonical node layout, relative to the node root.
const (
	GoalsDir       = "goals"
	FoundationsDir = "foundations"
	TrustDir       = "trust"
	TopicsDir      = "topics"
	ReportsDir     = "reports"
	MediaDir       = "media"

	// StateDir holds agent-owned state such as HITL previews and config.
	StateDir = ".utopia"

	// SlugMaxLength is the maximum length for URL-safe slugs.
	SlugMaxLength = 50

	// SlugMinWordBoundary is the minimum length before trimming at word boundary.
	SlugMinWordBoundary = 30
)

// Store reads and writes node artifacts under Root.
type Store struct {
	// Root is the node directory. Relative paths passed to Store methods are
	// resolved against it; absolute paths are used as given.
	Root string

	// DirPerm is used when creating directories.
	DirPerm os.FileMode

	// FilePerm is applied to written files.
	FilePerm os.FileMode

	mu sync.Mutex
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	return &Store{
		Root:     root,
		DirPerm:  0755,
		FilePerm: 0644,
	}
}

// Path returns the filesystem path for rel.
func (s *Store) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(s.Root, rel)
}

// HasNode reports whether the root already looks like an initialized node:
// any entry in goals/, foundations/ or trust/.
func (s *Store) HasNode() bool {
	for _, dir := range []string{GoalsDir, FoundationsDir, TrustDir} {
		entries, err := s.ListDir(dir)
		if err == nil && len(entries) > 0 {
			return true
		}
	}
	return false
}
