package trees

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// DestinationIndex remembers the directory roots an organizer created so that
// later passes do not descend into them. Lookups are O(k) in the path length.
type DestinationIndex struct {
	tree *radix.Tree
	mu   sync.RWMutex
}

// NewDestinationIndex creates an empty index
func NewDestinationIndex() *DestinationIndex {
	return &DestinationIndex{tree: radix.New()}
}

// Insert records root. Returns false if it was already present.
func (idx *DestinationIndex) Insert(root string) bool {
	key := indexKey(root)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, updated := idx.tree.Insert(key, struct{}{})
	return !updated
}

// Covers reports whether path is a recorded root or lies beneath one
func (idx *DestinationIndex) Covers(path string) bool {
	key := indexKey(path)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, _, found := idx.tree.LongestPrefix(key)
	return found
}

// Remove forgets root and everything recorded beneath it
func (idx *DestinationIndex) Remove(root string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var keys []string
	idx.tree.WalkPrefix(indexKey(root), func(key string, _ interface{}) bool {
		keys = append(keys, key)
		return false
	})
	for _, key := range keys {
		idx.tree.Delete(key)
	}
	return len(keys)
}

// Roots returns the recorded roots in lexical order
func (idx *DestinationIndex) Roots() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	roots := make([]string, 0, idx.tree.Len())
	idx.tree.Walk(func(key string, _ interface{}) bool {
		roots = append(roots, filepath.FromSlash(strings.TrimSuffix(key, "/")))
		return false
	})
	return roots
}

// Len returns the number of recorded roots
func (idx *DestinationIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// indexKey terminates the cleaned path with a separator so that /a/2024 does
// not cover /a/20245.
func indexKey(path string) string {
	key := filepath.ToSlash(filepath.Clean(path))
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return key
}
