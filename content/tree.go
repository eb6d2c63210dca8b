package content

import (
	"bytes"
	"sort"
)

// FileTree is one snapshot of the repository working tree: an ordered mapping
// from slash-separated path to file content. Two trees are equal iff every
// path/content pair matches.
type FileTree struct {
	entries map[string][]byte
}

// NewFileTree returns an empty tree.
func NewFileTree() *FileTree {
	return &FileTree{entries: make(map[string][]byte)}
}

// Put inserts or replaces the content at path.
func (t *FileTree) Put(path string, data []byte) {
	t.entries[path] = data
}

// Get returns the content at path and whether it exists.
func (t *FileTree) Get(path string) ([]byte, bool) {
	data, ok := t.entries[path]
	return data, ok
}

// Delete removes path from the tree. Removing an absent path is a no-op.
func (t *FileTree) Delete(path string) {
	delete(t.entries, path)
}

// Len returns the number of files in the tree.
func (t *FileTree) Len() int {
	return len(t.entries)
}

// Paths returns all paths in lexical order. The ordering is what makes tree
// hashing stable across runs.
func (t *FileTree) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Walk calls fn for every path in lexical order, stopping at the first error.
func (t *FileTree) Walk(fn func(path string, data []byte) error) error {
	for _, p := range t.Paths() {
		if err := fn(p, t.entries[p]); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether both trees contain exactly the same path/content
// pairs.
func (t *FileTree) Equal(other *FileTree) bool {
	if other == nil || len(t.entries) != len(other.entries) {
		return false
	}
	for p, data := range t.entries {
		otherData, ok := other.entries[p]
		if !ok || !bytes.Equal(data, otherData) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the tree. The redactor works on a clone so the
// exported tree is never mutated in place.
func (t *FileTree) Clone() *FileTree {
	clone := NewFileTree()
	for p, data := range t.entries {
		clone.entries[p] = append([]byte(nil), data...)
	}
	return clone
}
