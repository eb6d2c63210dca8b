package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/soarsync/gitsync/content"
)

// ErrAmbiguousPath is returned when a file tree uses the same path as both a
// file and a directory prefix.
var ErrAmbiguousPath = errors.New("path is both a file and a directory")

// Signature identifies the commit author/committer.
type Signature struct {
	Name  string
	Email string
}

// Builder content-addresses file trees and appends commits on top of the
// last known head. It never amends or rewrites an existing commit.
type Builder struct {
	store *Store

	// Clock supplies commit timestamps. Defaults to time.Now; injected so
	// builds are deterministic under test.
	Clock func() time.Time
}

// NewBuilder returns a Builder writing into store.
func NewBuilder(store *Store) *Builder {
	return &Builder{store: store, Clock: time.Now}
}

// BuildTree writes every blob and tree object for ft into the object store
// and returns the root tree hash. Hashing is stable: the same file tree
// always produces the same hash, which is what makes no-op detection a pure
// hash comparison.
func (b *Builder) BuildTree(ft *content.FileTree) (plumbing.Hash, error) {
	root := newDirNode()
	for _, p := range ft.Paths() {
		data, _ := ft.Get(p)
		if err := root.insert(strings.Split(p, "/"), data); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("%w: %q", err, p)
		}
	}
	return b.writeDir(root)
}

// Commit creates a commit for tree on top of parent and returns its hash.
// parent is plumbing.ZeroHash for the initial commit of a branch.
func (b *Builder) Commit(tree, parent plumbing.Hash, author Signature, message string) (plumbing.Hash, error) {
	when := b.Clock()
	sig := object.Signature{Name: author.Name, Email: author.Email, When: when}

	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   message,
		TreeHash:  tree,
	}
	if parent != plumbing.ZeroHash {
		commit.ParentHashes = []plumbing.Hash{parent}
	}

	obj := b.store.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding commit: %w", err)
	}
	hash, err := b.store.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing commit: %w", err)
	}
	return hash, nil
}

// TreeHash returns the root tree hash of the given commit.
func (s *Store) TreeHash(commit plumbing.Hash) (plumbing.Hash, error) {
	c, err := object.GetCommit(s.repo.Storer, commit)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading commit %s: %w", commit, err)
	}
	return c.TreeHash, nil
}

// dirNode is an in-memory directory while assembling tree objects.
type dirNode struct {
	files map[string][]byte
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string][]byte{}, dirs: map[string]*dirNode{}}
}

func (d *dirNode) insert(parts []string, data []byte) error {
	name := parts[0]
	if len(parts) == 1 {
		if _, clash := d.dirs[name]; clash {
			return ErrAmbiguousPath
		}
		d.files[name] = data
		return nil
	}
	if _, clash := d.files[name]; clash {
		return ErrAmbiguousPath
	}
	child, ok := d.dirs[name]
	if !ok {
		child = newDirNode()
		d.dirs[name] = child
	}
	return child.insert(parts[1:], data)
}

// writeDir writes d's blobs and subtrees depth-first and returns d's tree
// hash.
func (b *Builder) writeDir(d *dirNode) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(d.files)+len(d.dirs))

	for name, data := range d.files {
		blobHash, err := b.writeBlob(data)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blobHash})
	}
	for name, child := range d.dirs {
		childHash, err := b.writeDir(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: childHash})
	}

	sortTreeEntries(entries)

	tree := &object.Tree{Entries: entries}
	obj := b.store.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding tree: %w", err)
	}
	hash, err := b.store.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing tree: %w", err)
	}
	return hash, nil
}

func (b *Builder) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := b.store.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("opening blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close() //nolint:errcheck,gosec // write error takes precedence
		return plumbing.ZeroHash, fmt.Errorf("writing blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("closing blob writer: %w", err)
	}
	hash, err := b.store.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing blob: %w", err)
	}
	return hash, nil
}

// sortTreeEntries orders entries the way git hashes them: byte-wise by name,
// with directories compared as if their name ended in "/".
func sortTreeEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i]) < key(entries[j])
	})
}
