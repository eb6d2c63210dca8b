// Package state persists the last successfully pushed head per remote and
// branch. The record lets a later run skip fetching and pushing entirely when
// the exported content has not changed, and seeds the expected parent for the
// compare-and-swap push.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-git/go-git/v5/plumbing"
)

// DefaultFileName is the state document written under the state directory.
const DefaultFileName = "heads.json"

const appDirName = "gitsync"

// Head is the last head confirmed on the remote.
type Head struct {
	Commit   plumbing.Hash
	Tree     plumbing.Hash
	PushedAt time.Time
}

// IsZero reports whether the head carries no commit.
func (h Head) IsZero() bool {
	return h.Commit.IsZero()
}

// Filesystem is the minimal surface the store needs. billy.FS from
// catalyst-forge-libs satisfies it.
type Filesystem interface {
	Exists(path string) (bool, error)
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
}

// Store reads and writes the head document. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	fs   Filesystem
	path string
}

// NewStore builds a store over fsys writing to path.
func NewStore(fsys Filesystem, path string) *Store {
	return &Store{fs: fsys, path: path}
}

// DefaultPath returns the per-user state file location following the XDG
// base directory convention.
func DefaultPath() string {
	return filepath.Join(xdg.StateHome, appDirName, DefaultFileName)
}

type headRecord struct {
	Commit   string    `json:"commit"`
	Tree     string    `json:"tree"`
	PushedAt time.Time `json:"pushedAt"`
}

// Head returns the recorded head for the remote and branch, and whether one
// exists.
func (s *Store) Head(remoteURL, branch string) (Head, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Head{}, false, err
	}
	rec, ok := doc[recordKey(remoteURL, branch)]
	if !ok {
		return Head{}, false, nil
	}
	return Head{
		Commit:   plumbing.NewHash(rec.Commit),
		Tree:     plumbing.NewHash(rec.Tree),
		PushedAt: rec.PushedAt,
	}, true, nil
}

// SetHead records head for the remote and branch. Callers invoke it only
// after the remote has confirmed the push.
func (s *Store) SetHead(remoteURL, branch string, head Head) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[recordKey(remoteURL, branch)] = headRecord{
		Commit:   head.Commit.String(),
		Tree:     head.Tree.String(),
		PushedAt: head.PushedAt.UTC(),
	}
	return s.save(doc)
}

// Forget drops the recorded head for the remote and branch. Forgetting an
// unknown pair is a no-op.
func (s *Store) Forget(remoteURL, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	key := recordKey(remoteURL, branch)
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return s.save(doc)
}

// load reads the document. A missing or unparseable file degrades to an
// empty document: losing the record only costs a fetch on the next run.
func (s *Store) load() (map[string]headRecord, error) {
	exists, err := s.fs.Exists(s.path)
	if err != nil {
		return nil, fmt.Errorf("checking state file %q: %w", s.path, err)
	}
	if !exists {
		return map[string]headRecord{}, nil
	}
	raw, err := s.fs.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading state file %q: %w", s.path, err)
	}
	doc := map[string]headRecord{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return map[string]headRecord{}, nil
	}
	return doc, nil
}

func (s *Store) save(doc map[string]headRecord) error {
	if dir := filepath.Dir(s.path); dir != "." && dir != "/" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state directory %q: %w", dir, err)
		}
	}
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding state document: %w", err)
	}
	if err := s.fs.WriteFile(s.path, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing state file %q: %w", s.path, err)
	}
	return nil
}

// recordKey joins remote and branch with a byte neither may contain.
func recordKey(remoteURL, branch string) string {
	return remoteURL + "\n" + branch
}
