// Package repo maintains the local git object store the sync job publishes
// from. Repositories are always bare: content is written at the object level
// (blobs, trees, commits), never through a worktree.
package repo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	// DefaultStorerCacheSize is the default size for the LRU object cache.
	DefaultStorerCacheSize = 1000

	// RemoteName is the single remote every sync store tracks.
	RemoteName = "origin"
)

// Store wraps a bare go-git repository used as the local side of a sync.
type Store struct {
	repo *git.Repository
}

// newStorage creates git storage with an LRU object cache on the given
// filesystem.
func newStorage(fs billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize <= 0 {
		cacheSize = DefaultStorerCacheSize
	}
	return filesystem.NewStorage(fs, cache.NewObjectLRU(cache.FileSize(cacheSize)))
}

// Open opens the bare repository stored on fs, initializing it (and its
// origin remote) on first use.
func Open(fs billy.Filesystem, remoteURL string, cacheSize int) (*Store, error) {
	storage := newStorage(fs, cacheSize)

	gitRepo, err := git.Open(storage, nil)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		gitRepo, err = git.Init(storage, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	s := &Store{repo: gitRepo}
	if err := s.ensureRemote(remoteURL); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenOS opens (or initializes) the bare repository at dir on the host
// filesystem.
func OpenOS(dir, remoteURL string, cacheSize int) (*Store, error) {
	return Open(osfs.New(dir), remoteURL, cacheSize)
}

// OpenMemory creates a fresh in-memory store. Used by tests and by runs
// configured without a persistent cache directory.
func OpenMemory(remoteURL string) (*Store, error) {
	return Open(memfs.New(), remoteURL, 0)
}

// ensureRemote creates or rewrites the origin remote so it points at url.
// The remote URL can change between runs when the operator reconfigures the
// job; the cached objects stay valid either way.
func (s *Store) ensureRemote(url string) error {
	if url == "" {
		return nil
	}

	existing, err := s.repo.Remote(RemoteName)
	if err == nil {
		if len(existing.Config().URLs) > 0 && existing.Config().URLs[0] == url {
			return nil
		}
		if err := s.repo.DeleteRemote(RemoteName); err != nil {
			return fmt.Errorf("replacing remote: %w", err)
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return fmt.Errorf("reading remote: %w", err)
	}

	_, err = s.repo.CreateRemote(&config.RemoteConfig{
		Name:  RemoteName,
		URLs:  []string{url},
		Fetch: []config.RefSpec{config.RefSpec("+refs/heads/*:refs/remotes/" + RemoteName + "/*")},
	})
	if err != nil {
		return fmt.Errorf("creating remote: %w", err)
	}
	return nil
}

// Repository exposes the underlying go-git repository for transports.
func (s *Store) Repository() *git.Repository {
	return s.repo
}
