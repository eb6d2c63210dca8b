package repo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// SetBranch points refs/heads/<branch> at the given commit.
func (s *Store) SetBranch(branch string, h plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), h)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("updating branch %q: %w", branch, err)
	}
	return nil
}

// BranchHead returns the commit refs/heads/<branch> points at, or
// plumbing.ZeroHash when the branch does not exist locally.
func (s *Store) BranchHead(branch string) (plumbing.Hash, error) {
	ref, err := s.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving branch %q: %w", branch, err)
	}
	return ref.Hash(), nil
}

// RemoteHead returns the last fetched position of the remote branch, or
// plumbing.ZeroHash when the remote branch has never been seen.
func (s *Store) RemoteHead(branch string) (plumbing.Hash, error) {
	ref, err := s.repo.Reference(plumbing.NewRemoteReferenceName(RemoteName, branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolving remote branch %q: %w", branch, err)
	}
	return ref.Hash(), nil
}
