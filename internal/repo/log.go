package repo

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Log walks first-parent history from the given commit, newest first, up to
// limit entries (limit <= 0 walks to the root). The walk stops cleanly at a
// parent that is not present locally, which happens after shallow fetches.
func (s *Store) Log(from plumbing.Hash, limit int) ([]plumbing.Hash, error) {
	var history []plumbing.Hash

	current := from
	for current != plumbing.ZeroHash {
		if limit > 0 && len(history) >= limit {
			break
		}
		c, err := object.GetCommit(s.repo.Storer, current)
		if err != nil {
			if len(history) > 0 {
				// Truncated history: parent objects were not fetched.
				return history, nil
			}
			return nil, fmt.Errorf("reading commit %s: %w", current, err)
		}
		history = append(history, current)
		if c.NumParents() == 0 {
			break
		}
		current = c.ParentHashes[0]
	}
	return history, nil
}

// IsDescendant reports whether commit child has ancestor in its first-parent
// chain. Used to confirm a push is a linear continuation of the previous
// head.
func (s *Store) IsDescendant(child, ancestor plumbing.Hash) (bool, error) {
	if ancestor == plumbing.ZeroHash {
		return true, nil
	}
	history, err := s.Log(child, 0)
	if err != nil {
		return false, err
	}
	for _, h := range history {
		if h == ancestor {
			return true, nil
		}
	}
	return false, nil
}
