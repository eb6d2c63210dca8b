package repo

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// ChangeSummary lists the paths that differ between two trees.
type ChangeSummary struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Total returns the number of changed paths.
func (s ChangeSummary) Total() int {
	return len(s.Added) + len(s.Modified) + len(s.Removed)
}

// ChangedPaths compares two tree objects. A zero oldTree means an empty
// starting point, so every path in newTree counts as added.
func (s *Store) ChangedPaths(oldTree, newTree plumbing.Hash) (ChangeSummary, error) {
	var summary ChangeSummary

	next, err := s.repo.TreeObject(newTree)
	if err != nil {
		return summary, fmt.Errorf("loading tree %s: %w", newTree, err)
	}

	if oldTree.IsZero() {
		err = next.Files().ForEach(func(f *object.File) error {
			summary.Added = append(summary.Added, f.Name)
			return nil
		})
		return summary, err
	}

	prev, err := s.repo.TreeObject(oldTree)
	if err != nil {
		return summary, fmt.Errorf("loading tree %s: %w", oldTree, err)
	}

	changes, err := object.DiffTree(prev, next)
	if err != nil {
		return summary, fmt.Errorf("diffing trees: %w", err)
	}
	for _, change := range changes {
		action, actionErr := change.Action()
		if actionErr != nil {
			return summary, fmt.Errorf("resolving change action: %w", actionErr)
		}
		switch action {
		case merkletrie.Insert:
			summary.Added = append(summary.Added, change.To.Name)
		case merkletrie.Delete:
			summary.Removed = append(summary.Removed, change.From.Name)
		case merkletrie.Modify:
			summary.Modified = append(summary.Modified, change.To.Name)
		}
	}
	return summary, nil
}
