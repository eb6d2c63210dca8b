package repo

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soarsync/gitsync/content"
)

func TestChangedPathsFromEmpty(t *testing.T) {
	store, builder := setupStore(t)

	tree, err := builder.BuildTree(sampleTree("soc"))
	require.NoError(t, err)

	summary, err := store.ChangedPaths(plumbing.ZeroHash, tree)
	require.NoError(t, err)
	assert.Len(t, summary.Added, 3)
	assert.Empty(t, summary.Modified)
	assert.Empty(t, summary.Removed)
	assert.Equal(t, 3, summary.Total())
}

func TestChangedPathsBetweenTrees(t *testing.T) {
	store, builder := setupStore(t)

	before, err := builder.BuildTree(sampleTree("soc"))
	require.NoError(t, err)

	next := content.NewFileTree()
	next.Put("README.md", []byte("# GitSync\n"))
	next.Put("Settings/tags.json", []byte(`["renamed"]`))
	next.Put("Jobs/Nightly Enrichment.json", []byte(`{"name":"Nightly Enrichment"}`))
	after, err := builder.BuildTree(next)
	require.NoError(t, err)

	summary, err := store.ChangedPaths(before, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jobs/Nightly Enrichment.json"}, summary.Added)
	assert.Equal(t, []string{"Settings/tags.json"}, summary.Modified)
	assert.Equal(t, []string{"Playbooks/Phishing Triage.json"}, summary.Removed)
}

func TestChangedPathsIdenticalTrees(t *testing.T) {
	store, builder := setupStore(t)

	tree, err := builder.BuildTree(sampleTree("soc"))
	require.NoError(t, err)

	summary, err := store.ChangedPaths(tree, tree)
	require.NoError(t, err)
	assert.Zero(t, summary.Total())
}
