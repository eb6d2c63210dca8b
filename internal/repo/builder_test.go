package repo

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soarsync/gitsync/content"
)

func setupStore(t *testing.T) (*Store, *Builder) {
	t.Helper()

	store, err := OpenMemory("https://git.example.com/soc/content.git")
	require.NoError(t, err)

	builder := NewBuilder(store)
	builder.Clock = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}
	return store, builder
}

func sampleTree(note string) *content.FileTree {
	ft := content.NewFileTree()
	ft.Put("README.md", []byte("# GitSync\n"))
	ft.Put("Playbooks/Phishing Triage.json", []byte(`{"name":"Phishing Triage"}`))
	ft.Put("Settings/tags.json", []byte(`["`+note+`"]`))
	return ft
}

// TestBuildTreeStableHash tests that identical trees hash identically
func TestBuildTreeStableHash(t *testing.T) {
	_, builder := setupStore(t)

	first, err := builder.BuildTree(sampleTree("soc"))
	require.NoError(t, err)
	second, err := builder.BuildTree(sampleTree("soc"))
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical file trees must content-address identically")

	changed, err := builder.BuildTree(sampleTree("other"))
	require.NoError(t, err)
	assert.NotEqual(t, first, changed, "changed content must change the tree hash")
}

// TestBuildTreeAcrossStores tests that hashing is independent of the store instance
func TestBuildTreeAcrossStores(t *testing.T) {
	_, builderA := setupStore(t)
	_, builderB := setupStore(t)

	hashA, err := builderA.BuildTree(sampleTree("soc"))
	require.NoError(t, err)
	hashB, err := builderB.BuildTree(sampleTree("soc"))
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)
}

// TestBuildTreeAmbiguousPath tests the file/directory clash guard
func TestBuildTreeAmbiguousPath(t *testing.T) {
	_, builder := setupStore(t)

	ft := content.NewFileTree()
	ft.Put("Jobs", []byte("file"))
	ft.Put("Jobs/Sync.json", []byte("{}"))

	_, err := builder.BuildTree(ft)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousPath)
}

// TestCommitChain tests append-only commit construction
func TestCommitChain(t *testing.T) {
	store, builder := setupStore(t)
	author := Signature{Name: "GitSync", Email: "gitsync@siemplify.co"}

	treeOne, err := builder.BuildTree(sampleTree("one"))
	require.NoError(t, err)
	first, err := builder.Commit(treeOne, plumbing.ZeroHash, author, "initial content export")
	require.NoError(t, err)

	gotTree, err := store.TreeHash(first)
	require.NoError(t, err)
	assert.Equal(t, treeOne, gotTree)

	treeTwo, err := builder.BuildTree(sampleTree("two"))
	require.NoError(t, err)
	second, err := builder.Commit(treeTwo, first, author, "content update")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	// History is a singly-linked chain, newest first.
	history, err := store.Log(second, 0)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{second, first}, history)

	descendant, err := store.IsDescendant(second, first)
	require.NoError(t, err)
	assert.True(t, descendant)

	descendant, err = store.IsDescendant(first, second)
	require.NoError(t, err)
	assert.False(t, descendant)
}

// TestCommitDeterministicHash tests that identical inputs reproduce the commit hash
func TestCommitDeterministicHash(t *testing.T) {
	_, builderA := setupStore(t)
	_, builderB := setupStore(t)
	author := Signature{Name: "GitSync", Email: "gitsync@siemplify.co"}

	treeA, err := builderA.BuildTree(sampleTree("soc"))
	require.NoError(t, err)
	treeB, err := builderB.BuildTree(sampleTree("soc"))
	require.NoError(t, err)

	commitA, err := builderA.Commit(treeA, plumbing.ZeroHash, author, "export")
	require.NoError(t, err)
	commitB, err := builderB.Commit(treeB, plumbing.ZeroHash, author, "export")
	require.NoError(t, err)

	assert.Equal(t, commitA, commitB, "same tree, parent, author, message, and clock must reproduce the hash")
}

// TestBranchRefs tests branch ref maintenance
func TestBranchRefs(t *testing.T) {
	store, builder := setupStore(t)
	author := Signature{Name: "GitSync", Email: "gitsync@siemplify.co"}

	head, err := store.BranchHead("main")
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, head, "missing branch resolves to zero hash")

	tree, err := builder.BuildTree(sampleTree("soc"))
	require.NoError(t, err)
	commit, err := builder.Commit(tree, plumbing.ZeroHash, author, "export")
	require.NoError(t, err)

	require.NoError(t, store.SetBranch("main", commit))

	head, err = store.BranchHead("main")
	require.NoError(t, err)
	assert.Equal(t, commit, head)

	remote, err := store.RemoteHead("main")
	require.NoError(t, err)
	assert.Equal(t, plumbing.ZeroHash, remote, "never-fetched remote branch resolves to zero hash")
}

// TestOpenReusesStore tests reopening a store on the same filesystem
func TestOpenReusesStore(t *testing.T) {
	store, err := OpenMemory("https://git.example.com/soc/content.git")
	require.NoError(t, err)

	remote, err := store.Repository().Remote(RemoteName)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://git.example.com/soc/content.git"}, remote.Config().URLs)
}
