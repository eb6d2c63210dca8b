package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	billyfs "github.com/input-output-hk/catalyst-forge-libs/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	remoteA = "git@github.com:acme/content.git"
	remoteB = "https://gitlab.internal/acme/content.git"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(billyfs.NewInMemoryFS(), filepath.Join("var", "state", DefaultFileName))
}

func testHead(seed string) Head {
	return Head{
		Commit:   plumbing.ComputeHash(plumbing.CommitObject, []byte(seed)),
		Tree:     plumbing.ComputeHash(plumbing.TreeObject, []byte(seed)),
		PushedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	head := testHead("first")

	_, ok, err := store.Head(remoteA, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetHead(remoteA, "main", head))

	got, ok, err := store.Head(remoteA, "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, head.Commit, got.Commit)
	assert.Equal(t, head.Tree, got.Tree)
	assert.True(t, head.PushedAt.Equal(got.PushedAt))
}

func TestStoreKeysAreIndependent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetHead(remoteA, "main", testHead("a-main")))
	require.NoError(t, store.SetHead(remoteA, "develop", testHead("a-develop")))
	require.NoError(t, store.SetHead(remoteB, "main", testHead("b-main")))

	got, ok, err := store.Head(remoteA, "develop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testHead("a-develop").Commit, got.Commit)

	_, ok, err = store.Head(remoteB, "develop")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreOverwrite(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetHead(remoteA, "main", testHead("old")))
	require.NoError(t, store.SetHead(remoteA, "main", testHead("new")))

	got, ok, err := store.Head(remoteA, "main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testHead("new").Commit, got.Commit)
}

func TestStoreForget(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetHead(remoteA, "main", testHead("x")))
	require.NoError(t, store.Forget(remoteA, "main"))

	_, ok, err := store.Head(remoteA, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, store.Forget(remoteA, "main"))
}

func TestStoreCorruptFileDegradesToEmpty(t *testing.T) {
	fsys := billyfs.NewInMemoryFS()
	path := filepath.Join("var", "state", DefaultFileName)
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, fsys.WriteFile(path, []byte("{ not json"), 0o600))

	store := NewStore(fsys, path)
	_, ok, err := store.Head(remoteA, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetHead(remoteA, "main", testHead("recovered")))
	_, ok, err = store.Head(remoteA, "main")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreZeroHead(t *testing.T) {
	assert.True(t, Head{}.IsZero())
	assert.False(t, testHead("x").IsZero())
}
