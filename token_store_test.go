package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archive "github.com/legalarchive-ir/go-archive-client"
)

func TestMemoryTokenStore(t *testing.T) {
	store := archive.NewMemoryTokenStore()

	_, ok := store.Get()
	assert.False(t, ok)

	require.NoError(t, store.Set("T1"))
	token, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "T1", token)

	require.NoError(t, store.Clear())
	_, ok = store.Get()
	assert.False(t, ok)
}

func TestFileTokenStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth", "token")

	store, err := archive.NewFileTokenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("T1"))

	// A fresh instance stands in for a client restart.
	reopened, err := archive.NewFileTokenStore(path)
	require.NoError(t, err)
	token, ok := reopened.Get()
	assert.True(t, ok)
	assert.Equal(t, "T1", token)
}

func TestFileTokenStoreAbsentFileMeansNoSession(t *testing.T) {
	store, err := archive.NewFileTokenStore(filepath.Join(t.TempDir(), "token"))
	require.NoError(t, err)

	_, ok := store.Get()
	assert.False(t, ok)
}

func TestFileTokenStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	store, err := archive.NewFileTokenStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Set("T1"))
	require.NoError(t, store.Clear())

	_, ok := store.Get()
	assert.False(t, ok)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Clearing an already empty slot is fine.
	require.NoError(t, store.Clear())
}

func TestFileTokenStoreRestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	store, err := archive.NewFileTokenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set("T1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileTokenStoreRejectsEmptyPath(t *testing.T) {
	_, err := archive.NewFileTokenStore("")
	assert.Error(t, err)
}

func TestFileTokenStoreOverwrite(t *testing.T) {
	store, err := archive.NewFileTokenStore(filepath.Join(t.TempDir(), "token"))
	require.NoError(t, err)

	require.NoError(t, store.Set("T1"))
	require.NoError(t, store.Set("T2"))

	token, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "T2", token)
}
