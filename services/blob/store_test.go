package blobsvc

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func testStore(t *testing.T, store core.BlobStore) {
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "g1/a.pdf", strings.NewReader("%PDF-1"), 6, "application/pdf"))

	rc, err := store.Download(ctx, "g1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1", readAll(t, rc))

	require.NoError(t, store.Remove(ctx, "g1/a.pdf"))
	_, err = store.Download(ctx, "g1/a.pdf")
	assert.True(t, core.IsNotFound(err), "got %v", err)

	// removing twice is fine
	assert.NoError(t, store.Remove(ctx, "g1/a.pdf"))
}

func TestLocalStore(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	testStore(t, store)

	t.Run("rejects paths outside the root", func(t *testing.T) {
		ctx := context.Background()
		for _, p := range []string{"../escape.pdf", "a/../../escape.pdf", ""} {
			assert.Error(t, store.Upload(ctx, p, strings.NewReader("x"), 1, ""), p)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStore(t, store)

	ctx := context.Background()
	boom := errors.New("boom")
	require.NoError(t, store.Upload(ctx, "x", strings.NewReader("x"), 1, ""))

	store.FailOn("remove", boom)
	assert.Equal(t, boom, store.Remove(ctx, "x"))
	assert.Equal(t, []string{"x"}, store.Paths())

	store.FailOn("remove", nil)
	assert.NoError(t, store.Remove(ctx, "x"))
	assert.Empty(t, store.Paths())
}

func TestNew(t *testing.T) {
	conf := &core.Config{Storage: core.StorageConfig{Backend: "memory"}}
	store, err := New(conf)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	conf.Storage.Backend = "local"
	conf.Storage.LocalDir = t.TempDir()
	store, err = New(conf)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)

	conf.Storage.Backend = "ftp"
	_, err = New(conf)
	assert.Error(t, err)
}
