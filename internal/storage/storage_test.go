package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	location, err := store.Save(context.Background(), ".pdf", []byte("raw bytes"))
	require.NoError(t, err)
	assert.Contains(t, location, ".pdf")

	data, err := store.Load(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw bytes"), data)

	require.NoError(t, store.Delete(context.Background(), location))
	_, err = store.Load(context.Background(), location)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDiskStoreLoadMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "never-saved.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestDiskStoreDeleteMissingIsNoop(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Delete(context.Background(), "never-saved.pdf"))
}

func TestDiskStoreUniqueLocations(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	a, err := store.Save(context.Background(), ".txt", []byte("one"))
	require.NoError(t, err)
	b, err := store.Save(context.Background(), ".txt", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
