package localcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appflowy/collabsync/crdtio"
)

func TestMemoryStore_OpenRehydratesCachedState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := crdtio.NewMemoryDoc("obj-1")
	require.NoError(t, doc.ApplyUpdate(ctx, []byte("hello")))
	require.NoError(t, store.Persist(ctx, "obj-1", "v1", doc))

	reopened, err := store.Open(ctx, "obj-1", OpenOptions{}, func(guid string) crdtio.Doc {
		return crdtio.NewMemoryDoc(guid)
	})
	require.NoError(t, err)

	state, err := reopened.EncodeStateAsUpdate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), state)
}

func TestMemoryStore_ExpectedVersionMismatchEvicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := crdtio.NewMemoryDoc("obj-1")
	require.NoError(t, doc.ApplyUpdate(ctx, []byte("hello")))
	require.NoError(t, store.Persist(ctx, "obj-1", "v1", doc))

	other := "v2"
	reopened, err := store.Open(ctx, "obj-1", OpenOptions{ExpectedVersion: &other}, func(guid string) crdtio.Doc {
		return crdtio.NewMemoryDoc(guid)
	})
	require.NoError(t, err)

	state, err := reopened.EncodeStateAsUpdate(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, state, "a version mismatch must discard the cached entry and return a clean doc")
}

func TestMemoryStore_SnapshotRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, TrySaveSnapshot(ctx, store, "obj-1", "v1", []byte("snap")))
	data, err := TryLoadSnapshot(ctx, store, "obj-1", "v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("snap"), data)

	list, err := store.ListSnapshots(ctx, "obj-1")
	require.NoError(t, err)
	assert.Contains(t, list, "v1")
}
