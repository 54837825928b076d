package crdtio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDoc_ApplyUpdateNotifiesSubscribers(t *testing.T) {
	doc := NewMemoryDoc("doc-1")

	var received []byte
	unsub := doc.OnUpdate(func(update []byte, _ any) {
		received = update
	})
	defer unsub()

	require.NoError(t, doc.ApplyUpdate(context.Background(), []byte("hi")))
	assert.Equal(t, []byte("hi"), received)
}

func TestMemoryDoc_DestroyIsIdempotentAndNotifiesOnce(t *testing.T) {
	doc := NewMemoryDoc("doc-1")

	var calls int
	doc.OnDestroy(func() { calls++ })

	doc.Destroy()
	doc.Destroy()
	assert.Equal(t, 1, calls)
}

func TestMemoryDoc_EncodeStateAsUpdateConcatenatesLog(t *testing.T) {
	doc := NewMemoryDoc("doc-1")
	ctx := context.Background()

	require.NoError(t, doc.ApplyUpdate(ctx, []byte("a")))
	require.NoError(t, doc.ApplyUpdate(ctx, []byte("b")))

	state, err := doc.EncodeStateAsUpdate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), state)
}
