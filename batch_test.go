package collabsync

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appflowy/collabsync/crdtio"
)

func TestSyncAllToServer_SwallowsTransportFailure(t *testing.T) {
	fake := &fakeHTTPClient{batchErr: errors.New("server unreachable")}
	e := newTestEngineWithHTTP(t, fake)

	guid := uuid.New()
	doc := crdtio.NewMemoryDoc(guid.String())
	_, err := e.Register(doc, guid, CollabKindDocument, nil)
	require.NoError(t, err)

	err = e.SyncAllToServer(context.Background(), "ws-1")
	assert.NoError(t, err, "best-effort batch sync must not surface transport failures to the caller")
	assert.Equal(t, 1, fake.batchCalls)
	require.Len(t, fake.batchItems, 1)
	assert.Equal(t, guid.String(), fake.batchItems[0].ObjectID)
}

func TestSyncAllToServer_NoHTTPClientConfigured(t *testing.T) {
	e := newTestEngine(t, 0)
	err := e.SyncAllToServer(context.Background(), "ws-1")
	assert.ErrorIs(t, err, ErrNoHTTPClient)
}
