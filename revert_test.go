package collabsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appflowy/collabsync/crdtio"
	"github.com/appflowy/collabsync/httpapi"
	"github.com/appflowy/collabsync/localcache"
)

type fakeHTTPClient struct {
	revertResult *httpapi.RevertResult
	revertErr    error

	batchErr   error
	batchCalls int
	batchItems []httpapi.SyncItem
}

func (f *fakeHTTPClient) RevertCollabVersion(_ context.Context, _, _ string, _ int, _ string) (*httpapi.RevertResult, error) {
	return f.revertResult, f.revertErr
}

func (f *fakeHTTPClient) CollabFullSyncBatch(_ context.Context, _ string, items []httpapi.SyncItem) error {
	f.batchCalls++
	f.batchItems = items
	return f.batchErr
}

func (f *fakeHTTPClient) GetCollabVersions(_ context.Context, _, _ string, _ *time.Time) ([]httpapi.VersionDTO, error) {
	return nil, nil
}

func newTestEngineWithHTTP(t *testing.T, http httpapi.Client) *Engine {
	t.Helper()
	e, err := NewEngine(Deps{
		WorkspaceID: "ws-1",
		Cache:       localcache.NewMemoryStore(),
		HTTP:        http,
	}, &EngineOptions{DeferredCleanupDelay: time.Second, VersionRetention: 7 * 24 * time.Hour})
	require.NoError(t, err)
	e.SetCurrentUser(&CurrentUser{UserID: "u1"})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// TestRevertFallback: the HTTP call succeeds but returns no version; the
// rebuilt context falls back to the requested target version and the object
// id remains registered.
func TestRevertFallback(t *testing.T) {
	fake := &fakeHTTPClient{
		revertResult: &httpapi.RevertResult{DocState: nil, Version: nil},
	}
	e := newTestEngineWithHTTP(t, fake)

	guid := uuid.New()
	doc := crdtio.NewMemoryDoc(guid.String())
	_, err := e.Register(doc, guid, CollabKindDocument, nil)
	require.NoError(t, err)

	target := uuid.New()
	err = e.Revert(context.Background(), guid, target)
	require.NoError(t, err, "a successful revert with an openable fresh doc should not error")

	e.state.mu.Lock()
	ctx, ok := e.state.registry[guid]
	e.state.mu.Unlock()
	require.True(t, ok, "object id must remain registered after revert")
	assert.Equal(t, target, *ctx.Version)
}

func TestRevertHTTPFailureRestoresPreviousContext(t *testing.T) {
	fake := &fakeHTTPClient{revertErr: errors.New("network down")}
	e := newTestEngineWithHTTP(t, fake)

	guid := uuid.New()
	doc := crdtio.NewMemoryDoc(guid.String())
	originalCtx, err := e.Register(doc, guid, CollabKindDocument, nil)
	require.NoError(t, err)

	err = e.Revert(context.Background(), guid, uuid.New())
	require.Error(t, err)
	var revertErr *RevertError
	require.ErrorAs(t, err, &revertErr)
	assert.Equal(t, RevertStageHTTP, revertErr.Stage)

	e.state.mu.Lock()
	ctx, ok := e.state.registry[guid]
	e.state.mu.Unlock()
	require.True(t, ok, "the previous context must be restored after an HTTP failure")
	assert.Same(t, originalCtx.Doc, ctx.Doc)
}

func TestRevertWithoutCurrentUser(t *testing.T) {
	e := newTestEngine(t, time.Second)
	e.http = &fakeHTTPClient{}

	guid := uuid.New()
	doc := crdtio.NewMemoryDoc(guid.String())
	_, err := e.Register(doc, guid, CollabKindDocument, nil)
	require.NoError(t, err)

	err = e.Revert(context.Background(), guid, uuid.New())
	require.Error(t, err)
	var revertErr *RevertError
	require.ErrorAs(t, err, &revertErr)
	assert.ErrorIs(t, revertErr, ErrNoCurrentUser)
}
