package collabsync

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appflowy/collabsync/httpapi"
)

// FlushAll calls flush on every registered context.
func (e *Engine) FlushAll() {
	e.state.mu.Lock()
	contexts := make([]*SyncContext, 0, len(e.state.registry))
	for _, ctx := range e.state.registry {
		contexts = append(contexts, ctx)
	}
	e.state.mu.Unlock()

	for _, ctx := range contexts {
		ctx.flush()
	}
}

// SyncAllToServer flushes every context, then encodes and pushes every
// document's full state to the server in one HTTP batch. Individual encode
// failures are logged and excluded from the batch rather than aborting the
// whole operation.
func (e *Engine) SyncAllToServer(ctx context.Context, workspaceID string) error {
	if e.http == nil {
		return ErrNoHTTPClient
	}
	e.FlushAll()

	e.state.mu.Lock()
	type entry struct {
		objectID ObjectID
		ctx      *SyncContext
	}
	entries := make([]entry, 0, len(e.state.registry))
	for objectID, sc := range e.state.registry {
		entries = append(entries, entry{objectID, sc})
	}
	e.state.mu.Unlock()

	items := make([]httpapi.SyncItem, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, en := range entries {
		i, en := i, en
		g.Go(func() error {
			stateVector, err := en.ctx.Doc.EncodeStateVector(gctx)
			if err != nil {
				e.log.Warn("batch sync: encode state vector failed",
					zap.String("object_id", en.objectID.String()), zap.Error(err))
				return nil
			}
			state, err := en.ctx.Doc.EncodeStateAsUpdate(gctx, nil)
			if err != nil {
				e.log.Warn("batch sync: encode state failed",
					zap.String("object_id", en.objectID.String()), zap.Error(err))
				return nil
			}
			items[i] = httpapi.SyncItem{
				ObjectID:    en.objectID.String(),
				CollabType:  int(en.ctx.Meta.CollabKind),
				StateVector: stateVector,
				DocState:    state,
			}
			return nil
		})
	}
	// Encoding never returns an error to the group (failures are logged and
	// skipped in place), so g.Wait() returns nil here.
	if err := g.Wait(); err != nil {
		return err
	}

	out := items[:0]
	for _, it := range items {
		if it.ObjectID != "" {
			out = append(out, it)
		}
	}

	if err := e.http.CollabFullSyncBatch(ctx, workspaceID, out); err != nil {
		e.log.Warn("batch sync: full sync batch failed", zap.Error(err))
		return nil
	}
	return nil
}
