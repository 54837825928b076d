package collabsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/appflowy/collabsync/crdtio"
	"github.com/appflowy/collabsync/localcache"
)

// Revert restores viewID's document to targetVersion via the HTTP boundary,
// then rebuilds it in place. The previous document is kept alive (not
// destroyed) until the rebuild succeeds, so a failure at any stage can
// restore the prior context and leave the UI functional.
//
// The critical section (discard, unregister, HTTP call, rebuild) is guarded
// by an advisory distributed lock keyed by the object id, so a revert racing
// a concurrent revert from another tab or process fails with
// ErrRevertLockBusy rather than silently clobbering it.
func (e *Engine) Revert(ctx context.Context, viewID ObjectID, targetVersion VersionID) error {
	if e.http == nil {
		return &RevertError{ObjectID: viewID, Stage: RevertStageLookup, Err: ErrNoHTTPClient}
	}

	sc, objectID, ok := e.lookupByViewID(viewID)
	if !ok {
		return &RevertError{ObjectID: viewID, Stage: RevertStageLookup, Err: ErrContextNotFound}
	}

	e.state.mu.Lock()
	user := e.state.currentUser
	e.state.mu.Unlock()
	if user == nil {
		return &RevertError{ObjectID: objectID, Stage: RevertStageLookup, Err: ErrNoCurrentUser}
	}

	lock := e.locks.GetLock(objectID.String(), e.instanceID)
	acquired, err := lock.Acquire(ctx, e.opts.RevertLockTimeout)
	if err != nil {
		return &RevertError{ObjectID: objectID, Stage: RevertStageLookup, Err: err}
	}
	if !acquired {
		return &RevertError{ObjectID: objectID, Stage: RevertStageLookup, Err: ErrRevertLockBusy}
	}
	defer func() {
		if _, err := lock.Release(ctx); err != nil {
			e.log.Debug("revert: lock release failed", zap.Error(err))
		}
	}()

	meta := sc.Meta
	previousVersion := sc.Version
	previousDoc := sc.Doc

	sc.discardPendingUpdates()
	e.Unregister(objectID, false)

	e.state.mu.Lock()
	e.state.resetting[objectID] = true
	e.state.mu.Unlock()

	result, err := e.http.RevertCollabVersion(ctx, e.workspaceID, objectID.String(), int(meta.CollabKind), targetVersion.String())
	if err != nil {
		e.restoreContext(objectID, meta, previousDoc, previousVersion)
		return &RevertError{ObjectID: objectID, Stage: RevertStageHTTP, Err: err}
	}

	nextVersion := targetVersion
	if result.Version != nil {
		if v, perr := ParseObjectID(*result.Version); perr == nil {
			nextVersion = v
		}
	}
	nextVersionStr := nextVersion.String()

	// Open the rebuilt document through the local cache boundary, exactly as
	// the dispatcher's reset path does, and persist the server-returned
	// state back into it keyed by the new version, so a subsequent reset or
	// offline reopen reuses the just-reverted content instead of stale
	// pre-revert state.
	open := func() (crdtio.Doc, crdtio.Awareness, error) {
		doc, err := e.cache.Open(ctx, objectID.String(), localcache.OpenOptions{
			ExpectedVersion: &nextVersionStr,
			ForceReset:      true,
		}, newMemoryDocFactory)
		if err != nil {
			return nil, nil, err
		}
		if len(result.DocState) > 0 {
			if err := doc.ApplyUpdate(ctx, result.DocState); err != nil {
				return nil, nil, err
			}
		}
		if err := e.cache.Persist(ctx, objectID.String(), nextVersionStr, doc); err != nil {
			e.log.Debug("revert: persist reverted state to cache failed", zap.Error(err))
		}
		var aw crdtio.Awareness
		if meta.CollabKind == CollabKindDocument {
			aw = crdtio.NewMemoryAwareness(0)
		}
		return doc, aw, nil
	}

	newCtx, err := e.rebuildDoc(objectID, meta, open, false, false)
	if err != nil {
		e.log.Warn("revert rebuild failed, restoring previous context", zap.Error(err))
		e.restoreContext(objectID, meta, previousDoc, previousVersion)
		return &RevertError{ObjectID: objectID, Stage: RevertStageRebuild, Err: err}
	}
	newCtx.Version = &nextVersion
	previousDoc.Destroy()

	e.state.mu.Lock()
	delete(e.state.resetting, objectID)
	queued := e.state.queuedDuringReset[objectID]
	delete(e.state.queuedDuringReset, objectID)
	e.state.mu.Unlock()

	for _, qm := range queued {
		e.applyMessage(qm)
	}
	return nil
}

func (e *Engine) lookupByViewID(viewID ObjectID) (*SyncContext, ObjectID, bool) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	for objectID, ctx := range e.state.registry {
		if ctx.Meta.ViewID == viewID {
			return ctx, objectID, true
		}
	}
	return nil, ObjectID{}, false
}

func (e *Engine) restoreContext(objectID ObjectID, meta DocMeta, doc crdtio.Doc, version *VersionID) {
	ctx, err := e.Register(doc, meta.ViewID, meta.CollabKind, nil)

	e.state.mu.Lock()
	delete(e.state.resetting, objectID)
	queued := e.state.queuedDuringReset[objectID]
	delete(e.state.queuedDuringReset, objectID)
	e.state.mu.Unlock()

	if err != nil {
		e.log.Error("failed to restore previous context after revert failure", zap.Error(err))
		return
	}
	ctx.Version = version

	// Messages that raced the failed revert are replayed on the restored
	// context so none are lost.
	for _, qm := range queued {
		e.applyMessage(qm)
	}
}
