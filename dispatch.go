package collabsync

import (
	"time"

	"go.uber.org/zap"

	"github.com/appflowy/collabsync/crdtio"
	"github.com/appflowy/collabsync/localcache"
	"github.com/appflowy/collabsync/transport"
)

// enqueue is the Message Dispatcher's entry point: route a decoded
// message either to the notification relay, the reset-time buffer, or the
// per-object-id FIFO.
func (e *Engine) enqueue(im IncomingMessage) {
	if im.Notification != nil {
		e.relayNotification(im.Notification)
		return
	}

	objectID := im.ObjectID
	e.state.mu.Lock()
	if e.state.disposed {
		e.state.mu.Unlock()
		return
	}
	if e.state.resetting[objectID] {
		e.state.queuedDuringReset[objectID] = append(e.state.queuedDuringReset[objectID], im)
		// Record this as the latest incoming version for the object id so a
		// reset already in flight can detect, after its cache-open await
		// returns, that it has been superseded.
		e.state.latestIncomingVersion[objectID] = extractVersion(im)
		e.state.mu.Unlock()
		return
	}
	e.state.inbox[objectID] = append(e.state.inbox[objectID], im)
	already := e.state.processing[objectID]
	if !already {
		e.state.processing[objectID] = true
	}
	e.state.mu.Unlock()

	if !already {
		go e.drainLoop(objectID)
	}
}

// drainLoop is the single consumer per object id: it applies messages
// strictly in arrival order for this id and exits once its queue empties,
// re-entering via enqueue's already-processing check if more arrive later.
func (e *Engine) drainLoop(objectID ObjectID) {
	for {
		e.state.mu.Lock()
		if e.state.disposed {
			delete(e.state.processing, objectID)
			delete(e.state.inbox, objectID)
			e.state.mu.Unlock()
			return
		}
		queue := e.state.inbox[objectID]
		if len(queue) == 0 {
			delete(e.state.processing, objectID)
			e.state.mu.Unlock()
			return
		}
		msg := queue[0]
		e.state.inbox[objectID] = queue[1:]
		e.state.mu.Unlock()

		e.applyMessage(msg)
	}
}

func extractVersion(im IncomingMessage) *VersionID {
	if im.Update != nil {
		return im.Update.Version
	}
	if im.SyncRequest != nil {
		return im.SyncRequest.Version
	}
	return nil
}

func sameVersionPtr(a, b *VersionID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// decideVersionGate compares the local and incoming versions: true means apply
// as-is, false means trigger a reset.
func decideVersionGate(local, incoming *VersionID) bool {
	switch {
	case local == nil && incoming == nil:
		return true
	case local == nil && incoming != nil:
		return false
	case local != nil && incoming == nil:
		return false
	default:
		return *local == *incoming
	}
}

// applyMessage is where an in-hand message meets the version gate.
func (e *Engine) applyMessage(im IncomingMessage) {
	objectID := im.ObjectID
	e.state.mu.Lock()
	ctx, ok := e.state.registry[objectID]
	e.state.mu.Unlock()
	if !ok {
		e.log.Debug("dropping message: no registered context", zap.String("object_id", objectID.String()))
		return
	}

	incoming := extractVersion(im)
	if decideVersionGate(ctx.Version, incoming) {
		e.doApply(ctx, im)
		return
	}
	e.performReset(objectID, im, incoming)
}

// doApply applies an update to ctx's document, or answers a sync request
// with the document's full current state, then publishes the last-updated
// observation.
func (e *Engine) doApply(ctx *SyncContext, im IncomingMessage) {
	if im.Update != nil {
		ctx.beginRemoteApply()
		err := ctx.Doc.ApplyUpdate(e.ctx(), im.Update.Update)
		ctx.endRemoteApply()
		if err != nil {
			e.log.Warn("apply update failed, continuing", zap.Error(err))
		} else {
			var publishedAt *time.Time
			if im.Update.MessageID != nil {
				t := time.UnixMilli(im.Update.MessageID.Timestamp)
				publishedAt = &t
			}
			e.events.emitLastUpdated(LastUpdatedEvent{
				ObjectID:    ctx.Meta.ObjectID,
				CollabKind:  ctx.Meta.CollabKind,
				PublishedAt: publishedAt,
			})
		}
	}
	if im.SyncRequest != nil {
		e.respondToSyncRequest(ctx)
	}
}

func (e *Engine) respondToSyncRequest(ctx *SyncContext) {
	state, err := ctx.Doc.EncodeStateAsUpdate(e.ctx(), nil)
	if err != nil {
		e.log.Warn("encode state for sync response failed", zap.Error(err))
		return
	}
	ts, counter := e.ids.Next()
	msg := transport.Message{
		ObjectID:   ctx.Meta.ObjectID.String(),
		CollabType: int(ctx.Meta.CollabKind),
		Update: &transport.UpdateWire{
			Update:    state,
			MessageID: &transport.MessageIDWire{Timestamp: ts, Counter: counter},
		},
	}
	if ctx.Version != nil {
		v := ctx.Version.String()
		msg.Update.Version = &v
	}
	if err := e.serverTransport.Publish(e.ctx(), msg); err != nil {
		e.log.Debug("sync response publish failed", zap.Error(err))
	}
}

// performReset replaces objectID's document in place: discard outgoing
// state, destroy the old doc, reopen at the incoming version, re-apply the
// triggering message, then replay anything buffered during the gap.
func (e *Engine) performReset(objectID ObjectID, triggering IncomingMessage, incoming *VersionID) {
	e.state.mu.Lock()
	e.state.latestIncomingVersion[objectID] = incoming
	ctx, ok := e.state.registry[objectID]
	e.state.mu.Unlock()
	if !ok {
		return
	}
	meta := ctx.Meta

	e.events.emitReset(objectID)
	ctx.discardPendingUpdates()

	e.state.mu.Lock()
	e.state.skipFlushOnDestroy[objectID] = true
	e.state.resetting[objectID] = true
	_, hadPendingCleanup := e.state.cleanupTimers[objectID]
	e.cancelDeferredCleanupLocked(objectID)
	e.state.mu.Unlock()

	previousVersion := ctx.Version

	// Take a snapshot of the outgoing doc's full state before destroying it,
	// keyed by its own (pre-reset) version, so a cache-open failure below can
	// rehydrate real prior content instead of falling through to an empty
	// document.
	if state, err := ctx.Doc.EncodeStateAsUpdate(e.ctx(), nil); err != nil {
		e.log.Debug("reset: encode state for snapshot failed", zap.Error(err))
	} else if err := localcache.TrySaveSnapshot(e.ctx(), e.cache, objectID.String(), versionKeyOrUnset(previousVersion), state); err != nil && err != localcache.ErrUnsupported {
		e.log.Debug("reset: save snapshot failed", zap.Error(err))
	}

	ctx.Doc.Destroy()

	forceReset := incoming == nil
	expected := incoming

	open := func() (crdtio.Doc, crdtio.Awareness, error) {
		var expStr *string
		if expected != nil {
			s := expected.String()
			expStr = &s
		}
		doc, err := e.cache.Open(e.ctx(), objectID.String(), localcache.OpenOptions{
			ExpectedVersion: expStr,
			ForceReset:      forceReset,
		}, newMemoryDocFactory)
		if err != nil {
			return nil, nil, err
		}
		var aw crdtio.Awareness
		if meta.CollabKind == CollabKindDocument {
			aw = crdtio.NewMemoryAwareness(0)
		}
		return doc, aw, nil
	}

	newCtx, err := e.rebuildDoc(objectID, meta, open, hadPendingCleanup, true)
	if err != nil {
		e.log.Warn("reset cache open failed, rehydrating from snapshot", zap.Error(err))
		newCtx, err = e.rehydrateFromSnapshot(objectID, meta, previousVersion, hadPendingCleanup)
		if err != nil {
			e.log.Error("reset rehydrate fallback failed", zap.Error(err))
			e.state.mu.Lock()
			delete(e.state.resetting, objectID)
			e.state.mu.Unlock()
			return
		}
	}
	newCtx.Version = expected

	// Abort check: has a newer incoming version for this
	// object id superseded the one driving this reset? If so, the version
	// re-check runs against newCtx, whose version was just set to incoming,
	// so it passes and the triggering message is still applied; the
	// superseding message waits in queuedDuringReset and drives its own reset
	// when replayed below.
	e.state.mu.Lock()
	latest := e.state.latestIncomingVersion[objectID]
	e.state.mu.Unlock()

	if sameVersionPtr(latest, incoming) {
		e.doApply(newCtx, triggering)
	} else if decideVersionGate(newCtx.Version, incoming) {
		e.doApply(newCtx, triggering)
	}

	e.state.mu.Lock()
	delete(e.state.resetting, objectID)
	queued := e.state.queuedDuringReset[objectID]
	delete(e.state.queuedDuringReset, objectID)
	e.state.mu.Unlock()

	for _, qm := range queued {
		e.applyMessage(qm)
	}
}

func newMemoryDocFactory(guid string) crdtio.Doc {
	return crdtio.NewMemoryDoc(guid)
}

// rehydrateFromSnapshot is the recovery path when the cache open itself
// fails: reconstruct an in-memory document from the *previous* snapshot
// taken just before the outgoing doc was destroyed, keyed by its pre-reset
// version, so the triggering message can still apply on top of real prior
// content rather than an empty document. The caller tags the result with the
// new target version afterward.
func (e *Engine) rehydrateFromSnapshot(objectID ObjectID, meta DocMeta, previousVersion *VersionID, hadPendingCleanup bool) (*SyncContext, error) {
	key := versionKeyOrUnset(previousVersion)

	open := func() (crdtio.Doc, crdtio.Awareness, error) {
		doc := crdtio.NewMemoryDoc(objectID.String())
		if data, err := localcache.TryLoadSnapshot(e.ctx(), e.cache, objectID.String(), key); err == nil {
			if err := doc.ApplyUpdate(e.ctx(), data); err != nil {
				return nil, nil, err
			}
		}
		var aw crdtio.Awareness
		if meta.CollabKind == CollabKindDocument {
			aw = crdtio.NewMemoryAwareness(0)
		}
		return doc, aw, nil
	}

	return e.rebuildDoc(objectID, meta, open, hadPendingCleanup, true)
}

// versionKeyOrUnset turns a possibly-nil VersionID into the string key the
// local cache's snapshot surface is addressed by, using a sentinel that
// never collides with a UUID for the unset case.
func versionKeyOrUnset(v *VersionID) string {
	if v == nil {
		return "unset"
	}
	return v.String()
}
