package collabsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/appflowy/collabsync/crdtio"
	"github.com/appflowy/collabsync/transport"
)

// Register binds doc to objectID under collabKind, returning its
// SyncContext. Re-registering the same document instance increments
// the owner count and returns the existing context; registering a different
// instance under an id already in use replaces the stale context first.
func (e *Engine) Register(doc crdtio.Doc, viewID ObjectID, collabKind CollabKind, awareness crdtio.Awareness) (*SyncContext, error) {
	objectID, err := ParseObjectID(doc.Guid())
	if err != nil {
		return nil, ErrInvalidObjectID
	}

	e.state.mu.Lock()
	if e.state.disposed {
		e.state.mu.Unlock()
		return nil, ErrEngineDisposed
	}

	existing, ok := e.state.registry[objectID]
	if ok && existing.Doc == doc {
		e.state.ownerCounts[objectID]++
		e.cancelDeferredCleanupLocked(objectID)
		e.state.mu.Unlock()
		return existing, nil
	}
	skipFlush := e.state.skipFlushOnDestroy[objectID]
	e.state.mu.Unlock()

	if ok {
		// A different document instance holds this object id: tear the old
		// context down fully before installing the new one, flushing unless
		// the id is marked skip-flush by an in-progress reset or revert.
		e.unregisterInternal(objectID, !skipFlush)
	}

	ctx := &SyncContext{
		Doc:       doc,
		Awareness: awareness,
		Meta: DocMeta{
			ObjectID:   objectID,
			ViewID:     viewID,
			CollabKind: collabKind,
			SyncBound:  true,
		},
	}

	ctx.emit = func(update []byte) {
		e.publishUpdate(ctx, update)
	}
	unsubUpdate := doc.OnUpdate(func(update []byte, _ any) {
		e.onLocalUpdate(objectID, update)
	})
	unsubDestroy := doc.OnDestroy(func() {
		e.onDocDestroyed(objectID)
	})
	ctx.cleanupDoc = func() {
		unsubUpdate()
		unsubDestroy()
	}

	e.state.mu.Lock()
	if e.state.disposed {
		e.state.mu.Unlock()
		ctx.cleanupDoc()
		return nil, ErrEngineDisposed
	}
	e.state.registry[objectID] = ctx
	e.state.ownerCounts[objectID] = 1
	e.cancelDeferredCleanupLocked(objectID)
	e.state.mu.Unlock()

	e.log.Debug("registered sync context",
		zap.String("object_id", objectID.String()),
		zap.String("collab_kind", collabKind.String()))

	e.sendHandshake(ctx)
	return ctx, nil
}

// onLocalUpdate handles a locally produced CRDT update: on a Document's
// first local transaction it records the current user's clientID -> userID
// association for later editor attribution, then forwards the update through
// the context's emit to both transports so sibling tabs and the server see it
// without waiting on a round-trip.
func (e *Engine) onLocalUpdate(objectID ObjectID, update []byte) {
	e.state.mu.Lock()
	ctx, ok := e.state.registry[objectID]
	user := e.state.currentUser
	e.state.mu.Unlock()
	if !ok || ctx.isApplyingRemote() {
		return
	}

	ctx.maybeAttachUser(user)
	ctx.emit(update)
}

// publishUpdate pushes one outbound update, stamped with a fresh message id
// and the context's current version, to both the server-duplex and the local
// fan-out transports.
func (e *Engine) publishUpdate(ctx *SyncContext, update []byte) {
	ts, counter := e.ids.Next()
	msg := transport.Message{
		ObjectID:   ctx.Meta.ObjectID.String(),
		CollabType: int(ctx.Meta.CollabKind),
		Update: &transport.UpdateWire{
			Update:    update,
			MessageID: &transport.MessageIDWire{Timestamp: ts, Counter: counter},
		},
	}
	if ctx.Version != nil {
		v := ctx.Version.String()
		msg.Update.Version = &v
	}

	if err := e.serverTransport.Publish(e.ctx(), msg); err != nil {
		e.log.Warn("publish to server transport failed", zap.Error(err))
	}
	if err := e.localTransport.Publish(e.ctx(), msg); err != nil {
		e.log.Warn("publish to local transport failed", zap.Error(err))
	}
}

// onDocDestroyed mirrors the external destroy signal from the CRDT host into
// the same unregister path scheduleDeferredCleanup uses with zero owners.
func (e *Engine) onDocDestroyed(objectID ObjectID) {
	e.unregisterInternal(objectID, !e.skipFlush(objectID))
}

func (e *Engine) skipFlush(objectID ObjectID) bool {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.skipFlushOnDestroy[objectID]
}

// Unregister detaches objectID's context, flushing pending updates unless
// flushPending is false. Idempotent on unknown ids.
func (e *Engine) Unregister(objectID ObjectID, flushPending bool) {
	e.unregisterInternal(objectID, flushPending)
}

func (e *Engine) unregisterInternal(objectID ObjectID, flushPending bool) {
	e.state.mu.Lock()
	ctx, ok := e.state.registry[objectID]
	if !ok {
		e.state.mu.Unlock()
		return
	}
	delete(e.state.registry, objectID)
	delete(e.state.ownerCounts, objectID)
	delete(e.state.skipFlushOnDestroy, objectID)
	e.cancelDeferredCleanupLocked(objectID)
	e.state.mu.Unlock()

	if flushPending {
		ctx.flush()
	} else {
		ctx.discardPendingUpdates()
	}
	if ctx.cleanupDoc != nil {
		ctx.cleanupDoc()
	}
}

// ScheduleDeferredCleanup decrements objectID's owner count and, if it
// reaches zero, starts the grace timer after which the context is torn down
// provided no intervening re-registration occurred.
func (e *Engine) ScheduleDeferredCleanup(objectID ObjectID) {
	e.state.mu.Lock()
	if e.state.disposed {
		e.state.mu.Unlock()
		return
	}
	count, ok := e.state.ownerCounts[objectID]
	if !ok {
		e.state.mu.Unlock()
		return
	}
	count--
	e.state.ownerCounts[objectID] = count
	if count > 0 {
		e.state.mu.Unlock()
		return
	}

	delay := e.opts.DeferredCleanupDelay
	timer := time.AfterFunc(delay, func() {
		e.fireDeferredCleanup(objectID)
	})
	if old, exists := e.state.cleanupTimers[objectID]; exists {
		old.Stop()
	}
	e.state.cleanupTimers[objectID] = timer
	e.state.mu.Unlock()
}

func (e *Engine) fireDeferredCleanup(objectID ObjectID) {
	e.state.mu.Lock()
	delete(e.state.cleanupTimers, objectID)
	count, ok := e.state.ownerCounts[objectID]
	if !ok || count > 0 {
		e.state.mu.Unlock()
		return
	}
	e.state.mu.Unlock()

	e.unregisterInternal(objectID, true)
}

// CancelDeferredCleanup clears any pending grace timer for objectID.
func (e *Engine) CancelDeferredCleanup(objectID ObjectID) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	e.cancelDeferredCleanupLocked(objectID)
}

func (e *Engine) cancelDeferredCleanupLocked(objectID ObjectID) {
	if t, ok := e.state.cleanupTimers[objectID]; ok {
		t.Stop()
		delete(e.state.cleanupTimers, objectID)
	}
}

// sendHandshake issues the initial syncRequest for a freshly registered
// context so the server can answer with whatever the client is missing.
func (e *Engine) sendHandshake(ctx *SyncContext) {
	sr := &transport.SyncRequestWire{}
	if ctx.Version != nil {
		v := ctx.Version.String()
		sr.Version = &v
	}
	msg := transport.Message{
		ObjectID:    ctx.Meta.ObjectID.String(),
		CollabType:  int(ctx.Meta.CollabKind),
		SyncRequest: sr,
	}
	if err := e.serverTransport.Publish(context.Background(), msg); err != nil {
		e.log.Debug("handshake publish failed", zap.Error(err))
	}
}
