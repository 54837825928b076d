package collabsync

import "github.com/appflowy/collabsync/crdtio"

// DocReplacedEvent is emitted by the Doc Rebuild Primitive whenever a
// document instance for an object id is substituted; UI listeners must
// rebind to the new doc/awareness pair.
type DocReplacedEvent struct {
	ObjectID         ObjectID
	ViewID           ObjectID
	Doc              crdtio.Doc
	Awareness        crdtio.Awareness
	IsExternalRevert bool
}

// rebuildDoc is the single shared procedure used by both the dispatcher's
// reset path and the revert controller: open a fresh document
// via openFn, register it, optionally carry forward a pending deferred
// cleanup, and emit doc-replaced.
func (e *Engine) rebuildDoc(objectID ObjectID, meta DocMeta, openFn openDocFn, reschedulePendingCleanup bool, isExternalRevert bool) (*SyncContext, error) {
	doc, awareness, err := openFn()
	if err != nil {
		return nil, err
	}

	ctx, err := e.Register(doc, meta.ViewID, meta.CollabKind, awareness)
	if err != nil {
		doc.Destroy()
		return nil, err
	}

	if reschedulePendingCleanup {
		e.ScheduleDeferredCleanup(objectID)
	}

	e.events.emitDocReplaced(DocReplacedEvent{
		ObjectID:         objectID,
		ViewID:           meta.ViewID,
		Doc:              doc,
		Awareness:        awareness,
		IsExternalRevert: isExternalRevert,
	})

	return ctx, nil
}
