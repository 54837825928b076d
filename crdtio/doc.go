// Package crdtio defines the abstract CRDT capabilities the sync engine
// consumes. The CRDT algorithm itself (merge semantics, operation log) is out
// of scope for this module; callers plug in a real implementation (e.g. a
// Y.js-compatible document host reached over cgo/wasm, or any other CRDT
// library) by satisfying these interfaces.
package crdtio

import "context"

// Snapshot is an opaque, comparable point-in-time capture of a Doc's state.
// The engine never inspects its contents directly; it is handed back to the
// CRDT host to compute diffs (see StateVector) or to EditorsBetween.
type Snapshot interface {
	// StateVector returns, for every known client id, the highest sequence
	// number observed from that client as of this snapshot.
	StateVector() map[uint64]uint64

	// DeleteSet returns, for every known client id, the list of deleted
	// (clock, length) ranges as of this snapshot.
	DeleteSet() map[uint64][]Range
}

// Range is a half-open interval [Clock, Clock+Len) used by the delete-set
// intersection/subtraction math in the editor-history helper.
type Range struct {
	Clock int64
	Len   int64
}

// Doc is a single CRDT document instance bound to one object id.
type Doc interface {
	// Guid returns the document's CRDT-level identity. The engine asserts
	// this equals the object id it registered the document under.
	Guid() string

	// ApplyUpdate merges an opaque CRDT update produced by a peer into this
	// document's state.
	ApplyUpdate(ctx context.Context, update []byte) error

	// EncodeStateAsUpdate returns a full (or since-stateVector, if supplied)
	// encoding of this document's state, suitable for transport or
	// persistence.
	EncodeStateAsUpdate(ctx context.Context, sinceStateVector []byte) ([]byte, error)

	// EncodeStateVector returns this document's compact state vector.
	EncodeStateVector(ctx context.Context) ([]byte, error)

	// Snapshot captures the current state for later diffing.
	Snapshot() Snapshot

	// OnUpdate registers a callback invoked whenever local or remote
	// mutations change this document. It returns an unsubscribe function.
	OnUpdate(fn func(update []byte, origin any)) (unsubscribe func())

	// OnDestroy registers a callback invoked exactly once when Destroy is
	// called. It returns an unsubscribe function.
	OnDestroy(fn func()) (unsubscribe func())

	// Transact runs fn inside a single CRDT transaction tagged with origin,
	// batching the updates it produces into one OnUpdate notification.
	Transact(origin any, fn func()) error

	// Destroy releases any resources held by the document. Idempotent.
	Destroy()
}

// Awareness is the out-of-band ephemeral presence channel attached to
// Document collabs only (cursors, selection, online status).
type Awareness interface {
	ClientID() uint64
	SetLocalState(state map[string]any)
	Destroy()
}
