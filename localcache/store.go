// Package localcache implements the engine's local cache boundary:
// a per-object-id persisted CRDT state keyed by version,
// used to rehydrate documents across reloads and to recover in-memory when a
// reset's cache open fails.
package localcache

import (
	"context"
	"fmt"
	"time"

	"github.com/appflowy/collabsync/crdtio"
)

// OpenOptions controls how a cached document is opened.
type OpenOptions struct {
	// ExpectedVersion, if set, must match the cached version or the entry is
	// evicted and a fresh doc is returned.
	ExpectedVersion *string

	// CurrentUser is attached for implementations that record per-user
	// cache partitions; unused by the in-memory and Badger stores here.
	CurrentUser *string

	// ForceReset bypasses any cached entry and always returns a fresh doc.
	ForceReset bool
}

// DocFactory constructs an empty crdtio.Doc for a guid; the store applies any
// cached update bytes to it before returning. The store never implements CRDT
// semantics itself, staying consistent with the rest of this module keeping
// the CRDT algorithm out of scope.
type DocFactory func(guid string) crdtio.Doc

// Store is the local cache boundary the engine depends on.
type Store interface {
	// Open returns a Doc for objectID, applying any cached state. When
	// opts.ExpectedVersion differs from the cached version (or ForceReset is
	// set), the cached entry is discarded and factory produces a clean doc.
	Open(ctx context.Context, objectID string, opts OpenOptions, factory DocFactory) (crdtio.Doc, error)

	// Persist stores the full encoded state of doc under objectID/version,
	// replacing whatever was previously cached for that object id.
	Persist(ctx context.Context, objectID, version string, doc crdtio.Doc) error

	// Evict removes any cached entry for objectID.
	Evict(ctx context.Context, objectID string) error

	Close() error
}

// SnapshotStore is an optional capability a Store may additionally
// implement. Components should type-assert for this rather than requiring it
// on Store, since not every deployment needs snapshot history.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, objectID, version string, data []byte) error
	LoadSnapshot(ctx context.Context, objectID, version string) ([]byte, error)
	ListSnapshots(ctx context.Context, objectID string) ([]string, error)
	DeleteSnapshot(ctx context.Context, objectID, version string) error
}

// ErrUnsupported is returned by SaveSnapshot-style helpers when a Store
// doesn't implement SnapshotStore. MemoryStore and BadgerStore also return it
// from LoadSnapshot when no snapshot is stored for the requested version.
var ErrUnsupported = fmt.Errorf("localcache: store does not support snapshots")

// TrySaveSnapshot saves a snapshot if store supports it, returning
// ErrUnsupported otherwise.
func TrySaveSnapshot(ctx context.Context, store Store, objectID, version string, data []byte) error {
	adv, ok := store.(SnapshotStore)
	if !ok {
		return ErrUnsupported
	}
	return adv.SaveSnapshot(ctx, objectID, version, data)
}

// TryLoadSnapshot loads a snapshot if store supports it, returning
// ErrUnsupported otherwise. Used by the reset path's in-memory rehydrate
// fallback when the cache open itself fails.
func TryLoadSnapshot(ctx context.Context, store Store, objectID, version string) ([]byte, error) {
	adv, ok := store.(SnapshotStore)
	if !ok {
		return nil, ErrUnsupported
	}
	return adv.LoadSnapshot(ctx, objectID, version)
}

// entryTTL is how long a cached object id's state survives without being
// re-persisted before it's eligible for GC in the Badger store.
const entryTTL = 30 * 24 * time.Hour
