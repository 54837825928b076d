package crdtio

import (
	"context"
	"sync"
)

// MemoryDoc is a minimal in-memory Doc used by the engine's tests and by
// callers that have not yet wired a real CRDT host. It tracks just enough
// state (a per-client clock and a byte log) to exercise registration,
// dispatch, reset and editor-history logic; it does not implement CRDT merge
// semantics.
type MemoryDoc struct {
	mu sync.Mutex

	guid string

	clock     map[uint64]uint64
	deleteSet map[uint64][]Range
	log       [][]byte

	updateFns  map[int]func([]byte, any)
	destroyFns map[int]func()
	nextSub    int

	destroyed bool
}

// NewMemoryDoc creates an empty document identified by guid.
func NewMemoryDoc(guid string) *MemoryDoc {
	return &MemoryDoc{
		guid:       guid,
		clock:      make(map[uint64]uint64),
		deleteSet:  make(map[uint64][]Range),
		updateFns:  make(map[int]func([]byte, any)),
		destroyFns: make(map[int]func()),
	}
}

func (d *MemoryDoc) Guid() string { return d.guid }

// ApplyUpdate appends the update bytes to the local log and bumps client 0's
// clock by the update length, mimicking an insertion of that size.
func (d *MemoryDoc) ApplyUpdate(_ context.Context, update []byte) error {
	d.mu.Lock()
	d.log = append(d.log, update)
	d.clock[0] += uint64(len(update))
	fns := snapshotFns(d.updateFns)
	d.mu.Unlock()

	for _, fn := range fns {
		fn(update, nil)
	}
	return nil
}

func (d *MemoryDoc) EncodeStateAsUpdate(_ context.Context, _ []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, 0)
	for _, u := range d.log {
		out = append(out, u...)
	}
	return out, nil
}

func (d *MemoryDoc) EncodeStateVector(_ context.Context) ([]byte, error) {
	return []byte(d.guid), nil
}

func (d *MemoryDoc) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	sv := make(map[uint64]uint64, len(d.clock))
	for k, v := range d.clock {
		sv[k] = v
	}
	ds := make(map[uint64][]Range, len(d.deleteSet))
	for k, v := range d.deleteSet {
		cp := make([]Range, len(v))
		copy(cp, v)
		ds[k] = cp
	}
	return &memSnapshot{stateVector: sv, deleteSet: ds}
}

func (d *MemoryDoc) OnUpdate(fn func([]byte, any)) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.updateFns[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.updateFns, id)
		d.mu.Unlock()
	}
}

func (d *MemoryDoc) OnDestroy(fn func()) func() {
	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	d.destroyFns[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.destroyFns, id)
		d.mu.Unlock()
	}
}

func (d *MemoryDoc) Transact(_ any, fn func()) error {
	fn()
	return nil
}

func (d *MemoryDoc) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	fns := snapshotDestroyFns(d.destroyFns)
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// SetClientClock lets tests simulate a remote client having written up to
// seq, without going through ApplyUpdate's byte-log bookkeeping.
func (d *MemoryDoc) SetClientClock(clientID, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock[clientID] = seq
}

// RecordDelete lets tests register a deletion range for a client, used to
// exercise the editor-history delete-set math.
func (d *MemoryDoc) RecordDelete(clientID uint64, r Range) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleteSet[clientID] = append(d.deleteSet[clientID], r)
}

type memSnapshot struct {
	stateVector map[uint64]uint64
	deleteSet   map[uint64][]Range
}

func (s *memSnapshot) StateVector() map[uint64]uint64 { return s.stateVector }
func (s *memSnapshot) DeleteSet() map[uint64][]Range  { return s.deleteSet }

func snapshotFns(m map[int]func([]byte, any)) []func([]byte, any) {
	out := make([]func([]byte, any), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func snapshotDestroyFns(m map[int]func()) []func() {
	out := make([]func(), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
