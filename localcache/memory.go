package localcache

import (
	"context"
	"sync"

	"github.com/appflowy/collabsync/crdtio"
)

type memEntry struct {
	version string
	state   []byte
}

// MemoryStore is an in-process Store used by tests and by deployments that
// don't need cross-reload persistence.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memEntry
	snapshots map[string]map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]memEntry),
		snapshots: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) Open(_ context.Context, objectID string, opts OpenOptions, factory DocFactory) (crdtio.Doc, error) {
	s.mu.Lock()
	entry, ok := s.entries[objectID]
	s.mu.Unlock()

	if opts.ForceReset || !ok {
		return factory(objectID), nil
	}
	if opts.ExpectedVersion != nil && entry.version != *opts.ExpectedVersion {
		s.mu.Lock()
		delete(s.entries, objectID)
		s.mu.Unlock()
		return factory(objectID), nil
	}

	doc := factory(objectID)
	if len(entry.state) > 0 {
		if err := doc.ApplyUpdate(context.Background(), entry.state); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *MemoryStore) Persist(ctx context.Context, objectID, version string, doc crdtio.Doc) error {
	state, err := doc.EncodeStateAsUpdate(ctx, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[objectID] = memEntry{version: version, state: state}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Evict(_ context.Context, objectID string) error {
	s.mu.Lock()
	delete(s.entries, objectID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// SaveSnapshot, LoadSnapshot, ListSnapshots and DeleteSnapshot make
// MemoryStore satisfy SnapshotStore, exercising the Doc Rebuild Primitive's
// snapshot-recovery path in tests without a Badger dependency.
func (s *MemoryStore) SaveSnapshot(_ context.Context, objectID, version string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshots[objectID] == nil {
		s.snapshots[objectID] = make(map[string][]byte)
	}
	s.snapshots[objectID][version] = data
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, objectID, version string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snapshots[objectID][version]
	if !ok {
		return nil, ErrUnsupported
	}
	return data, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, objectID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.snapshots[objectID]))
	for v := range s.snapshots[objectID] {
		out = append(out, v)
	}
	return out, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, objectID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots[objectID], version)
	return nil
}
