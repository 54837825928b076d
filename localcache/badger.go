package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/appflowy/collabsync/crdtio"
)

// BadgerStore persists cached document state to disk via BadgerDB, with a
// background value-log GC loop keeping the store compact.
type BadgerStore struct {
	db *badger.DB
}

type badgerRecord struct {
	Version string `json:"version"`
	State   []byte `json:"state"`
}

// NewBadgerStore opens (creating if absent) a BadgerDB at dbPath.
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localcache: open badger: %w", err)
	}

	go runValueLogGC(db)

	return &BadgerStore{db: db}, nil
}

func runValueLogGC(db *badger.DB) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		for db.RunValueLogGC(0.5) == nil {
		}
	}
}

func docKey(objectID string) []byte { return []byte("doc:" + objectID) }

func snapshotKey(objectID, version string) []byte {
	return []byte("snap:" + objectID + ":" + version)
}

func (s *BadgerStore) Open(_ context.Context, objectID string, opts OpenOptions, factory DocFactory) (crdtio.Doc, error) {
	var rec badgerRecord
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(objectID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("localcache: badger get: %w", err)
	}

	if opts.ForceReset || !found {
		return factory(objectID), nil
	}
	if opts.ExpectedVersion != nil && rec.Version != *opts.ExpectedVersion {
		_ = s.Evict(context.Background(), objectID)
		return factory(objectID), nil
	}

	doc := factory(objectID)
	if len(rec.State) > 0 {
		if err := doc.ApplyUpdate(context.Background(), rec.State); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *BadgerStore) Persist(ctx context.Context, objectID, version string, doc crdtio.Doc) error {
	state, err := doc.EncodeStateAsUpdate(ctx, nil)
	if err != nil {
		return err
	}
	value, err := json.Marshal(badgerRecord{Version: version, State: state})
	if err != nil {
		return fmt.Errorf("localcache: marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(docKey(objectID), value).WithTTL(entryTTL)
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) Evict(_ context.Context, objectID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(objectID))
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }

// SaveSnapshot, LoadSnapshot, ListSnapshots and DeleteSnapshot make
// BadgerStore satisfy SnapshotStore.
func (s *BadgerStore) SaveSnapshot(_ context.Context, objectID, version string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(snapshotKey(objectID, version), data).WithTTL(entryTTL))
	})
}

func (s *BadgerStore) LoadSnapshot(_ context.Context, objectID, version string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(objectID, version))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append(out, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, fmt.Errorf("localcache: badger get snapshot: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) ListSnapshots(_ context.Context, objectID string) ([]string, error) {
	prefix := []byte("snap:" + objectID + ":")
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			out = append(out, key[len(prefix):])
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) DeleteSnapshot(_ context.Context, objectID, version string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(objectID, version))
	})
}
