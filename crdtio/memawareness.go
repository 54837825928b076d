package crdtio

import "sync"

// MemoryAwareness is a minimal in-memory Awareness used alongside MemoryDoc.
type MemoryAwareness struct {
	mu       sync.Mutex
	clientID uint64
	state    map[string]any
}

// NewMemoryAwareness creates an awareness channel for the given client id.
func NewMemoryAwareness(clientID uint64) *MemoryAwareness {
	return &MemoryAwareness{clientID: clientID, state: make(map[string]any)}
}

func (a *MemoryAwareness) ClientID() uint64 { return a.clientID }

func (a *MemoryAwareness) SetLocalState(state map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
}

func (a *MemoryAwareness) Destroy() {}
