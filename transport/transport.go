// Package transport defines the two inbound/outbound channels the sync
// engine dispatches through: the server-duplex (one tab per workspace) and
// the local fan-out (every sibling tab), plus in-memory and Redis-backed
// implementations.
package transport

import (
	"context"
	"encoding/json"
)

// Message is the wire shape of a CollabMessage. The engine owns
// translating this into its internal IncomingMessage; this package never
// looks past the envelope fields.
type Message struct {
	ObjectID    string           `json:"objectId"`
	CollabType  int              `json:"collabType"`
	Update      *UpdateWire      `json:"update,omitempty"`
	SyncRequest *SyncRequestWire `json:"syncRequest,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
}

// UpdateWire is the body of an inbound "update" message.
type UpdateWire struct {
	Version   *string        `json:"version,omitempty"`
	MessageID *MessageIDWire `json:"messageId,omitempty"`
	Update    []byte         `json:"update,omitempty"`
}

// MessageIDWire is the timestamp+counter pair on outbound/inbound updates.
type MessageIDWire struct {
	Timestamp int64  `json:"timestamp"`
	Counter   uint32 `json:"counter"`
}

// SyncRequestWire is the body of an inbound "syncRequest" message.
type SyncRequestWire struct {
	Version *string `json:"version,omitempty"`
}

// Transport is one inbound/outbound channel the dispatcher watches. Two
// transports (server-duplex, local fan-out) feed the same dispatcher loop.
type Transport interface {
	// Publish sends a message to the peers reachable over this transport.
	// MemoryTransport skips the publisher itself; RedisTransport does not
	// (see its Publish).
	Publish(ctx context.Context, msg Message) error

	// Messages returns the channel of inbound messages. The same *Message
	// value is never sent twice on one transport's channel; the dispatcher
	// does not deduplicate across the two transports it watches.
	Messages() <-chan *Message

	// Close stops delivering and releases transport resources. Idempotent.
	Close() error
}
