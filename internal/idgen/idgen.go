// Package idgen generates the timestamp+counter message ids attached to
// outbound CRDT messages, backed by a Snowflake node so ids are
// monotonic per-process without coordination.
package idgen

import (
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
)

// Generator produces MessageID-shaped values from a single Snowflake node.
type Generator struct {
	node    *snowflake.Node
	counter uint32
}

// New creates a Generator for the given node id (0-1023). Node id collisions
// across processes only risk duplicate timestamps within the same
// millisecond, which is harmless here since ids are used for observability
// (publishedAt) rather than as a uniqueness guarantee.
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: node}, nil
}

// Next returns the next (timestamp, counter) pair. Timestamp is the
// Snowflake id's embedded millisecond time; counter is a per-Generator
// monotonic sequence disambiguating ids minted within the same millisecond.
func (g *Generator) Next() (timestamp int64, counter uint32) {
	id := g.node.Generate()
	return id.Time(), uint32(atomic.AddUint32(&g.counter, 1))
}
