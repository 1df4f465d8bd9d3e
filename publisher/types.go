package publisher

import (
	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/river"
)

// Message is one content event ready for transformation. Position is the
// optime of the oplog record that produced the event.
type Message struct {
	Event    river.Event
	Position oplog.Position
	NodeID   uint64
}

// Sink represents a destination for change events (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends an event to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer converts change events to sink-specific formats
type Transformer interface {
	// Transform converts a message to bytes for publishing
	Transform(msg Message) ([]byte, error)
	// Tombstone creates a tombstone/delete marker for the given key
	Tombstone(key string) []byte
}

// Filter determines whether an event should be published
type Filter interface {
	// Match returns true if the event should be published. collection is
	// empty for database-level events.
	Match(database, collection string) bool
}
