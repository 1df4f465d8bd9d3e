package sink

import (
	"sync"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/publisher"
)

func init() {
	publisher.RegisterSink("mock", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		return &MockSink{}, nil
	})
}

// MockSink records published messages in memory
type MockSink struct {
	Messages   []MockMessage
	PublishErr error
	closed     bool
	mu         sync.Mutex
}

// MockMessage represents a published message for testing
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

// Publish records a message for later inspection in tests
func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}

	m.Messages = append(m.Messages, MockMessage{
		Topic: topic,
		Key:   key,
		Value: value,
	})

	return nil
}

// Sent returns a copy of the recorded messages
func (m *MockSink) Sent() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.Messages...)
}

// Close marks the sink closed
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears all recorded messages
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
}
