package publisher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/river"
)

func init() {
	// Register test doubles here; the real sink and transformer packages
	// import publisher and would create an import cycle
	RegisterSink("test", func(config cfg.SinkConfiguration) (Sink, error) {
		s := &recordingSink{}
		createdMu.Lock()
		created = append(created, s)
		createdMu.Unlock()
		return s, nil
	})
	RegisterSink("broken", func(config cfg.SinkConfiguration) (Sink, error) {
		return nil, errors.New("cannot connect")
	})
	RegisterTransformer("kind", func() Transformer {
		return kindTransformer{}
	})
}

var (
	createdMu sync.Mutex
	created   []*recordingSink
)

func lastCreated() *recordingSink {
	createdMu.Lock()
	defer createdMu.Unlock()
	return created[len(created)-1]
}

type sentMessage struct {
	Topic string
	Key   string
	Value []byte
}

type recordingSink struct {
	mu         sync.Mutex
	messages   []sentMessage
	publishErr error
	closed     bool
}

func (s *recordingSink) Publish(topic, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	s.messages = append(s.messages, sentMessage{Topic: topic, Key: key, Value: value})
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.messages...)
}

// kindTransformer encodes "<kind>@<position>"
type kindTransformer struct{}

func (kindTransformer) Transform(msg Message) ([]byte, error) {
	return []byte(fmt.Sprintf("%s@%s", msg.Event.Kind(), msg.Position)), nil
}

func (kindTransformer) Tombstone(key string) []byte { return nil }

type failingTransformer struct{}

func (failingTransformer) Transform(msg Message) ([]byte, error) {
	return nil, errors.New("cannot encode")
}

func (failingTransformer) Tombstone(key string) []byte { return nil }

var _ river.Sink = (*Outlet)(nil)
