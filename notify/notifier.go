// Package notify wakes readers blocked on an embedded oplog when new records
// are appended.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/maxpert/mongoriver/oplog"
)

// defaultSignalBufferSize is the buffer size for append signal channels.
// A subscriber only needs to learn that something was appended, so a full
// buffer already guarantees a pending wakeup and further signals are dropped.
const defaultSignalBufferSize = 16

// Signal reports that a record was appended.
type Signal struct {
	Database string
	Position oplog.Position
}

// Filter specifies which signals a subscriber wants.
type Filter struct {
	Databases []string // nil or empty = all databases
}

// subscription represents a single subscriber.
type subscription struct {
	id     uint64
	filter Filter
	ch     chan Signal
	closed atomic.Bool
}

// matches checks if the database matches this subscription's filter.
func (s *subscription) matches(database string) bool {
	if len(s.filter.Databases) == 0 {
		return true
	}

	for _, db := range s.filter.Databases {
		if db == database {
			return true
		}
	}
	return false
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub is a thread-safe fan-out of append signals.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
	}
}

// Signal sends an append signal to all matching subscribers (non-blocking).
func (h *Hub) Signal(database string, pos oplog.Position) {
	signal := Signal{
		Database: database,
		Position: pos,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(database) {
			continue
		}

		select {
		case sub.ch <- signal:
		default:
			// Buffer full, a wakeup is already pending
		}
	}
}

// Subscribe creates a new subscription and returns the signal channel and an
// idempotent cancel function that closes it.
func (h *Hub) Subscribe(filter Filter) (<-chan Signal, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan Signal, defaultSignalBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close closes every subscription. Blocked subscribers observe a closed
// channel and must stop waiting.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscriptions
	h.subscriptions = make(map[uint64]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
