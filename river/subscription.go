package river

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/maxpert/mongoriver/oplog"
)

const subscriptionBuffer = 64

// Subscription delivers a stream's events over a channel.
type Subscription struct {
	stream *Stream
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	closed atomic.Bool
	err    error
}

// Subscribe starts a stream over src in the background. Events are delivered
// on Events() until the stream ends; the channel is then closed and Err
// reports why. Closing the subscription is not an error.
func Subscribe(ctx context.Context, src oplog.Source, start Start, opts ...Option) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	sub := &Subscription{
		events: make(chan Event, subscriptionBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	stream, err := NewStream(src, SinkFunc(func(ev Event) error {
		select {
		case sub.events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	sub.stream = stream

	go sub.run(ctx, start)
	return sub, nil
}

func (s *Subscription) run(ctx context.Context, start Start) {
	defer close(s.done)
	defer close(s.events)

	err := s.stream.Run(ctx, start)
	if s.closed.Load() && errors.Is(err, context.Canceled) {
		err = nil
	}
	s.err = err
}

// Events returns the event channel. It is closed when the stream ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the stream has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error once Done is closed, nil before that.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Stream exposes the underlying stream for progress reporting.
func (s *Subscription) Stream() *Stream {
	return s.stream
}

// Close stops the stream, waits for it to end and returns its terminal error.
func (s *Subscription) Close() error {
	s.closed.Store(true)
	// unblock a sink waiting on a full channel before Stop waits for the loop
	s.cancel()
	s.stream.Stop()
	<-s.done
	return s.err
}
