package tailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/telemetry"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle state of a Tailer.
type State int32

const (
	StateIdle State = iota
	StatePositioning
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePositioning:
		return "positioning"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyTailing is returned by Tail when a cursor is already bound.
	ErrAlreadyTailing = errors.New("already tailing the oplog")

	// ErrNotTailing is returned by Stream when no cursor is bound.
	ErrNotTailing = errors.New("tail session has no open cursor")

	// ErrStreamRunning is returned by Stream when another Stream call is active.
	ErrStreamRunning = errors.New("stream already running")
)

// Handler processes one record. Returning an error aborts the stream.
type Handler func(oplog.Record) error

// Tailer owns one tailable cursor over an oplog.Source.
type Tailer struct {
	src oplog.Source

	state   atomic.Int32
	stopped atomic.Bool
	cancel  atomic.Pointer[context.CancelFunc]
	records atomic.Uint64

	mu     sync.Mutex // guards cursor
	cursor oplog.Cursor

	loopMu sync.Mutex // held while Stream runs
}

// New creates a Tailer. It fails fast when src cannot serve tailable reads.
func New(src oplog.Source) (*Tailer, error) {
	if src == nil {
		return nil, fmt.Errorf("oplog source is required")
	}
	if err := src.Tailable(); err != nil {
		return nil, err
	}
	return &Tailer{src: src}, nil
}

// State returns the current lifecycle state.
func (t *Tailer) State() State {
	return State(t.state.Load())
}

// Records returns the number of records handed to handlers by this session.
func (t *Tailer) Records() uint64 {
	return t.records.Load()
}

func (t *Tailer) setState(s State) {
	t.state.Store(int32(s))
	telemetry.TailState.Set(float64(s))
}

// Tail opens a cursor positioned strictly after from, or at the start of the
// log when from is nil.
func (t *Tailer) Tail(ctx context.Context, from *oplog.Record) error {
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StatePositioning)) {
		return ErrAlreadyTailing
	}
	telemetry.TailState.Set(float64(StatePositioning))

	var after *oplog.Position
	if from != nil {
		pos := from.Position
		after = &pos
	}

	cur, err := t.src.Open(ctx, after)
	if err != nil {
		t.setState(StateIdle)
		return fmt.Errorf("failed to open oplog tail: %w", err)
	}

	t.mu.Lock()
	t.cursor = cur
	t.mu.Unlock()

	t.setState(StateStreaming)

	evt := log.Info()
	if after != nil {
		evt = evt.Stringer("after", *after)
	} else {
		evt = evt.Bool("from_start", true)
	}
	evt.Msg("Tailing oplog")

	return nil
}

// Stream reads records in log order and passes each to handle before
// reading the next. It returns nil when Stop is called or when limit records
// (limit > 0) have been handled, ctx.Err() when ctx is cancelled, and a
// wrapped error when the cursor fails or handle returns an error. Stop and
// errors leave the session Stopped; reaching the limit keeps it Streaming so
// another Stream call continues where this one left off.
func (t *Tailer) Stream(ctx context.Context, handle Handler, limit int) error {
	if !t.loopMu.TryLock() {
		return ErrStreamRunning
	}
	defer t.loopMu.Unlock()

	if t.State() != StateStreaming {
		return ErrNotTailing
	}

	t.mu.Lock()
	cur := t.cursor
	t.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.cancel.Store(&cancel)
	defer t.cancel.Store(nil)

	// Stop may have run before cancel was published
	if t.stopped.Load() {
		cancel()
	}

	limitReached := false
	defer func() {
		if !limitReached {
			t.setState(StateStopped)
		}
	}()

	handled := 0
	for !t.stopped.Load() {
		if !cur.Next(streamCtx) {
			if t.stopped.Load() {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			telemetry.StreamErrorsTotal.With("read").Inc()
			cause := cur.Err()
			if cause == nil {
				// a tailable cursor only ends on error
				cause = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("oplog stream failed: %w", cause)
		}

		if err := handle(cur.Record()); err != nil {
			telemetry.StreamErrorsTotal.With("handler").Inc()
			return err
		}
		t.records.Add(1)

		handled++
		if limit > 0 && handled >= limit {
			limitReached = true
			return nil
		}
	}

	return nil
}

// Stop asks a running Stream to return and interrupts a blocked read. It is
// idempotent and safe to call from any goroutine. The cursor stays open until
// Close.
func (t *Tailer) Stop() {
	t.stopped.Store(true)
	if c := t.cancel.Load(); c != nil {
		(*c)()
	}
}

// Close stops any running Stream, waits for it to return, closes the cursor
// and resets the session to Idle so Tail may be called again.
func (t *Tailer) Close(ctx context.Context) error {
	t.Stop()

	t.loopMu.Lock()
	defer t.loopMu.Unlock()

	t.mu.Lock()
	cur := t.cursor
	t.cursor = nil
	t.mu.Unlock()

	var err error
	if cur != nil {
		err = cur.Close(ctx)
	}

	t.stopped.Store(false)
	t.setState(StateIdle)

	return err
}
