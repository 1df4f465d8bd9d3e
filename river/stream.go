package river

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/tailer"
	"github.com/maxpert/mongoriver/telemetry"
	"github.com/rs/zerolog/log"
)

// Option configures a Stream.
type Option func(*Stream)

// WithLimit makes Run return after n records have been handled. n <= 0
// means no limit.
func WithLimit(n int) Option {
	return func(s *Stream) {
		s.limit = n
	}
}

// Stream pipes one oplog source into one sink.
type Stream struct {
	tailer     *tailer.Tailer
	resolver   *tailer.Resolver
	translator Translator
	sink       Sink
	limit      int

	optime    atomic.Uint64
	hasOptime atomic.Bool
	events    atomic.Uint64
}

// NewStream creates a stream. It fails with oplog.ErrInvalidSourceConfiguration
// when src cannot be tailed.
func NewStream(src oplog.Source, sink Sink, opts ...Option) (*Stream, error) {
	if sink == nil {
		return nil, errors.New("event sink is required")
	}

	t, err := tailer.New(src)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		tailer:   t,
		resolver: tailer.NewResolver(src),
		sink:     sink,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run resolves start, tails the log and emits events until Stop is called,
// the record limit is reached, ctx is cancelled or an error occurs. Stop and
// the limit return nil. The read handle is always released on return, so Run
// may be called again; use FromPosition(LastOptime) to continue.
func (s *Stream) Run(ctx context.Context, start Start) error {
	from, err := start.resolve(ctx, s.resolver)
	if err != nil {
		return fmt.Errorf("failed to resolve start %s: %w", start, err)
	}

	if err := s.tailer.Tail(ctx, from); err != nil {
		return err
	}
	defer func() {
		if cerr := s.tailer.Close(context.Background()); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close oplog cursor")
		}
	}()

	log.Info().
		Stringer("start", start).
		Int("limit", s.limit).
		Msg("Oplog stream running")

	err = s.tailer.Stream(ctx, s.handle, s.limit)
	if errors.Is(err, tailer.ErrNotTailing) {
		// Stop closed the session between Tail and Stream
		err = nil
	}

	evt := log.Info()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	if pos, ok := s.LastOptime(); ok {
		evt = evt.Stringer("optime", pos)
	}
	evt.Uint64("events", s.events.Load()).Msg("Oplog stream stopped")

	return err
}

// Stop makes a running Run return nil and waits for it to release the read
// handle, so the same Stream can be run again. It is safe to call from any
// goroutine other than the sink's and more than once.
func (s *Stream) Stop() {
	if err := s.tailer.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to close oplog cursor")
	}
}

// State returns the tail session state.
func (s *Stream) State() tailer.State {
	return s.tailer.State()
}

// Records returns the number of raw records handled so far.
func (s *Stream) Records() uint64 {
	return s.tailer.Records()
}

// Events returns the number of events emitted so far, optime updates included.
func (s *Stream) Events() uint64 {
	return s.events.Load()
}

// LastOptime returns the position of the last OptimeUpdate emitted.
func (s *Stream) LastOptime() (oplog.Position, bool) {
	if !s.hasOptime.Load() {
		return oplog.Position{}, false
	}
	return oplog.PositionFromUint64(s.optime.Load()), true
}

// LastOptimeTime implements telemetry.ProgressProvider.
func (s *Stream) LastOptimeTime() (time.Time, bool) {
	pos, ok := s.LastOptime()
	if !ok {
		return time.Time{}, false
	}
	return pos.Time(), true
}

func (s *Stream) handle(rec oplog.Record) error {
	return s.translator.Handle(rec, s.emit)
}

func (s *Stream) emit(ev Event) error {
	if err := s.sink.Emit(ev); err != nil {
		return fmt.Errorf("sink rejected %s event: %w", ev.Kind(), err)
	}

	s.events.Add(1)
	telemetry.EventsTotal.With(string(ev.Kind())).Inc()

	if u, ok := ev.(OptimeUpdate); ok {
		s.optime.Store(u.Position.Uint64())
		s.hasOptime.Store(true)
		telemetry.OptimeSeconds.Set(float64(u.Position.T))
		telemetry.OptimeOrdinal.Set(float64(u.Position.I))
		telemetry.RecordLagSeconds.Observe(time.Since(u.Position.Time()).Seconds())
	}
	return nil
}
