package tailer

import (
	"context"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/rs/zerolog/log"
)

// Resolver finds the record a tail should resume after. It is stateless and
// safe to use concurrently with an active Tailer.
type Resolver struct {
	src oplog.Source
}

// NewResolver creates a resolver over src.
func NewResolver(src oplog.Source) *Resolver {
	return &Resolver{src: src}
}

// ByTimestamp returns the newest record at or before *pos, or the newest
// record overall when pos is nil. It returns nil for an empty log.
func (r *Resolver) ByTimestamp(ctx context.Context, pos *oplog.Position) (*oplog.Record, error) {
	rec, err := r.src.MostRecent(ctx, pos)
	if err != nil {
		return nil, err
	}

	evt := log.Debug()
	if pos != nil {
		evt = evt.Stringer("before", *pos)
	}
	if rec != nil {
		evt = evt.Stringer("resolved", rec.Position)
	}
	evt.Msg("Resolved oplog position")

	return rec, nil
}

// ByDate resolves the newest record at or before the second containing t.
func (r *Resolver) ByDate(ctx context.Context, t time.Time) (*oplog.Record, error) {
	pos := oplog.PositionFromTime(t)
	return r.ByTimestamp(ctx, &pos)
}

// MostRecent resolves the newest record in the log.
func (r *Resolver) MostRecent(ctx context.Context) (*oplog.Record, error) {
	return r.ByTimestamp(ctx, nil)
}
