package oplog

import "context"

// Cursor iterates records of a tailable read. Next blocks until a record is
// available, ctx is done, or the underlying read fails; it returns false in
// the latter two cases and Err reports why.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close(ctx context.Context) error
}

// Source is a replicated log that supports point lookups by position and
// tailable reads.
type Source interface {
	// Tailable returns ErrInvalidSourceConfiguration (wrapped) when the
	// source cannot serve blocking tail reads.
	Tailable() error

	// MostRecent returns the record with the greatest natural order among
	// those at or before *before, or the newest record when before is nil.
	// It returns nil, nil for an empty log.
	MostRecent(ctx context.Context, before *Position) (*Record, error)

	// Open starts a tailable read over every record strictly after *after,
	// or from the start of the log when after is nil.
	Open(ctx context.Context, after *Position) (Cursor, error)
}
