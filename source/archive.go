package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxpert/mongoriver/oplog"
)

// ArchivingSource copies every record read through its cursors into a
// LocalLog, so a later run can replay the archive with source type "local".
// Records the archive already holds are skipped.
type ArchivingSource struct {
	src     oplog.Source
	archive *LocalLog
}

// NewArchivingSource wraps src
func NewArchivingSource(src oplog.Source, archive *LocalLog) *ArchivingSource {
	return &ArchivingSource{src: src, archive: archive}
}

// Tailable delegates to the wrapped source
func (a *ArchivingSource) Tailable() error { return a.src.Tailable() }

// MostRecent delegates to the wrapped source
func (a *ArchivingSource) MostRecent(ctx context.Context, before *oplog.Position) (*oplog.Record, error) {
	return a.src.MostRecent(ctx, before)
}

// Open opens the wrapped source and archives what the cursor yields
func (a *ArchivingSource) Open(ctx context.Context, after *oplog.Position) (oplog.Cursor, error) {
	cur, err := a.src.Open(ctx, after)
	if err != nil {
		return nil, err
	}
	return &archivingCursor{Cursor: cur, archive: a.archive}, nil
}

type archivingCursor struct {
	oplog.Cursor
	archive *LocalLog
	err     error
}

func (c *archivingCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.Cursor.Next(ctx) {
		return false
	}

	rec := c.Cursor.Record()
	if err := c.archive.Append(rec); err != nil && !errors.Is(err, ErrPositionNotIncreasing) {
		c.err = fmt.Errorf("failed to archive %s: %w", rec.Position, err)
		return false
	}
	return true
}

func (c *archivingCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.Cursor.Err()
}

var _ oplog.Source = (*ArchivingSource)(nil)
