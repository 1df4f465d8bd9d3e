package river

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/tailer"
)

type startKind int

const (
	startBeginning startKind = iota
	startMostRecent
	startPosition
	startDate
	startRecord
)

// Start selects where a Stream begins reading. The zero value reads from
// the beginning of the log.
type Start struct {
	kind startKind
	pos  *oplog.Position
	date time.Time
	rec  *oplog.Record
}

// FromBeginning reads every record in the log.
func FromBeginning() Start { return Start{kind: startBeginning} }

// MostRecent skips everything already in the log. An empty log is read from
// the beginning.
func MostRecent() Start { return Start{kind: startMostRecent} }

// FromPosition resumes after the newest record at or before pos. A nil pos
// behaves like MostRecent.
func FromPosition(pos *oplog.Position) Start {
	if pos == nil {
		return MostRecent()
	}
	p := *pos
	return Start{kind: startPosition, pos: &p}
}

// FromDate resumes after the newest record at or before the second holding t.
func FromDate(t time.Time) Start { return Start{kind: startDate, date: t} }

// FromRecord resumes strictly after rec. A nil rec reads from the beginning.
func FromRecord(rec *oplog.Record) Start {
	if rec == nil {
		return FromBeginning()
	}
	r := *rec
	return Start{kind: startRecord, rec: &r}
}

func (s Start) String() string {
	switch s.kind {
	case startMostRecent:
		return "most_recent"
	case startPosition:
		return fmt.Sprintf("position(%s)", s.pos)
	case startDate:
		return fmt.Sprintf("date(%s)", s.date.UTC().Format(time.RFC3339))
	case startRecord:
		return fmt.Sprintf("record(%s)", s.rec.Position)
	default:
		return "beginning"
	}
}

// resolve returns the record to tail after, or nil to read from the start.
func (s Start) resolve(ctx context.Context, r *tailer.Resolver) (*oplog.Record, error) {
	switch s.kind {
	case startMostRecent:
		return r.MostRecent(ctx)
	case startPosition:
		return r.ByTimestamp(ctx, s.pos)
	case startDate:
		return r.ByDate(ctx, s.date)
	case startRecord:
		return s.rec, nil
	default:
		return nil, nil
	}
}
