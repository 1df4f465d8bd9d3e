package oplog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Position is a logical oplog timestamp: seconds since epoch and an ordinal
// within that second.
type Position struct {
	T uint32 `msgpack:"t" json:"t"`
	I uint32 `msgpack:"i" json:"i"`
}

// PositionFromTime converts a wall-clock time to a Position with ordinal 0.
// Times before the epoch clamp to zero.
func PositionFromTime(t time.Time) Position {
	secs := t.Unix()
	if secs < 0 {
		secs = 0
	}
	if secs > int64(^uint32(0)) {
		secs = int64(^uint32(0))
	}
	return Position{T: uint32(secs)}
}

// ParsePosition parses the "<seconds>:<ordinal>" form produced by String.
// A bare "<seconds>" is accepted and yields ordinal 0.
func ParsePosition(s string) (Position, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Position{}, fmt.Errorf("empty position")
	}

	secPart, ordPart, hasOrd := strings.Cut(s, ":")
	t, err := strconv.ParseUint(secPart, 10, 32)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position seconds %q: %w", secPart, err)
	}

	var i uint64
	if hasOrd {
		i, err = strconv.ParseUint(ordPart, 10, 32)
		if err != nil {
			return Position{}, fmt.Errorf("invalid position ordinal %q: %w", ordPart, err)
		}
	}

	return Position{T: uint32(t), I: uint32(i)}, nil
}

// Compare returns -1, 0 or +1 comparing seconds first, then ordinal.
func (p Position) Compare(o Position) int {
	switch {
	case p.T < o.T:
		return -1
	case p.T > o.T:
		return 1
	case p.I < o.I:
		return -1
	case p.I > o.I:
		return 1
	}
	return 0
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool { return p.Compare(o) < 0 }

// After reports whether p sorts strictly after o.
func (p Position) After(o Position) bool { return p.Compare(o) > 0 }

// IsZero reports whether p is the zero position.
func (p Position) IsZero() bool { return p.T == 0 && p.I == 0 }

// Time returns the wall-clock second of the position.
func (p Position) Time() time.Time { return time.Unix(int64(p.T), 0).UTC() }

// Uint64 packs the position so that numeric order equals position order.
func (p Position) Uint64() uint64 { return uint64(p.T)<<32 | uint64(p.I) }

// PositionFromUint64 reverses Uint64.
func PositionFromUint64(v uint64) Position {
	return Position{T: uint32(v >> 32), I: uint32(v)}
}

func (p Position) String() string {
	return strconv.FormatUint(uint64(p.T), 10) + ":" + strconv.FormatUint(uint64(p.I), 10)
}
