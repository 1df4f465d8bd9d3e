package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/mongoriver/encoding"
	"github.com/maxpert/mongoriver/notify"
	"github.com/maxpert/mongoriver/oplog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
)

// Key prefix for Pebble storage
const prefixOplog = "/oplog/" // /oplog/{16-hex-digit position}

// Number of records a cursor pulls from Pebble per scan
const localScanBatch = 128

var (
	// ErrLogClosed is returned by cursors whose log was closed while reading.
	ErrLogClosed = errors.New("local oplog is closed")

	// ErrPositionNotIncreasing is returned when an append would break order.
	ErrPositionNotIncreasing = errors.New("oplog position must increase")
)

// LocalLog is an embedded, Pebble-backed oplog. Entries are keyed by
// position, so natural order and position order coincide. Appends wake
// blocked cursors through a notify.Hub instead of polling.
type LocalLog struct {
	db   *pebble.DB
	path string
	hub  *notify.Hub

	mu      sync.RWMutex // appends and Close write-lock, reads read-lock
	last    oplog.Position
	hasLast bool

	closed atomic.Bool
}

// localEntry is the msgpack envelope stored per record. Documents are kept
// as raw BSON so their field order and types survive the round trip.
type localEntry struct {
	Position  oplog.Position `msgpack:"ts"`
	Namespace string         `msgpack:"ns"`
	Op        string         `msgpack:"op"`
	Object    []byte         `msgpack:"o,omitempty"`
	Object2   []byte         `msgpack:"o2,omitempty"`
}

// OpenLocalLog creates or opens an embedded oplog under dataDir.
func OpenLocalLog(dataDir string) (*LocalLog, error) {
	logPath := filepath.Join(dataDir, "oplog")

	db, err := pebble.Open(logPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open local oplog at %s: %w", logPath, err)
	}

	l := &LocalLog{
		db:   db,
		path: logPath,
		hub:  notify.NewHub(),
	}

	last, err := l.MostRecent(context.Background(), nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load last position: %w", err)
	}
	if last != nil {
		l.last = last.Position
		l.hasLast = true
		log.Info().Str("path", logPath).Stringer("last", last.Position).Msg("Opened local oplog")
	}

	return l, nil
}

// Tailable always succeeds; appends notify waiting cursors.
func (l *LocalLog) Tailable() error { return nil }

// Append writes records atomically. Positions must be strictly increasing,
// both within the batch and relative to the log's last record.
func (l *LocalLog) Append(records ...oplog.Record) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return ErrLogClosed
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	last, hasLast := l.last, l.hasLast
	for _, rec := range records {
		if hasLast && !rec.Position.After(last) {
			return fmt.Errorf("%w: %s after %s", ErrPositionNotIncreasing, rec.Position, last)
		}

		val, err := encodeEntry(rec)
		if err != nil {
			return err
		}
		if err := batch.Set(formatOplogKey(rec.Position), val, nil); err != nil {
			return fmt.Errorf("failed to write oplog entry: %w", err)
		}
		last, hasLast = rec.Position, true
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit oplog batch: %w", err)
	}

	l.last, l.hasLast = last, hasLast

	for _, rec := range records {
		db, _, _ := strings.Cut(rec.Namespace, ".")
		l.hub.Signal(db, rec.Position)
	}

	return nil
}

// MostRecent returns the last record at or before *before.
func (l *LocalLog) MostRecent(ctx context.Context, before *oplog.Position) (*oplog.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	prefix := []byte(prefixOplog)
	upper := prefixUpperBound(prefix)
	if before != nil {
		upper = successor(formatOplogKey(*before))
	}

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, iter.Error()
	}

	val, err := iter.ValueAndErr()
	if err != nil {
		return nil, err
	}
	rec, err := decodeEntry(val)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Open returns a cursor over records strictly after *after.
func (l *LocalLog) Open(ctx context.Context, after *oplog.Position) (oplog.Cursor, error) {
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	// Subscribe before the first scan so no append can slip between them
	signals, cancel := l.hub.Subscribe(notify.Filter{})

	lower := []byte(prefixOplog)
	if after != nil {
		lower = successor(formatOplogKey(*after))
	}

	return &localCursor{
		log:     l,
		lower:   lower,
		signals: signals,
		cancel:  cancel,
	}, nil
}

// TruncateBefore deletes every record strictly before pos. The record at
// pos is kept so a resume from pos can still be resolved.
func (l *LocalLog) TruncateBefore(pos oplog.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return ErrLogClosed
	}

	if err := l.db.DeleteRange([]byte(prefixOplog), formatOplogKey(pos), pebble.Sync); err != nil {
		return fmt.Errorf("failed to truncate oplog before %s: %w", pos, err)
	}
	return nil
}

// Close closes the Pebble database and wakes every blocked cursor.
func (l *LocalLog) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("local oplog already closed")
	}

	l.hub.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Close()
}

// scan reads up to limit records with keys >= lower.
func (l *LocalLog) scan(lower []byte, limit int) ([]oplog.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound([]byte(prefixOplog)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	records := make([]oplog.Record, 0, limit)
	for iter.First(); iter.Valid() && len(records) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}
		rec, err := decodeEntry(val)
		if err != nil {
			return nil, fmt.Errorf("corrupted oplog entry %q: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}

	return records, iter.Error()
}

type localCursor struct {
	log     *LocalLog
	lower   []byte
	buf     []oplog.Record
	rec     oplog.Record
	signals <-chan notify.Signal
	cancel  func()
	err     error
}

func (c *localCursor) Next(ctx context.Context) bool {
	for {
		if len(c.buf) > 0 {
			c.rec = c.buf[0]
			c.buf = c.buf[1:]
			c.lower = successor(formatOplogKey(c.rec.Position))
			return true
		}
		if c.err != nil {
			return false
		}
		if err := ctx.Err(); err != nil {
			c.err = err
			return false
		}

		records, err := c.log.scan(c.lower, localScanBatch)
		if err != nil {
			c.err = err
			return false
		}
		if len(records) > 0 {
			c.buf = records
			continue
		}

		select {
		case <-ctx.Done():
			c.err = ctx.Err()
			return false
		case _, ok := <-c.signals:
			if !ok {
				c.err = ErrLogClosed
				return false
			}
		}
	}
}

func (c *localCursor) Record() oplog.Record { return c.rec }

func (c *localCursor) Err() error { return c.err }

func (c *localCursor) Close(ctx context.Context) error {
	c.cancel()
	return nil
}

func encodeEntry(rec oplog.Record) ([]byte, error) {
	entry := localEntry{
		Position:  rec.Position,
		Namespace: rec.Namespace,
		Op:        string(rec.Op),
	}

	var err error
	if rec.Object != nil {
		if entry.Object, err = bson.Marshal(rec.Object); err != nil {
			return nil, fmt.Errorf("failed to encode o: %w", err)
		}
	}
	if rec.Object2 != nil {
		if entry.Object2, err = bson.Marshal(rec.Object2); err != nil {
			return nil, fmt.Errorf("failed to encode o2: %w", err)
		}
	}

	val, err := encoding.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oplog entry: %w", err)
	}
	return val, nil
}

func decodeEntry(val []byte) (oplog.Record, error) {
	var entry localEntry
	if err := encoding.Unmarshal(val, &entry); err != nil {
		return oplog.Record{}, err
	}

	rec := oplog.Record{
		Position:  entry.Position,
		Namespace: entry.Namespace,
		Op:        oplog.OpKind(entry.Op),
	}
	if len(entry.Object) > 0 {
		if err := bson.Unmarshal(entry.Object, &rec.Object); err != nil {
			return oplog.Record{}, fmt.Errorf("failed to decode o: %w", err)
		}
	}
	if len(entry.Object2) > 0 {
		if err := bson.Unmarshal(entry.Object2, &rec.Object2); err != nil {
			return oplog.Record{}, fmt.Errorf("failed to decode o2: %w", err)
		}
	}
	return rec, nil
}

// formatOplogKey formats a position as a fixed-width hex key
func formatOplogKey(p oplog.Position) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixOplog, p.Uint64()))
}

// successor returns the smallest key sorting after key.
func successor(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

// prefixUpperBound returns the upper bound for a prefix scan
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil // Prefix is all 0xff
}

// Compile-time interface verification
var (
	_ oplog.Source = (*LocalLog)(nil)
	_ oplog.Source = (*MongoSource)(nil)
)
