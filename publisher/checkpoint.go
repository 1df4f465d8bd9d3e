package publisher

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/telemetry"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble storage
const (
	prefixCheckpoint = "/checkpoint/" // /checkpoint/{name} -> uint64 position
)

// CheckpointStore persists the last published optime per checkpoint name.
// Commits never move a checkpoint backwards.
type CheckpointStore struct {
	db   *pebble.DB
	path string

	// In-memory checkpoint map for fast lookups
	checkpoints map[string]oplog.Position
	mu          sync.RWMutex

	closed atomic.Bool
}

// NewCheckpointStore creates or opens a Pebble-backed checkpoint store under
// dataDir/checkpoints
func NewCheckpointStore(dataDir string) (*CheckpointStore, error) {
	storePath := filepath.Join(dataDir, "checkpoints")

	db, err := pebble.Open(storePath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store at %s: %w", storePath, err)
	}

	cs := &CheckpointStore{
		db:          db,
		path:        storePath,
		checkpoints: make(map[string]oplog.Position),
	}

	if err := cs.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	return cs, nil
}

// load loads all checkpoints from Pebble into the in-memory map
func (cs *CheckpointStore) load() error {
	prefix := []byte(prefixCheckpoint)
	iter, err := cs.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(prefix):])
		val := iter.Value()
		if len(val) != 8 {
			return fmt.Errorf("corrupted checkpoint %s: invalid length %d", name, len(val))
		}
		cs.checkpoints[name] = oplog.PositionFromUint64(binary.LittleEndian.Uint64(val))
	}

	if len(cs.checkpoints) > 0 {
		log.Info().Int("checkpoints", len(cs.checkpoints)).Msg("Loaded checkpoints")
	}

	return iter.Error()
}

// Get returns the stored position for name
func (cs *CheckpointStore) Get(name string) (oplog.Position, bool, error) {
	if cs.closed.Load() {
		return oplog.Position{}, false, fmt.Errorf("checkpoint store is closed")
	}

	cs.mu.RLock()
	defer cs.mu.RUnlock()

	pos, ok := cs.checkpoints[name]
	return pos, ok, nil
}

// Commit stores pos under name unless the stored position is already at or
// past pos. It reports whether the checkpoint moved.
func (cs *CheckpointStore) Commit(name string, pos oplog.Position) (bool, error) {
	if cs.closed.Load() {
		return false, fmt.Errorf("checkpoint store is closed")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if current, ok := cs.checkpoints[name]; ok && !pos.After(current) {
		telemetry.CheckpointWritesTotal.With("stale").Inc()
		return false, nil
	}

	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, pos.Uint64())

	if err := cs.db.Set([]byte(prefixCheckpoint+name), val, pebble.Sync); err != nil {
		telemetry.CheckpointWritesTotal.With("failed").Inc()
		return false, fmt.Errorf("failed to commit checkpoint %s: %w", name, err)
	}

	cs.checkpoints[name] = pos
	telemetry.CheckpointWritesTotal.With("success").Inc()
	return true, nil
}

// Delete removes a checkpoint
func (cs *CheckpointStore) Delete(name string) error {
	if cs.closed.Load() {
		return fmt.Errorf("checkpoint store is closed")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.db.Delete([]byte(prefixCheckpoint+name), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", name, err)
	}
	delete(cs.checkpoints, name)
	return nil
}

// Names returns all checkpoint names in sorted order
func (cs *CheckpointStore) Names() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.checkpoints))
	for name := range cs.checkpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Minimum returns the lowest stored position across all checkpoints, the
// point below which no consumer needs the log anymore.
func (cs *CheckpointStore) Minimum() (oplog.Position, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	var minPos oplog.Position
	found := false
	for _, pos := range cs.checkpoints {
		if !found || pos.Before(minPos) {
			minPos = pos
			found = true
		}
	}
	return minPos, found
}

// Close closes the Pebble database
func (cs *CheckpointStore) Close() error {
	if !cs.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("checkpoint store already closed")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.db.Close()
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
