// Package source provides oplog.Source implementations: a MongoDB replica
// set oplog read with tailable-await cursors, and an embedded Pebble-backed
// oplog used for replay and tests.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultOplogDatabase   = "local"
	DefaultOplogCollection = "oplog.rs"
	DefaultReadPreference  = "secondary"
	DefaultMaxAwait        = time.Second
	DefaultConnectTimeout  = 10 * time.Second
)

var errCursorDead = errors.New("tailable cursor closed by server")

// MongoConfig holds configuration for MongoSource
type MongoConfig struct {
	URI            string        // Connection string; must name a replica set
	Database       string        // Oplog database (default: local)
	Collection     string        // Oplog collection (default: oplog.rs)
	ReadPreference string        // Read preference mode (default: secondary)
	MaxAwait       time.Duration // Server-side wait per getMore on the tail
	ConnectTimeout time.Duration // Timeout for the initial ping
}

// DefaultMongoConfig returns a MongoConfig with sensible defaults
func DefaultMongoConfig(uri string) MongoConfig {
	return MongoConfig{
		URI:            uri,
		Database:       DefaultOplogDatabase,
		Collection:     DefaultOplogCollection,
		ReadPreference: DefaultReadPreference,
		MaxAwait:       DefaultMaxAwait,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// MongoSource reads the oplog collection of a replica set member.
type MongoSource struct {
	client     *mongo.Client
	coll       *mongo.Collection
	replicaSet string
	maxAwait   time.Duration
	ownsClient bool
}

// oplogEntry is the on-disk shape of a legacy oplog document.
type oplogEntry struct {
	Timestamp primitive.Timestamp `bson:"ts"`
	Namespace string              `bson:"ns"`
	Operation string              `bson:"op"`
	Object    bson.D              `bson:"o"`
	Object2   bson.D              `bson:"o2,omitempty"`
}

func (e oplogEntry) record() oplog.Record {
	return oplog.Record{
		Position:  fromTimestamp(e.Timestamp),
		Namespace: e.Namespace,
		Op:        oplog.OpKind(e.Operation),
		Object:    e.Object,
		Object2:   e.Object2,
	}
}

// NewMongoSource connects to MongoDB and returns a source over its oplog.
// It fails fast with oplog.ErrInvalidSourceConfiguration when the URI does
// not name a replica set, since standalone servers keep no oplog.
func NewMongoSource(ctx context.Context, config MongoConfig) (*MongoSource, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("%w: mongo source requires a uri", oplog.ErrInvalidSourceConfiguration)
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	if err := clientOpts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongo uri: %w", err)
	}

	replicaSet := ""
	if clientOpts.ReplicaSet != nil {
		replicaSet = *clientOpts.ReplicaSet
	}
	if replicaSet == "" {
		return nil, fmt.Errorf("%w: mongo client is not configured as a replica set", oplog.ErrInvalidSourceConfiguration)
	}

	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach mongo: %w", err)
	}

	src, err := NewMongoSourceFromClient(client, replicaSet, config)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	src.ownsClient = true

	log.Info().
		Str("replica_set", replicaSet).
		Str("collection", config.Database+"."+config.Collection).
		Str("read_preference", config.ReadPreference).
		Msg("Connected to oplog source")

	return src, nil
}

// NewMongoSourceFromClient wraps an existing client. The caller keeps
// ownership of the client.
func NewMongoSourceFromClient(client *mongo.Client, replicaSet string, config MongoConfig) (*MongoSource, error) {
	if client == nil {
		return nil, fmt.Errorf("mongo client is required")
	}
	if config.Database == "" {
		config.Database = DefaultOplogDatabase
	}
	if config.Collection == "" {
		config.Collection = DefaultOplogCollection
	}
	if config.ReadPreference == "" {
		config.ReadPreference = DefaultReadPreference
	}

	rp, err := parseReadPreference(config.ReadPreference)
	if err != nil {
		return nil, err
	}

	coll := client.Database(config.Database).
		Collection(config.Collection, options.Collection().SetReadPreference(rp))

	return &MongoSource{
		client:     client,
		coll:       coll,
		replicaSet: replicaSet,
		maxAwait:   config.MaxAwait,
	}, nil
}

func parseReadPreference(mode string) (*readpref.ReadPref, error) {
	m, err := readpref.ModeFromString(mode)
	if err != nil {
		return nil, fmt.Errorf("invalid read preference %q: %w", mode, err)
	}
	rp, err := readpref.New(m)
	if err != nil {
		return nil, fmt.Errorf("invalid read preference %q: %w", mode, err)
	}
	return rp, nil
}

// Tailable reports whether the client is bound to a replica set.
func (s *MongoSource) Tailable() error {
	if s.replicaSet == "" {
		return fmt.Errorf("%w: mongo client is not configured as a replica set", oplog.ErrInvalidSourceConfiguration)
	}
	return nil
}

// MostRecent returns the newest oplog entry at or before *before in natural order.
func (s *MongoSource) MostRecent(ctx context.Context, before *oplog.Position) (*oplog.Record, error) {
	filter := bson.D{}
	if before != nil {
		filter = bson.D{{Key: "ts", Value: bson.D{{Key: "$lte", Value: toTimestamp(*before)}}}}
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "$natural", Value: -1}})

	var entry oplogEntry
	err := s.coll.FindOne(ctx, filter, opts).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query most recent oplog entry: %w", err)
	}

	rec := entry.record()
	return &rec, nil
}

// Open starts a tailable-await cursor over entries strictly after *after.
func (s *MongoSource) Open(ctx context.Context, after *oplog.Position) (oplog.Cursor, error) {
	filter := bson.D{}
	if after != nil {
		filter = bson.D{{Key: "ts", Value: bson.D{{Key: "$gt", Value: toTimestamp(*after)}}}}
	}

	opts := options.Find().
		SetCursorType(options.TailableAwait).
		SetNoCursorTimeout(true)
	if s.maxAwait > 0 {
		opts.SetMaxAwaitTime(s.maxAwait)
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open oplog cursor: %w", err)
	}

	return &mongoCursor{cur: cur}, nil
}

// Close disconnects the client if the source created it.
func (s *MongoSource) Close(ctx context.Context) error {
	if !s.ownsClient || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

type mongoCursor struct {
	cur *mongo.Cursor
	rec oplog.Record
	err error
}

// Next blocks in the driver's getMore loop. The driver honours ctx, so
// cancelling it interrupts a wait on an idle oplog.
func (c *mongoCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}

	if !c.cur.Next(ctx) {
		switch {
		case c.cur.Err() != nil:
			c.err = c.cur.Err()
		case ctx.Err() != nil:
			c.err = ctx.Err()
		default:
			c.err = errCursorDead
		}
		return false
	}

	var entry oplogEntry
	if err := c.cur.Decode(&entry); err != nil {
		c.err = fmt.Errorf("failed to decode oplog entry: %w", err)
		return false
	}

	c.rec = entry.record()
	return true
}

func (c *mongoCursor) Record() oplog.Record { return c.rec }

func (c *mongoCursor) Err() error { return c.err }

func (c *mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

func toTimestamp(p oplog.Position) primitive.Timestamp {
	return primitive.Timestamp{T: p.T, I: p.I}
}

func fromTimestamp(ts primitive.Timestamp) oplog.Position {
	return oplog.Position{T: ts.T, I: ts.I}
}
