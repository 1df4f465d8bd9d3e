package publisher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/river"
	"github.com/maxpert/mongoriver/telemetry"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Pipeline is one configured destination: events that pass Filter are
// encoded by Transformer, optionally compressed and published to Sink.
type Pipeline struct {
	Name        string
	Sink        Sink
	Transformer Transformer
	Filter      Filter     // nil publishes everything
	Compressor  Compressor // nil publishes uncompressed
	TopicPrefix string     // e.g. "mongoriver.cdc"
}

// OutletConfig configures an Outlet
type OutletConfig struct {
	NodeID         uint64
	Pipelines      []Pipeline
	Checkpoints    *CheckpointStore // nil disables checkpointing
	CheckpointName string
}

// Outlet is a river.Sink that fans events out to pipelines in order.
//
// Content events are held until the OptimeUpdate that closes their record
// arrives; they are then published with that record's position and the
// checkpoint is advanced. A failed publish returns the error, aborting the
// stream before the checkpoint moves, so a restart from the checkpoint
// redelivers the record (at-least-once).
type Outlet struct {
	config    OutletConfig
	mu        sync.Mutex
	pending   []river.Event
	published atomic.Uint64
}

// NewOutlet creates an outlet
func NewOutlet(config OutletConfig) (*Outlet, error) {
	for i, p := range config.Pipelines {
		if p.Name == "" {
			return nil, fmt.Errorf("pipeline %d: name is required", i)
		}
		if p.Sink == nil {
			return nil, fmt.Errorf("pipeline %s: sink is required", p.Name)
		}
		if p.Transformer == nil {
			return nil, fmt.Errorf("pipeline %s: transformer is required", p.Name)
		}
	}
	if config.Checkpoints != nil && config.CheckpointName == "" {
		return nil, fmt.Errorf("checkpoint name is required")
	}

	return &Outlet{config: config}, nil
}

// Emit implements river.Sink
func (o *Outlet) Emit(ev river.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if u, ok := ev.(river.OptimeUpdate); ok {
		return o.flush(u.Position)
	}

	o.pending = append(o.pending, ev)
	return nil
}

// flush publishes pending events at pos and advances the checkpoint
func (o *Outlet) flush(pos oplog.Position) error {
	// events of a failed record never carry over to the next one
	defer func() { o.pending = o.pending[:0] }()

	for _, ev := range o.pending {
		msg := Message{Event: ev, Position: pos, NodeID: o.config.NodeID}
		for i := range o.config.Pipelines {
			if err := o.publish(&o.config.Pipelines[i], msg); err != nil {
				return err
			}
		}
	}

	if o.config.Checkpoints == nil {
		return nil
	}

	// Publish already happened; a lost checkpoint only means redelivery
	if _, err := o.config.Checkpoints.Commit(o.config.CheckpointName, pos); err != nil {
		log.Warn().
			Err(err).
			Str("checkpoint", o.config.CheckpointName).
			Stringer("optime", pos).
			Msg("Failed to commit checkpoint after publish - records may be redelivered")
	}
	return nil
}

func (o *Outlet) publish(p *Pipeline, msg Message) error {
	database, collection, _ := river.Target(msg.Event)

	if p.Filter != nil && !p.Filter.Match(database, collection) {
		telemetry.PublishTotal.With(p.Name, "filtered").Inc()
		return nil
	}

	data, err := p.Transformer.Transform(msg)
	if err != nil {
		return fmt.Errorf("sink %s: failed to transform %s event: %w", p.Name, msg.Event.Kind(), err)
	}

	topic := buildTopic(p.TopicPrefix, database, collection)
	key := messageKey(msg.Event)

	if err := o.send(p, topic, key, data); err != nil {
		return err
	}

	// For deletes, also send tombstone
	if msg.Event.Kind() == river.KindDelete {
		if err := o.send(p, topic, key, p.Transformer.Tombstone(key)); err != nil {
			return err
		}
	}

	return nil
}

func (o *Outlet) send(p *Pipeline, topic, key string, data []byte) error {
	if p.Compressor != nil {
		compressed, err := p.Compressor.Compress(data)
		if err != nil {
			return fmt.Errorf("sink %s: failed to compress payload: %w", p.Name, err)
		}
		data = compressed
	}

	start := time.Now()
	err := p.Sink.Publish(topic, key, data)
	telemetry.PublishDurationSeconds.With(p.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.PublishTotal.With(p.Name, "failed").Inc()
		return fmt.Errorf("sink %s: failed to publish to %s: %w", p.Name, topic, err)
	}

	telemetry.PublishTotal.With(p.Name, "success").Inc()
	telemetry.PublishBytes.Observe(float64(len(data)))
	o.published.Add(1)
	return nil
}

// Published returns the number of messages handed to sinks, tombstones included
func (o *Outlet) Published() uint64 {
	return o.published.Load()
}

// Pipelines returns the configured pipeline names in publish order
func (o *Outlet) Pipelines() []string {
	names := make([]string, 0, len(o.config.Pipelines))
	for _, p := range o.config.Pipelines {
		names = append(names, p.Name)
	}
	return names
}

// Close closes every sink
func (o *Outlet) Close() error {
	var errs []error
	for _, p := range o.config.Pipelines {
		if err := p.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

// buildTopic builds the topic name for an event
func buildTopic(prefix, database, collection string) string {
	topic := database
	if collection != "" {
		topic = database + "." + collection
	}
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// messageKey picks the partition key: the document _id for CRUD events, the
// collection for collection DDL, the database for dropDatabase
func messageKey(ev river.Event) string {
	switch e := ev.(type) {
	case river.Insert:
		return documentKey(e.Document)
	case river.Update:
		if key := documentKey(e.Filter); key != "" {
			return key
		}
		return documentKey(e.Document)
	case river.Delete:
		return documentKey(e.Filter)
	case river.DeleteDatabase:
		return e.Database
	default:
		_, collection, _ := river.Target(ev)
		return collection
	}
}

func documentKey(doc bson.D) string {
	v, ok := oplog.Lookup(doc, "_id")
	if !ok {
		return ""
	}

	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case int32, int64, float64:
		return fmt.Sprint(id)
	}

	data, err := bson.MarshalExtJSON(bson.D{{Key: "_id", Value: v}}, true, false)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
