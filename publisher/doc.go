// Package publisher delivers normalized change events to external systems
// (Kafka, NATS JetStream) and records how far delivery has progressed.
//
// # Outlet
//
// Outlet implements river.Sink. It buffers the content event of a record
// until the record's OptimeUpdate arrives, then runs it through every
// configured Pipeline in order:
//
//  1. Filter: glob patterns on database and collection
//  2. Transformer: json, debezium or msgpack encoding
//  3. Compressor: optional zstd
//  4. Sink: publish to {topic_prefix}.{db}.{collection}
//
// Database-level events go to {topic_prefix}.{db}. Messages are keyed by
// document _id, or by collection name for collection and index DDL. A delete
// is followed by a tombstone for log-compacted topics.
//
// # Checkpoints
//
// After every pipeline has accepted a record, the record's optime is
// committed to the CheckpointStore under the configured name. Commits never
// move a checkpoint backwards:
//
//	store, err := NewCheckpointStore("/data/mongoriver")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	outlet, err := BuildOutlet(RegistryConfig{
//		SinkConfigs:    cfg.Config.Sinks,
//		Checkpoints:    store,
//		CheckpointName: "default",
//	})
//
// Key prefixes:
//
//	/checkpoint/{name} -> uint64 (seconds<<32 | ordinal)
//
// # Registration
//
// Sinks and transformers register factories from their packages' init
// functions; import publisher/sink and publisher/transformer for their side
// effects to make the built-in types available to BuildOutlet.
package publisher
