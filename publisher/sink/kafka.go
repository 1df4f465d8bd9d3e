package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/publisher"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBatchSize    = 100
	DefaultKafkaBatchBytes   = 1 << 20 // 1MB
	DefaultKafkaWriteTimeout = 10 * time.Second
)

func init() {
	publisher.RegisterSink("kafka", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		kafkaConfig := DefaultKafkaConfig(config.Brokers)
		if config.BatchSize > 0 {
			kafkaConfig.BatchSize = config.BatchSize
		}
		return NewKafkaSink(kafkaConfig)
	})
}

// KafkaSink publishes events to Kafka, one topic per namespace
type KafkaSink struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// KafkaConfig holds configuration for KafkaSink
type KafkaConfig struct {
	Brokers          []string           // Kafka broker addresses
	BatchSize        int                // Batch size (default: 100)
	BatchBytes       int64              // Max batch bytes (default: 1MB)
	RequiredAcks     kafka.RequiredAcks // Ack requirement (default: RequireAll)
	AutoCreateTopics bool               // Auto-create topics if they don't exist (default: true)
	WriteTimeout     time.Duration      // Per-publish deadline (default: 10s)
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults
func DefaultKafkaConfig(brokers []string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		BatchSize:        DefaultKafkaBatchSize,
		BatchBytes:       DefaultKafkaBatchBytes,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
		WriteTimeout:     DefaultKafkaWriteTimeout,
	}
}

// NewKafkaSink creates a new KafkaSink with the given configuration
func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}

	if config.BatchSize == 0 {
		config.BatchSize = DefaultKafkaBatchSize
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultKafkaWriteTimeout
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{}, // same _id, same partition
		BatchSize:              config.BatchSize,
		BatchBytes:             config.BatchBytes,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           config.RequiredAcks,
		Async:                  false,
		AllowAutoTopicCreation: config.AutoCreateTopics,
		WriteTimeout:           config.WriteTimeout,
	}

	return &KafkaSink{writer: writer, timeout: config.WriteTimeout}, nil
}

// Publish writes one message and waits for the broker acknowledgement.
// A nil value is a tombstone.
func (k *KafkaSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	return k.writer.WriteMessages(ctx, msg)
}

// Close flushes and releases the writer
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
