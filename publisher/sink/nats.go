package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/publisher"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const natsPublishTimeout = 5 * time.Second

func init() {
	publisher.RegisterSink("nats", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats sink requires nats_url")
		}
		return NewNatsSink(config.NatsURL)
	})
}

// NatsSink publishes events to NATS JetStream, one stream per subject
type NatsSink struct {
	nc *nats.Conn
	js jetstream.JetStream

	// subjects whose stream has been ensured on this connection
	streams sync.Map
}

// NewNatsSink creates a new NATS JetStream sink
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("mongoriver"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js}, nil
}

// Publish sends a message to the JetStream subject named by topic. The key
// travels in the "key" header; a nil value is a tombstone.
func (n *NatsSink) Publish(topic, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), natsPublishTimeout)
	defer cancel()

	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}

	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

func (n *NatsSink) ensureStream(ctx context.Context, topic string) error {
	if _, ok := n.streams.Load(topic); ok {
		return nil
	}

	streamName := sanitizeStreamName(topic)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	n.streams.Store(topic, struct{}{})
	return nil
}

// Close drains and closes the connection
func (n *NatsSink) Close() error {
	if n.nc == nil {
		return nil
	}
	err := n.nc.Drain()
	if err != nil {
		n.nc.Close()
	}
	return err
}

// sanitizeStreamName converts a subject into a valid JetStream stream name.
// Stream names can't contain ".", "*", ">" or whitespace.
func sanitizeStreamName(topic string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, topic)
}
