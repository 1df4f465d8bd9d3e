package sink

import (
	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/publisher"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	publisher.RegisterSink("log", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		return NewLogSink(log.Logger.With().Str("sink", config.Name).Logger()), nil
	})
}

// LogSink writes every message to a zerolog logger. Useful for local runs
// and for checking a pipeline before pointing it at a broker.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the message; payloads are logged as raw bytes
func (l *LogSink) Publish(topic, key string, value []byte) error {
	ev := l.logger.Info().
		Str("topic", topic).
		Str("key", key)
	if value == nil {
		ev.Bool("tombstone", true).Msg("Event")
		return nil
	}
	ev.Bytes("value", value).Msg("Event")
	return nil
}

// Close is a no-op
func (l *LogSink) Close() error {
	return nil
}
