package sink

import "github.com/maxpert/mongoriver/publisher"

// Compile-time interface verification
var (
	_ publisher.Sink = (*KafkaSink)(nil)
	_ publisher.Sink = (*NatsSink)(nil)
	_ publisher.Sink = (*MockSink)(nil)
	_ publisher.Sink = (*LogSink)(nil)
)
