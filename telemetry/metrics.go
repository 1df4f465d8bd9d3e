package telemetry

// Histogram bucket definitions
var (
	// PublishBuckets for sink round trips (broker ack included)
	PublishBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// LagBuckets for how far behind the oplog head a record was handled
	LagBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600}
)

// Tailing Metrics
var (
	// RecordsTotal counts raw oplog records read by op kind (insert, update, delete, command, noop, unknown)
	RecordsTotal CounterVec = noopCounterVec{}

	// TailState tracks the tail session state (0=idle, 1=positioning, 2=streaming, 3=stopped)
	TailState Gauge = NoopStat{}

	// StreamErrorsTotal counts aborted streams by reason (read, handler)
	StreamErrorsTotal CounterVec = noopCounterVec{}

	// OptimeSeconds is the seconds part of the last advanced optime
	OptimeSeconds Gauge = NoopStat{}

	// OptimeOrdinal is the ordinal part of the last advanced optime
	OptimeOrdinal Gauge = NoopStat{}

	// OptimeLagSeconds is wall clock minus the last advanced optime
	OptimeLagSeconds Gauge = NoopStat{}

	// RecordLagSeconds measures how old each record was when its sink accepted it
	RecordLagSeconds Histogram = NoopStat{}
)

// Translation Metrics
var (
	// EventsTotal counts normalized events emitted by kind
	EventsTotal CounterVec = noopCounterVec{}

	// SkippedRecordsTotal counts recognized records that produced no content event by reason
	SkippedRecordsTotal CounterVec = noopCounterVec{}
)

// Publishing Metrics
var (
	// PublishTotal counts sink publishes by sink name and result (success, failed, filtered)
	PublishTotal CounterVec = noopCounterVec{}

	// PublishDurationSeconds measures sink publish latency by sink name
	PublishDurationSeconds HistogramVec = noopHistogramVec{}

	// PublishBytes measures encoded payload size after compression
	PublishBytes Histogram = NoopStat{}

	// CheckpointWritesTotal counts checkpoint commits by result (success, failed, stale)
	CheckpointWritesTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Tailing Metrics
	RecordsTotal = NewCounterVec(
		"records_total",
		"Raw oplog records read by op kind",
		[]string{"op"},
	)
	TailState = NewGauge(
		"tail_state",
		"Tail session state (0=idle, 1=positioning, 2=streaming, 3=stopped)",
	)
	StreamErrorsTotal = NewCounterVec(
		"stream_errors_total",
		"Aborted oplog streams by reason",
		[]string{"reason"},
	)
	OptimeSeconds = NewGauge(
		"optime_seconds",
		"Seconds part of the last advanced optime",
	)
	OptimeOrdinal = NewGauge(
		"optime_ordinal",
		"Ordinal part of the last advanced optime",
	)
	OptimeLagSeconds = NewGauge(
		"optime_lag_seconds",
		"Wall clock minus the last advanced optime",
	)
	RecordLagSeconds = NewHistogramWithBuckets(
		"record_lag_seconds",
		"Age of a record when its sink accepted it",
		LagBuckets,
	)

	// Translation Metrics
	EventsTotal = NewCounterVec(
		"events_total",
		"Normalized events emitted by kind",
		[]string{"kind"},
	)
	SkippedRecordsTotal = NewCounterVec(
		"skipped_records_total",
		"Records that produced no content event by reason",
		[]string{"reason"},
	)

	// Publishing Metrics
	PublishTotal = NewCounterVec(
		"publish_total",
		"Sink publishes by sink and result",
		[]string{"sink", "result"},
	)
	PublishDurationSeconds = NewHistogramVec(
		"publish_duration_seconds",
		"Sink publish duration in seconds",
		[]string{"sink"},
		PublishBuckets,
	)
	PublishBytes = NewHistogram(
		"publish_bytes",
		"Encoded payload size in bytes",
	)
	CheckpointWritesTotal = NewCounterVec(
		"checkpoint_writes_total",
		"Checkpoint commits by result",
		[]string{"result"},
	)
}
