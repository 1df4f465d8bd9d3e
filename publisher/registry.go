package publisher

import (
	"fmt"
	"sync"

	"github.com/maxpert/mongoriver/cfg"
	"github.com/rs/zerolog/log"
)

// RegistryConfig configures the pipelines behind one outlet
type RegistryConfig struct {
	NodeID         uint64
	SinkConfigs    []cfg.SinkConfiguration // From config
	Checkpoints    *CheckpointStore        // nil disables checkpointing
	CheckpointName string
}

// BuildOutlet creates one pipeline per sink configuration, in order, and
// wraps them in an Outlet. Sinks already created are closed on failure.
func BuildOutlet(config RegistryConfig) (*Outlet, error) {
	pipelines := make([]Pipeline, 0, len(config.SinkConfigs))

	cleanup := func() {
		for _, p := range pipelines {
			p.Sink.Close()
		}
	}

	for _, sinkCfg := range config.SinkConfigs {
		p, err := buildPipeline(sinkCfg)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
		pipelines = append(pipelines, p)

		log.Info().
			Str("sink", sinkCfg.Name).
			Str("type", sinkCfg.Type).
			Str("format", sinkCfg.Format).
			Str("compression", sinkCfg.Compression).
			Msg("Added event sink")
	}

	outlet, err := NewOutlet(OutletConfig{
		NodeID:         config.NodeID,
		Pipelines:      pipelines,
		Checkpoints:    config.Checkpoints,
		CheckpointName: config.CheckpointName,
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	log.Info().
		Int("sinks", len(pipelines)).
		Bool("checkpointing", config.Checkpoints != nil).
		Msg("Event outlet initialized")

	return outlet, nil
}

// buildPipeline creates the sink, transformer, filter and compressor for
// one sink configuration
func buildPipeline(config cfg.SinkConfiguration) (Pipeline, error) {
	// Create transformer first; it holds no resources
	trans, err := createTransformer(config.Format)
	if err != nil {
		return Pipeline{}, fmt.Errorf("failed to create transformer: %w", err)
	}

	filter, err := NewGlobFilter(config.FilterCollections, config.FilterDatabases)
	if err != nil {
		return Pipeline{}, fmt.Errorf("failed to create filter: %w", err)
	}

	compressor, err := NewCompressor(config.Compression)
	if err != nil {
		return Pipeline{}, err
	}

	snk, err := createSink(config)
	if err != nil {
		return Pipeline{}, fmt.Errorf("failed to create sink: %w", err)
	}

	return Pipeline{
		Name:        config.Name,
		Sink:        snk,
		Transformer: trans,
		Filter:      filter,
		Compressor:  compressor,
		TopicPrefix: config.TopicPrefix,
	}, nil
}

// createSink creates a sink based on the configuration
func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory is a function that creates a Transformer
type TransformerFactory func() Transformer

var (
	sinkFactories        = make(map[string]SinkFactory)
	transformerFactories = make(map[string]TransformerFactory)
	factoryMu            sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// RegisterTransformer registers a transformer factory for a format
func RegisterTransformer(format string, factory TransformerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	transformerFactories[format] = factory
}

// createTransformer creates a transformer based on the format
func createTransformer(format string) (Transformer, error) {
	factoryMu.RLock()
	factory, exists := transformerFactories[format]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown format: %s", format)
	}

	return factory(), nil
}
