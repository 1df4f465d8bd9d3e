package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// SourceType selects the oplog implementation
type SourceType string

const (
	SourceMongo SourceType = "mongo" // local.oplog.rs of a replica set member
	SourceLocal SourceType = "local" // Embedded Pebble oplog under data_dir
)

// StartMode selects where tailing begins
type StartMode string

const (
	StartCheckpoint StartMode = "checkpoint"  // Resume after the stored checkpoint
	StartMostRecent StartMode = "most_recent" // Skip existing records
	StartTimestamp  StartMode = "timestamp"   // After the newest record at or before start.timestamp
	StartDate       StartMode = "date"        // After the newest record at or before start.date
	StartBeginning  StartMode = "beginning"   // Every record in the log
)

// SourceConfiguration describes the oplog to tail
type SourceConfiguration struct {
	Type             SourceType `toml:"type"`
	URI              string     `toml:"uri"`
	Database         string     `toml:"database"`   // Defaults to "local"
	Collection       string     `toml:"collection"` // Defaults to "oplog.rs"
	ReadPreference   string     `toml:"read_preference"`
	MaxAwaitMS       int        `toml:"max_await_ms"`       // Server-side wait on an exhausted tailable cursor
	ConnectTimeoutMS int        `toml:"connect_timeout_ms"` // Connect + initial ping
}

// StartConfiguration controls the initial tail position
type StartConfiguration struct {
	Mode      StartMode `toml:"mode"`
	Timestamp string    `toml:"timestamp"` // "<seconds>:<ordinal>"
	Date      string    `toml:"date"`      // RFC3339
	Fallback  StartMode `toml:"fallback"`  // Used when mode=checkpoint finds nothing
	Limit     int       `toml:"limit"`     // Records to handle before exiting, 0 = unlimited
}

// CheckpointConfiguration controls optime persistence
type CheckpointConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
}

// ArchiveConfiguration controls copying the MongoDB oplog into the embedded
// oplog under data_dir
type ArchiveConfiguration struct {
	Enabled           bool `toml:"enabled"`
	TruncateIntervalS int  `toml:"truncate_interval_s"` // Drop records below the slowest checkpoint, 0 = keep everything
}

// SinkConfiguration configures one event destination
type SinkConfiguration struct {
	Name              string   `toml:"name"`
	Type              string   `toml:"type"`   // "kafka", "nats", "log" or "mock"
	Format            string   `toml:"format"` // "json", "debezium" or "msgpack"
	Brokers           []string `toml:"brokers"`
	NatsURL           string   `toml:"nats_url"`
	TopicPrefix       string   `toml:"topic_prefix"`
	BatchSize         int      `toml:"batch_size"`
	Compression       string   `toml:"compression"` // "none" or "zstd"
	FilterDatabases   []string `toml:"filter_databases"`
	FilterCollections []string `toml:"filter_collections"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the HTTP admin endpoint
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Source     SourceConfiguration     `toml:"source"`
	Start      StartConfiguration      `toml:"start"`
	Checkpoint CheckpointConfiguration `toml:"checkpoint"`
	Archive    ArchiveConfiguration    `toml:"archive"`
	Sinks      []SinkConfiguration     `toml:"sinks"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	SourceURIFlag  = flag.String("source-uri", "", "MongoDB connection string (overrides config)")
	StartFlag      = flag.String("start", "", "Start mode (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "./mongoriver-data",

	Source: SourceConfiguration{
		Type:             SourceMongo,
		URI:              "mongodb://localhost:27017/?replicaSet=rs0",
		Database:         "local",
		Collection:       "oplog.rs",
		ReadPreference:   "secondary",
		MaxAwaitMS:       1000,
		ConnectTimeoutMS: 10000,
	},

	Start: StartConfiguration{
		Mode:     StartCheckpoint,
		Fallback: StartMostRecent,
	},

	Checkpoint: CheckpointConfiguration{
		Enabled: true,
		Name:    "default",
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},

	Admin: AdminConfiguration{
		Enabled:     true,
		BindAddress: "0.0.0.0",
		Port:        8090,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *SourceURIFlag != "" {
		Config.Source.URI = *SourceURIFlag
	}
	if *StartFlag != "" {
		Config.Start.Mode = StartMode(*StartFlag)
	}

	// Auto-generate node ID if not set
	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	// Ensure data directory exists
	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("mongoriver")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

var (
	validSinkTypes    = map[string]bool{"kafka": true, "nats": true, "log": true, "mock": true}
	validFormats      = map[string]bool{"json": true, "debezium": true, "msgpack": true}
	validCompressions = map[string]bool{"": true, "none": true, "zstd": true}
	validReadPrefs    = map[string]bool{
		"primary": true, "primaryPreferred": true, "secondary": true,
		"secondaryPreferred": true, "nearest": true,
	}
)

// Validate checks configuration for errors
func Validate() error {
	switch Config.Source.Type {
	case SourceMongo:
		if Config.Source.URI == "" {
			return fmt.Errorf("source uri is required for mongo source")
		}
		if !validReadPrefs[Config.Source.ReadPreference] {
			return fmt.Errorf("invalid read preference: %s", Config.Source.ReadPreference)
		}
	case SourceLocal:
	default:
		return fmt.Errorf("invalid source type: %s", Config.Source.Type)
	}

	if Config.Source.MaxAwaitMS < 0 {
		return fmt.Errorf("source max await must be >= 0")
	}
	if Config.Source.ConnectTimeoutMS < 0 {
		return fmt.Errorf("source connect timeout must be >= 0")
	}

	if err := validateStartMode(Config.Start.Mode); err != nil {
		return err
	}
	if Config.Start.Mode == StartCheckpoint {
		if !Config.Checkpoint.Enabled {
			return fmt.Errorf("start mode checkpoint requires checkpoint.enabled")
		}
		if Config.Start.Fallback == StartCheckpoint {
			return fmt.Errorf("start fallback cannot be checkpoint")
		}
		if err := validateStartMode(Config.Start.Fallback); err != nil {
			return fmt.Errorf("invalid start fallback: %w", err)
		}
	}
	if Config.Start.Limit < 0 {
		return fmt.Errorf("start limit must be >= 0")
	}

	if Config.Archive.Enabled && Config.Source.Type != SourceMongo {
		return fmt.Errorf("archive requires a mongo source")
	}
	if Config.Archive.TruncateIntervalS < 0 {
		return fmt.Errorf("archive truncate interval must be >= 0")
	}

	if Config.Checkpoint.Enabled && Config.Checkpoint.Name == "" {
		return fmt.Errorf("checkpoint name is required")
	}

	names := make(map[string]bool, len(Config.Sinks))
	for i, s := range Config.Sinks {
		if s.Name == "" {
			return fmt.Errorf("sink %d: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate sink name: %s", s.Name)
		}
		names[s.Name] = true

		if !validSinkTypes[s.Type] {
			return fmt.Errorf("sink %s: invalid type %q", s.Name, s.Type)
		}
		if !validFormats[s.Format] {
			return fmt.Errorf("sink %s: invalid format %q", s.Name, s.Format)
		}
		if !validCompressions[s.Compression] {
			return fmt.Errorf("sink %s: invalid compression %q", s.Name, s.Compression)
		}
		if s.Type == "kafka" && len(s.Brokers) == 0 {
			return fmt.Errorf("sink %s: kafka requires brokers", s.Name)
		}
		if s.Type == "nats" && s.NatsURL == "" {
			return fmt.Errorf("sink %s: nats requires nats_url", s.Name)
		}
		if s.BatchSize < 0 {
			return fmt.Errorf("sink %s: batch size must be >= 0", s.Name)
		}
	}

	if Config.Admin.Enabled && (Config.Admin.Port < 1 || Config.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	return nil
}

func validateStartMode(mode StartMode) error {
	switch mode {
	case StartCheckpoint, StartMostRecent, StartBeginning:
		return nil
	case StartTimestamp:
		if Config.Start.Timestamp == "" {
			return fmt.Errorf("start mode timestamp requires start.timestamp")
		}
		return nil
	case StartDate:
		if _, err := time.Parse(time.RFC3339, Config.Start.Date); err != nil {
			return fmt.Errorf("invalid start date %q: %w", Config.Start.Date, err)
		}
		return nil
	default:
		return fmt.Errorf("invalid start mode: %s", mode)
	}
}

// MaxAwait returns the source's tailable await as a duration
func (s SourceConfiguration) MaxAwait() time.Duration {
	return time.Duration(s.MaxAwaitMS) * time.Millisecond
}

// TruncateInterval returns the archive truncation period, 0 when disabled
func (a ArchiveConfiguration) TruncateInterval() time.Duration {
	return time.Duration(a.TruncateIntervalS) * time.Second
}

// ConnectTimeout returns the source's connect timeout as a duration
func (s SourceConfiguration) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMS) * time.Millisecond
}
