package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/mongoriver/admin"
	"github.com/maxpert/mongoriver/cfg"
	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/publisher"
	_ "github.com/maxpert/mongoriver/publisher/sink"
	_ "github.com/maxpert/mongoriver/publisher/transformer"
	"github.com/maxpert/mongoriver/river"
	"github.com/maxpert/mongoriver/source"
	"github.com/maxpert/mongoriver/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const metricsInterval = 5 * time.Second

func main() {
	flag.Parse()

	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("mongoriver - MongoDB oplog change streams")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("mongoriver stopped with error")
	}
	log.Info().Msg("mongoriver stopped")
}

func run(ctx context.Context) error {
	var checkpoints *publisher.CheckpointStore
	if cfg.Config.Checkpoint.Enabled {
		var err error
		checkpoints, err = publisher.NewCheckpointStore(cfg.Config.DataDir)
		if err != nil {
			return err
		}
		defer checkpoints.Close()
	}

	registryCfg := publisher.RegistryConfig{
		NodeID:      cfg.Config.NodeID,
		SinkConfigs: cfg.Config.Sinks,
	}
	if checkpoints != nil {
		registryCfg.Checkpoints = checkpoints
		registryCfg.CheckpointName = cfg.Config.Checkpoint.Name
	}
	outlet, err := publisher.BuildOutlet(registryCfg)
	if err != nil {
		return fmt.Errorf("failed to build sinks: %w", err)
	}
	defer func() {
		if err := outlet.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close sinks")
		}
	}()

	src, archive, closeSource, err := openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	start, err := resolveStart(checkpoints)
	if err != nil {
		return err
	}

	stream, err := river.NewStream(src, outlet, river.WithLimit(cfg.Config.Start.Limit))
	if err != nil {
		return err
	}

	collector := telemetry.NewMetricsCollector(stream, metricsInterval)
	collector.Start()
	defer collector.Stop()

	if archive != nil && cfg.Config.Archive.TruncateInterval() > 0 {
		go truncateArchive(ctx, archive, checkpoints, stream, cfg.Config.Archive.TruncateInterval())
	}

	if cfg.Config.Admin.Enabled {
		srv := startAdminServer(stream, outlet, checkpoints)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	err = stream.Run(ctx, start)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openSource opens the configured oplog. archive is non-nil when mongo
// records are also copied into the embedded oplog.
func openSource(ctx context.Context) (oplog.Source, *source.LocalLog, func(), error) {
	if cfg.Config.Source.Type == cfg.SourceLocal {
		local, err := source.OpenLocalLog(cfg.Config.DataDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return local, nil, func() { _ = local.Close() }, nil
	}

	mongoCfg := source.DefaultMongoConfig(cfg.Config.Source.URI)
	mongoCfg.Database = cfg.Config.Source.Database
	mongoCfg.Collection = cfg.Config.Source.Collection
	mongoCfg.ReadPreference = cfg.Config.Source.ReadPreference
	if d := cfg.Config.Source.MaxAwait(); d > 0 {
		mongoCfg.MaxAwait = d
	}
	if d := cfg.Config.Source.ConnectTimeout(); d > 0 {
		mongoCfg.ConnectTimeout = d
	}

	mongoSrc, err := source.NewMongoSource(ctx, mongoCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeMongo := func() { _ = mongoSrc.Close(context.Background()) }

	if !cfg.Config.Archive.Enabled {
		return mongoSrc, nil, closeMongo, nil
	}

	archive, err := source.OpenLocalLog(cfg.Config.DataDir)
	if err != nil {
		closeMongo()
		return nil, nil, nil, fmt.Errorf("failed to open oplog archive: %w", err)
	}
	log.Info().Str("data_dir", cfg.Config.DataDir).Msg("Archiving oplog records locally")

	return source.NewArchivingSource(mongoSrc, archive), archive, func() {
		closeMongo()
		_ = archive.Close()
	}, nil
}

// resolveStart maps the [start] section to a river.Start
func resolveStart(checkpoints *publisher.CheckpointStore) (river.Start, error) {
	mode := cfg.Config.Start.Mode
	if mode == cfg.StartCheckpoint {
		if checkpoints == nil {
			return river.Start{}, fmt.Errorf("start mode checkpoint requires checkpointing")
		}
		pos, ok, err := checkpoints.Get(cfg.Config.Checkpoint.Name)
		if err != nil {
			return river.Start{}, err
		}
		if ok {
			log.Info().Str("checkpoint", cfg.Config.Checkpoint.Name).Stringer("optime", pos).Msg("Resuming from checkpoint")
			return river.FromPosition(&pos), nil
		}
		log.Info().Str("fallback", string(cfg.Config.Start.Fallback)).Msg("No checkpoint stored, using fallback start")
		mode = cfg.Config.Start.Fallback
	}

	switch mode {
	case cfg.StartMostRecent:
		return river.MostRecent(), nil
	case cfg.StartBeginning:
		return river.FromBeginning(), nil
	case cfg.StartTimestamp:
		pos, err := oplog.ParsePosition(cfg.Config.Start.Timestamp)
		if err != nil {
			return river.Start{}, fmt.Errorf("invalid start timestamp: %w", err)
		}
		return river.FromPosition(&pos), nil
	case cfg.StartDate:
		t, err := time.Parse(time.RFC3339, cfg.Config.Start.Date)
		if err != nil {
			return river.Start{}, fmt.Errorf("invalid start date: %w", err)
		}
		return river.FromDate(t), nil
	default:
		return river.Start{}, fmt.Errorf("invalid start mode: %s", mode)
	}
}

// truncateArchive drops archived records nobody needs anymore: everything
// below the slowest checkpoint, or below the stream's own progress when
// checkpointing is off
func truncateArchive(ctx context.Context, archive *source.LocalLog, checkpoints *publisher.CheckpointStore, stream *river.Stream, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var (
			pos oplog.Position
			ok  bool
		)
		if checkpoints != nil {
			pos, ok = checkpoints.Minimum()
		} else {
			pos, ok = stream.LastOptime()
		}
		if !ok {
			continue
		}

		if err := archive.TruncateBefore(pos); err != nil {
			log.Warn().Err(err).Msg("Failed to truncate oplog archive")
			continue
		}
		log.Debug().Stringer("before", pos).Msg("Truncated oplog archive")
	}
}

func startAdminServer(stream *river.Stream, outlet *publisher.Outlet, checkpoints *publisher.CheckpointStore) *http.Server {
	// A nil store must reach the handlers as a nil interface
	var cp admin.Checkpoints
	if checkpoints != nil {
		cp = checkpoints
	}

	mux := http.NewServeMux()
	admin.RegisterRoutes(mux, admin.NewAdminHandlers(cfg.Config.NodeID, stream, outlet, cp))

	addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", addr).Msg("Admin server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin server failed")
		}
	}()

	return srv
}
