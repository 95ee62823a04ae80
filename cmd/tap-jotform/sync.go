package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tap-jotform/internal/pipeline"
	"github.com/ajitpratap0/tap-jotform/pkg/compression"
	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/registry"
	"github.com/ajitpratap0/tap-jotform/pkg/connector/sources/jotform"
	"github.com/ajitpratap0/tap-jotform/pkg/errors"
	"github.com/ajitpratap0/tap-jotform/pkg/logger"
	"github.com/ajitpratap0/tap-jotform/pkg/metrics"
	"github.com/ajitpratap0/tap-jotform/pkg/observability"
	"github.com/ajitpratap0/tap-jotform/pkg/singer"
	"github.com/ajitpratap0/tap-jotform/pkg/state"
)

// syncOptions are the flags of the sync command.
type syncOptions struct {
	stateFile   string
	stateOutput string
	catalogFile string
	outputFile  string
	metricsAddr string
	trace       bool
}

func newSyncCmd(root *rootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"run"},
		Short:   "Extract selected streams as Singer messages",
		Long: `Extract the selected streams and write SCHEMA, RECORD and STATE messages,
one JSON object per line, to stdout or --output.

Example:
  tap-jotform sync --config config.json --state state.json --state-output state.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSync(ctx, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.stateFile, "state", "s", "", "State to resume from: a file path or s3://bucket/key")
	cmd.Flags().StringVar(&opts.stateOutput, "state-output", "", "Where to save the final state: a file path or s3://bucket/key")
	cmd.Flags().StringVar(&opts.catalogFile, "catalog", "", "Catalog file selecting streams (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.outputFile, "output", "o", "-", "Output file; .gz, .zst, .lz4 and .snappy are compressed")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the sync, e.g. :9090")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Export trace spans to stderr")
	return cmd
}

// runSync runs one sync. The final state is saved even when the sync fails,
// since bookmarks only cover streams that completed.
func runSync(ctx context.Context, cfg *config.Config, opts *syncOptions) (err error) {
	log, err := initLogger(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	defer func() { _ = logger.Sync() }()

	jobID := uuid.NewString()
	ctx = logger.ContextWithJobID(ctx, jobID)
	ctx = logger.ContextWithConnector(ctx, jotform.ConnectorName)
	log = logger.FromContext(ctx, log).With(zap.String("component", "tap-jotform-cli"))

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        opts.trace,
		ServiceName:    "tap-jotform",
		ServiceVersion: config.Version,
		SamplingRate:   1.0,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if opts.metricsAddr != "" {
		srv, err := metrics.Listen(opts.metricsAddr, log)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to start metrics server").
				WithDetail("addr", opts.metricsAddr)
		}
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := srv.Serve(metricsCtx); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	var catalog *singer.Catalog
	if opts.catalogFile != "" {
		if catalog, err = singer.LoadCatalog(opts.catalogFile); err != nil {
			return err
		}
	}

	st := state.New()
	if opts.stateFile != "" {
		store, err := state.OpenStore(ctx, opts.stateFile)
		if err != nil {
			return err
		}
		if st, err = store.Load(ctx); err != nil {
			return err
		}
		log.Info("loaded state", zap.String("location", store.Location()), zap.Strings("bookmarks", st.Streams()))
	}

	source, err := registry.CreateSource(jotform.ConnectorName, log)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create source").
			WithDetail("available", sourceNames())
	}
	if err := source.Initialize(ctx, cfg); err != nil {
		return err
	}
	defer func() {
		if err := source.Close(context.Background()); err != nil {
			log.Warn("failed to close source", zap.Error(err))
		}
	}()

	writer, err := singer.Open(opts.outputFile, compression.Default)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	log.Info("starting sync", zap.String("job_id", jobID), zap.String("output", opts.outputFile))
	p := pipeline.NewSyncPipeline(source, writer, &pipeline.Options{
		Catalog:       catalog,
		State:         st,
		PageSize:      cfg.PageSize,
		StartBookmark: cfg.StartBookmark(),
	}, log)

	runErr := p.Run(ctx)

	if opts.stateOutput != "" {
		if err := saveState(context.WithoutCancel(ctx), opts.stateOutput, p.State()); err != nil {
			if runErr == nil {
				return err
			}
			log.Error("failed to save state", zap.Error(err))
		}
	}
	if runErr != nil {
		return errors.Wrap(runErr, errors.TypeOf(runErr), "sync failed")
	}

	stats := writer.Stats()
	log.Info("sync completed",
		zap.Int64("records", stats.Records),
		zap.Int64("states", stats.States),
		zap.Any("metrics", p.Metrics()))
	return nil
}

func saveState(ctx context.Context, location string, st *state.State) error {
	store, err := state.OpenStore(ctx, location)
	if err != nil {
		return err
	}
	return store.Save(ctx, st)
}
