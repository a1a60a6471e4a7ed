package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/countstat/pkg/analytics"
	"github.com/platinummonkey/countstat/pkg/config"
	"github.com/platinummonkey/countstat/pkg/observability"
	"github.com/platinummonkey/countstat/pkg/storage"
)

var version = "dev"

type rootOptions struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "countstat",
		Short:         "Analytics count aggregation",
		Long:          "countstat fills hourly and daily count tables from operational data and keeps them consistent across crashes.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading COUNTSTAT_* settings")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override COUNTSTAT_LOG_LEVEL")

	root.AddCommand(
		newUpdateCmd(opts),
		newDropCmd(opts),
		newCheckCmd(opts),
		newListStatsCmd(),
		newInitSchemaCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// newCLILogger writes human-facing status lines; the analytics event log
// goes through observability.Logger.
func newCLILogger(w io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		level, err := observability.ParseLogLevel(opts.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Observability.LogLevel = level
	}
	return cfg, nil
}

// app is the set of resources every subcommand works with.
type app struct {
	cfg        *config.Config
	db         *storage.DB
	logger     *observability.Logger
	metrics    *observability.Metrics
	aggregator *analytics.Aggregator
	clock      clockwork.Clock
	logCloser  io.Closer
}

// openApp opens the log and database. Metrics are only created when a
// registerer is given.
func openApp(ctx context.Context, cfg *config.Config, registerer prometheus.Registerer, clock clockwork.Clock) (*app, error) {
	logger, logCloser, err := observability.OpenLogFile(cfg.Analytics.LogPath, cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		clock:     clock,
		logCloser: logCloser,
	}
	aggOpts := []analytics.Option{analytics.WithLogger(logger), analytics.WithClock(clock)}
	if registerer != nil {
		a.metrics = observability.NewMetrics(registerer)
		aggOpts = append(aggOpts, analytics.WithMetrics(a.metrics))
	}
	if !cfg.Analytics.InstallationEpoch.IsZero() {
		aggOpts = append(aggOpts, analytics.WithInstallationEpoch(cfg.Analytics.InstallationEpoch))
	}
	a.aggregator = analytics.NewAggregator(db.DB, db.Dialect, aggOpts...)
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.db.Close(), a.logCloser.Close())
}

// defaultFillTo is the current hour less the configured safety lag.
func defaultFillTo(now time.Time, lag time.Duration) time.Time {
	return analytics.FloorHour(now).Add(-lag)
}
