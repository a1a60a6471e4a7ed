package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/countstat/pkg/analytics"
	"github.com/platinummonkey/countstat/pkg/async"
	"github.com/platinummonkey/countstat/pkg/config"
	"github.com/platinummonkey/countstat/pkg/lock"
	"github.com/platinummonkey/countstat/pkg/observability"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run update passes on a schedule and serve metrics and health probes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			ctx, stop := observability.SignalContext(cmd.Context())
			defer stop()
			return runServe(ctx, stop, cfg, newCLILogger(cmd.ErrOrStderr(), false))
		},
	}
}

func runServe(ctx context.Context, stop context.CancelFunc, cfg *config.Config, log *logrus.Logger) error {
	registry := prometheus.NewRegistry()

	a, err := openApp(ctx, cfg, registry, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	shutdown := observability.NewShutdownManager(a.logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("analytics database", func(context.Context) error { return a.Close() })

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, a.logger)
	if err != nil {
		return errors.Join(err, shutdown.Shutdown())
	}
	shutdown.Register("opentelemetry", providers.Shutdown)

	locker, redisClient, err := newLocker(ctx, cfg)
	if err != nil {
		return errors.Join(err, shutdown.Shutdown())
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}

	checker := observability.NewHealthChecker(a.db.DB, redisClient, version)
	checker.AddCheck("fill_state", false, fillStateCheck(a.aggregator))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newRouter(a, checker, registry),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	shutdown.RegisterServer(server)

	pass := scheduledPass(a, locker, log)
	cronLogger := cron.PrintfLogger(log)
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := scheduler.AddFunc(cfg.Server.Schedule, func() { _ = pass(ctx) }); err != nil {
		return errors.Join(fmt.Errorf("schedule update pass: %w", err), shutdown.Shutdown())
	}
	if _, err := scheduler.AddFunc("@every 30s", func() { a.metrics.RecordDBStats(a.db.Stats()) }); err != nil {
		return errors.Join(fmt.Errorf("schedule pool stats: %w", err), shutdown.Shutdown())
	}
	scheduler.Start()
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if cfg.Server.RunOnStart {
		async.SafeGo(ctx, 0, "initial update pass", a.logger, pass)
	}

	serveErr := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(a.logger, "http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()
	log.WithFields(logrus.Fields{
		"addr":     cfg.Server.Addr,
		"schedule": cfg.Server.Schedule,
		"lock":     cfg.Lock.Backend,
	}).Info("countstat serving")

	err = shutdown.Wait(ctx)
	select {
	case listenErr := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", listenErr), err)
	default:
		return err
	}
}

func newRouter(a *app, checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	observability.RegisterHealthRoutes(router, checker)
	router.Use(
		observability.RecoveryMiddleware(a.logger),
		observability.LoggingMiddleware(a.logger),
		observability.HTTPMetricsMiddleware(a.metrics),
	)
	return otelhttp.NewHandler(router, "countstat")
}

// scheduledPass fills every stat through the current hour under the pass
// lock. A pass that finds the lock held is skipped.
func scheduledPass(a *app, locker lock.Locker, log *logrus.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		fillTo := defaultFillTo(a.clock.Now(), a.cfg.Analytics.SafetyLag)
		err := lock.With(ctx, locker, func(ctx context.Context) error {
			return runUpdate(ctx, a.aggregator, log, fillTo, analytics.UpdateOptions{
				Workers:     a.cfg.Analytics.Workers,
				StatTimeout: a.cfg.Analytics.StatTimeout,
			})
		})
		a.metrics.RecordDBStats(a.db.Stats())

		switch {
		case errors.Is(err, lock.ErrLockHeld):
			log.Warn("Skipping update pass: another pass holds the lock")
			return nil
		case err != nil:
			log.WithError(err).Error("Update pass failed")
		}
		return err
	}
}

func fillStateCheck(agg *analytics.Aggregator) observability.CheckFunc {
	return func(ctx context.Context) observability.DependencyStatus {
		start := time.Now()
		status := observability.DependencyStatus{
			Status:    observability.StatusHealthy,
			Timestamp: start.UTC(),
		}

		report, err := agg.CheckFillState(ctx)
		status.Latency = time.Since(start)
		if err != nil {
			status.Status = observability.StatusUnhealthy
			status.Message = err.Error()
			return status
		}

		status.Message = report.Message
		switch report.Status {
		case analytics.CheckWarning:
			status.Status = observability.StatusDegraded
		case analytics.CheckCritical:
			status.Status = observability.StatusUnhealthy
		}
		return status
	}
}
