// Package observability carries the ambient plumbing of the countstat
// binaries: the JSON analytics log, Prometheus metrics, OpenTelemetry
// export, health probes and graceful shutdown.
//
// # Logging
//
// Logger wraps a slog JSON handler. The fill engine writes its event log
// through it (INITIALIZED, START, DONE, UNDO START, UNDO DONE and the per
// phase timing lines), tagged with the run id of the update pass, the
// property being filled and the current trace:
//
//	logger, closer, err := observability.OpenLogFile(cfg.AnalyticsLogPath, observability.InfoLevel)
//	ctx = observability.WithRunID(ctx, runID)
//	observability.FromContext(ctx, logger).Info("START")
//
// # Metrics
//
// NewMetrics registers the countstat_* collectors on a Prometheus registry.
// All recorders accept a nil *Metrics, so library callers can run without
// metrics.
//
// # Tracing
//
// InitOTel installs OTLP/gRPC tracer and meter providers. When export is
// disabled the global no-op providers stay in place.
//
// # Health and shutdown
//
// HealthChecker serves /healthz and /readyz over the database, the optional
// Redis and any registered checks such as fill freshness. ShutdownManager
// stops registered components in reverse order on SIGINT or SIGTERM.
package observability
