// Package analytics materializes usage counts from the operational database
// into four count tables, one per scope (user, stream, realm, installation).
//
// # Overview
//
// Every stat is an immutable CountStat keyed by its property name. Rows are
// bucketed by end_time, an hour-aligned exclusive upper bound; day stats
// only produce rows on UTC midnight. A bucket's rows come from one of three
// places:
//
//   - Pull stats run a templated INSERT ... SELECT against the source tables.
//   - CustomPull stats run Go code inside a transaction.
//   - Logging stats are incremented inline by application code.
//
// After a bucket is pulled, its rows are summed into RealmCount (for user
// and stream stats) and then into InstallationCount.
//
// # Fill state
//
// analytics_fillstate holds one row per property. The scheduler marks a
// bucket STARTED, fills it, then marks it DONE. Finding a STARTED row on
// the next run means the previous run died mid-bucket: its rows are deleted
// and the bucket is filled again, so re-running after any failure converges.
//
// # Usage
//
//	a := analytics.NewAggregator(db.DB, db.Dialect,
//		analytics.WithLogger(logger),
//		analytics.WithMetrics(metrics),
//	)
//	result, err := a.UpdateAll(ctx, analytics.FloorHour(time.Now()), analytics.UpdateOptions{Workers: 4})
//
// Record an event against a logging stat:
//
//	stat, _ := a.Registry().Get("invites_sent::day")
//	err := a.IncrementLoggingStat(ctx, analytics.RealmKey{RealmID: realm.ID}, stat, analytics.NoSubgroup, time.Now(), 1)
//
// # Related Packages
//
//   - pkg/storage: connection pool and SQL dialects
//   - pkg/observability: analytics log and metrics
package analytics
