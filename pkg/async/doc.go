// Package async provides bounded concurrent execution with panic recovery.
//
// Batch fans a slice out over a fixed number of goroutines and reports one
// error per item, which lets a caller isolate failures:
//
//	errs := async.Batch(ctx, stats, 4, "update analytics", 0, func(ctx context.Context, s *analytics.CountStat) error {
//		return a.ProcessCountStat(ctx, s, fillTo)
//	})
//
// SafeGo runs a fire-and-forget task whose panics and errors are logged
// instead of crashing the process.
package async
