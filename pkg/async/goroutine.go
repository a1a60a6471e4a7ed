package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/countstat/pkg/observability"
)

// PanicError is returned in place of a task's error when the task panicked.
type PanicError struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// run executes fn with an optional timeout and turns a panic into a PanicError.
func run(ctx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: taskName, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// SafeGo executes fn in a goroutine with panic recovery and a timeout.
// Errors and panics are logged, never propagated.
//
// Example:
//
//	SafeGo(ctx, 10*time.Minute, "initial update", logger, func(ctx context.Context) error {
//	    return updater.UpdateAll(ctx, fillTo, opts)
//	})
func SafeGo(ctx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	go func() {
		err := run(ctx, timeout, taskName, fn)
		if err == nil {
			return
		}
		entry := logger.WithField("task", taskName).WithError(err)
		if pe, ok := err.(*PanicError); ok {
			entry.WithField("stack", string(pe.Stack)).Error("goroutine panicked")
			return
		}
		entry.Warn("goroutine failed")
	}()
}

// Batch runs fn for every item on at most workers goroutines and waits for
// all of them. The result holds one slot per item, nil on success. A failing
// item does not cancel the others. A timeout of zero leaves only ctx to bound
// each call.
//
// Example:
//
//	errs := Batch(ctx, stats, 4, "update analytics", 30*time.Minute, func(ctx context.Context, s *CountStat) error {
//	    return a.ProcessCountStat(ctx, s, fillTo)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers < 1 {
		workers = 1
	}
	errs := make([]error, len(items))

	// A plain group: per-item errors are recorded, never returned, so no
	// sibling is cancelled.
	var eg errgroup.Group
	eg.SetLimit(workers)

	for i, item := range items {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = run(ctx, timeout, taskName, func(ctx context.Context) error {
				return fn(ctx, item)
			})
			return nil
		})
	}

	_ = eg.Wait()
	return errs
}
