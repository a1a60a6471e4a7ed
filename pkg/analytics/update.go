package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/countstat/pkg/async"
	"github.com/platinummonkey/countstat/pkg/observability"
)

// UpdateOptions tunes an update pass.
type UpdateOptions struct {
	// Properties restricts the pass to these stats and their dependencies.
	Properties []string
	// Workers bounds how many stats are filled at once.
	Workers int
	// StatTimeout bounds the time spent on one stat. Zero means no limit.
	StatTimeout time.Duration
}

// StatResult is the outcome of one stat in an update pass.
type StatResult struct {
	Property string
	Duration time.Duration
	Err      error
}

// UpdateResult summarizes an update pass.
type UpdateResult struct {
	RunID   string
	FillTo  time.Time
	Results []StatResult
}

// Err joins the errors of every failed stat.
func (r *UpdateResult) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Property, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Failed lists the properties that did not finish.
func (r *UpdateResult) Failed() []string {
	var failed []string
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res.Property)
		}
	}
	return failed
}

// UpdateAll fills every registered stat through fillTo. Independent stats
// run first on a bounded pool, then stats that read other stats' rows. A
// failing stat does not stop the others; the returned error joins them all.
func (a *Aggregator) UpdateAll(ctx context.Context, fillTo time.Time, opts UpdateOptions) (*UpdateResult, error) {
	registry := a.registry
	if len(opts.Properties) > 0 {
		sub, err := registry.Subset(opts.Properties...)
		if err != nil {
			return nil, err
		}
		registry = sub
	}

	result := &UpdateResult{RunID: uuid.NewString(), FillTo: fillTo.UTC()}
	ctx = observability.WithRunID(ctx, result.RunID)
	logger := a.log(ctx)
	began := time.Now()

	logger.Infof("Starting updating analytics counts through %s", result.FillTo.Format(time.RFC3339))

	var independent, dependent []*CountStat
	for _, stat := range registry.Stats() {
		if stat.IsDependent() {
			dependent = append(dependent, stat)
		} else {
			independent = append(independent, stat)
		}
	}

	for _, phase := range [][]*CountStat{independent, dependent} {
		indexes := make([]int, len(phase))
		for i := range indexes {
			indexes[i] = i
		}
		durations := make([]time.Duration, len(phase))
		errs := async.Batch(ctx, indexes, opts.Workers, "update analytics", opts.StatTimeout,
			func(ctx context.Context, i int) error {
				statBegan := time.Now()
				defer func() { durations[i] = time.Since(statBegan) }()
				stat := phase[i]
				return a.ProcessCountStat(observability.WithProperty(ctx, stat.Property), stat, result.FillTo)
			})
		for i, stat := range phase {
			if errs[i] != nil {
				logger.WithField("property", stat.Property).WithError(errs[i]).Error("failed to update stat")
			}
			result.Results = append(result.Results, StatResult{Property: stat.Property, Duration: durations[i], Err: errs[i]})
		}
	}

	err := result.Err()
	a.metrics.ObserveUpdatePass(time.Since(began), err)
	if err != nil {
		logger.WithField("failed", result.Failed()).Errorf("Finished updating analytics counts through %s with errors", result.FillTo.Format(time.RFC3339))
		return result, err
	}
	logger.Infof("Finished updating analytics counts through %s", result.FillTo.Format(time.RFC3339))
	return result, nil
}
