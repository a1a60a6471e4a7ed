package analytics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProcessCountStat fills every bucket of stat ending in (last filled, fillTo].
// A STARTED fill state left by an interrupted run is rolled back first, so
// calling it again after any failure converges on the same rows.
func (a *Aggregator) ProcessCountStat(ctx context.Context, stat *CountStat, fillTo time.Time) (err error) {
	fillTo = fillTo.UTC()
	if !IsHourAligned(fillTo) {
		return fmt.Errorf("%w: fill time %s", ErrNotHourAligned, fillTo.Format(time.RFC3339Nano))
	}
	if current := FloorHour(a.now()); fillTo.After(current) {
		return fmt.Errorf("%w: %s is after %s", ErrFillTimeInFuture, fillTo.Format(time.RFC3339), current.Format(time.RFC3339))
	}

	ctx, span := a.tracer.Start(ctx, "analytics.ProcessCountStat", trace.WithAttributes(
		attribute.String("countstat.property", stat.Property),
		attribute.String("countstat.fill_to", fillTo.Format(time.RFC3339)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	currentlyFilled, err := a.prepareFillState(ctx, stat, fillTo)
	if err != nil {
		return err
	}
	if fillTo.Before(currentlyFilled) {
		return fmt.Errorf("%w: %s fill time %s, filled through %s", ErrFillTimeBeforeLastFilled,
			stat.Property, fillTo.Format(time.RFC3339), currentlyFilled.Format(time.RFC3339))
	}

	if stat.IsDependent() {
		var ready bool
		fillTo, ready, err = a.clampToDependencies(ctx, stat, fillTo)
		if err != nil || !ready {
			return err
		}
	}

	logger := a.log(ctx)
	for end := currentlyFilled.Add(time.Hour); !end.After(fillTo); end = end.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return err
		}

		began := time.Now()
		logger.WithField("end_time", end).Info("START")
		if err := a.setFillState(ctx, stat.Property, end, Started); err != nil {
			return &BucketError{Property: stat.Property, EndTime: end, Phase: "fill state", Duration: time.Since(began), Err: err}
		}
		if err := a.fillCountStatAtHour(ctx, stat, end); err != nil {
			a.metrics.ObserveBucket(stat.Property, time.Since(began), err)
			return err
		}
		if err := a.setFillState(ctx, stat.Property, end, Done); err != nil {
			return &BucketError{Property: stat.Property, EndTime: end, Phase: "fill state", Duration: time.Since(began), Err: err}
		}

		elapsed := time.Since(began)
		a.metrics.ObserveBucket(stat.Property, elapsed, nil)
		logger.WithField("end_time", end).Infof("DONE (%dms)", elapsed.Milliseconds())
		currentlyFilled = end
	}

	a.metrics.SetFillLag(stat.Property, a.now().Sub(currentlyFilled))
	return nil
}

// prepareFillState initializes a missing fill state or rolls back a
// STARTED one, and returns the end of the last complete bucket.
func (a *Aggregator) prepareFillState(ctx context.Context, stat *CountStat, fillTo time.Time) (time.Time, error) {
	logger := a.log(ctx)

	fs, err := a.FillState(ctx, stat.Property)
	if err != nil {
		return time.Time{}, err
	}

	switch {
	case fs == nil:
		epoch, err := a.InstallationEpoch(ctx, fillTo)
		if err != nil {
			return time.Time{}, err
		}
		if err := a.setFillState(ctx, stat.Property, epoch, Done); err != nil {
			return time.Time{}, err
		}
		logger.WithField("end_time", epoch).Info("INITIALIZED")
		return epoch, nil

	case fs.State == Started:
		logger.WithField("end_time", fs.EndTime).Info("UNDO START")
		began := time.Now()
		if err := a.deleteCountsAt(ctx, stat, fs.EndTime); err != nil {
			return time.Time{}, &BucketError{Property: stat.Property, EndTime: fs.EndTime, Phase: "recovery delete", Duration: time.Since(began), Err: err}
		}
		previous := fs.EndTime.Add(-time.Hour)
		if err := a.setFillState(ctx, stat.Property, previous, Done); err != nil {
			return time.Time{}, err
		}
		a.metrics.IncRecoveries(stat.Property)
		logger.Info("UNDO DONE")
		return previous, nil

	case fs.State == Done:
		return fs.EndTime, nil

	default:
		return time.Time{}, fmt.Errorf("%w: %s has state %d", ErrUnknownFillState, stat.Property, int(fs.State))
	}
}

// clampToDependencies limits fillTo to what every dependency has filled.
// ready is false when some dependency has never been filled.
func (a *Aggregator) clampToDependencies(ctx context.Context, stat *CountStat, fillTo time.Time) (time.Time, bool, error) {
	for _, dep := range stat.Dependencies {
		filled, ok, err := a.LastSuccessfulFill(ctx, dep)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok {
			a.log(ctx).WithField("dependency", dep).Warn("dependency has not been filled yet, skipping")
			return time.Time{}, false, nil
		}
		if filled.Before(fillTo) {
			fillTo = filled
		}
	}
	return fillTo, true, nil
}

// fillCountStatAtHour writes the bucket ending at end and its rollups.
func (a *Aggregator) fillCountStatAtHour(ctx context.Context, stat *CountStat, end time.Time) error {
	if !IsHourAligned(end) {
		return fmt.Errorf("%w: bucket end %s", ErrNotHourAligned, end.Format(time.RFC3339Nano))
	}
	if stat.Frequency == Day && !IsDayAligned(end) {
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "analytics.fillCountStatAtHour", trace.WithAttributes(
		attribute.String("countstat.property", stat.Property),
		attribute.String("countstat.end_time", end.Format(time.RFC3339)),
	))
	defer span.End()

	start := stat.StartTime(end)
	began := time.Now()
	var err error
	switch stat.Kind {
	case Pull:
		_, err = a.doPullFromSource(ctx, stat, start, end)
	case CustomPull:
		_, err = a.doCustomPull(ctx, stat, start, end)
	}
	if err != nil {
		span.RecordError(err)
		return &BucketError{Property: stat.Property, EndTime: end, Phase: "pull", Duration: time.Since(began), Err: err}
	}

	if err := a.aggregateToSummaryTables(ctx, stat, end); err != nil {
		span.RecordError(err)
		return &BucketError{Property: stat.Property, EndTime: end, Phase: "rollup", Duration: time.Since(began), Err: err}
	}
	return nil
}
