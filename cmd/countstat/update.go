package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/countstat/pkg/analytics"
	"github.com/platinummonkey/countstat/pkg/lock"
)

type updateOptions struct {
	time    string
	stats   []string
	verbose bool
}

func newUpdateCmd(root *rootOptions) *cobra.Command {
	opts := &updateOptions{}

	cmd := &cobra.Command{
		Use:   "update-analytics",
		Short: "Fill all count stats through the given hour",
		Long: `Fills every registered stat, hour by hour, from its last filled bucket
through --time (default: the current hour less COUNTSTAT_SAFETY_LAG).
Every stat is attempted; the command fails if any stat failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			log := newCLILogger(cmd.ErrOrStderr(), opts.verbose)

			a, err := openApp(cmd.Context(), cfg, nil, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			defer a.Close()

			fillTo, err := parseFillTo(opts.time, a.clock.Now(), cfg.Analytics.SafetyLag)
			if err != nil {
				return err
			}

			locker, redisClient, err := newLocker(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if redisClient != nil {
				defer redisClient.Close()
			}

			return lock.With(cmd.Context(), locker, func(ctx context.Context) error {
				return runUpdate(ctx, a.aggregator, log, fillTo, analytics.UpdateOptions{
					Properties:  opts.stats,
					Workers:     cfg.Analytics.Workers,
					StatTimeout: cfg.Analytics.StatTimeout,
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.time, "time", "", "Fill through the hour containing this ISO8601 time")
	cmd.Flags().StringSliceVar(&opts.stats, "stat", nil, "Only fill these stats (and the stats they depend on)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "Print per-stat timings")
	return cmd
}

// fillToLayouts are the ISO8601 forms accepted by --time, most precise first.
var fillToLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15Z07:00",
}

// parseFillTo floors an ISO8601 time to its hour or, when empty, derives
// the target from now.
func parseFillTo(value string, now time.Time, lag time.Duration) (time.Time, error) {
	if value == "" {
		return defaultFillTo(now, lag), nil
	}
	var err error
	for _, layout := range fillToLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return analytics.FloorHour(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --time %q: %w", value, err)
}

func runUpdate(ctx context.Context, agg *analytics.Aggregator, log *logrus.Logger, fillTo time.Time, opts analytics.UpdateOptions) error {
	log.Infof("Updating analytics counts through %s", fillTo.Format(time.RFC3339))

	result, err := agg.UpdateAll(ctx, fillTo, opts)
	if result == nil {
		return err
	}

	for _, res := range result.Results {
		entry := log.WithFields(logrus.Fields{
			"property": res.Property,
			"duration": res.Duration.Round(time.Millisecond),
		})
		if res.Err != nil {
			entry.WithError(res.Err).Error("stat failed")
			continue
		}
		entry.Debug("stat updated")
	}

	if failed := result.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d stats failed: %w", len(failed), len(result.Results), err)
	}
	log.Infof("Finished updating %d stats (run %s)", len(result.Results), result.RunID)
	return nil
}
