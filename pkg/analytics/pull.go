package analytics

import (
	"context"
	"fmt"
	"time"
)

// doPullFromSource runs the stat's INSERT ... SELECT for [start, end).
// A single statement is atomic, so a failure leaves no partial rows.
func (a *Aggregator) doPullFromSource(ctx context.Context, stat *CountStat, start, end time.Time) (int64, error) {
	q, err := stat.pullQuery(a.dialect)
	if err != nil {
		return 0, err
	}

	began := time.Now()
	res, err := a.db.ExecContext(ctx, q.sql, q.args(start, end)...)
	if err != nil {
		return 0, fmt.Errorf("run pull: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("run pull: rows affected: %w", err)
	}

	a.log(ctx).Infof("%s run pull (%dms/%dr)", stat.Property, time.Since(began).Milliseconds(), rows)
	a.metrics.AddRows(stat.Property, "pull", rows)
	return rows, nil
}

// doCustomPull runs a Go-implemented pull inside one transaction.
func (a *Aggregator) doCustomPull(ctx context.Context, stat *CountStat, start, end time.Time) (int64, error) {
	began := time.Now()
	var rows int64
	err := a.inTx(ctx, func(tx Tx) error {
		n, err := stat.Collector.custom(ctx, tx, stat, start, end)
		rows = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("run custom pull: %w", err)
	}

	a.log(ctx).Infof("%s run pull (%dms/%dr)", stat.Property, time.Since(began).Milliseconds(), rows)
	a.metrics.AddRows(stat.Property, "pull", rows)
	return rows, nil
}
