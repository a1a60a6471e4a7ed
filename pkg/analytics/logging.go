package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IncrementLoggingStat adds increment to the stat's row for key and
// subgroup in the bucket containing eventTime. Concurrent callers are safe:
// the insert and the addition happen in one upsert statement.
func (a *Aggregator) IncrementLoggingStat(ctx context.Context, key ScopeKey, stat *CountStat, subgroup string, eventTime time.Time, increment int64) error {
	if stat.Kind != Logging {
		return fmt.Errorf("%w: %s is a %s stat", ErrNotLoggingStat, stat.Property, stat.Kind)
	}
	if key == nil || key.Scope() != stat.Collector.Output {
		return fmt.Errorf("%w: %s writes %s", ErrScopeMismatch, stat.Property, stat.Collector.Output)
	}
	if increment < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeIncrement, increment)
	}
	if increment == 0 {
		return nil
	}

	end := stat.Frequency.ceil(eventTime.UTC())
	args := append(key.keyValues(), stat.Property, subgroup, end, increment)
	if _, err := a.db.ExecContext(ctx, a.dialect.Rebind(upsertIncrementQuery(stat.Collector.Output)), args...); err != nil {
		return fmt.Errorf("increment %s at %s: %w", stat.Property, end.Format(time.RFC3339), err)
	}
	a.metrics.AddLoggingIncrement(stat.Property, increment)
	return nil
}

func upsertIncrementQuery(scope Scope) string {
	columns := append(scope.KeyColumns(), "property", "subgroup", "end_time", "value")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	table := scope.Table()
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET value = %s.value + excluded.value",
		table, strings.Join(columns, ", "), placeholders, strings.Join(scope.uniqueColumns(), ", "), table,
	)
}
