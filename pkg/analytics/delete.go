package analytics

import (
	"context"
	"fmt"
	"time"
)

// tablesToClear lists the tables a recovery delete touches. Logging stats
// keep their own rows, which the application wrote and which cannot be
// recomputed; only their rollups are removed.
func tablesToClear(stat *CountStat) []Scope {
	if stat.Kind != Logging {
		return AllScopes()
	}
	switch stat.Collector.Output {
	case UserScope, StreamScope:
		return []Scope{RealmScope, InstallationScope}
	case InstallationScope:
		return nil
	default:
		return []Scope{InstallationScope}
	}
}

// deleteCountsAt removes the stat's rows for the bucket ending at end in
// one transaction.
func (a *Aggregator) deleteCountsAt(ctx context.Context, stat *CountStat, end time.Time) error {
	return a.inTx(ctx, func(tx Tx) error {
		for _, scope := range tablesToClear(stat) {
			query := tx.Rebind("DELETE FROM " + scope.Table() + " WHERE property = ? AND end_time = ?")
			if _, err := tx.ExecContext(ctx, query, stat.Property, end.UTC()); err != nil {
				return fmt.Errorf("delete %s rows at %s: %w", scope, end.UTC().Format(time.RFC3339), err)
			}
		}
		return nil
	})
}

// DropAllAnalytics empties every count table and the fill state table.
// It is meant for offline use; the next update starts from the epoch.
func (a *Aggregator) DropAllAnalytics(ctx context.Context) error {
	err := a.inTx(ctx, func(tx Tx) error {
		tables := append(scopeTables(), "analytics_fillstate")
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, a.dialect.TruncateStatement(table)); err != nil {
				return fmt.Errorf("truncate %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.log(ctx).Warn("dropped all analytics")
	return nil
}

// DropStat removes every row of one stat, including its fill state.
// The property need not be registered, so retired stats can be cleaned up.
func (a *Aggregator) DropStat(ctx context.Context, property string) error {
	err := a.inTx(ctx, func(tx Tx) error {
		tables := append(scopeTables(), "analytics_fillstate")
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+table+" WHERE property = ?"), property); err != nil {
				return fmt.Errorf("delete %s from %s: %w", property, table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.log(ctx).WithField("property", property).Warn("dropped stat")
	return nil
}

func scopeTables() []string {
	scopes := AllScopes()
	tables := make([]string, len(scopes))
	for i, s := range scopes {
		tables[i] = s.Table()
	}
	return tables
}
