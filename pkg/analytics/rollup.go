package analytics

import (
	"context"
	"fmt"
	"time"
)

// The rollups read the property and end time from the rows they sum, so
// they bind the filter values only.

const realmRollupFromUserQuery = `
INSERT INTO analytics_realmcount (realm_id, property, subgroup, end_time, value)
SELECT realm_id, property, subgroup, end_time, SUM(value)
FROM analytics_usercount
WHERE property = ? AND end_time = ?
GROUP BY realm_id, property, subgroup, end_time
HAVING SUM(value) > 0`

const realmRollupFromStreamQuery = `
INSERT INTO analytics_realmcount (realm_id, property, subgroup, end_time, value)
SELECT realm_id, property, subgroup, end_time, SUM(value)
FROM analytics_streamcount
WHERE property = ? AND end_time = ?
GROUP BY realm_id, property, subgroup, end_time
HAVING SUM(value) > 0`

const installationRollupQuery = `
INSERT INTO analytics_installationcount (property, subgroup, end_time, value)
SELECT property, subgroup, end_time, SUM(value)
FROM analytics_realmcount
WHERE property = ? AND end_time = ?
GROUP BY property, subgroup, end_time
HAVING SUM(value) > 0`

// aggregateToSummaryTables sums the bucket into RealmCount (for user and
// stream stats) and then into InstallationCount. Each pass is one statement.
func (a *Aggregator) aggregateToSummaryTables(ctx context.Context, stat *CountStat, end time.Time) error {
	var realmQuery string
	switch stat.Collector.Output {
	case UserScope:
		realmQuery = realmRollupFromUserQuery
	case StreamScope:
		realmQuery = realmRollupFromStreamQuery
	}
	if realmQuery != "" {
		if err := a.rollup(ctx, stat, end, "RealmCount aggregation", realmQuery); err != nil {
			return err
		}
	}
	return a.rollup(ctx, stat, end, "InstallationCount aggregation", installationRollupQuery)
}

func (a *Aggregator) rollup(ctx context.Context, stat *CountStat, end time.Time, phase, query string) error {
	began := time.Now()
	res, err := a.db.ExecContext(ctx, a.dialect.Rebind(query), stat.Property, end.UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", phase, err)
	}
	a.log(ctx).Infof("%s %s (%dms/%dr)", stat.Property, phase, time.Since(began).Milliseconds(), rows)
	a.metrics.AddRows(stat.Property, "rollup", rows)
	return nil
}
