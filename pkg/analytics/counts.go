package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Count is one row of a count table. Key fields that the table lacks are zero.
type Count struct {
	UserID   int64
	StreamID int64
	RealmID  int64
	Property string
	Subgroup string
	EndTime  time.Time
	Value    int64
}

// CountFilter narrows a Counts query. Zero fields match everything.
type CountFilter struct {
	Property string
	Since    time.Time
	Until    time.Time
}

// Counts reads rows from one count table, ordered by end time, key and subgroup.
func (a *Aggregator) Counts(ctx context.Context, scope Scope, filter CountFilter) ([]Count, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: scope %d", ErrScopeMismatch, int(scope))
	}

	keys := scope.KeyColumns()
	columns := append(append([]string(nil), keys...), "property", "subgroup", "end_time", "value")

	var where []string
	var args []interface{}
	if filter.Property != "" {
		where = append(where, "property = ?")
		args = append(args, filter.Property)
	}
	if !filter.Since.IsZero() {
		where = append(where, "end_time >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		where = append(where, "end_time <= ?")
		args = append(args, filter.Until.UTC())
	}

	query := "SELECT " + strings.Join(columns, ", ") + " FROM " + scope.Table()
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + strings.Join(append([]string{"end_time"}, append(keys, "property", "subgroup")...), ", ")

	rows, err := a.db.QueryContext(ctx, a.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", scope, err)
	}
	defer rows.Close()

	var counts []Count
	for rows.Next() {
		var c Count
		dest := make([]interface{}, 0, len(columns))
		switch scope {
		case UserScope:
			dest = append(dest, &c.UserID, &c.RealmID)
		case StreamScope:
			dest = append(dest, &c.StreamID, &c.RealmID)
		case RealmScope:
			dest = append(dest, &c.RealmID)
		}
		dest = append(dest, &c.Property, &c.Subgroup, &c.EndTime, &c.Value)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", scope, err)
		}
		c.EndTime = c.EndTime.UTC()
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", scope, err)
	}
	return counts, nil
}
