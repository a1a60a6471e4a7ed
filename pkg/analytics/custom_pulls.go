package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Recipient types in the recipients table.
const (
	recipientPersonal = 1
	recipientStream   = 2
	recipientHuddle   = 3
)

const messagesByTypeQuery = `
SELECT users.id, users.realm_id, recipients.type, streams.invite_only, COUNT(*)
FROM users
JOIN messages ON messages.sender_id = users.id
JOIN recipients ON recipients.id = messages.recipient_id
LEFT JOIN streams ON recipients.type = 2 AND streams.id = recipients.type_id
WHERE users.date_joined < ?
  AND messages.sent_at >= ?
  AND messages.sent_at < ?
GROUP BY users.id, users.realm_id, recipients.type, streams.invite_only`

const activityIntervalsQuery = `
SELECT users.id, users.realm_id, activity_intervals.start_time, activity_intervals.end_time
FROM users
JOIN activity_intervals ON activity_intervals.user_id = users.id
WHERE activity_intervals.end_time >= ?
  AND activity_intervals.start_time < ?`

const insertUserCount = `
INSERT INTO analytics_usercount (user_id, realm_id, property, subgroup, end_time, value)
VALUES (?, ?, ?, ?, ?, ?)`

type userSubgroup struct {
	userID   int64
	realmID  int64
	subgroup string
}

// messageType classifies a message by where it was sent. The stream
// flag is only read for stream recipients; unknown recipient types are
// not counted.
func messageType(recipientType int, inviteOnly sql.NullBool) (string, bool) {
	switch recipientType {
	case recipientPersonal:
		return "private_message", true
	case recipientHuddle:
		return "huddle_message", true
	case recipientStream:
		if inviteOnly.Valid && inviteOnly.Bool {
			return "private_stream", true
		}
		return "public_stream", true
	default:
		return "", false
	}
}

// countMessagesByType writes per-user message counts split by
// private_message, huddle_message, private_stream and public_stream.
func countMessagesByType(ctx context.Context, tx Tx, stat *CountStat, start, end time.Time) (int64, error) {
	counts := make(map[userSubgroup]int64)

	rows, err := tx.QueryContext(ctx, tx.Rebind(messagesByTypeQuery), end.UTC(), start.UTC(), end.UTC())
	if err != nil {
		return 0, fmt.Errorf("query messages by type: %w", err)
	}
	for rows.Next() {
		var (
			key           userSubgroup
			recipientType int
			inviteOnly    sql.NullBool
			n             int64
		)
		if err := rows.Scan(&key.userID, &key.realmID, &recipientType, &inviteOnly, &n); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan messages by type: %w", err)
		}
		subgroup, ok := messageType(recipientType, inviteOnly)
		if !ok {
			continue
		}
		key.subgroup = subgroup
		counts[key] += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate messages by type: %w", err)
	}
	rows.Close()

	return insertUserCounts(ctx, tx, stat.Property, end, counts)
}

// sumMinutesActive writes, per user, the whole minutes their activity
// intervals overlap [start, end).
func sumMinutesActive(ctx context.Context, tx Tx, stat *CountStat, start, end time.Time) (int64, error) {
	seconds := make(map[userSubgroup]time.Duration)

	rows, err := tx.QueryContext(ctx, tx.Rebind(activityIntervalsQuery), start.UTC(), end.UTC())
	if err != nil {
		return 0, fmt.Errorf("query activity intervals: %w", err)
	}
	for rows.Next() {
		var (
			key                        userSubgroup
			intervalStart, intervalEnd time.Time
		)
		if err := rows.Scan(&key.userID, &key.realmID, &intervalStart, &intervalEnd); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan activity interval: %w", err)
		}
		overlap := minTime(intervalEnd, end).Sub(maxTime(intervalStart, start))
		if overlap > 0 {
			seconds[key] += overlap
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate activity intervals: %w", err)
	}
	rows.Close()

	minutes := make(map[userSubgroup]int64, len(seconds))
	for key, d := range seconds {
		minutes[key] = int64(d / time.Minute)
	}
	return insertUserCounts(ctx, tx, stat.Property, end, minutes)
}

// insertUserCounts writes the nonzero counts in a stable order.
func insertUserCounts(ctx context.Context, tx Tx, property string, end time.Time, counts map[userSubgroup]int64) (int64, error) {
	keys := make([]userSubgroup, 0, len(counts))
	for key, n := range counts {
		if n > 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].subgroup < keys[j].subgroup
	})

	query := tx.Rebind(insertUserCount)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, query, key.userID, key.realmID, property, key.subgroup, end.UTC(), counts[key]); err != nil {
			return 0, fmt.Errorf("insert %s for user %d: %w", property, key.userID, err)
		}
	}
	return int64(len(keys)), nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
