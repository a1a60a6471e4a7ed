package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FillStatus is the state column of analytics_fillstate.
type FillStatus int

const (
	Done    FillStatus = 1
	Started FillStatus = 2
)

func (s FillStatus) String() string {
	switch s {
	case Done:
		return "DONE"
	case Started:
		return "STARTED"
	default:
		return fmt.Sprintf("FillStatus(%d)", int(s))
	}
}

// FillState records how far a stat has been filled. When State is Started
// the bucket ending at EndTime may hold partial rows.
type FillState struct {
	Property     string
	EndTime      time.Time
	State        FillStatus
	LastModified time.Time
}

// FillState returns the stat's fill state, or nil if it was never filled.
func (a *Aggregator) FillState(ctx context.Context, property string) (*FillState, error) {
	return readFillState(ctx, a.db, a.dialect.Rebind, property)
}

func readFillState(ctx context.Context, q querier, rebind func(string) string, property string) (*FillState, error) {
	fs := FillState{Property: property}
	err := q.QueryRowContext(ctx,
		rebind("SELECT end_time, state, last_modified FROM analytics_fillstate WHERE property = ?"),
		property,
	).Scan(&fs.EndTime, &fs.State, &fs.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fill state for %s: %w", property, err)
	}
	fs.EndTime = fs.EndTime.UTC()
	fs.LastModified = fs.LastModified.UTC()
	return &fs, nil
}

// setFillState creates or moves the fill state row in a single statement.
func (a *Aggregator) setFillState(ctx context.Context, property string, endTime time.Time, state FillStatus) error {
	_, err := a.db.ExecContext(ctx, a.dialect.Rebind(`
INSERT INTO analytics_fillstate (property, end_time, state, last_modified)
VALUES (?, ?, ?, ?)
ON CONFLICT (property) DO UPDATE SET
  end_time = excluded.end_time,
  state = excluded.state,
  last_modified = excluded.last_modified`),
		property, endTime.UTC(), int(state), a.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set fill state %s %s %s: %w", property, endTime.UTC().Format(time.RFC3339), state, err)
	}
	return nil
}

// LastSuccessfulFill returns the end of the last bucket known to be
// complete. ok is false when the stat was never filled.
func (a *Aggregator) LastSuccessfulFill(ctx context.Context, property string) (t time.Time, ok bool, err error) {
	fs, err := a.FillState(ctx, property)
	if err != nil || fs == nil {
		return time.Time{}, false, err
	}
	if fs.State == Done {
		return fs.EndTime, true, nil
	}
	return fs.EndTime.Add(-time.Hour), true, nil
}

// FillStates returns the fill state of every registered stat, skipping
// stats that were never filled.
func (a *Aggregator) FillStates(ctx context.Context) ([]FillState, error) {
	states := make([]FillState, 0, len(a.registry.Properties()))
	for _, property := range a.registry.Properties() {
		fs, err := a.FillState(ctx, property)
		if err != nil {
			return nil, err
		}
		if fs != nil {
			states = append(states, *fs)
		}
	}
	return states, nil
}
