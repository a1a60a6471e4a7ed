package analytics

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidStat marks a count stat or registry that cannot be constructed.
	ErrInvalidStat = errors.New("invalid count stat")
	// ErrUnknownProperty is returned when a property is not registered.
	ErrUnknownProperty = errors.New("unknown count stat property")
	// ErrNotHourAligned is returned when a bucket boundary is not on an hour.
	ErrNotHourAligned = errors.New("time is not on an hour boundary")
	// ErrFillTimeInFuture is returned when asked to fill the still-open hour.
	ErrFillTimeInFuture = errors.New("fill time is after the current hour")
	// ErrFillTimeBeforeLastFilled is returned when the target precedes the fill state.
	ErrFillTimeBeforeLastFilled = errors.New("fill time precedes last filled bucket")
	// ErrUnknownFillState is returned for a fill state that is neither DONE nor STARTED.
	ErrUnknownFillState = errors.New("unknown fill state")
	// ErrScopeMismatch is returned when a logging key does not fit the stat's table.
	ErrScopeMismatch = errors.New("scope does not match stat output table")
	// ErrNotLoggingStat is returned when incrementing a stat that is pulled.
	ErrNotLoggingStat = errors.New("stat is not a logging stat")
	// ErrNegativeIncrement is returned for increments below zero.
	ErrNegativeIncrement = errors.New("logging increments must not be negative")
)

// BucketError describes a failure while filling one bucket of one stat.
type BucketError struct {
	Property string
	EndTime  time.Time
	Phase    string
	Duration time.Duration
	Err      error
}

func (e *BucketError) Error() string {
	return fmt.Sprintf("%s %s at %s failed after %dms: %v",
		e.Property, e.Phase, e.EndTime.UTC().Format(time.RFC3339), e.Duration.Milliseconds(), e.Err)
}

func (e *BucketError) Unwrap() error {
	return e.Err
}

func invalidStat(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidStat, fmt.Sprintf(format, args...))
}
