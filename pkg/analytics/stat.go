package analytics

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/platinummonkey/countstat/pkg/storage"
)

// NoSubgroup is the subgroup value of rows that are not split by any attribute.
const NoSubgroup = ""

// Gauge is an interval long enough that every bucket starts at MinTime.
// Stats using it count a snapshot of state as of the end of the bucket.
const Gauge time.Duration = math.MaxInt64

// Frequency is how often a stat produces a bucket.
type Frequency int

const (
	Hour Frequency = iota + 1
	Day
)

func (f Frequency) String() string {
	switch f {
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
}

func (f Frequency) defaultInterval() time.Duration {
	if f == Day {
		return 24 * time.Hour
	}
	return time.Hour
}

// ceil returns the end of the bucket containing t.
func (f Frequency) ceil(t time.Time) time.Time {
	if f == Day {
		return CeilDay(t)
	}
	return CeilHour(t)
}

// Kind says where a stat's rows come from.
type Kind int

const (
	// Pull stats run a templated INSERT ... SELECT against the source tables.
	Pull Kind = iota + 1
	// CustomPull stats run Go code that writes rows inside a transaction.
	CustomPull
	// Logging stats are incremented inline by application code.
	Logging
)

func (k Kind) String() string {
	switch k {
	case Pull:
		return "pull"
	case CustomPull:
		return "custom_pull"
	case Logging:
		return "logging"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SubgroupType selects how a group-by column is rendered as subgroup text.
type SubgroupType int

const (
	TextSubgroup SubgroupType = iota
	BoolSubgroup
	IntSubgroup
)

// GroupBy names the source column a pull stat splits its counts by.
type GroupBy struct {
	Table  string
	Column string
	Type   SubgroupType
}

func (g *GroupBy) String() string {
	if g == nil {
		return ""
	}
	return g.Table + "." + g.Column
}

// CustomPullFunc computes one bucket of a custom pull stat and returns the
// number of rows written. It runs inside the transaction held by tx.
type CustomPullFunc func(ctx context.Context, tx Tx, stat *CountStat, start, end time.Time) (int64, error)

// DataCollector describes the output table of a stat and how rows reach it.
type DataCollector struct {
	Output  Scope
	Query   string
	GroupBy *GroupBy

	custom  CustomPullFunc
	queries map[storage.Dialect]*pullQuery
}

// CountStat is an immutable stat definition.
type CountStat struct {
	Property     string
	Collector    DataCollector
	Frequency    Frequency
	Interval     time.Duration
	Kind         Kind
	Dependencies []string
}

// StatOption customizes a CountStat at construction.
type StatOption func(*CountStat)

// WithInterval overrides the default look-back window of one frequency period.
func WithInterval(interval time.Duration) StatOption {
	return func(s *CountStat) {
		s.Interval = interval
	}
}

// WithDependencies marks the stat as computed from other stats' rows.
func WithDependencies(properties ...string) StatOption {
	return func(s *CountStat) {
		s.Dependencies = append([]string(nil), properties...)
	}
}

var (
	propertyPattern   = regexp.MustCompile(`^[a-z0-9_]+(:[a-z0-9_]*)*$`)
	identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

func newStat(property string, kind Kind, output Scope, frequency Frequency, opts []StatOption) (*CountStat, error) {
	if !propertyPattern.MatchString(property) {
		return nil, invalidStat("property %q contains characters outside [a-z0-9_:]", property)
	}
	if !output.Valid() {
		return nil, invalidStat("%s: unknown output scope %d", property, int(output))
	}
	if frequency != Hour && frequency != Day {
		return nil, invalidStat("%s: unknown frequency %d", property, int(frequency))
	}

	s := &CountStat{
		Property:  property,
		Collector: DataCollector{Output: output},
		Frequency: frequency,
		Interval:  frequency.defaultInterval(),
		Kind:      kind,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Interval <= 0 {
		return nil, invalidStat("%s: interval must be positive", property)
	}
	for _, dep := range s.Dependencies {
		if dep == property {
			return nil, invalidStat("%s: stat depends on itself", property)
		}
	}
	return s, nil
}

// NewPullStat defines a stat filled by a templated INSERT ... SELECT.
// The template is rendered for every supported dialect up front so that
// unknown substitutions fail here rather than during a fill.
func NewPullStat(property string, output Scope, query string, groupBy *GroupBy, frequency Frequency, opts ...StatOption) (*CountStat, error) {
	s, err := newStat(property, Pull, output, frequency, opts)
	if err != nil {
		return nil, err
	}
	if groupBy != nil {
		if !identifierPattern.MatchString(groupBy.Table) || !identifierPattern.MatchString(groupBy.Column) {
			return nil, invalidStat("%s: group by %q is not a plain identifier", property, groupBy.String())
		}
	}
	s.Collector.Query = query
	s.Collector.GroupBy = groupBy
	s.Collector.queries = make(map[storage.Dialect]*pullQuery, len(storage.Dialects()))
	for _, dialect := range storage.Dialects() {
		q, err := renderPullQuery(property, query, groupBy, dialect)
		if err != nil {
			return nil, err
		}
		s.Collector.queries[dialect] = q
	}
	return s, nil
}

// NewCustomPullStat defines a stat filled by Go code.
func NewCustomPullStat(property string, output Scope, pull CustomPullFunc, frequency Frequency, opts ...StatOption) (*CountStat, error) {
	if pull == nil {
		return nil, invalidStat("%s: custom pull function is nil", property)
	}
	s, err := newStat(property, CustomPull, output, frequency, opts)
	if err != nil {
		return nil, err
	}
	s.Collector.custom = pull
	return s, nil
}

// NewLoggingStat defines a stat that application code increments inline.
func NewLoggingStat(property string, output Scope, frequency Frequency, opts ...StatOption) (*CountStat, error) {
	return newStat(property, Logging, output, frequency, opts)
}

// IsGauge reports whether every bucket of the stat starts at MinTime.
func (s *CountStat) IsGauge() bool {
	return s.Interval == Gauge
}

// IsDependent reports whether the stat reads other stats' rows.
func (s *CountStat) IsDependent() bool {
	return len(s.Dependencies) > 0
}

// StartTime returns the inclusive lower bound of the bucket ending at end.
func (s *CountStat) StartTime(end time.Time) time.Time {
	if s.IsGauge() || end.Sub(MinTime) <= s.Interval {
		return MinTime
	}
	return end.Add(-s.Interval)
}

func (s *CountStat) pullQuery(dialect storage.Dialect) (*pullQuery, error) {
	q, ok := s.Collector.queries[dialect]
	if !ok {
		return nil, fmt.Errorf("%s: no query rendered for dialect %q", s.Property, dialect)
	}
	return q, nil
}
