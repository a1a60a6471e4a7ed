package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CheckStatus follows the monitoring plugin convention of exit codes.
type CheckStatus int

const (
	CheckOK       CheckStatus = 0
	CheckWarning  CheckStatus = 1
	CheckCritical CheckStatus = 2
)

func (s CheckStatus) String() string {
	switch s {
	case CheckOK:
		return "ok"
	case CheckWarning:
		return "warning"
	default:
		return "critical"
	}
}

// Freshness thresholds. Every stat advances its fill state hourly, day
// stats included, so one pair applies to all.
const (
	warnThreshold     = 90 * time.Minute
	criticalThreshold = 150 * time.Minute
)

// StatFreshness is the fill lag of one stat.
type StatFreshness struct {
	Property   string        `json:"property" yaml:"property"`
	LastFilled time.Time     `json:"last_filled" yaml:"last_filled"`
	Lag        time.Duration `json:"lag" yaml:"lag"`
	Status     CheckStatus   `json:"status" yaml:"status"`
}

// FillReport is the result of CheckFillState.
type FillReport struct {
	Status  CheckStatus     `json:"status"`
	Message string          `json:"message"`
	Stats   []StatFreshness `json:"stats"`
}

// CheckFillState reports stats whose last successful fill is too old.
// Stats that were never filled are measured from the installation epoch.
func (a *Aggregator) CheckFillState(ctx context.Context) (*FillReport, error) {
	now := a.now().UTC()
	report := &FillReport{Status: CheckOK}
	var warning, critical []string

	for _, stat := range a.registry.Stats() {
		last, ok, err := a.LastSuccessfulFill(ctx, stat.Property)
		if err != nil {
			return nil, err
		}
		if !ok {
			if last, err = a.InstallationEpoch(ctx, now); err != nil {
				return nil, err
			}
		}

		f := StatFreshness{Property: stat.Property, LastFilled: last, Lag: now.Sub(last), Status: CheckOK}
		switch {
		case f.Lag > criticalThreshold:
			f.Status = CheckCritical
			critical = append(critical, stat.Property)
		case f.Lag > warnThreshold:
			f.Status = CheckWarning
			warning = append(warning, stat.Property)
		}
		a.metrics.SetFillLag(stat.Property, f.Lag)
		report.Stats = append(report.Stats, f)
	}

	sort.Strings(warning)
	sort.Strings(critical)
	switch {
	case len(critical) > 0:
		report.Status = CheckCritical
		report.Message = fmt.Sprintf("Missed filling %s", strings.Join(append(critical, warning...), ", "))
	case len(warning) > 0:
		report.Status = CheckWarning
		report.Message = fmt.Sprintf("Missed filling %s", strings.Join(warning, ", "))
	default:
		report.Message = "all stats filled within thresholds"
	}
	return report, nil
}
