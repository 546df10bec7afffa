package state

import (
	"fmt"
	"time"
	_ "time/tzdata" // Asia/Tokyo must resolve in minimal images.

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// Periodic decides when an unconditional status report is due.
type Periodic interface {
	// Due reports whether a periodic report should be sent for st at now.
	// st.ExecutionCount already includes the current run.
	Due(st monitor.RunState, now time.Time) bool
	// Today returns the calendar day recorded as the last report date.
	Today(now time.Time) time.Time
}

// DefaultInterval is the execution-count cadence of periodic reports.
const DefaultInterval = 4

// IntervalPolicy reports every Interval executions.
type IntervalPolicy struct {
	Interval int
}

// NewIntervalPolicy returns an interval policy; non-positive values use the default.
func NewIntervalPolicy(interval int) IntervalPolicy {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return IntervalPolicy{Interval: interval}
}

// Due implements Periodic.
func (p IntervalPolicy) Due(st monitor.RunState, _ time.Time) bool {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return st.ExecutionCount > 0 && st.ExecutionCount%interval == 0
}

// Today implements Periodic.
func (IntervalPolicy) Today(now time.Time) time.Time {
	return dateOf(now.UTC())
}

// Daily window defaults.
const (
	DefaultReportHour     = 21
	DefaultReportTimezone = "Asia/Tokyo"
)

// DailyWindowPolicy reports once per local day during a configured hour.
type DailyWindowPolicy struct {
	Hour     int
	Location *time.Location
}

// NewDailyWindowPolicy resolves tz and validates hour.
func NewDailyWindowPolicy(hour int, tz string) (DailyWindowPolicy, error) {
	if hour < 0 || hour > 23 {
		return DailyWindowPolicy{}, fmt.Errorf("report hour %d out of range", hour)
	}
	if tz == "" {
		tz = DefaultReportTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return DailyWindowPolicy{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return DailyWindowPolicy{Hour: hour, Location: loc}, nil
}

// Due implements Periodic.
func (p DailyWindowPolicy) Due(st monitor.RunState, now time.Time) bool {
	local := now.In(p.location())
	if local.Hour() != p.Hour {
		return false
	}
	if !st.HasReportDate() {
		return true
	}
	return !st.LastReportDate.Equal(dateOf(local))
}

// Today implements Periodic.
func (p DailyWindowPolicy) Today(now time.Time) time.Time {
	return dateOf(now.In(p.location()))
}

func (p DailyWindowPolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// dateOf truncates t to its calendar day, expressed at UTC midnight so it
// round-trips through the YYYY-MM-DD format.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
