package state

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// Decision is the outcome of comparing the current observation with the
// persisted state.
type Decision struct {
	Previous       monitor.Status
	Current        monitor.Status
	StatusChanged  bool
	PeriodicDue    bool
	Baseline       bool
	ExecutionCount int
}

// Discovery reports a not_found to found transition.
func (d Decision) Discovery() bool {
	return d.StatusChanged && d.Current == monitor.StatusFound
}

// Lost reports a found to not_found transition.
func (d Decision) Lost() bool {
	return d.StatusChanged && d.Current == monitor.StatusNotFound
}

// ReportDue reports whether a periodic or baseline report should be sent.
func (d Decision) ReportDue() bool {
	return d.PeriodicDue || d.Baseline
}

// Tracker drives the load, compare and save lifecycle for one run.
type Tracker struct {
	store    Store
	periodic Periodic
	now      func() time.Time
	logger   *zap.Logger

	state    monitor.RunState
	previous monitor.Status
	begun    bool
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source.
func WithClock(c monitor.Clock) TrackerOption {
	return func(t *Tracker) {
		if c != nil {
			t.now = c.Now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker builds a tracker. A nil periodic policy uses the default interval.
func NewTracker(store Store, periodic Periodic, opts ...TrackerOption) *Tracker {
	if periodic == nil {
		periodic = NewIntervalPolicy(DefaultInterval)
	}
	t := &Tracker{
		store:    store,
		periodic: periodic,
		now:      time.Now,
		logger:   zap.NewNop(),
		state:    monitor.DefaultRunState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin loads the persisted state and counts the current execution.
// Load failures are logged and replaced by defaults.
func (t *Tracker) Begin(ctx context.Context) monitor.RunState {
	st, err := t.store.Load(ctx)
	if err != nil {
		t.logger.Warn("failed to load state, using defaults", zap.Error(err))
		st = monitor.DefaultRunState()
	}
	if st.LastStatus == "" {
		st.LastStatus = monitor.StatusNotFound
	}
	t.previous = st.LastStatus
	st.ExecutionCount++
	t.state = st
	t.begun = true
	return t.state
}

// State returns the in-memory state.
func (t *Tracker) State() monitor.RunState {
	return t.state
}

// Record compares current with the previous status and evaluates the
// periodic policy.
func (t *Tracker) Record(current monitor.Status) Decision {
	t.state.LastStatus = current
	return Decision{
		Previous:       t.previous,
		Current:        current,
		StatusChanged:  current != t.previous,
		PeriodicDue:    t.periodic.Due(t.state, t.now()),
		Baseline:       t.state.ExecutionCount == 1,
		ExecutionCount: t.state.ExecutionCount,
	}
}

// KeepPrevious restores the status loaded by Begin so the next run sees the
// same transition again.
func (t *Tracker) KeepPrevious() {
	t.state.LastStatus = t.previous
}

// MarkReported stamps today as the last report date.
func (t *Tracker) MarkReported() {
	t.state.LastReportDate = t.periodic.Today(t.now())
}

// SetLastItemID records the newest item seen by the approval monitor.
func (t *Tracker) SetLastItemID(id string) {
	if id != "" {
		t.state.LastItemID = id
	}
}

// Finish persists the state. It is meant to be deferred so the counter
// survives failed runs.
func (t *Tracker) Finish(ctx context.Context) error {
	if !t.begun {
		return nil
	}
	if err := t.store.Save(ctx, t.state); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}
