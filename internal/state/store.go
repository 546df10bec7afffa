// Package state tracks the per-monitor run record across invocations.
package state

import (
	"context"
	"time"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// Store loads and saves the run record for one monitor namespace.
type Store interface {
	// Load returns the persisted state. Missing data yields defaults, not an error.
	Load(ctx context.Context) (monitor.RunState, error)
	// Save persists the full state.
	Save(ctx context.Context, s monitor.RunState) error
}

// dateLayout is the on-disk format for the last report date.
const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(dateLayout, raw)
}
