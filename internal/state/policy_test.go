package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

func TestIntervalPolicyDue(t *testing.T) {
	t.Parallel()

	p := NewIntervalPolicy(4)
	var due []int
	for count := 0; count <= 12; count++ {
		if p.Due(monitor.RunState{ExecutionCount: count}, time.Time{}) {
			due = append(due, count)
		}
	}
	assert.Equal(t, []int{4, 8, 12}, due)
	assert.Equal(t, DefaultInterval, NewIntervalPolicy(0).Interval)
}

func TestDailyWindowPolicyDue(t *testing.T) {
	t.Parallel()

	p, err := NewDailyWindowPolicy(21, "Asia/Tokyo")
	require.NoError(t, err)

	inWindow := time.Date(2025, 7, 25, 12, 5, 0, 0, time.UTC) // 21:05 JST
	outside := time.Date(2025, 7, 25, 11, 59, 0, 0, time.UTC) // 20:59 JST

	tests := []struct {
		name string
		st   monitor.RunState
		now  time.Time
		want bool
	}{
		{"never reported", monitor.RunState{}, inWindow, true},
		{"outside window", monitor.RunState{}, outside, false},
		{"already reported today", monitor.RunState{LastReportDate: time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)}, inWindow, false},
		{"reported yesterday", monitor.RunState{LastReportDate: time.Date(2025, 7, 24, 0, 0, 0, 0, time.UTC)}, inWindow, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, p.Due(tt.st, tt.now))
		})
	}
}

func TestDailyWindowPolicyTodayCrossesUTCDate(t *testing.T) {
	t.Parallel()

	p, err := NewDailyWindowPolicy(21, "Asia/Tokyo")
	require.NoError(t, err)
	// 16:00 UTC on the 25th is already the 26th in Tokyo.
	got := p.Today(time.Date(2025, 7, 25, 16, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 7, 26, 0, 0, 0, 0, time.UTC), got)
}

func TestNewDailyWindowPolicyValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDailyWindowPolicy(24, "Asia/Tokyo")
	assert.Error(t, err)
	_, err = NewDailyWindowPolicy(21, "Not/AZone")
	assert.Error(t, err)

	p, err := NewDailyWindowPolicy(9, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultReportTimezone, p.Location.String())
}
