package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Status
		wantErr bool
	}{
		{raw: "found", want: StatusFound},
		{raw: "not_found\n", want: StatusNotFound},
		{raw: "FOUND", want: StatusNotFound, wantErr: true},
		{raw: "", want: StatusNotFound, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := ParseStatus(tt.raw)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownStatus)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestContentItemLink(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://a/x", ContentItem{URL: "https://a/x", Source: "https://a"}.Link())
	assert.Equal(t, "https://a", ContentItem{Source: "https://a"}.Link())
}

func TestSystemClockUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := SystemClock{}.Now()
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(before))
}

func TestDefaultRunState(t *testing.T) {
	t.Parallel()

	st := DefaultRunState()
	assert.Equal(t, StatusNotFound, st.LastStatus)
	assert.Zero(t, st.ExecutionCount)
	assert.False(t, st.HasReportDate())
}
