package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "trial")
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	want := monitor.RunState{
		LastStatus:     monitor.StatusFound,
		ExecutionCount: 12,
		LastReportDate: time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC),
		LastItemID:     "link_0123456789abcdef",
	}
	require.NoError(t, store.Save(context.Background(), want))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(filepath.Join(dir, ReportDateFile))
	require.NoError(t, err)
	assert.Equal(t, "2025-07-25", string(raw))
}

func TestFileStoreMissingDirectoryYieldsDefaults(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, monitor.DefaultRunState(), got)
}

func TestFileStoreCorruptFieldsFallBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
		want  monitor.RunState
	}{
		{
			name:  "garbage counter",
			files: map[string]string{CounterFile: "abc", StatusFile: "found"},
			want:  monitor.RunState{LastStatus: monitor.StatusFound},
		},
		{
			name:  "negative counter",
			files: map[string]string{CounterFile: "-3"},
			want:  monitor.DefaultRunState(),
		},
		{
			name:  "unknown status",
			files: map[string]string{CounterFile: "5\n", StatusFile: "maybe"},
			want:  monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 5},
		},
		{
			name:  "bad date",
			files: map[string]string{CounterFile: "2", ReportDateFile: "25/07/2025"},
			want:  monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
			}
			store, err := NewFileStore(dir, nil)
			require.NoError(t, err)

			got, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileStoreSaveLeavesOnlyStateFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), monitor.RunState{
		LastStatus:     monitor.StatusNotFound,
		ExecutionCount: 1,
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{CounterFile, StatusFile}, names)
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	t.Parallel()
	_, err := NewFileStore("  ", nil)
	assert.Error(t, err)
}
