package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostgresStoreWithPool(mock, "", "trial", nil)
	require.NoError(t, err)
	return store, mock
}

func TestPostgresStoreLoad(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := mock.NewRows([]string{"last_status", "execution_count", "last_report_date", "last_item_id"}).
		AddRow("found", int64(8), "2025-07-25", "link_abc")
	mock.ExpectQuery("SELECT last_status, execution_count").
		WithArgs("trial").
		WillReturnRows(rows)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, monitor.RunState{
		LastStatus:     monitor.StatusFound,
		ExecutionCount: 8,
		LastReportDate: time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC),
		LastItemID:     "link_abc",
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadMissingRow(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT last_status").
		WithArgs("trial").
		WillReturnRows(mock.NewRows([]string{"last_status", "execution_count", "last_report_date", "last_item_id"}))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, monitor.DefaultRunState(), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadCorruptStatus(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := mock.NewRows([]string{"last_status", "execution_count", "last_report_date", "last_item_id"}).
		AddRow("bogus", int64(3), "", "")
	mock.ExpectQuery("SELECT last_status").WithArgs("trial").WillReturnRows(rows)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusNotFound, got.LastStatus)
	assert.Equal(t, 3, got.ExecutionCount)
	assert.False(t, got.HasReportDate())
}

func TestPostgresStoreLoadError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT last_status").WithArgs("trial").WillReturnError(errors.New("connection reset"))

	_, err := store.Load(context.Background())
	require.ErrorContains(t, err, "connection reset")
}

func TestPostgresStoreSave(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO monitor_state").
		WithArgs("trial", "not_found", int64(4), "2025-07-26", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Save(context.Background(), monitor.RunState{
		LastStatus:     monitor.StatusNotFound,
		ExecutionCount: 4,
		LastReportDate: time.Date(2025, 7, 26, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreEnsureSchema(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS monitor_state").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStoreWithPoolValidation(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStoreWithPool(nil, "", "trial", nil)
	assert.Error(t, err)
	_, err = NewPostgresStoreWithPool(mock, "bad-name;", "trial", nil)
	assert.Error(t, err)
	_, err = NewPostgresStoreWithPool(mock, "", "", nil)
	assert.Error(t, err)
}
