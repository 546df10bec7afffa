package storage_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
	"github.com/JakeFAU/ema-monitor/internal/storage"
)

type mockBlobStore struct {
	mock.Mock
}

func (m *mockBlobStore) PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error) {
	body, _ := io.ReadAll(data)
	args := m.Called(ctx, path, contentType, string(body))
	return args.String(0), args.Error(1)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestSnapshotterSave(t *testing.T) {
	t.Parallel()

	store := &mockBlobStore{}
	clock := fixedClock{t: time.Date(2025, 7, 25, 23, 0, 0, 0, time.UTC)}
	s := storage.NewSnapshotter(store, "trial", clock)

	page := monitor.Page{
		URL:     "https://www.ema.europa.eu/en/news",
		Headers: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:    []byte("<html>news</html>"),
	}
	path := s.ObjectPath(page)
	assert.Regexp(t, `^trial/2025-07-25/[0-9a-f]{16}\.html$`, path)

	store.On("PutObject", mock.Anything, path, "text/html; charset=utf-8", "<html>news</html>").
		Return("file:///tmp/"+path, nil).Once()

	uri, err := s.Save(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "file:///tmp/"+path, uri)
	store.AssertExpectations(t)
}

func TestSnapshotterSaveError(t *testing.T) {
	t.Parallel()

	store := &mockBlobStore{}
	store.On("PutObject", mock.Anything, mock.Anything, "text/html", "x").
		Return("", errors.New("disk full")).Once()

	s := storage.NewSnapshotter(store, "approvals", nil)
	_, err := s.Save(context.Background(), monitor.Page{Body: []byte("x")})
	require.ErrorContains(t, err, "disk full")
}

func TestNilSnapshotterIsNoop(t *testing.T) {
	t.Parallel()

	s := storage.NewSnapshotter(nil, "trial", nil)
	assert.Nil(t, s)
	uri, err := s.Save(context.Background(), monitor.Page{Body: []byte("x")})
	require.NoError(t, err)
	assert.Empty(t, uri)
}
