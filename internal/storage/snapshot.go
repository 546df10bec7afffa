// Package storage persists raw page snapshots for later debugging of
// extraction failures.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/JakeFAU/ema-monitor/internal/hash/sha256"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// Snapshotter writes fetched pages to a blob store under
// <variant>/<yyyy-mm-dd>/<digest>.html.
type Snapshotter struct {
	store   monitor.BlobStore
	variant string
	hasher  *sha256.Hasher
	now     func() time.Time
}

// NewSnapshotter wraps store. A nil store yields a nil Snapshotter, which is
// safe to call.
func NewSnapshotter(store monitor.BlobStore, variant string, clock monitor.Clock) *Snapshotter {
	if store == nil {
		return nil
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Snapshotter{
		store:   store,
		variant: variant,
		hasher:  sha256.New(),
		now:     now,
	}
}

// ObjectPath returns the blob path for page.
func (s *Snapshotter) ObjectPath(page monitor.Page) string {
	day := s.now().UTC().Format(time.DateOnly)
	digest := s.hasher.Short(16, page.URL, string(page.Body))
	return path.Join(s.variant, day, digest+".html")
}

// Save uploads page and returns its URI. A nil Snapshotter is a no-op.
func (s *Snapshotter) Save(ctx context.Context, page monitor.Page) (string, error) {
	if s == nil {
		return "", nil
	}
	contentType := page.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}
	uri, err := s.store.PutObject(ctx, s.ObjectPath(page), contentType, bytes.NewReader(page.Body))
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return uri, nil
}
