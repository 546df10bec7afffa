package monitor

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Page is a fetched document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher retrieves a URL, retrying transient failures internally.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests for item identifiers.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock, in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher fans events out to a message bus topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
