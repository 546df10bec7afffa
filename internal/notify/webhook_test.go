package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ema-monitor/internal/policy/backoff"
	"github.com/JakeFAU/ema-monitor/internal/policy/ratelimit"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func sequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		status := statuses[len(statuses)-1]
		if n < len(statuses) {
			status = statuses[n]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

var testMessage = Message{Embeds: []Embed{{Title: "t", Color: ColorGreen}}}

func TestWebhookSendOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		statuses  []int
		want      bool
		wantCalls int32
		wantWaits []time.Duration
	}{
		{"immediate success", []int{http.StatusNoContent}, true, 1, nil},
		{"rate limited twice then success", []int{429, 429, 204}, true, 3, []time.Duration{5 * time.Second, 5 * time.Second}},
		{"rate limited every time", []int{429}, false, 3, []time.Duration{5 * time.Second, 5 * time.Second}},
		{"server error fails without retry", []int{http.StatusInternalServerError}, false, 1, nil},
		{"200 is not success", []int{http.StatusOK}, false, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, calls := sequenceServer(t, tt.statuses...)
			rec := &sleepRecorder{}
			w := NewWebhook(srv.URL, WithSleeper(rec.sleep))

			assert.Equal(t, tt.want, w.Send(context.Background(), testMessage))
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))
			assert.Equal(t, tt.wantWaits, rec.recorded())
		})
	}
}

func TestWebhookNetworkErrorUsesBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	w := NewWebhook(target, WithSleeper(rec.sleep))
	assert.False(t, w.Send(context.Background(), testMessage))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
}

func TestWebhookCustomRateLimitWait(t *testing.T) {
	t.Parallel()

	srv, _ := sequenceServer(t, 429, 204)
	rec := &sleepRecorder{}
	w := NewWebhook(srv.URL,
		WithSleeper(rec.sleep),
		WithRateLimit(ratelimit.NewPolicy(time.Second)),
		WithPacer(ratelimit.NewPacer(ratelimit.Config{})),
	)
	assert.True(t, w.Send(context.Background(), testMessage))
	assert.Equal(t, []time.Duration{time.Second}, rec.recorded())
}

func TestWebhookRateLimitedOnLastAttemptReturnsImmediately(t *testing.T) {
	t.Parallel()

	srv, calls := sequenceServer(t, 429)
	rec := &sleepRecorder{}
	w := NewWebhook(srv.URL,
		WithSleeper(rec.sleep),
		WithRetry(backoff.New(1, time.Second)),
	)
	assert.False(t, w.Send(context.Background(), testMessage))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, rec.recorded())
}

func TestWebhookPayloadShape(t *testing.T) {
	t.Parallel()

	bodies := make(chan []byte, 1)
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies <- data
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	msg := Message{
		Content: MentionEveryone + " alert",
		Embeds: []Embed{{
			Title:     "Found",
			URL:       "https://www.ema.europa.eu/en/news/x",
			Color:     ColorRed,
			Timestamp: "2025-07-25T12:00:00Z",
			Footer:    Footer{Text: "footer", IconURL: EMALogoURL},
			Fields:    []Field{{Name: "a", Value: "b", Inline: true}},
		}},
	}
	require.True(t, NewWebhook(srv.URL).Send(context.Background(), msg))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(<-bodies, &decoded))
	assert.Equal(t, MentionEveryone+" alert", decoded["content"])
	embeds := decoded["embeds"].([]any)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Found", embed["title"])
	assert.InDelta(t, float64(ColorRed), embed["color"], 0)
	assert.Equal(t, "2025-07-25T12:00:00Z", embed["timestamp"])
	assert.Equal(t, map[string]any{"text": "footer", "icon_url": EMALogoURL}, embed["footer"])
	assert.Equal(t, []any{map[string]any{"name": "a", "value": "b", "inline": true}}, embed["fields"])

	h := <-headers
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, DefaultUserAgent, h.Get("User-Agent"))
}

func TestWebhookOmitsEmptyContent(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Message{Embeds: []Embed{{Title: "x"}}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"content"`)
	assert.NotContains(t, string(data), `"url"`)
}
