package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/policy/backoff"
	"github.com/JakeFAU/ema-monitor/internal/policy/ratelimit"
)

// DefaultUserAgent identifies webhook requests.
const DefaultUserAgent = "EMA-Monitor-Bot/1.0"

// Sender delivers a message. It reports success and never returns an error;
// failures are logged.
type Sender interface {
	Send(ctx context.Context, msg Message) bool
}

// Webhook posts messages to a chat webhook URL.
type Webhook struct {
	url       string
	client    *http.Client
	userAgent string
	retry     backoff.Policy
	rateLimit ratelimit.Policy
	pacer     *ratelimit.Pacer
	sleep     backoff.Sleeper
	logger    *zap.Logger
}

// WebhookOption customizes a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

// WithRetry overrides the network-error retry policy.
func WithRetry(p backoff.Policy) WebhookOption {
	return func(w *Webhook) { w.retry = p }
}

// WithRateLimit overrides the 429 wait policy.
func WithRateLimit(p ratelimit.Policy) WebhookOption {
	return func(w *Webhook) { w.rateLimit = p }
}

// WithPacer spaces out consecutive sends.
func WithPacer(p *ratelimit.Pacer) WebhookOption {
	return func(w *Webhook) { w.pacer = p }
}

// WithSleeper overrides how the client waits between attempts.
func WithSleeper(s backoff.Sleeper) WebhookOption {
	return func(w *Webhook) {
		if s != nil {
			w.sleep = s
		}
	}
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(logger *zap.Logger) WebhookOption {
	return func(w *Webhook) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWebhook builds a client for url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:       url,
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
		retry:     backoff.New(backoff.DefaultMaxAttempts, backoff.DefaultBaseDelay),
		rateLimit: ratelimit.NewPolicy(ratelimit.DefaultWait),
		sleep:     backoff.Sleep,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Send posts msg. A 204 response is success; 429 waits the fixed rate-limit
// delay and retries; network errors retry with exponential backoff; any other
// status fails immediately. Attempts of both kinds share one budget.
func (w *Webhook) Send(ctx context.Context, msg Message) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error("encode webhook payload", zap.Error(err))
		return false
	}
	if err := w.pacer.Wait(ctx); err != nil {
		w.logger.Error("webhook pacing interrupted", zap.Error(err))
		return false
	}

	maxAttempts := w.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = backoff.DefaultMaxAttempts
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, body, err := w.post(ctx, payload)
		if err != nil {
			metrics.ObserveWebhookAttempt("network_error")
			w.logger.Warn("webhook request failed", zap.Int("attempt", attempt), zap.Error(err))
			if !w.retry.ShouldRetry(err, attempt) || attempt == maxAttempts {
				return false
			}
			if err := w.sleep(ctx, w.retry.Backoff(attempt)); err != nil {
				return false
			}
			continue
		}

		if status == http.StatusNoContent {
			metrics.ObserveWebhookAttempt("delivered")
			return true
		}
		if wait, limited := w.rateLimit.WaitFor(status); limited {
			metrics.ObserveWebhookAttempt("rate_limited")
			metrics.ObserveRateLimitDelay(wait)
			w.logger.Warn("webhook rate limited", zap.Int("attempt", attempt), zap.Duration("wait", wait))
			if attempt == maxAttempts {
				return false
			}
			if err := w.sleep(ctx, wait); err != nil {
				return false
			}
			continue
		}

		metrics.ObserveWebhookAttempt("rejected")
		w.logger.Error("webhook rejected message",
			zap.Int("status", status),
			zap.String("body", body),
		)
		return false
	}
	return false
}

func (w *Webhook) post(ctx context.Context, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return resp.StatusCode, string(body), nil
}
