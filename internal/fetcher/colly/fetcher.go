// Package collyfetcher implements monitor.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
	"github.com/JakeFAU/ema-monitor/internal/policy/backoff"
)

// DefaultUserAgent identifies as a desktop browser; the EMA site rejects
// obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
	Retry         backoff.Policy
}

// Fetcher implements monitor.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	sleep         backoff.Sleeper
	logger        *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		if rt != nil {
			f.transport = rt
		}
	}
}

// WithSleeper overrides how the fetcher waits between attempts.
func WithSleeper(s backoff.Sleeper) Option {
	return func(f *Fetcher) {
		if s != nil {
			f.sleep = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 || cfg.Retry.BaseDelay <= 0 {
		cfg.Retry = backoff.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay)
	}

	f := &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		sleep:     backoff.Sleep,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(f.transport)
	f.baseCollector = c
	return f
}

// Fetch GETs rawURL, retrying failures with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (monitor.Page, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			metrics.ObserveFetch(rawURL, "success", page.Duration)
			return page, nil
		}
		lastErr = err
		metrics.ObserveFetch(rawURL, "error", page.Duration)

		if ctx.Err() != nil || !f.cfg.Retry.ShouldRetry(err, attempt) {
			break
		}
		wait := f.cfg.Retry.Backoff(attempt)
		f.logger.Warn("fetch failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		metrics.ObserveFetchRetry()
		if err := f.sleep(ctx, wait); err != nil {
			return monitor.Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}
	return monitor.Page{}, fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

type visitResult struct {
	page monitor.Page
	err  error
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (monitor.Page, error) {
	start := time.Now()
	res := f.runCollector(ctx, rawURL, start)
	if res.err != nil {
		return monitor.Page{Duration: time.Since(start)}, res.err
	}
	return res.page, nil
}

func (f *Fetcher) buildCollector(
	rawURL string,
	start time.Time,
	result *monitor.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	// Clones share the visited store, so retries must be allowed to revisit.
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)

	result.URL = rawURL
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *monitor.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = monitor.Page{
			URL:        result.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

// runCollector visits rawURL on its own goroutine. The page and error are
// owned by that goroutine and reach the caller only through done.
func (f *Fetcher) runCollector(ctx context.Context, rawURL string, start time.Time) visitResult {
	done := make(chan visitResult, 1)
	go func() {
		var (
			page     monitor.Page
			fetchErr error
		)
		collector := f.buildCollector(rawURL, start, &page, &fetchErr)
		visitErr := collector.Visit(rawURL)
		switch {
		case fetchErr != nil:
			done <- visitResult{err: fmt.Errorf("colly response failed: %w", fetchErr)}
		case visitErr != nil:
			done <- visitResult{err: fmt.Errorf("colly visit failed: %w", visitErr)}
		default:
			done <- visitResult{page: page}
		}
	}()

	select {
	case <-ctx.Done():
		return visitResult{err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case res := <-done:
		return res
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
