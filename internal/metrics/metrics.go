// Package metrics exposes Prometheus collectors for monitor runs.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	monitorRunsTotal             *prometheus.CounterVec
	monitorRunDurationSeconds    *prometheus.HistogramVec
	monitorExecutionCount        *prometheus.GaugeVec
	monitorFetchTotal            *prometheus.CounterVec
	monitorFetchDurationSeconds  *prometheus.HistogramVec
	monitorFetchRetriesTotal     prometheus.Counter
	monitorItemsTotal            *prometheus.CounterVec
	monitorNotificationsTotal    *prometheus.CounterVec
	monitorWebhookAttemptsTotal  *prometheus.CounterVec
	monitorRateLimitDelaySeconds prometheus.Histogram

	registry = prometheus.NewRegistry()
	once     sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(registry)

		monitorRunsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_runs_total",
				Help: "Total number of monitor runs, labeled by variant and outcome.",
			},
			[]string{"variant", "outcome"},
		)

		monitorRunDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monitor_run_duration_seconds",
				Help:    "Histogram of run durations, labeled by variant.",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"variant"},
		)

		monitorExecutionCount = factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "monitor_execution_count",
				Help: "Persisted execution counter, labeled by variant.",
			},
			[]string{"variant"},
		)

		monitorFetchTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_fetch_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		monitorFetchDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monitor_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		monitorFetchRetriesTotal = factory.NewCounter(
			prometheus.CounterOpts{
				Name: "monitor_fetch_retries_total",
				Help: "Total number of fetch retries.",
			},
		)

		monitorItemsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_items_total",
				Help: "Total number of extracted items, labeled by variant and kind.",
			},
			[]string{"variant", "kind"},
		)

		monitorNotificationsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_notifications_total",
				Help: "Total number of notifications, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		monitorWebhookAttemptsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_webhook_attempts_total",
				Help: "Total number of webhook POST attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		monitorRateLimitDelaySeconds = factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monitor_rate_limit_delay_seconds",
				Help:    "Histogram of webhook rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Registry returns the registry holding the monitor collectors.
func Registry() *prometheus.Registry {
	return registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveRun records a finished run.
func ObserveRun(variant, outcome string, duration time.Duration) {
	Init()
	monitorRunsTotal.WithLabelValues(variant, outcome).Inc()
	monitorRunDurationSeconds.WithLabelValues(variant).Observe(duration.Seconds())
}

// SetExecutionCount records the current execution counter.
func SetExecutionCount(variant string, count int) {
	Init()
	monitorExecutionCount.WithLabelValues(variant).Set(float64(count))
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(site, status string, duration time.Duration) {
	Init()
	sanitized := SanitizeSite(site)
	monitorFetchTotal.WithLabelValues(sanitized, status).Inc()
	monitorFetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveFetchRetry increments the fetch retry counter.
func ObserveFetchRetry() {
	Init()
	monitorFetchRetriesTotal.Inc()
}

// ObserveItems adds n items of the given kind ("extracted", "relevant").
func ObserveItems(variant, kind string, n int) {
	Init()
	if n <= 0 {
		return
	}
	monitorItemsTotal.WithLabelValues(variant, kind).Add(float64(n))
}

// ObserveNotification records a delivery result for a notification kind.
func ObserveNotification(kind string, delivered bool) {
	Init()
	result := "failed"
	if delivered {
		result = "delivered"
	}
	monitorNotificationsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveWebhookAttempt records the outcome of a single POST.
func ObserveWebhookAttempt(outcome string) {
	Init()
	monitorWebhookAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	monitorRateLimitDelaySeconds.Observe(duration.Seconds())
}

// Push sends the collected metrics to a Pushgateway under the given job name.
// An empty gatewayURL is a no-op.
func Push(ctx context.Context, gatewayURL, job string, grouping map[string]string) error {
	if gatewayURL == "" {
		return nil
	}
	Init()
	pusher := push.New(gatewayURL, job).Gatherer(registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
