// Package app initializes and holds the services one monitor run needs,
// acting as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/classify"
	"github.com/JakeFAU/ema-monitor/internal/config"
	"github.com/JakeFAU/ema-monitor/internal/extract"
	collyfetcher "github.com/JakeFAU/ema-monitor/internal/fetcher/colly"
	"github.com/JakeFAU/ema-monitor/internal/hash/sha256"
	"github.com/JakeFAU/ema-monitor/internal/id/uuid"
	"github.com/JakeFAU/ema-monitor/internal/logging"
	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
	"github.com/JakeFAU/ema-monitor/internal/notify"
	"github.com/JakeFAU/ema-monitor/internal/policy/backoff"
	"github.com/JakeFAU/ema-monitor/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/ema-monitor/internal/publisher/pubsub"
	"github.com/JakeFAU/ema-monitor/internal/runner"
	"github.com/JakeFAU/ema-monitor/internal/state"
	"github.com/JakeFAU/ema-monitor/internal/storage"
	"github.com/JakeFAU/ema-monitor/internal/storage/gcs"
	"github.com/JakeFAU/ema-monitor/internal/storage/local"
)

// Variant names double as state namespaces.
const (
	VariantTrial     = runner.VariantTrial
	VariantApprovals = runner.VariantApprovals
)

// ErrUnknownVariant is returned for a variant other than trial or approvals.
var ErrUnknownVariant = errors.New("unknown monitor variant")

// App holds the services shared by one variant's run.
type App struct {
	cfg      config.Config
	variant  string
	logger   *zap.Logger
	clock    monitor.Clock
	store    state.Store
	tracker  *state.Tracker
	location *time.Location
	notifier *notify.Notifier
	deps     runner.Deps
	closers  []func()
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	clock     monitor.Clock
	fetcher   monitor.Fetcher
	sender    notify.Sender
	publisher monitor.Publisher
}

// WithClock overrides the system clock.
func WithClock(c monitor.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f monitor.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPublisher replaces the Pub/Sub event publisher.
func WithPublisher(p monitor.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithSender replaces the webhook sender.
func WithSender(s notify.Sender) Option {
	return func(o *options) { o.sender = s }
}

// New builds every service for variant from cfg. It fails fast when a
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, variant string, logger *zap.Logger, opts ...Option) (*App, error) {
	if variant != VariantTrial && variant != VariantApprovals {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = monitor.SystemClock{}
	}
	logger = logging.OrNop(logger).With(zap.String("variant", variant))
	metrics.Init()

	a := &App{cfg: cfg, variant: variant, logger: logger, clock: o.clock}

	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone %q: %w", cfg.Report.Timezone, err)
	}
	a.location = loc

	if err := a.initState(ctx); err != nil {
		a.Close()
		return nil, err
	}
	snapshots, err := a.initSnapshots(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.HTTPTimeout(),
			Headers:       cfg.RequestHeaders(),
			Retry:         backoff.New(cfg.HTTP.MaxAttempts, cfg.FetchBackoff()),
		}, collyfetcher.WithLogger(logger.Named("fetcher")))
	}

	sender := o.sender
	if sender == nil {
		sender = notify.NewWebhook(cfg.Webhook.URL,
			notify.WithRetry(backoff.New(cfg.Webhook.MaxAttempts, cfg.WebhookBackoff())),
			notify.WithRateLimit(ratelimit.NewPolicy(cfg.RateLimitWait())),
			notify.WithPacer(ratelimit.NewPacer(ratelimit.Config{RequestsPerSecond: cfg.Webhook.RequestsPerSecond})),
			notify.WithWebhookLogger(logger.Named("webhook")),
		)
	}
	var notifyOpts []notify.NotifierOption
	publisher, err := a.initPublisher(ctx, o.publisher)
	if err != nil {
		a.Close()
		return nil, err
	}
	if publisher != nil {
		notifyOpts = append(notifyOpts, notify.WithPublisher(publisher, variant))
	}
	a.notifier = notify.NewNotifier(a.composer(), sender, logger.Named("notify"), notifyOpts...)

	a.deps = runner.Deps{
		Fetcher:   fetcher,
		Extractor: a.extractor(),
		Tracker:   a.tracker,
		Notifier:  a.notifier,
		Snapshots: snapshots,
		Clock:     o.clock,
		IDs:       uuid.New(),
		Logger:    logger.Named("runner"),
	}
	return a, nil
}

func (a *App) initState(ctx context.Context) error {
	switch a.cfg.State.Backend {
	case config.StatePostgres:
		pg, err := state.NewPostgresStore(ctx, state.PostgresConfig{
			DSN:       a.cfg.State.Postgres.DSN,
			Table:     a.cfg.State.Postgres.Table,
			Namespace: a.variant,
			MaxConns:  a.cfg.State.Postgres.MaxConns,
		}, a.logger.Named("state"))
		if err != nil {
			return fmt.Errorf("init postgres state: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		a.store = pg
	default:
		fs, err := state.NewFileStore(filepath.Join(a.cfg.State.Dir, a.variant), a.logger.Named("state"))
		if err != nil {
			return fmt.Errorf("init file state: %w", err)
		}
		a.store = fs
	}

	periodic, err := a.periodic()
	if err != nil {
		return err
	}
	a.tracker = state.NewTracker(a.store, periodic,
		state.WithClock(a.clock),
		state.WithLogger(a.logger.Named("tracker")),
	)
	return nil
}

func (a *App) periodic() (state.Periodic, error) {
	if a.cfg.Report.Policy == config.PolicyDaily {
		p, err := state.NewDailyWindowPolicy(a.cfg.Report.Hour, a.cfg.Report.Timezone)
		if err != nil {
			return nil, fmt.Errorf("init daily report policy: %w", err)
		}
		return p, nil
	}
	return state.NewIntervalPolicy(a.cfg.Report.Interval), nil
}

func (a *App) initSnapshots(ctx context.Context) (*storage.Snapshotter, error) {
	switch a.cfg.Snapshots.Backend {
	case config.SnapshotLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Snapshots.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local snapshots: %w", err)
		}
		return storage.NewSnapshotter(store, a.variant, a.clock), nil
	case config.SnapshotGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Snapshots.GCSBucket, Prefix: a.cfg.Snapshots.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshots: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		return storage.NewSnapshotter(store, a.variant, a.clock), nil
	default:
		return storage.NewSnapshotter(nil, a.variant, a.clock), nil
	}
}

func (a *App) initPublisher(ctx context.Context, override monitor.Publisher) (monitor.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if !a.cfg.Events.Enabled() {
		return nil, nil
	}
	p, err := pubsubpublisher.Open(ctx, a.cfg.Events.PubSubProject, a.cfg.Events.PubSubTopic)
	if err != nil {
		return nil, fmt.Errorf("init event publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := p.Close(); err != nil {
			a.logger.Warn("close event publisher", zap.Error(err))
		}
	})
	return p, nil
}

func (a *App) composer() notify.Composer {
	if a.variant == VariantApprovals {
		return notify.ApprovalComposer{Location: a.location}
	}
	return notify.TrialComposer{Target: a.cfg.Trial.Target, Location: a.location}
}

func (a *App) extractor() *extract.Extractor {
	opts := []extract.Option{
		extract.WithDigester(sha256.New()),
		extract.WithLogger(a.logger.Named("extract")),
	}
	if a.variant == VariantTrial && a.cfg.Trial.TextBlocks {
		opts = append(opts, extract.WithSupplementary(extract.TextBlocks{}))
	}
	return extract.New(opts...)
}

// Logger returns the variant-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Variant returns the monitor variant this App serves.
func (a *App) Variant() string {
	return a.variant
}

// Run performs one monitoring pass for the configured variant and pushes
// metrics afterwards.
func (a *App) Run(ctx context.Context) (runner.Result, error) {
	var (
		res runner.Result
		err error
	)
	switch a.variant {
	case VariantApprovals:
		var r *runner.Approvals
		r, err = runner.NewApprovals(runner.ApprovalConfig{
			Sources:  a.cfg.Approvals.Sources,
			MaxItems: a.cfg.Approvals.MaxItems,
		}, classify.NewApproval(a.cfg.Approvals.Phrases), a.deps)
		if err != nil {
			return runner.Result{}, fmt.Errorf("build approvals runner: %w", err)
		}
		res, err = r.Run(ctx)
	default:
		var r *runner.Trial
		r, err = runner.NewTrial(runner.TrialConfig{Sources: a.cfg.Trial.Sources}, classify.NewTrial(classify.TrialConfig{
			TargetVariants: a.cfg.Trial.TargetVariants,
			PhaseKeywords:  a.cfg.Trial.PhaseKeywords,
			StartKeywords:  a.cfg.Trial.StartKeywords,
		}), a.deps)
		if err != nil {
			return runner.Result{}, fmt.Errorf("build trial runner: %w", err)
		}
		res, err = r.Run(ctx)
	}
	a.pushMetrics(ctx)
	return res, err
}

// TestConnection sends a connection-test message through the webhook.
func (a *App) TestConnection(ctx context.Context) error {
	runID, _ := a.deps.IDs.NewID()
	ev := monitor.Event{
		Kind:       monitor.EventConnectionTest,
		RunID:      runID,
		OccurredAt: a.clock.Now(),
	}
	if !a.notifier.Notify(ctx, ev) {
		return fmt.Errorf("connection test message was not delivered")
	}
	a.logger.Info("connection test delivered", zap.String("run_id", runID))
	return nil
}

func (a *App) pushMetrics(ctx context.Context) {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job, map[string]string{"variant": a.variant})
	if err != nil {
		a.logger.Warn("push metrics failed", zap.Error(err))
	}
}

// Close releases pooled connections and clients in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
