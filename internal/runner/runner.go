// Package runner executes one monitoring run: fetch, extract, classify,
// decide and notify, with state persisted on every exit path.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/classify"
	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
	"github.com/JakeFAU/ema-monitor/internal/state"
	"github.com/JakeFAU/ema-monitor/internal/storage"
)

// Extractor turns a parsed page into content items.
type Extractor interface {
	Extract(doc *goquery.Document, sourceURL string) []monitor.ContentItem
}

// Notifier composes and delivers one event.
type Notifier interface {
	Notify(ctx context.Context, ev monitor.Event) bool
}

// Deps are the collaborators shared by both monitor variants.
type Deps struct {
	Fetcher   monitor.Fetcher
	Extractor Extractor
	Tracker   *state.Tracker
	Notifier  Notifier
	Snapshots *storage.Snapshotter
	Clock     monitor.Clock
	IDs       monitor.IDGenerator
	Logger    *zap.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Status   monitor.Status
	Decision state.Decision
	Items    []monitor.ContentItem
	Sent     []monitor.EventKind
}

var tracer = otel.Tracer("github.com/JakeFAU/ema-monitor/internal/runner")

// finishTimeout bounds the error notification and state save that run after
// the caller's context may already be canceled.
const finishTimeout = 15 * time.Second

func (d Deps) validate() error {
	switch {
	case d.Fetcher == nil:
		return fmt.Errorf("fetcher is required")
	case d.Extractor == nil:
		return fmt.Errorf("extractor is required")
	case d.Tracker == nil:
		return fmt.Errorf("state tracker is required")
	case d.Notifier == nil:
		return fmt.Errorf("notifier is required")
	}
	return nil
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = monitor.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// run holds the bookkeeping common to one invocation of either variant.
type run struct {
	deps    Deps
	variant string
	id      string
	started time.Time
	logger  *zap.Logger
	span    trace.Span
	result  Result
}

func newRun(ctx context.Context, deps Deps, variant string) (context.Context, *run) {
	id := ""
	if deps.IDs != nil {
		generated, err := deps.IDs.NewID()
		if err != nil {
			deps.Logger.Warn("failed to generate run id", zap.Error(err))
		} else {
			id = generated
		}
	}
	logger := deps.Logger.With(zap.String("variant", variant), zap.String("run_id", id))
	ctx, span := tracer.Start(ctx, "monitor."+variant, trace.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("run_id", id),
	))
	return ctx, &run{
		deps:    deps,
		variant: variant,
		id:      id,
		started: deps.Clock.Now(),
		logger:  logger,
		span:    span,
		result:  Result{RunID: id},
	}
}

func (r *run) event(kind monitor.EventKind) monitor.Event {
	return monitor.Event{
		Kind:           kind,
		RunID:          r.id,
		ExecutionCount: r.deps.Tracker.State().ExecutionCount,
		OccurredAt:     r.deps.Clock.Now(),
	}
}

func (r *run) notify(ctx context.Context, ev monitor.Event) bool {
	ok := r.deps.Notifier.Notify(ctx, ev)
	if ok {
		r.result.Sent = append(r.result.Sent, ev.Kind)
	}
	return ok
}

// finish persists state, records metrics and, when the run failed, sends a
// best-effort error notification. It must be deferred after recover has set
// *errp.
func (r *run) finish(ctx context.Context, errp *error) {
	if rec := recover(); rec != nil {
		*errp = fmt.Errorf("%s run panicked: %v", r.variant, rec)
	}
	defer r.span.End()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if *errp != nil {
		r.logger.Error("run failed", zap.Error(*errp))
		r.span.RecordError(*errp)
		r.span.SetStatus(codes.Error, "run failed")
		ev := r.event(monitor.EventError)
		ev.Err = *errp
		r.notify(ctx, ev)
	}
	if err := r.deps.Tracker.Finish(ctx); err != nil {
		r.logger.Error("failed to persist state", zap.Error(err))
	}

	outcome := "success"
	if *errp != nil {
		outcome = "error"
	}
	metrics.ObserveRun(r.variant, outcome, r.deps.Clock.Now().Sub(r.started))
	metrics.SetExecutionCount(r.variant, r.deps.Tracker.State().ExecutionCount)
	r.span.SetAttributes(
		attribute.Int("execution_count", r.deps.Tracker.State().ExecutionCount),
		attribute.Int("notifications", len(r.result.Sent)),
	)
	r.logger.Info("run finished",
		zap.String("outcome", outcome),
		zap.Int("execution_count", r.deps.Tracker.State().ExecutionCount),
		zap.Int("items", len(r.result.Items)),
		zap.Int("notifications", len(r.result.Sent)),
	)
}

// scan fetches and extracts every source, classifying each item once. A
// source that cannot be fetched or parsed contributes nothing.
func (r *run) scan(ctx context.Context, sources []string, c classify.Classifier) []monitor.ContentItem {
	seen := make(map[string]struct{})
	var items []monitor.ContentItem
	for _, source := range sources {
		logger := r.logger.With(zap.String("source", source))
		added, err := r.scanSource(ctx, source, c, seen, &items, logger)
		if err != nil {
			logger.Warn("source unavailable", zap.Error(err))
			continue
		}
		logger.Info("source scanned", zap.Int("items", added))
	}
	metrics.ObserveItems(r.variant, "extracted", len(items))
	return items
}

func (r *run) scanSource(
	ctx context.Context,
	source string,
	c classify.Classifier,
	seen map[string]struct{},
	items *[]monitor.ContentItem,
	logger *zap.Logger,
) (int, error) {
	ctx, span := tracer.Start(ctx, "scan", trace.WithAttributes(attribute.String("source", source)))
	defer span.End()

	page, err := r.deps.Fetcher.Fetch(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return 0, err
	}
	span.SetAttributes(attribute.Int("http.status_code", page.StatusCode))
	if uri, err := r.deps.Snapshots.Save(ctx, page); err != nil {
		logger.Warn("failed to save snapshot", zap.Error(err))
	} else if uri != "" {
		logger.Debug("snapshot saved", zap.String("uri", uri))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("parse page: %w", err)
	}
	added := 0
	for _, item := range r.deps.Extractor.Extract(doc, source) {
		key := item.URL
		if key == "" {
			key = item.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		*items = append(*items, classify.Apply(c, item))
		added++
	}
	span.SetAttributes(attribute.Int("items", added))
	return added, nil
}
