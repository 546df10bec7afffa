package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/classify"
	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// VariantTrial names the trial monitor in logs, metrics and state.
const VariantTrial = "trial"

// TrialConfig lists the pages searched for the target trial.
type TrialConfig struct {
	Sources []string
}

// Trial watches for the target trial start announcement.
type Trial struct {
	cfg        TrialConfig
	classifier classify.Classifier
	deps       Deps
}

// NewTrial builds a trial runner. A nil classifier uses the default keyword sets.
func NewTrial(cfg TrialConfig, classifier classify.Classifier, deps Deps) (*Trial, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one source url is required")
	}
	if classifier == nil {
		classifier = classify.NewTrial(classify.TrialConfig{})
	}
	return &Trial{cfg: cfg, classifier: classifier, deps: deps.withDefaults()}, nil
}

// Run performs one monitoring pass. At most one notification kind is sent:
// discovery, then loss of a previous finding, then the periodic report.
func (t *Trial) Run(ctx context.Context) (res Result, err error) {
	ctx, r := newRun(ctx, t.deps, VariantTrial)
	t.deps.Tracker.Begin(ctx)
	defer func() { res = r.result }()
	defer r.finish(ctx, &err)

	items := r.scan(ctx, t.cfg.Sources, t.classifier)
	if err := ctx.Err(); err != nil {
		return r.result, fmt.Errorf("trial run aborted: %w", err)
	}

	var findings []monitor.ContentItem
	for _, item := range items {
		if classify.IsFinding(item) {
			findings = append(findings, item)
		}
	}
	metrics.ObserveItems(VariantTrial, "relevant", len(findings))

	status := monitor.StatusNotFound
	if len(findings) > 0 {
		status = monitor.StatusFound
	}
	d := t.deps.Tracker.Record(status)
	r.result.Status = status
	r.result.Decision = d
	r.result.Items = findings
	r.logger.Info("trial status",
		zap.String("status", string(status)),
		zap.String("previous", string(d.Previous)),
		zap.Int("findings", len(findings)),
	)

	switch {
	case d.Discovery():
		ev := r.event(monitor.EventDiscovery)
		ev.Items = findings
		ev.Status = status
		if !r.notify(ctx, ev) {
			r.logger.Warn("discovery not delivered, keeping previous status for retry",
				zap.String("previous", string(d.Previous)))
			t.deps.Tracker.KeepPrevious()
		}
	case d.Lost():
		ev := r.event(monitor.EventStatusChangeToNotFound)
		ev.Status = status
		r.notify(ctx, ev)
	case d.ReportDue():
		ev := r.event(monitor.EventPeriodicReport)
		ev.Items = findings
		ev.Status = status
		if r.notify(ctx, ev) {
			t.deps.Tracker.MarkReported()
		}
	}
	return r.result, nil
}
