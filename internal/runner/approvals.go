package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/classify"
	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// VariantApprovals names the approval news monitor.
const VariantApprovals = "approvals"

// DefaultMaxItems caps the items considered per run.
const DefaultMaxItems = 10

// ApprovalConfig configures the approval news monitor.
type ApprovalConfig struct {
	Sources  []string
	MaxItems int
}

// Approvals announces each new approval-related news item.
type Approvals struct {
	cfg        ApprovalConfig
	classifier classify.Classifier
	deps       Deps
}

// NewApprovals builds an approvals runner. A nil classifier uses the default phrases.
func NewApprovals(cfg ApprovalConfig, classifier classify.Classifier, deps Deps) (*Approvals, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("at least one source url is required")
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if classifier == nil {
		classifier = classify.NewApproval(nil)
	}
	return &Approvals{cfg: cfg, classifier: classifier, deps: deps.withDefaults()}, nil
}

// Run performs one pass. New approval-related items each get a discovery
// notification; otherwise a periodic or baseline report may be sent. The
// newest item id only advances when every discovery was delivered.
func (a *Approvals) Run(ctx context.Context) (res Result, err error) {
	ctx, r := newRun(ctx, a.deps, VariantApprovals)
	st := a.deps.Tracker.Begin(ctx)
	defer func() { res = r.result }()
	defer r.finish(ctx, &err)

	items := r.scan(ctx, a.cfg.Sources, a.classifier)
	if err := ctx.Err(); err != nil {
		return r.result, fmt.Errorf("approvals run aborted: %w", err)
	}

	shown := relatedFirst(items, a.cfg.MaxItems)
	status := monitor.StatusNotFound
	related := 0
	for _, item := range shown {
		if item.Match {
			related++
		}
	}
	if related > 0 {
		status = monitor.StatusFound
	}
	metrics.ObserveItems(VariantApprovals, "relevant", related)

	d := a.deps.Tracker.Record(status)
	r.result.Status = status
	r.result.Decision = d
	r.result.Items = shown

	var fresh []monitor.ContentItem
	if st.LastItemID != "" {
		isNew := newSince(items, st.LastItemID)
		for _, item := range shown {
			if item.Match && isNew[item.ID] {
				fresh = append(fresh, item)
			}
		}
	}
	r.logger.Info("approval news scanned",
		zap.Int("items", len(items)),
		zap.Int("related", related),
		zap.Int("new", len(fresh)),
		zap.Bool("baseline", st.LastItemID == ""),
	)

	delivered := true
	switch {
	case len(fresh) > 0:
		for _, item := range fresh {
			ev := r.event(monitor.EventDiscovery)
			ev.Items = []monitor.ContentItem{item}
			ev.Status = status
			if !r.notify(ctx, ev) {
				delivered = false
			}
		}
	case d.ReportDue():
		ev := r.event(monitor.EventPeriodicReport)
		ev.Items = shown
		ev.Status = status
		if r.notify(ctx, ev) {
			a.deps.Tracker.MarkReported()
		}
	}

	if delivered && len(items) > 0 {
		a.deps.Tracker.SetLastItemID(items[0].ID)
	}
	return r.result, nil
}

// relatedFirst orders matching items before the rest, keeping page order
// within each group, and caps the result at limit.
func relatedFirst(items []monitor.ContentItem, limit int) []monitor.ContentItem {
	out := make([]monitor.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Match {
			out = append(out, item)
		}
	}
	for _, item := range items {
		if !item.Match {
			out = append(out, item)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// newSince returns the ids that precede lastID in page order. When lastID is
// no longer on the page every item counts as new.
func newSince(items []monitor.ContentItem, lastID string) map[string]bool {
	fresh := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ID == lastID {
			return fresh
		}
		fresh[item.ID] = true
	}
	return fresh
}
