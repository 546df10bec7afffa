package notify

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/metrics"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// EventTopic is the logical topic name passed to the event publisher.
const EventTopic = "monitor-events"

// Notifier composes and sends events, optionally mirroring them to a
// Publisher for downstream consumers.
type Notifier struct {
	composer  Composer
	sender    Sender
	publisher monitor.Publisher
	variant   string
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithPublisher mirrors every composed event to p.
func WithPublisher(p monitor.Publisher, variant string) NotifierOption {
	return func(n *Notifier) {
		n.publisher = p
		n.variant = variant
	}
}

// NewNotifier pairs a composer with a sender.
func NewNotifier(composer Composer, sender Sender, logger *zap.Logger, opts ...NotifierOption) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		composer: composer,
		sender:   sender,
		tracer:   otel.Tracer("github.com/JakeFAU/ema-monitor/internal/notify"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends ev and reports whether it was delivered.
func (n *Notifier) Notify(ctx context.Context, ev monitor.Event) bool {
	ctx, span := n.tracer.Start(ctx, "notify."+string(ev.Kind),
		trace.WithAttributes(attribute.String("run_id", ev.RunID)))
	defer span.End()

	msg, err := n.composer.Compose(ev)
	if err != nil {
		n.logger.Error("compose notification", zap.String("kind", string(ev.Kind)), zap.Error(err))
		metrics.ObserveNotification(string(ev.Kind), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose failed")
		return false
	}
	ok := n.sender.Send(ctx, msg)
	metrics.ObserveNotification(string(ev.Kind), ok)
	span.SetAttributes(attribute.Bool("delivered", ok))
	if ok {
		n.logger.Info("notification sent", zap.String("kind", string(ev.Kind)))
	} else {
		n.logger.Warn("notification not delivered", zap.String("kind", string(ev.Kind)))
		span.SetStatus(codes.Error, "not delivered")
	}
	n.publish(ctx, ev, ok)
	return ok
}

func (n *Notifier) publish(ctx context.Context, ev monitor.Event, delivered bool) {
	if n.publisher == nil {
		return
	}
	id, err := n.publisher.Publish(ctx, EventTopic, NewEnvelope(n.variant, ev, delivered))
	if err != nil {
		n.logger.Warn("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}
	n.logger.Debug("event published", zap.String("kind", string(ev.Kind)), zap.String("message_id", id))
}

// Envelope is the JSON document published for each notification event.
type Envelope struct {
	Variant        string                `json:"variant,omitempty"`
	Kind           monitor.EventKind     `json:"kind"`
	RunID          string                `json:"run_id,omitempty"`
	Status         monitor.Status        `json:"status,omitempty"`
	ExecutionCount int                   `json:"execution_count"`
	Delivered      bool                  `json:"delivered"`
	Error          string                `json:"error,omitempty"`
	OccurredAt     string                `json:"occurred_at"`
	Items          []monitor.ContentItem `json:"items,omitempty"`
}

// NewEnvelope flattens ev for publishing. Raw page text is dropped.
func NewEnvelope(variant string, ev monitor.Event, delivered bool) Envelope {
	env := Envelope{
		Variant:        variant,
		Kind:           ev.Kind,
		RunID:          ev.RunID,
		Status:         ev.Status,
		ExecutionCount: ev.ExecutionCount,
		Delivered:      delivered,
		OccurredAt:     ev.OccurredAt.UTC().Format(time.RFC3339),
	}
	if ev.Err != nil {
		env.Error = ev.Err.Error()
	}
	for _, item := range ev.Items {
		item.RawText = ""
		env.Items = append(env.Items, item)
	}
	return env
}
