package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/ema-monitor/internal/classify"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// Limits applied to message content.
const (
	MaxKeywords      = 5
	DescriptionLimit = 300
)

// EMALogoURL is shown in footers of item notifications.
const EMALogoURL = "https://www.ema.europa.eu/sites/default/files/ema_logo.png"

// ErrUnsupportedEvent is returned for event kinds a composer does not handle.
var ErrUnsupportedEvent = errors.New("unsupported event kind")

// Composer turns a run event into a webhook message.
type Composer interface {
	Compose(ev monitor.Event) (Message, error)
}

// SelectBest returns the first high-confidence item, else the first item.
func SelectBest(items []monitor.ContentItem) (monitor.ContentItem, bool) {
	if len(items) == 0 {
		return monitor.ContentItem{}, false
	}
	for _, item := range items {
		if item.Confidence == monitor.ConfidenceHigh {
			return item, true
		}
	}
	return items[0], true
}

// TrialComposer formats trial monitor events.
type TrialComposer struct {
	// Target is the compound name shown in messages.
	Target string
	// Location is used for human-readable times in fields.
	Location *time.Location
}

// Compose implements Composer.
func (c TrialComposer) Compose(ev monitor.Event) (Message, error) {
	switch ev.Kind {
	case monitor.EventDiscovery:
		return c.discovery(ev)
	case monitor.EventPeriodicReport:
		return c.statusReport(ev), nil
	case monitor.EventStatusChangeToFound, monitor.EventStatusChangeToNotFound:
		return c.statusChange(ev), nil
	case monitor.EventError:
		return errorMessage(c.target()+" monitor error", c.target()+" Monitor - Error Alert", ev), nil
	case monitor.EventConnectionTest:
		return connectionTest(c.target()+" monitor", c.target()+" Monitor - Connection Test", ev), nil
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Kind)
	}
}

func (c TrialComposer) target() string {
	if c.Target == "" {
		return "CBP501"
	}
	return c.Target
}

func (c TrialComposer) discovery(ev monitor.Event) (Message, error) {
	best, ok := SelectBest(ev.Items)
	if !ok {
		return Message{}, fmt.Errorf("discovery event without items")
	}
	confidence := string(best.Confidence)
	if confidence == "" {
		confidence = string(monitor.ConfidenceMedium)
	}
	fields := []Field{
		{Name: "🎯 Drug", Value: c.target(), Inline: true},
		{Name: "📊 Phase", Value: "Phase III", Inline: true},
		{Name: "🔍 Confidence", Value: titleCase(confidence), Inline: true},
		{Name: "📅 Detected at", Value: localTime(ev.OccurredAt, c.Location), Inline: true},
		{Name: "📍 Source", Value: best.Source, Inline: true},
		{Name: "📝 Details", Value: fmt.Sprintf("%d related item(s) found", len(ev.Items)), Inline: true},
	}
	if kw := capKeywords(best.MatchedKeywords); len(kw) > 0 {
		fields = append(fields, Field{Name: "🔑 Keywords", Value: strings.Join(kw, ", ")})
	}

	text := best.RawText
	if text == "" {
		text = best.Title
	}
	embed := Embed{
		Title:       fmt.Sprintf("🚨 %s Phase III trial information found!", c.target()),
		Description: fmt.Sprintf("**%s**\n\n%s", best.Title, truncate(text, DescriptionLimit)),
		URL:         best.Link(),
		Color:       ColorRed,
		Timestamp:   timestamp(ev.OccurredAt),
		Footer:      Footer{Text: c.target() + " Phase III Trial Monitor", IconURL: EMALogoURL},
		Fields:      fields,
	}
	return Message{
		Content: fmt.Sprintf("%s 🚨 **%s Phase III trial information found!** 🚨", MentionEveryone, c.target()),
		Embeds:  []Embed{embed},
	}, nil
}

func (c TrialComposer) statusReport(ev monitor.Event) Message {
	var embed Embed
	if ev.Status == monitor.StatusFound {
		embed = Embed{
			Title:       fmt.Sprintf("📊 %s monitor report (still found)", c.target()),
			Description: fmt.Sprintf("🎉 %s Phase III trial information is still present.", c.target()),
			Color:       ColorGreen,
			Fields: []Field{
				{Name: "🎯 Target", Value: c.target() + " Phase III start", Inline: true},
				{Name: "📊 Status", Value: "**Found** ✅", Inline: true},
				{Name: "📝 Items", Value: fmt.Sprintf("%d", len(ev.Items)), Inline: true},
			},
		}
	} else {
		embed = Embed{
			Title: fmt.Sprintf("📊 %s monitor report", c.target()),
			Description: fmt.Sprintf("🔍 Still monitoring for %s Phase III trial information. Nothing found so far.",
				c.target()),
			Color: ColorGray,
			Fields: []Field{
				{Name: "🎯 Target", Value: c.target() + " Phase III start", Inline: true},
				{Name: "📊 Status", Value: "Monitoring (not found)", Inline: true},
			},
		}
	}
	embed.Fields = append(embed.Fields,
		Field{Name: "⏰ Reported at", Value: localTime(ev.OccurredAt, c.Location), Inline: true},
		Field{Name: "🔢 Execution", Value: fmt.Sprintf("#%d", ev.ExecutionCount), Inline: true},
	)
	embed.Timestamp = timestamp(ev.OccurredAt)
	embed.Footer = Footer{Text: c.target() + " Monitoring System"}
	return Message{Embeds: []Embed{embed}}
}

func (c TrialComposer) statusChange(ev monitor.Event) Message {
	embed := Embed{
		Title:       fmt.Sprintf("⚠️ %s status change", c.target()),
		Description: fmt.Sprintf("Previously found %s information can no longer be confirmed.", c.target()),
		Color:       ColorOrange,
	}
	transition := "found → not found"
	if ev.Kind == monitor.EventStatusChangeToFound {
		embed.Title = fmt.Sprintf("🎉 %s status change", c.target())
		embed.Description = fmt.Sprintf("%s Phase III trial information was newly found!", c.target())
		embed.Color = ColorGreen
		transition = "not found → found"
	}
	embed.Timestamp = timestamp(ev.OccurredAt)
	embed.Footer = Footer{Text: c.target() + " Status Change Alert"}
	embed.Fields = []Field{
		{Name: "🔄 Change", Value: transition, Inline: true},
		{Name: "🔢 Execution", Value: fmt.Sprintf("#%d", ev.ExecutionCount), Inline: true},
		{Name: "⏰ Detected at", Value: localTime(ev.OccurredAt, c.Location), Inline: true},
	}
	return Message{Embeds: []Embed{embed}}
}

// ApprovalComposer formats approval news monitor events.
type ApprovalComposer struct {
	// TopicKeywords are matched against items for the keyword field; nil uses
	// the classifier defaults.
	TopicKeywords []string
	Location      *time.Location
}

// Compose implements Composer.
func (c ApprovalComposer) Compose(ev monitor.Event) (Message, error) {
	switch ev.Kind {
	case monitor.EventDiscovery:
		if len(ev.Items) == 0 {
			return Message{}, fmt.Errorf("discovery event without items")
		}
		return c.item(ev.Items[0], ev.OccurredAt), nil
	case monitor.EventPeriodicReport:
		return c.statusReport(ev), nil
	case monitor.EventError:
		return errorMessage("EMA monitor error", "EMA Monitor - Error Alert", ev), nil
	case monitor.EventConnectionTest:
		return connectionTest("EMA monitor", "EMA Monitor - Connection Test", ev), nil
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Kind)
	}
}

func (c ApprovalComposer) item(item monitor.ContentItem, at time.Time) Message {
	color := ColorBlue
	if item.Match {
		color = ColorGreen
	}
	description := item.Description
	if description == "" {
		description = "See the link below for details."
	}
	embed := Embed{
		Title:       item.Title,
		Description: description,
		URL:         item.Link(),
		Color:       color,
		Timestamp:   timestamp(at),
		Footer:      Footer{Text: "EMA (European Medicines Agency)", IconURL: EMALogoURL},
	}
	if item.Date != "" {
		embed.Fields = append(embed.Fields, Field{Name: "📅 Published", Value: item.Date, Inline: true})
	}
	if item.Match {
		embed.Fields = append(embed.Fields, Field{Name: "🎯 Type", Value: "New medicine approval", Inline: true})
	}
	topics := classify.TopicKeywords(item.Title+" "+item.Description, c.TopicKeywords)
	if kw := capKeywords(topics); len(kw) > 0 {
		embed.Fields = append(embed.Fields, Field{Name: "🔍 Keywords", Value: strings.Join(kw, ", ")})
	}

	msg := Message{Embeds: []Embed{embed}}
	if item.Match {
		msg.Content = MentionEveryone + " 🚨 **New medicine approval news** 🚨"
	}
	return msg
}

func (c ApprovalComposer) statusReport(ev monitor.Event) Message {
	related := 0
	for _, item := range ev.Items {
		if item.Match {
			related++
		}
	}
	embed := Embed{
		Title: "📊 EMA monitor status",
		Description: fmt.Sprintf("Checked %d news item(s), %d approval related.",
			len(ev.Items), related),
		Color:     ColorGray,
		Timestamp: timestamp(ev.OccurredAt),
		Footer:    Footer{Text: "EMA Monitor - Status Update"},
		Fields: []Field{
			{Name: "⏰ Reported at", Value: localTime(ev.OccurredAt, c.Location), Inline: true},
			{Name: "🔢 Execution", Value: fmt.Sprintf("#%d", ev.ExecutionCount), Inline: true},
		},
	}
	return Message{Embeds: []Embed{embed}}
}

func errorMessage(title, footer string, ev monitor.Event) Message {
	detail := "unknown error"
	if ev.Err != nil {
		detail = ev.Err.Error()
	}
	embed := Embed{
		Title:       "⚠️ " + title,
		Description: fmt.Sprintf("An error occurred:\n```%s```", detail),
		Color:       ColorRed,
		Timestamp:   timestamp(ev.OccurredAt),
		Footer:      Footer{Text: footer},
	}
	if ev.RunID != "" {
		embed.Fields = []Field{{Name: "Run", Value: ev.RunID, Inline: true}}
	}
	return Message{
		Content: MentionHere + " an error occurred",
		Embeds:  []Embed{embed},
	}
}

func connectionTest(name, footer string, ev monitor.Event) Message {
	return Message{
		Content: name + " is running ✅",
		Embeds: []Embed{{
			Title:       "🧪 " + name + " connection test",
			Description: "Webhook notifications are working.",
			Color:       ColorGreen,
			Timestamp:   timestamp(ev.OccurredAt),
			Footer:      Footer{Text: footer},
		}},
	}
}

func capKeywords(keywords []string) []string {
	if len(keywords) > MaxKeywords {
		return keywords[:MaxKeywords]
	}
	return keywords
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func localTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		t = time.Now()
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05 MST")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
