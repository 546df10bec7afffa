package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// Result is the outcome of classifying one piece of text.
type Result struct {
	Match      bool
	Target     []string
	Event      []string
	Keywords   []string
	Confidence monitor.Confidence
}

// Classifier labels text.
type Classifier interface {
	Classify(text string) Result
}

// Apply classifies item.RawText and returns a copy carrying the result.
func Apply(c Classifier, item monitor.ContentItem) monitor.ContentItem {
	text := item.RawText
	if strings.TrimSpace(text) == "" {
		text = item.Title
	}
	res := c.Classify(text)
	item.Match = res.Match
	item.Confidence = res.Confidence
	item.MatchedKeywords = res.Keywords
	item.TargetKeywords = res.Target
	item.EventKeywords = res.Event
	return item
}

// Trial matches the target compound and a qualifying trial event.
type Trial struct {
	target Set
	event  Set
}

// TrialConfig lists the keyword sets used by the trial classifier. Nil slices
// fall back to the package defaults.
type TrialConfig struct {
	TargetVariants []string
	PhaseKeywords  []string
	StartKeywords  []string
}

// NewTrial builds a trial classifier. Phase and start indicators together form
// the sub-event set.
func NewTrial(cfg TrialConfig) *Trial {
	target := cfg.TargetVariants
	if target == nil {
		target = DefaultTargetVariants
	}
	phase := cfg.PhaseKeywords
	if phase == nil {
		phase = DefaultPhaseKeywords
	}
	start := cfg.StartKeywords
	if start == nil {
		start = DefaultStartKeywords
	}
	event := make([]string, 0, len(phase)+len(start))
	event = append(event, phase...)
	event = append(event, start...)
	return &Trial{target: NewSet(target), event: NewSet(event)}
}

// Classify reports high confidence when both sets match, medium when exactly
// one matches and low otherwise.
func (t *Trial) Classify(text string) Result {
	res := Result{
		Target: t.target.Matches(text),
		Event:  t.event.Matches(text),
	}
	hasTarget, hasEvent := len(res.Target) > 0, len(res.Event) > 0
	res.Match = hasTarget || hasEvent
	res.Keywords = union(res.Target, res.Event)
	switch {
	case hasTarget && hasEvent:
		res.Confidence = monitor.ConfidenceHigh
	case hasTarget || hasEvent:
		res.Confidence = monitor.ConfidenceMedium
	default:
		res.Confidence = monitor.ConfidenceLow
	}
	return res
}

// IsFinding reports whether a classified item counts as a trial finding: the
// target compound must be mentioned.
func IsFinding(item monitor.ContentItem) bool {
	return item.Match && len(item.TargetKeywords) > 0
}

// Approval matches news about the approval process. It is binary: matching
// items are labeled high, others low.
type Approval struct {
	phrases Set
}

// NewApproval builds an approval classifier; nil phrases use the defaults.
func NewApproval(phrases []string) *Approval {
	if phrases == nil {
		phrases = DefaultApprovalPhrases
	}
	return &Approval{phrases: NewSet(phrases)}
}

// Classify checks text against the approval phrase list.
func (a *Approval) Classify(text string) Result {
	matched := a.phrases.Matches(text)
	if len(matched) == 0 {
		return Result{Confidence: monitor.ConfidenceLow}
	}
	return Result{
		Match:      true,
		Event:      matched,
		Keywords:   matched,
		Confidence: monitor.ConfidenceHigh,
	}
}

// TopicKeywords extracts display keywords for notifications, title-cased.
func TopicKeywords(text string, keywords []string) []string {
	if keywords == nil {
		keywords = DefaultTopicKeywords
	}
	matched := NewSet(keywords).Matches(text)
	out := make([]string, 0, len(matched))
	for _, kw := range matched {
		out = append(out, titleCase(kw))
	}
	return out
}

func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
