// Package extract turns a listing page into content items using an ordered
// list of fallback strategies.
package extract

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/ema-monitor/internal/hash/sha256"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
)

// DefaultMinYield is the item count after which later strategies are skipped.
const DefaultMinYield = 5

// Digester produces short content digests for item identifiers.
type Digester interface {
	Short(n int, parts ...string) string
}

// Extractor runs strategies against a document and dedups their output.
type Extractor struct {
	strategies    []Strategy
	supplementary []Strategy
	minYield   int
	digester   Digester
	logger     *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the default strategy list.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.strategies = strategies
	}
}

// WithSupplementary adds strategies that always run after the ordered list,
// whether or not it reached the min yield.
func WithSupplementary(strategies ...Strategy) Option {
	return func(e *Extractor) {
		e.supplementary = append(e.supplementary, strategies...)
	}
}

// WithMinYield sets the early-stop threshold.
func WithMinYield(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minYield = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDigester overrides the identifier digest.
func WithDigester(d Digester) Option {
	return func(e *Extractor) {
		if d != nil {
			e.digester = d
		}
	}
}

// New builds an Extractor with the default strategies.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		strategies: DefaultStrategies(),
		minYield:   DefaultMinYield,
		digester:   sha256.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the deduplicated items found in doc. Relative links are
// resolved against sourceURL.
func (e *Extractor) Extract(doc *goquery.Document, sourceURL string) []monitor.ContentItem {
	if doc == nil {
		return nil
	}
	base, err := url.Parse(sourceURL)
	if err != nil {
		e.logger.Warn("invalid source url", zap.String("source", sourceURL), zap.Error(err))
		base = nil
	}

	seen := make(map[string]struct{})
	var items []monitor.ContentItem
	for _, strategy := range e.strategies {
		items = e.collect(strategy, doc, base, sourceURL, seen, items)
		if len(items) >= e.minYield {
			break
		}
	}
	for _, strategy := range e.supplementary {
		items = e.collect(strategy, doc, base, sourceURL, seen, items)
	}
	return items
}

func (e *Extractor) collect(
	strategy Strategy,
	doc *goquery.Document,
	base *url.URL,
	sourceURL string,
	seen map[string]struct{},
	items []monitor.ContentItem,
) []monitor.ContentItem {
	candidates := e.run(strategy, doc)
	added := 0
	for _, c := range candidates {
		item, ok := e.build(strategy.Name(), c, base, sourceURL)
		if !ok {
			continue
		}
		key := item.ID
		if item.URL != "" {
			key = item.URL
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, item)
		added++
	}
	e.logger.Debug("strategy finished",
		zap.String("strategy", strategy.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Int("added", added),
	)
	return items
}

// run isolates a strategy so a panic inside it only loses its own output.
func (e *Extractor) run(strategy Strategy, doc *goquery.Document) (out []Candidate) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
			out = nil
		}
	}()
	return strategy.Candidates(doc)
}

func (e *Extractor) build(tag string, c Candidate, base *url.URL, source string) (monitor.ContentItem, bool) {
	item := monitor.ContentItem{
		Title:       c.Title,
		Source:      source,
		Description: c.Description,
		Date:        c.Date,
		RawText:     c.Text,
		Strategy:    tag,
		Confidence:  monitor.ConfidenceLow,
	}
	if item.RawText == "" {
		item.RawText = c.Title
	}
	if c.Href != "" {
		abs, err := resolve(base, c.Href)
		if err != nil {
			e.logger.Debug("skipping element", zap.String("strategy", tag), zap.Error(err))
			return monitor.ContentItem{}, false
		}
		normalized, err := NormalizeURL(abs)
		if err != nil {
			e.logger.Debug("skipping element", zap.String("strategy", tag), zap.Error(err))
			return monitor.ContentItem{}, false
		}
		item.URL = normalized
	}
	item.ID = tag + "_" + e.digester.Short(16, item.Title, item.URL)
	return item, true
}
