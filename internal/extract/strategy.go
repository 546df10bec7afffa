package extract

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// Strategy tags, used as identifier prefixes.
const (
	TagViewContent = "link"
	TagHeading     = "heading"
	TagGeneric     = "generic"
	TagTextBlock   = "text"
)

// DefaultNewsPath matches EMA news article paths.
var DefaultNewsPath = regexp.MustCompile(`/news/`)

// Candidate is a raw extraction result before URL resolution and dedup.
type Candidate struct {
	Title       string
	Href        string
	Description string
	Date        string
	Text        string
}

// Strategy produces candidates from a document. Strategies are independent
// and run in order by the Extractor.
type Strategy interface {
	Name() string
	Candidates(doc *goquery.Document) []Candidate
}

// ViewContent collects news links inside the listing container.
type ViewContent struct {
	ContainerSelector string
	NewsPath          *regexp.Regexp
	MinTitle          int
}

// Name implements Strategy.
func (ViewContent) Name() string { return TagViewContent }

// Candidates implements Strategy.
func (s ViewContent) Candidates(doc *goquery.Document) []Candidate {
	sel := s.ContainerSelector
	if sel == "" {
		sel = "div[class*='view-content']"
	}
	container := doc.Find(sel).First()
	if container.Length() == 0 {
		return nil
	}
	newsPath := orDefaultPath(s.NewsPath)
	var out []Candidate
	container.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !newsPath.MatchString(href) {
			return
		}
		title := cleanText(link)
		if runeLen(title) < orDefault(s.MinTitle, 10) {
			return
		}
		c := Candidate{Title: title, Href: href}
		if parent := link.Parent(); parent.Length() > 0 {
			context := cleanText(parent)
			if runeLen(context) > runeLen(title) {
				c.Description = truncate(context, 200)
			}
			c.Date = findDate(parent.Text())
		}
		c.Text = joinText(c.Title, c.Description)
		out = append(out, c)
	})
	return out
}

// Headings pairs h2-h4 elements with their nearest link.
type Headings struct {
	Limit    int
	MinTitle int
}

// Name implements Strategy.
func (Headings) Name() string { return TagHeading }

// Candidates implements Strategy.
func (s Headings) Candidates(doc *goquery.Document) []Candidate {
	limit := orDefault(s.Limit, 15)
	var out []Candidate
	doc.Find("h2, h3, h4").EachWithBreak(func(i int, heading *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		link := headingLink(heading)
		if link == nil {
			return true
		}
		href, _ := link.Attr("href")
		title := cleanText(heading)
		if runeLen(title) < orDefault(s.MinTitle, 10) {
			return true
		}
		c := Candidate{Title: title, Href: href}
		if next := heading.NextAllFiltered("p, div").First(); next.Length() > 0 {
			if desc := cleanText(next); runeLen(desc) > 20 {
				c.Description = truncate(desc, 200)
			}
		}
		c.Text = joinText(c.Title, c.Description)
		out = append(out, c)
		return true
	})
	return out
}

func headingLink(heading *goquery.Selection) *goquery.Selection {
	if a := heading.Find("a[href]").First(); a.Length() > 0 {
		return a
	}
	if a := heading.Closest("a[href]"); a.Length() > 0 {
		return a
	}
	for next := heading.Next(); next.Length() > 0; next = next.Next() {
		if next.Is("a[href]") {
			return next
		}
		if a := next.Find("a[href]").First(); a.Length() > 0 {
			return a
		}
	}
	return nil
}

// GenericLinks scans every anchor on the page for news links.
type GenericLinks struct {
	NewsPath *regexp.Regexp
	Limit    int
	MinTitle int
}

// Name implements Strategy.
func (GenericLinks) Name() string { return TagGeneric }

// Candidates implements Strategy.
func (s GenericLinks) Candidates(doc *goquery.Document) []Candidate {
	limit := orDefault(s.Limit, 50)
	newsPath := orDefaultPath(s.NewsPath)
	var out []Candidate
	doc.Find("a[href]").EachWithBreak(func(i int, link *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		href, _ := link.Attr("href")
		if !newsPath.MatchString(href) {
			return true
		}
		title := cleanText(link)
		if runeLen(title) < orDefault(s.MinTitle, 15) {
			return true
		}
		out = append(out, Candidate{Title: title, Href: href, Text: title})
		return true
	})
	return out
}

// TextBlocks collects paragraphs and list items, with or without a link.
type TextBlocks struct {
	Selector string
	MinText  int
}

// Name implements Strategy.
func (TextBlocks) Name() string { return TagTextBlock }

// Candidates implements Strategy.
func (s TextBlocks) Candidates(doc *goquery.Document) []Candidate {
	sel := s.Selector
	if sel == "" {
		sel = "p, li"
	}
	minText := orDefault(s.MinText, 21)
	var out []Candidate
	doc.Find(sel).Each(func(_ int, block *goquery.Selection) {
		text := cleanText(block)
		if runeLen(text) < minText {
			return
		}
		c := Candidate{Title: truncate(text, 100), Text: text}
		if a := block.Find("a[href]").First(); a.Length() > 0 {
			c.Href, _ = a.Attr("href")
		} else if a := block.Closest("a[href]"); a.Length() > 0 {
			c.Href, _ = a.Attr("href")
		}
		out = append(out, c)
	})
	return out
}

// DefaultStrategies returns the listing strategies in order of specificity.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ViewContent{},
		Headings{},
		GenericLinks{},
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultPath(re *regexp.Regexp) *regexp.Regexp {
	if re == nil {
		return DefaultNewsPath
	}
	return re
}

func joinText(title, description string) string {
	if description == "" {
		return title
	}
	return title + " " + description
}
