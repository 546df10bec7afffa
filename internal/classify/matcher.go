// Package classify decides whether extracted text relates to the monitored
// trial or to the EU approval process using keyword containment.
package classify

import (
	"sort"
	"strings"
)

// Set is a case-insensitive keyword list matched by substring containment.
type Set struct {
	keywords []string
	lowered  []string
}

// NewSet normalizes keywords, dropping blanks and duplicates.
func NewSet(keywords []string) Set {
	s := Set{}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lower := strings.ToLower(kw)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		s.keywords = append(s.keywords, kw)
		s.lowered = append(s.lowered, lower)
	}
	return s
}

// Len returns the number of keywords in the set.
func (s Set) Len() int {
	return len(s.keywords)
}

// Matches returns the keywords contained in text, in their configured spelling,
// sorted and without duplicates. The result is nil when nothing matched.
func (s Set) Matches(text string) []string {
	if text == "" || len(s.lowered) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for i, kw := range s.lowered {
		if strings.Contains(lower, kw) {
			out = append(out, s.keywords[i])
		}
	}
	sort.Strings(out)
	return out
}

// Contains reports whether any keyword occurs in text.
func (s Set) Contains(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range s.lowered {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, kw := range list {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}
