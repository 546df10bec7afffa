package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}\s+\w+\s+\d{4}`), // 25 July 2025
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),     // 2025-07-25
	regexp.MustCompile(`\w+\s+\d{4}`),           // July 2025
}

// cleanText collapses all whitespace runs in the selection's text.
func cleanText(s *goquery.Selection) string {
	return collapse(s.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncate shortens s to max runes, appending "..." when it was cut.
func truncate(s string, max int) string {
	if max <= 0 || runeLen(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}

func findDate(text string) string {
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
