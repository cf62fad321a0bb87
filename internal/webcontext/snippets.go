package webcontext

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minSnippetLen   = 10
	maxSnippetLen   = 350
	maxContextChars = 1000
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	bulletLead = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.)])\s+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Clean splits raw provider text into lines, strips markup and bullets, drops
// short and duplicate lines, and bounds both snippet length and total size.
func Clean(raw []string, max int) []string {
	if max <= 0 {
		max = DefaultMaxSnippets
	}
	seen := map[string]bool{}
	total := 0
	var out []string
	for _, block := range raw {
		for _, line := range strings.Split(strings.ReplaceAll(block, " • ", "\n"), "\n") {
			s := htmlTag.ReplaceAllString(line, " ")
			s = html.UnescapeString(s)
			s = bulletLead.ReplaceAllString(s, "")
			s = strings.TrimSpace(spaces.ReplaceAllString(s, " "))
			if len(s) <= minSnippetLen {
				continue
			}
			if len(s) > maxSnippetLen {
				s = truncate(s, maxSnippetLen-3) + "..."
			}
			key := strings.ToLower(s)
			if seen[key] {
				continue
			}
			if total+len(s) > maxContextChars {
				return out
			}
			seen[key] = true
			total += len(s)
			out = append(out, s)
			if len(out) == max {
				return out
			}
		}
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
