package retrieval

import (
	"fmt"
	"strings"
)

// ExpansionPrompt asks a model for n related search terms.
func ExpansionPrompt(brief string, n int) string {
	return fmt.Sprintf(`Generate %d related search terms for this advertising brief: %q

Focus on:
- Synonyms and related concepts
- Broader and narrower terms
- Industry-specific terminology

Return only the terms, separated by commas. Do not include explanations.`, n, brief)
}

// ParseTerms splits a comma or newline separated model answer into at most n
// terms.
func ParseTerms(text string, n int) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	out := make([]string, 0, n)
	for _, f := range fields {
		f = strings.Trim(strings.TrimSpace(f), `"'*-•. `)
		if f == "" {
			continue
		}
		out = append(out, f)
		if len(out) == n {
			break
		}
	}
	return out
}
