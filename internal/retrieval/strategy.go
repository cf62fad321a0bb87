package retrieval

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy string

const (
	StrategyLexical  Strategy = "lexical"
	StrategySemantic Strategy = "semantic"
	StrategyHybrid   Strategy = "hybrid"
)

// Classification is the strategy chosen for a brief and whether the semantic
// side should use an expanded query.
type Classification struct {
	Strategy Strategy
	Expand   bool
}

var (
	booleanOp    = regexp.MustCompile(`(^|\s)(AND|OR|NOT)(\s|$)`)
	quotedPhrase = regexp.MustCompile(`"([^"]+)"`)
)

var (
	intentTerms = []string{
		"interested", "likely", "intent", "looking", "seeking", "want",
		"lifestyle", "behavior", "behaviour", "habit", "preference", "affinity",
		"enthusiast", "lover", "fan", "conscious", "aware", "minded",
	}
	conceptualTerms = []string{
		"luxury", "premium", "budget", "eco", "green", "sustainable",
		"health", "wellness", "fitness", "active", "affluent", "trendy",
		"modern", "traditional", "conservative", "progressive",
	}
	demographicTerms = []string{
		"age", "gender", "income", "education", "parent", "family",
		"married", "single", "retired", "student", "professional",
		"homeowner", "renter", "urban", "suburban", "rural",
	}
	narrowingWords = map[string]bool{"with": true, "without": true, "only": true, "not": true, "except": true}
)

// Classify picks a matching strategy from the shape of the brief. The result
// depends only on the brief text.
func Classify(brief string) Classification {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return Classification{Strategy: StrategyHybrid}
	}
	if quotedPhrase.MatchString(brief) || booleanOp.MatchString(brief) {
		return Classification{Strategy: StrategyLexical}
	}
	if looksLikeID(brief) {
		return Classification{Strategy: StrategyLexical}
	}

	words := strings.Fields(brief)
	capitalised := 0
	for _, w := range words {
		if r := []rune(w); unicode.IsUpper(r[0]) {
			capitalised++
		}
	}
	if len(words) <= 3 && float64(capitalised) >= 0.6*float64(len(words)) {
		return Classification{Strategy: StrategyLexical}
	}

	tokens := tokenize(brief)
	if hasTerm(tokens, intentTerms) || hasTerm(tokens, conceptualTerms) {
		return Classification{Strategy: StrategySemantic, Expand: true}
	}
	if hasTerm(tokens, demographicTerms) {
		return Classification{Strategy: StrategyHybrid, Expand: len(words) <= 3}
	}

	switch n := len(words); {
	case n == 1:
		return Classification{Strategy: StrategySemantic, Expand: true}
	case n == 2:
		return Classification{Strategy: StrategyHybrid, Expand: true}
	case n <= 4:
		for _, w := range words {
			if narrowingWords[strings.ToLower(w)] {
				return Classification{Strategy: StrategyHybrid}
			}
		}
		return Classification{Strategy: StrategyHybrid, Expand: true}
	default:
		return Classification{Strategy: StrategyHybrid}
	}
}

// looksLikeID matches product codes such as "PROD-12345-ABC".
func looksLikeID(brief string) bool {
	if len(brief) <= 8 {
		return false
	}
	digit := false
	for _, r := range brief {
		switch {
		case r == '-' || r == '_' || r == '.':
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
		default:
			return false
		}
	}
	return digit
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasTerm reports whether any token starts with one of terms, so "parents"
// matches "parent" while "image" does not match "age".
func hasTerm(tokens, terms []string) bool {
	for _, tok := range tokens {
		for _, term := range terms {
			if strings.HasPrefix(tok, term) {
				return true
			}
		}
	}
	return false
}
