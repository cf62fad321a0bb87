package retrieval

import (
	"fmt"
	"slices"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/analysis/token/lowercase"
	"github.com/blevesearch/bleve/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/mapping"
	"github.com/blevesearch/bleve/search/query"
	"github.com/mohammad-safakhou/briefer/models"
)

// literalCap bounds the score of a lexical hit that does not contain every
// quoted phrase verbatim.
const literalCap = 0.9

const analyzerName = "brief"

type lexicalDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type atom struct {
	text   string
	phrase bool
}

// parsedQuery is a brief split into boolean clauses.
type parsedQuery struct {
	must    []atom
	should  []atom
	mustNot []atom
	phrases []string
}

func (q parsedQuery) empty() bool {
	return len(q.must) == 0 && len(q.should) == 0 && len(q.mustNot) == 0
}

// parseBrief reads a brief as a sequence of words and quoted phrases joined by
// upper-case AND / OR / NOT. Atoms on either side of AND are required, atoms
// after NOT are excluded, the rest are optional.
func parseBrief(brief string) parsedQuery {
	type tok struct {
		atom
		op string
	}
	var toks []tok
	rest := brief
	for {
		loc := quotedPhrase.FindStringSubmatchIndex(rest)
		head := rest
		if loc != nil {
			head = rest[:loc[0]]
		}
		for _, w := range strings.Fields(head) {
			switch w {
			case "AND", "OR", "NOT":
				toks = append(toks, tok{op: w})
				continue
			}
			w = strings.Trim(w, `.,;:!?()[]{}'`)
			if len([]rune(w)) < 2 {
				continue
			}
			toks = append(toks, tok{atom: atom{text: w}})
		}
		if loc == nil {
			break
		}
		if p := strings.TrimSpace(rest[loc[2]:loc[3]]); p != "" {
			toks = append(toks, tok{atom: atom{text: p, phrase: true}})
		}
		rest = rest[loc[1]:]
	}

	var q parsedQuery
	for i, t := range toks {
		if t.op != "" {
			continue
		}
		if t.phrase {
			q.phrases = append(q.phrases, t.text)
		}
		prev, next := "", ""
		if i > 0 {
			prev = toks[i-1].op
		}
		if i+1 < len(toks) {
			next = toks[i+1].op
		}
		switch {
		case prev == "NOT":
			q.mustNot = append(q.mustNot, t.atom)
		case prev == "AND" || next == "AND":
			q.must = append(q.must, t.atom)
		default:
			q.should = append(q.should, t.atom)
		}
	}
	return q
}

func (a atom) query() query.Query {
	if a.phrase {
		return bleve.NewMatchPhraseQuery(a.text)
	}
	return bleve.NewMatchQuery(a.text)
}

func (q parsedQuery) bleveQuery() query.Query {
	bq := bleve.NewBooleanQuery()
	for _, a := range q.must {
		bq.AddMust(a.query())
	}
	for _, a := range q.should {
		bq.AddShould(a.query())
	}
	for _, a := range q.mustNot {
		bq.AddMustNot(a.query())
	}
	switch {
	case len(q.must) == 0 && len(q.should) == 0:
		bq.AddMust(bleve.NewMatchAllQuery())
	case len(q.must) == 0:
		bq.SetMinShould(1)
	}
	return bq
}

// lexicalScores matches the brief against an in-memory index of the
// candidates and returns normalised scores keyed by candidate id.
func lexicalScores(brief string, candidates []models.Product) (map[string]float64, error) {
	pq := parseBrief(brief)
	if pq.empty() || len(candidates) == 0 {
		return map[string]float64{}, nil
	}
	im, err := indexMapping()
	if err != nil {
		return nil, fmt.Errorf("lexical mapping: %w", err)
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("lexical index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for _, c := range candidates {
		if err := batch.Index(c.ID, lexicalDoc{Name: c.Name, Description: c.Description}); err != nil {
			return nil, fmt.Errorf("lexical index %s: %w", c.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("lexical index: %w", err)
	}

	req := bleve.NewSearchRequestOptions(pq.bleveQuery(), len(candidates), 0, false)
	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	best := 0.0
	for _, hit := range res.Hits {
		if hit.Score > best {
			best = hit.Score
		}
	}
	texts := make(map[string][]string, len(candidates))
	for _, c := range candidates {
		texts[c.ID] = tokenize(c.Text())
	}

	out := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		score := 1.0
		if best > 0 {
			score = hit.Score / best
		}
		if len(pq.phrases) > 0 {
			if containsAll(texts[hit.ID], pq.phrases) {
				score = 1.0
			} else if score > literalCap {
				score = literalCap
			}
		}
		out[hit.ID] = clamp01(score)
	}
	return out, nil
}

// indexMapping lower-cases unicode words and keeps stop words, so quoted
// phrases such as "Our Planet" match on every term.
func indexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = analyzerName
	return im, nil
}

// containsAll reports whether every phrase occurs in tokens as a contiguous
// run of whole words.
func containsAll(tokens []string, phrases []string) bool {
	for _, p := range phrases {
		if !containsRun(tokens, tokenize(p)) {
			return false
		}
	}
	return true
}

func containsRun(tokens, run []string) bool {
	if len(run) == 0 {
		return true
	}
	for i := 0; i+len(run) <= len(tokens); i++ {
		if slices.Equal(tokens[i:i+len(run)], run) {
			return true
		}
	}
	return false
}
