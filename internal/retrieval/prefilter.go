// Package retrieval narrows a tenant catalog to the candidates worth sending
// to the ranking model.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/briefer/models"
	"go.uber.org/zap"
)

const (
	DefaultTopK           = 50
	DefaultSemanticWeight = 0.7
	expansionTerms        = 5
)

// Scored is a candidate with its provisional relevance score in [0,1].
type Scored struct {
	models.Product
	Score float64 `json:"score"`
}

type Result struct {
	Candidates []Scored
	// Planned is the classifier's choice, Strategy the one actually applied.
	Planned  Strategy
	Strategy Strategy
	// EmbeddingFallback is set when semantic matching was planned but the
	// embedder failed.
	EmbeddingFallback bool
	Expansion         []string
}

type Option func(*Prefilter)

func WithTopK(k int) Option {
	return func(p *Prefilter) {
		if k > 0 {
			p.topK = k
		}
	}
}

func WithSemanticWeight(w float64) Option {
	return func(p *Prefilter) {
		if w >= 0 && w <= 1 {
			p.weight = w
		}
	}
}

func WithExpander(e Expander) Option {
	return func(p *Prefilter) { p.expander = e }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Prefilter) {
		if l != nil {
			p.log = l
		}
	}
}

type Prefilter struct {
	embedder Embedder
	expander Expander
	topK     int
	weight   float64
	log      *zap.Logger
}

// NewPrefilter builds a pre-filter. A nil embedder restricts it to lexical
// matching.
func NewPrefilter(embedder Embedder, opts ...Option) *Prefilter {
	p := &Prefilter{
		embedder: embedder,
		topK:     DefaultTopK,
		weight:   DefaultSemanticWeight,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Filter returns at most k candidates (the configured default when k <= 0)
// sorted by score, ties broken by id. Candidates scoring zero are dropped.
func (p *Prefilter) Filter(ctx context.Context, brief string, candidates []models.Product, k int) (Result, error) {
	if k <= 0 {
		k = p.topK
	}
	cls := Classify(brief)
	res := Result{Planned: cls.Strategy, Strategy: cls.Strategy}
	if len(candidates) == 0 {
		return res, nil
	}

	var lex, sem map[string]float64
	var err error
	if cls.Strategy != StrategyLexical {
		query := brief
		if cls.Expand && p.expander != nil {
			if terms := p.expand(ctx, brief); len(terms) > 0 {
				res.Expansion = terms
				query = brief + " " + strings.Join(terms, " ")
			}
		}
		sem, err = semanticScores(ctx, p.embedder, query, candidates)
		if err != nil {
			p.log.Info("semantic matching unavailable, using lexical", zap.Error(err))
			res.Strategy = StrategyLexical
			res.EmbeddingFallback = true
			sem = nil
		}
	}
	if res.Strategy != StrategySemantic {
		lex, err = lexicalScores(brief, candidates)
		if err != nil {
			return Result{}, err
		}
	}

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		var s float64
		switch res.Strategy {
		case StrategySemantic:
			s = sem[c.ID]
		case StrategyLexical:
			s = lex[c.ID]
		default:
			s = p.weight*sem[c.ID] + (1-p.weight)*lex[c.ID]
		}
		s = clamp01(s)
		if s <= 0 {
			continue
		}
		scored = append(scored, Scored{Product: c, Score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	res.Candidates = scored
	p.log.Debug("prefilter done",
		zap.String("planned", string(res.Planned)),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("in", len(candidates)),
		zap.Int("out", len(scored)))
	return res, nil
}

func (p *Prefilter) expand(ctx context.Context, brief string) []string {
	terms, err := p.expander.Expand(ctx, brief, expansionTerms)
	if err != nil {
		p.log.Debug("query expansion failed", zap.Error(err))
		return nil
	}
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(brief)): true}
	out := make([]string, 0, expansionTerms)
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if len(out) == expansionTerms {
			break
		}
	}
	return out
}
