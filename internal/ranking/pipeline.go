// Package ranking turns pre-filtered candidates into final scored results.
package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/models"
	"go.uber.org/zap"
)

const (
	DefaultThreshold     = 0.70
	DefaultBatchSize     = 20
	DefaultMaxCandidates = 50
)

const provisionalRationale = "provisional score from catalog match"

// BatchRequest is one scoring call: the brief, up to BatchSize candidates and
// optional web context snippets.
type BatchRequest struct {
	Brief      string
	Candidates []retrieval.Scored
	Snippets   []string
	Prompt     string
}

type Judgement struct {
	ProductID string
	Score     float64
	Rationale string
}

// Scorer is a language model (or equivalent) judging one batch.
type Scorer interface {
	Score(ctx context.Context, req BatchRequest) ([]Judgement, error)
}

// ScoringError wraps a failed batch.
type ScoringError struct {
	Batch int
	Err   error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring batch %d: %v", e.Batch, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

type Config struct {
	Threshold     float64
	BatchSize     int
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, BatchSize: DefaultBatchSize, MaxCandidates: DefaultMaxCandidates}
}

type Input struct {
	Agent      string
	Brief      string
	Candidates []retrieval.Scored
	Context    webcontext.Context
	Prompt     string
}

type Outcome struct {
	Items []models.RankedItem
	// ScoringDegraded is set when at least one batch fell back to
	// provisional scores.
	ScoringDegraded bool
	Errors          []error
}

type Pipeline struct {
	scorer Scorer
	cfg    Config
	log    *zap.Logger
}

func NewPipeline(scorer Scorer, cfg Config, log *zap.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = def.Threshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{scorer: scorer, cfg: cfg, log: log}
}

func (p *Pipeline) Threshold() float64 { return p.cfg.Threshold }

// Rank scores candidates batch by batch. A batch whose scorer call fails keeps
// its provisional scores; Rank itself never fails.
func (p *Pipeline) Rank(ctx context.Context, in Input) Outcome {
	cands := in.Candidates
	if len(cands) > p.cfg.MaxCandidates {
		cands = cands[:p.cfg.MaxCandidates]
	}
	var out Outcome
	if len(cands) == 0 {
		return out
	}
	var snippets []string
	if in.Context.Available {
		snippets = in.Context.Snippets
	}

	items := make([]models.RankedItem, 0, len(cands))
	for start, batchNo := 0, 0; start < len(cands); start, batchNo = start+p.cfg.BatchSize, batchNo+1 {
		end := min(start+p.cfg.BatchSize, len(cands))
		batch := cands[start:end]

		judged, err := p.scoreBatch(ctx, batchNo, BatchRequest{Brief: in.Brief, Candidates: batch, Snippets: snippets, Prompt: in.Prompt})
		if err != nil {
			out.ScoringDegraded = true
			out.Errors = append(out.Errors, err)
			p.log.Warn("scoring batch degraded", zap.String("agent", in.Agent), zap.Int("batch", batchNo),
				zap.Int("size", len(batch)), zap.Error(err))
			for _, c := range batch {
				items = append(items, models.RankedItem{CandidateID: c.ID, Name: c.Name, Score: Clamp(c.Score),
					Rationale: provisionalRationale, Agent: in.Agent})
			}
			continue
		}
		for _, c := range batch {
			j, ok := judged[c.ID]
			if !ok {
				continue
			}
			items = append(items, models.RankedItem{CandidateID: c.ID, Name: c.Name, Score: Clamp(j.Score),
				Rationale: j.Rationale, Agent: in.Agent})
		}
	}

	SortItems(items)
	kept := items[:0]
	for _, it := range items {
		if it.Score >= p.cfg.Threshold {
			kept = append(kept, it)
		}
	}
	out.Items = kept
	p.log.Debug("ranking done", zap.String("agent", in.Agent), zap.Int("candidates", len(cands)),
		zap.Int("kept", len(kept)), zap.Bool("degraded", out.ScoringDegraded))
	return out
}

func (p *Pipeline) scoreBatch(ctx context.Context, n int, req BatchRequest) (map[string]Judgement, error) {
	if p.scorer == nil {
		return nil, &ScoringError{Batch: n, Err: fmt.Errorf("no scorer configured")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ScoringError{Batch: n, Err: err}
	}
	js, err := p.scorer.Score(ctx, req)
	if err != nil {
		return nil, &ScoringError{Batch: n, Err: err}
	}
	known := make(map[string]bool, len(req.Candidates))
	for _, c := range req.Candidates {
		known[c.ID] = true
	}
	out := make(map[string]Judgement, len(js))
	for _, j := range js {
		if !known[j.ProductID] {
			continue
		}
		if _, dup := out[j.ProductID]; dup {
			continue
		}
		out[j.ProductID] = j
	}
	return out, nil
}

// SortItems orders by score descending, ties by candidate id.
func SortItems(items []models.RankedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].CandidateID < items[j].CandidateID
	})
}

// Clamp bounds a score into [0,1]; NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
