package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/models"
)

type scriptedScorer struct {
	calls    int
	requests []BatchRequest
	fn       func(n int, req BatchRequest) ([]Judgement, error)
}

func (s *scriptedScorer) Score(_ context.Context, req BatchRequest) ([]Judgement, error) {
	s.calls++
	s.requests = append(s.requests, req)
	return s.fn(s.calls, req)
}

func scored(n int) []retrieval.Scored {
	out := make([]retrieval.Scored, n)
	for i := range out {
		out[i] = retrieval.Scored{
			Product: models.Product{ID: fmt.Sprintf("p%02d", i), Name: fmt.Sprintf("Product %d", i)},
			Score:   1 - float64(i)*0.01,
		}
	}
	return out
}

func TestRankClampsSortsAndThresholds(t *testing.T) {
	s := &scriptedScorer{fn: func(_ int, req BatchRequest) ([]Judgement, error) {
		return []Judgement{
			{ProductID: "p00", Score: 0.72, Rationale: "ok"},
			{ProductID: "p01", Score: 1.7, Rationale: "over"},
			{ProductID: "p02", Score: -3},
			{ProductID: "p03", Score: 0.69},
			{ProductID: "ghost", Score: 0.99},
		}, nil
	}}
	p := NewPipeline(s, DefaultConfig(), nil)
	out := p.Rank(context.Background(), Input{Agent: "sales:tenant:t1", Brief: "b", Candidates: scored(5)})
	if out.ScoringDegraded {
		t.Fatalf("did not expect degradation")
	}
	if len(out.Items) != 2 {
		t.Fatalf("expected 2 items above threshold, got %+v", out.Items)
	}
	if out.Items[0].CandidateID != "p01" || out.Items[0].Score != 1 {
		t.Fatalf("expected clamped p01 first, got %+v", out.Items[0])
	}
	for _, it := range out.Items {
		if it.Score < DefaultThreshold || it.Score > 1 {
			t.Fatalf("score %v leaked through", it.Score)
		}
		if it.Agent != "sales:tenant:t1" {
			t.Fatalf("missing attribution")
		}
		if it.CandidateID == "ghost" || it.CandidateID == "p04" {
			t.Fatalf("unexpected item %s", it.CandidateID)
		}
	}
}

func TestRankBatchesAndCaps(t *testing.T) {
	s := &scriptedScorer{fn: func(_ int, req BatchRequest) ([]Judgement, error) {
		var js []Judgement
		for _, c := range req.Candidates {
			js = append(js, Judgement{ProductID: c.ID, Score: 0.9})
		}
		return js, nil
	}}
	p := NewPipeline(s, Config{Threshold: 0.7, BatchSize: 20, MaxCandidates: 50}, nil)
	out := p.Rank(context.Background(), Input{Brief: "b", Candidates: scored(60)})
	if s.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", s.calls)
	}
	if len(s.requests[2].Candidates) != 10 {
		t.Fatalf("expected last batch of 10, got %d", len(s.requests[2].Candidates))
	}
	if len(out.Items) != 50 {
		t.Fatalf("expected 50 items, got %d", len(out.Items))
	}
	for i := 1; i < len(out.Items); i++ {
		if out.Items[i-1].CandidateID > out.Items[i].CandidateID {
			t.Fatalf("equal scores must be ordered by id")
		}
	}
}

func TestRankFallsBackPerBatch(t *testing.T) {
	s := &scriptedScorer{fn: func(n int, req BatchRequest) ([]Judgement, error) {
		if n == 1 {
			return nil, errors.New("quota")
		}
		return []Judgement{{ProductID: req.Candidates[0].ID, Score: 0.95}}, nil
	}}
	p := NewPipeline(s, Config{BatchSize: 2}, nil)
	in := scored(4)
	in[0].Score, in[1].Score, in[2].Score, in[3].Score = 0.9, 0.5, 0.8, 0.8
	out := p.Rank(context.Background(), Input{Brief: "b", Candidates: in})
	if !out.ScoringDegraded || len(out.Errors) != 1 {
		t.Fatalf("expected one degraded batch, got %+v", out)
	}
	var serr *ScoringError
	if !errors.As(out.Errors[0], &serr) || serr.Batch != 0 {
		t.Fatalf("expected ScoringError for batch 0, got %v", out.Errors[0])
	}
	ids := []string{}
	for _, it := range out.Items {
		ids = append(ids, it.CandidateID)
	}
	if strings.Join(ids, ",") != "p02,p00" {
		t.Fatalf("unexpected items %v", ids)
	}
}

func TestRankWithoutScorerKeepsProvisionalOrder(t *testing.T) {
	p := NewPipeline(nil, DefaultConfig(), nil)
	in := []retrieval.Scored{
		{Product: models.Product{ID: "planet"}, Score: 0.93},
		{Product: models.Product{ID: "finance"}, Score: 0.71},
		{Product: models.Product{ID: "noise"}, Score: 0.2},
	}
	out := p.Rank(context.Background(), Input{Brief: "eco", Candidates: in})
	if !out.ScoringDegraded {
		t.Fatalf("expected degraded outcome")
	}
	if len(out.Items) != 2 || out.Items[0].CandidateID != "planet" || out.Items[1].CandidateID != "finance" {
		t.Fatalf("provisional order not preserved: %+v", out.Items)
	}
}

func TestRankPassesAvailableSnippetsOnly(t *testing.T) {
	s := &scriptedScorer{fn: func(int, BatchRequest) ([]Judgement, error) { return nil, nil }}
	p := NewPipeline(s, DefaultConfig(), nil)
	p.Rank(context.Background(), Input{Brief: "b", Candidates: scored(1), Prompt: "custom",
		Context: webcontext.Context{Available: false, Snippets: []string{"stale"}}})
	p.Rank(context.Background(), Input{Brief: "b", Candidates: scored(1),
		Context: webcontext.Context{Available: true, Snippets: []string{"fresh news item"}}})
	if len(s.requests[0].Snippets) != 0 || s.requests[0].Prompt != "custom" {
		t.Fatalf("unexpected first request %+v", s.requests[0])
	}
	if len(s.requests[1].Snippets) != 1 {
		t.Fatalf("expected snippets forwarded")
	}
}

func TestRankEmpty(t *testing.T) {
	out := NewPipeline(nil, DefaultConfig(), nil).Rank(context.Background(), Input{Brief: "b"})
	if len(out.Items) != 0 || out.ScoringDegraded {
		t.Fatalf("unexpected %+v", out)
	}
}
