package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/mohammad-safakhou/briefer/models"
)

// ErrEmbeddingUnavailable marks an embedder that is not configured or not
// reachable. The pre-filter falls back to lexical matching on any embedder
// error, this one included.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Expander proposes related search terms for a brief.
type Expander interface {
	Expand(ctx context.Context, brief string, n int) ([]string, error)
}

func semanticScores(ctx context.Context, e Embedder, query string, candidates []models.Product) (map[string]float64, error) {
	if e == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if len(candidates) == 0 {
		return map[string]float64{}, nil
	}
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	for _, c := range candidates {
		texts = append(texts, c.Text())
	}
	vecs, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	q := vecs[0]
	out := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		out[c.ID] = clamp01(cosine(q, vecs[i+1]))
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
