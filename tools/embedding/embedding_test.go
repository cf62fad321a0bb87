package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEmbedder struct {
	seen []string
	err  error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.seen = append(c.seen, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func TestEmbedCachesByText(t *testing.T) {
	inner := &countingEmbedder{}
	e := NewEmbedding(inner, "model-a", time.Minute)
	if _, err := e.Embed(context.Background(), []string{"alpha", "bb"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	vecs, err := e.Embed(context.Background(), []string{"bb", "ccc", "alpha"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(inner.seen) != 3 || inner.seen[2] != "ccc" {
		t.Fatalf("expected only the new text to be embedded, saw %v", inner.seen)
	}
	if vecs[0][0] != 2 || vecs[1][0] != 3 || vecs[2][0] != 5 {
		t.Fatalf("vectors out of order: %v", vecs)
	}
	if e.Len() != 3 {
		t.Fatalf("expected 3 cached entries, got %d", e.Len())
	}
}

func TestEmbedNamespacesKeys(t *testing.T) {
	a := NewEmbedding(nil, "a", time.Minute)
	b := NewEmbedding(nil, "b", time.Minute)
	if a.key("x") == b.key("x") {
		t.Fatalf("namespaces must not share keys")
	}
}

func TestEmbedPropagatesErrors(t *testing.T) {
	e := NewEmbedding(&countingEmbedder{err: errors.New("down")}, "m", time.Minute)
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatalf("expected error")
	}
	if e.Len() != 0 {
		t.Fatalf("failed call must not populate the cache")
	}
}
