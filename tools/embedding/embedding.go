package embedding

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/blake2b"
)

// Embedding caches vectors from an underlying embedder. Catalog texts repeat
// across briefs, so most calls only embed the brief itself.
type Embedding struct {
	inner     retrieval.Embedder
	namespace string
	cache     *cache.Cache
}

func NewEmbedding(inner retrieval.Embedder, namespace string, ttl time.Duration) *Embedding {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Embedding{
		inner:     inner,
		namespace: namespace,
		cache:     cache.New(ttl, 2*ttl),
	}
}

func (e *Embedding) key(text string) string {
	sum := blake2b.Sum256([]byte(e.namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Embed implements retrieval.Embedder.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.inner == nil {
		return nil, retrieval.ErrEmbeddingUnavailable
	}
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := e.cache.Get(e.key(t)); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		e.cache.SetDefault(e.key(missing[j]), v)
	}
	return out, nil
}

func (e *Embedding) Len() int { return e.cache.ItemCount() }
