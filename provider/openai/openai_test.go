package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/models"
)

func TestScoreUsesChatCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-test" || req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"products\":[{\"product_id\":\"p1\",\"relevance_score\":0.8,\"reasoning\":\"ok\"}]}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", srv.URL, "gpt-test", "emb", 0.2, 512, time.Second)
	js, err := c.Score(context.Background(), ranking.BatchRequest{
		Brief:      "b",
		Candidates: []retrieval.Scored{{Product: models.Product{ID: "p1"}}},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(js) != 1 || js[0].Score != 0.8 {
		t.Fatalf("unexpected %+v", js)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0,1],"index":1},{"embedding":[1,0],"index":0}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", srv.URL, "gpt", "emb", 0, 0, time.Second)
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vectors not ordered by index: %v", vecs)
	}
}

func TestStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", srv.URL, "gpt", "emb", 0, 0, time.Second)
	_, err := c.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, retrieval.ErrEmbeddingUnavailable) || !errors.Is(err, webcontext.ErrQuotaExceeded) {
		t.Fatalf("expected quota + unavailable, got %v", err)
	}
	if _, err := NewOpenAIClient("", srv.URL, "gpt", "emb", 0, 0, time.Second).Expand(context.Background(), "x", 5); !errors.Is(err, webcontext.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}
