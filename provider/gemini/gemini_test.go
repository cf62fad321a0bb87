package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/models"
)

func textResponse(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		}},
	})
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Options{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestScoreParsesFencedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		textResponse(w, "```json\n{\"products\":[{\"product_id\":\"p1\",\"relevance_score\":0.91,\"reasoning\":\"match\"}]}\n```")
	})
	js, err := c.Score(context.Background(), ranking.BatchRequest{
		Brief:      "sports",
		Candidates: []retrieval.Scored{{Product: models.Product{ID: "p1", Name: "Football"}}},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(js) != 1 || js[0].ProductID != "p1" || js[0].Score != 0.91 {
		t.Fatalf("unexpected judgements %+v", js)
	}
}

func TestQuotaMapsToSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))
	})
	_, err := c.Grounding().Fetch(context.Background(), "ev cars", 3)
	if !errors.Is(err, webcontext.ErrQuotaExceeded) {
		t.Fatalf("expected quota sentinel, got %v", err)
	}
}

func TestExpandSplitsTerms(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		textResponse(w, "green living, eco friendly, sustainability")
	})
	terms, err := c.Expand(context.Background(), "eco", 5)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(terms) != 3 || terms[0] != "green living" {
		t.Fatalf("unexpected terms %v", terms)
	}
}

func TestEmbedSplitsLargeBatches(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var body struct {
			Requests []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(body.Requests) > 100 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"at most 100 requests can be in one batch","status":"INVALID_ARGUMENT"}}`))
			return
		}
		embeddings := make([]any, len(body.Requests))
		for i, req := range body.Requests {
			n, _ := strconv.Atoi(strings.TrimPrefix(req.Content.Parts[0].Text, "text-"))
			embeddings[i] = map[string]any{"values": []float32{float32(n)}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
	})

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "text-" + strconv.Itoa(i)
	}
	vecs, err := c.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 1 || v[0] != float32(i) {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 embedding requests, got %d", got)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Options{}); !errors.Is(err, webcontext.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}
