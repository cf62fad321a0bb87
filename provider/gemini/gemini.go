// Package gemini backs scoring, embedding, query expansion and Google Search
// grounding with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"google.golang.org/genai"
)

const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbeddingModel = "text-embedding-004"

	// maxEmbedBatch is the most texts one embedding request may carry.
	maxEmbedBatch = 100
)

type Options struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	// GroundingModel must support the google_search tool.
	GroundingModel string
	Temperature    float32
	MaxTokens      int32
	Timeout        time.Duration
	BaseURL        string
	HTTPClient     *http.Client
}

type Client struct {
	client      *genai.Client
	model       string
	embedModel  string
	groundModel string
	temperature float32
	maxTokens   int32
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", webcontext.ErrMissingCredentials)
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	if cfg.HTTPClient == nil && opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	c := &Client{
		client:      client,
		model:       orDefault(opts.Model, DefaultModel),
		embedModel:  orDefault(opts.EmbeddingModel, DefaultEmbeddingModel),
		groundModel: orDefault(opts.GroundingModel, orDefault(opts.Model, DefaultModel)),
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
	if c.temperature == 0 {
		c.temperature = 0.3
	}
	if c.maxTokens == 0 {
		c.maxTokens = 2048
	}
	return c, nil
}

func (c *Client) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", mapError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// Score implements ranking.Scorer.
func (c *Client) Score(ctx context.Context, req ranking.BatchRequest) ([]ranking.Judgement, error) {
	prompt, err := ranking.BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	text, err := c.generate(ctx, c.model, prompt, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		MaxOutputTokens:  c.maxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}
	return ranking.ParseJudgements(text)
}

// Embed implements retrieval.Embedder.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		res, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", retrieval.ErrEmbeddingUnavailable, mapError(err))
		}
		if len(res.Embeddings) != len(contents) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
				retrieval.ErrEmbeddingUnavailable, len(res.Embeddings), len(contents))
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Expand implements retrieval.Expander.
func (c *Client) Expand(ctx context.Context, brief string, n int) ([]string, error) {
	text, err := c.generate(ctx, c.model, retrieval.ExpansionPrompt(brief, n), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: 256,
	})
	if err != nil {
		return nil, err
	}
	return retrieval.ParseTerms(text, n), nil
}

// Grounding returns a web context provider backed by Google Search grounding.
func (c *Client) Grounding() *Grounding { return &Grounding{c: c} }

type Grounding struct{ c *Client }

func (g *Grounding) Name() string { return "gemini" }

func (g *Grounding) Fetch(ctx context.Context, brief string, max int) ([]string, error) {
	prompt := fmt.Sprintf(`Search the web for recent, factual information relevant to this advertising brief: %q

Return up to %d short bullet points with concrete facts (trends, events, audience data). One fact per line, no introduction.`, brief, max)
	text, err := g.c.generate(ctx, g.c.groundModel, prompt, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 1024,
		Tools:           []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

// mapError translates API status codes onto the web context sentinels so
// callers can classify them with errors.Is.
func mapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden ||
		strings.Contains(msg, "api key"):
		return fmt.Errorf("gemini: %w: %s", webcontext.ErrMissingCredentials, apiErr.Status)
	case apiErr.Code == http.StatusTooManyRequests || strings.Contains(msg, "quota"):
		return fmt.Errorf("gemini: %w", webcontext.ErrQuotaExceeded)
	case apiErr.Code == http.StatusNotFound || strings.Contains(msg, "not supported"):
		return fmt.Errorf("gemini: %w: %s", webcontext.ErrUnsupported, apiErr.Status)
	default:
		return fmt.Errorf("gemini: %w", err)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

var (
	_ ranking.Scorer      = (*Client)(nil)
	_ retrieval.Embedder  = (*Client)(nil)
	_ retrieval.Expander  = (*Client)(nil)
	_ webcontext.Provider = (*Grounding)(nil)
)
