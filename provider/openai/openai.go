package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
)

const defaultBaseURL = "https://api.openai.com/v1"

// client implements scoring, embeddings and query expansion using OpenAI's API
type client struct {
	apiKey          string
	baseURL         string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// request represents a request to the chat completions endpoint
type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// response represents a response from the chat completions endpoint
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL targets the
// public API.
func NewOpenAIClient(apiKey, baseURL, completionModel, embeddingModel string, temperature float64, maxTokens int, timeout time.Duration) *client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &client{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		completionModel: completionModel,
		embeddingModel:  embeddingModel,
		temperature:     temperature,
		maxTokens:       maxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// Embed generates embeddings for the given texts
func (c *client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var openaiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	body := map[string]interface{}{"model": c.embeddingModel, "input": texts}
	if err := c.post(ctx, "/embeddings", body, &openaiResp); err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrEmbeddingUnavailable, err)
	}
	if len(openaiResp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(openaiResp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range openaiResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Score implements ranking.Scorer
func (c *client) Score(ctx context.Context, req ranking.BatchRequest) ([]ranking.Judgement, error) {
	prompt, err := ranking.BuildPrompt(req)
	if err != nil {
		return nil, err
	}
	messages := []Message{{Role: "user", Content: prompt}}
	text, err := c.sendRequest(ctx, messages, &responseFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}
	return ranking.ParseJudgements(text)
}

// Expand implements retrieval.Expander
func (c *client) Expand(ctx context.Context, brief string, n int) ([]string, error) {
	text, err := c.sendRequest(ctx, []Message{{Role: "user", Content: retrieval.ExpansionPrompt(brief, n)}}, nil)
	if err != nil {
		return nil, err
	}
	return retrieval.ParseTerms(text, n), nil
}

// sendRequest sends a chat completion request and returns the first choice
func (c *client) sendRequest(ctx context.Context, messages []Message, format *responseFormat) (string, error) {
	requestBody := request{
		Model:          c.completionModel,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: format,
	}
	var openaiResp response
	if err := c.post(ctx, "/chat/completions", requestBody, &openaiResp); err != nil {
		return "", err
	}
	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return openaiResp.Choices[0].Message.Content, nil
}

func (c *client) post(ctx context.Context, path string, body any, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("openai: %w", webcontext.ErrMissingCredentials)
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("openai: %w", webcontext.ErrMissingCredentials)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("openai: %w", webcontext.ErrQuotaExceeded)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

var (
	_ ranking.Scorer     = (*client)(nil)
	_ retrieval.Embedder = (*client)(nil)
	_ retrieval.Expander = (*client)(nil)
)
