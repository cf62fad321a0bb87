package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/briefer/provider/openai"
	"github.com/mohammad-safakhou/briefer/tools/web_search"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Gemini Client = "gemini"
)

var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// Provider is what every model backend offers the ranking path.
type Provider interface {
	ranking.Scorer
	retrieval.Embedder
	retrieval.Expander
}

type Options struct {
	APIKey          string
	BaseURL         string
	CompletionModel string
	EmbeddingModel  string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
}

// NewProvider creates a model backend for client.
func NewProvider(ctx context.Context, client Client, opts Options) (Provider, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	switch client {
	case OpenAI:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", webcontext.ErrMissingCredentials)
		}
		model := opts.CompletionModel
		if model == "" {
			model = "gpt-4o-mini"
		}
		embed := opts.EmbeddingModel
		if embed == "" {
			embed = "text-embedding-3-small"
		}
		return openai_provider.NewOpenAIClient(opts.APIKey, opts.BaseURL, model, embed, opts.Temperature, opts.MaxTokens, opts.Timeout), nil
	case Gemini:
		return gemini.New(ctx, gemini.Options{
			APIKey:         opts.APIKey,
			BaseURL:        opts.BaseURL,
			Model:          opts.CompletionModel,
			EmbeddingModel: opts.EmbeddingModel,
			Temperature:    float32(opts.Temperature),
			MaxTokens:      int32(opts.MaxTokens),
			Timeout:        opts.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, client)
	}
}

// NewContextProvider builds the web context backend named by kind: "gemini"
// (Google Search grounding), "serper" or "brave".
func NewContextProvider(ctx context.Context, kind, apiKey, model string) (webcontext.Provider, error) {
	switch kind {
	case string(Gemini):
		c, err := gemini.New(ctx, gemini.Options{APIKey: apiKey, GroundingModel: model})
		if err != nil {
			return nil, err
		}
		return c.Grounding(), nil
	case string(web_search.SerperProvider), string(web_search.BraveProvider):
		s, err := web_search.NewWebSearcher(web_search.Provider(kind), apiKey, nil)
		if err != nil {
			return nil, err
		}
		return web_search.NewSnippetSource(kind, s), nil
	default:
		return nil, fmt.Errorf("%w: web context backend %q", webcontext.ErrUnsupported, kind)
	}
}
