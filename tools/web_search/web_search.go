package web_search

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/tools/web_search/brave"
	"github.com/mohammad-safakhou/briefer/tools/web_search/models"
	"github.com/mohammad-safakhou/briefer/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported web search provider")

func NewWebSearcher(provider Provider, apiKey string, client *http.Client) (WebSearcher, error) {
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// SnippetSource turns search results into web context text.
type SnippetSource struct {
	name     string
	searcher WebSearcher
}

func NewSnippetSource(name string, s WebSearcher) *SnippetSource {
	return &SnippetSource{name: name, searcher: s}
}

func (s *SnippetSource) Name() string { return s.name }

func (s *SnippetSource) Fetch(ctx context.Context, brief string, max int) ([]string, error) {
	results, err := s.searcher.Discover(ctx, brief, max)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		text := strings.TrimSpace(r.Snippet)
		if text == "" {
			continue
		}
		if t := strings.TrimSpace(r.Title); t != "" && t != "answer" {
			text = t + ": " + text
		}
		out = append(out, text)
	}
	return out, nil
}

var _ webcontext.Provider = (*SnippetSource)(nil)
