package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/tools/web_search/models"
)

const defaultBaseURL = "https://google.serper.dev/search"

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *http.Client
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serper.dev/ docs
	if s.ApiKey == "" {
		return nil, webcontext.ErrMissingCredentials
	}
	body, err := json.Marshal(map[string]any{"q": q, "num": k})
	if err != nil {
		return nil, err
	}
	url := s.BaseURL
	if url == "" {
		url = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := models.CheckStatus("serper", resp); err != nil {
		return nil, err
	}

	var raw struct {
		AnswerBox struct {
			Snippet string `json:"snippet"`
			Answer  string `json:"answer"`
		} `json:"answerBox"`
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if a := raw.AnswerBox.Snippet + raw.AnswerBox.Answer; a != "" {
		out = append(out, models.Result{Title: "answer", Snippet: a})
	}
	for _, it := range raw.Organic {
		if len(out) >= k {
			break
		}
		out = append(out, models.Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}
