package ranking

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/models"
)

func TestParseJudgementsFenced(t *testing.T) {
	text := "```json\n{\"products\":[{\"product_id\":12,\"relevance_score\":0.8,\"reasoning\":\" fits \"},{\"product_id\":\"p2\"},{\"relevance_score\":1}]}\n```"
	js, err := ParseJudgements(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(js) != 2 {
		t.Fatalf("expected 2 judgements, got %+v", js)
	}
	if js[0].ProductID != "12" || js[0].Score != 0.8 || js[0].Rationale != "fits" {
		t.Fatalf("unexpected first judgement %+v", js[0])
	}
	if js[1].ProductID != "p2" || js[1].Score != 0.5 {
		t.Fatalf("missing score should default to 0.5, got %+v", js[1])
	}
}

func TestParseJudgementsRejectsProse(t *testing.T) {
	if _, err := ParseJudgements("I think product 1 is best"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBuildPrompt(t *testing.T) {
	req := BatchRequest{
		Brief:      "sports fans in Texas",
		Candidates: []retrieval.Scored{{Product: models.Product{ID: "p1", Name: "Sunday Football"}}},
		Snippets:   []string{"NFL viewership rose"},
	}
	got, err := BuildPrompt(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{DefaultPrompt, "Campaign Brief: sports fans in Texas", "NFL viewership rose", `"product_id": "p1"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	req.Prompt = "You are a sports media specialist."
	got, _ = BuildPrompt(req)
	if strings.Contains(got, DefaultPrompt) || !strings.HasPrefix(got, req.Prompt) {
		t.Fatalf("custom prompt should replace the default")
	}
}
