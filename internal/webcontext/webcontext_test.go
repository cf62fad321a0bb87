package webcontext

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type stubProvider struct {
	raw   []string
	err   error
	delay time.Duration
}

func (s stubProvider) Name() string { return "stub" }

func (s stubProvider) Fetch(ctx context.Context, _ string, _ int) ([]string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.raw, s.err
}

func TestEnrichSuccess(t *testing.T) {
	e := NewEnricher(stubProvider{raw: []string{"<b>EV sales</b> grew 40% in Q3 this year\n- short\n* Charging networks expand across Europe"}})
	got := e.Enrich(context.Background(), "electric cars")
	if !got.Available || got.Reason != "" {
		t.Fatalf("expected available context, got %+v", got)
	}
	want := []string{"EV sales grew 40% in Q3 this year", "Charging networks expand across Europe"}
	if len(got.Snippets) != len(want) {
		t.Fatalf("expected %v, got %v", want, got.Snippets)
	}
	for i := range want {
		if got.Snippets[i] != want[i] {
			t.Fatalf("snippet %d: want %q, got %q", i, want[i], got.Snippets[i])
		}
	}
}

func TestEnrichFailureReasons(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrMissingCredentials, ReasonMissingCredentials},
		{fmt.Errorf("serper: %w", ErrQuotaExceeded), ReasonQuota},
		{ErrUnsupported, ReasonUnsupported},
		{fmt.Errorf("boom"), ReasonError},
	}
	for _, tc := range cases {
		got := NewEnricher(stubProvider{err: tc.err}).Enrich(context.Background(), "brief")
		if got.Available || got.Reason != tc.want || len(got.Snippets) != 0 {
			t.Errorf("err %v: got %+v, want reason %s", tc.err, got, tc.want)
		}
	}
}

func TestEnrichNilProvider(t *testing.T) {
	var e *Enricher
	if got := e.Enrich(context.Background(), "x"); got.Available || got.Reason != ReasonUnsupported {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestEnrichRespectsTimeout(t *testing.T) {
	e := NewEnricher(stubProvider{delay: 300 * time.Millisecond, raw: []string{"too late to matter at all"}}, WithTimeout(30*time.Millisecond))
	start := time.Now()
	got := e.Enrich(context.Background(), "brief")
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("enricher blocked for %v", elapsed)
	}
	if got.Available || got.Reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %+v", got)
	}
}

func TestEnrichEmptyIsUnavailable(t *testing.T) {
	got := NewEnricher(stubProvider{raw: []string{"tiny", ""}}).Enrich(context.Background(), "brief")
	if got.Available || got.Reason != ReasonEmpty {
		t.Fatalf("expected no_snippets, got %+v", got)
	}
}

func TestCleanBounds(t *testing.T) {
	long := strings.Repeat("word ", 100)
	raw := []string{long, long, "Second distinct snippet here", "second DISTINCT snippet here"}
	for i := 0; i < 10; i++ {
		raw = append(raw, fmt.Sprintf("filler snippet number %d %s", i, strings.Repeat("x", 200)))
	}
	got := Clean(raw, 20)
	total := 0
	for _, s := range got {
		if len(s) > maxSnippetLen {
			t.Fatalf("snippet longer than %d: %d", maxSnippetLen, len(s))
		}
		total += len(s)
	}
	if total > maxContextChars {
		t.Fatalf("total %d exceeds %d", total, maxContextChars)
	}
	if !strings.HasSuffix(got[0], "...") || len(got[0]) != maxSnippetLen {
		t.Fatalf("expected truncated first snippet, got len %d", len(got[0]))
	}
	if got[1] != "Second distinct snippet here" {
		t.Fatalf("expected duplicate long line dropped, got %q", got[1])
	}
	for _, s := range got[2:] {
		if strings.EqualFold(s, got[1]) {
			t.Fatalf("case-insensitive duplicate kept")
		}
	}
}

func TestCleanMaxCount(t *testing.T) {
	got := Clean([]string{"first line long enough\nsecond line long enough\nthird line long enough"}, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(got))
	}
}
