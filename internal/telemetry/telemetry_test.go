package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := New()
	m.ObserveAgent("internal-sales", "ok", 120*time.Millisecond)
	m.ObserveAgent("internal-sales", "ok", 80*time.Millisecond)
	m.ObserveAgent("external-sales", "timeout", time.Second)
	m.CircuitSkip("external-sales")
	m.Degraded("scoring")

	if got := testutil.ToFloat64(m.agentCalls.WithLabelValues("internal-sales", "ok")); got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.circuitSkips.WithLabelValues("external-sales")); got != 1 {
		t.Fatalf("expected 1 skip, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"briefer_agent_calls_total", "briefer_agent_call_seconds", "briefer_degraded_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAgent("k", "ok", time.Millisecond)
	m.CircuitSkip("k")
	m.Degraded("scoring")
	if m.Handler() == nil {
		t.Fatalf("expected default handler")
	}
}
