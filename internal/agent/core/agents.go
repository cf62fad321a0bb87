package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/briefer/internal/mcpclient"
	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/rpc"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/models"
	"go.uber.org/zap"
)

// runInternal ranks a tenant catalog in-process: pre-filter, optional web
// context, then the scoring pipeline.
// Snippets supplied by the caller replace the enricher.
func (o *Orchestrator) runInternal(ctx context.Context, brief string, a models.Agent, supplied []string, out *AgentOutcome) error {
	cands, err := o.catalog.ListCandidates(ctx, a.TenantID)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	pre, err := o.prefilter.Filter(ctx, brief, cands, 0)
	if err != nil {
		return fmt.Errorf("prefilter: %w", err)
	}
	out.Strategy = string(pre.Strategy)
	out.EmbeddingFallback = pre.EmbeddingFallback
	if pre.EmbeddingFallback {
		o.metrics.Degraded("embedding")
	}

	wc := webcontext.Unavailable(webcontext.ReasonDisabled)
	if snippets := webcontext.Clean(supplied, webcontext.DefaultMaxSnippets); len(snippets) > 0 {
		wc = webcontext.Context{Snippets: snippets, Available: true, Provider: "caller"}
		out.WebContext = &WebContextStatus{Available: true, Provider: wc.Provider, Snippets: len(snippets)}
	} else if a.WebContext {
		wc = o.enricher.Enrich(ctx, brief)
		out.WebContext = &WebContextStatus{Available: wc.Available, Reason: wc.Reason, Provider: wc.Provider, Snippets: len(wc.Snippets)}
		out.ContextUnavailable = !wc.Available
		if !wc.Available {
			o.metrics.Degraded("web_context")
		}
	}

	res := o.pipeline.Rank(ctx, ranking.Input{
		Agent:      a.ID,
		Brief:      brief,
		Candidates: pre.Candidates,
		Context:    wc,
		Prompt:     a.Prompt,
	})
	out.ScoringDegraded = res.ScoringDegraded
	if res.ScoringDegraded {
		o.metrics.Degraded("scoring")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out.Items = res.Items
	return nil
}

// runExternal calls a remote agent over its own session and normalises the
// answer into ranked items.
func (o *Orchestrator) runExternal(ctx context.Context, brief string, a models.Agent, out *AgentOutcome) error {
	var (
		method string
		params map[string]interface{}
		decode func(json.RawMessage, string) ([]models.RankedItem, error)
	)
	switch a.Kind {
	case models.AgentExternalSales:
		method, params, decode = rpc.MethodRankProducts, map[string]interface{}{"brief": brief}, decodeSalesItems
	case models.AgentExternalSignals:
		if a.Protocol != "" && a.Protocol != models.ProtocolSessionRPC {
			return &UnsupportedProtocolError{Kind: a.Kind, Protocol: a.Protocol}
		}
		method, params, decode = rpc.MethodGetSignals, map[string]interface{}{"signal_spec": brief}, decodeSignals
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, a.Kind)
	}

	if a.Protocol != "" && a.Protocol != models.ProtocolSessionRPC && a.Protocol != models.ProtocolPlainRPC {
		return &UnsupportedProtocolError{Kind: a.Kind, Protocol: a.Protocol}
	}
	client, err := mcpclient.New(mcpclient.Config{
		Endpoint:      a.Endpoint,
		Protocol:      mcpclient.Protocol(a.Protocol),
		ClientName:    o.cfg.ClientName,
		ClientVersion: o.cfg.ClientVersion,
		HTTPClient:    o.http,
		Logger:        o.log,
	})
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	raw, err := client.Call(ctx, method, params)
	if err != nil {
		return err
	}
	items, err := decode(raw, a.ID)
	if err != nil {
		return err
	}
	ranking.SortItems(items)
	out.Items = items
	return nil
}

type salesItem struct {
	ProductID      json.RawMessage `json:"product_id"`
	ID             json.RawMessage `json:"id"`
	Name           string          `json:"name"`
	RelevanceScore *float64        `json:"relevance_score"`
	Score          *float64        `json:"score"`
	Reasoning      string          `json:"reasoning"`
	Rationale      string          `json:"rationale"`
	Reason         string          `json:"reason"`
}

// decodeSalesItems accepts {"items":[...]}, {"products":[...]} or a bare
// array. An empty list is a valid answer.
func decodeSalesItems(raw json.RawMessage, agentID string) ([]models.RankedItem, error) {
	var list []salesItem
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, &InvalidResponseError{Reason: "result is not an object"}
		}
		body, ok := wrapped["items"]
		if !ok {
			body, ok = wrapped["products"]
		}
		if !ok || string(body) == "null" {
			return nil, &InvalidResponseError{Reason: "no items found", Keys: keysOf(wrapped)}
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, &InvalidResponseError{Reason: "items is not a list", Keys: keysOf(wrapped)}
		}
	}

	items := make([]models.RankedItem, 0, len(list))
	for _, it := range list {
		id := scalarString(it.ProductID)
		if id == "" {
			id = scalarString(it.ID)
		}
		if id == "" {
			continue
		}
		score := 0.0
		switch {
		case it.RelevanceScore != nil:
			score = *it.RelevanceScore
		case it.Score != nil:
			score = *it.Score
		}
		items = append(items, models.RankedItem{
			CandidateID: id,
			Name:        it.Name,
			Score:       ranking.Clamp(score),
			Rationale:   firstNonEmpty(it.Reasoning, it.Rationale, it.Reason),
			Agent:       agentID,
		})
	}
	return items, nil
}

// decodeSignals reads {"signals":[...]}. Entries need an id (id or
// signal_id) and a name (name or title); a list with none of them is an
// invalid response.
func decodeSignals(raw json.RawMessage, agentID string) ([]models.RankedItem, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &InvalidResponseError{Reason: "no valid signals found"}
	}
	var signals []map[string]interface{}
	if body, ok := obj["signals"]; ok {
		var generic []interface{}
		if err := json.Unmarshal(body, &generic); err == nil {
			for _, g := range generic {
				if m, ok := g.(map[string]interface{}); ok {
					signals = append(signals, m)
				}
			}
		}
	}

	items := make([]models.RankedItem, 0, len(signals))
	for _, s := range signals {
		id := firstNonEmpty(anyString(s["id"]), anyString(s["signal_id"]))
		name := firstNonEmpty(anyString(s["name"]), anyString(s["title"]))
		if id == "" || name == "" {
			continue
		}
		score, _ := s["score"].(float64)
		items = append(items, models.RankedItem{
			CandidateID: id,
			Name:        name,
			Score:       ranking.Clamp(score),
			Rationale:   firstNonEmpty(anyString(s["reason"]), anyString(s["description"])),
			Agent:       agentID,
		})
	}
	if len(items) == 0 {
		return nil, &InvalidResponseError{Reason: "no valid signals found", Keys: keysOf(obj)}
	}
	return items, nil
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return anyString(v)
}

func anyString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func agentFields(a models.Agent) []zap.Field {
	return []zap.Field{zap.String("agent", a.ID), zap.String("kind", string(a.Kind))}
}
