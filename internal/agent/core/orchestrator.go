package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/briefer/internal/breaker"
	"github.com/mohammad-safakhou/briefer/internal/mcpclient"
	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/rpc"
	"github.com/mohammad-safakhou/briefer/internal/telemetry"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency  = 8
	DefaultAgentTimeout = 25 * time.Second
)

type Config struct {
	Concurrency   int
	AgentTimeout  time.Duration
	ClientName    string
	ClientVersion string
}

func DefaultConfig() Config {
	return Config{Concurrency: DefaultConcurrency, AgentTimeout: DefaultAgentTimeout}
}

// Dependencies are the collaborators of an Orchestrator. Only Catalog is
// required for internal agents; nil components fall back to inert defaults.
type Dependencies struct {
	Catalog    CatalogStore
	Prefilter  *retrieval.Prefilter
	Enricher   *webcontext.Enricher
	Pipeline   *ranking.Pipeline
	HTTPClient *http.Client
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
}

// Orchestrator fans a brief out to the selected agents and collects one
// outcome per agent.
type Orchestrator struct {
	cfg       Config
	breakers  *breaker.Table
	catalog   CatalogStore
	prefilter *retrieval.Prefilter
	enricher  *webcontext.Enricher
	pipeline  *ranking.Pipeline
	http      *http.Client
	metrics   *telemetry.Metrics
	log       *zap.Logger
	tracer    trace.Tracer
}

// NewOrchestrator builds an orchestrator around a shared breaker table. A nil
// table gets a private one with default settings.
func NewOrchestrator(cfg Config, breakers *breaker.Table, deps Dependencies) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultAgentTimeout
	}
	if breakers == nil {
		breakers = breaker.New(breaker.DefaultConfig())
	}
	o := &Orchestrator{
		cfg:       cfg,
		breakers:  breakers,
		catalog:   deps.Catalog,
		prefilter: deps.Prefilter,
		enricher:  deps.Enricher,
		pipeline:  deps.Pipeline,
		http:      deps.HTTPClient,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		tracer:    telemetry.Tracer(),
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.prefilter == nil {
		o.prefilter = retrieval.NewPrefilter(nil, retrieval.WithLogger(o.log))
	}
	if o.pipeline == nil {
		o.pipeline = ranking.NewPipeline(nil, ranking.DefaultConfig(), o.log)
	}
	return o
}

// Breakers exposes the breaker table.
func (o *Orchestrator) Breakers() *breaker.Table { return o.breakers }

// Orchestrate dispatches brief to every agent, at most Concurrency at a time,
// and waits for all of them. It only fails on an empty brief or selection;
// agent failures are recorded in the result.
func (o *Orchestrator) Orchestrate(ctx context.Context, brief string, agents []models.Agent) (Result, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return Result{}, ErrInvalidBrief
	}
	if len(agents) == 0 {
		return Result{}, ErrEmptySelection
	}

	start := time.Now()
	res := Result{
		RequestID: uuid.NewString(),
		Agents:    make(map[string]AgentOutcome, len(agents)),
		Order:     make([]string, 0, len(agents)),
	}
	ctx, span := o.tracer.Start(ctx, "briefer.orchestrate",
		trace.WithAttributes(
			attribute.String("request.id", res.RequestID),
			attribute.Int("agents", len(agents)),
		))
	defer span.End()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.cfg.Concurrency)
	selected := make([]models.Agent, 0, len(agents))
	for _, a := range agents {
		if _, dup := res.Agents[a.ID]; dup {
			continue
		}
		res.Order = append(res.Order, a.ID)
		res.Agents[a.ID] = AgentOutcome{AgentID: a.ID, Name: a.Name, Kind: a.Kind}
		selected = append(selected, a)
	}
	for _, a := range selected {
		g.Go(func() error {
			out := o.dispatch(ctx, brief, a)
			mu.Lock()
			res.Agents[a.ID] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range res.Order {
		if res.Agents[id].Status == StatusSkipped {
			res.Skipped = append(res.Skipped, id)
		}
	}
	res.Elapsed = time.Since(start)
	span.SetAttributes(attribute.Int("skipped", len(res.Skipped)))
	return res, nil
}

// RankInternal ranks one internal agent directly, bounded by the agent
// timeout. It backs the sales RPC endpoint, which serves a single tenant and
// needs no fan-out or breaker.
func (o *Orchestrator) RankInternal(ctx context.Context, brief string, a models.Agent, snippets []string) (AgentOutcome, error) {
	out := AgentOutcome{AgentID: a.ID, Name: a.Name, Kind: a.Kind}
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return out, ErrInvalidBrief
	}
	if a.Kind != models.AgentInternalSales || o.catalog == nil {
		return out, fmt.Errorf("%w: %s", ErrUnsupportedKind, a.Kind)
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
	defer cancel()
	start := time.Now()
	err := o.runInternal(ctx, brief, a, snippets, &out)
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Status = StatusError
		out.Items = nil
		out.Error = &AgentError{Code: classify(err), Message: err.Error()}
		return out, err
	}
	out.Status = StatusOK
	if out.Items == nil {
		out.Items = []models.RankedItem{}
	}
	o.metrics.ObserveAgent(string(a.Kind), string(StatusOK), out.Elapsed)
	return out, nil
}

// breakerKey groups agents by endpoint; internal agents key on their id.
func breakerKey(a models.Agent) string {
	if a.Endpoint != "" {
		return a.Endpoint
	}
	return a.ID
}

func (o *Orchestrator) dispatch(ctx context.Context, brief string, a models.Agent) AgentOutcome {
	out := AgentOutcome{AgentID: a.ID, Name: a.Name, Kind: a.Kind}
	start := time.Now()
	log := o.log.With(agentFields(a)...)

	if !a.Enabled {
		out.Status = StatusSkipped
		out.Error = &AgentError{Code: CodeDisabled, Message: "agent is disabled"}
		return out
	}
	key := breakerKey(a)
	if err := o.breakers.Allow(key); err != nil {
		out.Status = StatusSkipped
		out.Error = &AgentError{Code: CodeCircuitOpen, Message: err.Error()}
		o.metrics.CircuitSkip(string(a.Kind))
		o.metrics.ObserveAgent(string(a.Kind), CodeCircuitOpen, 0)
		log.Info("agent skipped", zap.String("outcome", CodeCircuitOpen))
		return out
	}

	agentCtx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
	defer cancel()
	agentCtx, span := o.tracer.Start(agentCtx, "briefer.agent",
		trace.WithAttributes(
			attribute.String("agent.id", a.ID),
			attribute.String("agent.kind", string(a.Kind)),
		))
	defer span.End()

	var err error
	switch a.Kind {
	case models.AgentInternalSales:
		if o.catalog == nil {
			err = errors.New("no catalog configured")
		} else {
			err = o.runInternal(agentCtx, brief, a, nil, &out)
		}
	case models.AgentExternalSales, models.AgentExternalSignals:
		err = o.runExternal(agentCtx, brief, a, &out)
	default:
		err = ErrUnsupportedKind
	}
	out.Elapsed = time.Since(start)

	if err != nil {
		code := classify(err)
		out.Status = StatusError
		out.Items = nil
		out.Error = &AgentError{Code: code, Message: err.Error()}
		if code == CodeUnsupportedProtocol || code == CodeCancelled {
			o.breakers.Release(key)
		} else if opened := o.breakers.RecordFailure(key); opened {
			log.Warn("circuit opened", zap.Int("failures", o.breakers.Failures(key)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		o.metrics.ObserveAgent(string(a.Kind), code, out.Elapsed)
		log.Info("agent failed", zap.String("outcome", code), zap.Duration("elapsed", out.Elapsed))
		return out
	}

	o.breakers.RecordSuccess(key)
	out.Status = StatusOK
	if out.Items == nil {
		out.Items = []models.RankedItem{}
	}
	o.metrics.ObserveAgent(string(a.Kind), string(StatusOK), out.Elapsed)
	log.Info("agent done", zap.String("outcome", string(StatusOK)), zap.Int("items", len(out.Items)),
		zap.Duration("elapsed", out.Elapsed), zap.Bool("scoring_degraded", out.ScoringDegraded),
		zap.Bool("context_unavailable", out.ContextUnavailable))
	return out
}

// classify maps an agent error onto its outcome code.
func classify(err error) string {
	var (
		timeoutErr  *mcpclient.TimeoutError
		connectErr  *mcpclient.ConnectError
		protoErr    *mcpclient.ProtocolError
		httpErr     *mcpclient.HTTPError
		rpcErr      *rpc.Error
		invalidErr  *InvalidResponseError
		unsupported *UnsupportedProtocolError
	)
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		return CodeCircuitOpen
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.As(err, &connectErr):
		return CodeConnect
	case errors.As(err, &protoErr), errors.As(err, &httpErr):
		return CodeProtocol
	case errors.As(err, &rpcErr), errors.Is(err, mcpclient.ErrSessionRequired):
		return CodeRPC
	case errors.As(err, &invalidErr):
		return CodeInvalidResponse
	case errors.As(err, &unsupported):
		return CodeUnsupportedProtocol
	default:
		return CodeInternal
	}
}
