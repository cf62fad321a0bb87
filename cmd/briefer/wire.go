package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/briefer/config"
	core "github.com/mohammad-safakhou/briefer/internal/agent/core"
	"github.com/mohammad-safakhou/briefer/internal/breaker"
	"github.com/mohammad-safakhou/briefer/internal/logger"
	"github.com/mohammad-safakhou/briefer/internal/ranking"
	"github.com/mohammad-safakhou/briefer/internal/retrieval"
	"github.com/mohammad-safakhou/briefer/internal/store"
	"github.com/mohammad-safakhou/briefer/internal/telemetry"
	"github.com/mohammad-safakhou/briefer/internal/webcontext"
	"github.com/mohammad-safakhou/briefer/provider"
	"github.com/mohammad-safakhou/briefer/tools/embedding"
	"go.uber.org/zap"
)

// app holds the components shared by serve and rank.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.Store
	metrics *telemetry.Metrics
	orch    *core.Orchestrator
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.log.Sync()
}

func bootstrap(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.General.LogLevel, cfg.General.Debug)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	st, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New()
	}

	prefilterOpts := []retrieval.Option{
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithSemanticWeight(cfg.Retrieval.SemanticWeight),
		retrieval.WithLogger(log.Named("retrieval")),
	}
	var scorer ranking.Scorer
	var embedder retrieval.Embedder
	if llm, err := newLLM(ctx, cfg); err != nil {
		log.Warn("language model unavailable, ranking uses provisional scores", zap.Error(err))
	} else if llm != nil {
		scorer = llm
		embedder = embedding.NewEmbedding(llm, cfg.Ranking.Provider, cfg.Retrieval.CacheTTL)
		prefilterOpts = append(prefilterOpts, retrieval.WithExpander(llm))
	}

	var enricher *webcontext.Enricher
	if cfg.WebContext.Enabled {
		p, err := provider.NewContextProvider(ctx, cfg.WebContext.Provider, cfg.WebContext.APIKey, cfg.WebContext.Model)
		if err != nil {
			log.Warn("web context backend unavailable", zap.String("provider", cfg.WebContext.Provider), zap.Error(err))
		}
		enricher = webcontext.NewEnricher(p,
			webcontext.WithTimeout(cfg.WebContext.Timeout),
			webcontext.WithMaxSnippets(cfg.WebContext.MaxSnippets),
			webcontext.WithLogger(log.Named("webcontext")),
		)
	}

	breakers := breaker.New(breaker.Config{Threshold: cfg.Orchestrator.CBFails, Cooldown: cfg.Orchestrator.CBCooldown})
	orch := core.NewOrchestrator(core.Config{
		Concurrency:   cfg.Orchestrator.Concurrency,
		AgentTimeout:  cfg.Orchestrator.AgentTimeout,
		ClientName:    cfg.Orchestrator.ClientName,
		ClientVersion: cfg.Orchestrator.ClientVersion,
	}, breakers, core.Dependencies{
		Catalog:   st,
		Prefilter: retrieval.NewPrefilter(embedder, prefilterOpts...),
		Enricher:  enricher,
		Pipeline: ranking.NewPipeline(scorer, ranking.Config{
			Threshold:     cfg.Ranking.Threshold,
			BatchSize:     cfg.Ranking.BatchSize,
			MaxCandidates: cfg.Retrieval.MaxCandidates,
		}, log.Named("ranking")),
		HTTPClient: &http.Client{},
		Metrics:    metrics,
		Logger:     log.Named("orchestrator"),
	})

	return &app{cfg: cfg, log: log, store: st, metrics: metrics, orch: orch}, nil
}

// newLLM returns nil without error when ranking runs without a model.
func newLLM(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	var p config.LLMProvider
	switch cfg.Ranking.Provider {
	case "", "none":
		return nil, nil
	case string(provider.Gemini):
		p = cfg.LLM.Gemini
	case string(provider.OpenAI):
		p = cfg.LLM.OpenAI
	}
	model := p.Model
	if cfg.Ranking.Model != "" {
		model = cfg.Ranking.Model
	}
	return provider.NewProvider(ctx, provider.Client(cfg.Ranking.Provider), provider.Options{
		APIKey:          p.APIKey,
		BaseURL:         p.BaseURL,
		CompletionModel: model,
		EmbeddingModel:  p.EmbeddingModel,
		Temperature:     p.Temperature,
		MaxTokens:       p.MaxTokens,
		Timeout:         cfg.LLM.Timeout,
	})
}
