package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kalambet/semdoc/internal/api"
	"github.com/kalambet/semdoc/internal/config"
	"github.com/kalambet/semdoc/internal/documents"
	"github.com/kalambet/semdoc/internal/embedding"
	"github.com/kalambet/semdoc/internal/engine"
	"github.com/kalambet/semdoc/internal/graph"
	"github.com/kalambet/semdoc/internal/index"
	"github.com/kalambet/semdoc/internal/metrics"
	"github.com/kalambet/semdoc/internal/stats"
	"github.com/kalambet/semdoc/internal/storage"
)

// app is the wired service graph shared by the HTTP and MCP front ends.
type app struct {
	store    *storage.Store
	index    *index.SQLiteIndex
	docs     *documents.Store
	graph    *graph.Engine
	stats    *stats.Aggregator
	metrics  *metrics.Metrics
	info     api.Info
	defaults api.Defaults
}

func (a *app) Close() error {
	return a.store.Close()
}

// newLogger builds the process logger from the log section of the config.
func newLogger(lc config.LogConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildApp connects the embedding engine, probes its dimension and opens the
// collection. Engine readiness output goes to progress.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, progress io.Writer) (*app, error) {
	ec := cfg.Embedding
	eng, err := engine.Detect(engine.DetectConfig{
		Provider:   ec.Provider,
		BaseURL:    ec.BaseURL,
		APIKey:     ec.APIKey,
		Dimensions: ec.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting embedding engine: %w", err)
	}
	model := engine.ModelFor(ec.Provider, ec.Model)
	if ec.Provider == "" || ec.Provider == engine.ProviderOllama {
		if err := engine.EnsureReady(ctx, eng, model, progress); err != nil {
			return nil, err
		}
	}

	enc := embedding.New(eng, model, embedding.Options{
		Concurrency: ec.Concurrency,
		RateLimit:   ec.RateLimit,
	})
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	dim, err := enc.Probe(probeCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("probing embedding dimension: %w", err)
	}
	logger.Info("embedding model ready", "provider", ec.Provider, "model", model, "dimension", dim)

	store, err := storage.Open(cfg.Index.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	coll, err := store.EnsureCollection(cfg.Index.Collection, dim, model)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening collection %s: %w", cfg.Index.Collection, err)
	}
	if coll.EmbedModel != model {
		logger.Warn("collection was created with a different model of the same dimension",
			"collection", coll.Name, "created_with", coll.EmbedModel, "model", model)
	}
	idx := index.NewSQLiteIndex(store.DB(), coll)

	m := metrics.New()
	m.RegisterCollectionSize(func() float64 {
		n, err := idx.Count(context.Background())
		if err != nil {
			logger.Warn("counting documents for metrics", "error", err)
			return 0
		}
		return float64(n)
	})

	return &app{
		store: store,
		index: idx,
		docs: documents.New(idx, enc, documents.Options{
			Logger:   logger,
			Observer: m,
		}),
		graph: graph.New(idx, graph.Options{
			CandidateLimit: cfg.Graph.CandidateLimit,
			Logger:         logger,
		}),
		stats:   stats.New(idx, cfg.Stats.PageSize),
		metrics: m,
		info: api.Info{
			Name:       "semdoc",
			Version:    version,
			Collection: coll.Name,
			Model:      model,
			Dimension:  dim,
		},
		defaults: api.Defaults{
			Limit:          cfg.Search.DefaultLimit,
			ScoreThreshold: float32(cfg.Search.DefaultThreshold),
			GraphThreshold: float32(cfg.Graph.Threshold),
		},
	}, nil
}
