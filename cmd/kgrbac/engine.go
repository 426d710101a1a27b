package main

import (
	"context"
	"fmt"
	"time"

	"kgrbac.org/internal/config"
	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/engine/local"
	"kgrbac.org/internal/engine/remote"
	"kgrbac.org/internal/llm"
	"kgrbac.org/internal/migrate"
	"kgrbac.org/internal/obs"
	"kgrbac.org/internal/store/pg"
	"kgrbac.org/internal/store/pg/migrations"
)

func newLLM(cfg config.Config) (*llm.Client, error) {
	return llm.New(llm.Config{
		Endpoint:          cfg.LLMEndpoint,
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		RequestsPerSecond: 2,
	})
}

// openEngine picks the remote engine when a URL is configured, otherwise the
// in-process engine backed by Postgres or memory.
func openEngine(ctx context.Context, cfg config.Config) (engine.Engine, func(), error) {
	noop := func() {}
	if cfg.EngineURL != "" {
		obs.Info("engine_selected", map[string]any{"kind": "remote", "url": cfg.EngineURL})
		return engine.Instrument(remote.New(cfg.EngineURL, nil)), noop, nil
	}

	completer, err := newLLM(cfg)
	if err != nil {
		return nil, noop, err
	}
	opts := local.Options{AccessControl: cfg.AccessControl, Completer: completer}

	if cfg.PostgresDSN == "" {
		obs.Info("engine_selected", map[string]any{"kind": "local", "store": "memory"})
		return engine.Instrument(local.New(local.NewMemoryStore(), opts)), noop, nil
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, noop, err
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := migrate.NewManager(store.DB(), migrations.FS).Up(mctx); err != nil {
		_ = store.Close()
		return nil, noop, fmt.Errorf("apply migrations: %w", err)
	}
	obs.Info("engine_selected", map[string]any{"kind": "local", "store": "postgres"})
	return engine.Instrument(local.New(store, opts)), func() { _ = store.Close() }, nil
}
