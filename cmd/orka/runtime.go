// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"

	"github.com/orka-ai/orka/pkg/agent"
	"github.com/orka-ai/orka/pkg/audit"
	"github.com/orka-ai/orka/pkg/config"
	"github.com/orka-ai/orka/pkg/memory"
	"github.com/orka-ai/orka/pkg/memory/embedding"
	"github.com/orka-ai/orka/pkg/run"
	"go.uber.org/zap"
)

// runtime assembles the process-wide collaborators from settings.
type runtime struct {
	settings    *config.Settings
	logger      *zap.Logger
	store       memory.Store
	archive     audit.Archive
	sweeper     *memory.Sweeper
	coordinator *run.Coordinator
}

// newRuntime loads config and builds the stack. Callers own close().
func newRuntime(ctx context.Context) (*runtime, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := settings.Logger()
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(settings, logger)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, settings, embedder, logger)
	if err != nil {
		return nil, err
	}
	archive, err := audit.New(audit.Config{
		Type:    settings.Archive.Type,
		Path:    settings.Archive.Path,
		MaxRuns: settings.Archive.MaxRuns,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	policy := settings.RetentionPolicy()
	sweeper := memory.NewSweeper(store, policy, logger)
	if err := sweeper.Start(); err != nil {
		store.Close()
		archive.Close()
		return nil, err
	}

	provider, err := buildProvider(settings, logger)
	if err != nil {
		store.Close()
		archive.Close()
		return nil, err
	}
	registry := agent.NewRegistry()
	registry.Register("llm", agent.LLMFactory(provider, logger))
	registry.Register("classifier", agent.ClassifierFactory(provider))
	registry.Register("search", agent.SearchFactory(agent.NewMockSearch()))
	registry.Register("memory", agent.MemoryFactory(store))

	coordinator := run.New(run.Config{
		Registry:    registry,
		Store:       store,
		Archive:     archive,
		Logger:      logger,
		JoinTimeout: settings.Engine.JoinTimeout(),
		Evaluator:   provider,
	})

	return &runtime{
		settings:    settings,
		logger:      logger,
		store:       store,
		archive:     archive,
		sweeper:     sweeper,
		coordinator: coordinator,
	}, nil
}

func (rt *runtime) close() {
	rt.sweeper.Stop()
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("store close failed", zap.Error(err))
	}
	if err := rt.archive.Close(); err != nil {
		rt.logger.Warn("archive close failed", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

func buildEmbedder(settings *config.Settings, logger *zap.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	if settings.Embedding.Endpoint != "" {
		inner = embedding.NewHTTP(embedding.HTTPConfig{
			Host:      settings.Embedding.Endpoint,
			Dimension: settings.Embedding.Dimension,
			Logger:    logger,
		})
	} else {
		inner = embedding.NewLocal(settings.Embedding.Dimension)
	}
	if settings.Embedding.CacheSize > 0 {
		return embedding.NewCached(inner, settings.Embedding.CacheSize)
	}
	return inner, nil
}

func buildStore(ctx context.Context, settings *config.Settings, embedder embedding.Embedder, logger *zap.Logger) (memory.Store, error) {
	policy := settings.RetentionPolicy()
	switch settings.Memory.Backend {
	case "redis":
		return memory.NewRedis(ctx, memory.RedisConfig{
			URL:       settings.Memory.URL,
			IndexName: settings.Memory.IndexName,
			Policy:    policy,
			Embedder:  embedder,
			Logger:    logger,
		})
	case "inmemory":
		return memory.NewInMemory(memory.InMemoryConfig{
			Policy:   policy,
			Embedder: embedder,
			Logger:   logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", settings.Memory.Backend)
	}
}

func buildProvider(settings *config.Settings, logger *zap.Logger) (agent.LLMProvider, error) {
	switch settings.LLM.Provider {
	case "http":
		if settings.LLM.Endpoint == "" {
			return nil, fmt.Errorf("llm provider %q requires llm.endpoint (ORKA_LLM_ENDPOINT)", settings.LLM.Provider)
		}
		return agent.NewHTTPProvider(agent.HTTPProviderConfig{
			Host:   settings.LLM.Endpoint,
			Model:  settings.LLM.Model,
			APIKey: settings.LLM.APIKey,
			Logger: logger,
		}), nil
	case "mock":
		mock := agent.NewMockLLM()
		mock.Default = "mock response"
		return mock, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (supported: mock, http)", settings.LLM.Provider)
	}
}
