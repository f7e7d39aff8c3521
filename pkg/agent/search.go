// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/orka-ai/orka/pkg/types"
)

// SearchConfig is the search agent's static configuration.
type SearchConfig struct {
	Limit int `yaml:"limit"`
}

// Search is the leaf agent calling a retrieval provider. Its result is
// the snippet list.
type Search struct {
	id       string
	config   SearchConfig
	provider SearchProvider
}

// NewSearch creates a search agent bound to a provider.
func NewSearch(id string, config SearchConfig, provider SearchProvider) *Search {
	if config.Limit <= 0 {
		config.Limit = 5
	}
	return &Search{id: id, config: config, provider: provider}
}

// SearchFactory returns a registry factory with the provider bound.
func SearchFactory(provider SearchProvider) Factory {
	return func(id string, params map[string]any) (Node, error) {
		var config SearchConfig
		if err := DecodeParams(params, &config); err != nil {
			return nil, err
		}
		return NewSearch(id, config, provider), nil
	}
}

func (a *Search) ID() string   { return a.id }
func (a *Search) Type() string { return "search" }

func (a *Search) Describe() Description {
	return Description{
		Type:    "search",
		Summary: fmt.Sprintf("retrieval via %s", a.provider.Name()),
	}
}

func (a *Search) Validate() error {
	if a.provider == nil {
		return fmt.Errorf("search agent requires a provider")
	}
	return nil
}

func (a *Search) Run(ctx context.Context, _ *types.Context, prompt string) (*types.AgentOutput, error) {
	start := time.Now()
	snippets, err := a.provider.Search(ctx, prompt, a.config.Limit)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.provider.Name(), err)
	}
	out := types.Success(a.id, snippets)
	out.Metrics.LatencyMS = time.Since(start).Milliseconds()
	out.Trace = &types.Trace{Prompt: prompt}
	return out, nil
}
