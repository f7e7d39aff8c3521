// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/orka-ai/orka/pkg/memory"
	"github.com/orka-ai/orka/pkg/types"
)

// MemoryNodeConfig is the memory node's static configuration. The preset
// resolves to search parameters for reads and classification/retention
// parameters for writes; explicit fields override the preset.
type MemoryNodeConfig struct {
	Operation string `yaml:"operation"` // read | write
	Namespace string `yaml:"namespace"`
	Preset    string `yaml:"preset"`

	// Read overrides.
	Limit               int     `yaml:"limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Write options.
	MemoryType string            `yaml:"memory_type"`
	Metadata   map[string]string `yaml:"metadata"`
}

// MemoryNode reads from or writes to the memory store under a preset.
type MemoryNode struct {
	id     string
	config MemoryNodeConfig
	preset memory.Preset
	store  memory.Store
}

// NewMemoryNode creates a memory node. The preset name is resolved at
// construction so unknown presets fail at build time, not mid-run.
func NewMemoryNode(id string, config MemoryNodeConfig, store memory.Store) (*MemoryNode, error) {
	preset := memory.DefaultPreset()
	if config.Preset != "" {
		var err error
		preset, err = memory.PresetByName(config.Preset)
		if err != nil {
			return nil, err
		}
	}
	return &MemoryNode{id: id, config: config, preset: preset, store: store}, nil
}

// MemoryFactory returns a registry factory with the store bound.
func MemoryFactory(store memory.Store) Factory {
	return func(id string, params map[string]any) (Node, error) {
		var config MemoryNodeConfig
		if err := DecodeParams(params, &config); err != nil {
			return nil, err
		}
		return NewMemoryNode(id, config, store)
	}
}

func (a *MemoryNode) ID() string   { return a.id }
func (a *MemoryNode) Type() string { return "memory" }

func (a *MemoryNode) Describe() Description {
	return Description{
		Type:         "memory",
		Summary:      fmt.Sprintf("memory %s (%s preset)", a.config.Operation, a.preset.Name),
		MemoryWriter: a.config.Operation == "write",
	}
}

func (a *MemoryNode) Validate() error {
	if a.store == nil {
		return fmt.Errorf("memory node requires a store")
	}
	switch a.config.Operation {
	case "read", "write":
	default:
		return fmt.Errorf("operation must be read or write, got %q", a.config.Operation)
	}
	if a.config.Namespace == "" {
		return fmt.Errorf("memory node requires a namespace")
	}
	return nil
}

func (a *MemoryNode) Run(ctx context.Context, run *types.Context, prompt string) (*types.AgentOutput, error) {
	switch a.config.Operation {
	case "read":
		return a.read(ctx, run, prompt)
	case "write":
		return a.write(ctx, run, prompt)
	default:
		return nil, fmt.Errorf("unknown operation %q", a.config.Operation)
	}
}

func (a *MemoryNode) read(ctx context.Context, run *types.Context, query string) (*types.AgentOutput, error) {
	params := a.preset.SearchParams(a.config.Namespace)
	if a.config.Limit > 0 {
		params.Limit = a.config.Limit
	}
	if a.config.SimilarityThreshold > 0 {
		params.SimilarityThreshold = a.config.SimilarityThreshold
	}
	params.ContextWindow = recentOutputs(run, 5)

	start := time.Now()
	results, err := a.store.Search(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	matches := make([]map[string]any, 0, len(results))
	for _, r := range results {
		matches = append(matches, map[string]any{
			"id":      r.Entry.ID,
			"content": r.Entry.Content,
			"score":   r.Score,
		})
	}
	out := types.Success(a.id, matches)
	out.Metrics.LatencyMS = time.Since(start).Milliseconds()
	out.Trace = &types.Trace{Prompt: query}
	return out, nil
}

func (a *MemoryNode) write(ctx context.Context, run *types.Context, content string) (*types.AgentOutput, error) {
	meta := make(map[string]string, len(a.config.Metadata)+len(run.Metadata))
	for k, v := range run.Metadata {
		meta[k] = v
	}
	for k, v := range a.config.Metadata {
		meta[k] = v
	}

	entry := &memory.Entry{
		Namespace: a.config.Namespace,
		NodeID:    a.id,
		TraceID:   run.TraceID,
		Content:   content,
		Category:  memory.CategoryStored,
		Type:      memory.MemoryType(a.config.MemoryType),
		Metadata:  meta,
	}
	entry.NoEmbed = !a.preset.Write.Vectorize
	entry.Retention = memory.RetentionHours{
		ShortTerm: a.preset.Write.ShortTermHours,
		LongTerm:  a.preset.Write.LongTermHours,
	}
	if entry.Type == "" && a.preset.Write.PinnedType != "" {
		entry.Type = a.preset.Write.PinnedType
	}

	start := time.Now()
	id, err := a.store.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("memory append: %w", err)
	}
	out := types.Success(a.id, id)
	out.Metrics.LatencyMS = time.Since(start).Milliseconds()
	return out, nil
}

// recentOutputs collects up to n prior result strings for the context
// window of hybrid search.
func recentOutputs(run *types.Context, n int) []string {
	var out []string
	for _, o := range run.PreviousOutputs {
		if s := o.ResultString(); s != "" {
			out = append(out, s)
		}
		if len(out) >= n {
			break
		}
	}
	return out
}
