// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package agent defines the uniform node contract, the provider
// interfaces behind leaf agents, and the registry that maps workflow
// type tags to constructors.
package agent

import (
	"context"
	"fmt"

	"github.com/orka-ai/orka/pkg/types"
	"gopkg.in/yaml.v3"
)

// Description is node metadata used by graph validation and by path
// scouting to estimate candidate cost.
type Description struct {
	Type    string
	Summary string

	// ControlFlow marks nodes the engine schedules specially (router,
	// fork, join, loop, failover, graph scout).
	ControlFlow bool

	// MemoryWriter marks nodes whose output is additionally persisted as
	// a stored-category entry.
	MemoryWriter bool

	EstimatedCostUSD   float64
	EstimatedLatencyMS int64
}

// Node is the single contract every graph vertex implements, leaf agents
// and control-flow nodes alike.
type Node interface {
	ID() string
	Type() string

	// Describe returns metadata for validation and path scouting.
	Describe() Description

	// Validate checks the node's static configuration.
	Validate() error

	// Run executes the node against a context snapshot and the rendered
	// prompt. Errors are wrapped into a failed AgentOutput by the engine.
	Run(ctx context.Context, run *types.Context, prompt string) (*types.AgentOutput, error)
}

// DecodeParams maps loosely-typed workflow parameters onto a typed config
// struct via a YAML round trip, so node configs reuse the document's own
// field names and coercion rules.
func DecodeParams(params map[string]any, out any) error {
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}
