// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package graph loads workflow documents into an immutable graph and
// validates them against the node registry. Each node type's parameters
// are a discriminated variant keyed by the type tag; the loader decodes
// them into typed specs so the engine never touches raw maps.
package graph

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy selects top-level scheduling for the orchestrator sequence.
type Strategy string

const (
	StrategySequential Strategy = "sequential"

	// StrategyParallel executes the top-level sequence concurrently with
	// an implicit join at the end.
	StrategyParallel Strategy = "parallel"
)

// Policy selects the engine's reaction to a failed node.
type Policy string

const (
	PolicyContinue Policy = "continue"
	PolicyAbort    Policy = "abort"
)

// Duration accepts "30s"-style strings or bare numbers of seconds in
// workflow documents.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asString string
	if err := value.Decode(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("bad duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("bad duration at line %d", value.Line)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Document is the raw workflow file shape.
type Document struct {
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Agents       []*NodeSpec  `yaml:"agents"`
}

// Orchestrator is the document's top-level section.
type Orchestrator struct {
	ID           string         `yaml:"id"`
	Strategy     Strategy       `yaml:"strategy"`
	Agents       []string       `yaml:"agents"`
	MemoryPreset string         `yaml:"memory_preset"`
	MemoryConfig map[string]any `yaml:"memory_config"`
}

// NodeSpec is one node definition. Params carries the flat type-specific
// keys; the loader decodes them into exactly one typed variant.
type NodeSpec struct {
	ID     string `yaml:"id"`
	Type   string `yaml:"type"`
	Prompt string `yaml:"prompt"`

	// Timeout is the total node budget; AttemptTimeout bounds one attempt.
	Timeout        Duration `yaml:"timeout"`
	AttemptTimeout Duration `yaml:"attempt_timeout"`

	// Policy defaults to continue.
	Policy Policy `yaml:"policy"`

	// Concurrency caps simultaneous executions of this node. Zero means
	// unlimited.
	Concurrency int `yaml:"concurrency"`

	Params map[string]any `yaml:",inline"`

	// Typed variants, populated by the loader for control-flow types.
	Router   *RouterSpec   `yaml:"-"`
	Fork     *ForkSpec     `yaml:"-"`
	Join     *JoinSpec     `yaml:"-"`
	Failover *FailoverSpec `yaml:"-"`
	Loop     *LoopSpec     `yaml:"-"`
	Scout    *ScoutSpec    `yaml:"-"`
}

// RouterSpec routes execution based on a prior output value.
type RouterSpec struct {
	DecisionKey string              `yaml:"decision_key"`
	RoutingMap  map[string][]string `yaml:"routing_map"`
	Default     []string            `yaml:"default"`
}

// ForkSpec launches branches under a fresh fork group.
type ForkSpec struct {
	Targets [][]string `yaml:"targets"`
	Mode    string     `yaml:"mode"` // parallel | sequential

	// RequireAll decides whether a failed branch fails the matching join.
	// Defaults to true.
	RequireAll *bool `yaml:"require_all"`

	// MaxWorkers bounds the parallel worker pool. Zero means one worker
	// per branch.
	MaxWorkers int `yaml:"max_workers"`
}

// JoinSpec blocks until a fork group's outputs are all present.
type JoinSpec struct {
	Group   string   `yaml:"group"`
	Timeout Duration `yaml:"timeout"`
}

// FailoverSpec holds the ordered inline children; first success wins.
type FailoverSpec struct {
	Children []*NodeSpec `yaml:"children"`
}

// ScoreExtraction selects how a loop reads its iteration score: a direct
// path into the iteration outputs, or a regex whose first capture group
// parses as a float.
type ScoreExtraction struct {
	Path    string `yaml:"path"`
	Pattern string `yaml:"pattern"`
}

// LoopSpec runs a nested workflow until a score threshold or iteration
// cap is reached.
type LoopSpec struct {
	MaxLoops         int             `yaml:"max_loops"`
	ScoreThreshold   float64         `yaml:"score_threshold"`
	ScoreExtraction  ScoreExtraction `yaml:"score_extraction"`
	InternalWorkflow *Document       `yaml:"internal_workflow"`

	// PastLoopsMetadata is a template-driven projection rendered against
	// each iteration's context to build its summary.
	PastLoopsMetadata map[string]string `yaml:"past_loops_metadata"`

	// CognitiveExtraction maps category names to regex lists applied to
	// iteration outputs; hits accumulate across iterations.
	CognitiveExtraction map[string][]string `yaml:"cognitive_extraction"`
}

// ScoutSpec evaluates candidate downstream paths before committing.
type ScoutSpec struct {
	KBeam           int     `yaml:"k_beam"`
	MaxDepth        int     `yaml:"max_depth"`
	CommitMargin    float64 `yaml:"commit_margin"`
	CostBudgetUSD   float64 `yaml:"cost_budget_usd"`
	LatencyBudgetMS int64   `yaml:"latency_budget_ms"`
	SafetyThreshold float64 `yaml:"safety_threshold"`

	ScoringMode string `yaml:"scoring_mode"` // numeric | boolean

	// ImportantThreshold is the fraction of capability criteria that must
	// pass in boolean mode.
	ImportantThreshold float64 `yaml:"important_threshold"`

	// DenyPatterns are regexes screening candidate prompts.
	DenyPatterns []string `yaml:"deny_patterns"`

	// Weights tune the numeric score components: llm, capability,
	// history, cost, latency.
	Weights map[string]float64 `yaml:"weights"`
}

// Graph is the immutable loaded workflow.
type Graph struct {
	ID           string
	Strategy     Strategy
	Sequence     []string
	Nodes        map[string]*NodeSpec
	MemoryPreset string
	MemoryConfig map[string]any
}

// Node returns a node spec by id, or nil.
func (g *Graph) Node(id string) *NodeSpec { return g.Nodes[id] }
