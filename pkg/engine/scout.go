// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/orka-ai/orka/pkg/agent"
	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/types"
	"go.uber.org/zap"
)

// Scout decisions.
const (
	decisionCommitNext = "commit_next"
	decisionShortlist  = "shortlist"
	decisionNoPath     = "no_path"
)

// candidate is one downstream subsequence under evaluation.
type candidate struct {
	Path  []string `json:"path"`
	Score float64  `json:"score"`
}

// runScout enumerates candidate downstream subsequences, scores them, and
// either commits one path, shortlists several, or fails with NoViablePath
// when nothing passes the safety and budget gates.
func (e *Engine) runScout(ctx context.Context, g *graph.Graph, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, []string, error) {
	s := spec.Scout
	kBeam := s.KBeam
	if kBeam <= 0 {
		kBeam = 3
	}
	maxDepth := s.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	mode := s.ScoringMode
	if mode == "" {
		mode = "numeric"
	}

	snap := writer.Snapshot()
	downstream := e.downstreamNodes(g, spec.ID, snap)
	if len(downstream) == 0 {
		out := types.Failed(spec.ID, types.ErrKindNoViablePath,
			fmt.Errorf("scout %q: no downstream nodes to evaluate", spec.ID))
		return out, nil, nil
	}

	deny, err := compilePatterns(s.DenyPatterns)
	if err != nil {
		return nil, nil, &abortError{kind: types.ErrKindGraphInvalid,
			err: fmt.Errorf("scout %q: %w", spec.ID, err)}
	}

	var passed []candidate
	for _, path := range enumeratePaths(downstream, maxDepth) {
		if !e.gates(g, path, snap, s, deny) {
			continue
		}
		var score float64
		if mode == "boolean" {
			score = e.capabilityScore(g, path, snap)
			threshold := s.ImportantThreshold
			if threshold <= 0 {
				threshold = 0.5
			}
			if score < threshold {
				continue
			}
		} else {
			score = e.numericScore(ctx, g, path, snap, s)
		}
		passed = append(passed, candidate{Path: path, Score: score})
	}

	if len(passed) == 0 {
		out := types.Failed(spec.ID, types.ErrKindNoViablePath,
			fmt.Errorf("scout %q: no candidate passed safety and budget gates", spec.ID))
		return out, nil, nil
	}

	sort.SliceStable(passed, func(i, j int) bool { return passed[i].Score > passed[j].Score })
	if len(passed) > kBeam {
		passed = passed[:kBeam]
	}

	margin := s.CommitMargin
	if margin <= 0 {
		margin = 0.1
	}

	decision := decisionShortlist
	var next []string
	if len(passed) == 1 || passed[0].Score-passed[1].Score >= margin {
		decision = decisionCommitNext
		next = passed[0].Path
		passed = passed[:1]
	} else {
		// Clustered candidates execute sequentially, deduplicated in
		// shortlist order.
		seen := make(map[string]bool)
		for _, c := range passed {
			for _, id := range c.Path {
				if !seen[id] {
					seen[id] = true
					next = append(next, id)
				}
			}
		}
	}

	e.logger.Debug("scout decision",
		zap.String("node", spec.ID),
		zap.String("decision", decision),
		zap.Strings("next", next))

	out := types.Success(spec.ID, map[string]any{
		"decision":   decision,
		"candidates": passed,
		"next":       next,
	})
	return out, next, nil
}

// downstreamNodes returns the not-yet-executed ids after the scout in the
// static sequence.
func (e *Engine) downstreamNodes(g *graph.Graph, scoutID string, snap *types.Context) []string {
	var after []string
	found := false
	for _, id := range g.Sequence {
		if id == scoutID {
			found = true
			continue
		}
		if found && snap.Output(id) == nil {
			after = append(after, id)
		}
	}
	return after
}

// enumeratePaths yields contiguous subsequences up to maxDepth long.
func enumeratePaths(downstream []string, maxDepth int) [][]string {
	var paths [][]string
	for start := range downstream {
		for depth := 1; depth <= maxDepth && start+depth <= len(downstream); depth++ {
			paths = append(paths, downstream[start:start+depth])
		}
	}
	return paths
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad deny pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// gates checks the critical criteria: input readiness, the safety screen,
// and the cost and latency budgets.
func (e *Engine) gates(g *graph.Graph, path []string, snap *types.Context, s *graph.ScoutSpec, deny []*regexp.Regexp) bool {
	inPath := make(map[string]bool, len(path))
	var totalCost float64
	var totalLatency int64

	for _, id := range path {
		spec := g.Node(id)
		if spec == nil {
			return false
		}
		for _, re := range deny {
			if re.MatchString(spec.Prompt) {
				return false
			}
		}
		for _, ref := range promptReferences(spec.Prompt) {
			if g.Node(ref) == nil {
				continue
			}
			if snap.Output(ref) == nil && !inPath[ref] {
				return false
			}
		}
		inPath[id] = true

		desc := e.describe(spec)
		totalCost += desc.EstimatedCostUSD
		totalLatency += desc.EstimatedLatencyMS
	}

	if s.CostBudgetUSD > 0 && totalCost > s.CostBudgetUSD {
		return false
	}
	if s.LatencyBudgetMS > 0 && totalLatency > s.LatencyBudgetMS {
		return false
	}
	return true
}

// describe returns leaf metadata, or a zero description for control-flow
// nodes and unbuildable specs.
func (e *Engine) describe(spec *graph.NodeSpec) agent.Description {
	switch spec.Type {
	case "router", "fork", "join", "failover", "loop", "graph_scout":
		return agent.Description{Type: spec.Type, ControlFlow: true}
	}
	node, err := e.node(spec)
	if err != nil {
		return agent.Description{Type: spec.Type}
	}
	return node.Describe()
}

// refPattern finds identifiers a prompt depends on.
var refPattern = regexp.MustCompile(`\{\{\s*(?:previous_outputs\.)?([A-Za-z0-9_]+)`)

func promptReferences(prompt string) []string {
	var refs []string
	for _, m := range refPattern.FindAllStringSubmatch(prompt, -1) {
		switch m[1] {
		case "input", "trace_id", "loop_number", "score", "past_loops", "now", "metadata", "fork_group":
			continue
		}
		refs = append(refs, m[1])
	}
	return refs
}

// numericScore combines the weighted components: llm evaluation,
// capability match, historical priors, cost, latency. Missing signals
// score neutral so one absent component never dominates.
func (e *Engine) numericScore(ctx context.Context, g *graph.Graph, path []string, snap *types.Context, s *graph.ScoutSpec) float64 {
	weights := map[string]float64{
		"llm": 0.3, "capability": 0.3, "history": 0.2, "cost": 0.1, "latency": 0.1,
	}
	for k, v := range s.Weights {
		weights[k] = v
	}

	components := map[string]float64{
		"llm":        e.llmEvaluation(ctx, path, snap),
		"capability": e.capabilityScore(g, path, snap),
		"history":    0.5,
		"cost":       budgetScore(e.pathCost(g, path), s.CostBudgetUSD),
		"latency":    budgetScore(float64(e.pathLatency(g, path)), float64(s.LatencyBudgetMS)),
	}

	var sum, total float64
	for name, w := range weights {
		if w <= 0 {
			continue
		}
		sum += w * components[name]
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// llmEvaluation asks the configured evaluator to rate the path, neutral
// when none is configured or the answer does not parse.
func (e *Engine) llmEvaluation(ctx context.Context, path []string, snap *types.Context) float64 {
	if e.config.Evaluator == nil {
		return 0.5
	}
	prompt := fmt.Sprintf(
		"Rate from 0.0 to 1.0 how well the agent sequence [%s] serves this request: %s\nAnswer with only the number.",
		strings.Join(path, ", "), stringifyValue(snap.Input))
	gen, err := e.config.Evaluator.Generate(ctx, prompt, agent.GenerateParams{})
	if err != nil {
		return 0.5
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(gen.Text), 64)
	if err != nil || score < 0 || score > 1 {
		return 0.5
	}
	return score
}

// capabilityScore measures lexical overlap between the request and the
// path's prompts and summaries.
func (e *Engine) capabilityScore(g *graph.Graph, path []string, snap *types.Context) float64 {
	queryTokens := tokenSet(stringifyValue(snap.Input))
	if len(queryTokens) == 0 {
		return 0.5
	}
	matched := 0
	for _, id := range path {
		spec := g.Node(id)
		if spec == nil {
			continue
		}
		text := spec.Prompt + " " + e.describe(spec).Summary + " " + id
		nodeTokens := tokenSet(text)
		for tok := range queryTokens {
			if nodeTokens[tok] {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(path))
}

func (e *Engine) pathCost(g *graph.Graph, path []string) float64 {
	var total float64
	for _, id := range path {
		if spec := g.Node(id); spec != nil {
			total += e.describe(spec).EstimatedCostUSD
		}
	}
	return total
}

func (e *Engine) pathLatency(g *graph.Graph, path []string) int64 {
	var total int64
	for _, id := range path {
		if spec := g.Node(id); spec != nil {
			total += e.describe(spec).EstimatedLatencyMS
		}
	}
	return total
}

// budgetScore maps spend against budget onto [0,1]; no budget is neutral.
func budgetScore(spend, budget float64) float64 {
	if budget <= 0 {
		return 0.5
	}
	if spend >= budget {
		return 0
	}
	return 1 - spend/budget
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,!?:;\"'(){}[]")] = true
	}
	delete(set, "")
	return set
}
