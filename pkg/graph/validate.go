// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// controlTypes are scheduled by the engine itself and need no registry
// factory.
var controlTypes = map[string]bool{
	"router":      true,
	"fork":        true,
	"join":        true,
	"failover":    true,
	"loop":        true,
	"graph_scout": true,
}

// TypeSet answers whether a leaf-agent type tag is registered.
type TypeSet interface {
	Has(typeTag string) bool
}

// InvalidError aggregates every validation issue found in one pass.
type InvalidError struct {
	Reasons []string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid workflow: %s", strings.Join(e.Reasons, "; "))
}

// Validate checks the whole graph, recursing into failover children and
// loop internal workflows. All issues are accumulated; a nil return means
// the graph is executable against the given type set.
func (g *Graph) Validate(registered TypeSet) error {
	v := &validator{registered: registered}
	v.graph(g, "")
	if len(v.reasons) > 0 {
		return &InvalidError{Reasons: v.reasons}
	}
	return nil
}

type validator struct {
	registered TypeSet
	reasons    []string
}

func (v *validator) addf(format string, args ...any) {
	v.reasons = append(v.reasons, fmt.Sprintf(format, args...))
}

func (v *validator) graph(g *Graph, scope string) {
	prefix := ""
	if scope != "" {
		prefix = scope + ": "
	}
	if g.ID == "" {
		v.addf("%sorchestrator id is required", prefix)
	}
	if g.Strategy != StrategySequential && g.Strategy != StrategyParallel {
		v.addf("%sunknown strategy %q", prefix, g.Strategy)
	}
	if len(g.Sequence) == 0 {
		v.addf("%sorchestrator agents list is empty", prefix)
	}
	for _, id := range g.Sequence {
		if _, ok := g.Nodes[id]; !ok {
			v.addf("%ssequence references undefined node %q", prefix, id)
		}
	}
	for id, spec := range g.Nodes {
		if spec.ID == "" {
			v.addf("%snode with type %q has no id", prefix, spec.Type)
		}
		v.node(g, spec, prefix+id)
	}
}

func (v *validator) node(g *Graph, spec *NodeSpec, scope string) {
	if spec.Type == "" {
		v.addf("%s: node type is required", scope)
		return
	}
	if !controlTypes[spec.Type] && !v.registered.Has(spec.Type) {
		v.addf("%s: unregistered node type %q", scope, spec.Type)
	}
	if spec.Policy != PolicyContinue && spec.Policy != PolicyAbort {
		v.addf("%s: unknown policy %q", scope, spec.Policy)
	}

	switch spec.Type {
	case "router":
		v.router(g, spec, scope)
	case "fork":
		v.fork(g, spec, scope)
	case "join":
		v.join(g, spec, scope)
	case "failover":
		v.failover(spec, scope)
	case "loop":
		v.loop(spec, scope)
	case "graph_scout":
		v.scout(spec, scope)
	}
}

func (v *validator) router(g *Graph, spec *NodeSpec, scope string) {
	r := spec.Router
	if r.DecisionKey == "" {
		v.addf("%s: router requires decision_key", scope)
	}
	if len(r.RoutingMap) == 0 {
		v.addf("%s: router requires a routing_map", scope)
	}
	for value, targets := range r.RoutingMap {
		for _, id := range targets {
			if _, ok := g.Nodes[id]; !ok {
				v.addf("%s: route %q targets undefined node %q", scope, value, id)
			}
		}
	}
	for _, id := range r.Default {
		if _, ok := g.Nodes[id]; !ok {
			v.addf("%s: default route targets undefined node %q", scope, id)
		}
	}
}

func (v *validator) fork(g *Graph, spec *NodeSpec, scope string) {
	f := spec.Fork
	if len(f.Targets) == 0 {
		v.addf("%s: fork requires at least one branch", scope)
	}
	for i, branch := range f.Targets {
		if len(branch) == 0 {
			v.addf("%s: fork branch %d is empty", scope, i)
		}
		for _, id := range branch {
			if _, ok := g.Nodes[id]; !ok {
				v.addf("%s: fork branch %d targets undefined node %q", scope, i, id)
			}
		}
	}
	if f.Mode != "" && f.Mode != "parallel" && f.Mode != "sequential" {
		v.addf("%s: fork mode must be parallel or sequential, got %q", scope, f.Mode)
	}
}

func (v *validator) join(g *Graph, spec *NodeSpec, scope string) {
	j := spec.Join
	if j.Group == "" {
		v.addf("%s: join requires a group", scope)
		return
	}
	target, ok := g.Nodes[j.Group]
	if !ok {
		v.addf("%s: join group references undefined node %q", scope, j.Group)
		return
	}
	if target.Type != "fork" {
		v.addf("%s: join group %q is not a fork node", scope, j.Group)
	}
}

func (v *validator) failover(spec *NodeSpec, scope string) {
	f := spec.Failover
	if len(f.Children) == 0 {
		v.addf("%s: failover requires at least one child", scope)
		return
	}
	seen := make(map[string]bool, len(f.Children))
	for _, child := range f.Children {
		if child.ID == "" {
			v.addf("%s: failover child has no id", scope)
			continue
		}
		if child.ID == spec.ID {
			v.addf("%s: failover child %q shadows its parent", scope, child.ID)
		}
		if seen[child.ID] {
			v.addf("%s: duplicate failover child %q", scope, child.ID)
		}
		seen[child.ID] = true
		v.node(&Graph{Nodes: map[string]*NodeSpec{}}, child, scope+"/"+child.ID)
	}
}

func (v *validator) loop(spec *NodeSpec, scope string) {
	l := spec.Loop
	if l.MaxLoops < 1 {
		v.addf("%s: loop max_loops must be >= 1", scope)
	}
	if l.ScoreExtraction.Path == "" && l.ScoreExtraction.Pattern == "" {
		v.addf("%s: loop requires score_extraction path or pattern", scope)
	}
	if l.ScoreExtraction.Pattern != "" {
		if _, err := regexp.Compile(l.ScoreExtraction.Pattern); err != nil {
			v.addf("%s: bad score_extraction pattern: %v", scope, err)
		}
	}
	for category, patterns := range l.CognitiveExtraction {
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				v.addf("%s: bad cognitive_extraction pattern in %q: %v", scope, category, err)
			}
		}
	}
	if l.InternalWorkflow == nil {
		v.addf("%s: loop requires internal_workflow", scope)
		return
	}
	inner, err := build(l.InternalWorkflow)
	if err != nil {
		v.addf("%s: internal_workflow: %v", scope, err)
		return
	}
	v.graph(inner, scope+"/internal_workflow")
}

func (v *validator) scout(spec *NodeSpec, scope string) {
	s := spec.Scout
	if s.ScoringMode != "" && s.ScoringMode != "numeric" && s.ScoringMode != "boolean" {
		v.addf("%s: scoring_mode must be numeric or boolean, got %q", scope, s.ScoringMode)
	}
	for _, p := range s.DenyPatterns {
		if _, err := regexp.Compile(p); err != nil {
			v.addf("%s: bad deny pattern: %v", scope, err)
		}
	}
}
