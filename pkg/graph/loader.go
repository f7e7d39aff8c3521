// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a workflow document and decodes each node's typed variant.
// The result is immutable; validation is a separate pass so callers can
// collect every issue at once.
func Load(data []byte) (*Graph, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing workflow: %w", err)
	}
	return build(&doc)
}

// LoadFile reads and parses a workflow file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	return Load(data)
}

// FromDocument assembles a graph from an already-parsed document. Loop
// nodes use it to materialize their internal workflow at run time.
func FromDocument(doc *Document) (*Graph, error) {
	return build(doc)
}

// build assembles the graph from a parsed document, recursing into loop
// internal workflows.
func build(doc *Document) (*Graph, error) {
	g := &Graph{
		ID:           doc.Orchestrator.ID,
		Strategy:     doc.Orchestrator.Strategy,
		Sequence:     append([]string(nil), doc.Orchestrator.Agents...),
		Nodes:        make(map[string]*NodeSpec, len(doc.Agents)),
		MemoryPreset: doc.Orchestrator.MemoryPreset,
		MemoryConfig: doc.Orchestrator.MemoryConfig,
	}
	if g.Strategy == "" {
		g.Strategy = StrategySequential
	}
	for _, spec := range doc.Agents {
		if err := decodeVariant(spec); err != nil {
			return nil, err
		}
		if _, dup := g.Nodes[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", spec.ID)
		}
		g.Nodes[spec.ID] = spec
	}
	return g, nil
}

// decodeVariant fills the typed config for control-flow types from the
// node's flat parameter map. Leaf-agent params stay in Params for the
// registry factory.
func decodeVariant(spec *NodeSpec) error {
	if spec.Policy == "" {
		spec.Policy = PolicyContinue
	}
	switch spec.Type {
	case "router":
		spec.Router = &RouterSpec{}
		return decodeParams(spec, spec.Router)
	case "fork":
		spec.Fork = &ForkSpec{}
		return decodeParams(spec, spec.Fork)
	case "join":
		spec.Join = &JoinSpec{}
		return decodeParams(spec, spec.Join)
	case "failover":
		spec.Failover = &FailoverSpec{}
		if err := decodeParams(spec, spec.Failover); err != nil {
			return err
		}
		for _, child := range spec.Failover.Children {
			if err := decodeVariant(child); err != nil {
				return err
			}
		}
		return nil
	case "loop":
		spec.Loop = &LoopSpec{}
		if err := decodeParams(spec, spec.Loop); err != nil {
			return err
		}
		if spec.Loop.InternalWorkflow != nil {
			for _, child := range spec.Loop.InternalWorkflow.Agents {
				if err := decodeVariant(child); err != nil {
					return err
				}
			}
		}
		return nil
	case "graph_scout":
		spec.Scout = &ScoutSpec{}
		return decodeParams(spec, spec.Scout)
	default:
		return nil
	}
}

func decodeParams(spec *NodeSpec, out any) error {
	raw, err := yaml.Marshal(spec.Params)
	if err != nil {
		return fmt.Errorf("node %q: encoding params: %w", spec.ID, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("node %q: decoding %s params: %w", spec.ID, spec.Type, err)
	}
	return nil
}
