// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a node from its id and the workflow's parameter map.
type Factory func(id string, params map[string]any) (Node, error)

// Registry maps workflow type tags to node constructors. Control-flow
// types are registered by the engine; leaf-agent types by the run
// coordinator with its providers bound into the factory closures.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a type tag to a factory. Re-registering a tag replaces
// the previous factory.
func (r *Registry) Register(typeTag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeTag] = factory
}

// Has reports whether a type tag is registered.
func (r *Registry) Has(typeTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeTag]
	return ok
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build constructs a node and validates its static configuration.
func (r *Registry) Build(id, typeTag string, params map[string]any) (Node, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeTag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unregistered node type %q for node %q", typeTag, id)
	}
	node, err := factory(id, params)
	if err != nil {
		return nil, fmt.Errorf("building node %q: %w", id, err)
	}
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config for node %q: %w", id, err)
	}
	return node, nil
}
