// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"fmt"
	"sync"
)

// PastLoop summarizes one completed loop iteration. Entries live in an
// arena owned by the loop node; the projection map is rendered from the
// loop's past_loops_metadata template against the iteration's context.
type PastLoop struct {
	LoopNumber int               `json:"loop_number"`
	Score      float64           `json:"score"`
	Projection map[string]string `json:"projection,omitempty"`

	// Extractions holds cognitive_extraction hits per category for this
	// iteration.
	Extractions map[string][]string `json:"extractions,omitempty"`

	// Result is the stringified final output of the iteration.
	Result string `json:"result"`
}

// Context is the per-run mutable state. The execution engine is the single
// writer; every other component receives snapshots.
type Context struct {
	Input           any                     `json:"input"`
	TraceID         string                  `json:"trace_id"`
	PreviousOutputs map[string]*AgentOutput `json:"previous_outputs"`

	// Loop fields, populated only inside a loop's nested workflow.
	LoopNumber int        `json:"loop_number,omitempty"`
	Score      float64    `json:"score,omitempty"`
	PastLoops  []PastLoop `json:"past_loops,omitempty"`

	// ForkGroup identifies the active fork group when executing inside a
	// fork branch.
	ForkGroup string `json:"fork_group,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewContext creates a fresh run context.
func NewContext(traceID string, input any) *Context {
	return &Context{
		Input:           input,
		TraceID:         traceID,
		PreviousOutputs: make(map[string]*AgentOutput),
		Metadata:        make(map[string]string),
	}
}

// Snapshot returns a copy safe for concurrent readers. Output envelopes are
// shared by reference; they are immutable once written.
func (c *Context) Snapshot() *Context {
	cp := *c
	cp.PreviousOutputs = make(map[string]*AgentOutput, len(c.PreviousOutputs))
	for k, v := range c.PreviousOutputs {
		cp.PreviousOutputs[k] = v
	}
	cp.PastLoops = append([]PastLoop(nil), c.PastLoops...)
	cp.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// Child derives an isolated context for a nested scope (loop iteration).
// The parent's outputs are visible; writes in the child do not propagate
// back unless the owning node copies them.
func (c *Context) Child() *Context {
	return c.Snapshot()
}

// Output returns the recorded output for a node id, or nil.
func (c *Context) Output(nodeID string) *AgentOutput {
	return c.PreviousOutputs[nodeID]
}

// ContextWriter serializes all mutation of a Context. Readers obtain
// consistent snapshots; they never observe a partial write.
type ContextWriter struct {
	mu  sync.Mutex
	ctx *Context

	// order records node ids in completion order for report aggregation.
	order []string
}

// NewContextWriter wraps a context in its single writer.
func NewContextWriter(ctx *Context) *ContextWriter {
	return &ContextWriter{ctx: ctx}
}

// Write records a node's output. Each node id is written at most once per
// scope; a second write for the same id is rejected.
func (w *ContextWriter) Write(nodeID string, out *AgentOutput) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.ctx.PreviousOutputs[nodeID]; exists {
		return fmt.Errorf("duplicate output for node %q", nodeID)
	}
	w.ctx.PreviousOutputs[nodeID] = out
	w.order = append(w.order, nodeID)
	return nil
}

// Snapshot returns a consistent read-only view of the underlying context.
func (w *ContextWriter) Snapshot() *Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx.Snapshot()
}

// Order returns node ids in completion order.
func (w *ContextWriter) Order() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

// Has reports whether a node id already has an output.
func (w *ContextWriter) Has(nodeID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.ctx.PreviousOutputs[nodeID]
	return ok
}
