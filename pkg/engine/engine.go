// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package engine drives workflow execution: the scheduler queue, the
// per-node pipeline, and the control-flow nodes (router, fork, join,
// failover, loop, graph scout). An Engine instance serves one run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orka-ai/orka/pkg/agent"
	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/memory"
	"github.com/orka-ai/orka/pkg/render"
	"github.com/orka-ai/orka/pkg/types"
	"go.uber.org/zap"
)

// LogNamespace receives the log-category entry the engine emits per step.
const LogNamespace = "orka:steps"

// Config assembles an engine's collaborators. Registry and Renderer are
// required; Store is optional (no step logging without it).
type Config struct {
	Registry *agent.Registry
	Renderer *render.Renderer
	Store    memory.Store
	Logger   *zap.Logger

	// JoinTimeout is the default barrier wait; a join node's own timeout
	// overrides it.
	JoinTimeout time.Duration

	// Evaluator, when set, scores graph-scout candidates with an LLM;
	// otherwise scouting relies on heuristics alone.
	Evaluator agent.LLMProvider
}

// Engine executes one run. Not safe for reuse across runs: fork-group
// state is per instance.
type Engine struct {
	config   Config
	logger   *zap.Logger
	renderer *render.Renderer

	nodesMu sync.Mutex
	nodes   map[string]agent.Node

	groupsMu sync.Mutex
	groups   map[string]*forkGroup

	limitersMu sync.Mutex
	limiters   map[string]chan struct{}
}

// New creates an engine for a single run.
func New(config Config) *Engine {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Renderer == nil {
		config.Renderer = render.New(render.Options{})
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = 60 * time.Second
	}
	return &Engine{
		config:   config,
		logger:   config.Logger,
		renderer: config.Renderer,
		nodes:    make(map[string]agent.Node),
		groups:   make(map[string]*forkGroup),
		limiters: make(map[string]chan struct{}),
	}
}

// abortError stops the run while leaving completed outputs intact.
type abortError struct {
	kind types.ErrorKind
	err  error
}

func (e *abortError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *abortError) Unwrap() error { return e.err }

// AbortKind extracts the error kind that stopped a run, or empty.
func AbortKind(err error) types.ErrorKind {
	var abort *abortError
	if errors.As(err, &abort) {
		return abort.kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.ErrKindCancelled
	}
	return ""
}

// Execute runs the graph's top-level sequence against the writer. On
// return every completed output is recorded in the writer regardless of
// the error.
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, writer *types.ContextWriter) error {
	if g.Strategy == graph.StrategyParallel {
		return e.executeParallel(ctx, g, writer)
	}
	return e.runQueue(ctx, g, g.Sequence, writer)
}

// executeParallel runs the top-level sequence concurrently with an
// implicit join at the end. Each entry executes against an isolated
// snapshot; outputs merge as entries finish.
func (e *Engine) executeParallel(ctx context.Context, g *graph.Graph, writer *types.ContextWriter) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(g.Sequence))
	for _, id := range g.Sequence {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			branchWriter := types.NewContextWriter(writer.Snapshot())
			err := e.runQueue(ctx, g, []string{id}, branchWriter)
			e.mergeOutputs(branchWriter, writer)
			if err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

// runQueue processes a scheduler queue in order. Router output and scout
// commitments are prepended; ids that already have an output are skipped.
func (e *Engine) runQueue(ctx context.Context, g *graph.Graph, initial []string, writer *types.ContextWriter) error {
	queue := append([]string(nil), initial...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := queue[0]
		queue = queue[1:]
		if writer.Has(id) {
			continue
		}
		spec := g.Node(id)
		if spec == nil {
			return &abortError{kind: types.ErrKindGraphInvalid,
				err: fmt.Errorf("queue references undefined node %q", id)}
		}

		out, prepend, err := e.step(ctx, g, spec, writer)
		if err != nil {
			return err
		}
		if out != nil {
			if err := e.record(ctx, spec, out, writer); err != nil {
				return err
			}
			if out.Status == types.StatusFailed && spec.Policy == graph.PolicyAbort {
				return &abortError{kind: out.Error.Kind,
					err: fmt.Errorf("node %q failed with abort policy: %s", id, out.Error.Message)}
			}
		}
		if len(prepend) > 0 {
			queue = append(append([]string(nil), prepend...), queue...)
		}
	}
	return nil
}

// step dispatches one queue entry. Control-flow types are handled by the
// engine; everything else goes through the leaf pipeline. The returned
// ids are prepended to the caller's queue.
func (e *Engine) step(ctx context.Context, g *graph.Graph, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, []string, error) {
	switch spec.Type {
	case "router":
		return e.runRouter(spec, writer)
	case "fork":
		out, err := e.runFork(ctx, g, spec, writer)
		return out, nil, err
	case "join":
		out, err := e.runJoin(ctx, spec, writer)
		return out, nil, err
	case "failover":
		out, err := e.runFailover(ctx, spec, writer)
		return out, nil, err
	case "loop":
		out, err := e.runLoop(ctx, spec, writer)
		return out, nil, err
	case "graph_scout":
		return e.runScout(ctx, g, spec, writer)
	default:
		out, err := e.runLeaf(ctx, spec, writer)
		return out, nil, err
	}
}

// runLeaf is the per-node pipeline: render, limit, bound, invoke, wrap.
func (e *Engine) runLeaf(ctx context.Context, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, error) {
	snap := writer.Snapshot()

	prompt := ""
	if spec.Prompt != "" {
		rendered, err := e.renderer.Render(spec.Prompt, snap)
		if err != nil {
			// Template errors abort the run.
			return nil, &abortError{kind: types.ErrKindTemplate,
				err: fmt.Errorf("node %q: %w", spec.ID, err)}
		}
		prompt = rendered
	}

	node, err := e.node(spec)
	if err != nil {
		return types.Failed(spec.ID, types.ErrKindAgentFailed, err), nil
	}

	if limiter := e.limiter(spec); limiter != nil {
		select {
		case limiter <- struct{}{}:
			defer func() { <-limiter }()
		case <-ctx.Done():
			return types.Failed(spec.ID, types.ErrKindCancelled, ctx.Err()), nil
		}
	}

	runCtx := ctx
	if budget := nodeBudget(spec); budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	start := time.Now()
	out, err := node.Run(runCtx, snap, prompt)
	if err != nil {
		kind := types.ErrKindAgentFailed
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			kind = types.ErrKindTimeout
		case errors.Is(err, context.Canceled):
			kind = types.ErrKindCancelled
		case errors.Is(err, memory.ErrStoreUnavailable):
			return nil, &abortError{kind: types.ErrKindStoreUnavailable,
				err: fmt.Errorf("node %q: %w", spec.ID, err)}
		case errors.Is(err, memory.ErrStoreDegraded):
			kind = types.ErrKindStoreDegraded
		case errors.Is(err, memory.ErrStoreWriteFailed):
			kind = types.ErrKindStoreWriteFailed
		}
		failed := types.Failed(spec.ID, kind, err)
		failed.Metrics.LatencyMS = time.Since(start).Milliseconds()
		failed.Trace = &types.Trace{Prompt: prompt}
		return failed, nil
	}
	if out.Metrics.LatencyMS == 0 {
		out.Metrics.LatencyMS = time.Since(start).Milliseconds()
	}
	return out, nil
}

// nodeBudget returns the effective single-attempt bound: the tighter of
// the total and per-attempt timeouts. The engine never retries, so one
// attempt is the whole budget.
func nodeBudget(spec *graph.NodeSpec) time.Duration {
	total := spec.Timeout.Std()
	attempt := spec.AttemptTimeout.Std()
	if total == 0 {
		return attempt
	}
	if attempt == 0 || total < attempt {
		return total
	}
	return attempt
}

// node builds or reuses the leaf instance for a spec.
func (e *Engine) node(spec *graph.NodeSpec) (agent.Node, error) {
	e.nodesMu.Lock()
	defer e.nodesMu.Unlock()
	if n, ok := e.nodes[spec.ID]; ok {
		return n, nil
	}
	if e.config.Registry == nil {
		return nil, fmt.Errorf("no registry configured")
	}
	n, err := e.config.Registry.Build(spec.ID, spec.Type, spec.Params)
	if err != nil {
		return nil, err
	}
	e.nodes[spec.ID] = n
	return n, nil
}

func (e *Engine) limiter(spec *graph.NodeSpec) chan struct{} {
	if spec.Concurrency <= 0 {
		return nil
	}
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()
	l, ok := e.limiters[spec.ID]
	if !ok {
		l = make(chan struct{}, spec.Concurrency)
		e.limiters[spec.ID] = l
	}
	return l
}

// record writes the output and emits the step's log entry. Memory-writer
// nodes already persisted their stored entry themselves.
func (e *Engine) record(ctx context.Context, spec *graph.NodeSpec, out *types.AgentOutput, writer *types.ContextWriter) error {
	if err := writer.Write(spec.ID, out); err != nil {
		return &abortError{kind: types.ErrKindGraphInvalid, err: err}
	}
	return e.logStep(ctx, writer.Snapshot(), out)
}

// logStep appends a log-category entry describing the step. Log entries
// are observability only; readers never retrieve them.
func (e *Engine) logStep(ctx context.Context, snap *types.Context, out *types.AgentOutput) error {
	if e.config.Store == nil {
		return nil
	}
	content := fmt.Sprintf("node %s finished with status %s", out.NodeID, out.Status)
	if out.Error != nil {
		content += ": " + out.Error.Message
	}
	meta := map[string]string{"status": string(out.Status)}
	for k, v := range snap.Metadata {
		meta[k] = v
	}
	entry := &memory.Entry{
		Namespace: LogNamespace,
		NodeID:    out.NodeID,
		TraceID:   snap.TraceID,
		Content:   content,
		Category:  memory.CategoryLog,
		Metadata:  meta,
	}
	if _, err := e.config.Store.Append(ctx, entry); err != nil {
		if errors.Is(err, memory.ErrStoreUnavailable) {
			return &abortError{kind: types.ErrKindStoreUnavailable, err: err}
		}
		e.logger.Warn("step log write degraded",
			zap.String("node", out.NodeID), zap.Error(err))
	}
	return nil
}

// mergeOutputs copies branch-local outputs into the parent writer in
// completion order, skipping ids the parent already holds.
func (e *Engine) mergeOutputs(from, into *types.ContextWriter) {
	snap := from.Snapshot()
	for _, id := range from.Order() {
		if into.Has(id) {
			continue
		}
		if out := snap.PreviousOutputs[id]; out != nil {
			if err := into.Write(id, out); err != nil {
				e.logger.Warn("merge skipped duplicate output", zap.String("node", id))
			}
		}
	}
}
