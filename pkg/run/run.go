// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package run coordinates a workflow execution end to end: it validates
// the loaded graph, assembles a fresh engine, owns the trace id, and
// materializes the run report.
package run

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/orka-ai/orka/pkg/agent"
	"github.com/orka-ai/orka/pkg/audit"
	"github.com/orka-ai/orka/pkg/engine"
	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/memory"
	"github.com/orka-ai/orka/pkg/render"
	"github.com/orka-ai/orka/pkg/types"
	"go.uber.org/zap"
)

// Config holds the per-process collaborators shared by all runs.
type Config struct {
	Registry *agent.Registry
	Store    memory.Store
	Renderer *render.Renderer
	Archive  audit.Archive
	Logger   *zap.Logger

	JoinTimeout time.Duration

	// Evaluator scores graph-scout candidates when set.
	Evaluator agent.LLMProvider
}

// Coordinator executes workflows. One coordinator serves many runs; each
// run gets its own engine instance and trace id.
type Coordinator struct {
	config Config
	logger *zap.Logger
}

// New creates a run coordinator.
func New(config Config) *Coordinator {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Coordinator{config: config, logger: config.Logger}
}

// Run validates and executes the graph against the given input. The
// report always materializes, carrying whatever outputs completed; the
// returned error is nil unless the run aborted or the graph is invalid.
// Graph validation failures return before any node executes.
func (c *Coordinator) Run(ctx context.Context, g *graph.Graph, input any) (*types.RunReport, error) {
	if err := g.Validate(c.config.Registry); err != nil {
		return nil, err
	}

	traceID := uuid.New().String()
	started := time.Now().UTC()
	runCtx := types.NewContext(traceID, input)
	writer := types.NewContextWriter(runCtx)

	c.logger.Info("run started",
		zap.String("trace_id", traceID),
		zap.String("workflow", g.ID))
	c.lifecycleEvent(ctx, traceID, "run", "started", "")

	eng := engine.New(engine.Config{
		Registry:    c.config.Registry,
		Renderer:    c.config.Renderer,
		Store:       c.config.Store,
		Logger:      c.config.Logger,
		JoinTimeout: c.config.JoinTimeout,
		Evaluator:   c.config.Evaluator,
	})
	execErr := eng.Execute(ctx, g, writer)

	completed := time.Now().UTC()
	order := writer.Order()
	snap := writer.Snapshot()

	report := &types.RunReport{
		TraceID:     traceID,
		WorkflowID:  g.ID,
		Outputs:     snap.PreviousOutputs,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMS:  completed.Sub(started).Milliseconds(),
	}
	report.Status = runStatus(execErr, snap, order)
	report.Aggregate(order)
	if execErr != nil {
		if kind := engine.AbortKind(execErr); kind != "" {
			report.Errors = append(report.Errors, *types.NewErrorInfo(kind, execErr))
		}
	}

	c.archive(ctx, report, order)
	c.lifecycleEvent(ctx, traceID, "run", string(report.Status), errText(execErr))
	c.logger.Info("run finished",
		zap.String("trace_id", traceID),
		zap.String("status", string(report.Status)),
		zap.Int64("duration_ms", report.DurationMS))

	return report, execErr
}

// RunFile loads a workflow document from disk and runs it.
func (c *Coordinator) RunFile(ctx context.Context, path string, input any) (*types.RunReport, error) {
	g, err := graph.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, g, input)
}

// runStatus maps the execution outcome onto a run-level status: an abort
// fails the run; otherwise the terminal output decides.
func runStatus(execErr error, snap *types.Context, order []string) types.Status {
	if execErr != nil {
		return types.StatusFailed
	}
	for i := len(order) - 1; i >= 0; i-- {
		out := snap.PreviousOutputs[order[i]]
		if out == nil || out.Status == types.StatusSkipped {
			continue
		}
		switch out.Status {
		case types.StatusFailed:
			return types.StatusFailed
		case types.StatusPartial:
			return types.StatusPartial
		default:
			return types.StatusSuccess
		}
	}
	return types.StatusFailed
}

// archive persists the report and its step events; archive failures are
// logged, never surfaced to the caller.
func (c *Coordinator) archive(ctx context.Context, report *types.RunReport, order []string) {
	if c.config.Archive == nil {
		return
	}
	if err := c.config.Archive.SaveReport(ctx, report); err != nil {
		c.logger.Warn("run report not archived", zap.Error(err))
	}
	for _, id := range order {
		out := report.Outputs[id]
		if out == nil {
			continue
		}
		event := &audit.Event{
			TraceID:   report.TraceID,
			NodeID:    id,
			Status:    string(out.Status),
			LatencyMS: out.Metrics.LatencyMS,
			Tokens:    out.Metrics.Tokens,
			At:        time.Now().UTC(),
		}
		if out.Error != nil {
			event.Kind = string(out.Error.Kind)
			event.Message = out.Error.Message
		}
		if err := c.config.Archive.SaveEvent(ctx, event); err != nil {
			c.logger.Warn("step event not archived",
				zap.String("node", id), zap.Error(err))
		}
	}
}

// lifecycleEvent records a run-level marker in the audit archive.
func (c *Coordinator) lifecycleEvent(ctx context.Context, traceID, nodeID, status, message string) {
	if c.config.Archive == nil {
		return
	}
	event := &audit.Event{
		TraceID: traceID,
		NodeID:  nodeID,
		Status:  status,
		Message: message,
		At:      time.Now().UTC(),
	}
	if err := c.config.Archive.SaveEvent(ctx, event); err != nil {
		c.logger.Warn("lifecycle event not archived", zap.Error(err))
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Exit codes for the CLI surface.
const (
	ExitSuccess         = 0
	ExitRunFailed       = 1
	ExitInvalidWorkflow = 2
)

// ExitCode maps a run outcome onto the process exit code contract.
func ExitCode(report *types.RunReport, err error) int {
	if err != nil {
		var invalid *graph.InvalidError
		if errors.As(err, &invalid) || engine.AbortKind(err) == types.ErrKindGraphInvalid {
			return ExitInvalidWorkflow
		}
		return ExitRunFailed
	}
	if report != nil && report.Status == types.StatusFailed {
		return ExitRunFailed
	}
	return ExitSuccess
}
