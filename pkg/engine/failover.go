// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/types"
	"go.uber.org/zap"
)

// runFailover executes the inline children in order; the first success
// wins and later children never run. Each child's output is recorded
// under its own id as well as in the failover's trace.
func (e *Engine) runFailover(ctx context.Context, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, error) {
	var errs []string
	trace := &types.Trace{SubOutputs: make(map[string]*types.AgentOutput)}

	for _, child := range spec.Failover.Children {
		if err := ctx.Err(); err != nil {
			return types.Failed(spec.ID, types.ErrKindCancelled, err), nil
		}
		childOut, err := e.runLeaf(ctx, child, writer)
		if err != nil {
			return nil, err
		}
		if recErr := e.record(ctx, child, childOut, writer); recErr != nil {
			return nil, recErr
		}
		trace.SubOutputs[child.ID] = childOut

		if childOut.Status == types.StatusSuccess {
			out := types.Success(spec.ID, childOut.Result)
			out.Metrics = childOut.Metrics
			out.Trace = trace
			return out, nil
		}
		msg := "no error detail"
		if childOut.Error != nil {
			msg = childOut.Error.Message
		}
		errs = append(errs, fmt.Sprintf("%s: %s", child.ID, msg))
		e.logger.Debug("failover child failed, trying next",
			zap.String("failover", spec.ID),
			zap.String("child", child.ID))
	}

	out := types.Failed(spec.ID, types.ErrKindAgentFailed,
		fmt.Errorf("all %d children failed: %s", len(spec.Failover.Children), strings.Join(errs, "; ")))
	out.Trace = trace
	return out, nil
}
