// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/types"
	"go.uber.org/zap"
)

// forkGroup tracks one fork's branches between dispatch and join.
type forkGroup struct {
	id         string
	leaves     []string
	requireAll bool
	done       chan struct{}

	mu       sync.Mutex
	failures []string
}

func (fg *forkGroup) recordFailure(nodeID string) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.failures = append(fg.failures, nodeID)
}

func (fg *forkGroup) failedNodes() []string {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return append([]string(nil), fg.failures...)
}

// runFork opens a fork group and dispatches the branches. Branches run
// against isolated snapshots so no branch observes a sibling's output
// before the join; outputs merge into the parent as branches complete.
func (e *Engine) runFork(ctx context.Context, g *graph.Graph, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, error) {
	f := spec.Fork
	groupID := fmt.Sprintf("fork_%s", uuid.New().String()[:8])

	fg := &forkGroup{
		id:         groupID,
		requireAll: f.RequireAll == nil || *f.RequireAll,
		done:       make(chan struct{}),
	}
	for _, branch := range f.Targets {
		fg.leaves = append(fg.leaves, branch[len(branch)-1])
	}
	e.groupsMu.Lock()
	e.groups[spec.ID] = fg
	e.groupsMu.Unlock()

	mode := f.Mode
	if mode == "" {
		mode = "parallel"
	}
	e.logger.Debug("fork dispatch",
		zap.String("node", spec.ID),
		zap.String("group", groupID),
		zap.String("mode", mode),
		zap.Int("branches", len(f.Targets)))

	go func() {
		defer close(fg.done)
		if mode == "sequential" {
			for _, branch := range f.Targets {
				e.runBranch(ctx, g, branch, writer, fg)
			}
			return
		}
		workers := f.MaxWorkers
		if workers <= 0 || workers > len(f.Targets) {
			workers = len(f.Targets)
		}
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for _, branch := range f.Targets {
			wg.Add(1)
			go func(branch []string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				e.runBranch(ctx, g, branch, writer, fg)
			}(branch)
		}
		wg.Wait()
	}()

	out := types.Success(spec.ID, map[string]any{
		"group_id": groupID,
		"branches": f.Targets,
	})

	// The group id also carries an envelope for observability.
	groupOut := types.Success(groupID, fg.leaves)
	if err := writer.Write(groupID, groupOut); err != nil {
		e.logger.Warn("fork group envelope not recorded", zap.Error(err))
	}
	return out, nil
}

// runBranch executes one branch on a branch-local writer seeded from the
// parent snapshot, then merges its outputs back.
func (e *Engine) runBranch(ctx context.Context, g *graph.Graph, branch []string, parent *types.ContextWriter, fg *forkGroup) {
	snap := parent.Snapshot()
	snap.ForkGroup = fg.id
	branchWriter := types.NewContextWriter(snap)

	if err := e.runQueue(ctx, g, branch, branchWriter); err != nil {
		e.logger.Warn("fork branch aborted",
			zap.String("group", fg.id), zap.Error(err))
	}

	branchSnap := branchWriter.Snapshot()
	for _, id := range branch {
		out := branchSnap.PreviousOutputs[id]
		if out == nil || out.Status == types.StatusFailed {
			fg.recordFailure(id)
		}
	}
	e.mergeOutputs(branchWriter, parent)
}

// runJoin blocks until the matching fork group completes, then merges the
// branch-leaf results into one map.
func (e *Engine) runJoin(ctx context.Context, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, error) {
	j := spec.Join
	e.groupsMu.Lock()
	fg, ok := e.groups[j.Group]
	e.groupsMu.Unlock()
	if !ok {
		return types.Failed(spec.ID, types.ErrKindAgentFailed,
			fmt.Errorf("join %q: fork %q has not dispatched", spec.ID, j.Group)), nil
	}

	timeout := j.Timeout.Std()
	if timeout <= 0 {
		timeout = e.config.JoinTimeout
	}
	select {
	case <-fg.done:
	case <-ctx.Done():
		return types.Failed(spec.ID, types.ErrKindCancelled, ctx.Err()), nil
	case <-time.After(timeout):
		return types.Failed(spec.ID, types.ErrKindJoinTimeout,
			fmt.Errorf("join %q timed out after %s waiting on group %s", spec.ID, timeout, fg.id)), nil
	}

	snap := writer.Snapshot()
	merged := make(map[string]any, len(fg.leaves))
	var missing []string
	for _, leaf := range fg.leaves {
		out := snap.PreviousOutputs[leaf]
		if out == nil || out.Status == types.StatusFailed {
			missing = append(missing, leaf)
			merged[leaf] = map[string]any{"error": "branch did not complete"}
			continue
		}
		merged[leaf] = out.Result
	}

	if len(missing) > 0 && fg.requireAll {
		seen := make(map[string]bool, len(missing))
		var all []string
		for _, id := range append(missing, fg.failedNodes()...) {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
		return types.Failed(spec.ID, types.ErrKindAgentFailed,
			fmt.Errorf("join %q: branches failed or missing: %s", spec.ID,
				strings.Join(all, ", "))), nil
	}
	return types.Success(spec.ID, merged), nil
}
