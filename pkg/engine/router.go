// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"fmt"
	"strings"

	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/types"
)

// runRouter resolves the decision value and returns the selected ids for
// prepending to the queue. Ids already executed are skipped at pop time.
func (e *Engine) runRouter(spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, []string, error) {
	r := spec.Router
	snap := writer.Snapshot()

	value, ok := resolvePath(snap, r.DecisionKey)
	if !ok {
		out := types.Failed(spec.ID, types.ErrKindRouteUnknown,
			fmt.Errorf("decision key %q resolved to nothing", r.DecisionKey))
		return out, nil, nil
	}
	decision := strings.TrimSpace(stringifyValue(value))

	targets, ok := r.RoutingMap[decision]
	if !ok {
		if len(r.Default) == 0 {
			out := types.Failed(spec.ID, types.ErrKindRouteUnknown,
				fmt.Errorf("decision value %q has no route and no default", decision))
			return out, nil, nil
		}
		targets = r.Default
	}

	out := types.Success(spec.ID, targets)
	out.Trace = &types.Trace{Prompt: fmt.Sprintf("%s=%s", r.DecisionKey, decision)}
	return out, targets, nil
}

// resolvePath navigates a dotted path through previous outputs. The first
// segment is a node id; "result" addresses the primary value, "status"
// and "error" the envelope fields. Deeper segments navigate structured
// results.
func resolvePath(snap *types.Context, path string) (any, bool) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || segs[0] == "" {
		return nil, false
	}
	out := snap.Output(segs[0])
	if out == nil {
		return nil, false
	}
	if len(segs) == 1 {
		return out.ResultString(), true
	}
	switch segs[1] {
	case "result":
		if len(segs) == 2 {
			return out.Result, out.Result != nil
		}
		return navigateValue(out.Result, segs[2:])
	case "status":
		return string(out.Status), true
	case "error":
		if out.Error == nil {
			return nil, false
		}
		return out.Error.Message, true
	default:
		return navigateValue(out.Result, segs[1:])
	}
}

func navigateValue(v any, segs []string) (any, bool) {
	for _, seg := range segs {
		switch typed := v.(type) {
		case map[string]any:
			next, ok := typed[seg]
			if !ok {
				return nil, false
			}
			v = next
		case map[string]string:
			next, ok := typed[seg]
			if !ok {
				return nil, false
			}
			v = next
		default:
			return nil, false
		}
	}
	return v, true
}

func stringifyValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
