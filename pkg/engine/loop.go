// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/types"
	"go.uber.org/zap"
)

// runLoop executes the internal workflow repeatedly until the score
// threshold or the iteration cap is reached. Iteration summaries live in
// an arena appended per iteration; the child context of iteration N sees
// every summary from 1..N-1 plus the cross-iteration extraction
// aggregates.
func (e *Engine) runLoop(ctx context.Context, spec *graph.NodeSpec, writer *types.ContextWriter) (*types.AgentOutput, error) {
	l := spec.Loop
	inner, err := graph.FromDocument(l.InternalWorkflow)
	if err != nil {
		return nil, &abortError{kind: types.ErrKindGraphInvalid,
			err: fmt.Errorf("loop %q: %w", spec.ID, err)}
	}

	var (
		pastLoops    []types.PastLoop
		finalScore   float64
		lastOutput   string
		anyScore     bool
		thresholdMet bool
		iterationErr error
	)

	for loopNumber := 1; loopNumber <= l.MaxLoops; loopNumber++ {
		if err := ctx.Err(); err != nil {
			return types.Failed(spec.ID, types.ErrKindCancelled, err), nil
		}

		child := writer.Snapshot()
		child.LoopNumber = loopNumber
		child.PastLoops = append([]types.PastLoop(nil), pastLoops...)
		for category, hits := range aggregateExtractions(pastLoops) {
			child.Metadata["extracted_"+category] = strings.Join(hits, "\n")
		}
		childWriter := types.NewContextWriter(child)

		nested := New(e.config)
		if err := nested.Execute(ctx, inner, childWriter); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return types.Failed(spec.ID, types.ErrKindCancelled, err), nil
			}
			iterationErr = err
			e.logger.Warn("loop iteration aborted",
				zap.String("loop", spec.ID),
				zap.Int("iteration", loopNumber),
				zap.Error(err))
			break
		}

		post := childWriter.Snapshot()
		lastOutput = iterationResult(post, childWriter.Order())

		score, ok := extractScore(l.ScoreExtraction, post, lastOutput)
		if !ok {
			e.logger.Warn("loop score extraction produced nothing, scoring 0",
				zap.String("loop", spec.ID),
				zap.Int("iteration", loopNumber))
			score = 0
		} else {
			anyScore = true
		}
		finalScore = score
		post.Score = score

		summary := types.PastLoop{
			LoopNumber:  loopNumber,
			Score:       score,
			Result:      lastOutput,
			Extractions: extractCognitive(l.CognitiveExtraction, lastOutput),
			Projection:  e.renderProjection(l.PastLoopsMetadata, post),
		}
		pastLoops = append(pastLoops, summary)

		if score >= l.ScoreThreshold {
			thresholdMet = true
			break
		}
	}

	completed := len(pastLoops)
	result := map[string]any{
		"loops_completed": completed,
		"final_score":     finalScore,
		"past_loops":      pastLoops,
		"last_output":     lastOutput,
	}

	out := &types.AgentOutput{NodeID: spec.ID, Result: result}
	switch {
	case thresholdMet:
		out.Status = types.StatusSuccess
	case iterationErr != nil && !anyScore:
		out.Status = types.StatusFailed
		out.Error = types.NewErrorInfo(types.ErrKindAgentFailed,
			fmt.Errorf("loop %q: iteration failed before any score: %v", spec.ID, iterationErr))
	default:
		out.Status = types.StatusPartial
	}
	return out, nil
}

// iterationResult stringifies the final non-skipped output of one
// iteration, walking completion order backwards.
func iterationResult(post *types.Context, order []string) string {
	for i := len(order) - 1; i >= 0; i-- {
		out := post.PreviousOutputs[order[i]]
		if out != nil && out.Status != types.StatusSkipped {
			return out.ResultString()
		}
	}
	return ""
}

// extractScore reads the iteration score: the direct path wins, then the
// regex's first capture group. Out-of-range values clamp to [0,1]; NaN
// counts as no score.
func extractScore(cfg graph.ScoreExtraction, post *types.Context, lastOutput string) (float64, bool) {
	if cfg.Path != "" {
		if v, ok := resolvePath(post, cfg.Path); ok {
			if score, ok := toFloat(v); ok {
				return clampScore(score)
			}
		}
	}
	if cfg.Pattern != "" {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return 0, false
		}
		if m := re.FindStringSubmatch(lastOutput); len(m) > 1 {
			if score, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil {
				return clampScore(score)
			}
		}
	}
	return 0, false
}

func clampScore(score float64) (float64, bool) {
	if math.IsNaN(score) {
		return 0, false
	}
	if score < 0 {
		return 0, true
	}
	if score > 1 {
		return 1, true
	}
	return score, true
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// extractCognitive applies each category's regexes to the iteration
// output, collecting first capture groups (or whole matches).
func extractCognitive(categories map[string][]string, output string) map[string][]string {
	if len(categories) == 0 {
		return nil
	}
	hits := make(map[string][]string)
	for category, patterns := range categories {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				continue
			}
			for _, m := range re.FindAllStringSubmatch(output, -1) {
				if len(m) > 1 {
					hits[category] = append(hits[category], m[1])
				} else {
					hits[category] = append(hits[category], m[0])
				}
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return hits
}

// aggregateExtractions concatenates per-category hits across iterations.
func aggregateExtractions(loops []types.PastLoop) map[string][]string {
	agg := make(map[string][]string)
	for _, loop := range loops {
		for category, hits := range loop.Extractions {
			agg[category] = append(agg[category], hits...)
		}
	}
	return agg
}

// renderProjection renders the past_loops_metadata templates against the
// iteration's post-run context. Render failures degrade to empty values;
// a projection never fails the loop.
func (e *Engine) renderProjection(templates map[string]string, post *types.Context) map[string]string {
	if len(templates) == 0 {
		return nil
	}
	projection := make(map[string]string, len(templates))
	for key, tmpl := range templates {
		rendered, err := e.renderer.Render(tmpl, post)
		if err != nil {
			e.logger.Debug("past_loops_metadata render failed",
				zap.String("key", key), zap.Error(err))
			rendered = ""
		}
		projection[key] = rendered
	}
	return projection
}
