// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package render turns prompt templates into concrete prompts using a
// per-run context snapshot. Expressions are brace-delimited, navigate the
// context with dots, and may pipe through named filters:
//
//	{{ input }}
//	{{ previous_outputs.classify.result | upper }}
//	{{ past_loops | length }}
//	{{ answer | default:no answer yet }}
//
// The renderer is pure with respect to the passed context: it performs no
// I/O and never mutates its input.
package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/orka-ai/orka/pkg/types"
)

// ErrTemplate is the sentinel wrapped by all render-time failures.
var ErrTemplate = fmt.Errorf("template error")

var exprPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Options configures a Renderer.
type Options struct {
	// StrictUndefined makes undefined identifiers fail the render instead
	// of resolving to the empty string.
	StrictUndefined bool

	// Filters extends or overrides the built-in filter registry.
	Filters map[string]Filter

	// Now supplies the clock for the now() variable and the date filter.
	// Defaults to time.Now. Tests inject a fixed clock.
	Now func() time.Time
}

// Renderer renders prompt templates. Safe for concurrent use.
type Renderer struct {
	filters map[string]Filter
	strict  bool
	now     func() time.Time
}

// New creates a Renderer with the built-in filters plus any overrides.
func New(opts Options) *Renderer {
	filters := builtinFilters()
	for name, f := range opts.Filters {
		filters[name] = f
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Renderer{filters: filters, strict: opts.StrictUndefined, now: now}
}

// Render substitutes every {{ ... }} expression in tmpl against ctx.
func (r *Renderer) Render(tmpl string, ctx *types.Context) (string, error) {
	var renderErr error
	out := exprPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		if renderErr != nil {
			return ""
		}
		expr := strings.TrimSpace(match[2 : len(match)-2])
		val, err := r.eval(expr, ctx)
		if err != nil {
			renderErr = err
			return ""
		}
		return stringify(val)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// eval resolves one expression: a path followed by zero or more piped
// filters.
func (r *Renderer) eval(expr string, ctx *types.Context) (any, error) {
	if expr == "" {
		return "", nil
	}
	parts := strings.Split(expr, "|")
	path := strings.TrimSpace(parts[0])

	val, defined := r.resolve(path, ctx)
	if !defined && r.strict {
		return nil, fmt.Errorf("%w: undefined identifier %q", ErrTemplate, path)
	}

	for _, raw := range parts[1:] {
		name, arg := splitFilter(strings.TrimSpace(raw))
		filter, ok := r.filters[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter %q", ErrTemplate, name)
		}
		var err error
		val, err = filter(val, arg)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", ErrTemplate, name, err)
		}
	}
	return val, nil
}

// resolve walks a dotted path through the context. The boolean reports
// whether the identifier was defined; nested access on a missing parent
// resolves to ("", false).
func (r *Renderer) resolve(path string, ctx *types.Context) (any, bool) {
	if path == "now()" {
		return r.now().UTC().Format(time.RFC3339), true
	}

	segs := strings.Split(path, ".")
	head, rest := segs[0], segs[1:]

	switch head {
	case "input":
		return navigate(ctx.Input, rest)
	case "trace_id":
		return ctx.TraceID, true
	case "loop_number":
		return ctx.LoopNumber, true
	case "score":
		return ctx.Score, true
	case "fork_group":
		return ctx.ForkGroup, true
	case "metadata":
		return navigate(ctx.Metadata, rest)
	case "past_loops":
		return navigate(pastLoopsValue(ctx.PastLoops), rest)
	case "previous_outputs":
		if len(rest) == 0 {
			return outputsValue(ctx.PreviousOutputs), true
		}
		out, ok := ctx.PreviousOutputs[rest[0]]
		if !ok {
			return "", false
		}
		return navigate(outputValue(out), rest[1:])
	}

	// Agent-scoped flattening: a bare node id resolves to that node's
	// direct string result; deeper paths navigate its fields.
	if out, ok := ctx.PreviousOutputs[head]; ok {
		if len(rest) == 0 {
			return out.ResultString(), true
		}
		return navigate(outputValue(out), rest)
	}

	return "", false
}

// navigate descends into maps, slices, and scalar leaves.
func navigate(v any, segs []string) (any, bool) {
	if len(segs) == 0 {
		if v == nil {
			return "", true
		}
		return v, true
	}
	seg := segs[0]
	switch tv := v.(type) {
	case map[string]any:
		child, ok := tv[seg]
		if !ok {
			return "", false
		}
		return navigate(child, segs[1:])
	case map[string]string:
		child, ok := tv[seg]
		if !ok {
			return "", false
		}
		return navigate(child, segs[1:])
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(tv) {
			return "", false
		}
		return navigate(tv[idx], segs[1:])
	default:
		return "", false
	}
}

// outputValue projects an AgentOutput into a navigable map.
func outputValue(out *types.AgentOutput) map[string]any {
	m := map[string]any{
		"result": out.Result,
		"status": string(out.Status),
	}
	if out.Error != nil {
		m["error"] = map[string]any{
			"kind":    string(out.Error.Kind),
			"message": out.Error.Message,
		}
	}
	m["metrics"] = map[string]any{
		"tokens":     out.Metrics.Tokens,
		"latency_ms": out.Metrics.LatencyMS,
		"cost_usd":   out.Metrics.CostUSD,
	}
	return m
}

func outputsValue(outputs map[string]*types.AgentOutput) map[string]any {
	m := make(map[string]any, len(outputs))
	for id, out := range outputs {
		m[id] = outputValue(out)
	}
	return m
}

func pastLoopsValue(loops []types.PastLoop) []any {
	vals := make([]any, len(loops))
	for i, pl := range loops {
		entry := map[string]any{
			"loop_number": pl.LoopNumber,
			"score":       pl.Score,
			"result":      pl.Result,
		}
		for k, v := range pl.Projection {
			entry[k] = v
		}
		vals[i] = entry
	}
	return vals
}

func splitFilter(raw string) (name, arg string) {
	if idx := strings.Index(raw, ":"); idx >= 0 {
		return raw[:idx], raw[idx+1:]
	}
	return raw, ""
}

// stringify renders a resolved value for prompt inclusion.
func stringify(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case int:
		return strconv.Itoa(tv)
	default:
		return fmt.Sprintf("%v", v)
	}
}
