// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typeSet map[string]bool

func (s typeSet) Has(t string) bool { return s[t] }

var leafTypes = typeSet{"llm": true, "classifier": true, "search": true, "memory": true}

const routedWorkflow = `
orchestrator:
  id: routed
  strategy: sequential
  agents: [classify, route, A]
agents:
  - id: classify
    type: classifier
    prompt: "Is this a question? {{ input }}"
    labels: [yes, no]
  - id: route
    type: router
    decision_key: classify.result
    routing_map:
      yes: [A]
      no: [B]
  - id: A
    type: llm
    prompt: "answer: {{ input }}"
  - id: B
    type: llm
    prompt: "decline"
`

func TestLoad_RoutedWorkflow(t *testing.T) {
	g, err := Load([]byte(routedWorkflow))
	require.NoError(t, err)
	require.NoError(t, g.Validate(leafTypes))

	assert.Equal(t, "routed", g.ID)
	assert.Equal(t, StrategySequential, g.Strategy)
	assert.Equal(t, []string{"classify", "route", "A"}, g.Sequence)

	route := g.Node("route")
	require.NotNil(t, route)
	require.NotNil(t, route.Router)
	assert.Equal(t, "classify.result", route.Router.DecisionKey)
	assert.Equal(t, []string{"A"}, route.Router.RoutingMap["yes"])

	// Leaf params stay on the spec for the registry factory.
	classify := g.Node("classify")
	assert.Equal(t, PolicyContinue, classify.Policy)
	assert.Contains(t, classify.Params, "labels")
}

func TestLoad_ForkJoinAndDurations(t *testing.T) {
	doc := `
orchestrator:
  id: fanout
  strategy: sequential
  agents: [split, merge]
agents:
  - id: split
    type: fork
    mode: parallel
    targets:
      - [left]
      - [right]
  - id: merge
    type: join
    group: split
    timeout: 45s
  - id: left
    type: llm
    prompt: "left"
    timeout: 30s
  - id: right
    type: llm
    prompt: "right"
    timeout: 30
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, g.Validate(leafTypes))

	assert.Equal(t, [][]string{{"left"}, {"right"}}, g.Node("split").Fork.Targets)
	assert.Equal(t, 45*time.Second, g.Node("merge").Join.Timeout.Std())
	assert.Equal(t, 30*time.Second, g.Node("left").Timeout.Std())
	// Bare numbers are seconds.
	assert.Equal(t, 30*time.Second, g.Node("right").Timeout.Std())
}

func TestLoad_LoopWithInternalWorkflow(t *testing.T) {
	doc := `
orchestrator:
  id: refine
  strategy: sequential
  agents: [improve]
agents:
  - id: improve
    type: loop
    max_loops: 5
    score_threshold: 0.85
    score_extraction:
      pattern: "SCORE:\\s*([0-9.]+)"
    past_loops_metadata:
      summary: "{{ draft.result }}"
    cognitive_extraction:
      insights: ["INSIGHT: (.+)"]
    internal_workflow:
      orchestrator:
        id: refine-inner
        strategy: sequential
        agents: [draft]
      agents:
        - id: draft
          type: llm
          prompt: "improve attempt {{ loop_number }}"
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, g.Validate(leafTypes))

	loop := g.Node("improve").Loop
	require.NotNil(t, loop)
	assert.Equal(t, 5, loop.MaxLoops)
	assert.Equal(t, 0.85, loop.ScoreThreshold)
	require.NotNil(t, loop.InternalWorkflow)

	inner, err := FromDocument(loop.InternalWorkflow)
	require.NoError(t, err)
	require.NotNil(t, inner.Node("draft"))
	assert.Equal(t, "llm", inner.Node("draft").Type)
}

func TestValidate_AccumulatesAllIssues(t *testing.T) {
	doc := `
orchestrator:
  id: broken
  strategy: sideways
  agents: [ghost, route, split]
agents:
  - id: route
    type: router
    routing_map:
      yes: [nowhere]
  - id: split
    type: fork
    targets: []
  - id: mystery
    type: quantum
    prompt: "?"
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)

	err = g.Validate(leafTypes)
	require.Error(t, err)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)

	joined := invalid.Error()
	assert.Contains(t, joined, `unknown strategy "sideways"`)
	assert.Contains(t, joined, `undefined node "ghost"`)
	assert.Contains(t, joined, "requires decision_key")
	assert.Contains(t, joined, `undefined node "nowhere"`)
	assert.Contains(t, joined, "at least one branch")
	assert.Contains(t, joined, `unregistered node type "quantum"`)
}

func TestValidate_EmptyForkBranchRejected(t *testing.T) {
	doc := `
orchestrator:
  id: f
  strategy: sequential
  agents: [split]
agents:
  - id: split
    type: fork
    targets:
      - []
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	err = g.Validate(leafTypes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch 0 is empty")
}

func TestValidate_JoinGroupMustBeFork(t *testing.T) {
	doc := `
orchestrator:
  id: j
  strategy: sequential
  agents: [a, merge]
agents:
  - id: a
    type: llm
    prompt: "x"
  - id: merge
    type: join
    group: a
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	err = g.Validate(leafTypes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a fork node")
}

func TestValidate_FailoverChildren(t *testing.T) {
	doc := `
orchestrator:
  id: fo
  strategy: sequential
  agents: [resilient]
agents:
  - id: resilient
    type: failover
    children:
      - id: primary
        type: llm
        prompt: "try"
      - id: secondary
        type: llm
        prompt: "fallback"
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, g.Validate(leafTypes))

	children := g.Node("resilient").Failover.Children
	require.Len(t, children, 2)
	assert.Equal(t, "primary", children[0].ID)
	assert.Equal(t, "secondary", children[1].ID)
}

func TestLoad_DuplicateNodeID(t *testing.T) {
	doc := `
orchestrator:
  id: dup
  agents: [a]
agents:
  - id: a
    type: llm
  - id: a
    type: llm
`
	_, err := Load([]byte(doc))
	assert.ErrorContains(t, err, `duplicate node id "a"`)
}

func TestLoad_BadScorePattern(t *testing.T) {
	doc := `
orchestrator:
  id: l
  strategy: sequential
  agents: [loopy]
agents:
  - id: loopy
    type: loop
    max_loops: 2
    score_extraction:
      pattern: "(["
    internal_workflow:
      orchestrator:
        id: inner
        strategy: sequential
        agents: [step]
      agents:
        - id: step
          type: llm
          prompt: "x"
`
	g, err := Load([]byte(doc))
	require.NoError(t, err)
	err = g.Validate(leafTypes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad score_extraction pattern")
}
