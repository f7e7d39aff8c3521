// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package run

import (
	"context"
	"testing"

	"github.com/orka-ai/orka/pkg/agent"
	"github.com/orka-ai/orka/pkg/audit"
	"github.com/orka-ai/orka/pkg/graph"
	"github.com/orka-ai/orka/pkg/memory"
	"github.com/orka-ai/orka/pkg/memory/embedding"
	"github.com/orka-ai/orka/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, llm *agent.MockLLM) (*Coordinator, *audit.Memory) {
	t.Helper()
	store := memory.NewInMemory(memory.InMemoryConfig{
		Policy:   memory.DefaultRetentionPolicy(),
		Embedder: embedding.NewLocal(embedding.DefaultDimension),
	})
	t.Cleanup(func() { _ = store.Close() })

	registry := agent.NewRegistry()
	registry.Register("llm", agent.LLMFactory(llm, nil))
	registry.Register("memory", agent.MemoryFactory(store))

	archive := audit.NewMemory(100)
	return New(Config{
		Registry: registry,
		Store:    store,
		Archive:  archive,
	}), archive
}

const simpleWorkflow = `
orchestrator:
  id: qa
  strategy: sequential
  agents: [answer]
agents:
  - id: answer
    type: llm
    prompt: "{{ input }}"
`

func TestRun_MaterializesReport(t *testing.T) {
	llm := agent.NewMockLLM().Respond("2+2", "4")
	c, archive := newCoordinator(t, llm)

	g, err := graph.Load([]byte(simpleWorkflow))
	require.NoError(t, err)

	report, err := c.Run(context.Background(), g, "What is 2+2?")
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.NotEmpty(t, report.TraceID)
	assert.Equal(t, "qa", report.WorkflowID)
	assert.Equal(t, types.StatusSuccess, report.Status)
	assert.Equal(t, "4", report.FinalResult)
	assert.Greater(t, report.Totals.Tokens, 0)
	assert.False(t, report.CompletedAt.Before(report.StartedAt))

	recent, err := archive.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, report.TraceID, recent[0].TraceID)

	events, err := archive.Events(context.Background(), report.TraceID)
	require.NoError(t, err)
	// Lifecycle markers bracket the per-node events.
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "started", events[0].Status)
	assert.Equal(t, "answer", events[1].NodeID)
}

func TestRun_InvalidWorkflowRejectedBeforeExecution(t *testing.T) {
	llm := agent.NewMockLLM()
	c, archive := newCoordinator(t, llm)

	g, err := graph.Load([]byte(`
orchestrator:
  id: broken
  strategy: sequential
  agents: [ghost]
agents:
  - id: real
    type: llm
    prompt: "hi"
`))
	require.NoError(t, err)

	report, err := c.Run(context.Background(), g, "x")
	require.Error(t, err)
	assert.Nil(t, report)
	var invalid *graph.InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, llm.CallCount)

	recent, archiveErr := archive.Recent(context.Background(), 10)
	require.NoError(t, archiveErr)
	assert.Empty(t, recent)
}

func TestRun_FailedRunStillReports(t *testing.T) {
	llm := agent.NewMockLLM() // no scripted responses: the node fails
	c, _ := newCoordinator(t, llm)

	g, err := graph.Load([]byte(simpleWorkflow))
	require.NoError(t, err)

	report, err := c.Run(context.Background(), g, "anything")
	require.NoError(t, err) // continue policy: the run completes
	require.NotNil(t, report)
	assert.Equal(t, types.StatusFailed, report.Status)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, types.ErrKindAgentFailed, report.Errors[0].Kind)
}

func TestRun_AbortPolicyFailsRun(t *testing.T) {
	llm := agent.NewMockLLM()
	c, _ := newCoordinator(t, llm)

	g, err := graph.Load([]byte(`
orchestrator:
  id: strict
  strategy: sequential
  agents: [fragile]
agents:
  - id: fragile
    type: llm
    prompt: "unscripted"
    policy: abort
`))
	require.NoError(t, err)

	report, err := c.Run(context.Background(), g, "x")
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, types.StatusFailed, report.Status)
}

func TestExitCode(t *testing.T) {
	okReport := &types.RunReport{Status: types.StatusSuccess}
	failedReport := &types.RunReport{Status: types.StatusFailed}

	assert.Equal(t, ExitSuccess, ExitCode(okReport, nil))
	assert.Equal(t, ExitRunFailed, ExitCode(failedReport, nil))
	assert.Equal(t, ExitInvalidWorkflow,
		ExitCode(nil, &graph.InvalidError{Reasons: []string{"bad"}}))
	assert.Equal(t, ExitRunFailed, ExitCode(nil, context.Canceled))
}

func TestRun_UniqueTraceIDs(t *testing.T) {
	llm := agent.NewMockLLM().Respond("2+2", "4")
	c, _ := newCoordinator(t, llm)

	g, err := graph.Load([]byte(simpleWorkflow))
	require.NoError(t, err)

	first, err := c.Run(context.Background(), g, "2+2")
	require.NoError(t, err)
	second, err := c.Run(context.Background(), g, "2+2")
	require.NoError(t, err)
	assert.NotEqual(t, first.TraceID, second.TraceID)
}
