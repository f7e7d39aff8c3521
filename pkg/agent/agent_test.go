// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"testing"

	"github.com/orka-ai/orka/pkg/memory"
	"github.com/orka-ai/orka/pkg/memory/embedding"
	"github.com/orka-ai/orka/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BuildAndValidate(t *testing.T) {
	registry := NewRegistry()
	provider := NewMockLLM()
	provider.Default = "hello"
	registry.Register("llm", LLMFactory(provider, nil))

	assert.True(t, registry.Has("llm"))
	assert.False(t, registry.Has("missing"))
	assert.Equal(t, []string{"llm"}, registry.Types())

	node, err := registry.Build("answer", "llm", map[string]any{"model": "gpt-4o", "temperature": 0.2})
	require.NoError(t, err)
	assert.Equal(t, "answer", node.ID())
	assert.Equal(t, "llm", node.Type())

	_, err = registry.Build("x", "nope", nil)
	assert.ErrorContains(t, err, "unregistered node type")

	// Validation runs at build time.
	_, err = registry.Build("bad", "llm", map[string]any{"temperature": 9.0})
	assert.ErrorContains(t, err, "out of range")
}

func TestLLM_RunRecordsTrace(t *testing.T) {
	provider := NewMockLLM().Respond("2+2", "4")
	node := NewLLM("answer", LLMConfig{Model: "gpt-4o"}, provider, nil)

	out, err := node.Run(context.Background(), types.NewContext("t", "q"), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", out.Result)
	assert.Equal(t, types.StatusSuccess, out.Status)
	require.NotNil(t, out.Trace)
	assert.Equal(t, "What is 2+2?", out.Trace.Prompt)
	assert.Equal(t, "gpt-4o", out.Trace.Model)
	assert.Greater(t, out.Metrics.Tokens, 0)
}

func TestLLM_ProviderErrorPropagates(t *testing.T) {
	node := NewLLM("answer", LLMConfig{}, NewMockLLM(), nil)
	_, err := node.Run(context.Background(), types.NewContext("t", nil), "unscripted")
	assert.ErrorContains(t, err, "no scripted response")
}

func TestClassifier_MatchesLabel(t *testing.T) {
	provider := NewMockLLM().Respond("sentiment", "  Positive ")
	node := NewClassifier("classify", ClassifierConfig{
		Labels: []string{"positive", "negative", "neutral"},
	}, provider)
	require.NoError(t, node.Validate())

	out, err := node.Run(context.Background(), types.NewContext("t", nil), "sentiment of: great day")
	require.NoError(t, err)
	assert.Equal(t, "positive", out.Result)
}

func TestClassifier_UnmatchedAnswerFails(t *testing.T) {
	provider := NewMockLLM().Respond("sentiment", "I cannot decide")
	node := NewClassifier("classify", ClassifierConfig{
		Labels: []string{"positive", "negative"},
	}, provider)

	_, err := node.Run(context.Background(), types.NewContext("t", nil), "sentiment of: hmm")
	assert.ErrorContains(t, err, "matches no label")
}

func TestMatchLabel(t *testing.T) {
	labels := []string{"yes", "no"}

	got, ok := matchLabel("YES", labels)
	assert.True(t, ok)
	assert.Equal(t, "yes", got)

	got, ok = matchLabel("the answer is no.", labels)
	assert.True(t, ok)
	assert.Equal(t, "no", got)

	// Ambiguous containment refuses to guess.
	_, ok = matchLabel("yes and no", labels)
	assert.False(t, ok)
}

func TestSearch_ReturnsSnippets(t *testing.T) {
	provider := NewMockSearch()
	provider.Results["weather"] = []string{"sunny in Lisbon", "rain in Oslo", "fog in SF"}

	node := NewSearch("lookup", SearchConfig{Limit: 2}, provider)
	out, err := node.Run(context.Background(), types.NewContext("t", nil), "weather today")
	require.NoError(t, err)
	assert.Equal(t, []string{"sunny in Lisbon", "rain in Oslo"}, out.Result)
}

func TestMemoryNode_WriteThenRead(t *testing.T) {
	store := NewTestStore(t)
	write, err := NewMemoryNode("remember", MemoryNodeConfig{
		Operation: "write",
		Namespace: "facts",
		Preset:    "semantic",
	}, store)
	require.NoError(t, err)
	require.NoError(t, write.Validate())

	run := types.NewContext("trace-1", nil)
	out, err := write.Run(context.Background(), run, "capital of France is Paris")
	require.NoError(t, err)
	storedID, ok := out.Result.(string)
	require.True(t, ok)
	require.NotEmpty(t, storedID)

	read, err := NewMemoryNode("recall", MemoryNodeConfig{
		Operation:           "read",
		Namespace:           "facts",
		SimilarityThreshold: 0.1,
	}, store)
	require.NoError(t, err)

	out, err = read.Run(context.Background(), run, "France capital")
	require.NoError(t, err)
	matches, ok := out.Result.([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, matches)
	assert.Contains(t, matches[0]["content"], "Paris")
}

func TestMemoryNode_PresetShapesWrites(t *testing.T) {
	store := &recordingStore{Store: NewTestStore(t)}

	sensory, err := NewMemoryNode("buffer", MemoryNodeConfig{
		Operation: "write", Namespace: "frames", Preset: "sensory",
	}, store)
	require.NoError(t, err)
	_, err = sensory.Run(context.Background(), types.NewContext("t", nil), "raw frame")
	require.NoError(t, err)
	require.NotNil(t, store.last)
	assert.True(t, store.last.NoEmbed)
	assert.Equal(t, memory.ShortTerm, store.last.Type)
	assert.InDelta(t, 0.25, store.last.Retention.ShortTerm, 1e-9)

	semantic, err := NewMemoryNode("facts", MemoryNodeConfig{
		Operation: "write", Namespace: "frames", Preset: "semantic",
	}, store)
	require.NoError(t, err)
	_, err = semantic.Run(context.Background(), types.NewContext("t", nil), "durable fact")
	require.NoError(t, err)
	assert.False(t, store.last.NoEmbed)
	assert.Equal(t, memory.LongTerm, store.last.Type)
	assert.InDelta(t, 720, store.last.Retention.LongTerm, 1e-9)
}

func TestMemoryNode_UnknownPresetFailsAtBuild(t *testing.T) {
	_, err := NewMemoryNode("m", MemoryNodeConfig{
		Operation: "read", Namespace: "n", Preset: "imaginary",
	}, NewTestStore(t))
	assert.ErrorContains(t, err, "unknown memory preset")
}

func TestMemoryNode_ValidateOperation(t *testing.T) {
	node, err := NewMemoryNode("m", MemoryNodeConfig{Operation: "erase", Namespace: "n"}, NewTestStore(t))
	require.NoError(t, err)
	assert.ErrorContains(t, node.Validate(), "read or write")
}

// recordingStore keeps the last appended entry for inspection.
type recordingStore struct {
	memory.Store
	last *memory.Entry
}

func (s *recordingStore) Append(ctx context.Context, e *memory.Entry) (string, error) {
	s.last = e
	return s.Store.Append(ctx, e)
}

// NewTestStore builds an in-process store with the local embedder.
func NewTestStore(t *testing.T) memory.Store {
	t.Helper()
	store := memory.NewInMemory(memory.InMemoryConfig{
		Policy:   memory.DefaultRetentionPolicy(),
		Embedder: embedding.NewLocal(embedding.DefaultDimension),
	})
	t.Cleanup(func() { _ = store.Close() })
	return store
}
