// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/orka-ai/orka/pkg/memory/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, policy RetentionPolicy) *InMemory {
	t.Helper()
	store := NewInMemory(InMemoryConfig{
		Policy:   policy,
		Embedder: embedding.NewLocal(embedding.DefaultDimension),
	})
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppend_AssignsContentAddress(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	id, err := store.Append(ctx, &Entry{
		Namespace: "facts",
		Content:   "the capital of France is Paris",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Same content in the same namespace is idempotent.
	id2, err := store.Append(ctx, &Entry{
		Namespace: "facts",
		Content:   "the capital of France is Paris",
	})
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
}

func TestAppend_ValidationErrors(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	_, err := store.Append(ctx, &Entry{Content: "no namespace"})
	assert.Error(t, err)

	_, err = store.Append(ctx, &Entry{Namespace: "facts"})
	assert.Error(t, err)
}

func TestAppend_ClassifiesWhenTypeUnset(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	_, err := store.Append(ctx, &Entry{
		Namespace: "facts",
		Content:   string(long) + "\n{structured}",
		Metadata:  map[string]string{"confidence": "0.9", "category": "verified_fact"},
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByType[string(LongTerm)])
}

func TestAppend_NoEmbedSkipsEmbedding(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	id, err := store.Append(ctx, &Entry{
		Namespace: "buffer",
		Content:   "raw sensory frame",
		NoEmbed:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, store.entries[entryKey("buffer", id)].Embedding)

	id, err = store.Append(ctx, &Entry{
		Namespace: "buffer",
		Content:   "durable observation",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, store.entries[entryKey("buffer", id)].Embedding)
}

func TestPrepareEntry_PresetRetentionHours(t *testing.T) {
	policy := DefaultRetentionPolicy()
	emb := embedding.NewLocal(embedding.DefaultDimension)

	sensory, err := prepareEntry(context.Background(), &Entry{
		Namespace: "buffer",
		Content:   "raw sensory frame",
		Type:      ShortTerm,
		Retention: RetentionHours{ShortTerm: 0.25},
	}, policy, emb)
	require.NoError(t, err)
	assert.WithinDuration(t, sensory.CreatedAt.Add(15*time.Minute), sensory.ExpiresAt, time.Second)

	// Without an override the policy's base hours apply.
	plain, err := prepareEntry(context.Background(), &Entry{
		Namespace: "buffer",
		Content:   "raw sensory frame two",
		Type:      ShortTerm,
	}, policy, emb)
	require.NoError(t, err)
	assert.WithinDuration(t, plain.CreatedAt.Add(2*time.Hour), plain.ExpiresAt, time.Second)
}

func TestSearch_IdenticalContentScoresNearOne(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	content := "the deploy pipeline promotes staging builds every night"
	_, err := store.Append(ctx, &Entry{Namespace: "notes", Content: content})
	require.NoError(t, err)

	results, err := store.Search(ctx, content, SearchParams{
		Namespace:           "notes",
		SimilarityThreshold: 0.9,
		VectorWeight:        1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Score, 0.99)
}

func TestSearch_OrdersByScoreAndHonorsLimit(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	contents := []string{
		"kubernetes pod scheduling and affinity rules",
		"kubernetes deployment rollout strategies",
		"recipe for sourdough bread",
	}
	for _, c := range contents {
		_, err := store.Append(ctx, &Entry{Namespace: "notes", Content: c})
		require.NoError(t, err)
	}

	results, err := store.Search(ctx, "kubernetes scheduling", SearchParams{
		Namespace:           "notes",
		Limit:               2,
		SimilarityThreshold: 0.1,
		EnableHybrid:        true,
		VectorWeight:        0.6,
		KeywordWeight:       0.4,
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 2)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Entry.Content, "kubernetes")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_ExcludesLogCategoryByDefault(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	_, err := store.Append(ctx, &Entry{
		Namespace: "run", Content: "orchestration step completed", Category: CategoryLog,
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, &Entry{
		Namespace: "run", Content: "orchestration result summary", Category: CategoryStored,
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "orchestration", SearchParams{
		Namespace: "run", SimilarityThreshold: 0,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, CategoryStored, results[0].Entry.Category)

	logs, err := store.Search(ctx, "orchestration", SearchParams{
		Namespace: "run", CategoryFilter: CategoryLog, SimilarityThreshold: 0,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, CategoryLog, logs[0].Entry.Category)
}

func TestSearch_TextOnlyFallbackWithoutEmbedder(t *testing.T) {
	store := NewInMemory(InMemoryConfig{Policy: DefaultRetentionPolicy()})
	defer store.Close()
	ctx := context.Background()

	_, err := store.Append(ctx, &Entry{Namespace: "notes", Content: "redis connection pooling tips"})
	require.NoError(t, err)

	results, err := store.Search(ctx, "redis pooling", SearchParams{
		Namespace:           "notes",
		SimilarityThreshold: 0.05,
		VectorWeight:        1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearch_MetadataAndTypeFilters(t *testing.T) {
	store := newTestStore(t, DefaultRetentionPolicy())
	ctx := context.Background()

	_, err := store.Append(ctx, &Entry{
		Namespace: "facts", Content: "alpha release shipped", Type: LongTerm,
		Metadata: map[string]string{"team": "core"},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, &Entry{
		Namespace: "facts", Content: "alpha release delayed", Type: ShortTerm,
		Metadata: map[string]string{"team": "infra"},
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "alpha release", SearchParams{
		Namespace:           "facts",
		SimilarityThreshold: 0,
		MemoryTypeFilter:    LongTerm,
		MetadataFilters:     map[string]string{"team": "core"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha release shipped", results[0].Entry.Content)
}

func TestSearch_SkipsExpiredEntries(t *testing.T) {
	store := newTestStore(t, RetentionPolicy{})
	ctx := context.Background()

	_, err := store.Append(ctx, &Entry{
		Namespace: "facts",
		Content:   "stale fact",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	results, err := store.Search(ctx, "stale fact", SearchParams{
		Namespace: "facts", SimilarityThreshold: 0,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCleanupExpired_DryRunCountsOnly(t *testing.T) {
	store := newTestStore(t, RetentionPolicy{})
	ctx := context.Background()

	_, err := store.Append(ctx, &Entry{
		Namespace: "facts",
		Content:   "expired",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, &Entry{Namespace: "facts", Content: "alive"})
	require.NoError(t, err)

	report, err := store.CleanupExpired(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Deleted)
	assert.True(t, report.DryRun)

	report, err = store.CleanupExpired(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.False(t, stats.LastCleanup.IsZero())
}

func TestSearch_AccessBoostExtendsDeadline(t *testing.T) {
	policy := DefaultRetentionPolicy()
	policy.AccessBoostFactor = 2.0
	store := newTestStore(t, policy)
	ctx := context.Background()

	id, err := store.Append(ctx, &Entry{Namespace: "facts", Content: "boost target memo"})
	require.NoError(t, err)

	before := store.entries[entryKey("facts", id)].ExpiresAt

	_, err = store.Search(ctx, "boost target memo", SearchParams{
		Namespace: "facts", SimilarityThreshold: 0,
	})
	require.NoError(t, err)

	after := store.entries[entryKey("facts", id)].ExpiresAt
	assert.True(t, after.After(before))
}

func TestClose_SubsequentOpsFail(t *testing.T) {
	store := NewInMemory(InMemoryConfig{})
	require.NoError(t, store.Close())

	_, err := store.Append(context.Background(), &Entry{Namespace: "n", Content: "c"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = store.Search(context.Background(), "q", SearchParams{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
