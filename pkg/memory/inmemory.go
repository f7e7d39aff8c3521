// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orka-ai/orka/pkg/memory/embedding"
	"go.uber.org/zap"
)

// InMemoryConfig configures the in-process store.
type InMemoryConfig struct {
	Policy   RetentionPolicy
	Embedder embedding.Embedder
	Logger   *zap.Logger
}

// InMemory is the in-process Store used by tests and the zero-dependency
// dev mode. Search runs brute-force cosine over a consistent snapshot;
// mutation is guarded per call so the sweeper never overlaps a read of
// the same entry.
type InMemory struct {
	mu       sync.RWMutex
	entries  map[string]*Entry // keyed namespace:id
	policy   RetentionPolicy
	embedder embedding.Embedder
	logger   *zap.Logger

	lastCleanup time.Time
	closed      bool
}

// NewInMemory creates an in-process store.
func NewInMemory(config InMemoryConfig) *InMemory {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &InMemory{
		entries:  make(map[string]*Entry),
		policy:   config.Policy,
		embedder: config.Embedder,
		logger:   config.Logger,
	}
}

func entryKey(namespace, id string) string { return namespace + ":" + id }

// Append implements Store.
func (s *InMemory) Append(ctx context.Context, entry *Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prepared, err := prepareEntry(ctx, entry, s.policy, s.embedder)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStoreUnavailable
	}
	key := entryKey(prepared.Namespace, prepared.ID)
	if _, exists := s.entries[key]; exists {
		// Idempotent when the id is supplied or content-addressed.
		return prepared.ID, nil
	}
	s.entries[key] = prepared
	return prepared.ID, nil
}

// Search implements Store.
func (s *InMemory) Search(ctx context.Context, query string, params SearchParams) ([]SearchResult, error) {
	params = params.normalized()
	if params.MaxSearchTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.MaxSearchTime)
		defer cancel()
	}

	candidates, err := s.snapshot(params)
	if err != nil {
		return nil, err
	}

	scorer, err := newHybridScorer(ctx, query, params, s.embedder, candidates, s.policy.DecayHalfLife)
	if err != nil {
		return nil, err
	}
	if params.VectorWeight > 0 && !scorer.vectorOnly() && params.KeywordWeight == 0 {
		// Vector capability degraded: fall back to text-only ranking.
		s.logger.Debug("vector search unavailable, falling back to text-only")
		fallback := params
		fallback.VectorWeight = 0
		fallback.KeywordWeight = 1
		scorer, err = newHybridScorer(ctx, query, fallback, nil, candidates, s.policy.DecayHalfLife)
		if err != nil {
			return nil, err
		}
	}

	results := make([]SearchResult, 0, params.Limit)
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := scorer.score(e)
		if score >= params.SimilarityThreshold {
			results = append(results, SearchResult{Entry: e, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.CreatedAt.After(results[j].Entry.CreatedAt)
	})
	if len(results) > params.Limit {
		results = results[:params.Limit]
	}

	s.boostAccessed(results)
	return results, nil
}

// snapshot collects filter-matching entries under the read lock. Results
// are clones; the caller never shares store-internal state.
func (s *InMemory) snapshot(params SearchParams) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreUnavailable
	}
	now := time.Now()
	var out []*Entry
	for _, e := range s.entries {
		if !matchesFilters(e, params, now) {
			continue
		}
		out = append(out, e.clone())
	}
	return out, nil
}

func matchesFilters(e *Entry, params SearchParams, now time.Time) bool {
	if e.Category != params.CategoryFilter {
		return false
	}
	if params.Namespace != "" && e.Namespace != params.Namespace {
		return false
	}
	if params.MemoryTypeFilter != "" && e.Type != params.MemoryTypeFilter {
		return false
	}
	if e.Expired(now) {
		return false
	}
	for k, v := range params.MetadataFilters {
		if e.Metadata[k] != v {
			return false
		}
	}
	return true
}

// boostAccessed advances expiry deadlines for returned entries when the
// policy enables access-based boosting.
func (s *InMemory) boostAccessed(results []SearchResult) {
	if !s.policy.Enabled || s.policy.AccessBoostFactor <= 1 {
		return
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		key := entryKey(r.Entry.Namespace, r.Entry.ID)
		if stored, ok := s.entries[key]; ok {
			stored.ExpiresAt = s.policy.Boost(now, stored.ExpiresAt)
		}
	}
}

// CleanupExpired implements Store. The sweep is bounded by the policy's
// MaxSweepDuration so it never monopolizes the write lock.
func (s *InMemory) CleanupExpired(ctx context.Context, dryRun bool) (CleanupReport, error) {
	start := time.Now()
	deadline := time.Time{}
	if s.policy.MaxSweepDuration > 0 {
		deadline = start.Add(s.policy.MaxSweepDuration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return CleanupReport{}, ErrStoreUnavailable
	}

	report := CleanupReport{DryRun: dryRun}
	now := time.Now()
	for key, e := range s.entries {
		if err := ctx.Err(); err != nil {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			s.logger.Warn("cleanup sweep hit time budget",
				zap.Int("scanned", report.Scanned))
			break
		}
		report.Scanned++
		if e.Expired(now) {
			report.Expired++
			if !dryRun {
				delete(s.entries, key)
				report.Deleted++
			}
		}
	}
	if !dryRun {
		s.lastCleanup = time.Now()
	}
	report.Took = time.Since(start)
	return report, nil
}

// Stats implements Store.
func (s *InMemory) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrStoreUnavailable
	}
	stats := Stats{
		Backend:       "memory",
		ByNamespace:   make(map[string]int),
		ByType:        make(map[string]int),
		ByCategory:    make(map[string]int),
		LastCleanup:   s.lastCleanup,
		VectorCapable: s.embedder != nil,
	}
	for _, e := range s.entries {
		stats.TotalEntries++
		stats.ByNamespace[e.Namespace]++
		stats.ByType[string(e.Type)]++
		stats.ByCategory[string(e.Category)]++
	}
	return stats, nil
}

// Close implements Store.
func (s *InMemory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
