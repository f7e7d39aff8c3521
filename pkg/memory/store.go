// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"context"
	"fmt"
	"time"
)

// Sentinel errors for the store failure model.
var (
	// ErrStoreUnavailable signals backend loss; the run aborts.
	ErrStoreUnavailable = fmt.Errorf("memory store unavailable")

	// ErrStoreDegraded signals a write queued for retry after a transient
	// backend failure.
	ErrStoreDegraded = fmt.Errorf("memory store degraded")

	// ErrStoreWriteFailed signals a write dropped after the retry cap.
	ErrStoreWriteFailed = fmt.Errorf("memory store write failed")
)

// SearchParams tunes one Search call. Zero values select preset or store
// defaults.
type SearchParams struct {
	Namespace string
	Limit     int

	// SimilarityThreshold gates results on the combined score.
	SimilarityThreshold float64

	// MemoryTypeFilter restricts results to one retention class when set.
	MemoryTypeFilter MemoryType

	// CategoryFilter defaults to CategoryStored; log entries are only
	// reachable when requested explicitly.
	CategoryFilter Category

	MetadataFilters map[string]string

	// EnableHybrid activates the four-way combined score. Without it,
	// ranking is vector-only (or keyword-only when vectors degrade).
	EnableHybrid bool

	// Component weights. They are normalized by the sum of the active
	// (non-zero) weights before combining.
	VectorWeight   float64
	TemporalWeight float64
	ContextWeight  float64
	KeywordWeight  float64

	// ContextWindow holds recent output texts used to augment the query
	// vector when ContextWeight > 0.
	ContextWindow []string

	// DecayHalfLife parameterizes the temporal component. Zero selects
	// the store's policy half-life.
	DecayHalfLife time.Duration

	// MaxSearchTime bounds one search call. Zero means no extra bound
	// beyond the caller's context.
	MaxSearchTime time.Duration
}

// normalized fills defaults the way every backend expects them.
func (p SearchParams) normalized() SearchParams {
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.CategoryFilter == "" {
		p.CategoryFilter = CategoryStored
	}
	if !p.EnableHybrid && p.VectorWeight == 0 && p.KeywordWeight == 0 {
		p.VectorWeight = 1
	}
	return p
}

// SearchResult pairs an entry with its combined score.
type SearchResult struct {
	Entry *Entry  `json:"entry"`
	Score float64 `json:"score"`
}

// CleanupReport summarizes one decay sweep.
type CleanupReport struct {
	Scanned int           `json:"scanned"`
	Expired int           `json:"expired"`
	Deleted int           `json:"deleted"`
	DryRun  bool          `json:"dry_run"`
	Took    time.Duration `json:"took"`
}

// Stats reports store health and population.
type Stats struct {
	Backend       string         `json:"backend"`
	TotalEntries  int            `json:"total_entries"`
	ByNamespace   map[string]int `json:"by_namespace"`
	ByType        map[string]int `json:"by_type"`
	ByCategory    map[string]int `json:"by_category"`
	LastCleanup   time.Time      `json:"last_cleanup,omitempty"`
	VectorCapable bool           `json:"vector_capable"`
	Degraded      bool           `json:"degraded"`
	PendingWrites int            `json:"pending_writes"`
}

// Store is the memory subsystem contract. Implementations must support
// concurrent readers and writers; reads see a monotonically consistent
// snapshot per call.
type Store interface {
	// Append writes one entry. Idempotent when the entry carries an id;
	// otherwise the store assigns the content address.
	Append(ctx context.Context, entry *Entry) (string, error)

	// Search returns stored-category entries whose combined score meets
	// the threshold, sorted by score descending, ties broken by
	// CreatedAt descending.
	Search(ctx context.Context, query string, params SearchParams) ([]SearchResult, error)

	// CleanupExpired removes entries past their decay deadline. With
	// dryRun it only counts.
	CleanupExpired(ctx context.Context, dryRun bool) (CleanupReport, error)

	// Stats reports population and health.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
