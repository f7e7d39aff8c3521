// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orka-ai/orka/pkg/memory/embedding"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// keyPrefix namespaces every OrKa hash in the shared Redis keyspace.
// The full key is <keyPrefix><namespace>:<id>.
const keyPrefix = "orka:mem:"

// defaultIndexName is the RediSearch secondary index created on first run.
const defaultIndexName = "orka:mem:idx"

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	// URL is a redis:// connection string.
	URL string

	IndexName string
	Policy    RetentionPolicy
	Embedder  embedding.Embedder
	Logger    *zap.Logger

	// WriteRetryCap bounds the retry queue for failed writes before an
	// entry is dropped with StoreWriteFailed.
	WriteRetryCap int
}

// pendingWrite is one queued retry.
type pendingWrite struct {
	entry    *Entry
	attempts int
}

// Redis is the production Store backed by a key-value service with
// secondary text+numeric+vector indexing. When the vector capability is
// missing the store degrades to text-only search and advertises that
// through Stats.
type Redis struct {
	client   *redis.Client
	index    string
	policy   RetentionPolicy
	embedder embedding.Embedder
	logger   *zap.Logger

	vectorCapable atomic.Bool
	degraded      atomic.Bool

	retryCap int
	retryMu  sync.Mutex
	retries  []pendingWrite

	lastCleanupMu sync.Mutex
	lastCleanup   time.Time

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewRedis connects to the backend, probes its capability set, and
// creates the secondary index when missing.
func NewRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url: %v", ErrStoreUnavailable, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if config.IndexName == "" {
		config.IndexName = defaultIndexName
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.WriteRetryCap <= 0 {
		config.WriteRetryCap = 3
	}

	s := &Redis{
		client:   client,
		index:    config.IndexName,
		policy:   config.Policy,
		embedder: config.Embedder,
		logger:   config.Logger,
		retryCap: config.WriteRetryCap,
		closeCh:  make(chan struct{}),
	}
	s.probeCapabilities(ctx)

	s.wg.Add(1)
	go s.retryLoop()

	return s, nil
}

// probeCapabilities checks for the search module and bootstraps the
// index. A backend without RediSearch serves text-only via SCAN.
func (s *Redis) probeCapabilities(ctx context.Context) {
	if err := s.client.Do(ctx, "FT._LIST").Err(); err != nil {
		s.logger.Warn("vector index capability unavailable, text-only search",
			zap.Error(err))
		s.vectorCapable.Store(false)
		return
	}
	s.vectorCapable.Store(true)
	if err := s.ensureIndex(ctx); err != nil {
		s.logger.Warn("index bootstrap failed, text-only search", zap.Error(err))
		s.vectorCapable.Store(false)
	}
}

func (s *Redis) ensureIndex(ctx context.Context) error {
	dim := embedding.DefaultDimension
	if s.embedder != nil {
		dim = s.embedder.Dimension()
	}
	err := s.client.Do(ctx,
		"FT.CREATE", s.index, "ON", "HASH", "PREFIX", "1", keyPrefix,
		"SCHEMA",
		"content", "TEXT",
		"namespace", "TAG",
		"category", "TAG",
		"memory_type", "TAG",
		"created_at", "NUMERIC", "SORTABLE",
		"expires_at", "NUMERIC",
		"embedding", "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	).Err()
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (s *Redis) key(namespace, id string) string {
	return keyPrefix + namespace + ":" + id
}

// Append implements Store. Transient backend failures queue the entry for
// bounded retry and surface StoreDegraded.
func (s *Redis) Append(ctx context.Context, entry *Entry) (string, error) {
	prepared, err := prepareEntry(ctx, entry, s.policy, s.embedder)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, prepared); err != nil {
		s.enqueueRetry(prepared)
		s.degraded.Store(true)
		return prepared.ID, fmt.Errorf("%w: %v", ErrStoreDegraded, err)
	}
	s.degraded.Store(false)
	return prepared.ID, nil
}

func (s *Redis) write(ctx context.Context, e *Entry) error {
	key := s.key(e.Namespace, e.ID)

	// Idempotent append: an existing hash with the same id wins.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists > 0 {
		return nil
	}

	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"id":          e.ID,
		"namespace":   e.Namespace,
		"node_id":     e.NodeID,
		"trace_id":    e.TraceID,
		"content":     e.Content,
		"category":    string(e.Category),
		"memory_type": string(e.Type),
		"metadata":    string(meta),
		"created_at":  e.CreatedAt.Unix(),
	}
	if !e.ExpiresAt.IsZero() {
		fields["expires_at"] = e.ExpiresAt.Unix()
	}
	if len(e.Embedding) > 0 {
		fields["embedding"] = string(encodeVector(e.Embedding))
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if !e.ExpiresAt.IsZero() {
		pipe.ExpireAt(ctx, key, e.ExpiresAt)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Redis) enqueueRetry(e *Entry) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	s.retries = append(s.retries, pendingWrite{entry: e})
}

// retryLoop drains the pending-write queue with a fixed cadence. Entries
// exceeding the retry cap are dropped with StoreWriteFailed.
func (s *Redis) retryLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.drainRetries()
		}
	}
}

func (s *Redis) drainRetries() {
	s.retryMu.Lock()
	pending := s.retries
	s.retries = nil
	s.retryMu.Unlock()
	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var requeue []pendingWrite
	for _, p := range pending {
		if err := s.write(ctx, p.entry); err != nil {
			p.attempts++
			if p.attempts >= s.retryCap {
				s.logger.Error("dropping write after retry cap",
					zap.String("id", p.entry.ID),
					zap.Int("attempts", p.attempts),
					zap.Error(fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)))
				continue
			}
			requeue = append(requeue, p)
			continue
		}
	}

	s.retryMu.Lock()
	s.retries = append(s.retries, requeue...)
	degraded := len(s.retries) > 0
	s.retryMu.Unlock()
	s.degraded.Store(degraded)
}

// Search implements Store. Candidate recall uses KNN when the vector
// capability is present; any vector-path failure falls back to a keyspace
// scan with text-only ranking.
func (s *Redis) Search(ctx context.Context, query string, params SearchParams) ([]SearchResult, error) {
	params = params.normalized()
	if params.MaxSearchTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.MaxSearchTime)
		defer cancel()
	}

	var candidates []*Entry
	var err error
	if s.vectorCapable.Load() && params.VectorWeight > 0 && s.embedder != nil {
		candidates, err = s.knnCandidates(ctx, query, params)
		if err != nil {
			s.logger.Warn("vector search failed, falling back to text-only", zap.Error(err))
			candidates = nil
		}
	}
	if candidates == nil {
		candidates, err = s.scanCandidates(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	scorer, err := newHybridScorer(ctx, query, params, s.embedder, candidates, s.policy.DecayHalfLife)
	if err != nil {
		return nil, err
	}
	if params.VectorWeight > 0 && !scorer.vectorOnly() && params.KeywordWeight == 0 {
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

	s.boostAccessed(ctx, results)
	return results, nil
}

// knnCandidates recalls a widened candidate set via the secondary index.
func (s *Redis) knnCandidates(ctx context.Context, query string, params SearchParams) ([]*Entry, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if embedding.IsZeroMarker(vec) {
		return nil, fmt.Errorf("embedder degraded")
	}

	// Recall more than the limit; the combined score re-ranks.
	k := params.Limit * 4
	if k < 20 {
		k = 20
	}
	filter := fmt.Sprintf("(@category:{%s}", params.CategoryFilter)
	if params.Namespace != "" {
		filter += fmt.Sprintf(" @namespace:{%s}", escapeTag(params.Namespace))
	}
	if params.MemoryTypeFilter != "" {
		filter += fmt.Sprintf(" @memory_type:{%s}", params.MemoryTypeFilter)
	}
	filter += ")"
	knnQuery := fmt.Sprintf("%s=>[KNN %d @embedding $vec AS dist]", filter, k)

	raw, err := s.client.Do(ctx,
		"FT.SEARCH", s.index, knnQuery,
		"PARAMS", "2", "vec", string(encodeVector(vec)),
		"SORTBY", "dist",
		"RETURN", "1", "id",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Slice()
	if err != nil {
		return nil, err
	}

	keys := searchReplyKeys(raw)
	return s.fetchEntries(ctx, keys, params)
}

// searchReplyKeys extracts document keys from a raw FT.SEARCH reply:
// [count, key1, fields1, key2, fields2, ...].
func searchReplyKeys(raw []any) []string {
	var keys []string
	for i := 1; i < len(raw); i++ {
		if key, ok := raw[i].(string); ok && strings.HasPrefix(key, keyPrefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// scanCandidates walks the keyspace for filter-matching entries. Used
// when the index is unavailable and for hybrid components that need the
// full namespace.
func (s *Redis) scanCandidates(ctx context.Context, params SearchParams) ([]*Entry, error) {
	match := keyPrefix + "*"
	if params.Namespace != "" {
		match = keyPrefix + params.Namespace + ":*"
	}
	var keys []string
	iter := s.client.Scan(ctx, 0, match, 512).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return s.fetchEntries(ctx, keys, params)
}

func (s *Redis) fetchEntries(ctx context.Context, keys []string, params SearchParams) ([]*Entry, error) {
	now := time.Now()
	var out []*Entry
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		e, err := decodeEntry(fields)
		if err != nil {
			s.logger.Debug("skipping undecodable entry", zap.String("key", key), zap.Error(err))
			continue
		}
		if matchesFilters(e, params, now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Redis) boostAccessed(ctx context.Context, results []SearchResult) {
	if !s.policy.Enabled || s.policy.AccessBoostFactor <= 1 {
		return
	}
	now := time.Now()
	for _, r := range results {
		newDeadline := s.policy.Boost(now, r.Entry.ExpiresAt)
		if newDeadline.Equal(r.Entry.ExpiresAt) {
			continue
		}
		key := s.key(r.Entry.Namespace, r.Entry.ID)
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, key, "expires_at", newDeadline.Unix())
		pipe.ExpireAt(ctx, key, newDeadline)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Debug("access boost failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// CleanupExpired implements Store. Redis TTLs remove most entries on
// their own; the sweep catches hashes written before decay was enabled
// and keeps Stats honest.
func (s *Redis) CleanupExpired(ctx context.Context, dryRun bool) (CleanupReport, error) {
	start := time.Now()
	if s.policy.MaxSweepDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.MaxSweepDuration)
		defer cancel()
	}

	report := CleanupReport{DryRun: dryRun}
	now := time.Now()
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 512).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		report.Scanned++
		rawExp, err := s.client.HGet(ctx, key, "expires_at").Result()
		if err == redis.Nil || err != nil {
			continue
		}
		exp, err := strconv.ParseInt(rawExp, 10, 64)
		if err != nil || exp == 0 {
			continue
		}
		if time.Unix(exp, 0).Before(now) {
			report.Expired++
			if !dryRun {
				if s.client.Del(ctx, key).Val() > 0 {
					report.Deleted++
				}
			}
		}
	}
	if err := iter.Err(); err != nil && ctx.Err() == nil {
		return report, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !dryRun {
		s.lastCleanupMu.Lock()
		s.lastCleanup = time.Now()
		s.lastCleanupMu.Unlock()
	}
	report.Took = time.Since(start)
	return report, nil
}

// Stats implements Store.
func (s *Redis) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Backend:       "redis",
		ByNamespace:   make(map[string]int),
		ByType:        make(map[string]int),
		ByCategory:    make(map[string]int),
		VectorCapable: s.vectorCapable.Load(),
		Degraded:      s.degraded.Load(),
	}
	s.retryMu.Lock()
	stats.PendingWrites = len(s.retries)
	s.retryMu.Unlock()
	s.lastCleanupMu.Lock()
	stats.LastCleanup = s.lastCleanup
	s.lastCleanupMu.Unlock()

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 512).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		vals, err := s.client.HMGet(ctx, key, "namespace", "memory_type", "category").Result()
		if err != nil {
			continue
		}
		stats.TotalEntries++
		if ns, ok := vals[0].(string); ok {
			stats.ByNamespace[ns]++
		}
		if mt, ok := vals[1].(string); ok {
			stats.ByType[mt]++
		}
		if cat, ok := vals[2].(string); ok {
			stats.ByCategory[cat]++
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return stats, nil
}

// Close implements Store.
func (s *Redis) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	s.wg.Wait()
	return s.client.Close()
}

// prepareEntry fills derived fields shared by every backend.
func prepareEntry(ctx context.Context, entry *Entry, policy RetentionPolicy, embedder embedding.Embedder) (*Entry, error) {
	e := entry.clone()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Category == "" {
		e.Category = CategoryStored
	}
	if e.Type == "" {
		e.Type, _ = policy.Classify(e)
	}
	if e.ID == "" {
		e.ID = e.ContentAddress()
	}
	if e.ExpiresAt.IsZero() && policy.Enabled {
		if ttl := policy.TTL(e); ttl > 0 {
			e.ExpiresAt = e.CreatedAt.Add(ttl)
		}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.Category == CategoryStored && !e.NoEmbed && e.Embedding == nil && embedder != nil {
		vec, err := embedder.Embed(ctx, e.Content)
		if err != nil {
			return nil, err
		}
		if !embedding.IsZeroMarker(vec) {
			e.Embedding = vec
		}
	}
	return e, nil
}

func decodeEntry(fields map[string]string) (*Entry, error) {
	e := &Entry{
		ID:        fields["id"],
		Namespace: fields["namespace"],
		NodeID:    fields["node_id"],
		TraceID:   fields["trace_id"],
		Content:   fields["content"],
		Category:  Category(fields["category"]),
		Type:      MemoryType(fields["memory_type"]),
	}
	if raw := fields["metadata"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Metadata); err != nil {
			return nil, fmt.Errorf("bad metadata: %w", err)
		}
	}
	if raw := fields["created_at"]; raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad created_at: %w", err)
		}
		e.CreatedAt = time.Unix(sec, 0)
	}
	if raw := fields["expires_at"]; raw != "" {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad expires_at: %w", err)
		}
		e.ExpiresAt = time.Unix(sec, 0)
	}
	if raw := fields["embedding"]; raw != "" {
		e.Embedding = decodeVector([]byte(raw))
	}
	return e, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// escapeTag escapes RediSearch tag-syntax separators in user values.
func escapeTag(v string) string {
	replacer := strings.NewReplacer(",", "\\,", ".", "\\.", " ", "\\ ", "-", "\\-")
	return replacer.Replace(v)
}
