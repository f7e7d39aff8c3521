// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/orka-ai/orka/pkg/memory/embedding"
)

// BM25 constants, the usual defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// hybridScorer computes the combined relevance score
//
//	(w_v·cos + w_t·τ + w_c·ctx + w_k·bm25) / Σ(active weights)
//
// Each component is computed only when its weight is non-zero. τ(age) is
// exp(-age/half_life). The context component compares the entry vector
// against the mean embedding of the recent context window.
type hybridScorer struct {
	params   SearchParams
	now      time.Time
	halfLife time.Duration

	queryVec    []float32
	queryTokens []string
	contextVec  []float32

	// Corpus statistics for BM25, built over the filtered candidate set.
	docCount  int
	avgDocLen float64
	docFreq   map[string]int
}

// newHybridScorer prepares shared state for one search call. The
// candidate set is needed up front for BM25 corpus statistics.
func newHybridScorer(
	ctx context.Context,
	query string,
	params SearchParams,
	embedder embedding.Embedder,
	candidates []*Entry,
	halfLife time.Duration,
) (*hybridScorer, error) {
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}
	if params.DecayHalfLife > 0 {
		halfLife = params.DecayHalfLife
	}
	s := &hybridScorer{
		params:   params,
		now:      time.Now(),
		halfLife: halfLife,
		docFreq:  make(map[string]int),
	}

	if params.VectorWeight > 0 && embedder != nil {
		vec, err := embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		if !embedding.IsZeroMarker(vec) {
			s.queryVec = vec
		}
	}

	if params.ContextWeight > 0 && embedder != nil && len(params.ContextWindow) > 0 {
		vecs, err := embedder.EmbedBatch(ctx, params.ContextWindow)
		if err != nil {
			return nil, err
		}
		s.contextVec = meanVector(vecs)
	}

	if params.KeywordWeight > 0 {
		s.queryTokens = searchTokens(query)
		var totalLen int
		for _, e := range candidates {
			toks := searchTokens(e.Content)
			totalLen += len(toks)
			seen := make(map[string]bool, len(toks))
			for _, t := range toks {
				if !seen[t] {
					seen[t] = true
					s.docFreq[t]++
				}
			}
		}
		s.docCount = len(candidates)
		if s.docCount > 0 {
			s.avgDocLen = float64(totalLen) / float64(s.docCount)
		}
	}

	return s, nil
}

// score computes the combined score for one entry.
func (s *hybridScorer) score(e *Entry) float64 {
	var sum, active float64

	if w := s.params.VectorWeight; w > 0 {
		active += w
		if s.queryVec != nil && len(e.Embedding) > 0 {
			sum += w * clamp01(embedding.Cosine(s.queryVec, e.Embedding))
		}
	}
	if w := s.params.TemporalWeight; w > 0 {
		active += w
		age := s.now.Sub(e.CreatedAt)
		if age < 0 {
			age = 0
		}
		sum += w * math.Exp(-float64(age)/float64(s.halfLife))
	}
	if w := s.params.ContextWeight; w > 0 {
		active += w
		if s.contextVec != nil && len(e.Embedding) > 0 {
			sum += w * clamp01(embedding.Cosine(s.contextVec, e.Embedding))
		}
	}
	if w := s.params.KeywordWeight; w > 0 {
		active += w
		sum += w * s.bm25(e)
	}

	if active == 0 {
		return 0
	}
	return sum / active
}

// bm25 scores the entry against the query tokens, squashed into [0,1].
func (s *hybridScorer) bm25(e *Entry) float64 {
	if len(s.queryTokens) == 0 || s.docCount == 0 {
		return 0
	}
	toks := searchTokens(e.Content)
	if len(toks) == 0 {
		return 0
	}
	tf := make(map[string]int, len(toks))
	for _, t := range toks {
		tf[t]++
	}
	docLen := float64(len(toks))

	var raw float64
	for _, q := range s.queryTokens {
		f := float64(tf[q])
		if f == 0 {
			continue
		}
		df := float64(s.docFreq[q])
		idf := math.Log(1 + (float64(s.docCount)-df+0.5)/(df+0.5))
		denom := f + bm25K1*(1-bm25B+bm25B*docLen/s.avgDocLen)
		raw += idf * f * (bm25K1 + 1) / denom
	}
	// Squash into [0,1]; raw BM25 is unbounded.
	return raw / (raw + 1)
}

// vectorOnly reports whether the scorer degraded to keyword-only ranking
// because no query vector is available.
func (s *hybridScorer) vectorOnly() bool {
	return s.queryVec != nil
}

func searchTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func meanVector(vecs [][]float32) []float32 {
	var mean []float32
	var n int
	for _, v := range vecs {
		if embedding.IsZeroMarker(v) {
			continue
		}
		if mean == nil {
			mean = make([]float32, len(v))
		}
		for i := range v {
			mean[i] += v[i]
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range mean {
		mean[i] /= float32(n)
	}
	return mean
}
