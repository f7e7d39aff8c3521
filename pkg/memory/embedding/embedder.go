// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package embedding produces fixed-dimension unit vectors for UTF-8 text.
// Embedders must be deterministic for equal inputs and degrade gracefully:
// when a backend is unavailable they return the zero marker vector so the
// memory store can fall back to text-only search.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder is the text-to-vector contract.
type Embedder interface {
	// Embed returns a unit vector of Dimension() floats. On backend
	// failure it returns the zero marker vector and no error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the fixed vector width.
	Dimension() int
}

// ZeroMarker returns the degradation marker vector for a dimension.
func ZeroMarker(dim int) []float32 {
	return make([]float32, dim)
}

// IsZeroMarker reports whether a vector is the degradation marker.
func IsZeroMarker(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// DefaultDimension is the width used when no model dictates one.
const DefaultDimension = 384

// Local is a deterministic in-process embedder. Each token is hashed onto
// a fixed-dimension feature space and the accumulated vector is L2
// normalized. It carries no semantic model; it exists so the runtime works
// with zero external services and so tests are reproducible.
type Local struct {
	dim int
}

// NewLocal creates a Local embedder. dim <= 0 selects DefaultDimension.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Local{dim: dim}
}

func (l *Local) Dimension() int { return l.dim }

func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dim))
		// High bit decides sign so unrelated tokens cancel rather than
		// pile up in one direction.
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	normalize(vec)
	return vec, nil
}

func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// tokenize lowercases and splits on non-letter/digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine computes cosine similarity between two vectors of equal length.
// Returns 0 when either vector is the zero marker.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
