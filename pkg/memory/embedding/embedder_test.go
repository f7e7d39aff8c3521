// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Deterministic(t *testing.T) {
	e := NewLocal(DefaultDimension)

	a, err := e.Embed(context.Background(), "orchestration graph")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "orchestration graph")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimension)

	c, err := e.Embed(context.Background(), "completely different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestLocal_Normalized(t *testing.T) {
	e := NewLocal(DefaultDimension)
	vec, err := e.Embed(context.Background(), "unit length check")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, 1.0, Cosine(a, a), 1e-9)
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-9)
	assert.Zero(t, Cosine(a, []float32{1, 0}))
}

func TestZeroMarker(t *testing.T) {
	marker := ZeroMarker(8)
	assert.True(t, IsZeroMarker(marker))
	assert.False(t, IsZeroMarker([]float32{0, 0, 0.1}))
	assert.True(t, IsZeroMarker(nil))
}

func TestCached_HitsSkipInner(t *testing.T) {
	var calls atomic.Int64
	inner := countingEmbedder{local: NewLocal(DefaultDimension), calls: &calls}
	cached, err := NewCached(inner, 16)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "same text")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, cached.Len())
}

func TestCached_ZeroMarkersNotCached(t *testing.T) {
	var calls atomic.Int64
	cached, err := NewCached(failingEmbedder{calls: &calls}, 16)
	require.NoError(t, err)

	vec, err := cached.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, IsZeroMarker(vec))

	_, err = cached.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
	assert.Zero(t, cached.Len())
}

func TestHTTP_DegradesToZeroMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := NewHTTP(HTTPConfig{Host: server.URL, Dimension: 4, MaxRetries: 1})
	vec, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, IsZeroMarker(vec))
}

func TestHTTP_ReturnsServerVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float64{3, 4, 0, 0},
		})
	}))
	defer server.Close()

	e := NewHTTP(HTTPConfig{Host: server.URL, Dimension: 4})
	vec, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, vec, 4)
	// Server vectors are normalized to unit length.
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-5)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-5)
}

type countingEmbedder struct {
	local *Local
	calls *atomic.Int64
}

func (c countingEmbedder) Dimension() int { return c.local.Dimension() }

func (c countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.local.Embed(ctx, text)
}

func (c countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := c.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type failingEmbedder struct {
	calls *atomic.Int64
}

func (failingEmbedder) Dimension() int { return DefaultDimension }

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	return ZeroMarker(DefaultDimension), nil
}

func (f failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = f.Embed(ctx, texts[i])
	}
	return out, nil
}
