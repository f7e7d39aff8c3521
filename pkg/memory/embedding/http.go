// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPConfig configures an HTTP embedder backend.
type HTTPConfig struct {
	Host       string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
	Logger     *zap.Logger
}

// HTTP calls an Ollama-style embedding endpoint. Bounded latency per call;
// on backend failure it returns the zero marker vector so callers fall
// back to text search instead of failing the run.
type HTTP struct {
	config HTTPConfig
	client *http.Client
	logger *zap.Logger
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewHTTP creates an HTTP embedder.
func NewHTTP(config HTTPConfig) *HTTP {
	if config.Dimension <= 0 {
		config.Dimension = DefaultDimension
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &HTTP{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: config.Logger,
	}
}

func (h *HTTP) Dimension() int { return h.config.Dimension }

func (h *HTTP) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < h.config.MaxRetries; attempt++ {
		vec, err := h.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		h.logger.Debug("embedding retry",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ZeroMarker(h.config.Dimension), nil
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	h.logger.Warn("embedding backend unavailable, degrading to text search",
		zap.String("model", h.config.Model),
		zap.Error(lastErr))
	return ZeroMarker(h.config.Dimension), nil
}

func (h *HTTP) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: h.config.Model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.config.Host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding API status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from backend")
	}
	if len(parsed.Embedding) != h.config.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d",
			len(parsed.Embedding), h.config.Dimension)
	}
	normalize(parsed.Embedding)
	return parsed.Embedding, nil
}

func (h *HTTP) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
