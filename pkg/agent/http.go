// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

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

// HTTPProviderConfig configures a generic HTTP generation backend.
type HTTPProviderConfig struct {
	// Host is the base URL of an Ollama-style generate endpoint.
	Host    string
	Model   string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// HTTPProvider calls an Ollama-style /api/generate endpoint. Failures
// surface as errors; the engine's failure policy decides what happens
// next.
type HTTPProvider struct {
	config HTTPProviderConfig
	client *http.Client
	logger *zap.Logger
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response  string `json:"response"`
	EvalCount int    `json:"eval_count"`
}

// NewHTTPProvider creates an HTTP generation provider.
func NewHTTPProvider(config HTTPProviderConfig) *HTTPProvider {
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: config.Logger,
	}
}

func (p *HTTPProvider) Name() string  { return "http" }
func (p *HTTPProvider) Model() string { return p.config.Model }

func (p *HTTPProvider) Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error) {
	model := params.Model
	if model == "" {
		model = p.config.Model
	}
	options := map[string]any{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}

	payload, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.Host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("generation backend returned error",
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("generation backend status %d", resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}
	return &Generation{
		Text:    decoded.Response,
		Tokens:  decoded.EvalCount,
		Latency: time.Since(start),
	}, nil
}
