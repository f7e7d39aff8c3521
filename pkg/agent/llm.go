// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/orka-ai/orka/pkg/types"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// LLMConfig is the llm agent's static configuration.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// EstimatedCostUSD and EstimatedLatencyMS inform path scouting.
	EstimatedCostUSD   float64 `yaml:"estimated_cost_usd"`
	EstimatedLatencyMS int64   `yaml:"estimated_latency_ms"`
}

// LLM is the leaf agent calling a text-generation provider. The rendered
// prompt and the model used are recorded in the output trace.
type LLM struct {
	id       string
	config   LLMConfig
	provider LLMProvider
	logger   *zap.Logger
}

// NewLLM creates an llm agent bound to a provider.
func NewLLM(id string, config LLMConfig, provider LLMProvider, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{id: id, config: config, provider: provider, logger: logger}
}

// LLMFactory returns a registry factory with the provider bound.
func LLMFactory(provider LLMProvider, logger *zap.Logger) Factory {
	return func(id string, params map[string]any) (Node, error) {
		var config LLMConfig
		if err := DecodeParams(params, &config); err != nil {
			return nil, err
		}
		return NewLLM(id, config, provider, logger), nil
	}
}

func (a *LLM) ID() string   { return a.id }
func (a *LLM) Type() string { return "llm" }

func (a *LLM) Describe() Description {
	return Description{
		Type:               "llm",
		Summary:            fmt.Sprintf("text generation via %s", a.provider.Name()),
		EstimatedCostUSD:   a.config.EstimatedCostUSD,
		EstimatedLatencyMS: a.config.EstimatedLatencyMS,
	}
}

func (a *LLM) Validate() error {
	if a.provider == nil {
		return fmt.Errorf("llm agent requires a provider")
	}
	if a.config.Temperature < 0 || a.config.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0,2]", a.config.Temperature)
	}
	return nil
}

func (a *LLM) Run(ctx context.Context, _ *types.Context, prompt string) (*types.AgentOutput, error) {
	model := a.config.Model
	if model == "" {
		model = a.provider.Model()
	}

	start := time.Now()
	gen, err := a.provider.Generate(ctx, prompt, GenerateParams{
		Model:       model,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.provider.Name(), err)
	}

	tokens := gen.Tokens
	if tokens == 0 {
		tokens = countTokens(model, prompt) + countTokens(model, gen.Text)
	}
	latency := gen.Latency
	if latency == 0 {
		latency = time.Since(start)
	}

	out := types.Success(a.id, gen.Text)
	out.Metrics = types.Metrics{
		Tokens:    tokens,
		LatencyMS: latency.Milliseconds(),
		CostUSD:   gen.CostUSD,
	}
	out.Trace = &types.Trace{Prompt: prompt, Model: model}
	return out, nil
}

// countTokens counts with the model's BPE when known, falling back to the
// cl100k_base encoding. A zero count means even the fallback failed.
func countTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0
		}
	}
	return len(enc.Encode(text, nil, nil))
}
