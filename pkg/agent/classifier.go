// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orka-ai/orka/pkg/types"
)

// ClassifierConfig is the classifier agent's static configuration.
type ClassifierConfig struct {
	Labels      []string `yaml:"labels"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
}

// Classifier is an LLM constrained to a closed label set. The provider's
// free-text answer is matched against the candidates; an answer matching
// no label is a failure, never a silent default.
type Classifier struct {
	id       string
	config   ClassifierConfig
	provider LLMProvider
}

// NewClassifier creates a classifier agent bound to a provider.
func NewClassifier(id string, config ClassifierConfig, provider LLMProvider) *Classifier {
	return &Classifier{id: id, config: config, provider: provider}
}

// ClassifierFactory returns a registry factory with the provider bound.
func ClassifierFactory(provider LLMProvider) Factory {
	return func(id string, params map[string]any) (Node, error) {
		var config ClassifierConfig
		if err := DecodeParams(params, &config); err != nil {
			return nil, err
		}
		return NewClassifier(id, config, provider), nil
	}
}

func (a *Classifier) ID() string   { return a.id }
func (a *Classifier) Type() string { return "classifier" }

func (a *Classifier) Describe() Description {
	return Description{
		Type:    "classifier",
		Summary: fmt.Sprintf("classification into %d labels", len(a.config.Labels)),
	}
}

func (a *Classifier) Validate() error {
	if a.provider == nil {
		return fmt.Errorf("classifier agent requires a provider")
	}
	if len(a.config.Labels) == 0 {
		return fmt.Errorf("classifier agent requires at least one label")
	}
	return nil
}

func (a *Classifier) Run(ctx context.Context, _ *types.Context, prompt string) (*types.AgentOutput, error) {
	model := a.config.Model
	if model == "" {
		model = a.provider.Model()
	}
	constrained := fmt.Sprintf(
		"%s\n\nAnswer with exactly one of the following labels and nothing else: %s",
		prompt, strings.Join(a.config.Labels, ", "))

	start := time.Now()
	gen, err := a.provider.Generate(ctx, constrained, GenerateParams{
		Model:       model,
		Temperature: a.config.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", a.provider.Name(), err)
	}

	label, ok := matchLabel(gen.Text, a.config.Labels)
	if !ok {
		return nil, fmt.Errorf("answer %q matches no label in %v", strings.TrimSpace(gen.Text), a.config.Labels)
	}

	out := types.Success(a.id, label)
	out.Metrics = types.Metrics{
		Tokens:    gen.Tokens,
		LatencyMS: time.Since(start).Milliseconds(),
		CostUSD:   gen.CostUSD,
	}
	out.Trace = &types.Trace{Prompt: constrained, Model: model}
	return out, nil
}

// matchLabel resolves the provider's answer to a candidate label: exact
// match first, then unique containment.
func matchLabel(answer string, labels []string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	for _, l := range labels {
		if normalized == strings.ToLower(l) {
			return l, true
		}
	}
	var found string
	for _, l := range labels {
		if strings.Contains(normalized, strings.ToLower(l)) {
			if found != "" {
				return "", false
			}
			found = l
		}
	}
	return found, found != ""
}
