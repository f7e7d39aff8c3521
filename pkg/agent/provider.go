// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"time"
)

// GenerateParams tunes one LLM call. Model and provider identifiers are
// passed through opaquely.
type GenerateParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generation is one LLM completion with its cost accounting. Providers
// that cannot report token usage leave Tokens zero; the llm agent then
// counts locally.
type Generation struct {
	Text    string
	Tokens  int
	Latency time.Duration
	CostUSD float64
}

// LLMProvider is the pluggable text-generation backend behind llm and
// classifier agents.
type LLMProvider interface {
	// Generate produces one completion for the prompt.
	Generate(ctx context.Context, prompt string, params GenerateParams) (*Generation, error)

	// Name returns the provider name.
	Name() string

	// Model returns the default model identifier.
	Model() string
}

// SearchProvider is the pluggable retrieval backend behind search agents.
type SearchProvider interface {
	// Search returns result snippets for the query.
	Search(ctx context.Context, query string, limit int) ([]string, error)

	// Name returns the provider name.
	Name() string
}
