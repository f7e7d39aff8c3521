// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockLLM is a deterministic provider for tests and dry runs. Responses
// are matched by prompt substring in registration order; unmatched
// prompts get the Default response. An empty script fails every call.
type MockLLM struct {
	mu        sync.Mutex
	rules     []mockRule
	Default   string
	CallCount int
}

type mockRule struct {
	substring string
	responses []string
	next      int
}

// NewMockLLM creates an empty mock provider.
func NewMockLLM() *MockLLM { return &MockLLM{} }

// Respond registers responses for prompts containing substring. Multiple
// responses are returned in sequence, the last one repeating.
func (m *MockLLM) Respond(substring string, responses ...string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{substring: substring, responses: responses})
	return m
}

func (m *MockLLM) Name() string  { return "mock" }
func (m *MockLLM) Model() string { return "mock-model" }

func (m *MockLLM) Generate(ctx context.Context, prompt string, _ GenerateParams) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	for i := range m.rules {
		r := &m.rules[i]
		if strings.Contains(prompt, r.substring) {
			idx := r.next
			if idx >= len(r.responses) {
				idx = len(r.responses) - 1
			}
			r.next++
			return &Generation{Text: r.responses[idx], Tokens: len(strings.Fields(prompt)), Latency: time.Millisecond}, nil
		}
	}
	if m.Default != "" {
		return &Generation{Text: m.Default, Tokens: len(strings.Fields(prompt)), Latency: time.Millisecond}, nil
	}
	return nil, fmt.Errorf("no scripted response for prompt %q", prompt)
}

// MockSearch is a deterministic retrieval provider for tests.
type MockSearch struct {
	Results map[string][]string
}

// NewMockSearch creates a mock search provider.
func NewMockSearch() *MockSearch {
	return &MockSearch{Results: make(map[string][]string)}
}

func (m *MockSearch) Name() string { return "mock-search" }

func (m *MockSearch) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for key, snippets := range m.Results {
		if strings.Contains(query, key) {
			if len(snippets) > limit {
				snippets = snippets[:limit]
			}
			return snippets, nil
		}
	}
	return nil, nil
}
