// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package audit archives run reports and step events for post-hoc
// inspection and the system status surface.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/orka-ai/orka/pkg/types"
)

// Event is one step-level audit record emitted during a run.
type Event struct {
	TraceID   string    `json:"trace_id"`
	NodeID    string    `json:"node_id"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Tokens    int       `json:"tokens"`
	At        time.Time `json:"at"`
}

// Summary aggregates the archive for system status.
type Summary struct {
	TotalRuns     int       `json:"total_runs"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	Partial       int       `json:"partial"`
	TotalTokens   int64     `json:"total_tokens"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
	AvgDurationMS float64   `json:"avg_duration_ms"`
	LastRunAt     time.Time `json:"last_run_at"`
}

// Archive persists run reports and step events. Implementations must be
// safe for concurrent use.
type Archive interface {
	SaveReport(ctx context.Context, report *types.RunReport) error
	SaveEvent(ctx context.Context, event *Event) error
	Recent(ctx context.Context, limit int) ([]*types.RunReport, error)
	Events(ctx context.Context, traceID string) ([]*Event, error)
	Summarize(ctx context.Context) (*Summary, error)
	Close() error
}

// Config selects and configures an archive backend.
type Config struct {
	// Type is "memory" or "sqlite".
	Type string

	// Path is the SQLite database file, required for the sqlite backend.
	Path string

	// MaxRuns bounds the memory backend's ring buffer. Default 1000.
	MaxRuns int
}

// DefaultConfig returns the in-memory archive defaults.
func DefaultConfig() Config {
	return Config{Type: "memory", MaxRuns: 1000}
}

// New creates an archive backend from config.
func New(config Config) (Archive, error) {
	switch config.Type {
	case "", "memory":
		return NewMemory(config.MaxRuns), nil
	case "sqlite":
		if config.Path == "" {
			return nil, fmt.Errorf("sqlite archive requires a database path")
		}
		return NewSQLite(config.Path)
	default:
		return nil, fmt.Errorf("unknown archive type %q (supported: memory, sqlite)", config.Type)
	}
}
