// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/orka-ai/orka/pkg/types"
)

// Memory is a ring-buffered in-process archive. Oldest runs are evicted
// FIFO once MaxRuns is reached; a run's events go with it.
type Memory struct {
	mu      sync.RWMutex
	maxRuns int
	order   []string
	reports map[string]*types.RunReport
	events  map[string][]*Event
	closed  bool
}

// NewMemory creates an in-memory archive holding at most maxRuns runs.
func NewMemory(maxRuns int) *Memory {
	if maxRuns <= 0 {
		maxRuns = 1000
	}
	return &Memory{
		maxRuns: maxRuns,
		reports: make(map[string]*types.RunReport),
		events:  make(map[string][]*Event),
	}
}

func (m *Memory) SaveReport(ctx context.Context, report *types.RunReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if report.TraceID == "" {
		return fmt.Errorf("report trace id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("archive is closed")
	}

	if _, exists := m.reports[report.TraceID]; !exists {
		m.order = append(m.order, report.TraceID)
	}
	m.reports[report.TraceID] = report

	for len(m.order) > m.maxRuns {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.reports, oldest)
		delete(m.events, oldest)
	}
	return nil
}

func (m *Memory) SaveEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.TraceID == "" {
		return fmt.Errorf("event trace id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("archive is closed")
	}
	m.events[event.TraceID] = append(m.events[event.TraceID], event)
	return nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]*types.RunReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("archive is closed")
	}

	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]*types.RunReport, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.reports[m.order[i]])
	}
	return out, nil
}

func (m *Memory) Events(ctx context.Context, traceID string) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("archive is closed")
	}
	return append([]*Event(nil), m.events[traceID]...), nil
}

func (m *Memory) Summarize(ctx context.Context) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("archive is closed")
	}

	summary := &Summary{}
	var totalDuration int64
	for _, id := range m.order {
		report := m.reports[id]
		summary.TotalRuns++
		switch report.Status {
		case types.StatusSuccess:
			summary.Succeeded++
		case types.StatusPartial:
			summary.Partial++
		default:
			summary.Failed++
		}
		summary.TotalTokens += int64(report.Totals.Tokens)
		summary.TotalCostUSD += report.Totals.CostUSD
		totalDuration += report.DurationMS
		if report.CompletedAt.After(summary.LastRunAt) {
			summary.LastRunAt = report.CompletedAt
		}
	}
	if summary.TotalRuns > 0 {
		summary.AvgDurationMS = float64(totalDuration) / float64(summary.TotalRuns)
	}
	return summary, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Archive = (*Memory)(nil)
