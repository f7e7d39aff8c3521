// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/orka-ai/orka/pkg/types"
)

// SQLite archives runs to a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the archive database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing archive schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		trace_id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		status TEXT NOT NULL,
		report_json TEXT NOT NULL,
		tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		duration_ms INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		status TEXT NOT NULL,
		kind TEXT,
		message TEXT,
		latency_ms INTEGER NOT NULL,
		tokens INTEGER NOT NULL,
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_trace_id ON events(trace_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) SaveReport(ctx context.Context, report *types.RunReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if report.TraceID == "" {
		return fmt.Errorf("report trace id cannot be empty")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	query := `
		INSERT INTO runs (
			trace_id, workflow_id, status, report_json,
			tokens, cost_usd, duration_ms, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id) DO UPDATE SET
			status = excluded.status,
			report_json = excluded.report_json,
			tokens = excluded.tokens,
			cost_usd = excluded.cost_usd,
			duration_ms = excluded.duration_ms,
			completed_at = excluded.completed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		report.TraceID, report.WorkflowID, string(report.Status), string(payload),
		report.Totals.Tokens, report.Totals.CostUSD, report.DurationMS,
		report.StartedAt.Unix(), report.CompletedAt.Unix())
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

func (s *SQLite) SaveEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.TraceID == "" {
		return fmt.Errorf("event trace id cannot be empty")
	}

	query := `
		INSERT INTO events (trace_id, node_id, status, kind, message, latency_ms, tokens, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.TraceID, event.NodeID, event.Status, event.Kind, event.Message,
		event.LatencyMS, event.Tokens, event.At.Unix())
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]*types.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_json FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent runs: %w", err)
	}
	defer rows.Close()

	var out []*types.RunReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report types.RunReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("decoding archived report: %w", err)
		}
		out = append(out, &report)
	}
	return out, rows.Err()
}

func (s *SQLite) Events(ctx context.Context, traceID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, status, kind, message, latency_ms, tokens, at
		FROM events WHERE trace_id = ? ORDER BY id
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		event := &Event{TraceID: traceID}
		var kind, message sql.NullString
		var at int64
		if err := rows.Scan(&event.NodeID, &event.Status, &kind, &message,
			&event.LatencyMS, &event.Tokens, &at); err != nil {
			return nil, err
		}
		event.Kind = kind.String
		event.Message = message.String
		event.At = time.Unix(at, 0).UTC()
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *SQLite) Summarize(ctx context.Context) (*Summary, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'partial' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tokens), 0),
			COALESCE(SUM(cost_usd), 0),
			AVG(duration_ms),
			MAX(completed_at)
		FROM runs
	`
	summary := &Summary{}
	var avgDuration sql.NullFloat64
	var lastRun sql.NullInt64
	err := s.db.QueryRowContext(ctx, query).Scan(
		&summary.TotalRuns, &summary.Succeeded, &summary.Partial,
		&summary.TotalTokens, &summary.TotalCostUSD, &avgDuration, &lastRun)
	if err != nil {
		return nil, fmt.Errorf("summarizing archive: %w", err)
	}
	summary.Failed = summary.TotalRuns - summary.Succeeded - summary.Partial
	if avgDuration.Valid {
		summary.AvgDurationMS = avgDuration.Float64
	}
	if lastRun.Valid {
		summary.LastRunAt = time.Unix(lastRun.Int64, 0).UTC()
	}
	return summary, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ Archive = (*SQLite)(nil)
