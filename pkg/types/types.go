// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types defines the shared data model of the OrKa runtime: the
// uniform agent output envelope, the error taxonomy, per-run metrics, and
// the structured run report surfaced to callers.
package types

import (
	"fmt"
	"time"
)

// Status describes the outcome of a node execution or a whole run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"

	// StatusPartial is produced by loop nodes that hit their iteration cap
	// without meeting the score threshold.
	StatusPartial Status = "partial"
)

// ErrorKind classifies failures across the runtime.
type ErrorKind string

const (
	ErrKindGraphInvalid     ErrorKind = "GraphInvalid"
	ErrKindTemplate         ErrorKind = "TemplateError"
	ErrKindAgentFailed      ErrorKind = "AgentFailed"
	ErrKindTimeout          ErrorKind = "Timeout"
	ErrKindJoinTimeout      ErrorKind = "JoinTimeout"
	ErrKindRouteUnknown     ErrorKind = "RouteUnknown"
	ErrKindNoViablePath     ErrorKind = "NoViablePath"
	ErrKindStoreUnavailable ErrorKind = "StoreUnavailable"
	ErrKindStoreDegraded    ErrorKind = "StoreDegraded"
	ErrKindStoreWriteFailed ErrorKind = "StoreWriteFailed"
	ErrKindCancelled        ErrorKind = "Cancelled"
)

// ErrorInfo is the error descriptor carried inside an AgentOutput.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface so ErrorInfo can flow through
// standard error handling.
func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewErrorInfo builds an ErrorInfo from an error value.
func NewErrorInfo(kind ErrorKind, err error) *ErrorInfo {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ErrorInfo{Kind: kind, Message: msg}
}

// Metrics aggregates execution cost for a node or a whole run.
type Metrics struct {
	Tokens    int     `json:"tokens"`
	LatencyMS int64   `json:"latency_ms"`
	Retries   int     `json:"retries"`
	CostUSD   float64 `json:"cost_usd"`
}

// Add accumulates another metrics sample into m.
func (m *Metrics) Add(other Metrics) {
	m.Tokens += other.Tokens
	m.LatencyMS += other.LatencyMS
	m.Retries += other.Retries
	m.CostUSD += other.CostUSD
}

// Trace records how a node arrived at its result.
type Trace struct {
	Prompt     string                  `json:"prompt,omitempty"`
	Model      string                  `json:"model,omitempty"`
	SubOutputs map[string]*AgentOutput `json:"sub_outputs,omitempty"`
}

// AgentOutput is the uniform envelope produced by every node, agent and
// control-flow alike.
type AgentOutput struct {
	NodeID  string     `json:"node_id"`
	Result  any        `json:"result"`
	Status  Status     `json:"status"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Metrics Metrics    `json:"metrics"`
	Trace   *Trace     `json:"trace,omitempty"`
}

// Success builds a successful output for a node.
func Success(nodeID string, result any) *AgentOutput {
	return &AgentOutput{NodeID: nodeID, Result: result, Status: StatusSuccess}
}

// Failed builds a failed output wrapping err under the given kind.
func Failed(nodeID string, kind ErrorKind, err error) *AgentOutput {
	return &AgentOutput{
		NodeID: nodeID,
		Status: StatusFailed,
		Error:  NewErrorInfo(kind, err),
	}
}

// Skipped builds a skipped output for a node that was not executed.
func Skipped(nodeID string) *AgentOutput {
	return &AgentOutput{NodeID: nodeID, Status: StatusSkipped}
}

// ResultString renders the primary result as a string. Maps and lists are
// formatted with fmt; nil results render empty.
func (o *AgentOutput) ResultString() string {
	if o == nil || o.Result == nil {
		return ""
	}
	if s, ok := o.Result.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", o.Result)
}

// RunReport is the structured result of a run. It always materializes,
// even when the run failed, carrying whatever outputs completed.
type RunReport struct {
	TraceID     string                  `json:"trace_id"`
	WorkflowID  string                  `json:"workflow_id"`
	Status      Status                  `json:"status"`
	Outputs     map[string]*AgentOutput `json:"outputs"`
	FinalResult any                     `json:"final_result"`
	Totals      Metrics                 `json:"totals"`
	Errors      []ErrorInfo             `json:"errors,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	DurationMS  int64                   `json:"duration_ms"`
}

// Aggregate recomputes totals and the error summary from the per-node
// outputs, walking them in execution order. FinalResult is the last
// non-skipped output's result unless the caller set an explicit terminal
// result beforehand.
func (r *RunReport) Aggregate(order []string) {
	r.Totals = Metrics{}
	r.Errors = nil
	var last *AgentOutput
	for _, id := range order {
		out, ok := r.Outputs[id]
		if !ok {
			continue
		}
		r.Totals.Add(out.Metrics)
		if out.Error != nil {
			r.Errors = append(r.Errors, *out.Error)
		}
		if out.Status != StatusSkipped {
			last = out
		}
	}
	if r.FinalResult == nil && last != nil {
		r.FinalResult = last.Result
	}
}
