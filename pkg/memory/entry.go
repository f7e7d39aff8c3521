// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package memory implements the OrKa memory store: an append-only event
// log with a secondary content index supporting exact lookup, text-term
// search, cosine-similarity search over embeddings, hybrid ranking, and
// TTL-driven decay.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Category separates retrievable knowledge from observability events.
type Category string

const (
	// CategoryStored entries are retrievable by memory reader nodes.
	CategoryStored Category = "stored"

	// CategoryLog entries are engine observability records; they never
	// appear in reader search results.
	CategoryLog Category = "log"
)

// MemoryType classifies an entry for retention purposes.
type MemoryType string

const (
	ShortTerm MemoryType = "short_term"
	LongTerm  MemoryType = "long_term"
)

// Entry is the stored unit.
type Entry struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	NodeID    string            `json:"node_id"`
	TraceID   string            `json:"trace_id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Category  Category          `json:"category"`
	Type      MemoryType        `json:"memory_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`

	// NoEmbed opts the entry out of embedding on write. Presets with
	// Vectorize disabled set it.
	NoEmbed bool `json:"no_embed,omitempty"`

	// Retention overrides the policy's base TTL hours for this entry.
	Retention RetentionHours `json:"-"`

	// ExpiresAt is the decay deadline. Zero means the entry never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ContentAddress derives the deterministic id for an entry without one.
func (e *Entry) ContentAddress() string {
	sum := sha256.Sum256([]byte(e.Namespace + "\x00" + e.TraceID + "\x00" + e.NodeID + "\x00" + e.Content))
	return hex.EncodeToString(sum[:16])
}

// Validate checks the invariants a store enforces on append.
func (e *Entry) Validate() error {
	if e.Namespace == "" {
		return fmt.Errorf("entry namespace is required")
	}
	if e.Content == "" {
		return fmt.Errorf("entry content is required")
	}
	switch e.Category {
	case CategoryStored, CategoryLog:
	default:
		return fmt.Errorf("unknown category %q", e.Category)
	}
	if !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(e.CreatedAt) {
		return fmt.Errorf("expires_at must be after created_at")
	}
	return nil
}

// Expired reports whether the entry has decayed at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && e.ExpiresAt.Before(now)
}

// RetentionHours carries per-entry TTL overrides resolved from a memory
// preset. Zero values fall back to the store policy's base hours.
type RetentionHours struct {
	ShortTerm float64
	LongTerm  float64
}

// clone returns a copy detached from store-internal state so callers can
// hold results without racing the sweeper.
func (e *Entry) clone() *Entry {
	cp := *e
	if e.Embedding != nil {
		cp.Embedding = append([]float32{}, e.Embedding...)
	}
	cp.Metadata = make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}
