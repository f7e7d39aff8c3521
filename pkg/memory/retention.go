// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"strconv"
	"strings"
	"time"
)

// RetentionPolicy is injected at store construction; there are no process
// globals. It decides TTLs, access boosting, and the sweep cadence.
type RetentionPolicy struct {
	// Enabled toggles decay entirely. When false, entries never expire.
	Enabled bool

	ShortTermHours float64
	LongTermHours  float64

	// ImportanceRules maps a rule name to a TTL multiplier. A rule
	// matches when the entry's importance metadata equals the rule name
	// or the metadata carries the rule name as a key. Effective TTL is
	// the base hours times the product of all matched multipliers.
	ImportanceRules map[string]float64

	// AccessBoostFactor multiplies the remaining TTL when an entry is
	// returned by a search, capped by AccessBoostCap. Zero disables
	// boosting.
	AccessBoostFactor float64
	AccessBoostCap    time.Duration

	// CheckInterval is the sweeper cadence.
	CheckInterval time.Duration

	// MaxSweepDuration bounds one sweep so the sweeper never starves
	// readers and writers.
	MaxSweepDuration time.Duration

	// DecayHalfLife parameterizes temporal scoring.
	DecayHalfLife time.Duration

	// LongTermThreshold is the classification score above which an
	// unpinned entry becomes long_term. Zero selects 0.6.
	LongTermThreshold float64
}

// DefaultRetentionPolicy mirrors the runtime defaults.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		Enabled:        true,
		ShortTermHours: 2,
		LongTermHours:  168,
		ImportanceRules: map[string]float64{
			"critical": 3.0,
			"high":     2.0,
			"low":      0.5,
		},
		AccessBoostFactor: 1.2,
		AccessBoostCap:    30 * 24 * time.Hour,
		CheckInterval:     30 * time.Minute,
		MaxSweepDuration:  30 * time.Second,
		DecayHalfLife:     24 * time.Hour,
		LongTermThreshold: 0.6,
	}
}

// TTL computes the effective lifetime for an entry.
func (p RetentionPolicy) TTL(e *Entry) time.Duration {
	if !p.Enabled {
		return 0
	}
	base := p.ShortTermHours
	if e.Retention.ShortTerm > 0 {
		base = e.Retention.ShortTerm
	}
	if e.Type == LongTerm {
		base = p.LongTermHours
		if e.Retention.LongTerm > 0 {
			base = e.Retention.LongTerm
		}
	}
	mult := 1.0
	for rule, factor := range p.ImportanceRules {
		if e.Metadata["importance"] == rule {
			mult *= factor
			continue
		}
		if _, ok := e.Metadata[rule]; ok {
			mult *= factor
		}
	}
	return time.Duration(base * mult * float64(time.Hour))
}

// Boost extends the deadline after a read access. Returns the new
// deadline, clamped to the cap from now.
func (p RetentionPolicy) Boost(now, expiresAt time.Time) time.Time {
	if !p.Enabled || p.AccessBoostFactor <= 1 || expiresAt.IsZero() {
		return expiresAt
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return expiresAt
	}
	boosted := time.Duration(float64(remaining) * p.AccessBoostFactor)
	if p.AccessBoostCap > 0 && boosted > p.AccessBoostCap {
		boosted = p.AccessBoostCap
	}
	return now.Add(boosted)
}

// classificationKeywords lower a candidate's long-term score: routine
// chatter and debug noise should decay quickly.
var classificationKeywords = []string{"routine", "debug", "error", "trace", "heartbeat"}

// Classify computes the long-term score in [0,1] for an entry whose
// writer did not pin a memory type. Scores above the policy's
// LongTermThreshold classify long_term.
func (p RetentionPolicy) Classify(e *Entry) (MemoryType, float64) {
	score := 0.0

	// Longer, structured content is worth keeping.
	switch n := len(e.Content); {
	case n > 500:
		score += 0.3
	case n > 100:
		score += 0.2
	case n > 20:
		score += 0.1
	}
	if strings.ContainsAny(e.Content, "\n{[") {
		score += 0.1
	}

	if conf, err := strconv.ParseFloat(e.Metadata["confidence"], 64); err == nil {
		score += 0.3 * clamp01(conf)
	}

	switch e.Metadata["category"] {
	case "user_correction", "verified_fact":
		score += 0.4
	}

	lower := strings.ToLower(e.Content)
	for _, kw := range classificationKeywords {
		if strings.Contains(lower, kw) {
			score -= 0.2
			break
		}
	}

	score = clamp01(score)
	threshold := p.LongTermThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	if score > threshold {
		return LongTerm, score
	}
	return ShortTerm, score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
