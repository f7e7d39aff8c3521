// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package memory

import (
	"fmt"
	"time"
)

// ReadDefaults are the search-side parameters a preset resolves to.
type ReadDefaults struct {
	Limit               int
	SimilarityThreshold float64
	EnableHybrid        bool
	VectorWeight        float64
	TemporalWeight      float64
	ContextWeight       float64
	KeywordWeight       float64
	MaxSearchTime       time.Duration
}

// WriteDefaults are the classification and retention parameters a preset
// resolves to.
type WriteDefaults struct {
	// PinnedType forces the memory type; empty means classify.
	PinnedType MemoryType

	ShortTermHours float64
	LongTermHours  float64

	// Vectorize controls whether the store embeds the content on write.
	Vectorize bool
}

// Preset is a named bundle of retention and search defaults. The same
// preset resolves differently for read and write operations.
type Preset struct {
	Name  string
	Read  ReadDefaults
	Write WriteDefaults
}

// SearchParams projects the preset's read side into concrete parameters.
func (p Preset) SearchParams(namespace string) SearchParams {
	return SearchParams{
		Namespace:           namespace,
		Limit:               p.Read.Limit,
		SimilarityThreshold: p.Read.SimilarityThreshold,
		CategoryFilter:      CategoryStored,
		EnableHybrid:        p.Read.EnableHybrid,
		VectorWeight:        p.Read.VectorWeight,
		TemporalWeight:      p.Read.TemporalWeight,
		ContextWeight:       p.Read.ContextWeight,
		KeywordWeight:       p.Read.KeywordWeight,
		MaxSearchTime:       p.Read.MaxSearchTime,
	}
}

// presets follow the cognitive-memory taxonomy: fast-decaying sensory
// buffers through long-lived semantic and procedural knowledge.
var presets = map[string]Preset{
	"sensory": {
		Name: "sensory",
		Read: ReadDefaults{Limit: 5, SimilarityThreshold: 0.4, EnableHybrid: false,
			VectorWeight: 1, MaxSearchTime: 500 * time.Millisecond},
		Write: WriteDefaults{PinnedType: ShortTerm, ShortTermHours: 0.25, Vectorize: false},
	},
	"working": {
		Name: "working",
		Read: ReadDefaults{Limit: 8, SimilarityThreshold: 0.5, EnableHybrid: true,
			VectorWeight: 0.5, TemporalWeight: 0.3, KeywordWeight: 0.2,
			MaxSearchTime: time.Second},
		Write: WriteDefaults{PinnedType: ShortTerm, ShortTermHours: 4, Vectorize: true},
	},
	"episodic": {
		Name: "episodic",
		Read: ReadDefaults{Limit: 10, SimilarityThreshold: 0.55, EnableHybrid: true,
			VectorWeight: 0.4, TemporalWeight: 0.3, ContextWeight: 0.2, KeywordWeight: 0.1,
			MaxSearchTime: 2 * time.Second},
		Write: WriteDefaults{ShortTermHours: 24, LongTermHours: 168, Vectorize: true},
	},
	"semantic": {
		Name: "semantic",
		Read: ReadDefaults{Limit: 10, SimilarityThreshold: 0.6, EnableHybrid: true,
			VectorWeight: 0.6, ContextWeight: 0.2, KeywordWeight: 0.2,
			MaxSearchTime: 2 * time.Second},
		Write: WriteDefaults{PinnedType: LongTerm, LongTermHours: 720, Vectorize: true},
	},
	"procedural": {
		Name: "procedural",
		Read: ReadDefaults{Limit: 5, SimilarityThreshold: 0.65, EnableHybrid: true,
			VectorWeight: 0.7, KeywordWeight: 0.3, MaxSearchTime: 2 * time.Second},
		Write: WriteDefaults{PinnedType: LongTerm, LongTermHours: 2160, Vectorize: true},
	},
	"meta": {
		Name: "meta",
		Read: ReadDefaults{Limit: 20, SimilarityThreshold: 0.3, EnableHybrid: true,
			VectorWeight: 0.3, TemporalWeight: 0.5, KeywordWeight: 0.2,
			MaxSearchTime: time.Second},
		Write: WriteDefaults{PinnedType: ShortTerm, ShortTermHours: 48, Vectorize: false},
	},
}

// PresetByName resolves a preset. Unknown names list the valid choices.
func PresetByName(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown memory preset %q (valid: sensory, working, episodic, semantic, procedural, meta)", name)
	}
	return p, nil
}

// DefaultPreset is used when a workflow names none.
func DefaultPreset() Preset { return presets["episodic"] }
