// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package search

import "github.com/lexiqa/ragcore/core"

// Abstention reasons reported in Decision.Reason and Response.AbstainReason.
const (
	ReasonEmptyQuery = "empty query"
	ReasonNoResults  = "no results"
	ReasonBelowFloor = "top score below floor"
	ReasonFlatScores = "flat score distribution"
)

// GateConfig tunes the abstention policy. Floors are calibrated per
// language because Arabic embeddings score systematically lower than
// French ones on the same corpus.
type GateConfig struct {
	// ArabicFloor and FrenchFloor apply when the dense path contributed.
	ArabicFloor float32
	FrenchFloor float32

	// ArabicLexicalFloor and FrenchLexicalFloor apply when results came
	// from the lexical path alone.
	ArabicLexicalFloor float32
	FrenchLexicalFloor float32

	// ShortQueryFactor shades the floor down for queries of at most
	// three words, which legitimately score lower.
	ShortQueryFactor float32

	// FewSourcesFactor shades the floor down when at most two distinct
	// documents are represented in the results.
	FewSourcesFactor float32

	// MinFloor and MaxFloor clamp the adapted floor.
	MinFloor float32
	MaxFloor float32

	// FlatEpsilon and FlatTopK define the flat-distribution check: when
	// the top FlatTopK scores span less than FlatEpsilon the engine
	// could not discriminate between candidates.
	FlatEpsilon float32
	FlatTopK    int
}

// DefaultGateConfig returns the calibrated policy.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ArabicFloor:        0.18,
		FrenchFloor:        0.25,
		ArabicLexicalFloor: 0.22,
		FrenchLexicalFloor: 0.30,
		ShortQueryFactor:   0.85,
		FewSourcesFactor:   0.90,
		MinFloor:           0.12,
		MaxFloor:           0.30,
		FlatEpsilon:        0.02,
		FlatTopK:           5,
	}
}

// QueryMeta carries the query-side signals the gate adapts to.
type QueryMeta struct {
	Language    core.Language
	QueryWords  int
	LexicalOnly bool
}

// Decision is the gate's verdict on a result set.
type Decision struct {
	Allow  bool
	Reason string
	Floor  float32
}

// Gate implements the abstention policy. Abstention is a first-class
// outcome, distinct from a failed search.
type Gate struct {
	cfg GateConfig
}

// NewGate creates a gate. Zero-value fields in cfg fall back to the
// defaults.
func NewGate(cfg GateConfig) *Gate {
	def := DefaultGateConfig()
	if cfg.ArabicFloor == 0 {
		cfg.ArabicFloor = def.ArabicFloor
	}
	if cfg.FrenchFloor == 0 {
		cfg.FrenchFloor = def.FrenchFloor
	}
	if cfg.ArabicLexicalFloor == 0 {
		cfg.ArabicLexicalFloor = def.ArabicLexicalFloor
	}
	if cfg.FrenchLexicalFloor == 0 {
		cfg.FrenchLexicalFloor = def.FrenchLexicalFloor
	}
	if cfg.ShortQueryFactor == 0 {
		cfg.ShortQueryFactor = def.ShortQueryFactor
	}
	if cfg.FewSourcesFactor == 0 {
		cfg.FewSourcesFactor = def.FewSourcesFactor
	}
	if cfg.MinFloor == 0 {
		cfg.MinFloor = def.MinFloor
	}
	if cfg.MaxFloor == 0 {
		cfg.MaxFloor = def.MaxFloor
	}
	if cfg.FlatEpsilon == 0 {
		cfg.FlatEpsilon = def.FlatEpsilon
	}
	if cfg.FlatTopK == 0 {
		cfg.FlatTopK = def.FlatTopK
	}
	return &Gate{cfg: cfg}
}

// Floor computes the adapted score floor for a query. Mixed-language
// queries use the Arabic floor, the lower of the two.
func (g *Gate) Floor(meta QueryMeta, sources int) float32 {
	var floor float32
	switch meta.Language {
	case core.LanguageFrench:
		floor = g.cfg.FrenchFloor
		if meta.LexicalOnly {
			floor = g.cfg.FrenchLexicalFloor
		}
	default:
		floor = g.cfg.ArabicFloor
		if meta.LexicalOnly {
			floor = g.cfg.ArabicLexicalFloor
		}
	}
	if meta.QueryWords > 0 && meta.QueryWords <= 3 {
		floor *= g.cfg.ShortQueryFactor
	}
	if sources > 0 && sources <= 2 {
		floor *= g.cfg.FewSourcesFactor
	}
	if floor < g.cfg.MinFloor {
		floor = g.cfg.MinFloor
	}
	if floor > g.cfg.MaxFloor {
		floor = g.cfg.MaxFloor
	}
	return floor
}

// Evaluate decides whether a ranked result set is trustworthy enough to
// answer from.
func (g *Gate) Evaluate(hits []*core.SearchHit, meta QueryMeta) Decision {
	if len(hits) == 0 {
		return Decision{Allow: false, Reason: ReasonNoResults}
	}

	floor := g.Floor(meta, countSources(hits))
	if hits[0].Score < floor {
		return Decision{Allow: false, Reason: ReasonBelowFloor, Floor: floor}
	}

	if g.flat(hits) {
		return Decision{Allow: false, Reason: ReasonFlatScores, Floor: floor}
	}

	return Decision{Allow: true, Floor: floor}
}

// flat reports whether the top-k scores are indistinguishable. A single
// hit, or two, is never flat.
func (g *Gate) flat(hits []*core.SearchHit) bool {
	k := g.cfg.FlatTopK
	if len(hits) < k {
		k = len(hits)
	}
	if k < 3 {
		return false
	}
	spread := hits[0].Score - hits[k-1].Score
	return spread < g.cfg.FlatEpsilon
}

func countSources(hits []*core.SearchHit) int {
	seen := make(map[core.ID]struct{}, len(hits))
	for _, h := range hits {
		seen[h.DocumentId] = struct{}{}
	}
	return len(seen)
}
