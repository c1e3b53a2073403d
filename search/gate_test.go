package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lexiqa/ragcore/core"
)

func TestGate_Floor(t *testing.T) {
	g := NewGate(DefaultGateConfig())

	tests := []struct {
		name    string
		meta    QueryMeta
		sources int
		want    float32
	}{
		{"arabic base", QueryMeta{Language: core.LanguageArabic, QueryWords: 5}, 5, 0.18},
		{"french base", QueryMeta{Language: core.LanguageFrench, QueryWords: 5}, 5, 0.25},
		{"mixed uses arabic floor", QueryMeta{Language: core.LanguageMixed, QueryWords: 5}, 5, 0.18},
		{"arabic lexical only", QueryMeta{Language: core.LanguageArabic, QueryWords: 5, LexicalOnly: true}, 5, 0.22},
		{"french lexical only", QueryMeta{Language: core.LanguageFrench, QueryWords: 5, LexicalOnly: true}, 5, 0.30},
		{"short query shades down", QueryMeta{Language: core.LanguageFrench, QueryWords: 3}, 5, 0.25 * 0.85},
		{"few sources shade down", QueryMeta{Language: core.LanguageFrench, QueryWords: 5}, 2, 0.25 * 0.90},
		{"both shades apply", QueryMeta{Language: core.LanguageArabic, QueryWords: 2}, 1, 0.18 * 0.85 * 0.90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, g.Floor(tt.meta, tt.sources), 1e-6)
		})
	}
}

func TestGate_FloorClamps(t *testing.T) {
	g := NewGate(GateConfig{FrenchLexicalFloor: 0.50})
	meta := QueryMeta{Language: core.LanguageFrench, QueryWords: 5, LexicalOnly: true}
	assert.InDelta(t, 0.30, g.Floor(meta, 5), 1e-6)
}

func hitsWithScores(scores ...float32) []*core.SearchHit {
	hits := make([]*core.SearchHit, len(scores))
	for i, s := range scores {
		hits[i] = &core.SearchHit{ChunkId: core.ID(i + 1), DocumentId: core.ID(i + 1), Score: s}
	}
	return hits
}

func TestGate_Evaluate(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	meta := QueryMeta{Language: core.LanguageFrench, QueryWords: 6}

	t.Run("empty result set abstains", func(t *testing.T) {
		d := g.Evaluate(nil, meta)
		assert.False(t, d.Allow)
		assert.Equal(t, ReasonNoResults, d.Reason)
	})

	t.Run("top score below floor abstains", func(t *testing.T) {
		d := g.Evaluate(hitsWithScores(0.10, 0.05), meta)
		assert.False(t, d.Allow)
		assert.Equal(t, ReasonBelowFloor, d.Reason)
	})

	t.Run("flat distribution abstains", func(t *testing.T) {
		d := g.Evaluate(hitsWithScores(0.80, 0.795, 0.79), meta)
		assert.False(t, d.Allow)
		assert.Equal(t, ReasonFlatScores, d.Reason)
	})

	t.Run("two results are never flat", func(t *testing.T) {
		d := g.Evaluate(hitsWithScores(0.80, 0.80), meta)
		assert.True(t, d.Allow)
	})

	t.Run("discriminating distribution allows", func(t *testing.T) {
		d := g.Evaluate(hitsWithScores(0.80, 0.60, 0.40, 0.20), meta)
		assert.True(t, d.Allow)
		assert.Empty(t, d.Reason)
	})
}
