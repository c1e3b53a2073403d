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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lexiqa/ragcore/ai"
	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

const (
	// DefaultLimit is the result count when Options.Limit is zero.
	DefaultLimit = 10

	// DefaultDiversityCap is the maximum number of chunks one document
	// may contribute to a result set.
	DefaultDiversityCap = 3

	candidateMultiplier = 4
	minCandidatePool    = 50

	denseWeight   = 0.7
	lexicalWeight = 0.3
	rrfK          = 60

	citationBoost      = 1.8
	legislationBoost   = 1.15
	jurisprudenceBoost = 1.05
	recencyBoost       = 1.05
	maxCumulativeBoost = 2.0

	recencyWindow = 2 * 365 * 24 * time.Hour

	snippetRunes = 240
)

// Fusion selects how dense and lexical rankings are combined.
type Fusion int

const (
	// FusionWeighted combines cosine and lexical scores by weighted sum.
	FusionWeighted Fusion = iota

	// FusionRRF combines by reciprocal-rank fusion, normalized to [0, 1].
	FusionRRF
)

var (
	queryArticleAr = regexp.MustCompile(`(?:الفصل|فصل)\s+(\d+(?:\s+مكرر)?)`)
	queryArticleFr = regexp.MustCompile(`(?i)\b(?:article|art\.?)\s+(\d+(?:\s*(?:bis|ter|quater))?)`)
)

// Embedder is the slice of the embedding service the engine needs.
type Embedder interface {
	Embed(ctx context.Context, text string, opts ai.Options) (*ai.Result, error)
}

// Options configures a single search.
type Options struct {
	// Limit caps the result list. Defaults to DefaultLimit.
	Limit int

	// Threshold drops candidates scoring below it. When zero the gate's
	// adapted floor is used instead.
	Threshold float32

	// Language overrides detection.
	Language core.Language

	// Operation names the embedding fallback chain, default "search".
	Operation string

	// Provider pins the embedding provider, bypassing the chain.
	Provider string
}

// Response is the outcome of a search. Abstention is not an error: the
// engine returns a Response with Abstained set and an empty hit list.
type Response struct {
	Hits                  []*core.SearchHit
	Abstained             bool
	AbstainReason         string
	Degraded              bool
	DroppedBelowThreshold int
	Provider              string
	Language              core.Language
}

// Engine performs hybrid dense plus lexical retrieval over active,
// approved documents.
type Engine struct {
	documents  storage.DocumentRepository
	chunks     storage.ChunkRepository
	embedder   Embedder
	lexical    *Index
	translator Translator
	gate       *Gate
	fusion     Fusion
	diversity  int
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithLexicalIndex attaches the lexical index. Without one the engine
// runs dense-only.
func WithLexicalIndex(index *Index) Option {
	return func(e *Engine) error {
		e.lexical = index
		return nil
	}
}

// WithTranslator enables translated query variants for Arabic and mixed
// queries.
func WithTranslator(translator Translator) Option {
	return func(e *Engine) error {
		e.translator = translator
		return nil
	}
}

// WithGate replaces the default quality gate.
func WithGate(gate *Gate) Option {
	return func(e *Engine) error {
		if gate == nil {
			gate = NewGate(DefaultGateConfig())
		}
		e.gate = gate
		return nil
	}
}

// WithFusion selects the fusion strategy. Default is FusionWeighted.
func WithFusion(fusion Fusion) Option {
	return func(e *Engine) error {
		e.fusion = fusion
		return nil
	}
}

// WithDiversityCap limits how many chunks a single document may
// contribute. Zero disables the cap.
func WithDiversityCap(n int) Option {
	return func(e *Engine) error {
		e.diversity = n
		return nil
	}
}

// NewEngine creates a search engine.
func NewEngine(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder Embedder,
	opts ...Option,
) (*Engine, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		gate:      NewGate(DefaultGateConfig()),
		diversity: DefaultDiversityCap,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Search runs a hybrid search for the query.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	return e.SearchWithMonitor(ctx, query, opts, nil)
}

// SearchWithMonitor runs a hybrid search with monitoring. The monitor
// receives callbacks at each stage of the search process.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, opts Options, monitor Monitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query = strings.TrimSpace(query)
	lang := opts.Language
	if lang == "" {
		lang = DetectLanguage(query)
	}
	monitor.Start(query, lang)

	if query == "" {
		resp := &Response{Hits: []*core.SearchHit{}, Abstained: true, AbstainReason: ReasonEmptyQuery, Language: lang}
		monitor.Abstained(resp.AbstainReason)
		monitor.Finish(nil)
		return resp, nil
	}

	variants := e.queryVariants(ctx, query, lang)
	monitor.QueryVariants(variants)

	pool := limit * candidateMultiplier
	if pool < minCandidatePool {
		pool = minCandidatePool
	}

	var (
		dense    = make(map[core.ID]float32)
		denseErr error
		provider string
		degraded bool
		lexical  []LexicalMatch
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, variant := range variants {
			result, err := e.embedder.Embed(gctx, variant, ai.Options{
				Operation:      e.operation(opts),
				Provider:       opts.Provider,
				AcceptDegraded: true,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				denseErr = errors.Join(denseErr, err)
				continue
			}
			if result.Degraded {
				degraded = true
			}
			provider = result.Provider

			matches, err := e.chunks.FindSimilar(gctx, result.Provider, result.Vector, 0, pool)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				denseErr = errors.Join(denseErr, err)
				continue
			}
			// A chunk reached through several variants keeps its best score.
			for _, m := range matches {
				if m.Score > dense[m.ChunkId] {
					dense[m.ChunkId] = m.Score
				}
			}
		}
		return nil
	})
	g.Go(func() error {
		if e.lexical != nil {
			lexical = e.lexical.Search(query, pool)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lexicalOnly := false
	if len(dense) == 0 && denseErr != nil {
		monitor.DenseUnavailable(denseErr)
		if e.lexical == nil {
			return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, denseErr)
		}
		e.logger.Warn("dense path unavailable, serving lexical-only results", "err", denseErr)
		lexicalOnly = true
		degraded = true
	}
	monitor.AfterDenseSearch(provider, denseMatches(dense))
	monitor.AfterLexicalSearch(lexical)

	fused := e.fuse(dense, lexical)
	monitor.AfterFusion(len(fused))

	hits, err := e.hydrate(ctx, query, provider, fused, dense, lexical, monitor)
	if err != nil {
		return nil, err
	}

	sortHits(hits)

	meta := QueryMeta{Language: lang, QueryWords: len(strings.Fields(query)), LexicalOnly: lexicalOnly}

	floor := opts.Threshold
	if floor <= 0 {
		floor = e.gate.Floor(meta, countSources(hits))
	}
	hits, dropped := dropBelow(hits, floor)
	monitor.DroppedBelowThreshold(dropped)

	if e.diversity > 0 {
		hits = capPerDocument(hits, e.diversity)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	resp := &Response{
		Hits:                  hits,
		Degraded:              degraded,
		DroppedBelowThreshold: dropped,
		Provider:              provider,
		Language:              lang,
	}

	decision := e.gate.Evaluate(hits, meta)
	if !decision.Allow {
		resp.Abstained = true
		resp.AbstainReason = decision.Reason
		resp.Hits = []*core.SearchHit{}
		monitor.Abstained(decision.Reason)
	}

	monitor.Finish(resp.Hits)
	return resp, nil
}

func (e *Engine) operation(opts Options) string {
	if opts.Operation != "" {
		return opts.Operation
	}
	return "search"
}

// queryVariants returns the original query, plus a French translation for
// Arabic and mixed queries when a translator is configured. Translation
// failure degrades to the original query alone.
func (e *Engine) queryVariants(ctx context.Context, query string, lang core.Language) []string {
	variants := []string{query}
	if e.translator == nil || lang == core.LanguageFrench {
		return variants
	}
	translated, err := e.translator.Translate(ctx, query, core.LanguageFrench)
	if err != nil {
		e.logger.Warn("query translation failed", "err", err)
		return variants
	}
	translated = strings.TrimSpace(translated)
	if translated != "" && translated != query {
		variants = append(variants, translated)
	}
	return variants
}

// fuse combines the dense and lexical rankings into one fused score per
// chunk id.
func (e *Engine) fuse(dense map[core.ID]float32, lexical []LexicalMatch) map[core.ID]float32 {
	if e.fusion == FusionRRF {
		return fuseRRF(dense, lexical)
	}

	fused := make(map[core.ID]float32, len(dense)+len(lexical))
	for id, score := range dense {
		if score < 0 {
			score = 0
		}
		fused[id] = denseWeight * score
	}
	for _, m := range lexical {
		fused[m.ChunkId] += lexicalWeight * m.Score
	}
	return fused
}

// fuseRRF sums reciprocal ranks across both lists, then normalizes by the
// best score so thresholds stay comparable with weighted fusion.
func fuseRRF(dense map[core.ID]float32, lexical []LexicalMatch) map[core.ID]float32 {
	fused := make(map[core.ID]float32, len(dense)+len(lexical))

	ranked := denseMatches(dense)
	for rank, m := range ranked {
		fused[m.ChunkId] += 1.0 / float32(rrfK+rank+1)
	}
	for rank, m := range lexical {
		fused[m.ChunkId] += 1.0 / float32(rrfK+rank+1)
	}

	var best float32
	for _, s := range fused {
		if s > best {
			best = s
		}
	}
	if best > 0 {
		for id := range fused {
			fused[id] /= best
		}
	}
	return fused
}

// hydrate loads chunks and documents for fused candidates, applies the
// citation, authority and recency boosts, and drops anything that is no
// longer active and approved.
func (e *Engine) hydrate(
	ctx context.Context,
	query string,
	provider string,
	fused map[core.ID]float32,
	dense map[core.ID]float32,
	lexical []LexicalMatch,
	monitor Monitor,
) ([]*core.SearchHit, error) {
	lexScores := make(map[core.ID]float32, len(lexical))
	for _, m := range lexical {
		lexScores[m.ChunkId] = m.Score
	}

	queryArticles := extractQueryArticles(query)
	now := time.Now()

	docs := make(map[core.ID]*core.Document)
	hits := make([]*core.SearchHit, 0, len(fused))
	for chunkId, score := range fused {
		chunk, err := e.chunks.GetChunk(ctx, chunkId)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}

		doc, ok := docs[chunk.DocumentId]
		if !ok {
			doc, err = e.documents.GetDocument(ctx, chunk.DocumentId)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			docs[chunk.DocumentId] = doc
		}
		if !doc.Active || !doc.Approved {
			continue
		}

		hit := &core.SearchHit{
			ChunkId:       chunk.Id,
			DocumentId:    doc.Id,
			DocumentTitle: doc.Title,
			CitationKey:   doc.CitationKey,
			Category:      doc.Category,
			Snippet:       snippet(chunk.Content),
			ArticleNumber: chunk.ArticleNumber,
			Similarity:    dense[chunk.Id],
			Lexical:       lexScores[chunk.Id],
			Provider:      provider,
			UpdatedAt:     doc.UpdatedAt,
		}

		boost := float32(1.0)
		if articleMatches(queryArticles, chunk.ArticleNumber) {
			boost *= citationBoost
			hit.CitationMatch = true
			monitor.CitationBoost(chunk.Id, chunk.ArticleNumber)
		}
		switch doc.Category {
		case core.CategoryLegislation:
			boost *= legislationBoost
		case core.CategoryJurisprudence:
			boost *= jurisprudenceBoost
		}
		if now.Sub(doc.UpdatedAt) < recencyWindow {
			boost *= recencyBoost
		}
		if boost > maxCumulativeBoost {
			boost = maxCumulativeBoost
		}
		hit.Score = score * boost

		hits = append(hits, hit)
	}
	return hits, nil
}

// sortHits orders by score descending. Identical scores tie-break on
// citation match, then document recency.
func sortHits(hits []*core.SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].CitationMatch != hits[j].CitationMatch {
			return hits[i].CitationMatch
		}
		return hits[i].UpdatedAt.After(hits[j].UpdatedAt)
	})
}

func dropBelow(hits []*core.SearchHit, floor float32) ([]*core.SearchHit, int) {
	kept := hits[:0]
	dropped := 0
	for _, h := range hits {
		if h.Score < floor {
			dropped++
			continue
		}
		kept = append(kept, h)
	}
	return kept, dropped
}

func capPerDocument(hits []*core.SearchHit, max int) []*core.SearchHit {
	perDoc := make(map[core.ID]int)
	kept := hits[:0]
	for _, h := range hits {
		if perDoc[h.DocumentId] >= max {
			continue
		}
		perDoc[h.DocumentId]++
		kept = append(kept, h)
	}
	return kept
}

// denseMatches converts the dense score map into a slice sorted by score
// descending, with ids as a stable tie-break.
func denseMatches(dense map[core.ID]float32) []*core.SimilarityMatch {
	matches := make([]*core.SimilarityMatch, 0, len(dense))
	for id, score := range dense {
		matches = append(matches, &core.SimilarityMatch{ChunkId: id, Score: score})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkId < matches[j].ChunkId
	})
	return matches
}

// extractQueryArticles pulls article numbers cited in the query, in either
// Arabic or French form.
func extractQueryArticles(query string) map[string]struct{} {
	articles := make(map[string]struct{})
	for _, m := range queryArticleAr.FindAllStringSubmatch(query, -1) {
		articles[normalizeArticle(m[1])] = struct{}{}
	}
	for _, m := range queryArticleFr.FindAllStringSubmatch(query, -1) {
		articles[normalizeArticle(m[1])] = struct{}{}
	}
	return articles
}

func articleMatches(queryArticles map[string]struct{}, article string) bool {
	if article == "" || len(queryArticles) == 0 {
		return false
	}
	_, ok := queryArticles[normalizeArticle(article)]
	return ok
}

func normalizeArticle(article string) string {
	return strings.ToLower(strings.Join(strings.Fields(article), " "))
}

// snippet truncates chunk content on a rune boundary for display.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "…"
}
