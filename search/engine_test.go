package search_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqa/ragcore/ai"
	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/search"
	"github.com/lexiqa/ragcore/storage/memory"
)

// stubEmbedder returns canned vectors without touching a real provider.
type stubEmbedder struct {
	mu     sync.Mutex
	vector []float32
	byText map[string][]float32
	err    error
	calls  int
}

func (s *stubEmbedder) Embed(_ context.Context, text string, _ ai.Options) (*ai.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	vec := s.vector
	if v, ok := s.byText[text]; ok {
		vec = v
	}
	return &ai.Result{Vector: vec, Provider: "mock", Dimension: len(vec)}, nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type chunkSpec struct {
	content string
	article string
	vector  []float32
}

func seedDocument(t *testing.T, store *memory.Store, key string, category core.Category, approved bool, specs []chunkSpec) (*core.Document, []*core.Chunk) {
	t.Helper()
	ctx := context.Background()

	doc, err := store.AddDocument(ctx, &core.Document{
		Title:       key,
		CitationKey: key,
		Category:    category,
		Language:    core.LanguageArabic,
		Content:     "seed content for " + key,
		SourceURL:   "https://example.tn/" + key,
		Active:      true,
		Approved:    approved,
	})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, len(specs))
	for i, sp := range specs {
		chunks[i] = &core.Chunk{
			Index:         i,
			Content:       sp.content,
			WordCount:     len(strings.Fields(sp.content)),
			ArticleNumber: sp.article,
		}
	}
	require.NoError(t, store.ReplaceChunks(ctx, doc.Id, chunks))

	stored, err := store.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, stored, len(specs))
	for _, c := range stored {
		if v := specs[c.Index].vector; v != nil {
			require.NoError(t, store.SetVector(ctx, c.Id, "mock", v))
		}
	}

	stored, err = store.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	return doc, stored
}

func newTestEngine(t *testing.T, store *memory.Store, embedder search.Embedder, opts ...search.Option) *search.Engine {
	t.Helper()
	engine, err := search.NewEngine(store, store, embedder, opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngine_RequiredDependencies(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}

	_, err := search.NewEngine(nil, store, embedder)
	assert.ErrorIs(t, err, search.ErrDocumentRepositoryRequired)

	_, err = search.NewEngine(store, nil, embedder)
	assert.ErrorIs(t, err, search.ErrChunkRepositoryRequired)

	_, err = search.NewEngine(store, store, nil)
	assert.ErrorIs(t, err, search.ErrEmbedderRequired)
}

func TestEngine_DenseSearchRanksBySimilarity(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, chunks := seedDocument(t, store, "code-obligations", core.CategoryLegislation, true, []chunkSpec{
		{content: "responsabilité du transporteur en cas de perte", vector: []float32{1, 0, 0}},
		{content: "dispositions relatives au gage immobilier", vector: []float32{0, 1, 0}},
	})

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder)

	resp, err := engine.Search(context.Background(), "responsabilité civile contractuelle du transporteur", search.Options{})
	require.NoError(t, err)

	assert.False(t, resp.Abstained)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "mock", resp.Provider)
	assert.Equal(t, core.LanguageFrench, resp.Language)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, chunks[0].Id, resp.Hits[0].ChunkId)
	assert.InDelta(t, 1.0, float64(resp.Hits[0].Similarity), 1e-5)
	assert.Equal(t, 1, resp.DroppedBelowThreshold, "orthogonal chunk falls below the floor")
}

func TestEngine_AbstainsOnEmptyQuery(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder)

	resp, err := engine.Search(context.Background(), "   ", search.Options{})
	require.NoError(t, err)

	assert.True(t, resp.Abstained)
	assert.Equal(t, search.ReasonEmptyQuery, resp.AbstainReason)
	assert.Empty(t, resp.Hits)
	assert.Equal(t, 0, embedder.callCount())
}

func TestEngine_AbstainsWhenThresholdDropsEverything(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	seedDocument(t, store, "code-penal", core.CategoryLegislation, true, []chunkSpec{
		{content: "أحكام السرقة الموصوفة", vector: []float32{1, 0, 0}},
	})

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder)

	resp, err := engine.Search(context.Background(), "عقوبة السرقة الموصوفة في القانون", search.Options{Threshold: 0.99})
	require.NoError(t, err)

	assert.True(t, resp.Abstained)
	assert.Equal(t, search.ReasonNoResults, resp.AbstainReason)
	assert.Empty(t, resp.Hits)
	assert.GreaterOrEqual(t, resp.DroppedBelowThreshold, 1)
}

func TestEngine_FusionRewardsChunksFoundByBothPaths(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, chunks := seedDocument(t, store, "code-obligations", core.CategoryLegislation, true, []chunkSpec{
		{content: "contrat vente immobilière obligations acheteur", vector: []float32{1, 0, 0}},
		{content: "régime des successions testament héritiers", vector: []float32{1, 0, 0}},
	})

	index := search.NewIndex()
	for _, c := range chunks {
		index.Add(c)
	}

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder, search.WithLexicalIndex(index))

	resp, err := engine.Search(context.Background(), "contrat vente immobilière entre particuliers", search.Options{})
	require.NoError(t, err)

	require.Len(t, resp.Hits, 2)
	assert.Equal(t, chunks[0].Id, resp.Hits[0].ChunkId)
	assert.Greater(t, resp.Hits[0].Score, resp.Hits[1].Score)
	assert.Greater(t, resp.Hits[0].Lexical, float32(0))
	assert.Zero(t, resp.Hits[1].Lexical)
}

func TestEngine_CitationBoostRanksExactArticleFirst(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, chunks := seedDocument(t, store, "code-penal", core.CategoryLegislation, true, []chunkSpec{
		{content: "الفصل 98 في الظروف المشددة", article: "98", vector: []float32{1, 0, 0}},
		{content: "الفصل 97 في جريمة القتل العمد", article: "97", vector: []float32{1, 0, 0}},
	})

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder)

	resp, err := engine.Search(context.Background(), "الفصل 97 من المجلة الجزائية", search.Options{})
	require.NoError(t, err)

	require.Len(t, resp.Hits, 2)
	assert.Equal(t, chunks[1].Id, resp.Hits[0].ChunkId)
	assert.True(t, resp.Hits[0].CitationMatch)
	assert.False(t, resp.Hits[1].CitationMatch)
	assert.Greater(t, resp.Hits[0].Score, resp.Hits[1].Score)
}

func TestEngine_LexicalOnlyFallbackWhenDenseFails(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, chunks := seedDocument(t, store, "code-penal", core.CategoryLegislation, true, []chunkSpec{
		{content: "الفصل 97 يعاقب كل من ارتكب جريمة قتل", article: "97"},
	})

	index := search.NewIndex()
	for _, c := range chunks {
		index.Add(c)
	}

	embedder := &stubEmbedder{err: errors.New("provider down")}
	engine := newTestEngine(t, store, embedder, search.WithLexicalIndex(index))

	resp, err := engine.Search(context.Background(), "الفصل 97", search.Options{})
	require.NoError(t, err)

	assert.True(t, resp.Degraded, "lexical-only results must be flagged degraded")
	assert.False(t, resp.Abstained)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, chunks[0].Id, resp.Hits[0].ChunkId)
	assert.True(t, resp.Hits[0].CitationMatch)
	assert.Zero(t, resp.Hits[0].Similarity)
}

func TestEngine_DenseFailureWithoutIndexIsAnError(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	embedder := &stubEmbedder{err: errors.New("provider down")}
	engine := newTestEngine(t, store, embedder)

	_, err := engine.Search(context.Background(), "عقوبة السرقة", search.Options{})
	assert.ErrorIs(t, err, search.ErrSearchUnavailable)
}

func TestEngine_ExcludesUnapprovedDocuments(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, chunks := seedDocument(t, store, "projet-loi", core.CategoryLegislation, false, []chunkSpec{
		{content: "مشروع قانون لم تتم المصادقة عليه بعد", vector: []float32{1, 0, 0}},
	})

	index := search.NewIndex()
	for _, c := range chunks {
		index.Add(c)
	}

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder, search.WithLexicalIndex(index))

	resp, err := engine.Search(context.Background(), "مشروع قانون المصادقة", search.Options{})
	require.NoError(t, err)

	assert.True(t, resp.Abstained)
	assert.Equal(t, search.ReasonNoResults, resp.AbstainReason)
	assert.Empty(t, resp.Hits)
}

func TestEngine_DiversityCapLimitsChunksPerDocument(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	doc, _ := seedDocument(t, store, "code-penal", core.CategoryLegislation, true, []chunkSpec{
		{content: "الفصل الأول", vector: []float32{1, 0, 0}},
		{content: "الفصل الثاني", vector: []float32{0.9, 0.43589, 0}},
		{content: "الفصل الثالث", vector: []float32{0.8, 0.6, 0}},
		{content: "الفصل الرابع", vector: []float32{0.7, 0.71414, 0}},
		{content: "الفصل الخامس", vector: []float32{0.6, 0.8, 0}},
	})

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder, search.WithDiversityCap(3))

	resp, err := engine.Search(context.Background(), "أحكام عامة في المجلة الجزائية", search.Options{})
	require.NoError(t, err)

	assert.False(t, resp.Abstained)
	require.Len(t, resp.Hits, 3)
	for _, h := range resp.Hits {
		assert.Equal(t, doc.Id, h.DocumentId)
	}
	assert.Greater(t, resp.Hits[0].Score, resp.Hits[2].Score)
}

func TestEngine_FlatDistributionAbstains(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	seedDocument(t, store, "code-penal", core.CategoryLegislation, true, []chunkSpec{
		{content: "نص أول", vector: []float32{1, 0, 0}},
		{content: "نص ثان", vector: []float32{1, 0, 0}},
		{content: "نص ثالث", vector: []float32{1, 0, 0}},
	})

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder)

	resp, err := engine.Search(context.Background(), "أحكام عامة في المجلة الجزائية", search.Options{})
	require.NoError(t, err)

	assert.True(t, resp.Abstained)
	assert.Equal(t, search.ReasonFlatScores, resp.AbstainReason)
	assert.Empty(t, resp.Hits)
}

type staticTranslator struct {
	out string
}

func (s *staticTranslator) Translate(_ context.Context, _ string, _ core.Language) (string, error) {
	return s.out, nil
}

func TestEngine_TranslatorAddsQueryVariant(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, arChunks := seedDocument(t, store, "code-penal", core.CategoryLegislation, true, []chunkSpec{
		{content: "عقوبة السرقة", vector: []float32{1, 0, 0}},
	})
	_, frChunks := seedDocument(t, store, "code-penal-fr", core.CategoryLegislation, true, []chunkSpec{
		{content: "la peine encourue pour le vol", vector: []float32{0, 1, 0}},
	})

	query := "ما هي عقوبة السرقة"
	translated := "quelle est la peine du vol"
	embedder := &stubEmbedder{
		vector: []float32{0, 0, 1},
		byText: map[string][]float32{
			query:      {1, 0, 0},
			translated: {0, 1, 0},
		},
	}
	engine := newTestEngine(t, store, embedder, search.WithTranslator(&staticTranslator{out: translated}))

	resp, err := engine.Search(context.Background(), query, search.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.callCount())
	require.Len(t, resp.Hits, 2)
	got := map[core.ID]bool{resp.Hits[0].ChunkId: true, resp.Hits[1].ChunkId: true}
	assert.True(t, got[arChunks[0].Id])
	assert.True(t, got[frChunks[0].Id])
}

func TestEngine_RRFFusion(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, chunks := seedDocument(t, store, "code-obligations", core.CategoryLegislation, true, []chunkSpec{
		{content: "cautionnement solidaire garantie personnelle", vector: []float32{1, 0, 0}},
		{content: "nullité relative du contrat vicié", vector: []float32{0.5, 0.86603, 0}},
	})

	index := search.NewIndex()
	for _, c := range chunks {
		index.Add(c)
	}

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder,
		search.WithLexicalIndex(index),
		search.WithFusion(search.FusionRRF),
	)

	resp, err := engine.Search(context.Background(), "cautionnement solidaire garantie personnelle", search.Options{})
	require.NoError(t, err)

	assert.False(t, resp.Abstained)
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, chunks[0].Id, resp.Hits[0].ChunkId)
}

// recordingMonitor captures monitor callbacks for assertions.
type recordingMonitor struct {
	started   bool
	variants  []string
	fused     int
	dropped   int
	abstained string
	finished  bool
	hits      int
}

func (m *recordingMonitor) Start(_ string, _ core.Language)                      { m.started = true }
func (m *recordingMonitor) QueryVariants(v []string)                             { m.variants = v }
func (m *recordingMonitor) AfterDenseSearch(_ string, _ []*core.SimilarityMatch) {}
func (m *recordingMonitor) DenseUnavailable(_ error)                             {}
func (m *recordingMonitor) AfterLexicalSearch(_ []search.LexicalMatch)           {}
func (m *recordingMonitor) AfterFusion(n int)                                    { m.fused = n }
func (m *recordingMonitor) CitationBoost(_ core.ID, _ string)                    {}
func (m *recordingMonitor) DroppedBelowThreshold(n int)                          { m.dropped = n }
func (m *recordingMonitor) Abstained(reason string)                              { m.abstained = reason }
func (m *recordingMonitor) Finish(hits []*core.SearchHit) {
	m.finished = true
	m.hits = len(hits)
}

func TestEngine_MonitorReceivesStageEvents(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	seedDocument(t, store, "code-obligations", core.CategoryLegislation, true, []chunkSpec{
		{content: "responsabilité du transporteur", vector: []float32{1, 0, 0}},
	})

	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	engine := newTestEngine(t, store, embedder)

	monitor := &recordingMonitor{}
	resp, err := engine.SearchWithMonitor(context.Background(), "responsabilité civile du transporteur maritime", search.Options{}, monitor)
	require.NoError(t, err)

	assert.True(t, monitor.started)
	assert.Equal(t, []string{"responsabilité civile du transporteur maritime"}, monitor.variants)
	assert.Equal(t, 1, monitor.fused)
	assert.True(t, monitor.finished)
	assert.Equal(t, len(resp.Hits), monitor.hits)
	assert.Empty(t, monitor.abstained)
}
