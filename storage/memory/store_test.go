package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqa/ragcore/ai/mock"
	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

func newTestDocument(t *testing.T, s *Store, key string) *core.Document {
	t.Helper()
	doc, err := s.AddDocument(context.Background(), &core.Document{
		Title:       "Code pénal",
		CitationKey: key,
		Category:    core.CategoryLegislation,
		Language:    core.LanguageArabic,
		Content:     "الفصل 97 نص القانون " + key,
		SourceURL:   "https://example.tn/" + key,
		Active:      true,
		Approved:    true,
	})
	require.NoError(t, err)
	return doc
}

func TestStore_AddGetDocument(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	assert.NotZero(t, doc.Id)
	assert.False(t, doc.InsertedAt.IsZero())

	got, err := s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "code-penal", got.CitationKey)

	byKey, err := s.GetDocumentByCitationKey(ctx, "code-penal")
	require.NoError(t, err)
	assert.Equal(t, doc.Id, byKey.Id)

	_, err = s.GetDocument(ctx, 999999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_DuplicateDocument(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	_, err := s.AddDocument(ctx, &core.Document{
		Id:       doc.Id,
		Category: core.CategoryLegislation,
		Language: core.LanguageArabic,
		Content:  "x",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestStore_ReplaceChunksAtomicCount(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")

	first := []*core.Chunk{
		{Index: 0, Content: "chunk one", WordCount: 2},
		{Index: 1, Content: "chunk two", WordCount: 2},
		{Index: 2, Content: "chunk three", WordCount: 2},
	}
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, first))

	got, err := s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ChunkCount)

	second := []*core.Chunk{
		{Index: 0, Content: "fresh chunk", WordCount: 2},
	}
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, second))

	got, err = s.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ChunkCount)

	chunks, err := s.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "fresh chunk", chunks[0].Content)
	assert.Empty(t, chunks[0].Vectors, "old vectors must not survive a re-chunk")
}

func TestStore_SetVectorStaleWrite(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "original chunk", WordCount: 2},
	}))
	chunks, err := s.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	oldId := chunks[0].Id

	// Re-chunk while an embedding is "in flight".
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "replacement chunk", WordCount: 2},
	}))

	err = s.SetVector(ctx, oldId, "openai", []float32{1, 0})
	assert.ErrorIs(t, err, storage.ErrStaleWrite)
}

func TestStore_VectorSlotsPerProvider(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "chunk", WordCount: 1},
	}))
	chunks, _ := s.GetChunks(ctx, doc.Id)
	id := chunks[0].Id

	require.NoError(t, s.SetVector(ctx, id, "openai", []float32{1, 0}))
	require.NoError(t, s.SetVector(ctx, id, "ollama", []float32{0, 1}))

	got, err := s.GetChunk(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got.Vectors["openai"])
	assert.Equal(t, []float32{0, 1}, got.Vectors["ollama"])
}

func TestStore_ChunksMissingVector(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "a", WordCount: 1},
		{Index: 1, Content: "b", WordCount: 1},
		{Index: 2, Content: "c", WordCount: 1},
	}))
	chunks, _ := s.GetChunks(ctx, doc.Id)
	require.NoError(t, s.SetVector(ctx, chunks[0].Id, "openai", []float32{1, 0}))

	missing, err := s.ChunksMissingVector(ctx, "openai", 10)
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	n, err := s.CountMissingVector(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Another provider still sees all three.
	n, err = s.CountMissingVector(ctx, "ollama")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_FindSimilar(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "alpha", WordCount: 1},
		{Index: 1, Content: "beta", WordCount: 1},
	}))
	chunks, _ := s.GetChunks(ctx, doc.Id)

	require.NoError(t, s.SetVector(ctx, chunks[0].Id, "mock", []float32{1, 0, 0}))
	require.NoError(t, s.SetVector(ctx, chunks[1].Id, "mock", []float32{0, 1, 0}))

	matches, err := s.FindSimilar(ctx, "mock", []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, chunks[0].Id, matches[0].ChunkId)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-5)
}

func TestStore_FindSimilarExcludesInactiveAndUnapproved(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "alpha", WordCount: 1},
	}))
	chunks, _ := s.GetChunks(ctx, doc.Id)
	require.NoError(t, s.SetVector(ctx, chunks[0].Id, "mock", mock.DeterministicVector("alpha", 8)))

	query := mock.DeterministicVector("alpha", 8)

	matches, err := s.FindSimilar(ctx, "mock", query, 0.1, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, s.SetActive(ctx, doc.Id, false))
	matches, err = s.FindSimilar(ctx, "mock", query, 0.1, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "inactive documents must be invisible to search")
}

func TestStore_FindSimilarProviderSpaceIsolation(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc := newTestDocument(t, s, "code-penal")
	require.NoError(t, s.ReplaceChunks(ctx, doc.Id, []*core.Chunk{
		{Index: 0, Content: "alpha", WordCount: 1},
	}))
	chunks, _ := s.GetChunks(ctx, doc.Id)
	require.NoError(t, s.SetVector(ctx, chunks[0].Id, "openai", []float32{1, 0}))

	matches, err := s.FindSimilar(ctx, "ollama", []float32{1, 0}, 0.1, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "vectors of one provider must never match another provider's query")
}

func TestStore_LegalDocumentLifecycle(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	doc, err := s.AddLegalDocument(ctx, &core.LegalDocument{
		CitationKey: "loi-2025-14",
		TitleFr:     "Loi n°2025-14",
		Status:      core.StatusPending,
	})
	require.NoError(t, err)
	assert.NotZero(t, doc.Id)

	_, err = s.AddLegalDocument(ctx, &core.LegalDocument{CitationKey: "loi-2025-14"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	doc.Status = core.StatusPartial
	require.NoError(t, s.UpdateLegalDocument(ctx, doc))

	got, err := s.GetLegalDocument(ctx, "loi-2025-14")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartial, got.Status)

	pending, err := s.ListLegalDocuments(ctx, core.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_RecordAmendmentRespectsValidation(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	a := &core.Amendment{
		TargetKey: "code-penal",
		SourceRef: "Loi n°2025-14",
		Scope:     core.ScopePartialModification,
		Tier:      core.TierMedium,
	}
	created, err := s.RecordAmendment(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	stored, err := s.GetAmendments(ctx, "code-penal")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.NoError(t, s.ValidateAmendment(ctx, stored[0].Id, time.Now()))

	// A re-detection of the same amendment must not clobber the
	// validated record.
	created, err = s.RecordAmendment(ctx, &core.Amendment{
		TargetKey: "code-penal",
		SourceRef: "Loi n°2025-14",
		Scope:     core.ScopeTotalReplacement,
		Tier:      core.TierLow,
	})
	require.NoError(t, err)
	assert.False(t, created)

	stored, err = s.GetAmendments(ctx, "code-penal")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Validated())
	assert.Equal(t, core.ScopePartialModification, stored[0].Scope)
}

func TestStore_EvalRuns(t *testing.T) {
	s := NewStore()
	defer s.Close()
	ctx := context.Background()

	older := &core.EvalRun{Id: uuid.New(), StartedAt: time.Now().Add(-time.Hour), SampleSize: 10}
	newer := &core.EvalRun{Id: uuid.New(), StartedAt: time.Now(), SampleSize: 10}
	require.NoError(t, s.AddRun(ctx, older))
	require.NoError(t, s.AddRun(ctx, newer))

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.Id, latest.Id)

	require.NoError(t, s.AddResults(ctx, []*core.EvalResult{
		{RunId: newer.Id, QuestionId: "q1", RecallAt5: 0.8},
		{RunId: newer.Id, QuestionId: "q2", RecallAt5: 0.6},
	}))

	rows, err := s.GetResults(ctx, newer.Id)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
