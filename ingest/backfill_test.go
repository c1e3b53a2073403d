package ingest_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/ingest"
	"github.com/lexiqa/ragcore/storage"
	"github.com/lexiqa/ragcore/storage/memory"
)

// staleStore simulates documents re-chunked while embeddings were in
// flight: vector writes to the listed chunks always come back stale.
type staleStore struct {
	*memory.Store
	staleIds map[core.ID]struct{}
}

func (s *staleStore) SetVector(ctx context.Context, chunkId core.ID, provider string, vector []float32) error {
	if _, ok := s.staleIds[chunkId]; ok {
		return storage.ErrStaleWrite
	}
	return s.Store.SetVector(ctx, chunkId, provider, vector)
}

func testConfig() *ingest.Config {
	return &ingest.Config{
		BatchSize:      2,
		ReportInterval: 1,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}
}

// seedBacklog stores a document with n un-embedded chunks and returns the
// stored chunk ids.
func seedBacklog(t *testing.T, store storage.Store, title string, n int) []core.ID {
	t.Helper()
	ctx := context.Background()

	doc, err := store.AddDocument(ctx, &core.Document{
		Title:    title,
		Category: core.CategoryLegislation,
		Language: core.LanguageArabic,
		Content:  arabicContent(50 * n),
		Active:   true,
		Approved: true,
	})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{Index: i, Content: arabicContent(45), WordCount: 45}
	}
	require.NoError(t, store.ReplaceChunks(ctx, doc.Id, chunks))

	stored, err := store.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, stored, n)

	ids := make([]core.ID, n)
	for i, c := range stored {
		ids[i] = c.Id
	}
	return ids
}

func TestNewBackfiller_RequiredDependencies(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	_, err := ingest.NewBackfiller(nil, &stubEmbedder{}, nil, nil)
	assert.ErrorIs(t, err, ingest.ErrChunkRepositoryRequired)

	_, err = ingest.NewBackfiller(store, nil, nil, nil)
	assert.ErrorIs(t, err, ingest.ErrEmbedderRequired)
}

func TestBackfiller_IndexesEntireBacklog(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	seedBacklog(t, store, "المجلة الجزائية", 3)
	seedBacklog(t, store, "مجلة الشغل", 2)

	embedder := &stubEmbedder{}
	var progress bytes.Buffer
	backfiller, err := ingest.NewBackfiller(store, embedder, testConfig(), &progress)
	require.NoError(t, err)

	report, err := backfiller.Run(ctx, "mock")
	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 5, report.Indexed)
	assert.Zero(t, report.Errors)
	assert.Zero(t, report.Remaining)
	assert.Contains(t, progress.String(), "chunks/s")

	// The backlog is empty now, so a second run is a no-op.
	calls := embedder.callCount()
	report, err = backfiller.Run(ctx, "mock")
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Equal(t, calls, embedder.callCount())
}

func TestBackfiller_ProviderSpacesAreIndependent(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	seedBacklog(t, store, "doc", 2)

	backfiller, err := ingest.NewBackfiller(store, &stubEmbedder{}, testConfig(), nil)
	require.NoError(t, err)

	_, err = backfiller.Run(ctx, "mock")
	require.NoError(t, err)

	missing, err := store.CountMissingVector(ctx, "ollama")
	require.NoError(t, err)
	assert.Equal(t, 2, missing, "filling one provider must not touch another's backlog")
}

func TestBackfiller_DiscardsStaleWrites(t *testing.T) {
	inner := memory.NewStore()
	defer inner.Close()
	ctx := context.Background()

	ids := seedBacklog(t, inner, "doc", 3)
	store := &staleStore{Store: inner, staleIds: map[core.ID]struct{}{ids[1]: {}}}

	cfg := testConfig()
	cfg.BatchSize = 10
	backfiller, err := ingest.NewBackfiller(store, &stubEmbedder{}, cfg, nil)
	require.NoError(t, err)

	report, err := backfiller.Run(ctx, "mock")
	require.NoError(t, err, "a stale write is not a failure")
	assert.Equal(t, 2, report.Indexed)
	assert.Zero(t, report.Errors)
	// The stale chunk is refetched once before the run detects it can
	// make no further progress.
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 1, report.Remaining)
}

func TestBackfiller_RetriesTransientEmbedFailure(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	seedBacklog(t, store, "doc", 2)

	embedder := &stubEmbedder{failUntil: 1}
	backfiller, err := ingest.NewBackfiller(store, embedder, testConfig(), nil)
	require.NoError(t, err)

	report, err := backfiller.Run(ctx, "mock")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 2, embedder.callCount())
}

func TestBackfiller_AbortsWhenProviderExhausted(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()
	ctx := context.Background()

	seedBacklog(t, store, "doc", 2)

	cfg := testConfig()
	cfg.MaxRetries = 2
	backfiller, err := ingest.NewBackfiller(store, &stubEmbedder{err: assert.AnError}, cfg, nil)
	require.NoError(t, err)

	report, err := backfiller.Run(ctx, "mock")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, report.Indexed)
}

func TestBackfiller_EmptyBacklog(t *testing.T) {
	store := memory.NewStore()
	defer store.Close()

	embedder := &stubEmbedder{}
	backfiller, err := ingest.NewBackfiller(store, embedder, nil, nil)
	require.NoError(t, err)

	report, err := backfiller.Run(context.Background(), "mock")
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Zero(t, embedder.callCount())
}
