package ai_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqa/ragcore/ai"
	"github.com/lexiqa/ragcore/ai/mock"
)

func newFailing(name string, dim int) *mock.Provider {
	p := &mock.Provider{ProviderName: name, Dim: dim}
	p.EmbedFunc = func(ctx context.Context, text string) ([]float32, int, error) {
		return nil, 0, errors.New("boom")
	}
	p.EmbedBatchFunc = func(ctx context.Context, texts []string) ([][]float32, int, error) {
		return nil, 0, errors.New("boom")
	}
	return p
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	puts    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]float32)}
}

func (c *mapCache) Get(provider, text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[provider+"\x00"+text]
	return v, ok
}

func (c *mapCache) Put(provider, text string, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[provider+"\x00"+text] = vector
	c.puts++
	return nil
}

func (c *mapCache) Close() error { return nil }

func TestService_EmbedPrimaryProvider(t *testing.T) {
	primary := &mock.Provider{ProviderName: "primary", Dim: 8}
	fallback := &mock.Provider{ProviderName: "fallback", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{primary, fallback})
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.Embed(context.Background(), "query text", ai.Options{})
	require.NoError(t, err)

	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, 8, res.Dimension)
	assert.Len(t, res.Vector, 8)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, primary.CallCount())
	assert.Equal(t, 0, fallback.CallCount())
}

func TestService_EmbedFallsBackAndFlagsDegraded(t *testing.T) {
	primary := newFailing("primary", 8)
	fallback := &mock.Provider{ProviderName: "fallback", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{primary, fallback})
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.Embed(context.Background(), "query text", ai.Options{AcceptDegraded: true})
	require.NoError(t, err)

	assert.Equal(t, "fallback", res.Provider)
	assert.True(t, res.Degraded)

	// Without degraded acceptance the primary's failure is final.
	_, err = svc.Embed(context.Background(), "query text", ai.Options{})
	assert.ErrorIs(t, err, ai.ErrAllProvidersExhausted)
	assert.Equal(t, 1, fallback.CallCount())
}

func TestService_EmbedAllProvidersExhausted(t *testing.T) {
	svc, err := ai.NewService([]ai.Provider{newFailing("a", 8), newFailing("b", 8)})
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Embed(context.Background(), "query", ai.Options{})
	assert.ErrorIs(t, err, ai.ErrAllProvidersExhausted)
}

func TestService_EmbedEmptyInput(t *testing.T) {
	svc, err := ai.NewService([]ai.Provider{mock.NewProvider()})
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Embed(context.Background(), "", ai.Options{})
	assert.ErrorIs(t, err, ai.ErrEmptyInput)
}

func TestService_EmbedRejectsInvalidVector(t *testing.T) {
	// Primary claims dim 8 but returns dim 4, the service must not accept it.
	bad := &mock.Provider{ProviderName: "bad", Dim: 8}
	bad.EmbedFunc = func(ctx context.Context, text string) ([]float32, int, error) {
		return []float32{1, 0, 0, 0}, 1, nil
	}
	good := &mock.Provider{ProviderName: "good", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{bad, good})
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.Embed(context.Background(), "query", ai.Options{AcceptDegraded: true})
	require.NoError(t, err)
	assert.Equal(t, "good", res.Provider)
	assert.True(t, res.Degraded)
}

func TestService_ExplicitProviderOverride(t *testing.T) {
	primary := &mock.Provider{ProviderName: "primary", Dim: 8}
	secondary := &mock.Provider{ProviderName: "secondary", Dim: 16}

	svc, err := ai.NewService([]ai.Provider{primary, secondary})
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.Embed(context.Background(), "query", ai.Options{Provider: "secondary"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Provider)
	assert.Equal(t, 16, res.Dimension)
	assert.False(t, res.Degraded)
	assert.Equal(t, 0, primary.CallCount())

	_, err = svc.Embed(context.Background(), "query", ai.Options{Provider: "nope"})
	assert.ErrorIs(t, err, ai.ErrUnknownProvider)
}

func TestService_OperationChain(t *testing.T) {
	a := &mock.Provider{ProviderName: "a", Dim: 8}
	b := &mock.Provider{ProviderName: "b", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{a, b},
		ai.WithChain("search", "b", "a"),
	)
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.Embed(context.Background(), "query", ai.Options{Operation: "search"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.False(t, res.Degraded, "first provider of the operation chain is not degraded")
}

func TestService_ChainValidation(t *testing.T) {
	a := &mock.Provider{ProviderName: "a", Dim: 8}

	_, err := ai.NewService([]ai.Provider{a}, ai.WithChain("search", "missing"))
	assert.ErrorIs(t, err, ai.ErrUnknownProvider)
}

func TestService_BreakerSkipsOpenProvider(t *testing.T) {
	failing := newFailing("flaky", 8)
	backup := &mock.Provider{ProviderName: "backup", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{failing, backup},
		ai.WithBreakerConfig(ai.BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute}),
	)
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Embed(ctx, "query", ai.Options{AcceptDegraded: true})
		require.NoError(t, err)
	}

	// Two failures open the breaker; the third call skips the flaky provider.
	assert.Equal(t, 2, failing.CallCount())
	assert.Equal(t, 3, backup.CallCount())
}

func TestService_CacheHitSkipsProvider(t *testing.T) {
	p := &mock.Provider{ProviderName: "p", Dim: 8}
	cache := newMapCache()

	svc, err := ai.NewService([]ai.Provider{p}, ai.WithCache(cache))
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	first, err := svc.Embed(ctx, "same text", ai.Options{})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Embed(ctx, "same text", ai.Options{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, 1, p.CallCount())
}

func TestService_EmbedContextCancelled(t *testing.T) {
	svc, err := ai.NewService([]ai.Provider{mock.NewProvider()})
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = svc.Embed(ctx, "query", ai.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestService_EmbedBatch(t *testing.T) {
	p := &mock.Provider{ProviderName: "p", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{p})
	require.NoError(t, err)
	defer svc.Close()

	texts := make([]string, 40)
	for i := range texts {
		texts[i] = "chunk " + string(rune('a'+i%26))
	}

	res, err := svc.EmbedBatch(context.Background(), texts, ai.Options{})
	require.NoError(t, err)

	assert.Equal(t, "p", res.Provider)
	require.Len(t, res.Vectors, len(texts))
	for i, v := range res.Vectors {
		assert.Len(t, v, 8, "vector %d", i)
		assert.Equal(t, mock.DeterministicVector(texts[i], 8), v, "order must be preserved")
	}
}

func TestService_EmbedBatchSingleEmbeddingSpace(t *testing.T) {
	flaky := newFailing("flaky", 8)
	backup := &mock.Provider{ProviderName: "backup", Dim: 8}

	svc, err := ai.NewService([]ai.Provider{flaky, backup})
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"}, ai.Options{AcceptDegraded: true})
	require.NoError(t, err)

	// The whole batch is served by one provider, never a per-item mix.
	assert.Equal(t, "backup", res.Provider)
	assert.True(t, res.Degraded)
	assert.Len(t, res.Vectors, 3)
}

func TestService_EmbedBatchEmpty(t *testing.T) {
	svc, err := ai.NewService([]ai.Provider{mock.NewProvider()})
	require.NoError(t, err)
	defer svc.Close()

	res, err := svc.EmbedBatch(context.Background(), nil, ai.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Vectors)
}
