package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Provider is a test double for ai.Provider.
// It allows custom behavior injection via function fields.
type Provider struct {
	// ProviderName is returned by Name(). Defaults to "mock".
	ProviderName string

	// Dim is the vector dimensionality. Defaults to 384.
	Dim int

	// EmbedFunc is called by Embed if set.
	// If nil, uses default deterministic behavior.
	EmbedFunc func(ctx context.Context, text string) ([]float32, int, error)

	// EmbedBatchFunc is called by EmbedBatch if set.
	// If nil, uses default deterministic behavior.
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, int, error)

	mu        sync.Mutex
	callCount int
}

// NewProvider creates a mock provider with default deterministic behavior.
// Note: Returns concrete type to allow test assertions and behavior injection.
func NewProvider() *Provider {
	return &Provider{ProviderName: "mock", Dim: 384}
}

// Name returns the provider identifier.
func (m *Provider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Dimension returns the configured vector dimensionality.
func (m *Provider) Dimension() int {
	if m.Dim == 0 {
		return 384
	}
	return m.Dim
}

// Embed generates a deterministic embedding based on text hash.
func (m *Provider) Embed(ctx context.Context, text string) ([]float32, int, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}

	return DeterministicVector(text, m.Dimension()), len(text) / 4, nil
}

// EmbedBatch generates deterministic embeddings for multiple texts.
func (m *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, m.Dimension())
		tokens += len(text) / 4
	}
	return vectors, tokens, nil
}

// CallCount returns the number of times any embed method was called.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *Provider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.EmbedFunc = nil
	m.EmbedBatchFunc = nil
}

// DeterministicVector creates a deterministic unit embedding vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		// Simple pseudo-random generation based on seed and index
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	// Normalize to unit vector
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}
