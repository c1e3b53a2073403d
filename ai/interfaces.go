package ai

import "context"

// Provider generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Provider interface {
	// Name returns the stable provider identifier used for vector slots,
	// circuit breaker state and result attribution.
	Name() string

	// Dimension returns the exact dimensionality of vectors this provider
	// produces. Every returned vector is validated against it.
	Dimension() int

	// Embed generates a vector embedding for a single text string.
	// It returns the vector and the token count consumed by the call.
	Embed(ctx context.Context, text string) ([]float32, int, error)

	// EmbedBatch generates vector embeddings for multiple text strings.
	// The returned slice contains embeddings in the same order as the input
	// texts, along with the total token count consumed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Cache stores embedding vectors keyed by provider and input text so repeated
// embeds of identical content skip the provider call.
// Implementations must be thread-safe for concurrent use.
type Cache interface {
	// Get returns the cached vector for (provider, text), or ok=false on miss.
	Get(provider, text string) (vector []float32, ok bool)

	// Put stores a vector for (provider, text).
	Put(provider, text string, vector []float32) error

	// Close releases resources held by the cache.
	Close() error
}
