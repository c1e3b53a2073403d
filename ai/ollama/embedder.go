package ollama

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/lexiqa/ragcore/ai"
)

// Provider implements ai.Provider against a native Ollama endpoint.
type Provider struct {
	name      string
	dimension int
	embedder  embeddings.Embedder
	logger    *slog.Logger
}

// NewProvider creates an embedding provider backed by a local Ollama server.
// The config is validated before use; the native Ollama API does not take the
// /v1 suffix, so it is stripped if present.
func NewProvider(config *ai.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	host := strings.TrimSuffix(config.Host, "/v1")

	client, err := ollama.New(
		ollama.WithServerURL(host),
		ollama.WithModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Provider{
		name:      "ollama",
		dimension: config.Dimension,
		embedder:  embedder,
		logger:    slog.Default().With("component", "ollama-embedder"),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Dimension returns the vector dimensionality the configured model produces.
func (p *Provider) Dimension() int {
	return p.dimension
}

// Embed generates a vector embedding for a single text string.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, int, error) {
	p.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := p.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		p.logger.Error("failed to generate embedding", "err", err)
		return nil, 0, err
	}

	if len(vectors) == 0 {
		p.logger.Warn("embedder returned empty result")
		return []float32{}, 0, nil
	}

	return vectors[0], ai.CountTokens(text), nil
}

// EmbedBatch generates vector embeddings for multiple text strings.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	p.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		p.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, 0, err
	}

	tokens := 0
	for _, t := range texts {
		tokens += ai.CountTokens(t)
	}
	return vectors, tokens, nil
}
