package openai

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/lexiqa/ragcore/ai"
)

// Provider implements ai.Provider using OpenAI-compatible embedding APIs.
type Provider struct {
	name      string
	dimension int
	embedder  embeddings.Embedder
	logger    *slog.Logger
}

// NewProvider creates an embedding provider for an OpenAI-compatible service.
// The config is validated and normalized before use.
func NewProvider(config *ai.Config, opts ...Option) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// "none" satisfies local OpenAI-compatible services that don't require
	// authentication.
	token := config.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	p := &Provider{
		name:      "openai",
		dimension: config.Dimension,
		embedder:  embedder,
		logger:    slog.Default().With("component", "openai-embedder"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the provider identifier, allowing several
// OpenAI-compatible endpoints to coexist in one service.
func WithName(name string) Option {
	return func(p *Provider) {
		p.name = name
		p.logger = slog.Default().With("component", name+"-embedder")
	}
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
