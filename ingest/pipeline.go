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


package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/lexiqa/ragcore/ai"
	"github.com/lexiqa/ragcore/chunking"
	"github.com/lexiqa/ragcore/consolidate"
	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/search"
	"github.com/lexiqa/ragcore/storage"
)

// BatchEmbedder is the slice of the embedding service the pipeline uses.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, opts ai.Options) (*ai.BatchResult, error)
}

// RawDocument is a document as delivered by a crawler or importer, before
// normalization and chunking.
type RawDocument struct {
	Title        string
	CitationKey  string
	Category     core.Category
	Language     core.Language // empty triggers script detection
	Content      string
	SourceURL    string
	Provenance   []string
	QualityScore float64
}

// Pipeline orchestrates document ingestion: normalization, chunking,
// lexical indexing and asynchronous embedding. Chunks are searchable by
// the lexical path as soon as IngestDocument returns; dense vectors arrive
// when the background embed jobs complete, and any gap is closed by the
// Backfiller.
type Pipeline struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	embedder  BatchEmbedder
	lexical   *search.Index
	pool      *ants.Pool
	chunkOpts chunking.Options
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for background embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunkingOptions overrides the default chunk sizing.
func WithChunkingOptions(opts chunking.Options) Option {
	return func(p *Pipeline) error {
		p.chunkOpts = opts
		return nil
	}
}

// WithLexicalIndex attaches a lexical index kept in sync with ingested
// chunks. Without one, ingested documents are reachable by the dense path
// only.
func WithLexicalIndex(index *search.Index) Option {
	return func(p *Pipeline) error {
		p.lexical = index
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	embedder BatchEmbedder,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		pool:      pool,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// IngestDocument normalizes, stores and chunks one document. The chunks
// are added to the lexical index synchronously; embedding runs on the
// background pool and its failures are logged, never returned, since the
// backfill recovers missing vectors.
func (p *Pipeline) IngestDocument(ctx context.Context, raw RawDocument) (*core.Document, error) {
	doc := &core.Document{
		Title:        strings.TrimSpace(raw.Title),
		CitationKey:  raw.CitationKey,
		Category:     raw.Category,
		Language:     raw.Language,
		Content:      strings.TrimSpace(raw.Content),
		SourceURL:    raw.SourceURL,
		Provenance:   raw.Provenance,
		QualityScore: raw.QualityScore,
		Active:       true,
		Approved:     true,
	}
	if doc.Language == "" {
		doc.Language = search.DetectLanguage(doc.Content)
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	doc, err := p.documents.AddDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("add document: %w", err)
	}

	stored, err := p.rechunk(ctx, doc.Id, doc.Content)
	if err != nil {
		return nil, err
	}
	doc.ChunkCount = len(stored)

	p.indexLexical(doc.Id, stored)
	p.submitEmbedding(stored)

	p.logger.Info("document ingested",
		"documentId", doc.Id,
		"citationKey", doc.CitationKey,
		"language", doc.Language,
		"chunks", len(stored))
	return doc, nil
}

// Reindex turns an approved consolidated legal document into a searchable
// corpus document, replacing any previous version carrying the same
// citation key. It implements the consolidation service's reindexer hook.
func (p *Pipeline) Reindex(ctx context.Context, legal *core.LegalDocument) (core.ID, error) {
	text := consolidate.ConsolidatedText(legal)
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("legal document %s: %w", legal.CitationKey, core.ErrEmptyContent)
	}

	title := legal.TitleAr
	if title == "" {
		title = legal.TitleFr
	}

	doc, err := p.documents.GetDocumentByCitationKey(ctx, legal.CitationKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		doc = &core.Document{
			Title:       title,
			CitationKey: legal.CitationKey,
			Category:    core.CategoryLegislation,
			Language:    search.DetectLanguage(text),
			Content:     text,
			SourceURL:   "consolidated://" + legal.CitationKey,
			Active:      true,
			Approved:    true,
		}
		doc, err = p.documents.AddDocument(ctx, doc)
		if err != nil {
			return 0, fmt.Errorf("add consolidated document: %w", err)
		}
	case err != nil:
		return 0, err
	default:
		doc.Title = title
		doc.Content = text
		doc.Language = search.DetectLanguage(text)
		doc.Active = true
		doc.Approved = true
		if err := p.documents.UpdateDocument(ctx, doc); err != nil {
			return 0, fmt.Errorf("update consolidated document: %w", err)
		}
	}

	stored, err := p.rechunk(ctx, doc.Id, text)
	if err != nil {
		return 0, err
	}

	if p.lexical != nil {
		p.lexical.RemoveDocument(doc.Id)
	}
	p.indexLexical(doc.Id, stored)
	p.submitEmbedding(stored)

	p.logger.Info("consolidated document reindexed",
		"documentId", doc.Id,
		"citationKey", legal.CitationKey,
		"chunks", len(stored))
	return doc.Id, nil
}

// Flush blocks until all pending background embed jobs have finished.
func (p *Pipeline) Flush() {
	p.wg.Wait()
}

// Release releases the worker pool. Pending embed jobs are drained first.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.wg.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

// rechunk splits text and atomically replaces the document's chunks,
// returning the stored chunks with their assigned ids.
func (p *Pipeline) rechunk(ctx context.Context, docId core.ID, text string) ([]*core.Chunk, error) {
	pieces := chunking.Split(text, p.chunkOpts)
	chunks := make([]*core.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = &pieces[i]
	}

	if err := p.chunks.ReplaceChunks(ctx, docId, chunks); err != nil {
		return nil, fmt.Errorf("replace chunks: %w", err)
	}
	stored, err := p.chunks.GetChunks(ctx, docId)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	return stored, nil
}

func (p *Pipeline) indexLexical(docId core.ID, chunks []*core.Chunk) {
	if p.lexical == nil {
		return
	}
	for _, c := range chunks {
		p.lexical.Add(c)
	}
}

// submitEmbedding schedules a background embed of the chunks. A stale
// write means the document was re-chunked while the job was in flight;
// the obsolete vector is discarded silently.
func (p *Pipeline) submitEmbedding(chunks []*core.Chunk) {
	if len(chunks) == 0 {
		return
	}

	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		if err := p.embedChunks(context.Background(), chunks); err != nil {
			p.logger.Error("error embedding chunks", "err", err)
		}
	})
	if err != nil {
		p.wg.Done()
		p.logger.Error("error submitting embed job", "err", err)
	}
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []*core.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	result, err := p.embedder.EmbedBatch(ctx, texts, ai.Options{Operation: "ingest", AcceptDegraded: true})
	if err != nil {
		return err
	}

	for i, c := range chunks {
		err := p.chunks.SetVector(ctx, c.Id, result.Provider, result.Vectors[i])
		if errors.Is(err, storage.ErrStaleWrite) {
			p.logger.Debug("discarding vector for re-chunked document", "chunkId", c.Id)
			continue
		}
		if err != nil {
			return fmt.Errorf("set vector for chunk %d: %w", c.Id, err)
		}
	}
	return nil
}
