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
	"io"
	"log/slog"
	"time"

	"github.com/lexiqa/ragcore/ai"
	"github.com/lexiqa/ragcore/storage"
)

// Config holds configuration for the embedding backfill.
type Config struct {
	// BatchSize is the number of chunks to embed in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed batches
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Report summarizes one backfill run.
type Report struct {
	// Processed is the number of chunks pulled from the backlog, including
	// stale ones whose vectors were discarded.
	Processed int

	// Indexed is the number of chunks that received a vector.
	Indexed int

	// Errors is the number of chunks whose vector write failed.
	Errors int

	// Remaining is the backlog size after the run.
	Remaining int
}

// Backfiller embeds chunks that have no vector for a provider. It closes
// the gap left by failed or interrupted background embed jobs and fills a
// new provider's embedding space over the existing corpus.
type Backfiller struct {
	chunks   storage.ChunkRepository
	embedder BatchEmbedder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewBackfiller creates a backfiller.
// progress: where to write progress output (typically os.Stderr)
func NewBackfiller(chunks storage.ChunkRepository, embedder BatchEmbedder, config *Config, progress io.Writer) (*Backfiller, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Backfiller{
		chunks:   chunks,
		embedder: embedder,
		config:   config,
		progress: progress,
		logger:   slog.Default(),
	}, nil
}

// Run embeds every chunk missing a vector for the provider, in batches,
// pinning the whole run to that provider so one run never mixes embedding
// spaces. A batch whose embed call fails after retries aborts the run; a
// stale vector write is discarded and the chunk counts as processed but
// not indexed.
func (b *Backfiller) Run(ctx context.Context, provider string) (*Report, error) {
	report := &Report{}

	total, err := b.chunks.CountMissingVector(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("count missing vectors: %w", err)
	}
	if total == 0 {
		return report, nil
	}

	tracker := NewProgressTracker(b.progress, total, b.config.ReportInterval)

	// Stale and failed chunks stay in the backlog, so an unbounded loop
	// could spin on them forever. One extra round over the arithmetic
	// minimum absorbs chunks ingested mid-run.
	maxRounds := (total+b.config.BatchSize-1)/b.config.BatchSize + 1

	for round := 0; round < maxRounds; round++ {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		batch, err := b.chunks.ChunksMissingVector(ctx, provider, b.config.BatchSize)
		if err != nil {
			return report, fmt.Errorf("fetch backlog: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		var result *ai.BatchResult
		err = RetryWithBackoff(ctx, func() error {
			r, embedErr := b.embedder.EmbedBatch(ctx, texts, ai.Options{Provider: provider, Operation: "ingest"})
			if embedErr != nil {
				return embedErr
			}
			result = r
			return nil
		}, b.config.MaxRetries, b.config.RetryDelay)
		if err != nil {
			return report, fmt.Errorf("embed batch: %w", err)
		}

		indexedBefore := report.Indexed
		for i, c := range batch {
			report.Processed++
			err := b.chunks.SetVector(ctx, c.Id, result.Provider, result.Vectors[i])
			switch {
			case err == nil:
				report.Indexed++
			case errors.Is(err, storage.ErrStaleWrite):
				b.logger.Debug("discarding vector for re-chunked document", "chunkId", c.Id)
			default:
				report.Errors++
				b.logger.Warn("vector write failed", "chunkId", c.Id, "err", err)
			}
		}
		tracker.Increment(len(batch))

		// A round that indexed nothing means the backlog is all stale or
		// failing; further rounds would refetch the same chunks.
		if report.Indexed == indexedBefore {
			break
		}
	}

	tracker.Finish()

	remaining, err := b.chunks.CountMissingVector(ctx, provider)
	if err != nil {
		b.logger.Warn("could not recount backlog", "provider", provider, "err", err)
	} else {
		report.Remaining = remaining
	}

	b.logger.Info("backfill finished",
		"provider", provider,
		"processed", report.Processed,
		"indexed", report.Indexed,
		"errors", report.Errors,
		"remaining", report.Remaining,
		"elapsed", tracker.Elapsed())
	return report, nil
}
