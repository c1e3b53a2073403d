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


package evals

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/search"
	"github.com/lexiqa/ragcore/storage"
)

const (
	// DefaultRegressionDelta flags a run when recall@5 or MRR drops by
	// more than this against the preceding run.
	DefaultRegressionDelta = 0.05

	// evalK is the cutoff for recall and precision.
	evalK = 5
)

var (
	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrEvalRepositoryRequired is returned when an eval repository is not provided.
	ErrEvalRepositoryRequired = errors.New("eval repository required")

	// ErrEmptyGoldSet is returned when a run is requested with no questions.
	ErrEmptyGoldSet = errors.New("gold set is empty")
)

// GoldQuestion is one labeled question of the gold set.
type GoldQuestion struct {
	Id                string
	Question          string
	Language          core.Language
	RelevantDocs      []core.ID
	ExpectedCitations []string
	KeyPoints         []string
}

// Searcher is the slice of the search engine the harness calls. It is
// exactly the caller-facing surface, so eval numbers measure what users
// get.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Response, error)
}

// Harness runs the gold set through the search engine and persists
// immutable per-question rows plus a run summary.
type Harness struct {
	searcher Searcher
	evals    storage.EvalRepository
	delta    float64
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) error {
		if logger == nil {
			logger = slog.Default()
		}
		h.logger = logger
		return nil
	}
}

// WithRegressionDelta replaces the default regression threshold.
func WithRegressionDelta(delta float64) Option {
	return func(h *Harness) error {
		if delta > 0 {
			h.delta = delta
		}
		return nil
	}
}

// NewHarness creates an evaluation harness.
func NewHarness(searcher Searcher, evals storage.EvalRepository, opts ...Option) (*Harness, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if evals == nil {
		return nil, ErrEvalRepositoryRequired
	}
	h := &Harness{
		searcher: searcher,
		evals:    evals,
		delta:    DefaultRegressionDelta,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Run evaluates up to sampleSize questions of the gold set. A failing
// question is recorded with its error and never aborts the run; only
// context cancellation does. The run is compared against the immediately
// preceding one and flagged when recall@5 or MRR regressed beyond the
// configured delta.
func (h *Harness) Run(ctx context.Context, goldSet []GoldQuestion, sampleSize int) (*core.EvalRun, error) {
	if len(goldSet) == 0 {
		return nil, ErrEmptyGoldSet
	}
	sample := goldSet
	if sampleSize > 0 && sampleSize < len(sample) {
		sample = sample[:sampleSize]
	}

	baseline, err := h.evals.LatestRun(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	run := &core.EvalRun{
		Id:         uuid.New(),
		StartedAt:  time.Now(),
		SampleSize: len(sample),
	}

	results := make([]*core.EvalResult, 0, len(sample))
	for _, q := range sample {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row := h.evaluate(ctx, run.Id, q)
		if row.Err != "" {
			run.Errors++
			h.logger.Warn("gold question failed", "question", q.Id, "err", row.Err)
		}
		results = append(results, row)
	}

	run.Aggregate = aggregate(results)
	run.FinishedAt = time.Now()

	if baseline != nil {
		run.Baseline = baseline.Id
		run.Regression = Regressed(run.Aggregate, baseline.Aggregate, h.delta)
	}

	if err := h.evals.AddRun(ctx, run); err != nil {
		return nil, err
	}
	if err := h.evals.AddResults(ctx, results); err != nil {
		return nil, err
	}

	h.logger.Info("eval run finished",
		"runId", run.Id.String(),
		"sample", run.SampleSize,
		"errors", run.Errors,
		"recallAt5", run.Aggregate.RecallAt5,
		"mrr", run.Aggregate.MRR,
		"regression", run.Regression)
	return run, nil
}

func (h *Harness) evaluate(ctx context.Context, runId uuid.UUID, q GoldQuestion) *core.EvalResult {
	row := &core.EvalResult{
		RunId:      runId,
		QuestionId: q.Id,
		CreatedAt:  time.Now(),
	}

	start := time.Now()
	resp, err := h.searcher.Search(ctx, q.Question, search.Options{Limit: evalK, Language: q.Language})
	row.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		row.Err = err.Error()
		return row
	}

	row.Abstained = resp.Abstained
	row.Provider = resp.Provider

	keys := make([]string, 0, len(resp.Hits))
	snippets := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		row.RetrievedChunks = append(row.RetrievedChunks, hit.ChunkId)
		row.RetrievedDocs = append(row.RetrievedDocs, hit.DocumentId)
		keys = append(keys, hit.CitationKey)
		snippets = append(snippets, hit.Snippet)
	}

	row.RecallAt5 = RecallAtK(row.RetrievedDocs, q.RelevantDocs, evalK)
	row.PrecisionAt5 = PrecisionAtK(row.RetrievedDocs, q.RelevantDocs, evalK)
	row.ReciprocalRank = ReciprocalRank(row.RetrievedDocs, q.RelevantDocs)
	row.CitationAccuracy = CitationAccuracy(keys, q.ExpectedCitations)
	row.Faithfulness = Faithfulness(snippets, q.KeyPoints)
	return row
}

// Regressed reports whether current recall@5 or MRR dropped by more than
// delta against the baseline.
func Regressed(current, baseline core.EvalAggregate, delta float64) bool {
	return baseline.RecallAt5-current.RecallAt5 > delta ||
		baseline.MRR-current.MRR > delta
}

// aggregate averages metrics over rows that produced an answer. Failed
// rows are excluded; abstentions count toward the abstention rate and
// score zero on retrieval metrics.
func aggregate(results []*core.EvalResult) core.EvalAggregate {
	var agg core.EvalAggregate
	n := 0
	abstained := 0
	for _, r := range results {
		if r.Err != "" {
			continue
		}
		n++
		if r.Abstained {
			abstained++
		}
		agg.RecallAt5 += r.RecallAt5
		agg.PrecisionAt5 += r.PrecisionAt5
		agg.MRR += r.ReciprocalRank
		agg.CitationAccuracy += r.CitationAccuracy
		agg.Faithfulness += r.Faithfulness
	}
	if n == 0 {
		return core.EvalAggregate{}
	}
	f := float64(n)
	agg.RecallAt5 /= f
	agg.PrecisionAt5 /= f
	agg.MRR /= f
	agg.CitationAccuracy /= f
	agg.Faithfulness /= f
	agg.AbstentionRate = float64(abstained) / f
	return agg
}
