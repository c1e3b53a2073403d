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


package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

const runColumns = `id, started_at, finished_at, sample_size, errors, recall_at5,
	precision_at5, mrr, citation_accuracy, faithfulness, abstention_rate,
	regression, baseline, notes`

func (s *Store) AddRun(ctx context.Context, run *core.EvalRun) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO eval_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.Id, run.StartedAt, run.FinishedAt, run.SampleSize, run.Errors,
		run.Aggregate.RecallAt5, run.Aggregate.PrecisionAt5, run.Aggregate.MRR,
		run.Aggregate.CitationAccuracy, run.Aggregate.Faithfulness,
		run.Aggregate.AbstentionRate, run.Regression, run.Baseline, run.Notes)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", run.Id, storage.ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) AddResults(ctx context.Context, results []*core.EvalResult) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		for _, r := range results {
			_, err := q.Exec(ctx, `
				INSERT INTO eval_results (run_id, question_id, retrieved_chunks,
					retrieved_docs, recall_at5, precision_at5, reciprocal_rank,
					citation_accuracy, faithfulness, abstained, latency_ms,
					provider, err, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				r.RunId, r.QuestionId, fromIDs(r.RetrievedChunks), fromIDs(r.RetrievedDocs),
				r.RecallAt5, r.PrecisionAt5, r.ReciprocalRank, r.CitationAccuracy,
				r.Faithfulness, r.Abstained, r.LatencyMs, r.Provider, r.Err, r.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert result %s: %w", r.QuestionId, err)
			}
		}
		return nil
	})
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*core.EvalRun, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+runColumns+` FROM eval_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	return run, err
}

func (s *Store) LatestRun(ctx context.Context) (*core.EvalRun, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+runColumns+` FROM eval_runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return run, err
}

func (s *Store) GetResults(ctx context.Context, runId uuid.UUID) ([]*core.EvalResult, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT run_id, question_id, retrieved_chunks, retrieved_docs, recall_at5,
			precision_at5, reciprocal_rank, citation_accuracy, faithfulness,
			abstained, latency_ms, provider, err, created_at
		FROM eval_results WHERE run_id = $1 ORDER BY created_at`,
		runId)
	if err != nil {
		return nil, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var out []*core.EvalResult
	for rows.Next() {
		var (
			r            core.EvalResult
			chunks, docs []int64
		)
		err := rows.Scan(&r.RunId, &r.QuestionId, &chunks, &docs, &r.RecallAt5,
			&r.PrecisionAt5, &r.ReciprocalRank, &r.CitationAccuracy, &r.Faithfulness,
			&r.Abstained, &r.LatencyMs, &r.Provider, &r.Err, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.RetrievedChunks = toIDs(chunks)
		r.RetrievedDocs = toIDs(docs)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*core.EvalRun, error) {
	var run core.EvalRun
	err := row.Scan(&run.Id, &run.StartedAt, &run.FinishedAt, &run.SampleSize,
		&run.Errors, &run.Aggregate.RecallAt5, &run.Aggregate.PrecisionAt5,
		&run.Aggregate.MRR, &run.Aggregate.CitationAccuracy, &run.Aggregate.Faithfulness,
		&run.Aggregate.AbstentionRate, &run.Regression, &run.Baseline, &run.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}
