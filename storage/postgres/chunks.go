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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

const chunkColumns = `id, document_id, idx, content, word_count, char_count,
	start_offset, end_offset, article_number, inserted_at, updated_at`

// ReplaceChunks swaps a document's chunks in one transaction. The cascade
// on chunk_embeddings drops the old vectors with their chunks; embeds
// still in flight for those chunks will come back as stale writes.
//
// Loaded chunks never carry their Vectors map; vectors stay inside
// Postgres and are reached through SetVector and FindSimilar.
func (s *Store) ReplaceChunks(ctx context.Context, docId core.ID, chunks []*core.Chunk) error {
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		q := s.q(ctx)

		tag, err := q.Exec(ctx, `
			UPDATE documents SET chunk_count = $2, updated_at = now() WHERE id = $1`,
			int64(docId), len(chunks))
		if err != nil {
			return fmt.Errorf("update chunk count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("document %d: %w", docId, storage.ErrNotFound)
		}

		if _, err := q.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, int64(docId)); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}

		now := time.Now()
		for _, c := range chunks {
			id := c.Id
			if id == 0 {
				id = core.IDFromContent(fmt.Sprintf("%d:%d:%s", docId, c.Index, c.Content))
			}
			insertedAt := c.InsertedAt
			if insertedAt.IsZero() {
				insertedAt = now
			}
			_, err := q.Exec(ctx, `
				INSERT INTO chunks (`+chunkColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				int64(id), int64(docId), c.Index, c.Content, c.WordCount, c.CharCount,
				c.StartOffset, c.EndOffset, c.ArticleNumber, insertedAt, now)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, int64(id))
	chunk, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk %d: %w", id, storage.ErrNotFound)
	}
	return chunk, err
}

func (s *Store) GetChunks(ctx context.Context, docId core.ID) ([]*core.Chunk, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 ORDER BY idx`,
		int64(docId))
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	return collectChunks(rows)
}

func (s *Store) ListChunks(ctx context.Context) ([]*core.Chunk, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+prefixedChunkColumns+`
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.active AND d.approved
		ORDER BY c.document_id, c.idx`)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return collectChunks(rows)
}

func (s *Store) ChunksMissingVector(ctx context.Context, provider string, limit int) ([]*core.Chunk, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+prefixedChunkColumns+`
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		LEFT JOIN chunk_embeddings e ON e.chunk_id = c.id AND e.provider = $1
		WHERE d.active AND e.chunk_id IS NULL
		ORDER BY c.id
		LIMIT $2`,
		provider, limitArg)
	if err != nil {
		return nil, fmt.Errorf("fetch missing vectors: %w", err)
	}
	return collectChunks(rows)
}

func (s *Store) CountMissingVector(ctx context.Context, provider string) (int, error) {
	var n int
	err := s.q(ctx).QueryRow(ctx, `
		SELECT count(*)
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		LEFT JOIN chunk_embeddings e ON e.chunk_id = c.id AND e.provider = $1
		WHERE d.active AND e.chunk_id IS NULL`,
		provider).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count missing vectors: %w", err)
	}
	return n, nil
}

func (s *Store) SetVector(ctx context.Context, chunkId core.ID, provider string, vector []float32) error {
	tag, err := s.q(ctx).Exec(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, provider, embedding, updated_at)
		SELECT $1, $2, $3::vector, now()
		WHERE EXISTS (SELECT 1 FROM chunks WHERE id = $1)
		ON CONFLICT (chunk_id, provider)
		DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
		int64(chunkId), provider, formatVector(vector))
	if err != nil {
		return fmt.Errorf("set vector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %d: %w", chunkId, storage.ErrStaleWrite)
	}
	return nil
}

func (s *Store) FindSimilar(ctx context.Context, provider string, vector []float32, minSimilarity float32, limit int) ([]*core.SimilarityMatch, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT c.id, 1 - (e.embedding <=> $2::vector) AS similarity
		FROM chunk_embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE e.provider = $1
		  AND d.active AND d.approved
		  AND 1 - (e.embedding <=> $2::vector) >= $3
		ORDER BY e.embedding <=> $2::vector
		LIMIT $4`,
		provider, formatVector(vector), minSimilarity, limitArg)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []*core.SimilarityMatch
	for rows.Next() {
		var (
			id    int64
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, &core.SimilarityMatch{ChunkId: core.ID(id), Score: float32(score)})
	}
	return out, rows.Err()
}

const prefixedChunkColumns = `c.id, c.document_id, c.idx, c.content, c.word_count,
	c.char_count, c.start_offset, c.end_offset, c.article_number, c.inserted_at, c.updated_at`

func scanChunk(row pgx.Row) (*core.Chunk, error) {
	var (
		chunk     core.Chunk
		id, docId int64
	)
	err := row.Scan(&id, &docId, &chunk.Index, &chunk.Content, &chunk.WordCount,
		&chunk.CharCount, &chunk.StartOffset, &chunk.EndOffset, &chunk.ArticleNumber,
		&chunk.InsertedAt, &chunk.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	chunk.Id = core.ID(id)
	chunk.DocumentId = core.ID(docId)
	return &chunk, nil
}

func collectChunks(rows pgx.Rows) ([]*core.Chunk, error) {
	defer rows.Close()
	var out []*core.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}
