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

const documentColumns = `id, title, citation_key, category, language, content,
	source_url, provenance, active, approved, abrogated, quality_score,
	chunk_count, inserted_at, updated_at`

func (s *Store) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	cp := *doc
	if cp.Id == 0 {
		cp.Id = core.IDFromContent(cp.SourceURL + "\x00" + cp.Content)
	}
	now := time.Now()
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = now
	}
	cp.UpdatedAt = now

	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		int64(cp.Id), cp.Title, cp.CitationKey, string(cp.Category), string(cp.Language),
		cp.Content, cp.SourceURL, cp.Provenance, cp.Active, cp.Approved, cp.Abrogated,
		cp.QualityScore, cp.ChunkCount, cp.InsertedAt, cp.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("document %d: %w", cp.Id, storage.ErrDuplicateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return &cp, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *core.Document) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE documents SET
			title = $2, citation_key = $3, category = $4, language = $5,
			content = $6, source_url = $7, provenance = $8, active = $9,
			approved = $10, abrogated = $11, quality_score = $12,
			chunk_count = $13, updated_at = now()
		WHERE id = $1`,
		int64(doc.Id), doc.Title, doc.CitationKey, string(doc.Category),
		string(doc.Language), doc.Content, doc.SourceURL, doc.Provenance,
		doc.Active, doc.Approved, doc.Abrogated, doc.QualityScore, doc.ChunkCount)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", doc.Id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, int64(id))
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
	}
	return doc, err
}

func (s *Store) GetDocumentByCitationKey(ctx context.Context, key string) (*core.Document, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE citation_key = $1 AND citation_key <> ''`, key)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("citation key %q: %w", key, storage.ErrNotFound)
	}
	return doc, err
}

func (s *Store) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) SetActive(ctx context.Context, id core.ID, active bool) error {
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE documents SET active = $2, updated_at = now() WHERE id = $1`,
		int64(id), active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) AddRelation(ctx context.Context, rel *core.DocumentRelation) error {
	createdAt := rel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO document_relations (source_id, target_id, rel_type, created_at)
		VALUES ($1, $2, $3, $4)`,
		int64(rel.SourceId), int64(rel.TargetId), string(rel.Type), createdAt)
	if err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}
	return nil
}

func (s *Store) GetRelations(ctx context.Context, sourceId core.ID) ([]*core.DocumentRelation, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT source_id, target_id, rel_type, created_at
		FROM document_relations WHERE source_id = $1 ORDER BY created_at`,
		int64(sourceId))
	if err != nil {
		return nil, fmt.Errorf("get relations: %w", err)
	}
	defer rows.Close()

	var out []*core.DocumentRelation
	for rows.Next() {
		var (
			rel      core.DocumentRelation
			src, tgt int64
			relType  string
		)
		if err := rows.Scan(&src, &tgt, &relType, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		rel.SourceId = core.ID(src)
		rel.TargetId = core.ID(tgt)
		rel.Type = core.RelationType(relType)
		out = append(out, &rel)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*core.Document, error) {
	var (
		doc                core.Document
		id                 int64
		category, language string
	)
	err := row.Scan(&id, &doc.Title, &doc.CitationKey, &category, &language,
		&doc.Content, &doc.SourceURL, &doc.Provenance, &doc.Active, &doc.Approved,
		&doc.Abrogated, &doc.QualityScore, &doc.ChunkCount, &doc.InsertedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Id = core.ID(id)
	doc.Category = core.Category(category)
	doc.Language = core.Language(language)
	return &doc, nil
}
