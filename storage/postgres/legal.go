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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

const legalColumns = `id, citation_key, title_ar, title_fr, status, expected_articles,
	books, document_id, source_authority, abrogated, abrogated_by, inserted_at, updated_at`

func (s *Store) AddLegalDocument(ctx context.Context, doc *core.LegalDocument) (*core.LegalDocument, error) {
	if doc.CitationKey == "" {
		return nil, core.ErrEmptyCitationKey
	}

	cp := *doc
	if cp.Id == 0 {
		cp.Id = core.IDFromContent("legal:" + cp.CitationKey)
	}
	now := time.Now()
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = now
	}
	cp.UpdatedAt = now

	books, err := json.Marshal(cp.Books)
	if err != nil {
		return nil, fmt.Errorf("marshal books: %w", err)
	}

	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO legal_documents (`+legalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		int64(cp.Id), cp.CitationKey, cp.TitleAr, cp.TitleFr, cp.Status.String(),
		cp.ExpectedArticles, books, int64(cp.DocumentId), cp.SourceAuthority,
		cp.Abrogated, cp.AbrogatedBy, cp.InsertedAt, cp.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("citation key %q: %w", cp.CitationKey, storage.ErrDuplicateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("insert legal document: %w", err)
	}
	return &cp, nil
}

func (s *Store) UpdateLegalDocument(ctx context.Context, doc *core.LegalDocument) error {
	books, err := json.Marshal(doc.Books)
	if err != nil {
		return fmt.Errorf("marshal books: %w", err)
	}

	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE legal_documents SET
			title_ar = $2, title_fr = $3, status = $4, expected_articles = $5,
			books = $6, document_id = $7, source_authority = $8,
			abrogated = $9, abrogated_by = $10, updated_at = now()
		WHERE citation_key = $1`,
		doc.CitationKey, doc.TitleAr, doc.TitleFr, doc.Status.String(),
		doc.ExpectedArticles, books, int64(doc.DocumentId), doc.SourceAuthority,
		doc.Abrogated, doc.AbrogatedBy)
	if err != nil {
		return fmt.Errorf("update legal document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("citation key %q: %w", doc.CitationKey, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetLegalDocument(ctx context.Context, citationKey string) (*core.LegalDocument, error) {
	row := s.q(ctx).QueryRow(ctx,
		`SELECT `+legalColumns+` FROM legal_documents WHERE citation_key = $1`, citationKey)
	doc, err := scanLegalDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("citation key %q: %w", citationKey, storage.ErrNotFound)
	}
	return doc, err
}

func (s *Store) ListLegalDocuments(ctx context.Context, status core.ConsolidationStatus) ([]*core.LegalDocument, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+legalColumns+` FROM legal_documents WHERE status = $1 ORDER BY citation_key`,
		status.String())
	if err != nil {
		return nil, fmt.Errorf("list legal documents: %w", err)
	}
	defer rows.Close()

	var out []*core.LegalDocument
	for rows.Next() {
		doc, err := scanLegalDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// RecordAmendment upserts a machine-detected amendment. The update arm is
// guarded so a validated row is never overwritten; in that case the write
// is refused with created=false and no error.
func (s *Store) RecordAmendment(ctx context.Context, a *core.Amendment) (bool, error) {
	cp := *a
	if cp.Id == 0 {
		cp.Id = core.IDFromContent("amendment:" + cp.TargetKey + "\x00" + cp.SourceRef)
	}
	if cp.DetectedAt.IsZero() {
		cp.DetectedAt = time.Now()
	}

	tag, err := s.q(ctx).Exec(ctx, `
		INSERT INTO amendments (id, target_key, target_document_id, source_ref,
			source_key, affected_articles, scope, tier, description, validated_at, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			target_document_id = EXCLUDED.target_document_id,
			source_key = EXCLUDED.source_key,
			affected_articles = EXCLUDED.affected_articles,
			scope = EXCLUDED.scope,
			tier = EXCLUDED.tier,
			description = EXCLUDED.description,
			detected_at = EXCLUDED.detected_at
		WHERE amendments.validated_at IS NULL`,
		int64(cp.Id), cp.TargetKey, int64(cp.TargetDocumentId), cp.SourceRef,
		cp.SourceKey, cp.AffectedArticles, string(cp.Scope), cp.Tier.String(),
		cp.Description, cp.ValidatedAt, cp.DetectedAt)
	if err != nil {
		return false, fmt.Errorf("record amendment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ValidateAmendment(ctx context.Context, id core.ID, at time.Time) error {
	tag, err := s.q(ctx).Exec(ctx,
		`UPDATE amendments SET validated_at = $2 WHERE id = $1`, int64(id), at)
	if err != nil {
		return fmt.Errorf("validate amendment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("amendment %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetAmendments(ctx context.Context, targetKey string) ([]*core.Amendment, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, target_key, target_document_id, source_ref, source_key,
			affected_articles, scope, tier, description, validated_at, detected_at
		FROM amendments WHERE target_key = $1 ORDER BY detected_at DESC`,
		targetKey)
	if err != nil {
		return nil, fmt.Errorf("get amendments: %w", err)
	}
	defer rows.Close()

	var out []*core.Amendment
	for rows.Next() {
		var (
			a           core.Amendment
			id, docId   int64
			scope, tier string
		)
		err := rows.Scan(&id, &a.TargetKey, &docId, &a.SourceRef, &a.SourceKey,
			&a.AffectedArticles, &scope, &tier, &a.Description, &a.ValidatedAt, &a.DetectedAt)
		if err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		a.Id = core.ID(id)
		a.TargetDocumentId = core.ID(docId)
		a.Scope = core.AmendmentScope(scope)
		a.Tier = tierFromString(tier)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanLegalDocument(row pgx.Row) (*core.LegalDocument, error) {
	var (
		doc       core.LegalDocument
		id, docId int64
		status    string
		booksJSON []byte
	)
	err := row.Scan(&id, &doc.CitationKey, &doc.TitleAr, &doc.TitleFr, &status,
		&doc.ExpectedArticles, &booksJSON, &docId, &doc.SourceAuthority,
		&doc.Abrogated, &doc.AbrogatedBy, &doc.InsertedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan legal document: %w", err)
	}
	doc.Id = core.ID(id)
	doc.DocumentId = core.ID(docId)
	doc.Status = statusFromString(status)
	if err := json.Unmarshal(booksJSON, &doc.Books); err != nil {
		return nil, fmt.Errorf("unmarshal books: %w", err)
	}
	return &doc, nil
}

func statusFromString(s string) core.ConsolidationStatus {
	switch s {
	case "pending":
		return core.StatusPending
	case "partial":
		return core.StatusPartial
	case "complete":
		return core.StatusComplete
	case "approved":
		return core.StatusApproved
	default:
		return 0
	}
}

func tierFromString(s string) core.ConfidenceTier {
	switch s {
	case "low":
		return core.TierLow
	case "medium":
		return core.TierMedium
	case "high":
		return core.TierHigh
	default:
		return 0
	}
}
