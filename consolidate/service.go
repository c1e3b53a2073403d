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


package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

// Reindexer turns an approved legal document into an indexed corpus
// document: it chunks and embeds the consolidated text, removes stale
// page-level entries, and returns the corpus document id.
type Reindexer interface {
	Reindex(ctx context.Context, doc *core.LegalDocument) (core.ID, error)
}

// Service drives the consolidation lifecycle, the abrogation cascade and
// cross-source deduplication.
type Service struct {
	legal     storage.LegalRepository
	documents storage.DocumentRepository
	reindexer Reindexer
	tiers     TierPolicy
	authority map[string]float64
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithReindexer sets the callback invoked on approval. Without one,
// approval still transitions the state but nothing is indexed.
func WithReindexer(r Reindexer) Option {
	return func(s *Service) error {
		s.reindexer = r
		return nil
	}
}

// WithTierPolicy replaces the confidence tier thresholds.
func WithTierPolicy(p TierPolicy) Option {
	return func(s *Service) error {
		s.tiers = p
		return nil
	}
}

// WithAuthorityScores sets per-host authority used by deduplication.
// Hosts absent from the map score DefaultAuthority.
func WithAuthorityScores(scores map[string]float64) Option {
	return func(s *Service) error {
		s.authority = scores
		return nil
	}
}

// DefaultAuthority is the score for sources without a configured one.
const DefaultAuthority = 0.5

// NewService creates a consolidation service.
func NewService(legal storage.LegalRepository, documents storage.DocumentRepository, opts ...Option) (*Service, error) {
	if legal == nil {
		return nil, ErrLegalRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	s := &Service{
		legal:     legal,
		documents: documents,
		tiers:     DefaultTierPolicy(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register creates a pending legal document for a citation key. Returns
// the existing record when the key is already tracked.
func (s *Service) Register(ctx context.Context, citationKey, titleAr, titleFr string, expectedArticles int) (*core.LegalDocument, error) {
	existing, err := s.legal.GetLegalDocument(ctx, citationKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return s.legal.AddLegalDocument(ctx, &core.LegalDocument{
		CitationKey:      citationKey,
		TitleAr:          titleAr,
		TitleFr:          titleFr,
		Status:           core.StatusPending,
		ExpectedArticles: expectedArticles,
		SourceAuthority:  DefaultAuthority,
	})
}

// LinkArticle attaches one article to a legal document's structure and
// advances the consolidation status. Linking the same article number again
// replaces its text, so re-crawls refresh rather than duplicate.
func (s *Service) LinkArticle(ctx context.Context, citationKey string, article core.ArticleUnit) (*core.LegalDocument, error) {
	if article.Number == "" || strings.TrimSpace(article.Text) == "" {
		return nil, ErrEmptyArticle
	}
	doc, err := s.legal.GetLegalDocument(ctx, citationKey)
	if err != nil {
		return nil, err
	}

	article.Text = CleanArticleText(article.Text)
	if article.WordCount == 0 {
		article.WordCount = len(strings.Fields(article.Text))
	}

	articles := flattenArticles(doc)
	replaced := false
	for i := range articles {
		if articles[i].Number == article.Number {
			articles[i] = article
			replaced = true
			break
		}
	}
	if !replaced {
		articles = append(articles, article)
	}
	doc.Books = AssembleStructure(articles)
	s.refreshStatus(doc)

	if err := s.legal.UpdateLegalDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Debug("article linked",
		"citationKey", citationKey,
		"article", article.Number,
		"status", doc.Status.String(),
		"linked", doc.LinkedArticles())
	return doc, nil
}

// refreshStatus recomputes the automatic part of the state machine.
// Approval is manual and never granted or revoked here.
func (s *Service) refreshStatus(doc *core.LegalDocument) {
	if doc.Status == core.StatusApproved {
		return
	}
	switch {
	case doc.LinkedArticles() == 0:
		doc.Status = core.StatusPending
	case doc.ExpectedArticles > 0 &&
		doc.LinkedArticles() >= doc.ExpectedArticles &&
		len(MissingArticles(doc)) == 0:
		doc.Status = core.StatusComplete
	default:
		doc.Status = core.StatusPartial
	}
}

// Approve is the manual gate from complete to approved. It makes the
// document search-visible by reindexing the consolidated text.
func (s *Service) Approve(ctx context.Context, citationKey string) (*core.LegalDocument, error) {
	doc, err := s.legal.GetLegalDocument(ctx, citationKey)
	if err != nil {
		return nil, err
	}
	if doc.Status == core.StatusApproved {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyApproved, citationKey)
	}
	if doc.Status != core.StatusComplete {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotComplete, citationKey, doc.Status.String())
	}

	if s.reindexer != nil {
		documentId, err := s.reindexer.Reindex(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("reindex %s: %w", citationKey, err)
		}
		doc.DocumentId = documentId
	}

	doc.Status = core.StatusApproved
	if err := s.legal.UpdateLegalDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("legal document approved", "citationKey", citationKey, "documentId", uint64(doc.DocumentId))
	return doc, nil
}

// ApprovalReport is the per-item outcome of a batch approval.
type ApprovalReport struct {
	CitationKey string
	Err         error
}

// ApproveBatch approves each key independently. One failure never aborts
// the rest of the batch.
func (s *Service) ApproveBatch(ctx context.Context, citationKeys []string) []ApprovalReport {
	reports := make([]ApprovalReport, 0, len(citationKeys))
	for _, key := range citationKeys {
		_, err := s.Approve(ctx, key)
		if err != nil {
			s.logger.Warn("batch approval item failed", "citationKey", key, "err", err)
		}
		reports = append(reports, ApprovalReport{CitationKey: key, Err: err})
	}
	return reports
}

// CascadeResult summarizes one abrogation scan.
type CascadeResult struct {
	Amendments        []DetectedAmendment
	AmendmentsCreated int
	Skipped           int // re-detections of validated records
	DocumentsUpdated  int
	Errors            []string
}

// ScanAbrogations detects amendment references in a text and cascades them
// onto the target legal document: records amendments, marks abrogations,
// flags modified articles in the structure, and links the amending law in
// the relation graph. Per-amendment failures are isolated.
func (s *Service) ScanAbrogations(ctx context.Context, text, targetKey string) (*CascadeResult, error) {
	result := &CascadeResult{Amendments: DetectAmendments(text)}
	if len(result.Amendments) == 0 || targetKey == "" {
		return result, nil
	}

	doc, err := s.legal.GetLegalDocument(ctx, targetKey)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", targetKey, err)
	}

	for _, detected := range result.Amendments {
		if err := s.applyAmendment(ctx, doc, detected, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", detected.Reference, err))
			s.logger.Error("abrogation cascade item failed", "reference", detected.Reference, "err", err)
		}
	}

	if err := s.legal.UpdateLegalDocument(ctx, doc); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) applyAmendment(ctx context.Context, doc *core.LegalDocument, detected DetectedAmendment, result *CascadeResult) error {
	description := fmt.Sprintf("modification des articles %s par %s",
		strings.Join(detected.AffectedArticles, ", "), detected.Reference)
	if detected.TotalAbrogation {
		description = "abrogation totale par " + detected.Reference
	}

	created, err := s.legal.RecordAmendment(ctx, &core.Amendment{
		TargetKey:        doc.CitationKey,
		TargetDocumentId: doc.DocumentId,
		SourceRef:        detected.Reference,
		SourceKey:        detected.SourceKey(),
		AffectedArticles: detected.AffectedArticles,
		Scope:            detected.Scope,
		Tier:             s.tiers.Tier(detected.Confidence),
		Description:      description,
		DetectedAt:       time.Now(),
	})
	if err != nil {
		return err
	}
	if !created {
		result.Skipped++
		return nil
	}
	result.AmendmentsCreated++

	updated := false
	if detected.TotalAbrogation && !doc.Abrogated {
		doc.Abrogated = true
		doc.AbrogatedBy = detected.Reference
		updated = true
	}
	if markModified(doc, detected.AffectedArticles, detected.Reference) {
		updated = true
	}
	if updated {
		result.DocumentsUpdated++
	}

	// Record the edge when the amending law is itself in the corpus.
	if doc.DocumentId != 0 {
		if amending, err := s.documents.GetDocumentByCitationKey(ctx, detected.SourceKey()); err == nil {
			relation := core.RelationAmends
			if detected.TotalAbrogation {
				relation = core.RelationSupersedes
			}
			rel := &core.DocumentRelation{
				SourceId: amending.Id,
				TargetId: doc.DocumentId,
				Type:     relation,
			}
			if err := s.documents.AddRelation(ctx, rel); err != nil {
				s.logger.Warn("failed to record amendment relation", "source", detected.SourceKey(), "err", err)
			}
		}
	}
	return nil
}

// ValidateAmendment records human confirmation of an amendment. Only this
// path may change a validated record.
func (s *Service) ValidateAmendment(ctx context.Context, amendmentId core.ID) error {
	return s.legal.ValidateAmendment(ctx, amendmentId, time.Now())
}

// ResolveDuplicate picks the canonical document between two sources
// claiming the same citation key. The higher-authority source wins, ties
// go to the most recently updated content. The loser is deactivated and
// its URL appended to the winner's provenance so the trail stays
// auditable.
func (s *Service) ResolveDuplicate(ctx context.Context, firstId, secondId core.ID) (*core.Document, error) {
	if firstId == secondId {
		return nil, ErrSameDocument
	}
	first, err := s.documents.GetDocument(ctx, firstId)
	if err != nil {
		return nil, err
	}
	second, err := s.documents.GetDocument(ctx, secondId)
	if err != nil {
		return nil, err
	}
	if first.CitationKey == "" || first.CitationKey != second.CitationKey {
		return nil, fmt.Errorf("%w: %q vs %q", ErrCitationKeyMismatch, first.CitationKey, second.CitationKey)
	}

	winner, loser := first, second
	winScore, loseScore := s.authorityOf(first), s.authorityOf(second)
	switch {
	case loseScore > winScore:
		winner, loser = second, first
	case loseScore == winScore && second.UpdatedAt.After(first.UpdatedAt):
		winner, loser = second, first
	}

	winner.Provenance = append(winner.Provenance, loser.SourceURL)
	winner.Provenance = append(winner.Provenance, loser.Provenance...)
	if err := s.documents.UpdateDocument(ctx, winner); err != nil {
		return nil, err
	}
	if err := s.documents.SetActive(ctx, loser.Id, false); err != nil {
		return nil, err
	}

	s.logger.Info("duplicate resolved",
		"citationKey", winner.CitationKey,
		"winner", uint64(winner.Id),
		"loser", uint64(loser.Id))
	return winner, nil
}

func (s *Service) authorityOf(doc *core.Document) float64 {
	if score, ok := s.authority[hostOf(doc.SourceURL)]; ok {
		return score
	}
	return DefaultAuthority
}

func hostOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func flattenArticles(doc *core.LegalDocument) []core.ArticleUnit {
	var articles []core.ArticleUnit
	for _, book := range doc.Books {
		for _, chapter := range book.Chapters {
			articles = append(articles, chapter.Articles...)
		}
	}
	return articles
}

func markModified(doc *core.LegalDocument, affected []string, reference string) bool {
	if len(affected) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(affected))
	for _, a := range affected {
		set[a] = struct{}{}
	}
	modified := false
	for bi := range doc.Books {
		for ci := range doc.Books[bi].Chapters {
			articles := doc.Books[bi].Chapters[ci].Articles
			for ai := range articles {
				if _, ok := set[articles[ai].Number]; ok {
					articles[ai].Modified = true
					articles[ai].AmendedBy = reference
					modified = true
				}
			}
		}
	}
	return modified
}
