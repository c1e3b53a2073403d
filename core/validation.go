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


package core

import (
	"fmt"
	"time"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - Category must be a known value
//   - Language must be a known value
//
// NOT validated (populated later in the pipeline):
//   - ChunkCount (0 until chunking runs)
//   - CitationKey (documents outside the legal corpus may have none)
//   - ID (0 is valid from database sequences)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if err := ValidateCategory(doc.Category); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if err := ValidateLanguage(doc.Language); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - DocumentId must be set
//
// NOT validated:
//   - Vectors (empty until the embedding backfill runs)
//   - ArticleNumber (empty for non-article chunks)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.DocumentId == 0 {
		return fmt.Errorf("%w: document id is not set", ErrInvalidChunk)
	}

	return nil
}

// ValidateAmendment validates an Amendment according to domain rules.
//
// Validation rules:
//   - TargetKey must not be empty
//   - SourceRef must not be empty
//   - Tier must be a known value
//   - DetectedAt must not be in the future
func ValidateAmendment(a *Amendment) error {
	if a == nil {
		return fmt.Errorf("%w: amendment is nil", ErrInvalidAmendment)
	}

	if a.TargetKey == "" {
		return fmt.Errorf("%w: %w", ErrInvalidAmendment, ErrEmptyCitationKey)
	}

	if a.SourceRef == "" {
		return fmt.Errorf("%w: amending law reference is empty", ErrInvalidAmendment)
	}

	if err := ValidateTier(a.Tier); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAmendment, err)
	}

	if !IsValidTimestamp(a.DetectedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidAmendment, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateCategory validates that a Category has a known value.
func ValidateCategory(c Category) error {
	switch c {
	case CategoryLegislation, CategoryJurisprudence, CategoryDoctrine:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrInvalidCategory, c)
}

// ValidateLanguage validates that a Language has a known value.
func ValidateLanguage(l Language) error {
	switch l {
	case LanguageArabic, LanguageFrench, LanguageMixed:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrInvalidLanguage, l)
}

// ValidateStatus validates that a ConsolidationStatus has a known value.
func ValidateStatus(s ConsolidationStatus) error {
	switch s {
	case StatusPending, StatusPartial, StatusComplete, StatusApproved:
		return nil
	}
	return fmt.Errorf("%w: value %d", ErrInvalidStatus, s)
}

// ValidateTier validates that a ConfidenceTier has a known value.
func ValidateTier(t ConfidenceTier) error {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return nil
	}
	return fmt.Errorf("%w: value %d", ErrInvalidTier, t)
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
