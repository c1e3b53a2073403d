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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidAmendment indicates an Amendment failed validation.
	ErrInvalidAmendment = errors.New("invalid amendment")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyCitationKey indicates a required citation key is empty.
	ErrEmptyCitationKey = errors.New("citation key cannot be empty")

	// ErrInvalidCategory indicates an unrecognized Category value.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidLanguage indicates an unrecognized Language value.
	ErrInvalidLanguage = errors.New("invalid language")

	// ErrInvalidStatus indicates an unrecognized ConsolidationStatus value.
	ErrInvalidStatus = errors.New("invalid consolidation status")

	// ErrInvalidTier indicates an unrecognized ConfidenceTier value.
	ErrInvalidTier = errors.New("invalid confidence tier")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")
)
