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

import "errors"

var (
	// ErrLegalRepositoryRequired is returned when a legal repository is not provided.
	ErrLegalRepositoryRequired = errors.New("legal repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrNotComplete is returned when approval is requested for a document
	// whose consolidation is not complete.
	ErrNotComplete = errors.New("consolidation not complete")

	// ErrAlreadyApproved is returned when approval is requested twice.
	ErrAlreadyApproved = errors.New("document already approved")

	// ErrEmptyArticle is returned when an article without a number or text
	// is linked.
	ErrEmptyArticle = errors.New("article requires a number and text")

	// ErrSameDocument is returned when deduplication is asked to resolve a
	// document against itself.
	ErrSameDocument = errors.New("cannot deduplicate a document against itself")

	// ErrCitationKeyMismatch is returned when deduplication candidates do
	// not share a citation key.
	ErrCitationKeyMismatch = errors.New("citation keys differ")
)
