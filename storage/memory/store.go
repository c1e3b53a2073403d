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


package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/storage"
)

// Store is a map-backed storage.Store implementation for tests and local
// experiments. A single RWMutex serializes writers, which also gives
// ReplaceChunks its all-or-nothing behavior.
type Store struct {
	mu sync.RWMutex

	docs      map[core.ID]*core.Document
	chunks    map[core.ID]*core.Chunk
	byDoc     map[core.ID][]core.ID // document -> ordered chunk ids
	legal     map[string]*core.LegalDocument
	amend     map[core.ID]*core.Amendment
	relations map[core.ID][]*core.DocumentRelation
	runs      map[uuid.UUID]*core.EvalRun
	results   map[uuid.UUID][]*core.EvalResult

	closed bool
}

var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		docs:      make(map[core.ID]*core.Document),
		chunks:    make(map[core.ID]*core.Chunk),
		byDoc:     make(map[core.ID][]core.ID),
		legal:     make(map[string]*core.LegalDocument),
		amend:     make(map[core.ID]*core.Amendment),
		relations: make(map[core.ID][]*core.DocumentRelation),
		runs:      make(map[uuid.UUID]*core.EvalRun),
		results:   make(map[uuid.UUID][]*core.EvalResult),
	}
}

// WithTransaction runs fn under the store's write lock. The in-memory
// backend has no rollback; fn failures simply propagate.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

// --- DocumentRepository ---

func (s *Store) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	cp := *doc
	if cp.Id == 0 {
		cp.Id = core.IDFromContent(cp.SourceURL + "\x00" + cp.Content)
	}
	if _, exists := s.docs[cp.Id]; exists {
		return nil, fmt.Errorf("document %d: %w", cp.Id, storage.ErrDuplicateKey)
	}
	now := time.Now()
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = now
	}
	cp.UpdatedAt = now
	s.docs[cp.Id] = &cp

	out := cp
	return &out, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	existing, ok := s.docs[doc.Id]
	if !ok {
		return fmt.Errorf("document %d: %w", doc.Id, storage.ErrNotFound)
	}
	cp := *doc
	cp.InsertedAt = existing.InsertedAt
	cp.UpdatedAt = time.Now()
	s.docs[doc.Id] = &cp
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *Store) GetDocumentByCitationKey(ctx context.Context, key string) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.docs {
		if doc.CitationKey == key {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("citation key %q: %w", key, storage.ErrNotFound)
}

func (s *Store) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		cp := *doc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (s *Store) SetActive(ctx context.Context, id core.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %d: %w", id, storage.ErrNotFound)
	}
	doc.Active = active
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AddRelation(ctx context.Context, rel *core.DocumentRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	cp := *rel
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.relations[cp.SourceId] = append(s.relations[cp.SourceId], &cp)
	return nil
}

func (s *Store) GetRelations(ctx context.Context, sourceId core.ID) ([]*core.DocumentRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rels := s.relations[sourceId]
	out := make([]*core.DocumentRelation, len(rels))
	for i, r := range rels {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// --- ChunkRepository ---

func (s *Store) ReplaceChunks(ctx context.Context, docId core.ID, chunks []*core.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	doc, ok := s.docs[docId]
	if !ok {
		return fmt.Errorf("document %d: %w", docId, storage.ErrNotFound)
	}

	for _, id := range s.byDoc[docId] {
		delete(s.chunks, id)
	}
	s.byDoc[docId] = nil

	now := time.Now()
	ids := make([]core.ID, 0, len(chunks))
	for _, c := range chunks {
		cp := *c
		cp.DocumentId = docId
		if cp.Id == 0 {
			cp.Id = core.IDFromContent(fmt.Sprintf("%d:%d:%s", docId, cp.Index, cp.Content))
		}
		if cp.InsertedAt.IsZero() {
			cp.InsertedAt = now
		}
		cp.UpdatedAt = now
		if cp.Vectors == nil {
			cp.Vectors = make(map[string][]float32)
		}
		s.chunks[cp.Id] = &cp
		ids = append(ids, cp.Id)
	}
	s.byDoc[docId] = ids
	doc.ChunkCount = len(ids)
	doc.UpdatedAt = now
	return nil
}

func (s *Store) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %d: %w", id, storage.ErrNotFound)
	}
	return copyChunk(c), nil
}

func (s *Store) GetChunks(ctx context.Context, docId core.ID) ([]*core.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byDoc[docId]
	out := make([]*core.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, copyChunk(c))
		}
	}
	return out, nil
}

func (s *Store) ListChunks(ctx context.Context) ([]*core.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Chunk
	for _, c := range s.chunks {
		if doc, ok := s.docs[c.DocumentId]; !ok || !doc.Active || !doc.Approved {
			continue
		}
		out = append(out, copyChunk(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentId != out[j].DocumentId {
			return out[i].DocumentId < out[j].DocumentId
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (s *Store) ChunksMissingVector(ctx context.Context, provider string, limit int) ([]*core.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Chunk
	for _, c := range s.chunks {
		if doc, ok := s.docs[c.DocumentId]; !ok || !doc.Active {
			continue
		}
		if c.HasVector(provider) {
			continue
		}
		out = append(out, copyChunk(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountMissingVector(ctx context.Context, provider string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.chunks {
		if doc, ok := s.docs[c.DocumentId]; !ok || !doc.Active {
			continue
		}
		if !c.HasVector(provider) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetVector(ctx context.Context, chunkId core.ID, provider string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	c, ok := s.chunks[chunkId]
	if !ok {
		return fmt.Errorf("chunk %d: %w", chunkId, storage.ErrStaleWrite)
	}
	if c.Vectors == nil {
		c.Vectors = make(map[string][]float32)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	c.Vectors[provider] = cp
	c.UpdatedAt = time.Now()
	return nil
}

func (s *Store) FindSimilar(ctx context.Context, provider string, vector []float32, minSimilarity float32, limit int) ([]*core.SimilarityMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*core.SimilarityMatch
	for _, c := range s.chunks {
		doc, ok := s.docs[c.DocumentId]
		if !ok || !doc.Active || !doc.Approved {
			continue
		}
		v, ok := c.Vectors[provider]
		if !ok || len(v) != len(vector) {
			continue
		}
		score := cosineSimilarity(vector, v)
		if score >= minSimilarity {
			matches = append(matches, &core.SimilarityMatch{ChunkId: c.Id, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- LegalRepository ---

func (s *Store) AddLegalDocument(ctx context.Context, doc *core.LegalDocument) (*core.LegalDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if doc.CitationKey == "" {
		return nil, core.ErrEmptyCitationKey
	}
	if _, exists := s.legal[doc.CitationKey]; exists {
		return nil, fmt.Errorf("citation key %q: %w", doc.CitationKey, storage.ErrDuplicateKey)
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
	s.legal[cp.CitationKey] = &cp

	out := cp
	return &out, nil
}

func (s *Store) UpdateLegalDocument(ctx context.Context, doc *core.LegalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.legal[doc.CitationKey]
	if !ok {
		return fmt.Errorf("citation key %q: %w", doc.CitationKey, storage.ErrNotFound)
	}
	cp := *doc
	cp.Id = existing.Id
	cp.InsertedAt = existing.InsertedAt
	cp.UpdatedAt = time.Now()
	s.legal[doc.CitationKey] = &cp
	return nil
}

func (s *Store) GetLegalDocument(ctx context.Context, citationKey string) (*core.LegalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.legal[citationKey]
	if !ok {
		return nil, fmt.Errorf("citation key %q: %w", citationKey, storage.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *Store) ListLegalDocuments(ctx context.Context, status core.ConsolidationStatus) ([]*core.LegalDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.LegalDocument
	for _, doc := range s.legal {
		if doc.Status == status {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitationKey < out[j].CitationKey })
	return out, nil
}

func (s *Store) RecordAmendment(ctx context.Context, a *core.Amendment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	cp := *a
	if cp.Id == 0 {
		cp.Id = core.IDFromContent("amendment:" + cp.TargetKey + "\x00" + cp.SourceRef)
	}
	if existing, ok := s.amend[cp.Id]; ok && existing.Validated() {
		return false, nil
	}
	if cp.DetectedAt.IsZero() {
		cp.DetectedAt = time.Now()
	}
	s.amend[cp.Id] = &cp
	return true, nil
}

func (s *Store) ValidateAmendment(ctx context.Context, id core.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.amend[id]
	if !ok {
		return fmt.Errorf("amendment %d: %w", id, storage.ErrNotFound)
	}
	t := at
	a.ValidatedAt = &t
	return nil
}

func (s *Store) GetAmendments(ctx context.Context, targetKey string) ([]*core.Amendment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Amendment
	for _, a := range s.amend {
		if a.TargetKey == targetKey {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

// --- EvalRepository ---

func (s *Store) AddRun(ctx context.Context, run *core.EvalRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	if _, exists := s.runs[run.Id]; exists {
		return fmt.Errorf("run %s: %w", run.Id, storage.ErrDuplicateKey)
	}
	cp := *run
	s.runs[run.Id] = &cp
	return nil
}

func (s *Store) AddResults(ctx context.Context, results []*core.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	for _, r := range results {
		cp := *r
		s.results[r.RunId] = append(s.results[r.RunId], &cp)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*core.EvalRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	cp := *run
	return &cp, nil
}

func (s *Store) LatestRun(ctx context.Context) (*core.EvalRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *core.EvalRun
	for _, run := range s.runs {
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) GetResults(ctx context.Context, runId uuid.UUID) ([]*core.EvalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.results[runId]
	out := make([]*core.EvalResult, len(rows))
	for i, r := range rows {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// --- helpers ---

func copyChunk(c *core.Chunk) *core.Chunk {
	cp := *c
	if c.Vectors != nil {
		cp.Vectors = make(map[string][]float32, len(c.Vectors))
		for k, v := range c.Vectors {
			vv := make([]float32, len(v))
			copy(vv, v)
			cp.Vectors[k] = vv
		}
	}
	return &cp
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
