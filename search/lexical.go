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


package search

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/lexiqa/ragcore/core"
)

// tokenPattern keeps digits so article numbers and statute references
// survive tokenization.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// LexicalMatch is one scored chunk from the lexical index.
type LexicalMatch struct {
	ChunkId    core.ID
	DocumentId core.ID
	Score      float32
}

type chunkEntry struct {
	documentId core.ID
	terms      map[string]int
	total      int
}

// Index is an in-memory TF-IDF inverted index over chunk text. It exists to
// catch exact citations (article numbers, statute references) that dense
// embeddings under-weight. Safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	chunks   map[core.ID]*chunkEntry
	postings map[string]map[core.ID]struct{}
}

// NewIndex creates an empty lexical index.
func NewIndex() *Index {
	return &Index{
		chunks:   make(map[core.ID]*chunkEntry),
		postings: make(map[string]map[core.ID]struct{}),
	}
}

// Add indexes a chunk, replacing any previous entry under the same id.
func (x *Index) Add(chunk *core.Chunk) {
	if chunk == nil || chunk.Content == "" {
		return
	}
	terms := make(map[string]int)
	total := 0
	for _, tok := range tokenize(chunk.Content) {
		terms[tok]++
		total++
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(chunk.Id)
	if total == 0 {
		return
	}
	x.chunks[chunk.Id] = &chunkEntry{documentId: chunk.DocumentId, terms: terms, total: total}
	for term := range terms {
		posting, ok := x.postings[term]
		if !ok {
			posting = make(map[core.ID]struct{})
			x.postings[term] = posting
		}
		posting[chunk.Id] = struct{}{}
	}
}

// Remove drops a chunk from the index. Removing an unknown id is a no-op.
func (x *Index) Remove(chunkId core.ID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(chunkId)
}

// RemoveDocument drops every chunk belonging to the document, used when a
// document is re-chunked or deactivated.
func (x *Index) RemoveDocument(documentId core.ID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, entry := range x.chunks {
		if entry.documentId == documentId {
			x.removeLocked(id)
		}
	}
}

func (x *Index) removeLocked(chunkId core.ID) {
	entry, ok := x.chunks[chunkId]
	if !ok {
		return
	}
	for term := range entry.terms {
		posting := x.postings[term]
		delete(posting, chunkId)
		if len(posting) == 0 {
			delete(x.postings, term)
		}
	}
	delete(x.chunks, chunkId)
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Search scores indexed chunks against the query and returns up to limit
// matches ordered by descending cosine similarity of the TF-IDF vectors.
func (x *Index) Search(query string, limit int) []LexicalMatch {
	tokens := tokenize(query)
	if len(tokens) == 0 || limit <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.chunks) == 0 {
		return nil
	}
	n := float64(len(x.chunks))

	queryTf := make(map[string]int)
	for _, tok := range tokens {
		queryTf[tok]++
	}

	// Query TF-IDF weights over terms present in the index.
	queryWeights := make(map[string]float64, len(queryTf))
	var queryNorm float64
	candidates := make(map[core.ID]struct{})
	for term, count := range queryTf {
		posting, ok := x.postings[term]
		if !ok {
			continue
		}
		w := (float64(count) / float64(len(tokens))) * x.idf(term, n)
		queryWeights[term] = w
		queryNorm += w * w
		for id := range posting {
			candidates[id] = struct{}{}
		}
	}
	if len(candidates) == 0 || queryNorm == 0 {
		return nil
	}
	queryNorm = math.Sqrt(queryNorm)

	matches := make([]LexicalMatch, 0, len(candidates))
	for id := range candidates {
		entry := x.chunks[id]
		var dot, docNorm float64
		for term, count := range entry.terms {
			w := (float64(count) / float64(entry.total)) * x.idf(term, n)
			docNorm += w * w
			if qw, ok := queryWeights[term]; ok {
				dot += w * qw
			}
		}
		if docNorm == 0 {
			continue
		}
		score := dot / (math.Sqrt(docNorm) * queryNorm)
		if score <= 0 {
			continue
		}
		matches = append(matches, LexicalMatch{
			ChunkId:    id,
			DocumentId: entry.documentId,
			Score:      float32(score),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkId < matches[j].ChunkId
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// idf uses the smoothed formulation so unseen terms never divide by zero.
func (x *Index) idf(term string, n float64) float64 {
	df := float64(len(x.postings[term]))
	return math.Log((1+n)/(1+df)) + 1.0
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, isStop := stopwords[tok]; isStop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

var stopwords = buildStopwords()

func buildStopwords() map[string]struct{} {
	words := []string{
		// Arabic
		"في", "من", "على", "إلى", "عن", "أن", "إن", "ما", "لا", "هذا",
		"هذه", "ذلك", "التي", "الذي", "مع", "كان", "كانت", "قد", "كل",
		"بين", "أو", "ثم", "لم", "لن", "هو", "هي", "بعد", "قبل", "عند",
		"حتى", "إذا", "كما", "لكن", "و",
		// French
		"le", "la", "les", "un", "une", "des", "du", "de", "et", "ou",
		"mais", "donc", "car", "que", "qui", "dont", "où", "ce", "cette",
		"ces", "son", "sa", "ses", "leur", "leurs", "il", "elle", "ils",
		"elles", "ne", "pas", "plus", "est", "sont", "au", "aux", "en",
		"dans", "par", "pour", "sur", "avec", "sans", "sous", "entre",
		"se", "si", "à",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
