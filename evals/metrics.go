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


package evals

import (
	"strings"

	"github.com/lexiqa/ragcore/core"
)

// RecallAtK is the share of relevant ids found in the first k retrieved.
// Returns 0 when no relevant ids are defined.
func RecallAtK(retrieved, relevant []core.ID, k int) float64 {
	if len(relevant) == 0 {
		return 0
	}
	hits := intersect(topK(retrieved, k), relevant)
	return float64(hits) / float64(len(relevant))
}

// PrecisionAtK is the share of the first k retrieved ids that are relevant.
func PrecisionAtK(retrieved, relevant []core.ID, k int) float64 {
	if k <= 0 {
		return 0
	}
	hits := intersect(topK(retrieved, k), relevant)
	return float64(hits) / float64(k)
}

// ReciprocalRank is 1/rank of the first relevant id in the retrieved list,
// 0 when none appears.
func ReciprocalRank(retrieved, relevant []core.ID) float64 {
	set := idSet(relevant)
	for i, id := range retrieved {
		if _, ok := set[id]; ok {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// CitationAccuracy is the share of expected citation keys present among
// the retrieved hits. A question without expected citations scores 1.
func CitationAccuracy(retrievedKeys, expectedKeys []string) float64 {
	if len(expectedKeys) == 0 {
		return 1
	}
	got := make(map[string]struct{}, len(retrievedKeys))
	for _, k := range retrievedKeys {
		got[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
	}
	matched := 0
	for _, k := range expectedKeys {
		if _, ok := got[strings.ToLower(strings.TrimSpace(k))]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(expectedKeys))
}

// Faithfulness measures how well the retrieved snippets support the
// expected key points. A key point counts as covered when at least half
// of its content words appear in the snippets. A question without key
// points scores 1.
func Faithfulness(snippets, keyPoints []string) float64 {
	if len(keyPoints) == 0 {
		return 1
	}
	corpus := make(map[string]struct{})
	for _, s := range snippets {
		for _, w := range contentWords(s) {
			corpus[w] = struct{}{}
		}
	}
	covered := 0
	for _, point := range keyPoints {
		words := contentWords(point)
		if len(words) == 0 {
			covered++
			continue
		}
		hits := 0
		for _, w := range words {
			if _, ok := corpus[w]; ok {
				hits++
			}
		}
		if float64(hits) >= 0.5*float64(len(words)) {
			covered++
		}
	}
	return float64(covered) / float64(len(keyPoints))
}

func topK(ids []core.ID, k int) []core.ID {
	if k > 0 && len(ids) > k {
		return ids[:k]
	}
	return ids
}

func intersect(retrieved, relevant []core.ID) int {
	set := idSet(relevant)
	seen := make(map[core.ID]struct{}, len(retrieved))
	hits := 0
	for _, id := range retrieved {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := set[id]; ok {
			hits++
		}
	}
	return hits
}

func idSet(ids []core.ID) map[core.ID]struct{} {
	set := make(map[core.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func contentWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?؟،؛\"'()[]«»")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}
