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


// Package search provides hybrid dense and lexical retrieval over legal
// documents, with a quality gate that turns weak result sets into explicit
// abstentions.
//
// The Engine runs both retrieval paths in parallel:
//   - Dense search using query embeddings, restricted to a single
//     provider's embedding space over active, approved documents
//   - Lexical TF-IDF search that catches exact citations (article
//     numbers, statute references) dense embeddings under-weight
//
// Scores are fused (weighted sum or reciprocal-rank fusion), reranked with
// citation, authority and recency boosts, and filtered through the Gate.
// Abstention is a first-class outcome: a Response with Abstained set is a
// successful search whose evidence was judged too weak to answer from.
package search
