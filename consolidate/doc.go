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


// Package consolidate merges crawled page fragments into canonical legal
// documents and keeps them current as the law changes.
//
// It covers three concerns:
//   - The consolidation lifecycle: articles are linked into a
//     book/chapter structure and the document moves through
//     pending, partial and complete. The final step to approved is a
//     manual gate that triggers reindexing of the consolidated text.
//   - The abrogation cascade: amendment references detected in scanned
//     text (Arabic and French phrasing) become amendment records, mark
//     affected articles, and flag total abrogations. Human-validated
//     records are never overwritten by later scans.
//   - Cross-source deduplication: two sources claiming one citation key
//     resolve to a single canonical document by authority and freshness,
//     with the losing source kept as provenance.
package consolidate
