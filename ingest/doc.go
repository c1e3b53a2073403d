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


// Package ingest feeds documents into the corpus.
//
// The Pipeline normalizes, chunks and lexically indexes documents
// synchronously, then embeds chunks on a background worker pool so
// ingestion latency never depends on an embedding provider. The
// Backfiller closes the resulting vector gap in batches, with retry and
// progress reporting, and also fills a newly configured provider's
// embedding space over the existing corpus.
package ingest
