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


// Package storage provides the storage abstraction layer for the search core.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic, so different backends (PostgreSQL with
// pgvector, in-memory) can be used interchangeably.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - DocumentRepository: corpus documents and their relation graph
//   - ChunkRepository: chunks, per-provider vector slots, similarity search
//   - LegalRepository: consolidation tracking and amendment records
//   - EvalRepository: immutable evaluation runs
//   - Store: all of the above over one backend
//
// # Guarantees
//
// Implementations must uphold the write-path invariants the engine depends
// on: ReplaceChunks is atomic (delete, insert and chunk-count update commit
// together or not at all), SetVector fails with ErrStaleWrite when its chunk
// has been replaced, vector slots are partitioned by provider so embedding
// spaces never mix, and validated amendment records refuse machine overwrites.
//
// # Usage
//
// Production backend:
//
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Tests use the in-memory backend:
//
//	store := memory.NewStore()
//	defer store.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support concurrent
// access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and timeout
// support.
package storage
