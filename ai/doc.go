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


// Package ai provides the embedding provider abstraction.
//
// The package defines the Provider interface and a Service that routes every
// embed call through an ordered fallback chain of providers, guarded by
// per-provider circuit breakers. Callers never talk to a concrete provider
// directly; they ask the Service and receive a Result that says which
// provider served the call, in which embedding space the vector lives, and
// whether the call was degraded (served by a fallback).
//
// # Interfaces
//
//   - Provider: one embedding backend (name, dimension, embed, batch embed)
//   - Cache: optional vector cache consulted before provider calls
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs via langchaingo
//   - ai/ollama: native Ollama endpoint via langchaingo
//   - ai/cache: badger-backed embedding cache
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Guarantees
//
// Every vector returned by the Service is validated: exact provider
// dimensionality, finite components, L2 norm of at least MinVectorNorm.
// Inputs are truncated at MaxInputChars. A batch is always served by a
// single provider so its vectors share one embedding space.
//
// # Usage Example
//
//	primary, _ := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("https://api.openai.com/v1"),
//	    ai.WithModel("text-embedding-3-small"),
//	    ai.WithDimension(1536),
//	))
//	local, _ := ollama.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithModel("embeddinggemma"),
//	    ai.WithDimension(768),
//	))
//
//	svc, err := ai.NewService([]ai.Provider{primary, local},
//	    ai.WithChain("search", primary.Name(), local.Name()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	res, err := svc.Embed(ctx, "الفصل 97 من المجلة الجزائية", ai.Options{Operation: "search"})
package ai
