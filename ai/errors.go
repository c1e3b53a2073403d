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


package ai

import "errors"

var (
	// ErrAllProvidersExhausted indicates every provider in the fallback
	// chain failed or was unavailable for the request.
	ErrAllProvidersExhausted = errors.New("all embedding providers exhausted")

	// ErrProviderUnavailable indicates a provider was skipped because its
	// circuit breaker is open.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrUnknownProvider indicates a requested provider name is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrEmptyInput indicates an empty text was submitted for embedding.
	ErrEmptyInput = errors.New("empty input text")

	// ErrDimensionMismatch indicates a vector does not match the provider's
	// declared dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNonFiniteVector indicates a vector contains NaN or Inf components.
	ErrNonFiniteVector = errors.New("embedding contains non-finite values")

	// ErrDegenerateVector indicates a quasi-null vector (norm below minimum).
	ErrDegenerateVector = errors.New("embedding norm below minimum")
)
