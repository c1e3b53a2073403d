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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Result is the outcome of a single embed call.
type Result struct {
	Vector     []float32
	Provider   string // provider that actually served the call
	Dimension  int
	TokenCount int
	Cached     bool
	// Degraded is true when the call was served by a fallback provider
	// rather than the first provider of the resolved chain.
	Degraded bool
}

// BatchResult is the outcome of a batch embed call.
type BatchResult struct {
	Vectors    [][]float32
	Provider   string
	Dimension  int
	TokenCount int
	Degraded   bool
}

// Options controls provider resolution for a single call.
type Options struct {
	// Operation selects a configured fallback chain ("search", "ingest", ...).
	// Empty selects the default chain.
	Operation string

	// Provider forces a specific provider, bypassing chain resolution.
	// The circuit breaker still applies.
	Provider string

	// AcceptDegraded permits fallback providers to serve the call when the
	// chain's preferred provider fails. When false the first failure ends
	// the call, so vectors never land in an unexpected embedding space.
	AcceptDegraded bool
}

// Service routes embedding requests through an ordered provider chain with
// per-provider circuit breakers. The first provider of the resolved chain is
// the preferred one; any other provider serving the call marks the result
// degraded.
type Service struct {
	providers map[string]Provider
	order     []string            // registration order, the default chain
	chains    map[string][]string // operation name -> provider names
	breakers  map[string]*Breaker
	cache     Cache
	pools     map[string]*ants.Pool
	poolSize  map[string]int
	breakCfg  BreakerConfig
	logger    *slog.Logger

	closeOnce sync.Once
}

// ServiceOption is a functional option for configuring a Service.
type ServiceOption func(*Service) error

// WithChain maps an operation name to an ordered list of provider names.
func WithChain(operation string, providerNames ...string) ServiceOption {
	return func(s *Service) error {
		if operation == "" {
			return errors.New("ai service: operation name cannot be empty")
		}
		if len(providerNames) == 0 {
			return fmt.Errorf("ai service: chain for %q is empty", operation)
		}
		s.chains[operation] = providerNames
		return nil
	}
}

// WithCache attaches an embedding cache consulted before provider calls.
func WithCache(cache Cache) ServiceOption {
	return func(s *Service) error {
		s.cache = cache
		return nil
	}
}

// WithBreakerConfig overrides the circuit breaker tuning for all providers.
func WithBreakerConfig(cfg BreakerConfig) ServiceOption {
	return func(s *Service) error {
		s.breakCfg = cfg
		return nil
	}
}

// WithServiceLogger sets a custom logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) error {
		if logger == nil {
			return errors.New("ai service: logger cannot be nil")
		}
		s.logger = logger.With("component", "embedding-service")
		return nil
	}
}

// WithBatchConcurrency bounds the batch worker pool for one provider.
// The bound is clamped to [2, 10]; default 4.
func WithBatchConcurrency(providerName string, n int) ServiceOption {
	return func(s *Service) error {
		if n < 2 {
			n = 2
		}
		if n > 10 {
			n = 10
		}
		s.poolSize[providerName] = n
		return nil
	}
}

// NewService creates a Service over the given providers. Provider order is
// the default fallback chain.
func NewService(providers []Provider, opts ...ServiceOption) (*Service, error) {
	if len(providers) == 0 {
		return nil, errors.New("ai service: at least one provider is required")
	}

	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		chains:    make(map[string][]string),
		breakers:  make(map[string]*Breaker, len(providers)),
		pools:     make(map[string]*ants.Pool, len(providers)),
		poolSize:  make(map[string]int),
		breakCfg:  DefaultBreakerConfig(),
		logger:    slog.Default().With("component", "embedding-service"),
	}

	for _, p := range providers {
		name := p.Name()
		if name == "" {
			return nil, errors.New("ai service: provider with empty name")
		}
		if _, dup := s.providers[name]; dup {
			return nil, fmt.Errorf("ai service: duplicate provider %q", name)
		}
		s.providers[name] = p
		s.order = append(s.order, name)
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	for op, chain := range s.chains {
		for _, name := range chain {
			if _, ok := s.providers[name]; !ok {
				return nil, fmt.Errorf("ai service: chain %q references %w %q", op, ErrUnknownProvider, name)
			}
		}
	}

	for _, name := range s.order {
		s.breakers[name] = NewBreaker(s.breakCfg)
		size := s.poolSize[name]
		if size == 0 {
			size = 4
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, fmt.Errorf("ai service: create pool for %s: %w", name, err)
		}
		s.pools[name] = pool
	}

	return s, nil
}

// Close releases the batch worker pools and the cache, if any.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, pool := range s.pools {
			pool.Release()
		}
		if s.cache != nil {
			err = s.cache.Close()
		}
	})
	return err
}

// resolveChain returns the ordered provider names for the call.
func (s *Service) resolveChain(opts Options) ([]string, error) {
	if opts.Provider != "" {
		if _, ok := s.providers[opts.Provider]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
		}
		return []string{opts.Provider}, nil
	}
	if opts.Operation != "" {
		if chain, ok := s.chains[opts.Operation]; ok {
			return chain, nil
		}
	}
	return s.order, nil
}

// Embed generates an embedding for text, walking the resolved provider chain
// until one provider returns a valid vector.
func (s *Service) Embed(ctx context.Context, text string, opts Options) (*Result, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	text = Truncate(text)

	chain, err := s.resolveChain(opts)
	if err != nil {
		return nil, err
	}

	var errs []error
	for i, name := range chain {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		provider := s.providers[name]

		if s.cache != nil {
			if vec, ok := s.cache.Get(name, text); ok {
				return &Result{
					Vector:    vec,
					Provider:  name,
					Dimension: len(vec),
					Cached:    true,
					Degraded:  i > 0,
				}, nil
			}
		}

		breaker := s.breakers[name]
		if !breaker.Allow() {
			s.logger.Debug("provider skipped, breaker open", "provider", name)
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrProviderUnavailable))
			if !opts.AcceptDegraded {
				break
			}
			continue
		}

		vector, tokens, err := provider.Embed(ctx, text)
		if err != nil {
			breaker.RecordFailure()
			s.logger.Warn("provider embed failed", "provider", name, "breaker", breaker.State(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if !opts.AcceptDegraded {
				break
			}
			continue
		}

		if err := ValidateVector(vector, provider.Dimension()); err != nil {
			breaker.RecordFailure()
			s.logger.Warn("provider returned invalid vector", "provider", name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if !opts.AcceptDegraded {
				break
			}
			continue
		}
		if SuspiciousNorm(vector) {
			s.logger.Warn("vector norm unusually large", "provider", name, "norm", VectorNorm(vector))
		}

		breaker.RecordSuccess()

		if s.cache != nil {
			if err := s.cache.Put(name, text, vector); err != nil {
				s.logger.Debug("cache put failed", "provider", name, "err", err)
			}
		}

		if i > 0 {
			s.logger.Info("embed served by fallback provider", "provider", name, "preferred", chain[0])
		}

		return &Result{
			Vector:     vector,
			Provider:   name,
			Dimension:  provider.Dimension(),
			TokenCount: tokens,
			Degraded:   i > 0,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, errors.Join(errs...))
}

// EmbedBatch embeds texts in parallel on the serving provider's worker pool.
// The whole batch is served by a single provider; partial per-provider
// results are never mixed, so all vectors share one embedding space.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, opts Options) (*BatchResult, error) {
	if len(texts) == 0 {
		return &BatchResult{}, nil
	}

	chain, err := s.resolveChain(opts)
	if err != nil {
		return nil, err
	}

	var errs []error
	for i, name := range chain {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		breaker := s.breakers[name]
		if !breaker.Allow() {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrProviderUnavailable))
			if !opts.AcceptDegraded {
				break
			}
			continue
		}

		vectors, tokens, err := s.embedBatchOn(ctx, name, texts)
		if err != nil {
			breaker.RecordFailure()
			s.logger.Warn("batch embed failed", "provider", name, "count", len(texts), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if !opts.AcceptDegraded {
				break
			}
			continue
		}

		breaker.RecordSuccess()
		return &BatchResult{
			Vectors:    vectors,
			Provider:   name,
			Dimension:  s.providers[name].Dimension(),
			TokenCount: tokens,
			Degraded:   i > 0,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, errors.Join(errs...))
}

// embedBatchOn runs sub-batches on the provider's bounded pool.
func (s *Service) embedBatchOn(ctx context.Context, name string, texts []string) ([][]float32, int, error) {
	provider := s.providers[name]
	pool := s.pools[name]

	const subBatch = 16

	type job struct {
		start int
		texts []string
	}
	var jobs []job
	for start := 0; start < len(texts); start += subBatch {
		end := min(start+subBatch, len(texts))
		truncated := make([]string, end-start)
		for i, t := range texts[start:end] {
			truncated[i] = Truncate(t)
		}
		jobs = append(jobs, job{start: start, texts: truncated})
	}

	vectors := make([][]float32, len(texts))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		tokensSum int
	)

	for _, j := range jobs {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = ctx.Err()
				}
				mu.Unlock()
				return
			}

			vecs, tokens, err := provider.EmbedBatch(ctx, j.texts)
			if err == nil && len(vecs) != len(j.texts) {
				err = fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(j.texts))
			}
			if err == nil {
				for _, v := range vecs {
					if verr := ValidateVector(v, provider.Dimension()); verr != nil {
						err = verr
						break
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(vectors[j.start:], vecs)
			tokensSum += tokens
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}
	return vectors, tokensSum, nil
}
