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
	"sync/atomic"
	"time"
)

// Breaker states.
const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

// BreakerConfig holds circuit breaker tuning parameters.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker. Default: 3.
	FailureThreshold int32

	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open probe. Default: 30s.
	ResetTimeout time.Duration

	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker. Default: 2.
	SuccessThreshold int32

	// HalfOpenMax caps concurrent probes while half-open. Default: 1.
	HalfOpenMax int32
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
		HalfOpenMax:      1,
	}
}

// Breaker is a lock-free circuit breaker guarding one provider. State
// transitions use compare-and-swap so concurrent callers never block on a
// shared mutex in the request path.
type Breaker struct {
	cfg BreakerConfig

	state       atomic.Int32
	failures    atomic.Int32
	successes   atomic.Int32
	openedAt    atomic.Int64 // unix nanos of the transition to open
	probesAlive atomic.Int32
}

// NewBreaker creates a closed breaker with the given configuration.
// Zero-value fields fall back to defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = def.HalfOpenMax
	}
	return &Breaker{cfg: cfg}
}

// Allow reports whether a call may proceed. When it returns true the caller
// must follow up with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	switch b.state.Load() {
	case stateClosed:
		return true
	case stateOpen:
		opened := b.openedAt.Load()
		if time.Since(time.Unix(0, opened)) < b.cfg.ResetTimeout {
			return false
		}
		// Reset timeout elapsed, try to become the half-open probe.
		if !b.state.CompareAndSwap(stateOpen, stateHalfOpen) {
			// Someone else transitioned first, fall through to half-open.
			return b.allowHalfOpen()
		}
		b.successes.Store(0)
		b.probesAlive.Store(1)
		return true
	case stateHalfOpen:
		return b.allowHalfOpen()
	}
	return false
}

func (b *Breaker) allowHalfOpen() bool {
	for {
		n := b.probesAlive.Load()
		if n >= b.cfg.HalfOpenMax {
			return false
		}
		if b.probesAlive.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	switch b.state.Load() {
	case stateClosed:
		b.failures.Store(0)
	case stateHalfOpen:
		b.probesAlive.Add(-1)
		if b.successes.Add(1) >= b.cfg.SuccessThreshold {
			if b.state.CompareAndSwap(stateHalfOpen, stateClosed) {
				b.failures.Store(0)
			}
		}
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure() {
	switch b.state.Load() {
	case stateClosed:
		if b.failures.Add(1) >= b.cfg.FailureThreshold {
			if b.state.CompareAndSwap(stateClosed, stateOpen) {
				b.openedAt.Store(time.Now().UnixNano())
			}
		}
	case stateHalfOpen:
		b.probesAlive.Add(-1)
		// A failed probe reopens immediately.
		if b.state.CompareAndSwap(stateHalfOpen, stateOpen) {
			b.openedAt.Store(time.Now().UnixNano())
		}
	}
}

// State returns "closed", "open" or "half-open" for logging.
func (b *Breaker) State() string {
	switch b.state.Load() {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
