// Copyright 2021 PairMesh, Inc.
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

// Package backoff decides how long a hub client waits between two failed
// connection attempts.
package backoff

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pairmesh/pairsync/constant"
	"github.com/pkg/errors"
)

// Mode names a retry policy in the configuration.
type Mode string

const (
	ModeFixed       Mode = "fixed"
	ModeExponential Mode = "exponential"
)

// Policy returns the delay to wait before the next attempt, given the count
// of consecutive failures so far. Implementations are safe for concurrent
// use by every hub client.
type Policy interface {
	NextDelay(failures int) time.Duration
}

// lockedRand is a math/rand source shared by several goroutines.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// int63n returns a value in [0, n).
func (r *lockedRand) int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Int63n(n)
}

// Fixed waits a uniformly random delay in [Min, Max] regardless of the
// number of failures.
type Fixed struct {
	Min time.Duration
	Max time.Duration

	rnd *lockedRand
}

// NewFixed returns a fixed random policy. Bounds are swapped when reversed.
func NewFixed(min, max time.Duration) *Fixed {
	if max < min {
		min, max = max, min
	}
	return &Fixed{Min: min, Max: max, rnd: newLockedRand()}
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return NewFixed(constant.RetryDelayMin, constant.RetryDelayMax)
}

func (f *Fixed) NextDelay(_ int) time.Duration {
	return f.Min + time.Duration(f.rnd.int63n(int64(f.Max-f.Min)+1))
}

// Exponential doubles the delay with every failure, capped at Cap, and
// waits a random delay in the upper half of that window.
type Exponential struct {
	Base time.Duration
	Cap  time.Duration

	rnd *lockedRand
}

func NewExponential(base, limit time.Duration) *Exponential {
	if base <= 0 {
		base = time.Second
	}
	if limit < base {
		limit = base
	}
	return &Exponential{Base: base, Cap: limit, rnd: newLockedRand()}
}

func (e *Exponential) NextDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	window := e.Cap
	// Stop shifting before the duration overflows.
	if failures-1 < 32 {
		if d := e.Base << uint(failures-1); d > 0 && d < e.Cap {
			window = d
		}
	}
	half := window / 2
	return half + time.Duration(e.rnd.int63n(int64(window-half)+1))
}

// New builds the policy named by mode. An empty mode selects the fixed
// policy.
func New(mode string, min, max time.Duration) (Policy, error) {
	if min <= 0 {
		min = constant.RetryDelayMin
	}
	if max <= 0 {
		max = constant.RetryDelayMax
	}
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", ModeFixed:
		return NewFixed(min, max), nil
	case ModeExponential:
		return NewExponential(min, max), nil
	default:
		return nil, errors.Errorf("unknown retry mode %q", mode)
	}
}
