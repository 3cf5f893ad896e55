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

package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Store represents something for store the hub tokens. Get returns an empty
// string when the key is missing or expired.
type Store interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) (string, error)
	Close() error
}

type entry struct {
	value  string
	expiry time.Time
}

type memoryStore struct {
	mu  sync.Mutex
	now func() time.Time
	m   map[string]entry
}

// NewMemory returns a store which keeps the tokens in memory.
func NewMemory() Store {
	return &memoryStore{
		now: time.Now,
		m:   map[string]entry{},
	}
}

func (s *memoryStore) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expiration <= 0 {
		delete(s.m, key)
		return nil
	}
	s.m[key] = entry{value: value, expiry: s.now().Add(expiration)}
	return nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.m[key]
	if !found {
		return "", nil
	}
	if !s.now().Before(e.expiry) {
		delete(s.m, key)
		return "", nil
	}
	return e.value, nil
}

func (s *memoryStore) Close() error {
	return nil
}
