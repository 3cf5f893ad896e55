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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	s := NewMemory().(*memoryStore)
	s.now = func() time.Time { return now }

	a.Nil(s.Set(ctx, "k1", "v1", time.Minute))
	a.Nil(s.Set(ctx, "k2", "v2", 0))

	v, err := s.Get(ctx, "k1")
	a.Nil(err)
	a.Equal("v1", v)

	v, err = s.Get(ctx, "k2")
	a.Nil(err)
	a.Empty(v)

	now = now.Add(time.Minute)
	v, err = s.Get(ctx, "k1")
	a.Nil(err)
	a.Empty(v)

	a.Nil(s.Set(ctx, "k3", "v3", time.Hour))
	a.Nil(s.Del(ctx, "k3", "missing"))
	v, _ = s.Get(ctx, "k3")
	a.Empty(v)
}

func TestLedisStore(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()

	dir, err := ioutil.TempDir("", "tokenstore")
	a.Nil(err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "tokens")
	s, err := OpenLedis(path)
	a.Nil(err)

	a.Nil(s.Set(ctx, "token:0", "abc", time.Hour))
	v, err := s.Get(ctx, "token:0")
	a.Nil(err)
	a.Equal("abc", v)

	v, err = s.Get(ctx, "token:1")
	a.Nil(err)
	a.Empty(v)

	a.Nil(s.Del(ctx, "token:0"))
	v, err = s.Get(ctx, "token:0")
	a.Nil(err)
	a.Empty(v)

	a.Nil(s.Set(ctx, "token:2", "persisted", time.Hour))
	a.Nil(s.Close())

	s, err = OpenLedis(path)
	a.Nil(err)
	defer s.Close()
	v, err = s.Get(ctx, "token:2")
	a.Nil(err)
	a.Equal("persisted", v)
}
