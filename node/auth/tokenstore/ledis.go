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
	"os"
	"time"

	lediscfg "github.com/ledisdb/ledisdb/config"
	"github.com/ledisdb/ledisdb/ledis"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ledisStore struct {
	l  *ledis.Ledis
	db *ledis.DB
}

// OpenLedis opens a persistent store under dataPath so that the tokens
// survive restarts.
func OpenLedis(dataPath string) (Store, error) {
	if err := os.MkdirAll(dataPath, 0700); err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := lediscfg.NewConfigDefault()
	cfg.DataDir = dataPath
	l, err := ledis.Open(cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "open token cache %s", dataPath)
	}

	db, err := l.Select(0)
	if err != nil {
		l.Close()
		return nil, errors.WithMessage(err, "select token cache db")
	}

	zap.L().Info("Initialize the token cache successfully", zap.String("path", dataPath))
	return &ledisStore{l: l, db: db}, nil
}

func (r *ledisStore) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	secs := int64(expiration / time.Second)
	if secs <= 0 {
		_, err := r.db.Del([]byte(key))
		return err
	}
	return r.db.SetEX([]byte(key), secs, []byte(value))
}

func (r *ledisStore) Del(_ context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	kb := make([][]byte, 0, len(keys))
	for _, k := range keys {
		kb = append(kb, []byte(k))
	}
	_, err := r.db.Del(kb...)
	return err
}

func (r *ledisStore) Get(_ context.Context, key string) (string, error) {
	res, err := r.db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	return string(res), nil
}

func (r *ledisStore) Close() error {
	r.l.Close()
	return nil
}
