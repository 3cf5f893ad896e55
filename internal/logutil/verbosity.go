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

package logutil

import (
	"os"
	"strings"

	"github.com/pairmesh/pairsync/constant"
	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

// Type is a subsystem whose debug logs can be switched on separately.
type Type uint32

const (
	// DebugHub covers the per-server connection lifecycle.
	DebugHub Type = iota
	// DebugAuth covers requests against the auth endpoints.
	DebugAuth
	// DebugTransport covers frames exchanged with the hub.
	DebugTransport
	// DebugPairs covers mutations of the pairing directory.
	DebugPairs
)

var typeNames = map[string]Type{
	"hub":       DebugHub,
	"auth":      DebugAuth,
	"transport": DebugTransport,
	"pairs":     DebugPairs,
}

var verbose = atomic.NewUint32(0)

func init() {
	if v, ok := os.LookupEnv(constant.EnvLogLevel); ok {
		Parse(v)
	}
}

// Parse reads a comma separated list of subsystem names. "all" turns on
// every subsystem and unknown names are ignored.
func Parse(v string) {
	for _, name := range strings.Split(strings.ToLower(v), ",") {
		name = strings.TrimSpace(name)
		if name == "all" {
			EnableAll()
			continue
		}
		if t, found := typeNames[name]; found {
			Enable(t)
		}
	}
}

// Enable turns on the debug logs of t.
func Enable(t Type) {
	for {
		old := verbose.Load()
		if verbose.CAS(old, old|1<<t) {
			return
		}
	}
}

func EnableAll() {
	for _, t := range typeNames {
		Enable(t)
	}
}

func enabled(t Type) bool {
	return verbose.Load()&(1<<t) != 0
}

// Level is debug as soon as one subsystem is verbose.
func Level() zapcore.Level {
	if verbose.Load() != 0 {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func IsEnableHub() bool       { return enabled(DebugHub) }
func IsEnableAuth() bool      { return enabled(DebugAuth) }
func IsEnableTransport() bool { return enabled(DebugTransport) }
func IsEnablePairs() bool     { return enabled(DebugPairs) }
