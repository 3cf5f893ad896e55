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

package hubconn

import (
	"context"
	"os"
	"strings"

	"github.com/pairmesh/pairsync/codec"
	"github.com/pkg/errors"
)

// TransportType selects how frames are carried to the hub.
type TransportType byte

const (
	TransportAuto TransportType = iota
	TransportWebSockets
	TransportLongPolling
)

var transportNames = [...]string{"auto", "websockets", "longpolling"}

func (t TransportType) String() string {
	if int(t) < len(transportNames) {
		return transportNames[t]
	}
	return "unknown"
}

// ParseTransport parses the transport name used in the configuration.
func ParseTransport(s string) (TransportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return TransportAuto, nil
	case "websockets", "websocket", "ws":
		return TransportWebSockets, nil
	case "longpolling", "long_polling", "poll":
		return TransportLongPolling, nil
	default:
		return TransportAuto, errors.Errorf("unknown transport %q", s)
	}
}

// Environment variables set by the Wine runtime. WebSockets are unreliable
// there, so the automatic selection falls back to long polling.
var wineEnvKeys = []string{"WINEPREFIX", "WINELOADERNOEXEC"}

func underWine(lookupEnv func(string) (string, bool)) bool {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	for _, key := range wineEnvKeys {
		if _, ok := lookupEnv(key); ok {
			return true
		}
	}
	return false
}

// resolve turns TransportAuto into a concrete transport.
func (t TransportType) resolve(lookupEnv func(string) (string, bool)) TransportType {
	if t != TransportAuto {
		return t
	}
	if underWine(lookupEnv) {
		return TransportLongPolling
	}
	return TransportWebSockets
}

// Transporter carries encoded frames to and from the hub. A transporter is
// dialed once; redialing builds a new one. Read and Write are called from
// one goroutine each, and Close unblocks a pending Read.
type Transporter interface {
	Kind() TransportType
	Dial(ctx context.Context) error
	Read() ([]codec.RawFrame, error)
	Write(frame []byte) error
	Close() error
}
