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

package errcode

// Kind classifies a failure by how the caller must react to it.
type Kind byte

const (
	// KindNetwork is a transient failure, retried with backoff.
	KindNetwork Kind = iota
	// KindAuth is a terminal credential rejection.
	KindAuth
	// KindProtocol means the hub speaks an incompatible protocol.
	KindProtocol
	// KindConfig means the local configuration is missing or ambiguous.
	KindConfig
	// KindRateLimited means the server asked us to back off.
	KindRateLimited
	// KindCancelled is never surfaced to the user.
	KindCancelled
	// KindNotConnected is returned by operations invoked on an idle hub.
	KindNotConnected
	// KindInvalid marks structurally invalid input.
	KindInvalid
)

var kindNames = [...]string{
	KindNetwork:      "network",
	KindAuth:         "auth",
	KindProtocol:     "protocol",
	KindConfig:       "config",
	KindRateLimited:  "rate_limited",
	KindCancelled:    "cancelled",
	KindNotConnected: "not_connected",
	KindInvalid:      "invalid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

type ErrCode int

const (
	InternalError ErrCode = 1 + iota
	TransportFailure
	Unauthorized
	RateLimited
	VersionMismatch
	MalformedOperation
	NoSecretKey
	MultiCharacter
	OAuthMisconfigured
	OAuthTokenStale
	NoHubFound
	NotConnected
	InvalidRecord
	UnknownServer
	UnknownPair
	Cancelled
	ConnectionClosed
)
