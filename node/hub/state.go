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

package hub

import (
	"fmt"

	"github.com/pairmesh/pairsync/i18n"
	"github.com/pkg/errors"
)

// State is the connection state of a hub client
type State byte

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnecting
	StateOffline
	StateUnauthorized
	StateVersionMismatch
	StateRateLimited
	StateNoSecretKey
	StateMultiCharacter
	StateOAuthMisconfigured
	StateOAuthTokenStale
	StateNoAutoLogin
	StateNoHubFound
)

var stateStringify = [...]string{
	StateDisconnected:       "disconnected",
	StateConnecting:         "connecting",
	StateConnected:          "connected",
	StateReconnecting:       "reconnecting",
	StateDisconnecting:      "disconnecting",
	StateOffline:            "offline",
	StateUnauthorized:       "unauthorized",
	StateVersionMismatch:    "version_mismatch",
	StateRateLimited:        "rate_limited",
	StateNoSecretKey:        "no_secret_key",
	StateMultiCharacter:     "multi_character",
	StateOAuthMisconfigured: "oauth_misconfigured",
	StateOAuthTokenStale:    "oauth_token_stale",
	StateNoAutoLogin:        "no_auto_login",
	StateNoHubFound:         "no_hub_found",
}

// String implements the fmt.Stringer interface
func (s State) String() string {
	if int(s) >= len(stateStringify) {
		return fmt.Sprintf("unknown(%d)", s)
	}
	return stateStringify[s]
}

// MarshalText implements the encoding.TextMarshaler interface
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateStringify {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return errors.Errorf("unknown state %q", text)
}

// Localized returns the state name in the current locale.
func (s State) Localized() string {
	return i18n.L("state." + s.String())
}

// States returns the names of every state.
func States() []string {
	return append([]string(nil), stateStringify[:]...)
}
