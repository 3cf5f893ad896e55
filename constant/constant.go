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

package constant

import "time"

type PluginKeyType string

const KeyRawRequest = PluginKeyType("_plugin_key_request")

const MachineIDProtect = "pairsync"

const EnvLogLevel = "PAIRSYNC_LOG_VERBOSE"

// Authentication endpoints exposed by every sync server.
const (
	URIAuthCreateWithIdent      = "/auth/createWithIdent"
	URIAuthCreateWithIdentOAuth = "/auth/createWithIdentOAuth"
)

// Hub paths tried in order during endpoint discovery. The configured
// path of a server (if any) is always tried first.
const (
	DefaultHubPath = "/mare"
	LegacyHubPath  = "/hub"
)

// Suffixes appended to the hub path.
const (
	HubNegotiateSuffix = "/negotiate"
	HubPollSuffix      = "/poll"
)

const (
	HeaderAuthentication = "Authorization"
	HeaderXClientVersion = "X-PairSync-Version"
	HeaderXMachineID     = "X-PairSync-Machine-ID"
)

const PrefixJwtToken = "Bearer"

const (
	HeaderFrameTypeSize = 2
	HeaderFrameSizeSize = 4
	FrameHeaderSize     = HeaderFrameTypeSize + HeaderFrameSizeSize
)

// MaxFrameSize is the largest payload accepted in a single frame. Character
// data is the biggest payload carried over the hub.
const MaxFrameSize = 16 << 20

// HealthInterval is the default interval of the hub liveness check.
const HealthInterval = 30 * time.Second

// HeartbeatInterval is the default interval of transport pings.
const HeartbeatInterval = 15 * time.Second

// Bounds of the flat random delay between two connect attempts.
const (
	RetryDelayMin = 5 * time.Second
	RetryDelayMax = 20 * time.Second
)

const DefaultLocalAPIAddress = "127.0.0.1:9731"
