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

package protocol

import "strconv"

// ServerIndex is the index of a server in the configured server list. It
// is the key of every per-server state.
type ServerIndex int

func (i ServerIndex) String() string {
	return strconv.Itoa(int(i))
}

type (
	// UserPermissions are the permissions of a direct pair.
	UserPermissions uint32

	// GroupPermissions are the defaults of a syncshell set by its owner.
	GroupPermissions uint32

	// GroupUserPermissions are the permissions of one member toward a
	// syncshell.
	GroupUserPermissions uint32

	// GroupPairUserInfo flags a member inside a syncshell.
	GroupPairUserInfo uint32
)

const (
	UserPermissionsPaired UserPermissions = 1 << iota
	UserPermissionsPaused
	UserPermissionsDisableAnimations
	UserPermissionsDisableSounds
	UserPermissionsDisableVFX
)

const (
	GroupPermissionsDisableAnimations GroupPermissions = 1 << iota
	GroupPermissionsDisableSounds
	GroupPermissionsDisableInvites
	GroupPermissionsDisableVFX
)

const (
	GroupUserPermissionsPaused GroupUserPermissions = 1 << iota
	GroupUserPermissionsDisableAnimations
	GroupUserPermissionsDisableSounds
	GroupUserPermissionsDisableVFX
)

const (
	GroupPairUserInfoModerator GroupPairUserInfo = 1 << iota
	GroupPairUserInfoPinned
)

func (p UserPermissions) IsPaired() bool {
	return p&UserPermissionsPaired != 0
}

func (p UserPermissions) IsPaused() bool {
	return p&UserPermissionsPaused != 0
}

// SetPaused returns a copy of p with the paused flag set to paused.
func (p UserPermissions) SetPaused(paused bool) UserPermissions {
	if paused {
		return p | UserPermissionsPaused
	}
	return p &^ UserPermissionsPaused
}

func (p GroupUserPermissions) IsPaused() bool {
	return p&GroupUserPermissionsPaused != 0
}

// SetPaused returns a copy of p with the paused flag set to paused.
func (p GroupUserPermissions) SetPaused(paused bool) GroupUserPermissions {
	if paused {
		return p | GroupUserPermissionsPaused
	}
	return p &^ GroupUserPermissionsPaused
}

func (i GroupPairUserInfo) IsModerator() bool {
	return i&GroupPairUserInfoModerator != 0
}

func (i GroupPairUserInfo) IsPinned() bool {
	return i&GroupPairUserInfoPinned != 0
}

// IndividualPairStatus describes which sides of a direct pair were added.
type IndividualPairStatus byte

const (
	IndividualPairStatusNone IndividualPairStatus = iota
	IndividualPairStatusOneSided
	IndividualPairStatusBidirectional
)

var pairStatusNames = [...]string{"none", "one_sided", "bidirectional"}

func (s IndividualPairStatus) String() string {
	if int(s) < len(pairStatusNames) {
		return pairStatusNames[s]
	}
	return "unknown"
}

// MessageSeverity is the severity of a message pushed by the server.
type MessageSeverity byte

const (
	MessageSeverityInformation MessageSeverity = iota
	MessageSeverityWarning
	MessageSeverityError
)
