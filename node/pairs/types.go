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

package pairs

import (
	"time"

	"github.com/pairmesh/pairsync/protocol"
)

type key struct {
	server protocol.ServerIndex
	id     string
}

type (
	// Pair is a remote user paired on one server, either directly or
	// through one or more syncshells.
	Pair struct {
		Server           protocol.ServerIndex          `json:"server"`
		User             protocol.UserData             `json:"user"`
		Status           protocol.IndividualPairStatus `json:"status"`
		OwnPermissions   protocol.UserPermissions      `json:"own_permissions"`
		OtherPermissions protocol.UserPermissions      `json:"other_permissions"`
		Groups           []string                      `json:"groups,omitempty"`
		Online           bool                          `json:"online"`
		Ident            string                        `json:"ident,omitempty"`
		Visible          bool                          `json:"visible"`
		Uploading        bool                          `json:"uploading"`
		LastDataAt       time.Time                     `json:"last_data_at,omitempty"`
	}

	// Group is a syncshell the user is a member of on one server.
	Group struct {
		Server protocol.ServerIndex      `json:"server"`
		Info   protocol.GroupFullInfoDto `json:"info"`
	}

	// ServerState is the full state of one server.
	ServerState struct {
		Groups []protocol.GroupFullInfoDto
		Pairs  []protocol.UserFullPairDto
		Online []protocol.OnlineUserIdentDto
	}
)

// IsDirect reports whether the pair was added directly rather than only
// through syncshells.
func (p *Pair) IsDirect() bool {
	return p.Status != protocol.IndividualPairStatusNone
}

// IsPaused reports whether either side paused the pair.
func (p *Pair) IsPaused() bool {
	return p.OwnPermissions.IsPaused() || p.OtherPermissions.IsPaused()
}

func (p *Pair) clone() Pair {
	out := *p
	if p.Groups != nil {
		out.Groups = append([]string(nil), p.Groups...)
	}
	return out
}

func (p *Pair) hasGroup(gid string) bool {
	for _, g := range p.Groups {
		if g == gid {
			return true
		}
	}
	return false
}

func (p *Pair) addGroup(gid string) {
	if !p.hasGroup(gid) {
		p.Groups = append(p.Groups, gid)
	}
}

func (p *Pair) removeGroup(gid string) {
	for i, g := range p.Groups {
		if g == gid {
			p.Groups = append(p.Groups[:i:i], p.Groups[i+1:]...)
			return
		}
	}
}

// MembershipKind is the kind of a syncshell membership change.
type MembershipKind byte

const (
	MemberJoined MembershipKind = iota
	MemberLeft
	MemberInfoChanged
)

// MembershipChange describes a member joining, leaving or being changed in
// a syncshell.
type MembershipChange struct {
	Kind MembershipKind
	GID  string
	User protocol.UserData
	Info protocol.GroupPairUserInfo
}
