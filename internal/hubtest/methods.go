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

package hubtest

import (
	"net/http"

	"github.com/pairmesh/pairsync/protocol"
)

func (h *Hub) registerDefaults() {
	h.handlers[protocol.MethodGetConnectionDto] = func(s *Session, _ []byte) Result {
		h.mu.Lock()
		dto := h.conn
		h.mu.Unlock()
		dto.User = protocol.UserData{UID: s.UID}
		return OK(&dto)
	}
	h.handlers[protocol.MethodGroupsGetAll] = func(_ *Session, _ []byte) Result {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := &protocol.GroupFullInfoList{}
		for _, g := range h.groups {
			list.Items = append(list.Items, g.Clone())
		}
		return OK(list)
	}
	h.handlers[protocol.MethodUserGetPairedClients] = func(_ *Session, _ []byte) Result {
		h.mu.Lock()
		defer h.mu.Unlock()
		return OK(&protocol.UserFullPairList{Items: append([]protocol.UserFullPairDto(nil), h.pairs...)})
	}
	h.handlers[protocol.MethodUserGetOnlinePairs] = func(_ *Session, _ []byte) Result {
		h.mu.Lock()
		defer h.mu.Unlock()
		return OK(&protocol.OnlineUserIdentList{Items: append([]protocol.OnlineUserIdentDto(nil), h.online...)})
	}
	h.handlers[protocol.MethodCheckClientHealth] = func(_ *Session, _ []byte) Result {
		return OK(&protocol.HealthDto{Healthy: true})
	}

	// Commands without a result.
	for _, m := range []string{
		protocol.MethodUserAddPair,
		protocol.MethodUserRemovePair,
		protocol.MethodUserSetPairPermissions,
		protocol.MethodSetBulkPermissions,
		protocol.MethodGroupLeave,
		protocol.MethodUserPushData,
	} {
		h.handlers[m] = func(_ *Session, _ []byte) Result {
			return Result{}
		}
	}
	h.handlers[protocol.MethodGroupCreate] = func(_ *Session, payload []byte) Result {
		var g protocol.GroupDto
		if err := g.UnmarshalWire(payload); err != nil {
			return Fail(http.StatusBadRequest, err.Error())
		}
		return OK(&protocol.GroupPasswordDto{Group: protocol.GroupData{GID: "G-NEW", Alias: g.Group.Alias}, Password: "secret"})
	}
	h.handlers[protocol.MethodGroupJoin] = func(_ *Session, _ []byte) Result {
		return OK(&protocol.HealthDto{Healthy: true})
	}
}

func (h *Hub) invoke(s *Session, method string, payload []byte) Result {
	h.mu.Lock()
	h.invocations[method] = append(h.invocations[method], payload)
	handler, ok := h.handlers[method]
	h.mu.Unlock()

	if !ok {
		return Fail(http.StatusNotFound, "unknown method "+method)
	}
	return handler(s, payload)
}

// Handle replaces the handler of method.
func (h *Hub) Handle(method string, handler Handler) {
	h.mu.Lock()
	h.handlers[method] = handler
	h.mu.Unlock()
}

// Invocations returns the payloads received for method.
func (h *Hub) Invocations(method string) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.invocations[method]...)
}

// SetServerVersion changes the protocol version advertised by the hub.
func (h *Hub) SetServerVersion(v int32) {
	h.mu.Lock()
	h.conn.ServerVersion = v
	h.mu.Unlock()
}

// SetCurrentClientVersion changes the advisory client version.
func (h *Hub) SetCurrentClientVersion(v string) {
	h.mu.Lock()
	h.conn.CurrentClientVersion = v
	h.mu.Unlock()
}

// SetState replaces the authoritative pairing state of the hub.
func (h *Hub) SetState(groups []protocol.GroupFullInfoDto, pairs []protocol.UserFullPairDto, online []protocol.OnlineUserIdentDto) {
	h.mu.Lock()
	h.groups = groups
	h.pairs = pairs
	h.online = online
	h.mu.Unlock()
}
