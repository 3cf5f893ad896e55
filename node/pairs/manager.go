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
	"sort"
	"sync"
	"time"

	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/protocol"
	"go.uber.org/zap"
)

// Manager is the pairing directory shared by every hub client. Records are
// keyed by (server, id): the same uid on two servers are two pairs.
type Manager struct {
	bus *notify.Bus

	mu        sync.RWMutex
	pairs     map[key]*Pair
	groups    map[key]*protocol.GroupFullInfoDto
	connected map[protocol.ServerIndex]bool
}

// NewManager returns an empty directory publishing its changes on bus.
func NewManager(bus *notify.Bus) *Manager {
	return &Manager{
		bus:       bus,
		pairs:     map[key]*Pair{},
		groups:    map[key]*protocol.GroupFullInfoDto{},
		connected: map[protocol.ServerIndex]bool{},
	}
}

// batch collects the notifications of a mutation. They are published once
// the lock is released.
type batch []notify.Event

func (b *batch) add(typ notify.Type, server protocol.ServerIndex, uid, gid string, data interface{}) {
	*b = append(*b, notify.Event{Type: typ, Server: server, UID: uid, GID: gid, Data: data})
}

func (m *Manager) publish(b batch) {
	for _, e := range b {
		m.bus.Publish(e)
	}
}

// SyncServer replaces every record of server with state, marks the server
// connected and applies the online flags. No per record notification is
// published. Applying the same state twice is a no-op.
func (m *Manager) SyncServer(server protocol.ServerIndex, state ServerState) error {
	for _, g := range state.Groups {
		if g.Group.GID == "" {
			return errcode.ErrInvalidRecord
		}
	}
	for _, p := range state.Pairs {
		if p.User.UID == "" {
			return errcode.ErrInvalidRecord
		}
	}

	online := make(map[string]string, len(state.Online))
	for _, o := range state.Online {
		online[o.User.UID] = o.Ident
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	groups := make(map[string]struct{}, len(state.Groups))
	for _, g := range state.Groups {
		groups[g.Group.GID] = struct{}{}
		info := g.Clone()
		m.groups[key{server, g.Group.GID}] = &info
	}
	for k := range m.groups {
		if _, found := groups[k.id]; k.server == server && !found {
			delete(m.groups, k)
		}
	}

	pairs := make(map[string]struct{}, len(state.Pairs))
	for _, dto := range state.Pairs {
		pairs[dto.User.UID] = struct{}{}
		k := key{server, dto.User.UID}
		p, found := m.pairs[k]
		if !found {
			p = &Pair{Server: server}
			m.pairs[k] = p
		}
		p.User = dto.User
		p.Status = dto.Status
		p.OwnPermissions = dto.OwnPermissions
		p.OtherPermissions = dto.OtherPermissions
		p.Groups = append([]string(nil), dto.Groups...)

		ident, isOnline := online[dto.User.UID]
		p.Online = isOnline
		p.Ident = ident
		if !isOnline {
			p.Visible = false
			p.Uploading = false
		}
	}
	for k := range m.pairs {
		if _, found := pairs[k.id]; k.server == server && !found {
			delete(m.pairs, k)
		}
	}
	m.connected[server] = true

	if logutil.IsEnablePairs() {
		zap.L().Debug("Server state synchronized",
			zap.Stringer("server", server),
			zap.Int("groups", len(state.Groups)),
			zap.Int("pairs", len(state.Pairs)),
			zap.Int("online", len(state.Online)))
	}
	return nil
}

// SetServerConnected changes the connected flag of server. Disconnecting a
// server marks its pairs offline.
func (m *Manager) SetServerConnected(server protocol.ServerIndex, connected bool) {
	if !connected {
		m.MarkServerOffline(server)
		return
	}
	m.mu.Lock()
	m.connected[server] = true
	m.mu.Unlock()
}

// IsServerConnected reports whether server is marked connected.
func (m *Manager) IsServerConnected(server protocol.ServerIndex) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected[server]
}

// MarkServerOffline marks server disconnected and every pair of it offline.
// The records are kept.
func (m *Manager) MarkServerOffline(server protocol.ServerIndex) {
	var b batch
	m.mu.Lock()
	m.connected[server] = false
	for k, p := range m.pairs {
		if k.server != server || !p.Online {
			continue
		}
		p.Online = false
		p.Ident = ""
		p.Visible = false
		p.Uploading = false
		b.add(notify.TypePairOffline, server, k.id, "", nil)
	}
	m.mu.Unlock()
	m.publish(b)
}

// ClearServer removes every record of server.
func (m *Manager) ClearServer(server protocol.ServerIndex) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connected, server)
	for k := range m.pairs {
		if k.server == server {
			delete(m.pairs, k)
		}
	}
	for k := range m.groups {
		if k.server == server {
			delete(m.groups, k)
		}
	}
}

// AddUserPair inserts or updates a direct pair.
func (m *Manager) AddUserPair(server protocol.ServerIndex, dto protocol.UserPairDto) error {
	if dto.User.UID == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	k := key{server, dto.User.UID}
	p, found := m.pairs[k]
	if !found {
		p = &Pair{Server: server}
		m.pairs[k] = p
	}
	p.User = dto.User
	p.Status = dto.Status
	if p.Status == protocol.IndividualPairStatusNone {
		p.Status = protocol.IndividualPairStatusOneSided
	}
	p.OwnPermissions = dto.OwnPermissions
	p.OtherPermissions = dto.OtherPermissions
	b.add(notify.TypePairAdded, server, dto.User.UID, "", p.clone())
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// RemovePair removes the direct pair with uid. A user still paired through
// a syncshell is kept.
func (m *Manager) RemovePair(server protocol.ServerIndex, uid string) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	k := key{server, uid}
	if p, found := m.pairs[k]; found {
		p.Status = protocol.IndividualPairStatusNone
		if len(p.Groups) == 0 {
			delete(m.pairs, k)
		}
		b.add(notify.TypePairRemoved, server, uid, "", nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// MarkOnline marks a pair online. It has no effect while the server isn't
// connected or when the pair is unknown.
func (m *Manager) MarkOnline(server protocol.ServerIndex, uid, ident string, notifyChange bool) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	p, found := m.pairs[key{server, uid}]
	if found && m.connected[server] {
		changed := !p.Online || p.Ident != ident
		p.Online = true
		p.Ident = ident
		if changed && notifyChange {
			b.add(notify.TypePairOnline, server, uid, "", ident)
		}
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// MarkOffline marks a pair offline.
func (m *Manager) MarkOffline(server protocol.ServerIndex, uid string, notifyChange bool) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	p, found := m.pairs[key{server, uid}]
	if found && p.Online {
		p.Online = false
		p.Ident = ""
		p.Visible = false
		p.Uploading = false
		if notifyChange {
			b.add(notify.TypePairOffline, server, uid, "", nil)
		}
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// ApplyPermissionChange changes the permissions of a pair. self selects the
// permissions of the current user toward the pair, otherwise the ones of
// the pair toward the current user.
func (m *Manager) ApplyPermissionChange(server protocol.ServerIndex, uid string, perms protocol.UserPermissions, self bool) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	if p, found := m.pairs[key{server, uid}]; found {
		if self {
			p.OwnPermissions = perms
		} else {
			p.OtherPermissions = perms
		}
		if p.IsPaused() {
			p.Visible = false
		}
		b.add(notify.TypePairPermissionsChanged, server, uid, "", p.clone())
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// ApplyBulkPermissions applies the own permissions of many pairs and
// syncshells of server. Unknown records are skipped.
func (m *Manager) ApplyBulkPermissions(server protocol.ServerIndex, dto protocol.BulkPermissionsDto) error {
	for uid := range dto.AffectedUsers {
		if uid == "" {
			return errcode.ErrInvalidRecord
		}
	}
	for gid := range dto.AffectedGroups {
		if gid == "" {
			return errcode.ErrInvalidRecord
		}
	}

	var b batch
	m.mu.Lock()
	for uid, perms := range dto.AffectedUsers {
		p, found := m.pairs[key{server, uid}]
		if !found {
			continue
		}
		p.OwnPermissions = perms
		if p.IsPaused() {
			p.Visible = false
		}
		b.add(notify.TypePairPermissionsChanged, server, uid, "", p.clone())
	}
	for gid, perms := range dto.AffectedGroups {
		g, found := m.groups[key{server, gid}]
		if !found {
			continue
		}
		g.GroupUserPermissions = perms
		b.add(notify.TypeGroupChanged, server, "", gid, nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// AddGroup inserts or replaces a syncshell.
func (m *Manager) AddGroup(server protocol.ServerIndex, dto protocol.GroupFullInfoDto) error {
	if dto.Group.GID == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	info := dto.Clone()
	m.groups[key{server, dto.Group.GID}] = &info
	b.add(notify.TypeGroupAdded, server, "", dto.Group.GID, nil)
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// UpdateGroupInfo changes the owner and the defaults of a known syncshell.
func (m *Manager) UpdateGroupInfo(server protocol.ServerIndex, dto protocol.GroupInfoDto) error {
	if dto.Group.GID == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	if g, found := m.groups[key{server, dto.Group.GID}]; found {
		g.Group = dto.Group
		g.Owner = dto.Owner
		g.GroupPermissions = dto.GroupPermissions
		b.add(notify.TypeGroupChanged, server, "", dto.Group.GID, nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// ApplyGroupPermissionChange changes the defaults of a syncshell.
func (m *Manager) ApplyGroupPermissionChange(server protocol.ServerIndex, gid string, perms protocol.GroupPermissions) error {
	if gid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	if g, found := m.groups[key{server, gid}]; found {
		g.GroupPermissions = perms
		b.add(notify.TypeGroupChanged, server, "", gid, nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// ApplyGroupUserPermissionChange changes the permissions of the current
// user toward a syncshell.
func (m *Manager) ApplyGroupUserPermissionChange(server protocol.ServerIndex, gid string, perms protocol.GroupUserPermissions) error {
	if gid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	if g, found := m.groups[key{server, gid}]; found {
		g.GroupUserPermissions = perms
		b.add(notify.TypeGroupChanged, server, "", gid, nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// ApplyGroupMembershipChange applies a member joining, leaving or changing
// in a syncshell. A user left without any direct pair or syncshell is
// removed.
func (m *Manager) ApplyGroupMembershipChange(server protocol.ServerIndex, c MembershipChange) error {
	if c.GID == "" || c.User.UID == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		m.publish(b)
	}()

	g, found := m.groups[key{server, c.GID}]
	if !found {
		return nil
	}

	pk := key{server, c.User.UID}
	switch c.Kind {
	case MemberJoined:
		if g.MemberInfo == nil {
			g.MemberInfo = map[string]protocol.GroupPairUserInfo{}
		}
		g.MemberInfo[c.User.UID] = c.Info
		p, found := m.pairs[pk]
		if !found {
			p = &Pair{Server: server, User: c.User}
			m.pairs[pk] = p
		}
		p.addGroup(c.GID)
		if !found {
			b.add(notify.TypePairAdded, server, c.User.UID, c.GID, p.clone())
		}
	case MemberLeft:
		delete(g.MemberInfo, c.User.UID)
		if p, found := m.pairs[pk]; found {
			p.removeGroup(c.GID)
			if !p.IsDirect() && len(p.Groups) == 0 {
				delete(m.pairs, pk)
				b.add(notify.TypePairRemoved, server, c.User.UID, c.GID, nil)
			}
		}
	case MemberInfoChanged:
		if _, member := g.MemberInfo[c.User.UID]; member {
			g.MemberInfo[c.User.UID] = c.Info
		}
	}
	b.add(notify.TypeGroupChanged, server, c.User.UID, c.GID, nil)
	return nil
}

// RemoveGroup removes a syncshell together with the pairs which were only
// paired through it.
func (m *Manager) RemoveGroup(server protocol.ServerIndex, gid string) error {
	if gid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	gk := key{server, gid}
	if _, found := m.groups[gk]; found {
		delete(m.groups, gk)
		for k, p := range m.pairs {
			if k.server != server || !p.hasGroup(gid) {
				continue
			}
			p.removeGroup(gid)
			if !p.IsDirect() && len(p.Groups) == 0 {
				delete(m.pairs, k)
				b.add(notify.TypePairRemoved, server, k.id, gid, nil)
			}
		}
		b.add(notify.TypeGroupRemoved, server, "", gid, nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// SetUploadStatus marks a pair as uploading new data.
func (m *Manager) SetUploadStatus(server protocol.ServerIndex, uid string) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	if p, found := m.pairs[key{server, uid}]; found && p.Online {
		p.Uploading = true
		b.add(notify.TypePairUploadStatus, server, uid, "", nil)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// ReceiveCharacterData forwards the data received from an online pair. The
// payload is not interpreted.
func (m *Manager) ReceiveCharacterData(server protocol.ServerIndex, dto protocol.OnlineUserCharaDataDto) error {
	if dto.User.UID == "" {
		return errcode.ErrInvalidRecord
	}
	var b batch
	m.mu.Lock()
	if p, found := m.pairs[key{server, dto.User.UID}]; found && p.Online && !p.IsPaused() {
		p.Uploading = false
		p.LastDataAt = time.Now()
		b.add(notify.TypeCharacterData, server, dto.User.UID, "", dto.CharaData)
	}
	m.mu.Unlock()

	m.publish(b)
	return nil
}

// SetVisible changes the visibility of a pair. Only online pairs which
// aren't paused can be visible.
func (m *Manager) SetVisible(server protocol.ServerIndex, uid string, visible bool) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, found := m.pairs[key{server, uid}]
	if !found {
		return errcode.ErrUnknownPair
	}
	p.Visible = visible && p.Online && !p.IsPaused()
	return nil
}

// VisibleCount returns the number of visible pairs over all servers.
func (m *Manager) VisibleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.pairs {
		if p.Visible {
			count++
		}
	}
	return count
}

// OnlineCount returns the number of online pairs over all servers.
func (m *Manager) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.pairs {
		if p.Online {
			count++
		}
	}
	return count
}

// Pairs returns the pairs of server ordered by uid.
func (m *Manager) Pairs(server protocol.ServerIndex) []Pair {
	m.mu.RLock()
	out := make([]Pair, 0, len(m.pairs))
	for k, p := range m.pairs {
		if k.server == server {
			out = append(out, p.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].User.UID < out[j].User.UID
	})
	return out
}

// Pair returns the pair with uid on server.
func (m *Manager) Pair(server protocol.ServerIndex, uid string) (Pair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, found := m.pairs[key{server, uid}]
	if !found {
		return Pair{}, false
	}
	return p.clone(), true
}

// Groups returns the syncshells of server ordered by gid.
func (m *Manager) Groups(server protocol.ServerIndex) []Group {
	m.mu.RLock()
	out := make([]Group, 0, len(m.groups))
	for k, g := range m.groups {
		if k.server == server {
			out = append(out, Group{Server: server, Info: g.Clone()})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Info.Group.GID < out[j].Info.Group.GID
	})
	return out
}

// Group returns the syncshell with gid on server.
func (m *Manager) Group(server protocol.ServerIndex, gid string) (Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, found := m.groups[key{server, gid}]
	if !found {
		return Group{}, false
	}
	return Group{Server: server, Info: g.Clone()}, true
}
