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

import (
	"sort"

	"github.com/pairmesh/pairsync/codec/wire"
)

type (
	// ServerInfo describes the capabilities of a server.
	ServerInfo struct {
		ShardName               string `json:"shard_name"`
		MaxGroupUserCount       int32  `json:"max_group_user_count"`
		MaxGroupsCreatedByUser  int32  `json:"max_groups_created_by_user"`
		MaxGroupsJoinedByUser   int32  `json:"max_groups_joined_by_user"`
		FileServerAddress       string `json:"file_server_address"`
		PeerDiscoveryAddress    string `json:"peer_discovery_address"`
		MaxUploadBytesPerSecond int64  `json:"max_upload_bytes_per_second,omitempty"`
	}

	// ConnectionDto is the connection descriptor returned right after the
	// transport is established.
	ConnectionDto struct {
		User                 UserData   `json:"user"`
		ServerVersion        int32      `json:"server_version"`
		CurrentClientVersion string     `json:"current_client_version,omitempty"`
		IsAdmin              bool       `json:"is_admin"`
		IsModerator          bool       `json:"is_moderator"`
		ServerInfo           ServerInfo `json:"server_info"`
	}

	SystemInfoDto struct {
		OnlineUsers int32 `json:"online_users"`
	}

	// BulkPermissionsDto changes the permissions of many pairs and
	// syncshells of one server at once.
	BulkPermissionsDto struct {
		AffectedUsers  map[string]UserPermissions      `json:"affected_users"`
		AffectedGroups map[string]GroupUserPermissions `json:"affected_groups"`
	}

	// CensusDataDto are the anonymized attributes sent by opted-in users.
	CensusDataDto struct {
		WorldID uint32 `json:"world_id"`
		RaceID  uint32 `json:"race_id"`
		TribeID uint32 `json:"tribe_id"`
		Gender  uint32 `json:"gender"`
	}

	ServerMessageDto struct {
		Severity MessageSeverity `json:"severity"`
		Message  string          `json:"message"`
	}

	HealthDto struct {
		Healthy bool `json:"healthy"`
	}
)

func (s *ServerInfo) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, s.ShardName)
	b = wire.AppendInt(b, 2, int64(s.MaxGroupUserCount))
	b = wire.AppendInt(b, 3, int64(s.MaxGroupsCreatedByUser))
	b = wire.AppendInt(b, 4, int64(s.MaxGroupsJoinedByUser))
	b = wire.AppendString(b, 5, s.FileServerAddress)
	b = wire.AppendString(b, 6, s.PeerDiscoveryAddress)
	b = wire.AppendInt(b, 7, s.MaxUploadBytesPerSecond)
	return b
}

func (s *ServerInfo) UnmarshalWire(b []byte) error {
	*s = ServerInfo{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			s.ShardName = f.String()
		case 2:
			s.MaxGroupUserCount = f.Int32()
		case 3:
			s.MaxGroupsCreatedByUser = f.Int32()
		case 4:
			s.MaxGroupsJoinedByUser = f.Int32()
		case 5:
			s.FileServerAddress = f.String()
		case 6:
			s.PeerDiscoveryAddress = f.String()
		case 7:
			s.MaxUploadBytesPerSecond = f.Int64()
		}
		return nil
	})
}

func (d *ConnectionDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.User)
	b = wire.AppendInt(b, 2, int64(d.ServerVersion))
	b = wire.AppendString(b, 3, d.CurrentClientVersion)
	b = wire.AppendBool(b, 4, d.IsAdmin)
	b = wire.AppendBool(b, 5, d.IsModerator)
	b = wire.AppendMessage(b, 6, &d.ServerInfo)
	return b
}

func (d *ConnectionDto) UnmarshalWire(b []byte) error {
	*d = ConnectionDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.User)
		case 2:
			d.ServerVersion = f.Int32()
		case 3:
			d.CurrentClientVersion = f.String()
		case 4:
			d.IsAdmin = f.Bool()
		case 5:
			d.IsModerator = f.Bool()
		case 6:
			return f.Message(&d.ServerInfo)
		}
		return nil
	})
}

func (d *SystemInfoDto) MarshalWire() []byte {
	return wire.AppendInt(nil, 1, int64(d.OnlineUsers))
}

func (d *SystemInfoDto) UnmarshalWire(b []byte) error {
	*d = SystemInfoDto{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num == 1 {
			d.OnlineUsers = f.Int32()
		}
		return nil
	})
}

// permissionEntry is a map entry of BulkPermissionsDto.
type permissionEntry struct {
	id    string
	perms uint32
}

func (e *permissionEntry) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, e.id)
	b = wire.AppendUint(b, 2, uint64(e.perms))
	return b
}

func (e *permissionEntry) UnmarshalWire(b []byte) error {
	*e = permissionEntry{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			e.id = f.String()
		case 2:
			e.perms = f.Uint32()
		}
		return nil
	})
}

func (d *BulkPermissionsDto) MarshalWire() []byte {
	var b []byte
	users := make([]string, 0, len(d.AffectedUsers))
	for uid := range d.AffectedUsers {
		users = append(users, uid)
	}
	sort.Strings(users)
	for _, uid := range users {
		b = wire.AppendMessage(b, 1, &permissionEntry{id: uid, perms: uint32(d.AffectedUsers[uid])})
	}

	groups := make([]string, 0, len(d.AffectedGroups))
	for gid := range d.AffectedGroups {
		groups = append(groups, gid)
	}
	sort.Strings(groups)
	for _, gid := range groups {
		b = wire.AppendMessage(b, 2, &permissionEntry{id: gid, perms: uint32(d.AffectedGroups[gid])})
	}
	return b
}

func (d *BulkPermissionsDto) UnmarshalWire(b []byte) error {
	*d = BulkPermissionsDto{
		AffectedUsers:  map[string]UserPermissions{},
		AffectedGroups: map[string]GroupUserPermissions{},
	}
	return wire.Range(b, func(f wire.Field) error {
		var e permissionEntry
		switch f.Num {
		case 1:
			if err := f.Message(&e); err != nil {
				return err
			}
			d.AffectedUsers[e.id] = UserPermissions(e.perms)
		case 2:
			if err := f.Message(&e); err != nil {
				return err
			}
			d.AffectedGroups[e.id] = GroupUserPermissions(e.perms)
		}
		return nil
	})
}

func (d *CensusDataDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(d.WorldID))
	b = wire.AppendUint(b, 2, uint64(d.RaceID))
	b = wire.AppendUint(b, 3, uint64(d.TribeID))
	b = wire.AppendUint(b, 4, uint64(d.Gender))
	return b
}

func (d *CensusDataDto) UnmarshalWire(b []byte) error {
	*d = CensusDataDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			d.WorldID = f.Uint32()
		case 2:
			d.RaceID = f.Uint32()
		case 3:
			d.TribeID = f.Uint32()
		case 4:
			d.Gender = f.Uint32()
		}
		return nil
	})
}

func (d *ServerMessageDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendUint(b, 1, uint64(d.Severity))
	b = wire.AppendString(b, 2, d.Message)
	return b
}

func (d *ServerMessageDto) UnmarshalWire(b []byte) error {
	*d = ServerMessageDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			d.Severity = MessageSeverity(f.Uint32())
		case 2:
			d.Message = f.String()
		}
		return nil
	})
}

func (d *HealthDto) MarshalWire() []byte {
	return wire.AppendBool(nil, 1, d.Healthy)
}

func (d *HealthDto) UnmarshalWire(b []byte) error {
	*d = HealthDto{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num == 1 {
			d.Healthy = f.Bool()
		}
		return nil
	})
}
