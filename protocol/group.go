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
	// GroupData identifies a syncshell on one server.
	GroupData struct {
		GID   string `json:"gid"`
		Alias string `json:"alias,omitempty"`
	}

	GroupDto struct {
		Group GroupData `json:"group"`
	}

	// GroupFullInfoDto is the complete state of a syncshell the user is a
	// member of.
	GroupFullInfoDto struct {
		Group                GroupData                    `json:"group"`
		Owner                UserData                     `json:"owner"`
		GroupPermissions     GroupPermissions             `json:"group_permissions"`
		GroupUserPermissions GroupUserPermissions         `json:"group_user_permissions"`
		GroupUserInfo        GroupPairUserInfo            `json:"group_user_info"`
		MemberInfo           map[string]GroupPairUserInfo `json:"member_info,omitempty"`
	}

	// GroupInfoDto is pushed when the owner or the defaults of a syncshell
	// change.
	GroupInfoDto struct {
		Group            GroupData        `json:"group"`
		Owner            UserData         `json:"owner"`
		GroupPermissions GroupPermissions `json:"group_permissions"`
	}

	GroupPairDto struct {
		Group GroupData `json:"group"`
		User  UserData  `json:"user"`
	}

	GroupPairFullInfoDto struct {
		Group    GroupData         `json:"group"`
		User     UserData          `json:"user"`
		UserInfo GroupPairUserInfo `json:"user_info"`
	}

	GroupPairUserInfoDto struct {
		Group    GroupData         `json:"group"`
		UID      string            `json:"uid"`
		UserInfo GroupPairUserInfo `json:"user_info"`
	}

	// GroupPermissionDto changes the defaults of a syncshell.
	GroupPermissionDto struct {
		Group       GroupData        `json:"group"`
		Permissions GroupPermissions `json:"permissions"`
	}

	// GroupPairUserPermissionDto changes the permissions of the current
	// user toward a syncshell.
	GroupPairUserPermissionDto struct {
		Group       GroupData            `json:"group"`
		Permissions GroupUserPermissions `json:"permissions"`
	}

	GroupPasswordDto struct {
		Group    GroupData `json:"group"`
		Password string    `json:"password"`
	}

	GroupFullInfoList struct {
		Items []GroupFullInfoDto
	}
)

// AliasOrGID returns the vanity alias when set.
func (g GroupData) AliasOrGID() string {
	if g.Alias != "" {
		return g.Alias
	}
	return g.GID
}

func (g *GroupData) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, g.GID)
	b = wire.AppendString(b, 2, g.Alias)
	return b
}

func (g *GroupData) UnmarshalWire(b []byte) error {
	*g = GroupData{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			g.GID = f.String()
		case 2:
			g.Alias = f.String()
		}
		return nil
	})
}

func (d *GroupDto) MarshalWire() []byte {
	return wire.AppendMessage(nil, 1, &d.Group)
}

func (d *GroupDto) UnmarshalWire(b []byte) error {
	*d = GroupDto{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num == 1 {
			return f.Message(&d.Group)
		}
		return nil
	})
}

// memberInfoEntry is a map entry of GroupFullInfoDto.MemberInfo.
type memberInfoEntry struct {
	uid  string
	info GroupPairUserInfo
}

func (e *memberInfoEntry) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, e.uid)
	b = wire.AppendUint(b, 2, uint64(e.info))
	return b
}

func (e *memberInfoEntry) UnmarshalWire(b []byte) error {
	*e = memberInfoEntry{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			e.uid = f.String()
		case 2:
			e.info = GroupPairUserInfo(f.Uint32())
		}
		return nil
	})
}

func (d *GroupFullInfoDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendMessage(b, 2, &d.Owner)
	b = wire.AppendUint(b, 3, uint64(d.GroupPermissions))
	b = wire.AppendUint(b, 4, uint64(d.GroupUserPermissions))
	b = wire.AppendUint(b, 5, uint64(d.GroupUserInfo))

	// Sorted for a deterministic encoding.
	uids := make([]string, 0, len(d.MemberInfo))
	for uid := range d.MemberInfo {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	for _, uid := range uids {
		b = wire.AppendMessage(b, 6, &memberInfoEntry{uid: uid, info: d.MemberInfo[uid]})
	}
	return b
}

func (d *GroupFullInfoDto) UnmarshalWire(b []byte) error {
	*d = GroupFullInfoDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			return f.Message(&d.Owner)
		case 3:
			d.GroupPermissions = GroupPermissions(f.Uint32())
		case 4:
			d.GroupUserPermissions = GroupUserPermissions(f.Uint32())
		case 5:
			d.GroupUserInfo = GroupPairUserInfo(f.Uint32())
		case 6:
			var e memberInfoEntry
			if err := f.Message(&e); err != nil {
				return err
			}
			if d.MemberInfo == nil {
				d.MemberInfo = map[string]GroupPairUserInfo{}
			}
			d.MemberInfo[e.uid] = e.info
		}
		return nil
	})
}

// Clone returns a deep copy of the dto.
func (d GroupFullInfoDto) Clone() GroupFullInfoDto {
	out := d
	if d.MemberInfo != nil {
		out.MemberInfo = make(map[string]GroupPairUserInfo, len(d.MemberInfo))
		for k, v := range d.MemberInfo {
			out.MemberInfo[k] = v
		}
	}
	return out
}

func (d *GroupInfoDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendMessage(b, 2, &d.Owner)
	b = wire.AppendUint(b, 3, uint64(d.GroupPermissions))
	return b
}

func (d *GroupInfoDto) UnmarshalWire(b []byte) error {
	*d = GroupInfoDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			return f.Message(&d.Owner)
		case 3:
			d.GroupPermissions = GroupPermissions(f.Uint32())
		}
		return nil
	})
}

func (d *GroupPairDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendMessage(b, 2, &d.User)
	return b
}

func (d *GroupPairDto) UnmarshalWire(b []byte) error {
	*d = GroupPairDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			return f.Message(&d.User)
		}
		return nil
	})
}

func (d *GroupPairFullInfoDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendMessage(b, 2, &d.User)
	b = wire.AppendUint(b, 3, uint64(d.UserInfo))
	return b
}

func (d *GroupPairFullInfoDto) UnmarshalWire(b []byte) error {
	*d = GroupPairFullInfoDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			return f.Message(&d.User)
		case 3:
			d.UserInfo = GroupPairUserInfo(f.Uint32())
		}
		return nil
	})
}

func (d *GroupPairUserInfoDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendString(b, 2, d.UID)
	b = wire.AppendUint(b, 3, uint64(d.UserInfo))
	return b
}

func (d *GroupPairUserInfoDto) UnmarshalWire(b []byte) error {
	*d = GroupPairUserInfoDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			d.UID = f.String()
		case 3:
			d.UserInfo = GroupPairUserInfo(f.Uint32())
		}
		return nil
	})
}

func (d *GroupPermissionDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendUint(b, 2, uint64(d.Permissions))
	return b
}

func (d *GroupPermissionDto) UnmarshalWire(b []byte) error {
	*d = GroupPermissionDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			d.Permissions = GroupPermissions(f.Uint32())
		}
		return nil
	})
}

func (d *GroupPairUserPermissionDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendUint(b, 2, uint64(d.Permissions))
	return b
}

func (d *GroupPairUserPermissionDto) UnmarshalWire(b []byte) error {
	*d = GroupPairUserPermissionDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			d.Permissions = GroupUserPermissions(f.Uint32())
		}
		return nil
	})
}

func (d *GroupPasswordDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.Group)
	b = wire.AppendString(b, 2, d.Password)
	return b
}

func (d *GroupPasswordDto) UnmarshalWire(b []byte) error {
	*d = GroupPasswordDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.Group)
		case 2:
			d.Password = f.String()
		}
		return nil
	})
}

func (l *GroupFullInfoList) MarshalWire() []byte {
	var b []byte
	for i := range l.Items {
		b = wire.AppendMessage(b, 1, &l.Items[i])
	}
	return b
}

func (l *GroupFullInfoList) UnmarshalWire(b []byte) error {
	*l = GroupFullInfoList{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		var item GroupFullInfoDto
		if err := f.Message(&item); err != nil {
			return err
		}
		l.Items = append(l.Items, item)
		return nil
	})
}
