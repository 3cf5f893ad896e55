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
	"github.com/pairmesh/pairsync/codec/wire"
)

type (
	// UserData identifies a remote user on one server.
	UserData struct {
		UID   string `json:"uid"`
		Alias string `json:"alias,omitempty"`
	}

	UserDto struct {
		User UserData `json:"user"`
	}

	// UserPairDto is pushed when a direct pair is added or changed.
	UserPairDto struct {
		User             UserData             `json:"user"`
		Status           IndividualPairStatus `json:"status"`
		OwnPermissions   UserPermissions      `json:"own_permissions"`
		OtherPermissions UserPermissions      `json:"other_permissions"`
	}

	// UserFullPairDto is one entry of the full pair list. Groups lists the
	// syncshells through which the user is paired.
	UserFullPairDto struct {
		User             UserData             `json:"user"`
		Status           IndividualPairStatus `json:"status"`
		Groups           []string             `json:"groups,omitempty"`
		OwnPermissions   UserPermissions      `json:"own_permissions"`
		OtherPermissions UserPermissions      `json:"other_permissions"`
	}

	UserPermissionsDto struct {
		User        UserData        `json:"user"`
		Permissions UserPermissions `json:"permissions"`
	}

	OnlineUserIdentDto struct {
		User  UserData `json:"user"`
		Ident string   `json:"ident"`
	}

	// OnlineUserCharaDataDto carries character data received from a pair.
	// The data is opaque to the client core.
	OnlineUserCharaDataDto struct {
		User      UserData `json:"user"`
		CharaData []byte   `json:"chara_data"`
	}

	// UserCharaDataMessageDto pushes character data to a set of recipients.
	UserCharaDataMessageDto struct {
		Recipients []UserData `json:"recipients"`
		CharaData  []byte     `json:"chara_data"`
	}

	UserFullPairList struct {
		Items []UserFullPairDto
	}

	OnlineUserIdentList struct {
		Items []OnlineUserIdentDto
	}
)

// AliasOrUID returns the vanity alias when set.
func (u UserData) AliasOrUID() string {
	if u.Alias != "" {
		return u.Alias
	}
	return u.UID
}

func (u *UserData) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, u.UID)
	b = wire.AppendString(b, 2, u.Alias)
	return b
}

func (u *UserData) UnmarshalWire(b []byte) error {
	*u = UserData{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			u.UID = f.String()
		case 2:
			u.Alias = f.String()
		}
		return nil
	})
}

func (d *UserDto) MarshalWire() []byte {
	return wire.AppendMessage(nil, 1, &d.User)
}

func (d *UserDto) UnmarshalWire(b []byte) error {
	*d = UserDto{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num == 1 {
			return f.Message(&d.User)
		}
		return nil
	})
}

func (d *UserPairDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.User)
	b = wire.AppendUint(b, 2, uint64(d.Status))
	b = wire.AppendUint(b, 3, uint64(d.OwnPermissions))
	b = wire.AppendUint(b, 4, uint64(d.OtherPermissions))
	return b
}

func (d *UserPairDto) UnmarshalWire(b []byte) error {
	*d = UserPairDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.User)
		case 2:
			d.Status = IndividualPairStatus(f.Uint32())
		case 3:
			d.OwnPermissions = UserPermissions(f.Uint32())
		case 4:
			d.OtherPermissions = UserPermissions(f.Uint32())
		}
		return nil
	})
}

func (d *UserFullPairDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.User)
	b = wire.AppendUint(b, 2, uint64(d.Status))
	b = wire.AppendStrings(b, 3, d.Groups)
	b = wire.AppendUint(b, 4, uint64(d.OwnPermissions))
	b = wire.AppendUint(b, 5, uint64(d.OtherPermissions))
	return b
}

func (d *UserFullPairDto) UnmarshalWire(b []byte) error {
	*d = UserFullPairDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.User)
		case 2:
			d.Status = IndividualPairStatus(f.Uint32())
		case 3:
			d.Groups = append(d.Groups, f.String())
		case 4:
			d.OwnPermissions = UserPermissions(f.Uint32())
		case 5:
			d.OtherPermissions = UserPermissions(f.Uint32())
		}
		return nil
	})
}

func (d *UserPermissionsDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.User)
	b = wire.AppendUint(b, 2, uint64(d.Permissions))
	return b
}

func (d *UserPermissionsDto) UnmarshalWire(b []byte) error {
	*d = UserPermissionsDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.User)
		case 2:
			d.Permissions = UserPermissions(f.Uint32())
		}
		return nil
	})
}

func (d *OnlineUserIdentDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.User)
	b = wire.AppendString(b, 2, d.Ident)
	return b
}

func (d *OnlineUserIdentDto) UnmarshalWire(b []byte) error {
	*d = OnlineUserIdentDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.User)
		case 2:
			d.Ident = f.String()
		}
		return nil
	})
}

func (d *OnlineUserCharaDataDto) MarshalWire() []byte {
	var b []byte
	b = wire.AppendMessage(b, 1, &d.User)
	b = wire.AppendBytes(b, 2, d.CharaData)
	return b
}

func (d *OnlineUserCharaDataDto) UnmarshalWire(b []byte) error {
	*d = OnlineUserCharaDataDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return f.Message(&d.User)
		case 2:
			d.CharaData = f.CopyBytes()
		}
		return nil
	})
}

func (d *UserCharaDataMessageDto) MarshalWire() []byte {
	var b []byte
	for i := range d.Recipients {
		b = wire.AppendMessage(b, 1, &d.Recipients[i])
	}
	b = wire.AppendBytes(b, 2, d.CharaData)
	return b
}

func (d *UserCharaDataMessageDto) UnmarshalWire(b []byte) error {
	*d = UserCharaDataMessageDto{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			var u UserData
			if err := f.Message(&u); err != nil {
				return err
			}
			d.Recipients = append(d.Recipients, u)
		case 2:
			d.CharaData = f.CopyBytes()
		}
		return nil
	})
}

func (l *UserFullPairList) MarshalWire() []byte {
	var b []byte
	for i := range l.Items {
		b = wire.AppendMessage(b, 1, &l.Items[i])
	}
	return b
}

func (l *UserFullPairList) UnmarshalWire(b []byte) error {
	*l = UserFullPairList{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		var item UserFullPairDto
		if err := f.Message(&item); err != nil {
			return err
		}
		l.Items = append(l.Items, item)
		return nil
	})
}

func (l *OnlineUserIdentList) MarshalWire() []byte {
	var b []byte
	for i := range l.Items {
		b = wire.AppendMessage(b, 1, &l.Items[i])
	}
	return b
}

func (l *OnlineUserIdentList) UnmarshalWire(b []byte) error {
	*l = OnlineUserIdentList{}
	return wire.Range(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		var item OnlineUserIdentDto
		if err := f.Message(&item); err != nil {
			return err
		}
		l.Items = append(l.Items, item)
		return nil
	})
}
