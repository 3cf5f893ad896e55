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

// Package serde is used to deserialize the events pushed by the hub into
// their typed representation.
package serde

import (
	"reflect"

	"github.com/pairmesh/pairsync/codec/wire"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pkg/errors"
)

// sharedEvents is the type repository for decoding
var sharedEvents = map[string]reflect.Type{
	protocol.EventUserAddClientPair:              reflect.TypeOf(&protocol.PairAddedEvent{}),
	protocol.EventUserRemoveClientPair:           reflect.TypeOf(&protocol.PairRemovedEvent{}),
	protocol.EventUserSendOnline:                 reflect.TypeOf(&protocol.PairOnlineEvent{}),
	protocol.EventUserSendOffline:                reflect.TypeOf(&protocol.PairOfflineEvent{}),
	protocol.EventUserUpdateSelfPairPermissions:  reflect.TypeOf(&protocol.SelfPermissionsChangedEvent{}),
	protocol.EventUserUpdateOtherPairPermissions: reflect.TypeOf(&protocol.OtherPermissionsChangedEvent{}),
	protocol.EventGroupSendFullInfo:              reflect.TypeOf(&protocol.GroupFullInfoEvent{}),
	protocol.EventGroupSendInfo:                  reflect.TypeOf(&protocol.GroupInfoEvent{}),
	protocol.EventGroupDelete:                    reflect.TypeOf(&protocol.GroupDeletedEvent{}),
	protocol.EventGroupPairJoined:                reflect.TypeOf(&protocol.GroupPairJoinedEvent{}),
	protocol.EventGroupPairLeft:                  reflect.TypeOf(&protocol.GroupPairLeftEvent{}),
	protocol.EventGroupPairChangeUserInfo:        reflect.TypeOf(&protocol.GroupPairUserInfoEvent{}),
	protocol.EventGroupChangePermissions:         reflect.TypeOf(&protocol.GroupPermissionsChangedEvent{}),
	protocol.EventGroupChangeUserPairPermissions: reflect.TypeOf(&protocol.GroupUserPermissionsChangedEvent{}),
	protocol.EventUserReceiveUploadStatus:        reflect.TypeOf(&protocol.UploadStatusEvent{}),
	protocol.EventUpdateSystemInfo:               reflect.TypeOf(&protocol.SystemInfoEvent{}),
	protocol.EventReceiveServerMessage:           reflect.TypeOf(&protocol.ServerMessageEvent{}),
	protocol.EventUserReceiveCharacterData:       reflect.TypeOf(&protocol.CharacterDataEvent{}),
}

// ErrUnknownEvent is returned for event names without a registered type.
var ErrUnknownEvent = errors.New("unrecognized event")

// Known reports whether the event name has a registered type.
func Known(method string) bool {
	_, ok := sharedEvents[method]
	return ok
}

// Deserialize decodes the payload of the named event into its typed message.
func Deserialize(method string, buf []byte) (wire.Message, error) {
	typ, ok := sharedEvents[method]
	if !ok {
		return nil, errors.WithMessagef(ErrUnknownEvent, "event %q", method)
	}

	msg := reflect.New(typ.Elem()).Interface().(wire.Message)
	if err := msg.UnmarshalWire(buf); err != nil {
		return nil, errcode.New(errcode.KindProtocol, errcode.MalformedOperation,
			errors.WithMessagef(err, "unmarshal event %s", method))
	}
	return msg, nil
}
