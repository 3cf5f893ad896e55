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

// Methods invoked by the client on the hub.
const (
	MethodGetConnectionDto       = "GetConnectionDto"
	MethodGroupsGetAll           = "GroupsGetAll"
	MethodUserGetPairedClients   = "UserGetPairedClients"
	MethodUserGetOnlinePairs     = "UserGetOnlinePairs"
	MethodUserAddPair            = "UserAddPair"
	MethodUserRemovePair         = "UserRemovePair"
	MethodUserSetPairPermissions = "UserSetPairPermissions"
	MethodSetBulkPermissions     = "SetBulkPermissions"
	MethodGroupCreate            = "GroupCreate"
	MethodGroupJoin              = "GroupJoin"
	MethodGroupLeave             = "GroupLeave"
	MethodCheckClientHealth      = "CheckClientHealth"
	MethodUserPushData           = "UserPushData"
)

// Events pushed by the hub to the client.
const (
	EventUserAddClientPair                = "Client_UserAddClientPair"
	EventUserRemoveClientPair             = "Client_UserRemoveClientPair"
	EventUserSendOnline                   = "Client_UserSendOnline"
	EventUserSendOffline                  = "Client_UserSendOffline"
	EventUserUpdateSelfPairPermissions    = "Client_UserUpdateSelfPairPermissions"
	EventUserUpdateOtherPairPermissions   = "Client_UserUpdateOtherPairPermissions"
	EventGroupSendFullInfo                = "Client_GroupSendFullInfo"
	EventGroupSendInfo                    = "Client_GroupSendInfo"
	EventGroupDelete                      = "Client_GroupDelete"
	EventGroupPairJoined                  = "Client_GroupPairJoined"
	EventGroupPairLeft                    = "Client_GroupPairLeft"
	EventGroupPairChangeUserInfo          = "Client_GroupPairChangeUserInfo"
	EventGroupChangePermissions           = "Client_GroupChangePermissions"
	EventGroupChangeUserPairPermissions   = "Client_GroupChangeUserPairPermissions"
	EventUserReceiveUploadStatus          = "Client_UserReceiveUploadStatus"
	EventUpdateSystemInfo                 = "Client_UpdateSystemInfo"
	EventReceiveServerMessage             = "Client_ReceiveServerMessage"
	EventUserReceiveCharacterData         = "Client_UserReceiveCharacterData"
)
