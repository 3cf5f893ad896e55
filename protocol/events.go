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

// Inbound events. Several events share the same payload, so each event
// gets its own type and a single type switch is enough to dispatch them.
type (
	PairAddedEvent                   struct{ UserPairDto }
	PairRemovedEvent                 struct{ UserDto }
	PairOnlineEvent                  struct{ OnlineUserIdentDto }
	PairOfflineEvent                 struct{ UserDto }
	SelfPermissionsChangedEvent      struct{ UserPermissionsDto }
	OtherPermissionsChangedEvent     struct{ UserPermissionsDto }
	GroupFullInfoEvent               struct{ GroupFullInfoDto }
	GroupInfoEvent                   struct{ GroupInfoDto }
	GroupDeletedEvent                struct{ GroupDto }
	GroupPairJoinedEvent             struct{ GroupPairFullInfoDto }
	GroupPairLeftEvent               struct{ GroupPairDto }
	GroupPairUserInfoEvent           struct{ GroupPairUserInfoDto }
	GroupPermissionsChangedEvent     struct{ GroupPermissionDto }
	GroupUserPermissionsChangedEvent struct{ GroupPairUserPermissionDto }
	UploadStatusEvent                struct{ UserDto }
	SystemInfoEvent                  struct{ SystemInfoDto }
	ServerMessageEvent               struct{ ServerMessageDto }
	CharacterDataEvent               struct{ OnlineUserCharaDataDto }
)
