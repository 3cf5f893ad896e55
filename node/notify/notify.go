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

package notify

import (
	"fmt"
	"sync"

	"github.com/pairmesh/pairsync/protocol"
	"go.uber.org/zap"
)

const defaultBufferSize = 256

// Type is the type of a notification
type Type byte

const (
	TypeStateChanged Type = iota
	TypePairAdded
	TypePairRemoved
	TypePairOnline
	TypePairOffline
	TypePairPermissionsChanged
	TypePairUploadStatus
	TypeCharacterData
	TypeGroupAdded
	TypeGroupChanged
	TypeGroupRemoved
	TypeServerMessage
	TypeVersionAdvisory
)

var typeStringify = [...]string{
	TypeStateChanged:           "state_changed",
	TypePairAdded:              "pair_added",
	TypePairRemoved:            "pair_removed",
	TypePairOnline:             "pair_online",
	TypePairOffline:            "pair_offline",
	TypePairPermissionsChanged: "pair_permissions_changed",
	TypePairUploadStatus:       "pair_upload_status",
	TypeCharacterData:          "character_data",
	TypeGroupAdded:             "group_added",
	TypeGroupChanged:           "group_changed",
	TypeGroupRemoved:           "group_removed",
	TypeServerMessage:          "server_message",
	TypeVersionAdvisory:        "version_advisory",
}

// String implements the fmt.Stringer interface
func (t Type) String() string {
	if int(t) >= len(typeStringify) {
		return fmt.Sprintf("unknown(%d)", t)
	}
	return typeStringify[t]
}

type (
	// Event is published to the external collaborators. UID and GID are
	// empty when they don't apply.
	Event struct {
		Type   Type
		Server protocol.ServerIndex
		UID    string
		GID    string
		Data   interface{}
	}

	// StateChanged is the data of TypeStateChanged.
	StateChanged struct {
		State   string
		Message string
	}

	// VersionAdvisory is the data of TypeVersionAdvisory.
	VersionAdvisory struct {
		Current string
		Latest  string
		Message string
	}
)

// Bus fans out the events to every subscriber. Publishing never blocks:
// a subscriber which doesn't keep up loses events.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe returns the channel of a new subscriber and the function which
// unsubscribes it. size <= 0 selects the default buffer size.
func (b *Bus) Subscribe(size int) (<-chan Event, func()) {
	if size <= 0 {
		size = defaultBufferSize
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends e to every subscriber.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			zap.L().Warn("Notification dropped", zap.Stringer("type", e.Type), zap.Stringer("server", e.Server))
		}
	}
}
