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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus(t *testing.T) {
	a := assert.New(t)

	b := NewBus()
	ch1, unsub1 := b.Subscribe(1)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(Event{Type: TypePairAdded, Server: 1, UID: "U1"})
	// ch1 is full, the second event is dropped for it only.
	b.Publish(Event{Type: TypePairOnline, Server: 1, UID: "U1"})

	e := <-ch1
	a.Equal(TypePairAdded, e.Type)
	a.Len(ch1, 0)
	a.Len(ch2, 2)

	unsub1()
	unsub1()
	_, ok := <-ch1
	a.False(ok)

	b.Publish(Event{Type: TypePairOffline})
	a.Len(ch2, 3)

	var nilBus *Bus
	nilBus.Publish(Event{})
}

func TestTypeString(t *testing.T) {
	a := assert.New(t)
	a.Equal("pair_online", TypePairOnline.String())
	a.Equal("unknown(200)", Type(200).String())
}
