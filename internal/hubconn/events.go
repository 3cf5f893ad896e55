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

package hubconn

type EventType byte

const (
	// EventTypeMessage is an event pushed by the hub.
	EventTypeMessage EventType = iota
	// EventTypeReconnecting is emitted when the transport dropped and the
	// connection starts redialing.
	EventTypeReconnecting
	// EventTypeReconnected is emitted when a redial succeeded.
	EventTypeReconnected
	// EventTypeClosed is emitted when the connection gave up. It is never
	// emitted for an explicit Close.
	EventTypeClosed
)

var eventTypeNames = [...]string{"message", "reconnecting", "reconnected", "closed"}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return "unknown"
}

type (
	// Event is a generic event item
	Event struct {
		Type EventType
		Data interface{}
	}

	// EventMessage carries an encoded hub event.
	EventMessage struct {
		Method  string
		Payload []byte
	}

	// EventReconnecting carries the error which dropped the transport.
	EventReconnecting struct {
		Err error
	}

	// EventClosed carries the error which ended the connection.
	EventClosed struct {
		Err error
	}
)
