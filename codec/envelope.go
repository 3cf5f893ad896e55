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

package codec

import (
	"github.com/pairmesh/pairsync/codec/wire"
)

// Envelope is the payload of invocation, completion, event and close
// frames. Invocations carry ID, Method and Payload; completions echo the ID
// and carry either Payload or Error/Status; events carry Method and Payload;
// close frames carry Error/Status.
type Envelope struct {
	ID      string
	Method  string
	Payload []byte
	Error   string
	Status  int32
}

func (e *Envelope) MarshalWire() []byte {
	var b []byte
	b = wire.AppendString(b, 1, e.ID)
	b = wire.AppendString(b, 2, e.Method)
	b = wire.AppendBytes(b, 3, e.Payload)
	b = wire.AppendString(b, 4, e.Error)
	b = wire.AppendInt(b, 5, int64(e.Status))
	return b
}

func (e *Envelope) UnmarshalWire(b []byte) error {
	*e = Envelope{}
	return wire.Range(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			e.ID = f.String()
		case 2:
			e.Method = f.String()
		case 3:
			e.Payload = f.CopyBytes()
		case 4:
			e.Error = f.String()
		case 5:
			e.Status = f.Int32()
		}
		return nil
	})
}

// EncodeEnvelope encodes the envelope as a single frame.
func EncodeEnvelope(typ FrameType, e *Envelope) ([]byte, error) {
	return EncodeFrame(typ, e.MarshalWire())
}

// DecodeEnvelope decodes the payload of a frame.
func DecodeEnvelope(f RawFrame) (*Envelope, error) {
	e := &Envelope{}
	if err := e.UnmarshalWire(f.Payload); err != nil {
		return nil, err
	}
	return e, nil
}
