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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pairmesh/pairsync/constant"
	"github.com/pkg/errors"
)

// FrameType represents the kind of a frame exchanged with the hub.
type FrameType uint16

const (
	FrameInvocation FrameType = 1 + iota
	FrameCompletion
	FrameEvent
	FramePing
	FramePong
	FrameClose
)

var frameTypeNames = map[FrameType]string{
	FrameInvocation: "invocation",
	FrameCompletion: "completion",
	FrameEvent:      "event",
	FramePing:       "ping",
	FramePong:       "pong",
	FrameClose:      "close",
}

func (t FrameType) String() string {
	if s, ok := frameTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("frame(%d)", uint16(t))
}

// ErrFrameTooLarge is returned when a frame header announces a payload
// bigger than constant.MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame size exceed")

type (
	// FrameCodec is a streaming frame decoder. A codec instance keeps the
	// partial frame between two Decode calls and must not be shared by two
	// readers.
	FrameCodec struct {
		buf  *bytes.Buffer
		size int
		typ  FrameType
	}

	// RawFrame is a decoded frame whose payload is still encoded.
	RawFrame struct {
		Type    FrameType
		Payload []byte
	}
)

// NewCodec returns a new FrameCodec instance
func NewCodec() *FrameCodec {
	return &FrameCodec{
		buf:  bytes.NewBuffer(nil),
		size: -1,
	}
}

// Encode encodes the payload into a frame.
func (c *FrameCodec) Encode(typ FrameType, data []byte) ([]byte, error) {
	return EncodeFrame(typ, data)
}

// EncodeFrame encodes the payload into a frame:
// | type(2bytes) | payload size (4bytes) | payload |
func EncodeFrame(typ FrameType, data []byte) ([]byte, error) {
	if len(data) > constant.MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buffer := make([]byte, constant.FrameHeaderSize+len(data))
	binary.BigEndian.PutUint16(buffer[:constant.HeaderFrameTypeSize], uint16(typ))
	binary.BigEndian.PutUint32(buffer[constant.HeaderFrameTypeSize:constant.FrameHeaderSize], uint32(len(data)))
	copy(buffer[constant.FrameHeaderSize:], data)

	return buffer, nil
}

// Decode feeds input into the codec and returns every frame completed by it.
func (c *FrameCodec) Decode(input []byte) ([]RawFrame, error) {
	c.buf.Write(input)

	readHeader := func() error {
		header := c.buf.Next(constant.FrameHeaderSize)
		c.typ = FrameType(binary.BigEndian.Uint16(header[:constant.HeaderFrameTypeSize]))
		c.size = int(binary.BigEndian.Uint32(header[constant.HeaderFrameTypeSize:constant.FrameHeaderSize]))
		if c.size > constant.MaxFrameSize {
			return ErrFrameTooLarge
		}
		return nil
	}

	var output []RawFrame
	for {
		// Negative size means there is no reading frame.
		if c.size < 0 {
			if c.buf.Len() < constant.FrameHeaderSize {
				return output, nil
			}
			if err := readHeader(); err != nil {
				c.Reset()
				return nil, err
			}
		}

		if c.size > c.buf.Len() {
			return output, nil
		}

		payload := make([]byte, c.size)
		copy(payload, c.buf.Next(c.size))
		output = append(output, RawFrame{
			Type:    c.typ,
			Payload: payload,
		})
		c.size = -1
	}
}

// Reset drops any partially received frame.
func (c *FrameCodec) Reset() {
	c.buf.Reset()
	c.size = -1
}
