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

// Package wire contains the field level helpers used to encode the hub
// messages in the protobuf wire format. Decoders skip fields they don't
// know and leave missing fields at their zero value, so older and newer
// hubs stay readable.
package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every payload exchanged with the hub.
type Message interface {
	MarshalWire() []byte
	UnmarshalWire(b []byte) error
}

// Field is a single decoded field. Only one of Varint/Bytes is meaningful
// depending on Type.
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

func (f Field) String() string {
	if f.Type != protowire.BytesType {
		return ""
	}
	return string(f.Bytes)
}

func (f Field) Bool() bool {
	return f.Type == protowire.VarintType && f.Varint != 0
}

func (f Field) Uint32() uint32 {
	if f.Type != protowire.VarintType {
		return 0
	}
	return uint32(f.Varint)
}

func (f Field) Int32() int32 {
	if f.Type != protowire.VarintType {
		return 0
	}
	return int32(f.Varint)
}

func (f Field) Int64() int64 {
	if f.Type != protowire.VarintType {
		return 0
	}
	return int64(f.Varint)
}

// CopyBytes returns a copy of the field payload which outlives the buffer.
func (f Field) CopyBytes() []byte {
	if f.Type != protowire.BytesType {
		return nil
	}
	out := make([]byte, len(f.Bytes))
	copy(out, f.Bytes)
	return out
}

// Message decodes a nested message field into m.
func (f Field) Message(m Message) error {
	if f.Type != protowire.BytesType {
		return nil
	}
	return m.UnmarshalWire(f.Bytes)
}

// Range walks every field of b in order and calls visit for varint and
// length-delimited fields. Fixed width and group fields are skipped.
func Range(b []byte, visit func(f Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.WithMessage(protowire.ParseError(n), "consume tag")
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.WithMessagef(protowire.ParseError(n), "consume field %d", num)
		}
		b = b[n:]

		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendString appends a non-empty string field.
func AppendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendStrings appends a repeated string field. Empty entries are kept
// so that positions survive a round trip.
func AppendStrings(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

// AppendBytes appends a non-empty bytes field.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendUint appends a non-zero varint field.
func AppendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendInt appends a non-zero signed varint field using the plain int64
// encoding.
func AppendInt(b []byte, num protowire.Number, v int64) []byte {
	return AppendUint(b, num, uint64(v))
}

// AppendBool appends a true bool field.
func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return AppendUint(b, num, 1)
}

// AppendMessage appends a nested message. The field is always written,
// even when m encodes to zero bytes, so that repeated entries keep their
// cardinality.
func AppendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.MarshalWire())
}
