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

package hubtest

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pairmesh/pairsync/codec"
	"github.com/pairmesh/pairsync/codec/wire"
	"go.uber.org/zap"
)

const sessionQueueSize = 256

// Session is one transport session opened by a client.
type Session struct {
	ID        string
	UID       string
	Transport string

	hub  *Hub
	out  chan []byte
	done chan struct{}
	once sync.Once

	// ws is nil for long polling sessions.
	ws *websocket.Conn
}

func (s *Session) send(frame []byte) {
	select {
	case s.out <- frame:
	case <-s.done:
	}
}

// Push sends an event to this session only.
func (s *Session) Push(method string, msg wire.Message) {
	env := &codec.Envelope{Method: method}
	if msg != nil {
		env.Payload = msg.MarshalWire()
	}
	frame, err := codec.EncodeEnvelope(codec.FrameEvent, env)
	if err != nil {
		return
	}
	s.send(frame)
}

// closeWith sends a close frame and ends the session once it is flushed.
func (s *Session) closeWith(status int32, msg string) {
	frame, err := codec.EncodeEnvelope(codec.FrameClose, &codec.Envelope{Status: status, Error: msg})
	if err != nil {
		return
	}
	s.send(frame)
	// A nil frame asks the writer to end the session.
	s.send(nil)
}

// drop ends the session abruptly.
func (s *Session) drop() {
	s.once.Do(func() {
		close(s.done)
		if s.ws != nil {
			_ = s.ws.Close()
		}
		s.hub.removeSession(s)
	})
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case frame := <-s.out:
			if frame == nil {
				s.drop()
				return
			}
			if err := s.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.drop()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) readLoop() {
	defer s.drop()

	dec := codec.NewCodec()
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		frames, err := dec.Decode(data)
		if err != nil {
			return
		}
		for _, f := range frames {
			s.handle(f)
		}
	}
}

func (s *Session) handle(f codec.RawFrame) {
	switch f.Type {
	case codec.FramePing:
		frame, err := codec.EncodeFrame(codec.FramePong, f.Payload)
		if err == nil {
			s.send(frame)
		}

	case codec.FrameInvocation:
		env, err := codec.DecodeEnvelope(f)
		if err != nil {
			return
		}
		res := s.hub.invoke(s, env.Method, env.Payload)
		if env.ID == "" {
			return
		}
		reply := &codec.Envelope{ID: env.ID, Status: res.Status, Error: res.Error}
		if res.Payload != nil {
			reply.Payload = res.Payload.MarshalWire()
		}
		frame, err := codec.EncodeEnvelope(codec.FrameCompletion, reply)
		if err != nil {
			zap.L().Error("Encode completion failed", zap.Error(err))
			return
		}
		s.send(frame)
	}
}

// Result is the answer of a fake hub method.
type Result struct {
	Payload wire.Message
	Status  int32
	Error   string
}

// OK returns a successful result carrying msg.
func OK(msg wire.Message) Result {
	return Result{Payload: msg}
}

// Fail returns a failed result with an HTTP-equivalent status.
func Fail(status int32, msg string) Result {
	return Result{Status: status, Error: msg}
}

// Handler answers one hub method.
type Handler func(s *Session, payload []byte) Result
