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

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/hubtest"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logutil.EnableAll()
	logutil.InitTestLogger()
	os.Exit(m.Run())
}

func testOptions(hub *hubtest.Hub, transport TransportType) Options {
	return Options{
		URL:               hub.HubURL(),
		Token:             hub.Token("U1"),
		Transport:         transport,
		Reconnect:         backoff.NewFixed(10*time.Millisecond, 20*time.Millisecond),
		HeartbeatInterval: 50 * time.Millisecond,
		ServerTimeout:     2 * time.Second,
	}
}

func waitEvent(t *testing.T, c *Conn, typ EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-c.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", typ)
			}
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", typ)
		}
	}
}

func TestInvoke(t *testing.T) {
	for _, transport := range []TransportType{TransportWebSockets, TransportLongPolling} {
		t.Run(transport.String(), func(t *testing.T) {
			a := assert.New(t)
			hub := hubtest.New("/mare")
			defer hub.Close()

			f := NewFactory()
			defer f.Close()

			c, err := f.Build(1, testOptions(hub, transport))
			a.Nil(err)
			a.Equal(transport, c.Transport())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.Nil(c.Start(ctx))
			a.True(c.Connected())

			var dto protocol.ConnectionDto
			a.Nil(c.Invoke(ctx, protocol.MethodGetConnectionDto, nil, &dto))
			a.Equal("U1", dto.User.UID)
			a.Equal("test", dto.ServerInfo.ShardName)

			// Unknown methods are answered with 404.
			err = c.Invoke(ctx, "NoSuchMethod", nil, nil)
			a.NotNil(err)
			a.Equal(errcode.KindProtocol, errcode.KindOf(err))

			a.True(hubtest.WaitFor(func() bool { return c.Latency() > 0 }))
		})
	}
}

func TestEvents(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")
	defer hub.Close()

	f := NewFactory()
	defer f.Close()
	c, err := f.Build(0, testOptions(hub, TransportWebSockets))
	a.Nil(err)
	a.Nil(c.Start(context.Background()))
	a.True(hubtest.WaitFor(func() bool { return len(hub.Sessions()) == 1 }))

	hub.Push(protocol.EventUserSendOnline, &protocol.OnlineUserIdentDto{
		User:  protocol.UserData{UID: "U2"},
		Ident: "ident",
	})

	e := waitEvent(t, c, EventTypeMessage)
	msg := e.Data.(EventMessage)
	a.Equal(protocol.EventUserSendOnline, msg.Method)

	var dto protocol.OnlineUserIdentDto
	a.Nil(dto.UnmarshalWire(msg.Payload))
	a.Equal("U2", dto.User.UID)
}

func TestEventBurstBeforeCompletion(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")
	defer hub.Close()

	const burst = 4 * eventBufferSize
	hub.Handle(protocol.MethodGetConnectionDto, func(s *hubtest.Session, _ []byte) hubtest.Result {
		for i := 0; i < burst; i++ {
			s.Push(protocol.EventUpdateSystemInfo, &protocol.SystemInfoDto{OnlineUsers: int32(i)})
		}
		return hubtest.OK(&protocol.ConnectionDto{User: protocol.UserData{UID: s.UID}})
	})

	f := NewFactory()
	defer f.Close()
	c, err := f.Build(0, testOptions(hub, TransportWebSockets))
	a.Nil(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Nil(c.Start(ctx))

	// Nobody consumes the events while the invocation is in flight.
	var dto protocol.ConnectionDto
	a.Nil(c.Invoke(ctx, protocol.MethodGetConnectionDto, nil, &dto))
	a.Equal("U1", dto.User.UID)

	for i := 0; i < burst; i++ {
		msg := waitEvent(t, c, EventTypeMessage).Data.(EventMessage)
		var info protocol.SystemInfoDto
		a.Nil(info.UnmarshalWire(msg.Payload))
		if !a.Equal(int32(i), info.OnlineUsers) {
			return
		}
	}
}

func TestReconnect(t *testing.T) {
	for _, transport := range []TransportType{TransportWebSockets, TransportLongPolling} {
		t.Run(transport.String(), func(t *testing.T) {
			a := assert.New(t)
			hub := hubtest.New("/mare")
			defer hub.Close()

			f := NewFactory()
			defer f.Close()
			c, err := f.Build(0, testOptions(hub, transport))
			a.Nil(err)
			a.Nil(c.Start(context.Background()))
			a.True(hubtest.WaitFor(func() bool { return len(hub.Sessions()) == 1 }))

			hub.DropAll()
			waitEvent(t, c, EventTypeReconnecting)
			waitEvent(t, c, EventTypeReconnected)
			a.True(hubtest.WaitFor(func() bool { return hub.Connects() == 2 }))

			var health protocol.HealthDto
			a.Nil(c.Invoke(context.Background(), protocol.MethodCheckClientHealth, nil, &health))
			a.True(health.Healthy)
		})
	}
}

func TestCloseByAuth(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")
	defer hub.Close()

	f := NewFactory()
	defer f.Close()
	c, err := f.Build(0, testOptions(hub, TransportWebSockets))
	a.Nil(err)
	a.Nil(c.Start(context.Background()))
	a.True(hubtest.WaitFor(func() bool { return len(hub.Sessions()) == 1 }))

	hub.SendClose(401, "token revoked")
	e := waitEvent(t, c, EventTypeClosed)
	a.True(errcode.IsAuth(e.Data.(EventClosed).Err))
	a.True(c.Closed())
	// No redial with a rejected token.
	a.Equal(int64(1), hub.Connects())

	err = c.Invoke(context.Background(), protocol.MethodCheckClientHealth, nil, nil)
	a.True(errcode.CodeOf(err) == errcode.ConnectionClosed)
}

func TestRedialGivesUp(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")

	f := NewFactory()
	defer f.Close()
	opts := testOptions(hub, TransportWebSockets)
	opts.MaxReconnectAttempts = 2
	c, err := f.Build(0, opts)
	a.Nil(err)
	a.Nil(c.Start(context.Background()))
	a.True(hubtest.WaitFor(func() bool { return len(hub.Sessions()) == 1 }))

	hub.Close()
	waitEvent(t, c, EventTypeReconnecting)
	e := waitEvent(t, c, EventTypeClosed)
	a.Equal(errcode.KindNetwork, errcode.KindOf(e.Data.(EventClosed).Err))
	a.True(c.Closed())
}

func TestRedialRejected(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")
	defer hub.Close()

	f := NewFactory()
	defer f.Close()
	c, err := f.Build(0, testOptions(hub, TransportWebSockets))
	a.Nil(err)
	a.Nil(c.Start(context.Background()))
	a.True(hubtest.WaitFor(func() bool { return len(hub.Sessions()) == 1 }))

	hub.RotateSecret()
	hub.DropAll()
	waitEvent(t, c, EventTypeReconnecting)
	e := waitEvent(t, c, EventTypeClosed)
	a.True(errcode.IsAuth(e.Data.(EventClosed).Err))
}

func TestStartRejected(t *testing.T) {
	for _, transport := range []TransportType{TransportWebSockets, TransportLongPolling} {
		t.Run(transport.String(), func(t *testing.T) {
			a := assert.New(t)
			hub := hubtest.New("/mare")
			defer hub.Close()

			f := NewFactory()
			defer f.Close()
			opts := testOptions(hub, transport)
			hub.RotateSecret()

			c, err := f.Build(0, opts)
			a.Nil(err)
			err = c.Start(context.Background())
			a.True(errcode.IsAuth(err))
			a.False(c.Connected())
		})
	}
}

func TestInvokeCancelled(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")
	defer hub.Close()

	release := make(chan struct{})
	hub.Handle(protocol.MethodGroupsGetAll, func(_ *hubtest.Session, _ []byte) hubtest.Result {
		<-release
		return hubtest.OK(&protocol.GroupFullInfoList{})
	})

	f := NewFactory()
	defer f.Close()
	c, err := f.Build(0, testOptions(hub, TransportLongPolling))
	a.Nil(err)
	a.Nil(c.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err = c.Invoke(ctx, protocol.MethodGroupsGetAll, nil, &protocol.GroupFullInfoList{})
	a.True(errcode.IsCancelled(err))
	close(release)
}

func TestCloseFailsPending(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/mare")
	defer hub.Close()

	release := make(chan struct{})
	defer close(release)
	hub.Handle(protocol.MethodGroupsGetAll, func(_ *hubtest.Session, _ []byte) hubtest.Result {
		<-release
		return hubtest.OK(&protocol.GroupFullInfoList{})
	})

	f := NewFactory()
	c, err := f.Build(0, testOptions(hub, TransportLongPolling))
	a.Nil(err)
	a.Nil(c.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- c.Invoke(context.Background(), protocol.MethodGroupsGetAll, nil, nil)
	}()
	time.Sleep(50 * time.Millisecond)
	f.Release(c)

	select {
	case err := <-done:
		a.NotNil(err)
	case <-time.After(5 * time.Second):
		t.Fatal("pending invocation not failed")
	}
	_, ok := <-c.Events()
	a.False(ok)
}
