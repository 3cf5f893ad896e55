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

package controller

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/hubtest"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/auth"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/node/hub"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logutil.EnableAll()
	logutil.InitTestLogger()
	os.Exit(m.Run())
}

func server(name, uri, key string) *config.Server {
	return &config.Server{
		Name:       name,
		URI:        uri,
		SecretKeys: map[string]string{"k": key},
		Authentications: []config.Authentication{
			{Character: "Alice", WorldID: 42, SecretKey: "k"},
		},
	}
}

type fixture struct {
	hubs    []*hubtest.Hub
	cfg     *config.Config
	factory *hubconn.Factory
	ctl     *Controller
}

func newFixture(t *testing.T, n int) *fixture {
	f := &fixture{
		cfg:     config.New(),
		factory: hubconn.NewFactory(),
	}
	f.cfg.Character = config.Character{Name: "Alice", WorldID: 42}
	state := []protocol.UserFullPairDto{{
		User:           protocol.UserData{UID: "U1"},
		Status:         protocol.IndividualPairStatusBidirectional,
		OwnPermissions: protocol.UserPermissionsPaired,
	}}
	for i := 0; i < n; i++ {
		h := hubtest.New("/mare")
		h.SetState(nil, state, nil)
		f.hubs = append(f.hubs, h)
		f.cfg.Servers = append(f.cfg.Servers, server("server-"+string(rune('a'+i)), h.URL(), "secret"))
	}

	f.ctl = New(hub.Options{
		Config:            f.cfg,
		Factory:           f.factory,
		Tokens:            auth.NewProvider(f.cfg, nil, "machine"),
		Bus:               notify.NewBus(),
		Retry:             backoff.NewFixed(10*time.Millisecond, 20*time.Millisecond),
		HealthInterval:    50 * time.Millisecond,
		HeartbeatInterval: time.Second,
	})
	t.Cleanup(func() {
		f.ctl.Close()
		f.factory.Close()
		for _, h := range f.hubs {
			h.Close()
		}
	})
	return f
}

func (f *fixture) waitState(index protocol.ServerIndex, state hub.State) bool {
	return hubtest.WaitFor(func() bool { return f.ctl.State(index) == state })
}

func TestIndependentServers(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, 2)
	f.hubs[1].SetRejectAuth(true)

	f.ctl.CreateConnections()
	a.True(f.waitState(0, hub.StateConnected))
	a.True(f.waitState(1, hub.StateUnauthorized))
	a.True(f.ctl.AnyServerConnected())
	a.Equal([]protocol.ServerIndex{0}, f.ctl.ConnectedServerIndexes())
	a.NotEmpty(f.ctl.ErrorMessage(1))
	a.Equal(1, f.factory.LiveCount())

	f.hubs[1].SetRejectAuth(false)
	f.ctl.CreateConnections(1)
	a.True(f.waitState(1, hub.StateConnected))
	a.Equal(2, f.factory.LiveCount())

	f.ctl.Disconnect(1)
	a.Equal(hub.StateDisconnected, f.ctl.State(1))
	a.Equal(hub.StateConnected, f.ctl.State(0))
	a.Equal(1, f.factory.LiveCount())

	f.ctl.Disconnect()
	a.False(f.ctl.AnyServerConnected())
	a.Equal(0, f.factory.LiveCount())
}

func TestBulkPermissionsScoping(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, 2)

	f.ctl.CreateConnections()
	a.True(f.waitState(0, hub.StateConnected))
	a.True(f.waitState(1, hub.StateConnected))

	ctx := context.Background()
	err := f.ctl.SetBulkPermissions(ctx, 1, protocol.BulkPermissionsDto{
		AffectedUsers: map[string]protocol.UserPermissions{
			"U1": protocol.UserPermissionsPaired | protocol.UserPermissionsPaused,
		},
	})
	a.Nil(err)
	a.Len(f.hubs[1].Invocations(protocol.MethodSetBulkPermissions), 1)
	a.Len(f.hubs[0].Invocations(protocol.MethodSetBulkPermissions), 0)

	p, found := f.ctl.Pairs().Pair(1, "U1")
	a.True(found)
	a.True(p.IsPaused())
	p, found = f.ctl.Pairs().Pair(0, "U1")
	a.True(found)
	a.False(p.IsPaused())

	a.Nil(f.ctl.Pause(ctx, 0, "U1", true))
	p, _ = f.ctl.Pairs().Pair(0, "U1")
	a.True(p.IsPaused())

	a.ErrorIs(f.ctl.SetBulkPermissions(ctx, 5, protocol.BulkPermissionsDto{}), errcode.ErrUnknownServer)
}

func TestPlaceholders(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, 1)

	a.Equal("server-a", f.ctl.DisplayName(0))
	a.Equal("#3", f.ctl.DisplayName(3))
	a.Equal("", f.ctl.UID(3))
	a.Equal(hub.StateDisconnected, f.ctl.State(3))
	a.NotEmpty(f.ctl.ErrorMessage(3))

	summary := f.ctl.Summary(3)
	a.Equal(protocol.ServerIndex(3), summary.Index)
	a.Equal(hub.StateDisconnected, summary.State)

	summaries := f.ctl.Summaries()
	a.Len(summaries, 1)
	a.Equal("server-a", summaries[0].Name)

	a.ErrorIs(f.ctl.Pause(context.Background(), 0, "U1", true), errcode.ErrNotConnected)
}

func TestReconcile(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, 2)

	f.ctl.CreateConnections()
	a.True(f.waitState(0, hub.StateConnected))
	a.True(f.waitState(1, hub.StateConnected))
	a.Len(f.ctl.Pairs().Pairs(1), 1)

	a.Nil(f.cfg.SetServerDisabled(1, true))
	f.ctl.CreateConnections()
	a.Equal(1, f.factory.LiveCount())
	a.Empty(f.ctl.Pairs().Pairs(1))
	a.Equal(hub.StateDisconnected, f.ctl.State(1))
	a.Len(f.ctl.Pairs().Pairs(0), 1)
}

func TestAutoLoginAndFullPause(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, 2)
	manual := false
	f.cfg.Servers[1].AutoLogin = &manual

	f.ctl.AutoLogin()
	a.True(f.waitState(0, hub.StateConnected))
	a.True(f.waitState(1, hub.StateNoAutoLogin))

	a.Nil(f.ctl.SetFullPause(0, true))
	a.Equal(hub.StateDisconnected, f.ctl.State(0))
	a.Equal(0, f.factory.LiveCount())

	a.Nil(f.ctl.SetFullPause(0, false))
	a.True(f.waitState(0, hub.StateConnected))
	a.ErrorIs(f.ctl.SetFullPause(7, true), errcode.ErrUnknownServer)
}

func TestOnlineUsers(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, 2)

	f.ctl.CreateConnections()
	a.True(f.waitState(0, hub.StateConnected))
	a.True(f.waitState(1, hub.StateConnected))

	f.hubs[0].Push(protocol.EventUpdateSystemInfo, &protocol.SystemInfoDto{OnlineUsers: 3})
	f.hubs[1].Push(protocol.EventUpdateSystemInfo, &protocol.SystemInfoDto{OnlineUsers: 4})
	a.True(hubtest.WaitFor(func() bool { return f.ctl.OnlineUsers() == 7 }))

	f.ctl.Disconnect(1)
	a.Equal(3, f.ctl.OnlineUsers())
}
