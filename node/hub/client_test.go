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

package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/hubtest"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/auth"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pairmesh/pairsync/version"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

func TestMain(m *testing.M) {
	logutil.EnableAll()
	logutil.InitTestLogger()
	os.Exit(m.Run())
}

const secretKey = "secret-1"

func newConfig(uri string) *config.Config {
	cfg := config.New()
	cfg.Character = config.Character{Name: "Alice", WorldID: 42}
	cfg.Servers = []*config.Server{
		{
			Name:       "main",
			URI:        uri,
			SecretKeys: map[string]string{"k1": secretKey},
			Authentications: []config.Authentication{
				{Character: "Alice", WorldID: 42, SecretKey: "k1"},
			},
		},
	}
	return cfg
}

// fakeTokens issues tokens straight from the fake hub.
type fakeTokens struct {
	hub         *hubtest.Hub
	invalidated *atomic.Int64

	mu    sync.Mutex
	token string
}

func newFakeTokens(hub *hubtest.Hub) *fakeTokens {
	return &fakeTokens{hub: hub, invalidated: atomic.NewInt64(0)}
}

func (f *fakeTokens) GetOrRefreshToken(_ context.Context, _ protocol.ServerIndex) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		f.token = f.hub.Token(hubtest.UIDFor(secretKey))
	}
	return f.token, nil
}

func (f *fakeTokens) Invalidate(_ protocol.ServerIndex) {
	f.invalidated.Inc()
	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
}

func (f *fakeTokens) rotate() {
	f.hub.RotateSecret()
	f.mu.Lock()
	f.token = f.hub.Token(hubtest.UIDFor(secretKey))
	f.mu.Unlock()
}

type fixture struct {
	hub     *hubtest.Hub
	cfg     *config.Config
	factory *hubconn.Factory
	bus     *notify.Bus
	pairs   *pairs.Manager
	client  *Client
}

func newFixture(t *testing.T, tokens TokenProvider, prepare func(*hubtest.Hub, *config.Config)) *fixture {
	hub := hubtest.New("/mare")
	cfg := newConfig(hub.URL())
	if prepare != nil {
		prepare(hub, cfg)
	}
	if tokens == nil {
		tokens = auth.NewProvider(cfg, nil, "machine")
	}

	f := &fixture{
		hub:     hub,
		cfg:     cfg,
		factory: hubconn.NewFactory(),
		bus:     notify.NewBus(),
	}
	f.pairs = pairs.NewManager(f.bus)
	f.client = NewClient(0, Options{
		Config:            cfg,
		Factory:           f.factory,
		Tokens:            tokens,
		Pairs:             f.pairs,
		Bus:               f.bus,
		Retry:             backoff.NewFixed(10*time.Millisecond, 20*time.Millisecond),
		HealthInterval:    50 * time.Millisecond,
		HeartbeatInterval: time.Second,
	})
	t.Cleanup(func() {
		f.client.Close()
		f.factory.Close()
		hub.Close()
	})
	return f
}

func (f *fixture) waitState(state State) bool {
	return hubtest.WaitFor(func() bool { return f.client.State() == state })
}

func TestConnect(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetState(
			[]protocol.GroupFullInfoDto{{Group: protocol.GroupData{GID: "G1"}}},
			[]protocol.UserFullPairDto{
				{User: protocol.UserData{UID: "U1"}, Status: protocol.IndividualPairStatusBidirectional},
				{User: protocol.UserData{UID: "U2"}, Groups: []string{"G1"}},
			},
			[]protocol.OnlineUserIdentDto{{User: protocol.UserData{UID: "U1"}, Ident: "ident-1"}},
		)
	})

	events, cancel := f.bus.Subscribe(64)
	defer cancel()

	f.client.Connect()
	a.True(f.waitState(StateConnected))
	a.Equal(hubtest.UIDFor(secretKey), f.client.UID())
	a.Equal(1, f.factory.LiveCount())

	p, found := f.pairs.Pair(0, "U1")
	a.True(found)
	a.True(p.Online)
	a.Equal("ident-1", p.Ident)
	p, found = f.pairs.Pair(0, "U2")
	a.True(found)
	a.False(p.Online)
	a.Len(f.pairs.Groups(0), 1)
	a.Equal(1, f.pairs.OnlineCount())

	summary := f.client.Summarize()
	a.Equal("main", summary.Name)
	a.Equal("test", summary.ShardName)
	a.Equal(StateConnected, summary.State)

	var states []string
	timeout := time.After(time.Second)
	for len(states) < 2 {
		select {
		case e := <-events:
			if e.Type == notify.TypeStateChanged {
				states = append(states, e.Data.(notify.StateChanged).State)
			}
		case <-timeout:
			t.Fatalf("missing state changes: %v", states)
		}
	}
	a.Equal([]string{"connecting", "connected"}, states)
}

func TestConnectTwice(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, nil)

	f.client.Connect()
	f.client.Connect()
	a.True(f.waitState(StateConnected))
	a.Equal(1, f.factory.LiveCount())
	a.True(hubtest.WaitFor(func() bool { return len(f.hub.Sessions()) == 1 }))

	f.client.Connect()
	a.True(hubtest.WaitFor(func() bool { return f.hub.Connects() >= 2 && f.client.IsConnected() }))
	a.Equal(1, f.factory.LiveCount())
	a.True(hubtest.WaitFor(func() bool { return len(f.hub.Sessions()) == 1 }))
}

func TestDisconnect(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetState(nil,
			[]protocol.UserFullPairDto{{User: protocol.UserData{UID: "U1"}, Status: protocol.IndividualPairStatusBidirectional}},
			[]protocol.OnlineUserIdentDto{{User: protocol.UserData{UID: "U1"}, Ident: "ident-1"}},
		)
	})

	f.client.Connect()
	a.True(f.waitState(StateConnected))
	a.Equal(1, f.pairs.OnlineCount())

	f.client.Disconnect()
	a.Equal(StateDisconnected, f.client.State())
	a.Equal(0, f.factory.LiveCount())
	a.Equal(0, f.pairs.OnlineCount())
	a.Equal("", f.client.UID())

	_, err := f.client.GroupCreate(context.Background(), "shell")
	a.ErrorIs(err, errcode.ErrNotConnected)
}

// blockOnlinePairs makes the online pairs request of the initial sync
// wait until the returned release channel is closed. entered receives one
// value per request.
func blockOnlinePairs(hub *hubtest.Hub) (entered chan struct{}, release chan struct{}) {
	entered = make(chan struct{}, 8)
	release = make(chan struct{})
	hub.Handle(protocol.MethodUserGetOnlinePairs, func(_ *hubtest.Session, _ []byte) hubtest.Result {
		entered <- struct{}{}
		<-release
		return hubtest.OK(&protocol.OnlineUserIdentList{})
	})
	return entered, release
}

func waitEntered(t *testing.T, entered chan struct{}) {
	t.Helper()
	select {
	case <-entered:
	case <-time.After(hubtest.WaitTime):
		t.Fatal("initial sync never reached the online pairs request")
	}
}

// connectedStates counts the Connected notifications received so far.
func connectedStates(events <-chan notify.Event) int {
	n := 0
	for {
		select {
		case e := <-events:
			if e.Type == notify.TypeStateChanged && e.Data.(notify.StateChanged).State == StateConnected.String() {
				n++
			}
		default:
			return n
		}
	}
}

func TestDisconnectDuringSync(t *testing.T) {
	a := assert.New(t)
	var entered, release chan struct{}
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetState(nil,
			[]protocol.UserFullPairDto{{User: protocol.UserData{UID: "U1"}, Status: protocol.IndividualPairStatusBidirectional}},
			nil,
		)
		entered, release = blockOnlinePairs(hub)
	})
	defer close(release)

	events, cancel := f.bus.Subscribe(64)
	defer cancel()

	f.client.Connect()
	waitEntered(t, entered)
	f.client.Disconnect()

	a.Equal(StateDisconnected, f.client.State())
	a.Empty(f.pairs.Pairs(0))
	a.Empty(f.pairs.Groups(0))
	a.False(f.pairs.IsServerConnected(0))
	a.Equal("", f.client.UID())
	a.Equal(0, connectedStates(events))
}

func TestConnectSupersedesSync(t *testing.T) {
	a := assert.New(t)
	var entered, release chan struct{}
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetState(nil,
			[]protocol.UserFullPairDto{{User: protocol.UserData{UID: "U1"}, Status: protocol.IndividualPairStatusBidirectional}},
			nil,
		)
		entered, release = blockOnlinePairs(hub)
	})

	events, cancel := f.bus.Subscribe(64)
	defer cancel()

	f.client.Connect()
	waitEntered(t, entered)

	// The second attempt cancels the first one and blocks at the same step.
	f.client.Connect()
	waitEntered(t, entered)
	a.Empty(f.pairs.Pairs(0))
	a.Equal(0, connectedStates(events))
	a.NotEqual(StateConnected, f.client.State())

	close(release)
	a.True(f.waitState(StateConnected))
	_, found := f.pairs.Pair(0, "U1")
	a.True(found)
	a.Equal(1, f.factory.LiveCount())

	time.Sleep(50 * time.Millisecond)
	a.Equal(1, connectedStates(events))
}

func TestUnauthorized(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetRejectAuth(true)
	})

	f.client.Connect()
	a.True(f.waitState(StateUnauthorized))
	attempts := f.hub.AuthAttempts()
	time.Sleep(100 * time.Millisecond)
	a.Equal(attempts, f.hub.AuthAttempts())
	a.Equal(int64(0), f.hub.Connects())
}

func TestHandshakeRejected(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetRejectHandshake(true)
	})
	tokens := newFakeTokens(f.hub)
	f.client.opts.Tokens = tokens

	f.client.Connect()
	a.True(f.waitState(StateUnauthorized))
	a.Equal(int64(1), tokens.invalidated.Load())

	time.Sleep(100 * time.Millisecond)
	a.Equal(int64(1), f.hub.Handshakes())
	a.Equal(int64(0), f.hub.Connects())
	a.Equal(StateUnauthorized, f.client.State())
	a.Equal(0, f.factory.LiveCount())
}

func TestRateLimited(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetRateLimit(true)
	})

	f.client.Connect()
	a.True(f.waitState(StateRateLimited))
}

func TestVersionMismatch(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetServerVersion(1)
	})

	f.client.Connect()
	a.True(f.waitState(StateVersionMismatch))
	a.NotEmpty(f.client.Message())
	a.Equal(0, f.factory.LiveCount())
	a.Empty(f.pairs.Pairs(0))
}

func TestBypassVersionCheck(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, cfg *config.Config) {
		hub.SetServerVersion(1)
		hub.SetCurrentClientVersion("99.0.0")
		cfg.Servers[0].BypassVersionCheck = true
	})

	events, cancel := f.bus.Subscribe(64)
	defer cancel()

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	for {
		select {
		case e := <-events:
			if e.Type != notify.TypeVersionAdvisory {
				continue
			}
			advisory := e.Data.(notify.VersionAdvisory)
			a.Equal("99.0.0", advisory.Latest)
			a.Equal("A newer client version 99.0.0 is available", advisory.Message)
			return
		case <-time.After(time.Second):
			t.Fatal("missing version advisory")
		}
	}
}

func TestNoHubFound(t *testing.T) {
	a := assert.New(t)
	hub := hubtest.New("/elsewhere")
	defer hub.Close()
	f := newFixture(t, nil, func(_ *hubtest.Hub, cfg *config.Config) {
		cfg.Servers[0].URI = hub.URL()
	})

	f.client.Connect()
	a.True(f.waitState(StateNoHubFound))
	a.Equal(int64(0), hub.Connects())
}

func TestUnreachable(t *testing.T) {
	a := assert.New(t)
	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	f := newFixture(t, nil, func(_ *hubtest.Hub, cfg *config.Config) {
		cfg.Servers[0].URI = closed.URL
	})

	f.client.Connect()
	a.True(f.waitState(StateReconnecting))
	a.True(hubtest.WaitFor(func() bool { return f.client.Summarize().Failures >= 2 }))

	f.client.Disconnect()
	a.Equal(StateDisconnected, f.client.State())
}

func TestPreconditions(t *testing.T) {
	a := assert.New(t)
	autoLogin := false
	f := newFixture(t, nil, func(_ *hubtest.Hub, cfg *config.Config) {
		cfg.Servers[0].AutoLogin = &autoLogin
	})

	f.client.AutoConnect()
	a.True(f.waitState(StateNoAutoLogin))

	a.Nil(f.cfg.SetFullPause(0, true))
	f.client.Connect()
	a.True(hubtest.WaitFor(func() bool {
		return f.client.State() == StateDisconnected && f.client.Message() != ""
	}))
	a.Nil(f.cfg.SetFullPause(0, false))

	f.cfg.SetCharacter(config.Character{Name: "Bob", WorldID: 1})
	f.client.Connect()
	a.True(f.waitState(StateNoSecretKey))
	a.Equal(int64(0), f.hub.AuthAttempts())
}

func TestMultiCharacter(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(_ *hubtest.Hub, cfg *config.Config) {
		cfg.Servers[0].Authentications = append(cfg.Servers[0].Authentications,
			config.Authentication{Character: "alice", WorldID: 42, SecretKey: "k1"})
	})

	f.client.Connect()
	a.True(f.waitState(StateMultiCharacter))
}

func TestTransportReconnect(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, nil)

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	f.hub.SetState(nil,
		[]protocol.UserFullPairDto{{User: protocol.UserData{UID: "U9"}, Status: protocol.IndividualPairStatusBidirectional}},
		nil,
	)
	f.hub.DropAll()

	a.True(hubtest.WaitFor(func() bool {
		_, found := f.pairs.Pair(0, "U9")
		return found && f.client.IsConnected()
	}))
	a.Equal(int64(2), f.hub.Connects())
	a.Len(f.hub.Invocations(protocol.MethodGetConnectionDto), 2)
}

// The hub replays a burst of events before it answers the descriptor
// request, on the first connect and again after the transport drops.
func TestEventBurstDuringSync(t *testing.T) {
	a := assert.New(t)
	const burst = 400
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.Handle(protocol.MethodGetConnectionDto, func(s *hubtest.Session, _ []byte) hubtest.Result {
			for i := 1; i <= burst; i++ {
				s.Push(protocol.EventUpdateSystemInfo, &protocol.SystemInfoDto{OnlineUsers: int32(i)})
			}
			return hubtest.OK(&protocol.ConnectionDto{
				User:          protocol.UserData{UID: s.UID},
				ServerVersion: version.ProtocolVersion,
			})
		})
	})

	f.client.Connect()
	a.True(f.waitState(StateConnected))
	a.True(hubtest.WaitFor(func() bool { return f.client.SystemInfo().OnlineUsers == burst }))

	f.hub.DropAll()
	a.True(hubtest.WaitFor(func() bool { return f.hub.Connects() == 2 && f.client.IsConnected() }))
	a.Len(f.hub.Invocations(protocol.MethodGetConnectionDto), 2)
	a.True(hubtest.WaitFor(func() bool { return f.client.SystemInfo().OnlineUsers == burst }))
}

func TestTokenRotation(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, nil)
	tokens := newFakeTokens(f.hub)
	f.client.opts.Tokens = tokens

	f.client.Connect()
	a.True(f.waitState(StateConnected))
	a.Equal(int64(1), f.hub.Connects())

	tokens.rotate()
	a.True(hubtest.WaitFor(func() bool { return f.hub.Connects() >= 2 && f.client.IsConnected() }))
	a.Equal(1, f.factory.LiveCount())
}

func TestShortLivedToken(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetTokenTTL(3 * time.Minute)
	})

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	// Several health checks run, none of them rebuilds the connection.
	a.True(hubtest.WaitFor(func() bool { return len(f.hub.Invocations(protocol.MethodCheckClientHealth)) >= 5 }))
	a.Equal(int64(1), f.hub.Connects())
	a.Equal(int64(1), f.hub.AuthAttempts())
	a.True(f.client.IsConnected())
}

func TestClosedByAuth(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, nil)
	tokens := newFakeTokens(f.hub)
	f.client.opts.Tokens = tokens

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	f.hub.SendClose(401, "token expired")
	a.True(hubtest.WaitFor(func() bool { return f.hub.Connects() >= 2 && f.client.IsConnected() }))
	a.Equal(int64(1), tokens.invalidated.Load())
}

func TestEvents(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetState(
			[]protocol.GroupFullInfoDto{{Group: protocol.GroupData{GID: "G1"}}},
			[]protocol.UserFullPairDto{{User: protocol.UserData{UID: "U1"}, Status: protocol.IndividualPairStatusBidirectional}},
			nil,
		)
	})

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	f.hub.Push(protocol.EventUserSendOnline, &protocol.OnlineUserIdentDto{User: protocol.UserData{UID: "U1"}, Ident: "ident-1"})
	f.hub.Push(protocol.EventUserAddClientPair, &protocol.UserPairDto{User: protocol.UserData{UID: "U2"}})
	f.hub.Push(protocol.EventGroupPairJoined, &protocol.GroupPairFullInfoDto{
		Group: protocol.GroupData{GID: "G1"},
		User:  protocol.UserData{UID: "U3"},
	})
	f.hub.Push(protocol.EventUpdateSystemInfo, &protocol.SystemInfoDto{OnlineUsers: 7})
	f.hub.Push(protocol.EventUserUpdateOtherPairPermissions, &protocol.UserPermissionsDto{
		User:        protocol.UserData{UID: "U1"},
		Permissions: protocol.UserPermissionsPaired | protocol.UserPermissionsPaused,
	})

	a.True(hubtest.WaitFor(func() bool {
		p, found := f.pairs.Pair(0, "U1")
		return found && p.Online && p.OtherPermissions.IsPaused()
	}))
	a.True(hubtest.WaitFor(func() bool {
		p, found := f.pairs.Pair(0, "U2")
		return found && p.Status == protocol.IndividualPairStatusOneSided
	}))
	a.True(hubtest.WaitFor(func() bool {
		_, found := f.pairs.Pair(0, "U3")
		return found
	}))
	a.True(hubtest.WaitFor(func() bool { return f.client.SystemInfo().OnlineUsers == 7 }))

	// Unknown events are dropped.
	f.hub.Push("Client_Unknown", nil)
	f.hub.Push(protocol.EventGroupDelete, &protocol.GroupDto{Group: protocol.GroupData{GID: "G1"}})
	a.True(hubtest.WaitFor(func() bool {
		_, found := f.pairs.Pair(0, "U3")
		return !found && len(f.pairs.Groups(0)) == 0
	}))
	a.True(f.client.IsConnected())
}

func TestOperations(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(hub *hubtest.Hub, _ *config.Config) {
		hub.SetState(nil,
			[]protocol.UserFullPairDto{{
				User:           protocol.UserData{UID: "U1"},
				Status:         protocol.IndividualPairStatusBidirectional,
				OwnPermissions: protocol.UserPermissionsPaired,
			}},
			nil,
		)
	})
	ctx := context.Background()

	_, err := f.client.CheckClientHealth(ctx)
	a.ErrorIs(err, errcode.ErrNotConnected)

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	healthy, err := f.client.CheckClientHealth(ctx)
	a.Nil(err)
	a.True(healthy)

	created, err := f.client.GroupCreate(ctx, "shell")
	a.Nil(err)
	a.Equal("G-NEW", created.Group.GID)
	a.Equal("secret", created.Password)

	joined, err := f.client.GroupJoin(ctx, "G-NEW", "secret")
	a.Nil(err)
	a.True(joined)

	a.Nil(f.client.UserAddPair(ctx, "U2"))
	a.ErrorIs(f.client.UserAddPair(ctx, ""), errcode.ErrInvalidRecord)
	a.Len(f.hub.Invocations(protocol.MethodUserAddPair), 1)

	a.Nil(f.client.SetPairPaused(ctx, "U1", true))
	p, _ := f.pairs.Pair(0, "U1")
	a.True(p.IsPaused())
	a.ErrorIs(f.client.SetPairPaused(ctx, "U404", true), errcode.ErrUnknownPair)

	a.Nil(f.client.SetBulkPermissions(ctx, protocol.BulkPermissionsDto{
		AffectedUsers: map[string]protocol.UserPermissions{"U1": protocol.UserPermissionsPaired},
	}))
	p, _ = f.pairs.Pair(0, "U1")
	a.False(p.IsPaused())
	a.Len(f.hub.Invocations(protocol.MethodSetBulkPermissions), 1)

	a.Nil(f.client.UserPushData(ctx, protocol.UserCharaDataMessageDto{
		Recipients: []protocol.UserData{{UID: "U1"}},
		CharaData:  []byte("data"),
	}))
	a.Nil(f.client.GroupLeave(ctx, "G-NEW"))
}

func TestCensus(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t, nil, func(_ *hubtest.Hub, cfg *config.Config) {
		cfg.Servers[0].SendCensus = true
		cfg.Census = config.Census{RaceID: 1, TribeID: 2, Gender: 1}
	})

	f.client.Connect()
	a.True(f.waitState(StateConnected))

	calls := f.hub.Invocations(protocol.MethodUserGetOnlinePairs)
	a.Len(calls, 1)
	var census protocol.CensusDataDto
	a.Nil(census.UnmarshalWire(calls[0]))
	a.Equal(uint32(42), census.WorldID)
	a.Equal(uint32(2), census.TribeID)
}
