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
	"sync"
	"time"

	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/node/metrics"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"go.uber.org/zap"
)

// TokenProvider issues the tokens used to connect to the hubs.
type TokenProvider interface {
	GetOrRefreshToken(ctx context.Context, index protocol.ServerIndex) (string, error)
	Invalidate(index protocol.ServerIndex)
}

// Options are the collaborators and the timings of a hub client.
type Options struct {
	Config  config.Accessor
	Factory *hubconn.Factory
	Tokens  TokenProvider
	Pairs   *pairs.Manager
	Bus     *notify.Bus

	// Retry is used for both the connect loop and the transport redials.
	Retry                backoff.Policy
	MaxTransportAttempts int
	HealthInterval       time.Duration
	HeartbeatInterval    time.Duration
}

// attempt is one connect attempt. A new attempt supersedes the previous
// one: it is cancelled and awaited before the new one touches anything.
type attempt struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Client maintains the connection to the hub of one server.
type Client struct {
	index protocol.ServerIndex
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	attemptMu sync.Mutex
	attempt   *attempt

	mu       sync.RWMutex
	state    State
	message  string
	conn     *hubconn.Conn
	disp     *dispatcher
	token    string
	hubPath  string
	desc     *protocol.ConnectionDto
	sysInfo  protocol.SystemInfoDto
	failures int
}

// NewClient returns an idle client of the server at index.
func NewClient(index protocol.ServerIndex, opts Options) *Client {
	if opts.Retry == nil {
		opts.Retry = backoff.Default()
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = constant.HealthInterval
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = constant.HeartbeatInterval
	}
	if opts.Bus == nil {
		opts.Bus = notify.NewBus()
	}
	if opts.Pairs == nil {
		opts.Pairs = pairs.NewManager(opts.Bus)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		index:  index,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
	}
	metrics.SetState(index, c.state.String(), States())
	return c
}

// Index returns the index of the server in the configuration.
func (c *Client) Index() protocol.ServerIndex {
	return c.index
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Message returns the message explaining the current state, if any.
func (c *Client) Message() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.message
}

// UID returns the uid assigned by the hub on the last connect.
func (c *Client) UID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.desc == nil {
		return ""
	}
	return c.desc.User.UID
}

// ConnectionDto returns the descriptor received on the last connect.
func (c *Client) ConnectionDto() (protocol.ConnectionDto, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.desc == nil {
		return protocol.ConnectionDto{}, false
	}
	return *c.desc, true
}

// SystemInfo returns the last system info pushed by the hub.
func (c *Client) SystemInfo() protocol.SystemInfoDto {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sysInfo
}

// IsConnected reports whether the client is in StateConnected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Client) setState(state State, message string) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.message = message
	c.mu.Unlock()

	if prev == state {
		return
	}
	metrics.SetState(c.index, state.String(), States())
	zap.L().Info("Hub state changed",
		zap.Stringer("server", c.index),
		zap.Stringer("from", prev),
		zap.Stringer("to", state),
		zap.String("message", message))
	c.opts.Bus.Publish(notify.Event{
		Type:   notify.TypeStateChanged,
		Server: c.index,
		Data:   notify.StateChanged{State: state.String(), Message: message},
	})
}

// Connect starts a new connect attempt, superseding any previous one. It
// returns immediately, the outcome is observed through State.
func (c *Client) Connect() {
	c.start(false)
}

// AutoConnect is Connect at startup: servers without auto login stay
// idle.
func (c *Client) AutoConnect() {
	c.start(true)
}

func (c *Client) start(startup bool) {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()
	if c.ctx.Err() != nil {
		return
	}

	prev := c.attempt
	if prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	a := &attempt{cancel: cancel, done: make(chan struct{})}
	c.attempt = a

	go func() {
		defer close(a.done)
		if prev != nil {
			<-prev.done
		}
		c.run(ctx, startup)
	}()
}

// Disconnect cancels the current attempt, waits for it and releases the
// connection.
func (c *Client) Disconnect() {
	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()

	if a := c.attempt; a != nil {
		a.cancel()
		<-a.done
		c.attempt = nil
	}

	c.setState(StateDisconnecting, "")
	c.teardown()
	c.mu.Lock()
	c.desc = nil
	c.hubPath = ""
	c.failures = 0
	c.mu.Unlock()
	c.setState(StateDisconnected, "")
}

// Close disconnects the client for good.
func (c *Client) Close() {
	c.Disconnect()
	c.cancel()
}

// teardown stops the dispatcher before the transport so that no event is
// applied once the server is considered gone, then marks its pairs offline.
func (c *Client) teardown() {
	c.mu.Lock()
	d, conn := c.disp, c.conn
	c.disp, c.conn = nil, nil
	c.mu.Unlock()

	if d != nil {
		d.stop()
	}
	if conn != nil {
		c.opts.Factory.Release(conn)
		if logutil.IsEnableHub() {
			zap.L().Debug("Hub connection released", zap.Stringer("server", c.index))
		}
	}
	c.opts.Pairs.MarkServerOffline(c.index)
}

// Summary describes the client for the local API.
type Summary struct {
	Index       protocol.ServerIndex `json:"index"`
	Name        string               `json:"name"`
	State       State                `json:"state"`
	StateText   string               `json:"state_text"`
	Message     string               `json:"message,omitempty"`
	UID         string               `json:"uid,omitempty"`
	ShardName   string               `json:"shard_name,omitempty"`
	OnlineUsers int32                `json:"online_users"`
	Transport   string               `json:"transport,omitempty"`
	Latency     time.Duration        `json:"latency"`
	Failures    int                  `json:"failures"`
}

// Summarize returns the summary of the client.
func (c *Client) Summarize() Summary {
	s := Summary{Index: c.index}
	if server, found := c.opts.Config.Server(c.index); found {
		s.Name = server.Name
	}

	c.mu.RLock()
	s.State = c.state
	s.Message = c.message
	s.OnlineUsers = c.sysInfo.OnlineUsers
	s.Failures = c.failures
	if c.desc != nil {
		s.UID = c.desc.User.UID
		s.ShardName = c.desc.ServerInfo.ShardName
	}
	conn := c.conn
	c.mu.RUnlock()

	s.StateText = s.State.Localized()
	if conn != nil {
		s.Transport = conn.Transport().String()
		s.Latency = conn.Latency()
	}
	return s
}
