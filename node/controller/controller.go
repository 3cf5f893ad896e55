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
	"sort"
	"sync"

	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/hub"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Controller aggregates the hub clients of all configured servers. The
// clients are independent: a failing server never affects the others.
type Controller struct {
	closed atomic.Bool
	opts   hub.Options

	// mu serializes the reconciliation of the client set.
	mu      sync.Mutex
	clients sync.Map // protocol.ServerIndex -> *hub.Client
}

// New returns a controller. opts is the template of every hub client, its
// collaborators are shared.
func New(opts hub.Options) *Controller {
	if opts.Pairs == nil {
		opts.Pairs = pairs.NewManager(opts.Bus)
	}
	return &Controller{opts: opts}
}

// Pairs returns the shared pairing directory.
func (c *Controller) Pairs() *pairs.Manager {
	return c.opts.Pairs
}

func (c *Controller) client(index protocol.ServerIndex) *hub.Client {
	v, ok := c.clients.Load(index)
	if !ok {
		return nil
	}
	return v.(*hub.Client)
}

func (c *Controller) enabled(index protocol.ServerIndex) bool {
	server, found := c.opts.Config.Server(index)
	return found && !server.Disabled
}

func (c *Controller) enabledIndexes() []protocol.ServerIndex {
	var out []protocol.ServerIndex
	for i := 0; i < c.opts.Config.ServerCount(); i++ {
		if c.enabled(protocol.ServerIndex(i)) {
			out = append(out, protocol.ServerIndex(i))
		}
	}
	return out
}

func (c *Controller) indexes() []protocol.ServerIndex {
	var out []protocol.ServerIndex
	c.clients.Range(func(key, _ interface{}) bool {
		out = append(out, key.(protocol.ServerIndex))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// reconcile drops the clients of servers which were removed or disabled and
// returns the clients of targets, creating the missing ones.
func (c *Controller) reconcile(targets []protocol.ServerIndex) []*hub.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*hub.Client
	for _, index := range c.indexes() {
		if c.enabled(index) {
			continue
		}
		stale = append(stale, c.client(index))
		c.clients.Delete(index)
	}
	closeAll(stale)
	for _, cli := range stale {
		c.opts.Pairs.ClearServer(cli.Index())
	}

	var out []*hub.Client
	for _, index := range targets {
		if !c.enabled(index) {
			zap.L().Warn("Skip unknown or disabled server", zap.Stringer("server", index))
			continue
		}
		cli := c.client(index)
		if cli == nil {
			cli = hub.NewClient(index, c.opts)
			c.clients.Store(index, cli)
			if logutil.IsEnableHub() {
				zap.L().Debug("Hub client created", zap.Stringer("server", index))
			}
		}
		out = append(out, cli)
	}
	return out
}

func closeAll(clients []*hub.Client) {
	var wg sync.WaitGroup
	wg.Add(len(clients))
	for _, cli := range clients {
		go func(cli *hub.Client) {
			defer wg.Done()
			cli.Close()
		}(cli)
	}
	wg.Wait()
}

// CreateConnections connects the servers at indexes, every enabled server
// when none is given. The connections are established concurrently, the
// call returns immediately.
func (c *Controller) CreateConnections(indexes ...protocol.ServerIndex) {
	if c.closed.Load() {
		return
	}
	if len(indexes) == 0 {
		indexes = c.enabledIndexes()
	}
	for _, cli := range c.reconcile(indexes) {
		cli.Connect()
	}
}

// AutoLogin connects every enabled server configured for auto login.
func (c *Controller) AutoLogin() {
	if c.closed.Load() {
		return
	}
	for _, cli := range c.reconcile(c.enabledIndexes()) {
		cli.AutoConnect()
	}
}

// Disconnect disconnects the servers at indexes, every server when none is
// given. It returns once all of them are disconnected.
func (c *Controller) Disconnect(indexes ...protocol.ServerIndex) {
	if len(indexes) == 0 {
		indexes = c.indexes()
	}
	var wg sync.WaitGroup
	for _, index := range indexes {
		cli := c.client(index)
		if cli == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cli.Disconnect()
		}()
	}
	wg.Wait()
}

// SetFullPause pauses or resumes a whole server, then disconnects or
// reconnects it.
func (c *Controller) SetFullPause(index protocol.ServerIndex, paused bool) error {
	if err := c.opts.Config.SetFullPause(index, paused); err != nil {
		return err
	}
	if paused {
		c.Disconnect(index)
		return nil
	}
	c.CreateConnections(index)
	return nil
}

// AnyServerConnected reports whether at least one server is connected.
func (c *Controller) AnyServerConnected() bool {
	return len(c.ConnectedServerIndexes()) > 0
}

// ConnectedServerIndexes returns the sorted indexes of the connected
// servers.
func (c *Controller) ConnectedServerIndexes() []protocol.ServerIndex {
	var out []protocol.ServerIndex
	for _, index := range c.indexes() {
		if cli := c.client(index); cli != nil && cli.IsConnected() {
			out = append(out, index)
		}
	}
	return out
}

// OnlineUsers sums the online user counts last reported by the connected
// servers.
func (c *Controller) OnlineUsers() int {
	total := 0
	for _, index := range c.ConnectedServerIndexes() {
		if cli := c.client(index); cli != nil {
			total += int(cli.SystemInfo().OnlineUsers)
		}
	}
	return total
}

func (c *Controller) lookup(index protocol.ServerIndex) (*hub.Client, error) {
	cli := c.client(index)
	if cli == nil {
		if _, found := c.opts.Config.Server(index); !found {
			return nil, errcode.ErrUnknownServer
		}
		return nil, errcode.ErrNotConnected
	}
	return cli, nil
}

// SetBulkPermissions sends dto to the server at index only.
func (c *Controller) SetBulkPermissions(ctx context.Context, index protocol.ServerIndex, dto protocol.BulkPermissionsDto) error {
	cli, err := c.lookup(index)
	if err != nil {
		return err
	}
	return cli.SetBulkPermissions(ctx, dto)
}

// Pause pauses or resumes the pair uid of the server at index.
func (c *Controller) Pause(ctx context.Context, index protocol.ServerIndex, uid string, paused bool) error {
	cli, err := c.lookup(index)
	if err != nil {
		return err
	}
	return cli.SetPairPaused(ctx, uid, paused)
}

// DisplayName returns the configured name of the server, its index for
// unknown servers.
func (c *Controller) DisplayName(index protocol.ServerIndex) string {
	if server, found := c.opts.Config.Server(index); found && server.Name != "" {
		return server.Name
	}
	return "#" + index.String()
}

// UID returns the uid of the current user on the server at index, empty
// when it never connected.
func (c *Controller) UID(index protocol.ServerIndex) string {
	if cli := c.client(index); cli != nil {
		return cli.UID()
	}
	return ""
}

func (c *Controller) State(index protocol.ServerIndex) hub.State {
	if cli := c.client(index); cli != nil {
		return cli.State()
	}
	return hub.StateDisconnected
}

// ErrorMessage returns the message explaining the state of the server at
// index.
func (c *Controller) ErrorMessage(index protocol.ServerIndex) string {
	if cli := c.client(index); cli != nil {
		return cli.Message()
	}
	if !c.enabled(index) {
		return errcode.ErrUnknownServer.Error()
	}
	return ""
}

// Summary describes the server at index. Servers without a client get a
// disconnected placeholder.
func (c *Controller) Summary(index protocol.ServerIndex) hub.Summary {
	if cli := c.client(index); cli != nil {
		return cli.Summarize()
	}
	return hub.Summary{
		Index:     index,
		Name:      c.DisplayName(index),
		State:     hub.StateDisconnected,
		StateText: hub.StateDisconnected.Localized(),
		Message:   c.ErrorMessage(index),
	}
}

// Summaries describes every configured server.
func (c *Controller) Summaries() []hub.Summary {
	n := c.opts.Config.ServerCount()
	out := make([]hub.Summary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Summary(protocol.ServerIndex(i)))
	}
	return out
}

// Close disconnects every server for good.
func (c *Controller) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var clients []*hub.Client
	for _, index := range c.indexes() {
		clients = append(clients, c.client(index))
		c.clients.Delete(index)
	}
	closeAll(clients)
	zap.L().Info("Controller closed", zap.Int("servers", len(clients)))
}
