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
	"time"

	"github.com/pairmesh/pairsync/codec/wire"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/i18n"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/node/metrics"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pairmesh/pairsync/version"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// errRebuild asks the attempt to rebuild the connection from scratch.
var errRebuild = errors.New("rebuild connection")

func (c *Client) run(ctx context.Context, startup bool) {
	if !c.checkPreconditions(startup) {
		return
	}

	for {
		if !c.connectLoop(ctx) {
			return
		}

		err := c.healthLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != errRebuild && !c.handleFailure(ctx, err) {
			return
		}
		zap.L().Info("Rebuild hub connection", zap.Stringer("server", c.index), zap.Error(err))
	}
}

func (c *Client) checkPreconditions(startup bool) bool {
	server, found := c.opts.Config.Server(c.index)
	if !found {
		c.setState(StateDisconnected, errcode.ErrUnknownServer.Error())
		return false
	}
	if server.FullPause {
		c.setState(StateDisconnected, i18n.L("hub.full_pause"))
		return false
	}
	if startup && !server.IsAutoLogin() {
		c.setState(StateNoAutoLogin, i18n.L("hub.no_auto_login"))
		return false
	}
	if _, err := server.Credential(c.opts.Config.CurrentCharacter()); err != nil {
		c.fail(err)
		return false
	}
	return true
}

// connectLoop retries connecting until it succeeds, hits a terminal
// failure or ctx is cancelled.
func (c *Client) connectLoop(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		c.setState(StateConnecting, "")
		metrics.RecordConnectAttempt(c.index)
		c.teardown()

		err := c.connectOnce(ctx)
		if err == nil {
			c.mu.Lock()
			c.failures = 0
			c.mu.Unlock()
			return true
		}
		if !c.handleFailure(ctx, err) {
			return false
		}

		c.mu.Lock()
		c.failures++
		failures := c.failures
		c.mu.Unlock()

		delay := c.opts.Retry.NextDelay(failures)
		zap.L().Info("Retry connecting to hub",
			zap.Stringer("server", c.index),
			zap.Int("failures", failures),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	server, found := c.opts.Config.Server(c.index)
	if !found {
		return errcode.ErrUnknownServer
	}
	transport, err := hubconn.ParseTransport(server.Transport)
	if err != nil {
		return errcode.New(errcode.KindProtocol, errcode.MalformedOperation, err)
	}

	path, err := c.discover(ctx, &server)
	if err != nil {
		return err
	}

	token, err := c.opts.Tokens.GetOrRefreshToken(ctx, c.index)
	if err != nil {
		return err
	}

	conn, err := c.opts.Factory.Build(c.index, hubconn.Options{
		URL:                  server.HubBase() + path,
		Token:                token,
		Transport:            transport,
		Reconnect:            c.opts.Retry,
		MaxReconnectAttempts: c.opts.MaxTransportAttempts,
		HeartbeatInterval:    c.opts.HeartbeatInterval,
	})
	if err != nil {
		return err
	}
	if err := conn.Start(ctx); err != nil {
		c.opts.Factory.Release(conn)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.token = token
	c.mu.Unlock()

	if err := c.initialize(ctx, conn); err != nil {
		return err
	}

	d := newDispatcher(ctx)
	c.mu.Lock()
	c.disp = d
	c.mu.Unlock()
	go c.dispatch(d, conn)
	return nil
}

// discover returns the hub path of the server. The configured path comes
// first, then the default and the legacy ones.
func (c *Client) discover(ctx context.Context, server *config.Server) (string, error) {
	c.mu.RLock()
	cached := c.hubPath
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	var candidates []string
	for _, p := range []string{server.HubPath, constant.DefaultHubPath, constant.LegacyHubPath} {
		if p == "" {
			continue
		}
		dup := false
		for _, x := range candidates {
			dup = dup || x == p
		}
		if !dup {
			candidates = append(candidates, p)
		}
	}

	var lastErr error
	answered := false
	for _, path := range candidates {
		status, err := c.opts.Factory.Probe(ctx, server.HubBase(), path)
		if err != nil {
			if errcode.IsCancelled(err) {
				return "", err
			}
			lastErr = err
			continue
		}
		answered = true
		if status.Found() {
			c.mu.Lock()
			c.hubPath = path
			c.mu.Unlock()
			if logutil.IsEnableHub() {
				zap.L().Debug("Hub endpoint found", zap.Stringer("server", c.index), zap.String("path", path), zap.Stringer("status", status))
			}
			return path, nil
		}
	}

	// Nothing answered at all: the server is unreachable, not hubless.
	if !answered && lastErr != nil {
		return "", lastErr
	}
	return "", errcode.New(errcode.KindConfig, errcode.NoHubFound, errors.Errorf("no hub found at %s", server.HubBase()))
}

// initialize fetches the connection descriptor and the full pairing state
// and applies them. Nothing is written once ctx is cancelled.
func (c *Client) initialize(ctx context.Context, conn *hubconn.Conn) error {
	server, found := c.opts.Config.Server(c.index)
	if !found {
		return errcode.ErrUnknownServer
	}

	var desc protocol.ConnectionDto
	if err := c.call(ctx, conn, protocol.MethodGetConnectionDto, nil, &desc); err != nil {
		return err
	}
	if desc.ServerVersion != version.ProtocolVersion && !server.BypassVersionCheck {
		return errcode.New(errcode.KindProtocol, errcode.VersionMismatch,
			errors.New(i18n.L("hub.version_mismatch", desc.ServerVersion, version.ProtocolVersion)))
	}
	if current := version.NewVersion(); current.OlderThan(desc.CurrentClientVersion) {
		advisory := notify.VersionAdvisory{
			Current: current.SemVer(),
			Latest:  desc.CurrentClientVersion,
			Message: i18n.L("hub.version_advisory", desc.CurrentClientVersion),
		}
		zap.L().Warn("A newer client version is available",
			zap.Stringer("server", c.index),
			zap.String("current", advisory.Current),
			zap.String("latest", advisory.Latest))
		c.opts.Bus.Publish(notify.Event{Type: notify.TypeVersionAdvisory, Server: c.index, Data: advisory})
	}

	groups := &protocol.GroupFullInfoList{}
	if err := c.call(ctx, conn, protocol.MethodGroupsGetAll, nil, groups); err != nil {
		return err
	}
	pairList := &protocol.UserFullPairList{}
	if err := c.call(ctx, conn, protocol.MethodUserGetPairedClients, nil, pairList); err != nil {
		return err
	}
	var req wire.Message
	if census := c.census(&server); census != nil {
		req = census
	}
	online := &protocol.OnlineUserIdentList{}
	if err := c.call(ctx, conn, protocol.MethodUserGetOnlinePairs, req, online); err != nil {
		return err
	}

	// Last suspension point is behind, check before writing anything.
	if ctx.Err() != nil {
		return errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
	}
	if !conn.Connected() {
		return errcode.Network(errors.New("connection lost during the initial sync"))
	}

	c.mu.Lock()
	c.desc = &desc
	c.mu.Unlock()

	err := c.opts.Pairs.SyncServer(c.index, pairs.ServerState{
		Groups: groups.Items,
		Pairs:  pairList.Items,
		Online: online.Items,
	})
	if err != nil {
		return errcode.New(errcode.KindProtocol, errcode.MalformedOperation, errors.WithMessage(err, "apply initial state"))
	}
	c.setState(StateConnected, "")

	zap.L().Info("Hub connected",
		zap.Stringer("server", c.index),
		zap.String("uid", desc.User.UID),
		zap.String("shard", desc.ServerInfo.ShardName),
		zap.Int("groups", len(groups.Items)),
		zap.Int("pairs", len(pairList.Items)),
		zap.Int("online", len(online.Items)))
	return nil
}

// census returns the census payload of the online pairs request, nil for
// servers which didn't opt in.
func (c *Client) census(server *config.Server) *protocol.CensusDataDto {
	if !server.SendCensus {
		return nil
	}
	data := c.opts.Config.CensusData()
	return &protocol.CensusDataDto{
		WorldID: c.opts.Config.CurrentCharacter().WorldID,
		RaceID:  data.RaceID,
		TribeID: data.TribeID,
		Gender:  data.Gender,
	}
}

// healthLoop checks the connection every health interval. It returns nil
// when ctx is cancelled and errRebuild, or the cause, when the connection
// must be rebuilt.
func (c *Client) healthLoop(ctx context.Context) error {
	c.mu.RLock()
	d := c.disp
	c.mu.RUnlock()

	ticker := time.NewTicker(c.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-d.rebuild:
			if err == nil {
				return errRebuild
			}
			return err
		case <-ticker.C:
		}

		token, err := c.opts.Tokens.GetOrRefreshToken(ctx, c.index)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errcode.KindOf(err) == errcode.KindNetwork {
				zap.L().Warn("Refresh token failed", zap.Stringer("server", c.index), zap.Error(err))
				continue
			}
			return err
		}

		c.mu.RLock()
		rotated := token != c.token
		c.mu.RUnlock()
		if rotated {
			zap.L().Info("Token rotated", zap.Stringer("server", c.index))
			return errRebuild
		}

		if c.State() != StateConnected {
			continue
		}
		healthy, err := c.CheckClientHealth(ctx)
		if err != nil && ctx.Err() == nil {
			zap.L().Warn("Health check failed", zap.Stringer("server", c.index), zap.Error(err))
		} else if logutil.IsEnableHub() {
			zap.L().Debug("Health check", zap.Stringer("server", c.index), zap.Bool("healthy", healthy))
		}
	}
}

// handleFailure translates err into a state. It returns whether the
// connect loop may go on.
func (c *Client) handleFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errcode.IsCancelled(err) {
		return false
	}
	kind := errcode.KindOf(err)
	metrics.RecordConnectFailure(c.index, kind.String())

	if kind == errcode.KindNetwork {
		zap.L().Warn("Connect to hub failed", zap.Stringer("server", c.index), zap.Error(err))
		c.teardown()
		c.setState(StateReconnecting, i18n.L("hub.network", err.Error()))
		return true
	}

	zap.L().Error("Connect to hub failed", zap.Stringer("server", c.index), zap.Stringer("kind", kind), zap.Error(err))
	if kind == errcode.KindAuth {
		c.opts.Tokens.Invalidate(c.index)
	}
	c.teardown()
	c.fail(err)
	return false
}

// fail sets the terminal state matching err.
func (c *Client) fail(err error) {
	switch errcode.CodeOf(err) {
	case errcode.NoSecretKey:
		c.setState(StateNoSecretKey, i18n.L("hub.no_secret_key"))
		return
	case errcode.MultiCharacter:
		c.setState(StateMultiCharacter, i18n.L("hub.multi_character"))
		return
	case errcode.OAuthMisconfigured:
		c.setState(StateOAuthMisconfigured, i18n.L("hub.oauth_misconfigured"))
		return
	case errcode.OAuthTokenStale:
		c.setState(StateOAuthTokenStale, i18n.L("hub.oauth_token_stale"))
		return
	case errcode.VersionMismatch:
		c.setState(StateVersionMismatch, err.Error())
		return
	case errcode.NoHubFound:
		base := ""
		if server, found := c.opts.Config.Server(c.index); found {
			base = server.HubBase()
		}
		c.setState(StateNoHubFound, i18n.L("hub.no_hub_found", base))
		return
	}

	switch errcode.KindOf(err) {
	case errcode.KindAuth:
		c.setState(StateUnauthorized, i18n.L("hub.unauthorized", err.Error()))
	case errcode.KindRateLimited:
		c.setState(StateRateLimited, i18n.L("hub.rate_limited"))
	case errcode.KindProtocol:
		c.setState(StateDisconnected, i18n.L("hub.malformed", err.Error()))
	default:
		c.setState(StateDisconnected, err.Error())
	}
}
