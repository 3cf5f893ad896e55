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
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/metrics"
	"github.com/pairmesh/pairsync/protocol"
	"go.uber.org/zap"
)

func (c *Client) call(ctx context.Context, conn *hubconn.Conn, method string, req, res wire.Message) error {
	start := time.Now()
	err := conn.Invoke(ctx, method, req, res)
	metrics.RecordInvocation(c.index, method, time.Since(start))
	if err != nil && logutil.IsEnableHub() {
		zap.L().Debug("Invoke hub method failed", zap.Stringer("server", c.index), zap.String("method", method), zap.Error(err))
	}
	return err
}

// invoke calls method on the live connection. Every outward operation
// requires StateConnected.
func (c *Client) invoke(ctx context.Context, method string, req, res wire.Message) error {
	c.mu.RLock()
	state, conn := c.state, c.conn
	c.mu.RUnlock()
	if state != StateConnected || conn == nil {
		return errcode.ErrNotConnected
	}
	return c.call(ctx, conn, method, req, res)
}

// GroupsGetAll returns the full info of every syncshell the user is in.
func (c *Client) GroupsGetAll(ctx context.Context) ([]protocol.GroupFullInfoDto, error) {
	res := &protocol.GroupFullInfoList{}
	if err := c.invoke(ctx, protocol.MethodGroupsGetAll, nil, res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// UserGetPairedClients returns every pair of the user, direct or through a syncshell.
func (c *Client) UserGetPairedClients(ctx context.Context) ([]protocol.UserFullPairDto, error) {
	res := &protocol.UserFullPairList{}
	if err := c.invoke(ctx, protocol.MethodUserGetPairedClients, nil, res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// UserGetOnlinePairs returns the online pairs. census is sent along when
// not nil.
func (c *Client) UserGetOnlinePairs(ctx context.Context, census *protocol.CensusDataDto) ([]protocol.OnlineUserIdentDto, error) {
	var req wire.Message
	if census != nil {
		req = census
	}
	res := &protocol.OnlineUserIdentList{}
	if err := c.invoke(ctx, protocol.MethodUserGetOnlinePairs, req, res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// UserAddPair pairs the user directly with uid.
func (c *Client) UserAddPair(ctx context.Context, uid string) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	return c.invoke(ctx, protocol.MethodUserAddPair, &protocol.UserDto{User: protocol.UserData{UID: uid}}, nil)
}

// UserRemovePair removes the direct pair with uid.
func (c *Client) UserRemovePair(ctx context.Context, uid string) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	return c.invoke(ctx, protocol.MethodUserRemovePair, &protocol.UserDto{User: protocol.UserData{UID: uid}}, nil)
}

// UserSetPairPermissions sets the permissions the user grants to uid.
func (c *Client) UserSetPairPermissions(ctx context.Context, uid string, perms protocol.UserPermissions) error {
	if uid == "" {
		return errcode.ErrInvalidRecord
	}
	return c.invoke(ctx, protocol.MethodUserSetPairPermissions, &protocol.UserPermissionsDto{
		User:        protocol.UserData{UID: uid},
		Permissions: perms,
	}, nil)
}

// SetBulkPermissions sends the permissions and applies them to the
// records of this server once the hub accepted them.
func (c *Client) SetBulkPermissions(ctx context.Context, dto protocol.BulkPermissionsDto) error {
	if err := c.invoke(ctx, protocol.MethodSetBulkPermissions, &dto, nil); err != nil {
		return err
	}
	return c.opts.Pairs.ApplyBulkPermissions(c.index, dto)
}

// SetPairPaused pauses or resumes a pair.
func (c *Client) SetPairPaused(ctx context.Context, uid string, paused bool) error {
	p, found := c.opts.Pairs.Pair(c.index, uid)
	if !found {
		return errcode.ErrUnknownPair
	}
	perms := p.OwnPermissions.SetPaused(paused)
	if err := c.UserSetPairPermissions(ctx, uid, perms); err != nil {
		return err
	}
	return c.opts.Pairs.ApplyPermissionChange(c.index, uid, perms, true)
}

// GroupCreate creates a syncshell with alias and returns its password.
func (c *Client) GroupCreate(ctx context.Context, alias string) (protocol.GroupPasswordDto, error) {
	var res protocol.GroupPasswordDto
	err := c.invoke(ctx, protocol.MethodGroupCreate, &protocol.GroupDto{Group: protocol.GroupData{Alias: alias}}, &res)
	return res, err
}

// GroupJoin joins a syncshell and reports whether the hub accepted it.
func (c *Client) GroupJoin(ctx context.Context, gid, password string) (bool, error) {
	var res protocol.HealthDto
	err := c.invoke(ctx, protocol.MethodGroupJoin, &protocol.GroupPasswordDto{
		Group:    protocol.GroupData{GID: gid},
		Password: password,
	}, &res)
	return res.Healthy, err
}

// GroupLeave leaves the syncshell gid.
func (c *Client) GroupLeave(ctx context.Context, gid string) error {
	if gid == "" {
		return errcode.ErrInvalidRecord
	}
	return c.invoke(ctx, protocol.MethodGroupLeave, &protocol.GroupDto{Group: protocol.GroupData{GID: gid}}, nil)
}

// CheckClientHealth asks the hub whether it still considers the client healthy.
func (c *Client) CheckClientHealth(ctx context.Context) (bool, error) {
	var res protocol.HealthDto
	err := c.invoke(ctx, protocol.MethodCheckClientHealth, nil, &res)
	return res.Healthy, err
}

// UserPushData pushes opaque character data to recipients.
func (c *Client) UserPushData(ctx context.Context, dto protocol.UserCharaDataMessageDto) error {
	return c.invoke(ctx, protocol.MethodUserPushData, &dto, nil)
}
