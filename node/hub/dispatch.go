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
	"fmt"
	"runtime/debug"

	"github.com/pairmesh/pairsync/codec/serde"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/i18n"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/metrics"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"go.uber.org/zap"
)

// dispatcher is the subscription of a client to the events of one
// connection. stop is the only way to unsubscribe.
type dispatcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	rebuild chan error
}

func newDispatcher(parent context.Context) *dispatcher {
	ctx, cancel := context.WithCancel(parent)
	return &dispatcher{
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		rebuild: make(chan error, 1),
	}
}

// stop cancels the dispatcher and waits until no event can be applied
// anymore.
func (d *dispatcher) stop() {
	d.cancel()
	<-d.done
}

func (d *dispatcher) signal(err error) {
	select {
	case d.rebuild <- err:
	default:
	}
}

func (c *Client) dispatch(d *dispatcher, conn *hubconn.Conn) {
	defer close(d.done)
	defer func() {
		if e := recover(); e != nil {
			zap.L().Error("Dispatch hub events panicked", zap.Stringer("server", c.index), zap.Any("error", e), zap.ByteString("stack", debug.Stack()))
			d.signal(errcode.Network(fmt.Errorf("dispatcher panic: %v", e)))
		}
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e, ok := <-conn.Events():
			if !ok || d.ctx.Err() != nil {
				return
			}
			if !c.handleEvent(d, conn, e) {
				return
			}
		}
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// handleEvent returns false once the connection is unusable.
func (c *Client) handleEvent(d *dispatcher, conn *hubconn.Conn, e hubconn.Event) bool {
	switch e.Type {
	case hubconn.EventTypeMessage:
		c.handleMessage(d.ctx, e.Data.(hubconn.EventMessage))

	case hubconn.EventTypeReconnecting:
		var cause error
		if data, ok := e.Data.(hubconn.EventReconnecting); ok {
			cause = data.Err
		}
		metrics.RecordTransportReconnect(c.index)
		c.setState(StateReconnecting, i18n.L("hub.network", errMessage(cause)))
		c.opts.Pairs.MarkServerOffline(c.index)

	case hubconn.EventTypeReconnected:
		// The server state may have changed meanwhile.
		if err := c.initialize(d.ctx, conn); err != nil {
			if d.ctx.Err() == nil {
				d.signal(err)
			}
			return false
		}

	case hubconn.EventTypeClosed:
		var cause error
		if data, ok := e.Data.(hubconn.EventClosed); ok {
			cause = data.Err
		}
		c.setState(StateOffline, i18n.L("hub.closed", errMessage(cause)))
		c.opts.Pairs.MarkServerOffline(c.index)
		if errcode.IsAuth(cause) {
			c.opts.Tokens.Invalidate(c.index)
		}
		d.signal(nil)
		return false
	}
	return true
}

func (c *Client) handleMessage(ctx context.Context, m hubconn.EventMessage) {
	metrics.RecordEvent(c.index, m.Method)
	msg, err := serde.Deserialize(m.Method, m.Payload)
	if err != nil {
		zap.L().Warn("Drop hub event", zap.Stringer("server", c.index), zap.String("method", m.Method), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	if logutil.IsEnableHub() {
		zap.L().Debug("Hub event", zap.Stringer("server", c.index), zap.String("method", m.Method))
	}

	idx, dir := c.index, c.opts.Pairs
	switch ev := msg.(type) {
	case *protocol.PairAddedEvent:
		err = dir.AddUserPair(idx, ev.UserPairDto)
	case *protocol.PairRemovedEvent:
		err = dir.RemovePair(idx, ev.User.UID)
	case *protocol.PairOnlineEvent:
		err = dir.MarkOnline(idx, ev.User.UID, ev.Ident, true)
	case *protocol.PairOfflineEvent:
		err = dir.MarkOffline(idx, ev.User.UID, true)
	case *protocol.SelfPermissionsChangedEvent:
		err = dir.ApplyPermissionChange(idx, ev.User.UID, ev.Permissions, true)
	case *protocol.OtherPermissionsChangedEvent:
		err = dir.ApplyPermissionChange(idx, ev.User.UID, ev.Permissions, false)
	case *protocol.GroupFullInfoEvent:
		err = dir.AddGroup(idx, ev.GroupFullInfoDto)
	case *protocol.GroupInfoEvent:
		err = dir.UpdateGroupInfo(idx, ev.GroupInfoDto)
	case *protocol.GroupDeletedEvent:
		err = dir.RemoveGroup(idx, ev.Group.GID)
	case *protocol.GroupPairJoinedEvent:
		err = dir.ApplyGroupMembershipChange(idx, pairs.MembershipChange{
			Kind: pairs.MemberJoined,
			GID:  ev.Group.GID,
			User: ev.User,
			Info: ev.UserInfo,
		})
	case *protocol.GroupPairLeftEvent:
		err = dir.ApplyGroupMembershipChange(idx, pairs.MembershipChange{
			Kind: pairs.MemberLeft,
			GID:  ev.Group.GID,
			User: ev.User,
		})
	case *protocol.GroupPairUserInfoEvent:
		err = dir.ApplyGroupMembershipChange(idx, pairs.MembershipChange{
			Kind: pairs.MemberInfoChanged,
			GID:  ev.Group.GID,
			User: protocol.UserData{UID: ev.UID},
			Info: ev.UserInfo,
		})
	case *protocol.GroupPermissionsChangedEvent:
		err = dir.ApplyGroupPermissionChange(idx, ev.Group.GID, ev.Permissions)
	case *protocol.GroupUserPermissionsChangedEvent:
		err = dir.ApplyGroupUserPermissionChange(idx, ev.Group.GID, ev.Permissions)
	case *protocol.UploadStatusEvent:
		err = dir.SetUploadStatus(idx, ev.User.UID)
	case *protocol.CharacterDataEvent:
		err = dir.ReceiveCharacterData(idx, ev.OnlineUserCharaDataDto)
	case *protocol.SystemInfoEvent:
		c.mu.Lock()
		c.sysInfo = ev.SystemInfoDto
		c.mu.Unlock()
	case *protocol.ServerMessageEvent:
		zap.L().Info("Server message", zap.Stringer("server", idx), zap.Uint8("severity", uint8(ev.Severity)), zap.String("message", ev.Message))
		c.opts.Bus.Publish(notify.Event{Type: notify.TypeServerMessage, Server: idx, Data: ev.ServerMessageDto})
	default:
		zap.L().Warn("Unhandled hub event", zap.Stringer("server", idx), zap.String("method", m.Method))
	}

	if err != nil {
		zap.L().Warn("Apply hub event failed", zap.Stringer("server", idx), zap.String("method", m.Method), zap.Error(err))
	}
}
