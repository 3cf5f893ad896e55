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

package localapi

import (
	"context"
	"net/http"

	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/node/hub"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pairmesh/pairsync/version"
)

type (
	StatusResponse struct {
		Version      string                 `json:"version"`
		AnyConnected bool                   `json:"any_connected"`
		Connected    []protocol.ServerIndex `json:"connected"`
		OnlineUsers  int                    `json:"online_users"`
		OnlinePairs  int                    `json:"online_pairs"`
		VisiblePairs int                    `json:"visible_pairs"`
	}

	// IndexesRequest selects servers. An empty list selects all of them.
	IndexesRequest struct {
		Indexes []protocol.ServerIndex `json:"indexes"`
	}

	PauseRequest struct {
		UID    string `json:"uid"`
		Paused bool   `json:"paused"`
	}

	FullPauseRequest struct {
		Paused bool `json:"paused"`
	}

	// CommandResponse acknowledges a command. Connecting is asynchronous:
	// the outcome is observed through the server summaries.
	CommandResponse struct {
		Summaries []hub.Summary `json:"summaries"`
	}
)

func (s *server) Status(ctx context.Context) (*StatusResponse, error) {
	connected := s.ctl.ConnectedServerIndexes()
	if connected == nil {
		connected = []protocol.ServerIndex{}
	}
	return &StatusResponse{
		Version:      version.NewVersion().SemVer(),
		AnyConnected: len(connected) > 0,
		Connected:    connected,
		OnlineUsers:  s.ctl.OnlineUsers(),
		OnlinePairs:  s.ctl.Pairs().OnlineCount(),
		VisiblePairs: s.ctl.Pairs().VisibleCount(),
	}, nil
}

func (s *server) Servers(ctx context.Context) ([]hub.Summary, error) {
	return s.ctl.Summaries(), nil
}

func (s *server) Server(ctx context.Context, r *http.Request) (*hub.Summary, error) {
	index, err := serverIndex(r)
	if err != nil {
		return nil, err
	}
	summary := s.ctl.Summary(index)
	return &summary, nil
}

func (s *server) Pairs(ctx context.Context, r *http.Request) ([]pairs.Pair, error) {
	index, err := serverIndex(r)
	if err != nil {
		return nil, err
	}
	out := s.ctl.Pairs().Pairs(index)
	if out == nil {
		out = []pairs.Pair{}
	}
	return out, nil
}

func (s *server) Connect(ctx context.Context, req *IndexesRequest) (*CommandResponse, error) {
	s.ctl.CreateConnections(req.Indexes...)
	return &CommandResponse{Summaries: s.ctl.Summaries()}, nil
}

func (s *server) Disconnect(ctx context.Context, req *IndexesRequest) (*CommandResponse, error) {
	s.ctl.Disconnect(req.Indexes...)
	return &CommandResponse{Summaries: s.ctl.Summaries()}, nil
}

func (s *server) Pause(ctx context.Context, r *http.Request, req *PauseRequest) (*pairs.Pair, error) {
	index, err := serverIndex(r)
	if err != nil {
		return nil, err
	}
	if req.UID == "" {
		return nil, withStatus(errcode.ErrInvalidRecord)
	}
	if err := s.ctl.Pause(ctx, index, req.UID, req.Paused); err != nil {
		return nil, withStatus(err)
	}
	p, _ := s.ctl.Pairs().Pair(index, req.UID)
	return &p, nil
}

func (s *server) FullPause(ctx context.Context, r *http.Request, req *FullPauseRequest) (*hub.Summary, error) {
	index, err := serverIndex(r)
	if err != nil {
		return nil, err
	}
	if err := s.ctl.SetFullPause(index, req.Paused); err != nil {
		return nil, withStatus(err)
	}
	summary := s.ctl.Summary(index)
	return &summary, nil
}

func (s *server) BulkPermissions(ctx context.Context, r *http.Request, req *protocol.BulkPermissionsDto) (*hub.Summary, error) {
	index, err := serverIndex(r)
	if err != nil {
		return nil, err
	}
	if err := s.ctl.SetBulkPermissions(ctx, index, *req); err != nil {
		return nil, withStatus(err)
	}
	summary := s.ctl.Summary(index)
	return &summary, nil
}
