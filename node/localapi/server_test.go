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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/hubtest"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/auth"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/node/controller"
	"github.com/pairmesh/pairsync/node/hub"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/node/pairs"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logutil.InitTestLogger()
	os.Exit(m.Run())
}

type fixture struct {
	hub *hubtest.Hub
	ctl *controller.Controller
	api *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	h := hubtest.New("/mare")
	h.SetState(nil, []protocol.UserFullPairDto{{
		User:           protocol.UserData{UID: "U1"},
		Status:         protocol.IndividualPairStatusBidirectional,
		OwnPermissions: protocol.UserPermissionsPaired,
	}}, nil)

	cfg := config.New()
	cfg.Character = config.Character{Name: "Alice", WorldID: 42}
	cfg.Servers = []*config.Server{{
		Name:       "main",
		URI:        h.URL(),
		SecretKeys: map[string]string{"k": "secret"},
		Authentications: []config.Authentication{
			{Character: "Alice", WorldID: 42, SecretKey: "k"},
		},
	}}

	factory := hubconn.NewFactory()
	ctl := controller.New(hub.Options{
		Config:            cfg,
		Factory:           factory,
		Tokens:            auth.NewProvider(cfg, nil, ""),
		Bus:               notify.NewBus(),
		Retry:             backoff.NewFixed(10*time.Millisecond, 20*time.Millisecond),
		HeartbeatInterval: time.Second,
	})
	f := &fixture{hub: h, ctl: ctl, api: httptest.NewServer(Handler(ctl))}
	t.Cleanup(func() {
		f.api.Close()
		ctl.Close()
		factory.Close()
		h.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	var buf bytes.Buffer
	if body != nil {
		assert.Nil(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.api.URL+path, &buf)
	assert.Nil(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	assert.Nil(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		assert.Nil(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServers(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	var summaries []hub.Summary
	a.Equal(http.StatusOK, f.do(t, http.MethodGet, "/api/v1/servers", nil, &summaries))
	a.Len(summaries, 1)
	a.Equal("main", summaries[0].Name)
	a.Equal(hub.StateDisconnected, summaries[0].State)

	a.Equal(http.StatusOK, f.do(t, http.MethodPost, "/api/v1/connect", IndexesRequest{}, nil))
	a.True(hubtest.WaitFor(func() bool { return f.ctl.AnyServerConnected() }))

	var summary hub.Summary
	a.Equal(http.StatusOK, f.do(t, http.MethodGet, "/api/v1/server/0", nil, &summary))
	a.Equal(hub.StateConnected, summary.State)
	a.Equal(hubtest.UIDFor("secret"), summary.UID)

	var status StatusResponse
	a.Equal(http.StatusOK, f.do(t, http.MethodGet, "/api/v1/status", nil, &status))
	a.True(status.AnyConnected)
	a.Equal([]protocol.ServerIndex{0}, status.Connected)

	var list []pairs.Pair
	a.Equal(http.StatusOK, f.do(t, http.MethodGet, "/api/v1/server/0/pairs", nil, &list))
	a.Len(list, 1)
	a.Equal("U1", list[0].User.UID)

	a.Equal(http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/server/abc", nil, nil))

	a.Equal(http.StatusOK, f.do(t, http.MethodPost, "/api/v1/disconnect", IndexesRequest{}, nil))
	a.False(f.ctl.AnyServerConnected())
}

func TestCommands(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	// Not connected yet
	a.Equal(http.StatusConflict, f.do(t, http.MethodPost, "/api/v1/server/0/pause", PauseRequest{UID: "U1", Paused: true}, nil))

	f.ctl.CreateConnections()
	a.True(hubtest.WaitFor(func() bool { return f.ctl.AnyServerConnected() }))

	var p pairs.Pair
	a.Equal(http.StatusOK, f.do(t, http.MethodPost, "/api/v1/server/0/pause", PauseRequest{UID: "U1", Paused: true}, &p))
	a.True(p.IsPaused())
	a.Equal(http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/server/0/pause", PauseRequest{Paused: true}, nil))

	bulk := protocol.BulkPermissionsDto{
		AffectedUsers: map[string]protocol.UserPermissions{"U1": protocol.UserPermissionsPaired},
	}
	a.Equal(http.StatusOK, f.do(t, http.MethodPost, "/api/v1/server/0/permissions/bulk", bulk, nil))
	p, _ = f.ctl.Pairs().Pair(0, "U1")
	a.False(p.IsPaused())
	a.Len(f.hub.Invocations(protocol.MethodSetBulkPermissions), 1)
	a.Equal(http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/server/9/permissions/bulk", bulk, nil))

	var summary hub.Summary
	a.Equal(http.StatusOK, f.do(t, http.MethodPost, "/api/v1/server/0/fullpause", FullPauseRequest{Paused: true}, &summary))
	a.Equal(hub.StateDisconnected, summary.State)
}

func TestMetrics(t *testing.T) {
	a := assert.New(t)
	f := newFixture(t)

	resp, err := http.Get(f.api.URL + "/metrics")
	a.Nil(err)
	defer resp.Body.Close()
	a.Equal(http.StatusOK, resp.StatusCode)
}
