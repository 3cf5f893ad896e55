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
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ProbeStatus is the answer of a hub endpoint to a negotiation probe.
type ProbeStatus byte

const (
	ProbeMissing ProbeStatus = iota
	ProbeExists
	// ProbeNeedsAuth means the endpoint exists but wants a token first.
	ProbeNeedsAuth
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeExists:
		return "exists"
	case ProbeNeedsAuth:
		return "needs_auth"
	default:
		return "missing"
	}
}

// Found reports whether a hub answered at the probed endpoint.
func (s ProbeStatus) Found() bool {
	return s == ProbeExists || s == ProbeNeedsAuth
}

const probeTimeout = 10 * time.Second

// Factory builds hub connections and keeps at most one live connection per
// server index.
type Factory struct {
	client    *http.Client
	lookupEnv func(string) (string, bool)

	// buildMu serializes Build so that closing the previous connection and
	// registering the next one can't interleave.
	buildMu sync.Mutex
	mu      sync.Mutex
	conns   map[protocol.ServerIndex]*Conn
}

func NewFactory() *Factory {
	return &Factory{
		client:    &http.Client{},
		lookupEnv: os.LookupEnv,
		conns:     map[protocol.ServerIndex]*Conn{},
	}
}

// WithHTTPClient replaces the client used by probes and long polling.
func (f *Factory) WithHTTPClient(client *http.Client) *Factory {
	f.client = client
	return f
}

// WithLookupEnv replaces the environment lookup used by the automatic
// transport selection.
func (f *Factory) WithLookupEnv(lookupEnv func(string) (string, bool)) *Factory {
	f.lookupEnv = lookupEnv
	return f
}

// ResolveTransport returns the transport a connection with t would use.
func (f *Factory) ResolveTransport(t TransportType) TransportType {
	return t.resolve(f.lookupEnv)
}

// Build closes the live connection of the server, if any, and returns a new
// unstarted connection which becomes the live one.
func (f *Factory) Build(index protocol.ServerIndex, opts Options) (*Conn, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errcode.Newf(errcode.KindConfig, errcode.InternalError, "invalid hub url %q", opts.URL)
	}
	if opts.Token == "" {
		return nil, errcode.New(errcode.KindAuth, errcode.Unauthorized, errors.New("empty token"))
	}

	f.buildMu.Lock()
	defer f.buildMu.Unlock()

	f.mu.Lock()
	prev := f.conns[index]
	delete(f.conns, index)
	f.mu.Unlock()
	if prev != nil {
		if logutil.IsEnableTransport() {
			zap.L().Debug("Close previous hub connection", zap.Stringer("server", index))
		}
		_ = prev.Close()
	}

	opts.Transport = opts.Transport.resolve(f.lookupEnv)
	hubURL := strings.TrimSuffix(opts.URL, "/")
	token := opts.Token
	client := f.client

	var dial func() Transporter
	switch opts.Transport {
	case TransportLongPolling:
		dial = func() Transporter { return newLongPollTransporter(hubURL, token, client) }
	default:
		dial = func() Transporter { return newWebsocketTransporter(hubURL, token) }
	}

	c := newConn(index, opts, dial)

	f.mu.Lock()
	f.conns[index] = c
	f.mu.Unlock()

	zap.L().Info("Hub connection built",
		zap.Stringer("server", index),
		zap.Stringer("transport", opts.Transport),
		zap.String("url", hubURL))
	return c, nil
}

// Release closes c and forgets it when it is still the live connection of
// its server.
func (f *Factory) Release(c *Conn) {
	if c == nil {
		return
	}
	f.mu.Lock()
	if f.conns[c.index] == c {
		delete(f.conns, c.index)
	}
	f.mu.Unlock()
	_ = c.Close()
}

// Live returns the live connection of the server or nil.
func (f *Factory) Live(index protocol.ServerIndex) *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conns[index]
	if c == nil || c.Closed() {
		return nil
	}
	return c
}

// LiveCount returns the number of connections which are not closed.
func (f *Factory) LiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.conns {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Probe checks whether a hub answers at base+path.
func (f *Factory) Probe(ctx context.Context, base, path string) (ProbeStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	u := strings.TrimSuffix(base, "/") + path + constant.HubNegotiateSuffix
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ProbeMissing, errcode.New(errcode.KindConfig, errcode.InternalError, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ProbeMissing, errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
		}
		return ProbeMissing, errcode.Network(errors.WithMessagef(err, "probe %s", u))
	}
	defer resp.Body.Close()

	status := ProbeMissing
	switch resp.StatusCode {
	case http.StatusOK:
		status = ProbeExists
	case http.StatusUnauthorized, http.StatusForbidden:
		status = ProbeNeedsAuth
	}

	if logutil.IsEnableTransport() {
		zap.L().Debug("Probe hub endpoint", zap.String("url", u), zap.Int("status", resp.StatusCode), zap.Stringer("result", status))
	}
	return status, nil
}

// Close closes every live connection.
func (f *Factory) Close() {
	f.buildMu.Lock()
	defer f.buildMu.Unlock()

	f.mu.Lock()
	conns := f.conns
	f.conns = map[protocol.ServerIndex]*Conn{}
	f.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
