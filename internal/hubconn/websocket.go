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
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pairmesh/pairsync/codec"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/version"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// websocketTransporter carries frames in binary WebSocket messages. A
// message may hold several frames and a frame may span several messages.
type websocketTransporter struct {
	url    string
	token  string
	dialer *websocket.Dialer
	conn   *websocket.Conn
	codec  *codec.FrameCodec
	closed *atomic.Bool
}

func newWebsocketTransporter(hubURL, token string) *websocketTransporter {
	return &websocketTransporter{
		url:   websocketURL(hubURL),
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		codec:  codec.NewCodec(),
		closed: atomic.NewBool(false),
	}
}

// websocketURL maps the http(s) scheme of the hub URL to ws(s).
func websocketURL(hubURL string) string {
	switch {
	case strings.HasPrefix(hubURL, "https://"):
		return "wss://" + strings.TrimPrefix(hubURL, "https://")
	case strings.HasPrefix(hubURL, "http://"):
		return "ws://" + strings.TrimPrefix(hubURL, "http://")
	default:
		return hubURL
	}
}

func (t *websocketTransporter) Kind() TransportType {
	return TransportWebSockets
}

func (t *websocketTransporter) Dial(ctx context.Context) error {
	header := http.Header{}
	header.Set(constant.HeaderAuthentication, constant.PrefixJwtToken+" "+t.token)
	header.Set(constant.HeaderXClientVersion, version.NewVersion().String())

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
		}
		if resp != nil {
			return errcode.FromStatus(resp.StatusCode, "websocket handshake rejected")
		}
		return errcode.Network(errors.WithMessagef(err, "dial %s", t.url))
	}

	if logutil.IsEnableTransport() {
		zap.L().Debug("WebSocket transport established", zap.String("url", t.url))
	}
	t.conn = conn
	return nil
}

func (t *websocketTransporter) Read() ([]codec.RawFrame, error) {
	for {
		typ, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed.Load() {
				return nil, errcode.ErrConnectionClosed
			}
			return nil, errcode.Network(errors.WithMessage(err, "read websocket"))
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		frames, err := t.codec.Decode(data)
		if err != nil {
			return nil, errcode.New(errcode.KindProtocol, errcode.MalformedOperation, err)
		}
		if len(frames) > 0 {
			return frames, nil
		}
	}
}

func (t *websocketTransporter) Write(frame []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errcode.Network(err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errcode.Network(errors.WithMessage(err, "write websocket"))
	}
	return nil
}

func (t *websocketTransporter) Close() error {
	if t.closed.Swap(true) || t.conn == nil {
		return nil
	}
	// Best effort close handshake, the peer may already be gone.
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
