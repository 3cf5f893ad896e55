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
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pairmesh/pairsync/codec"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/version"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// longPollTransporter is the degraded transport. A session is opened with
// POST {hub}/poll/connect, frames are received with GET {hub}/poll and sent
// with POST {hub}/poll/send. The hub answers a poll with 204 when nothing
// arrived before its own timeout.
type longPollTransporter struct {
	base   string
	token  string
	client *http.Client
	codec  *codec.FrameCodec
	id     string

	// ctx bounds every request of the session and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	closed *atomic.Bool
}

func newLongPollTransporter(hubURL, token string, client *http.Client) *longPollTransporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &longPollTransporter{
		base:   strings.TrimSuffix(hubURL, "/") + constant.HubPollSuffix,
		token:  token,
		client: client,
		codec:  codec.NewCodec(),
		ctx:    ctx,
		cancel: cancel,
		closed: atomic.NewBool(false),
	}
}

func (t *longPollTransporter) Kind() TransportType {
	return TransportLongPolling
}

func (t *longPollTransporter) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	u := t.base + path
	if t.id != "" {
		u += "?id=" + url.QueryEscape(t.id)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errcode.New(errcode.KindConfig, errcode.InternalError, err)
	}
	req.Header.Set(constant.HeaderAuthentication, constant.PrefixJwtToken+" "+t.token)
	req.Header.Set(constant.HeaderXClientVersion, version.NewVersion().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || t.closed.Load() {
			return nil, errcode.ErrConnectionClosed
		}
		return nil, errcode.Network(errors.WithMessagef(err, "%s %s", method, u))
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
	// The hub forgets sessions it timed out. That is a dropped transport,
	// not a malformed request.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return errcode.Network(errors.Errorf("poll session lost: %d", resp.StatusCode))
	}
	return errcode.FromStatus(resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (t *longPollTransporter) Dial(ctx context.Context) error {
	resp, err := t.request(ctx, http.MethodPost, "/connect", nil)
	if err != nil {
		if ctx.Err() != nil {
			return errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errcode.FromStatus(resp.StatusCode, "long polling negotiation rejected")
	}
	id, err := ioutil.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return errcode.Network(err)
	}
	t.id = strings.TrimSpace(string(id))
	if t.id == "" {
		return errcode.New(errcode.KindProtocol, errcode.MalformedOperation, errors.New("empty poll session id"))
	}

	if logutil.IsEnableTransport() {
		zap.L().Debug("Long polling transport established", zap.String("url", t.base), zap.String("id", t.id))
	}
	return nil
}

func (t *longPollTransporter) Read() ([]codec.RawFrame, error) {
	for {
		resp, err := t.request(t.ctx, http.MethodGet, "", nil)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusNoContent:
			resp.Body.Close()
			continue
		case http.StatusOK:
		default:
			err := statusError(resp)
			resp.Body.Close()
			return nil, err
		}

		data, err := ioutil.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if t.closed.Load() {
				return nil, errcode.ErrConnectionClosed
			}
			return nil, errcode.Network(err)
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

func (t *longPollTransporter) Write(frame []byte) error {
	ctx, cancel := context.WithTimeout(t.ctx, writeTimeout)
	defer cancel()

	resp, err := t.request(ctx, http.MethodPost, "/send", bytes.NewReader(frame))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	return nil
}

func (t *longPollTransporter) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.cancel()
	if t.id == "" {
		return nil
	}

	// Tell the hub to drop the session, with a fresh context since the
	// session one is gone.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	resp, err := t.request(ctx, http.MethodDelete, "", nil)
	if err != nil {
		return nil
	}
	return resp.Body.Close()
}
