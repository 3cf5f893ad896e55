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

package jsonapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/version"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	requestTimeout = 10 * time.Second
	maxBodySize    = 64 << 10
)

// Client is used to access the auth endpoints of a server
type Client struct {
	server    string
	machineid string
	http      *http.Client
}

// NewClient returns a new Client instance which can be used to interact
// with the auth endpoints of server.
func NewClient(server, machineid string) *Client {
	return &Client{
		server:    server,
		machineid: machineid,
		http:      http.DefaultClient,
	}
}

// WithHTTPClient replaces the underlying http client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.http = client
	return c
}

func (c *Client) do(ctx context.Context, method, api, bearer string, body io.Reader, contentType string) (string, error) {
	u := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.server, "/"), strings.TrimPrefix(api, "/"))

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return "", errcode.New(errcode.KindConfig, errcode.InternalError, errors.WithStack(err))
	}

	// Set the req headers
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(constant.HeaderXClientVersion, version.NewVersion().SemVer())
	if c.machineid != "" {
		req.Header.Set(constant.HeaderXMachineID, c.machineid)
	}
	if bearer != "" {
		req.Header.Set(constant.HeaderAuthentication, constant.PrefixJwtToken+" "+bearer)
	}

	if logutil.IsEnableAuth() {
		zap.L().Debug("HTTP request", zap.String("method", method), zap.String("url", u))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
		}
		return "", errcode.Network(errors.WithStack(err))
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", errcode.Network(errors.WithStack(err))
	}

	if logutil.IsEnableAuth() {
		zap.L().Debug("HTTP response", zap.String("method", method), zap.String("url", u), zap.Int("status", resp.StatusCode))
	}

	if resp.StatusCode == http.StatusOK {
		return strings.TrimSpace(string(data)), nil
	}
	return "", errcode.FromStatus(resp.StatusCode, errorMessage(data))
}

// errorMessage extracts the message of an error body which is either
// {"code":..,"error":..} or plain text.
func errorMessage(data []byte) string {
	type response struct {
		Code  errcode.ErrCode `json:"code"`
		Error string          `json:"error"`
	}
	result := &response{}
	if err := json.Unmarshal(data, result); err == nil && result.Error != "" {
		return result.Error
	}
	return strings.TrimSpace(string(data))
}

// PostForm sends a form encoded POST request and returns the text body.
func (c *Client) PostForm(ctx context.Context, api string, form url.Values) (string, error) {
	return c.do(ctx, http.MethodPost, api, "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// PostBearer sends an empty POST request authenticated with bearer and
// returns the text body.
func (c *Client) PostBearer(ctx context.Context, api, bearer string) (string, error) {
	return c.do(ctx, http.MethodPost, api, bearer, nil, "")
}
