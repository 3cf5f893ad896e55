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

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/jsonapi"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/auth/tokenstore"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultLease is how long a token without an exp claim is reused.
	DefaultLease = 30 * time.Minute
	// DefaultMargin is subtracted from the token expiry.
	DefaultMargin = 5 * time.Minute
)

// Provider issues and caches the tokens of every configured server.
type Provider struct {
	cfg       config.Accessor
	store     tokenstore.Store
	machineID string
	client    *http.Client
	margin    time.Duration
	lease     time.Duration

	mu      sync.Mutex
	locks   map[protocol.ServerIndex]*sync.Mutex
	keys    map[protocol.ServerIndex]string
	sources map[string]oauth2.TokenSource
}

// NewProvider returns a provider which caches the tokens in store.
func NewProvider(cfg config.Accessor, store tokenstore.Store, machineID string) *Provider {
	if store == nil {
		store = tokenstore.NewMemory()
	}
	return &Provider{
		cfg:       cfg,
		store:     store,
		machineID: machineID,
		client:    http.DefaultClient,
		margin:    DefaultMargin,
		lease:     DefaultLease,
		locks:     map[protocol.ServerIndex]*sync.Mutex{},
		keys:      map[protocol.ServerIndex]string{},
		sources:   map[string]oauth2.TokenSource{},
	}
}

// WithHTTPClient replaces the client used for the auth endpoints.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	p.client = client
	return p
}

func (p *Provider) lock(index protocol.ServerIndex) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, found := p.locks[index]
	if !found {
		l = &sync.Mutex{}
		p.locks[index] = l
	}
	return l
}

// GetOrRefreshToken returns the cached token of the server or requests a
// new one from the auth endpoint.
func (p *Provider) GetOrRefreshToken(ctx context.Context, index protocol.ServerIndex) (string, error) {
	server, found := p.cfg.Server(index)
	if !found {
		return "", errcode.ErrUnknownServer
	}
	chara := p.cfg.CurrentCharacter()
	cred, err := server.Credential(chara)
	if err != nil {
		return "", err
	}

	l := p.lock(index)
	l.Lock()
	defer l.Unlock()

	key := cacheKey(index, &server, cred, chara)
	p.mu.Lock()
	prev := p.keys[index]
	p.keys[index] = key
	p.mu.Unlock()

	// The credential or the character changed.
	if prev != "" && prev != key {
		_ = p.store.Del(ctx, prev)
	}

	token, err := p.store.Get(ctx, key)
	if err != nil {
		zap.L().Warn("Read token cache failed", zap.Stringer("server", index), zap.Error(err))
	}
	if token != "" {
		return token, nil
	}

	token, err = p.fetch(ctx, &server, cred, chara)
	if err != nil {
		if logutil.IsEnableAuth() {
			zap.L().Debug("Request token failed", zap.Stringer("server", index), zap.Error(err))
		}
		return "", err
	}

	ttl := p.ttl(token)
	if err := p.store.Set(ctx, key, token, ttl); err != nil {
		zap.L().Warn("Write token cache failed", zap.Stringer("server", index), zap.Error(err))
	}
	zap.L().Info("Token issued", zap.Stringer("server", index), zap.String("name", server.Name), zap.Duration("ttl", ttl))
	return token, nil
}

// Invalidate drops the cached token of the server.
func (p *Provider) Invalidate(index protocol.ServerIndex) {
	p.mu.Lock()
	key := p.keys[index]
	p.mu.Unlock()
	if key == "" {
		return
	}
	if err := p.store.Del(context.Background(), key); err != nil {
		zap.L().Warn("Invalidate token failed", zap.Stringer("server", index), zap.Error(err))
	}
	if logutil.IsEnableAuth() {
		zap.L().Debug("Token invalidated", zap.Stringer("server", index))
	}
}

func (p *Provider) fetch(ctx context.Context, server *config.Server, cred config.Credential, chara config.Character) (string, error) {
	client := jsonapi.NewClient(server.HubBase(), p.machineID).WithHTTPClient(p.client)

	var (
		token string
		err   error
	)
	if cred.OAuth != nil {
		access, aerr := p.accessToken(ctx, cred.OAuth)
		if aerr != nil {
			return "", aerr
		}
		token, err = client.PostBearer(ctx, constant.URIAuthCreateWithIdentOAuth, access)
	} else {
		form := url.Values{}
		form.Set("auth", hashHex(cred.SecretKey))
		form.Set("charaIdent", charaIdent(chara))
		token, err = client.PostForm(ctx, constant.URIAuthCreateWithIdent, form)
	}
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errcode.Newf(errcode.KindProtocol, errcode.MalformedOperation, "empty token from %s", server.Name)
	}
	return token, nil
}

// accessToken returns the OAuth access token. The token source is shared
// per refresh token and refreshes the access token when it expires.
func (p *Provider) accessToken(ctx context.Context, o *config.OAuth) (string, error) {
	id := o.TokenURL + "|" + o.ClientID + "|" + o.RefreshToken

	p.mu.Lock()
	src, found := p.sources[id]
	if !found {
		conf := &oauth2.Config{
			ClientID: o.ClientID,
			Endpoint: oauth2.Endpoint{TokenURL: o.TokenURL},
		}
		// The source outlives ctx, only the http client is bound to it.
		srcCtx := context.WithValue(context.Background(), oauth2.HTTPClient, p.client)
		src = conf.TokenSource(srcCtx, &oauth2.Token{RefreshToken: o.RefreshToken})
		p.sources[id] = src
	}
	p.mu.Unlock()

	type result struct {
		tok *oauth2.Token
		err error
	}
	ch := make(chan result, 1)
	go func() {
		tok, err := src.Token()
		ch <- result{tok, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
	}
	if res.err != nil {
		var re *oauth2.RetrieveError
		if errors.As(res.err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			p.mu.Lock()
			delete(p.sources, id)
			p.mu.Unlock()
			return "", errcode.New(errcode.KindAuth, errcode.OAuthTokenStale, errors.WithMessage(res.err, "refresh oauth token"))
		}
		return "", errcode.Network(errors.WithMessage(res.err, "refresh oauth token"))
	}
	return res.tok.AccessToken, nil
}

// ttl returns how long the token can be reused: until the safety margin
// before its expiry, but at least half of its remaining lifetime. Expired
// tokens are not reused.
func (p *Provider) ttl(token string) time.Duration {
	claims := &jwt.StandardClaims{}
	_, _, err := (&jwt.Parser{}).ParseUnverified(token, claims)
	if err != nil || claims.ExpiresAt == 0 {
		return p.lease
	}
	remaining := time.Until(time.Unix(claims.ExpiresAt, 0))
	if remaining <= 0 {
		return 0
	}
	ttl := remaining - p.margin
	if half := remaining / 2; ttl < half {
		ttl = half
	}
	return ttl
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func charaIdent(c config.Character) string {
	return hashHex(fmt.Sprintf("%s%d", c.Name, c.WorldID))
}

// cacheKey identifies a token by server and by the credential it was
// issued for, so a changed credential never reuses a stale token.
func cacheKey(index protocol.ServerIndex, server *config.Server, cred config.Credential, chara config.Character) string {
	ident := cred.SecretKey
	if cred.OAuth != nil {
		ident = cred.OAuth.ClientID + "|" + cred.OAuth.RefreshToken
	}
	sum := hashHex(server.HubBase() + "|" + ident + "|" + charaIdent(chara))
	return fmt.Sprintf("token:%d:%s", index, sum[:16])
}
