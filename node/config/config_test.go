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

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

const testConfig = `
character:
  name: Alice Example
  world_id: 73
census:
  race_id: 1
servers:
  - name: main
    uri: wss://main.example
    secret_keys:
      k1: secret-one
    authentications:
      - character: alice example
        world_id: 73
        secret_key: k1
    send_census: true
  - name: oauth
    uri: https://oauth.example
    hub_path: /custom
    transport: longpolling
    auto_login: false
    authentications:
      - character: Alice Example
        world_id: 73
        oauth: true
    oauth:
      client_id: pairsync
      token_url: https://oauth.example/token
retry:
  mode: exponential
  min: 1s
  max: 30s
health_interval: 10s
`

func TestFromPath(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, fmt.Sprintf("%s.yaml", uuid.New().String()))
	a.Nil(ioutil.WriteFile(path, []byte(testConfig), os.ModePerm))

	cfg, err := FromPath(path)
	a.Nil(err)
	a.Equal(2, cfg.ServerCount())
	a.Equal("exponential", cfg.Retry.Mode)
	a.Equal(time.Second, cfg.Retry.Min)
	a.Equal(10*time.Second, cfg.HealthInterval)
	a.Equal(15*time.Second, cfg.HeartbeatInterval)
	a.Equal("127.0.0.1:9731", cfg.LocalAPI.Listen)

	main, ok := cfg.Server(0)
	a.True(ok)
	a.True(main.IsAutoLogin())
	a.Equal("https://main.example", main.HubBase())

	second, ok := cfg.Server(1)
	a.True(ok)
	a.False(second.IsAutoLogin())
	a.Equal("/custom", second.HubPath)

	_, ok = cfg.Server(2)
	a.False(ok)

	// Full pause is written back to the file.
	a.Nil(cfg.SetFullPause(1, true))
	data, err := ioutil.ReadFile(path)
	a.Nil(err)
	a.Contains(string(data), "full_pause: true")

	reloaded, err := FromPath(path)
	a.Nil(err)
	s, _ := reloaded.Server(1)
	a.True(s.FullPause)

	a.True(errors.Is(cfg.SetFullPause(5, true), errcode.ErrUnknownServer))

	a.Nil(cfg.SetServerDisabled(0, true))
	reloaded, err = FromPath(path)
	a.Nil(err)
	s, _ = reloaded.Server(0)
	a.True(s.Disabled)
}

func TestCredential(t *testing.T) {
	a := assert.New(t)

	cfg, err := FromBytes([]byte(testConfig))
	a.Nil(err)
	chara := cfg.CurrentCharacter()

	main, _ := cfg.Server(0)
	cred, err := main.Credential(chara)
	a.Nil(err)
	a.Equal("secret-one", cred.SecretKey)
	a.Nil(cred.OAuth)

	// The OAuth binding has no refresh token.
	oauth, _ := cfg.Server(1)
	_, err = oauth.Credential(chara)
	a.True(errors.Is(err, errcode.ErrOAuthMisconfig))

	oauth.OAuth = &OAuth{ClientID: "c", TokenURL: "https://t", RefreshToken: "r"}
	cred, err = oauth.Credential(chara)
	a.Nil(err)
	a.Equal("r", cred.OAuth.RefreshToken)

	_, err = main.Credential(Character{Name: "Bob", WorldID: 73})
	a.True(errors.Is(err, errcode.ErrNoSecretKey))

	main.Authentications = append(main.Authentications, Authentication{Character: "Alice Example", WorldID: 73, SecretKey: "k2"})
	_, err = main.Credential(chara)
	a.True(errors.Is(err, errcode.ErrMultiCharacter))

	missing := Server{Authentications: []Authentication{{Character: "Alice Example", WorldID: 73, SecretKey: "nope"}}}
	_, err = missing.Credential(chara)
	a.True(errors.Is(err, errcode.ErrNoSecretKey))
}

func TestInvalid(t *testing.T) {
	a := assert.New(t)

	_, err := FromBytes([]byte("servers:\n  - name: nouri\n"))
	a.NotNil(err)

	cfg, err := FromBytes(nil)
	a.Nil(err)
	a.Equal(0, cfg.ServerCount())
	// Not loaded from a file, saving is a no-op.
	a.Nil(cfg.Save())
}
