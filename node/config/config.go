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
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type (
	// Character identifies the character the client is logged in with.
	Character struct {
		Name    string `yaml:"name"`
		WorldID uint32 `yaml:"world_id"`
	}

	// Census holds the anonymized attributes sent to servers which opted
	// in with send_census.
	Census struct {
		RaceID  uint32 `yaml:"race_id"`
		TribeID uint32 `yaml:"tribe_id"`
		Gender  uint32 `yaml:"gender"`
	}

	// OAuth binds a server to an OAuth account.
	OAuth struct {
		ClientID     string `yaml:"client_id"`
		TokenURL     string `yaml:"token_url"`
		RefreshToken string `yaml:"refresh_token"`
	}

	// Authentication maps a character to the credential used for it.
	Authentication struct {
		Character string `yaml:"character"`
		WorldID   uint32 `yaml:"world_id"`
		SecretKey string `yaml:"secret_key,omitempty"` // key of Server.SecretKeys
		UseOAuth  bool   `yaml:"oauth,omitempty"`
	}

	// Server represents the configuration of one server
	Server struct {
		Name      string `yaml:"name"`
		URI       string `yaml:"uri"`
		HubPath   string `yaml:"hub_path,omitempty"`
		Transport string `yaml:"transport,omitempty"`

		SecretKeys      map[string]string `yaml:"secret_keys,omitempty"`
		Authentications []Authentication  `yaml:"authentications,omitempty"`
		OAuth           *OAuth            `yaml:"oauth,omitempty"`

		// AutoLogin defaults to true when omitted.
		AutoLogin          *bool `yaml:"auto_login,omitempty"`
		FullPause          bool  `yaml:"full_pause,omitempty"`
		BypassVersionCheck bool  `yaml:"bypass_version_check,omitempty"`
		SendCensus         bool  `yaml:"send_census,omitempty"`
		Disabled           bool  `yaml:"disabled,omitempty"`
	}

	Retry struct {
		Mode string        `yaml:"mode,omitempty"`
		Min  time.Duration `yaml:"min,omitempty"`
		Max  time.Duration `yaml:"max,omitempty"`
		// MaxTransportAttempts bounds the automatic redials of a dropped
		// transport. Zero means unlimited.
		MaxTransportAttempts int `yaml:"max_transport_attempts,omitempty"`
	}

	LocalAPI struct {
		Listen string `yaml:"listen"`
	}

	// Config represents the configuration of the client
	Config struct {
		Character         Character     `yaml:"character"`
		Census            Census        `yaml:"census"`
		Servers           []*Server     `yaml:"servers"`
		Retry             Retry         `yaml:"retry"`
		HealthInterval    time.Duration `yaml:"health_interval,omitempty"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval,omitempty"`
		LocalAPI          LocalAPI      `yaml:"local_api"`
		TokenCacheDir     string        `yaml:"token_cache_dir,omitempty"`
		MachineID         string        `yaml:"machine_id,omitempty"`
		Locale            string        `yaml:"locale,omitempty"`

		mu   sync.RWMutex
		path string
	}
)

// Credential is the resolved credential of a server for the current
// character. Exactly one of SecretKey and OAuth is set.
type Credential struct {
	SecretKey string
	OAuth     *OAuth
}

// IsAutoLogin reports whether the server is connected at startup.
func (s *Server) IsAutoLogin() bool {
	return s.AutoLogin == nil || *s.AutoLogin
}

// HubBase returns the http(s) base URL of the server. ws(s) schemes are
// accepted in the configuration as well.
func (s *Server) HubBase() string {
	uri := strings.TrimSuffix(strings.TrimSpace(s.URI), "/")
	switch {
	case strings.HasPrefix(uri, "wss://"):
		return "https://" + strings.TrimPrefix(uri, "wss://")
	case strings.HasPrefix(uri, "ws://"):
		return "http://" + strings.TrimPrefix(uri, "ws://")
	default:
		return uri
	}
}

// Credential resolves the credential to use for character.
func (s *Server) Credential(c Character) (Credential, error) {
	var matched []Authentication
	for _, a := range s.Authentications {
		if strings.EqualFold(a.Character, c.Name) && a.WorldID == c.WorldID {
			matched = append(matched, a)
		}
	}

	switch len(matched) {
	case 0:
		return Credential{}, errcode.ErrNoSecretKey
	case 1:
	default:
		return Credential{}, errcode.ErrMultiCharacter
	}

	auth := matched[0]
	if auth.UseOAuth {
		o := s.OAuth
		if o == nil || o.ClientID == "" || o.TokenURL == "" || o.RefreshToken == "" {
			return Credential{}, errcode.ErrOAuthMisconfig
		}
		return Credential{OAuth: o}, nil
	}

	key := s.SecretKeys[auth.SecretKey]
	if key == "" {
		return Credential{}, errcode.ErrNoSecretKey
	}
	return Credential{SecretKey: key}, nil
}

// Accessor is the read-mostly view on the configuration used by the core.
type Accessor interface {
	ServerCount() int
	// Server returns a copy of the server configuration.
	Server(index protocol.ServerIndex) (Server, bool)
	CurrentCharacter() Character
	CensusData() Census
	// SetFullPause changes the full pause flag of a server and saves it.
	SetFullPause(index protocol.ServerIndex, paused bool) error
}

// New returns a config instance with default value
func New() *Config {
	return &Config{
		Retry: Retry{
			Mode: "fixed",
			Min:  constant.RetryDelayMin,
			Max:  constant.RetryDelayMax,
		},
		HealthInterval:    constant.HealthInterval,
		HeartbeatInterval: constant.HeartbeatInterval,
		LocalAPI: LocalAPI{
			Listen: constant.DefaultLocalAPIAddress,
		},
		Locale: "en_US",
	}
}

// FromReader returns the configuration instance from reader
func FromReader(reader io.Reader) (*Config, error) {
	c := New()
	err := yaml.NewDecoder(reader).Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.WithMessage(err, "decode configuration")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	if c.MachineID == "" {
		machineID, err := machineid.ProtectedID(constant.MachineIDProtect)
		if err != nil {
			zap.L().Warn("Retrieve machine id failed", zap.Error(err))
		}
		c.MachineID = machineID
	}
	return c, nil
}

// FromBytes returns the configuration instance from bytes
func FromBytes(data []byte) (*Config, error) {
	reader := bytes.NewBuffer(data)
	return FromReader(reader)
}

// FromPath returns the configuration instance from file path. Save writes
// back to the same path.
func FromPath(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := FromBytes(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "load %s", path)
	}
	cfg.path = path
	return cfg, nil
}

func (c *Config) validate() error {
	for i, s := range c.Servers {
		if s == nil {
			return errors.Errorf("server #%d is empty", i)
		}
		if strings.TrimSpace(s.URI) == "" {
			return errors.Errorf("server #%d (%s) has no uri", i, s.Name)
		}
		if s.Name == "" {
			s.Name = s.URI
		}
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = constant.HealthInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = constant.HeartbeatInterval
	}
	return nil
}

// Save saves the configuration to the path it was loaded from. A config
// which wasn't loaded from a file is kept in memory only.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.WithMessage(err, "encode configuration")
	}
	if err := enc.Close(); err != nil {
		return err
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := c.path + ".tmp"
	if err := ioutil.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return err
	}
	zap.L().Info("Save the latest configuration", zap.String("path", c.path))
	return os.Rename(tmp, c.path)
}

func (c *Config) ServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Servers)
}

func (c *Config) Server(index protocol.ServerIndex) (Server, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || int(index) >= len(c.Servers) {
		return Server{}, false
	}
	return *c.Servers[index], true
}

func (c *Config) CurrentCharacter() Character {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Character
}

func (c *Config) CensusData() Census {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Census
}

func (c *Config) SetFullPause(index protocol.ServerIndex, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || int(index) >= len(c.Servers) {
		return errcode.ErrUnknownServer
	}
	c.Servers[index].FullPause = paused
	return c.saveLocked()
}

// SetServerDisabled enables or disables a server and saves the
// configuration.
func (c *Config) SetServerDisabled(index protocol.ServerIndex, disabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || int(index) >= len(c.Servers) {
		return errcode.ErrUnknownServer
	}
	c.Servers[index].Disabled = disabled
	return c.saveLocked()
}

// SetCharacter changes the current character. Callers reconnect the
// servers afterwards.
func (c *Config) SetCharacter(ch Character) {
	c.mu.Lock()
	c.Character = ch
	c.mu.Unlock()
}
