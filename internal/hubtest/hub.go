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

// Package hubtest provides an in-process hub which speaks the frame
// protocol over WebSockets and long polling. It is only used by tests.
package hubtest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pairmesh/pairsync/codec"
	"github.com/pairmesh/pairsync/codec/wire"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pairmesh/pairsync/version"
	"go.uber.org/atomic"
)

const pollWait = 200 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub is a fake hub served by an httptest server.
type Hub struct {
	Server *httptest.Server
	// Path is the hub path the endpoints are mounted on.
	Path string

	authAttempts *atomic.Int64
	connects     *atomic.Int64
	rejectAuth   *atomic.Bool
	rateLimit    *atomic.Bool
	tokenTTL     *atomic.Duration
	handshakes   *atomic.Int64
	rejectOpen   *atomic.Bool

	mu          sync.Mutex
	secret      []byte
	handlers    map[string]Handler
	sessions    map[string]*Session
	invocations map[string][][]byte
	conn        protocol.ConnectionDto
	groups      []protocol.GroupFullInfoDto
	pairs       []protocol.UserFullPairDto
	online      []protocol.OnlineUserIdentDto
}

// New starts a fake hub mounted on path.
func New(path string) *Hub {
	h := &Hub{
		Path:         strings.TrimSuffix(path, "/"),
		authAttempts: atomic.NewInt64(0),
		connects:     atomic.NewInt64(0),
		rejectAuth:   atomic.NewBool(false),
		rateLimit:    atomic.NewBool(false),
		tokenTTL:     atomic.NewDuration(time.Hour),
		handshakes:   atomic.NewInt64(0),
		rejectOpen:   atomic.NewBool(false),
		secret:       []byte(uuid.New().String()),
		handlers:     map[string]Handler{},
		sessions:     map[string]*Session{},
		invocations:  map[string][][]byte{},
		conn: protocol.ConnectionDto{
			ServerVersion: version.ProtocolVersion,
			ServerInfo:    protocol.ServerInfo{ShardName: "test"},
		},
	}
	h.registerDefaults()

	r := mux.NewRouter()
	r.HandleFunc(constant.URIAuthCreateWithIdent, h.createWithIdent).Methods(http.MethodPost)
	r.HandleFunc(constant.URIAuthCreateWithIdentOAuth, h.createWithIdentOAuth).Methods(http.MethodPost)
	r.HandleFunc(h.Path+constant.HubNegotiateSuffix, h.negotiate).Methods(http.MethodGet)
	r.HandleFunc(h.Path+constant.HubPollSuffix+"/connect", h.pollConnect).Methods(http.MethodPost)
	r.HandleFunc(h.Path+constant.HubPollSuffix+"/send", h.pollSend).Methods(http.MethodPost)
	r.HandleFunc(h.Path+constant.HubPollSuffix, h.poll).Methods(http.MethodGet)
	r.HandleFunc(h.Path+constant.HubPollSuffix, h.pollDelete).Methods(http.MethodDelete)
	r.HandleFunc(h.Path, h.serveWebsocket).Methods(http.MethodGet)

	h.Server = httptest.NewServer(r)
	return h
}

// URL returns the base URL of the server.
func (h *Hub) URL() string {
	return h.Server.URL
}

// HubURL returns the URL of the hub endpoint.
func (h *Hub) HubURL() string {
	return h.Server.URL + h.Path
}

// Close drops every session and stops the server.
func (h *Hub) Close() {
	h.DropAll()
	h.Server.Close()
}

// UIDFor returns the uid assigned to the holder of secretKey.
func UIDFor(secretKey string) string {
	return uidFromAuth(hashHex(secretKey))
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func uidFromAuth(auth string) string {
	auth = strings.ToUpper(auth)
	if len(auth) > 10 {
		auth = auth[:10]
	}
	return "U" + auth
}

// Token issues a valid token for uid.
func (h *Hub) Token(uid string) string {
	h.mu.Lock()
	secret := h.secret
	h.mu.Unlock()
	tok, _ := createToken(secret, uid, h.tokenTTL.Load())
	return tok
}

// RotateSecret invalidates every token issued so far.
func (h *Hub) RotateSecret() {
	h.mu.Lock()
	h.secret = []byte(uuid.New().String())
	h.mu.Unlock()
}

// SetRejectAuth makes the auth endpoints answer 401.
func (h *Hub) SetRejectAuth(v bool) {
	h.rejectAuth.Store(v)
}

// SetRateLimit makes the auth endpoints answer 429.
func (h *Hub) SetRateLimit(v bool) {
	h.rateLimit.Store(v)
}

// SetTokenTTL changes the lifetime of the tokens issued from now on. Zero
// issues tokens without expiry.
func (h *Hub) SetTokenTTL(ttl time.Duration) {
	h.tokenTTL.Store(ttl)
}

// SetRejectHandshake makes the transport endpoints answer 401 even to
// valid tokens. The auth endpoints keep issuing tokens.
func (h *Hub) SetRejectHandshake(v bool) {
	h.rejectOpen.Store(v)
}

// Handshakes returns the number of transport handshakes attempted so far,
// rejected ones included.
func (h *Hub) Handshakes() int64 {
	return h.handshakes.Load()
}

func (h *Hub) AuthAttempts() int64 {
	return h.authAttempts.Load()
}

// Connects returns the number of transport sessions opened so far.
func (h *Hub) Connects() int64 {
	return h.connects.Load()
}

func (h *Hub) authorize(r *http.Request) (string, bool) {
	token, err := tokenFromRequest(r)
	if err != nil {
		return "", false
	}
	h.mu.Lock()
	secret := h.secret
	h.mu.Unlock()
	uid, err := verifyToken(token, secret)
	if err != nil {
		return "", false
	}
	return uid, true
}

func (h *Hub) issue(w http.ResponseWriter, uid string) {
	if h.rejectAuth.Load() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.rateLimit.Load() {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(h.Token(uid)))
}

func (h *Hub) createWithIdent(w http.ResponseWriter, r *http.Request) {
	h.authAttempts.Inc()
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	auth := r.PostForm.Get("auth")
	if auth == "" || r.PostForm.Get("charaIdent") == "" {
		http.Error(w, "missing auth", http.StatusBadRequest)
		return
	}
	h.issue(w, uidFromAuth(auth))
}

func (h *Hub) createWithIdentOAuth(w http.ResponseWriter, r *http.Request) {
	h.authAttempts.Inc()
	access, err := tokenFromRequest(r)
	if err != nil || access == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}
	h.issue(w, uidFromAuth(hashHex(access)))
}

func (h *Hub) negotiate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Hub) newSession(uid, transport string) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		UID:       uid,
		Transport: transport,
		hub:       h,
		out:       make(chan []byte, sessionQueueSize),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.connects.Inc()
	return s
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	h.mu.Unlock()
}

func (h *Hub) session(id string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

// Sessions returns the open sessions.
func (h *Hub) Sessions() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	h.handshakes.Inc()
	uid, ok := h.authorize(r)
	if !ok || h.rejectOpen.Load() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := h.newSession(uid, "websockets")
	s.ws = conn
	go s.writeLoop()
	s.readLoop()
}

func (h *Hub) pollSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if _, ok := h.authorize(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	s := h.session(r.URL.Query().Get("id"))
	if s == nil || s.closed() {
		http.Error(w, "unknown session", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

func (h *Hub) pollConnect(w http.ResponseWriter, r *http.Request) {
	h.handshakes.Inc()
	uid, ok := h.authorize(r)
	if !ok || h.rejectOpen.Load() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s := h.newSession(uid, "longpolling")
	_, _ = w.Write([]byte(s.ID))
}

func (h *Hub) poll(w http.ResponseWriter, r *http.Request) {
	s, ok := h.pollSession(w, r)
	if !ok {
		return
	}

	timer := time.NewTimer(pollWait)
	defer timer.Stop()

	var first []byte
	select {
	case first = <-s.out:
	case <-timer.C:
		w.WriteHeader(http.StatusNoContent)
		return
	case <-s.done:
		http.Error(w, "session closed", http.StatusNotFound)
		return
	case <-r.Context().Done():
		return
	}

	var buf bytes.Buffer
	frame := first
	for {
		if frame == nil {
			// The session ends once the pending frames are delivered.
			s.drop()
			break
		}
		buf.Write(frame)

		drained := false
		select {
		case frame = <-s.out:
		default:
			drained = true
		}
		if drained {
			break
		}
	}

	if buf.Len() == 0 {
		http.Error(w, "session closed", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(buf.Bytes())
}

func (h *Hub) pollSend(w http.ResponseWriter, r *http.Request) {
	s, ok := h.pollSession(w, r)
	if !ok {
		return
	}
	data, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	frames, err := codec.NewCodec().Decode(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	for _, f := range frames {
		go s.handle(f)
	}
}

func (h *Hub) pollDelete(w http.ResponseWriter, r *http.Request) {
	s := h.session(r.URL.Query().Get("id"))
	if s != nil {
		s.drop()
	}
	w.WriteHeader(http.StatusNoContent)
}

// Push sends an event to every open session.
func (h *Hub) Push(method string, msg wire.Message) {
	for _, s := range h.Sessions() {
		s.Push(method, msg)
	}
}

// DropAll ends every session abruptly, as a network failure would.
func (h *Hub) DropAll() {
	for _, s := range h.Sessions() {
		s.drop()
	}
}

// SendClose asks every session to close with an HTTP-equivalent status.
func (h *Hub) SendClose(status int32, msg string) {
	for _, s := range h.Sessions() {
		s.closeWith(status, msg)
	}
}
