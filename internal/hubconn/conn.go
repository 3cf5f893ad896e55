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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pairmesh/pairsync/codec"
	"github.com/pairmesh/pairsync/codec/wire"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	eventBufferSize = 256
	writeQueueSize  = 64
)

var errReconnecting = errcode.Network(errors.New("connection is reconnecting"))

// Options configures a hub connection. The token is immutable for the
// lifetime of the connection; a new token needs a new connection.
type Options struct {
	URL       string
	Token     string
	Transport TransportType

	// Reconnect decides the delay between two redial attempts after the
	// first one, which is immediate. Nil uses the default policy.
	Reconnect backoff.Policy
	// MaxReconnectAttempts bounds the redials of one drop. Zero means
	// unlimited.
	MaxReconnectAttempts int

	HeartbeatInterval time.Duration
	// ServerTimeout closes the transport when nothing was received for this
	// long. Zero means twice the heartbeat interval.
	ServerTimeout time.Duration
}

// session is one dialed transporter. A connection goes through several
// sessions when it reconnects.
type session struct {
	t       Transporter
	chWrite chan []byte
	die     chan struct{}
	once    sync.Once
	err     error
}

func newSession(t Transporter) *session {
	return &session{
		t:       t,
		chWrite: make(chan []byte, writeQueueSize),
		die:     make(chan struct{}),
	}
}

// fail ends the session with err. Only the first error is kept.
func (s *session) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.die)
		_ = s.t.Close()
	})
}

// Conn is a connection to the hub of one server. It owns the transport
// loops, the pending invocations and the automatic reconnection.
type Conn struct {
	index protocol.ServerIndex
	opts  Options
	dial  func() Transporter

	ctx     context.Context
	cancel  context.CancelFunc
	closed  *atomic.Bool
	started *atomic.Bool
	latency *atomic.Duration
	recvAt  *atomic.Int64
	events  chan Event
	once    sync.Once
	wg      sync.WaitGroup

	// queue holds the events not yet taken by the consumer so that the
	// frame reader never waits for it.
	qmu      sync.Mutex
	queue    []Event
	wake     chan struct{}
	stop     chan struct{}
	pumpDone chan struct{}

	mu      sync.Mutex
	session *session
	pending map[string]chan *codec.Envelope
}

func newConn(index protocol.ServerIndex, opts Options, dial func() Transporter) *Conn {
	if opts.Reconnect == nil {
		opts.Reconnect = backoff.Default()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = constant.HeartbeatInterval
	}
	if opts.ServerTimeout <= 0 {
		opts.ServerTimeout = 2 * opts.HeartbeatInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		index:   index,
		opts:    opts,
		dial:    dial,
		ctx:     ctx,
		cancel:  cancel,
		closed:  atomic.NewBool(false),
		started: atomic.NewBool(false),
		latency: atomic.NewDuration(0),
		recvAt:  atomic.NewInt64(0),
		events:  make(chan Event, eventBufferSize),
		pending: map[string]chan *codec.Envelope{},

		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *Conn) Index() protocol.ServerIndex {
	return c.index
}

func (c *Conn) URL() string {
	return c.opts.URL
}

// Transport returns the transport the connection dials.
func (c *Conn) Transport() TransportType {
	return c.opts.Transport
}

// Latency returns the last measured heartbeat round trip.
func (c *Conn) Latency() time.Duration {
	return c.latency.Load()
}

// Events returns the lifecycle and message events of the connection. The
// channel is closed by Close.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Closed reports whether the connection was closed or gave up.
func (c *Conn) Closed() bool {
	return c.ctx.Err() != nil
}

// Connected reports whether a transport is currently established.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.ctx.Err() == nil
}

// Start dials the hub and starts the connection loops. ctx bounds the
// dial only.
func (c *Conn) Start(ctx context.Context) error {
	if !c.started.CAS(false, true) {
		return errors.New("connection already started")
	}
	if c.Closed() {
		return errcode.ErrConnectionClosed
	}

	t := c.dial()
	if err := t.Dial(ctx); err != nil {
		_ = t.Close()
		return err
	}

	s := newSession(t)
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = t.Close()
		return errcode.ErrConnectionClosed
	}
	c.session = s
	c.wg.Add(1)
	c.mu.Unlock()

	zap.L().Info("Hub connection established",
		zap.Stringer("server", c.index),
		zap.Stringer("transport", t.Kind()),
		zap.String("url", c.opts.URL))

	go c.run(s)
	return nil
}

// run supervises the sessions of the connection until it is closed or a
// redial gives up.
func (c *Conn) run(s *session) {
	defer c.wg.Done()

	for {
		err := c.serve(s)

		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		c.failPending(err)

		if c.closed.Load() {
			return
		}

		zap.L().Warn("Hub transport dropped", zap.Stringer("server", c.index), zap.Error(err))

		// A rejected token will be rejected again.
		if errcode.IsAuth(err) {
			c.giveUp(err)
			return
		}

		c.emit(Event{Type: EventTypeReconnecting, Data: EventReconnecting{Err: err}})

		next, err := c.redial()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.giveUp(err)
			return
		}

		c.mu.Lock()
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			next.fail(errcode.ErrConnectionClosed)
			return
		}
		c.session = next
		c.mu.Unlock()

		zap.L().Info("Hub connection reestablished", zap.Stringer("server", c.index))
		c.emit(Event{Type: EventTypeReconnected})
		s = next
	}
}

func (c *Conn) giveUp(err error) {
	zap.L().Warn("Hub connection closed", zap.Stringer("server", c.index), zap.Error(err))
	c.emit(Event{Type: EventTypeClosed, Data: EventClosed{Err: err}})
	c.cancel()
}

// redial dials new sessions with the reconnect policy until one succeeds,
// the attempts are exhausted or the connection is closed.
func (c *Conn) redial() (*session, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if c.opts.MaxReconnectAttempts > 0 && attempt > c.opts.MaxReconnectAttempts {
			return nil, errors.WithMessagef(lastErr, "give up after %d reconnect attempts", attempt-1)
		}

		if attempt > 1 {
			delay := c.opts.Reconnect.NextDelay(attempt - 1)
			if logutil.IsEnableTransport() {
				zap.L().Debug("Wait before redialing hub", zap.Stringer("server", c.index), zap.Duration("delay", delay))
			}
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-c.ctx.Done():
				timer.Stop()
				return nil, errcode.ErrConnectionClosed
			}
		}

		t := c.dial()
		err := t.Dial(c.ctx)
		if err == nil {
			return newSession(t), nil
		}
		_ = t.Close()
		if c.ctx.Err() != nil {
			return nil, errcode.ErrConnectionClosed
		}
		if errcode.IsAuth(err) {
			return nil, err
		}
		lastErr = err
		zap.L().Warn("Redial hub failed", zap.Stringer("server", c.index), zap.Int("attempt", attempt), zap.Error(err))
	}
}

// serve runs the read and write loops of a session and returns the error
// which ended it.
func (c *Conn) serve(s *session) error {
	c.recvAt.Store(time.Now().UnixNano())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.read(s)
	}()

	c.write(s)
	<-readDone
	return s.err
}

func (c *Conn) read(s *session) {
	defer func() {
		if e := recover(); e != nil {
			zap.L().Error("Read thread panicked", zap.Reflect("error", e))
			s.fail(errcode.Network(fmt.Errorf("read panic: %v", e)))
		}
	}()

	for {
		frames, err := s.t.Read()
		if err != nil {
			s.fail(err)
			return
		}
		c.recvAt.Store(time.Now().UnixNano())

		for _, f := range frames {
			if err := c.handle(s, f); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (c *Conn) handle(s *session, f codec.RawFrame) error {
	switch f.Type {
	case codec.FrameCompletion:
		env, err := codec.DecodeEnvelope(f)
		if err != nil {
			zap.L().Error("Decode completion failed", zap.Stringer("server", c.index), zap.Error(err))
			return nil
		}
		c.complete(env)

	case codec.FrameEvent:
		env, err := codec.DecodeEnvelope(f)
		if err != nil {
			zap.L().Error("Decode event failed", zap.Stringer("server", c.index), zap.Error(err))
			return nil
		}
		c.emit(Event{Type: EventTypeMessage, Data: EventMessage{Method: env.Method, Payload: env.Payload}})

	case codec.FramePing:
		frame, err := codec.EncodeFrame(codec.FramePong, f.Payload)
		if err != nil {
			return nil
		}
		select {
		case s.chWrite <- frame:
		default:
		}

	case codec.FramePong:
		ts := &timestamppb.Timestamp{}
		if err := proto.Unmarshal(f.Payload, ts); err == nil && ts.IsValid() {
			c.latency.Store(time.Since(ts.AsTime()))
		}

	case codec.FrameClose:
		env, err := codec.DecodeEnvelope(f)
		if err != nil {
			return errcode.ErrConnectionClosed
		}
		if env.Status == http.StatusUnauthorized || env.Status == http.StatusForbidden {
			return errcode.FromStatus(int(env.Status), env.Error)
		}
		return errcode.Network(errors.Errorf("closed by hub: %s", env.Error))

	default:
		if logutil.IsEnableTransport() {
			zap.L().Debug("Ignore unknown frame", zap.Stringer("server", c.index), zap.Stringer("type", f.Type))
		}
	}
	return nil
}

func (c *Conn) write(s *session) {
	defer func() {
		if e := recover(); e != nil {
			zap.L().Error("Write thread panicked", zap.Reflect("error", e))
			s.fail(errcode.Network(fmt.Errorf("write panic: %v", e)))
		}
	}()

	heartbeat := time.NewTicker(c.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case frame := <-s.chWrite:
			if err := s.t.Write(frame); err != nil {
				s.fail(err)
				return
			}

		case <-heartbeat.C:
			if time.Since(time.Unix(0, c.recvAt.Load())) > c.opts.ServerTimeout {
				s.fail(errcode.Network(errors.Errorf("no frame received in %s", c.opts.ServerTimeout)))
				return
			}
			payload, err := proto.Marshal(timestamppb.Now())
			if err != nil {
				continue
			}
			frame, err := codec.EncodeFrame(codec.FramePing, payload)
			if err != nil {
				continue
			}
			if err := s.t.Write(frame); err != nil {
				s.fail(err)
				return
			}

		case <-s.die:
			return

		case <-c.ctx.Done():
			s.fail(errcode.ErrConnectionClosed)
			return
		}
	}
}

// emit queues e for the consumer. It never blocks.
func (c *Conn) emit(e Event) {
	if c.ctx.Err() != nil {
		return
	}
	c.qmu.Lock()
	c.queue = append(c.queue, e)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) queued() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.queue)
}

// pump moves the queued events to the events channel in order. Events
// queued before the connection gave up are still delivered.
func (c *Conn) pump() {
	defer close(c.pumpDone)

	for {
		c.qmu.Lock()
		batch := c.queue
		c.queue = nil
		c.qmu.Unlock()

		for _, e := range batch {
			select {
			case c.events <- e:
			case <-c.stop:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-c.wake:
		case <-c.stop:
			return
		case <-c.ctx.Done():
			if c.queued() == 0 {
				return
			}
		}
	}
}

func (c *Conn) complete(env *codec.Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()

	if !ok {
		if logutil.IsEnableTransport() {
			zap.L().Debug("Completion without invocation", zap.Stringer("server", c.index), zap.String("id", env.ID))
		}
		return
	}
	ch <- env
}

// failPending fails every in-flight invocation of the ended session.
func (c *Conn) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = map[string]chan *codec.Envelope{}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if len(pending) > 0 && logutil.IsEnableTransport() {
		zap.L().Debug("Fail pending invocations", zap.Stringer("server", c.index), zap.Int("count", len(pending)), zap.Error(err))
	}
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return errcode.New(errcode.KindCancelled, errcode.Cancelled, ctx.Err())
	}
	return errcode.Network(ctx.Err())
}

// Invoke calls method on the hub and waits for its completion. The result
// is decoded into res when res is not nil.
func (c *Conn) Invoke(ctx context.Context, method string, req, res wire.Message) error {
	if c.Closed() {
		return errcode.ErrConnectionClosed
	}

	env := &codec.Envelope{ID: uuid.New().String(), Method: method}
	if req != nil {
		env.Payload = req.MarshalWire()
	}
	frame, err := codec.EncodeEnvelope(codec.FrameInvocation, env)
	if err != nil {
		return errcode.New(errcode.KindInvalid, errcode.MalformedOperation, err)
	}

	ch := make(chan *codec.Envelope, 1)
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return errReconnecting
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}()

	select {
	case s.chWrite <- frame:
	case <-s.die:
		return errcode.Network(errors.WithMessage(s.err, "send invocation"))
	case <-ctx.Done():
		return ctxError(ctx)
	}

	select {
	case result, ok := <-ch:
		if !ok {
			return errcode.Network(errors.Errorf("invocation %s interrupted", method))
		}
		if result.Status != 0 || result.Error != "" {
			status := int(result.Status)
			if status == 0 {
				status = http.StatusInternalServerError
			}
			return errors.WithMessagef(errcode.FromStatus(status, result.Error), "invoke %s", method)
		}
		if res != nil {
			if err := res.UnmarshalWire(result.Payload); err != nil {
				return errcode.New(errcode.KindProtocol, errcode.MalformedOperation,
					errors.WithMessagef(err, "decode %s result", method))
			}
		}
		return nil
	case <-ctx.Done():
		return ctxError(ctx)
	}
}

// Close stops the connection and waits for its loops to exit. No event is
// emitted for an explicit close.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.fail(errcode.ErrConnectionClosed)
	}

	c.wg.Wait()
	c.once.Do(func() {
		close(c.stop)
		<-c.pumpDone
		close(c.events)
	})

	if logutil.IsEnableTransport() {
		zap.L().Debug("Hub connection closed", zap.Stringer("server", c.index))
	}
	return nil
}
