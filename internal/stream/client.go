// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stream delivers streamed chat replies to caller callbacks.
//
// Send returns two values at once: a Handle that can cancel the stream
// immediately, and a Pending that settles when the stream completes,
// fails or is canceled. Events are handled one at a time, in the order
// they arrive.
package stream

import (
	"bytes"
	"context"
	"net/url"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/logging"
	"github.com/traylinx/chatdesk/internal/transport"
)

// Callbacks receive stream events. Any of them may be nil.
type Callbacks struct {
	OnMessage  func(Message)
	OnError    func(error)
	OnComplete func()
}

// Client opens streams through a Dialer.
type Client struct {
	dialer        Dialer
	completeEvent string
	completeTypes []string
}

// Option configures a Client.
type Option func(*Client)

// WithCompleteEvent sets the event name that ends a stream.
func WithCompleteEvent(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.completeEvent = name
		}
	}
}

// WithCompleteTypes also ends the stream after delivering a message whose
// type is one of types.
func WithCompleteTypes(types ...string) Option {
	return func(c *Client) { c.completeTypes = slices.Clone(types) }
}

// NewClient returns a Client using dialer.
func NewClient(dialer Dialer, opts ...Option) *Client {
	c := &Client{dialer: dialer, completeEvent: config.DefaultCompleteEvent}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds the Client described by cfg on top of the request layer.
func FromConfig(cfg config.StreamConfig, tc *transport.Client) *Client {
	var dialer Dialer
	if cfg.Transport == config.StreamTransportWebSocket {
		dialer = &WebSocketDialer{Client: tc, Path: cfg.Path}
	} else {
		dialer = &SSEDialer{Client: tc, Path: cfg.Path}
	}
	return NewClient(dialer, WithCompleteEvent(cfg.CompleteEvent), WithCompleteTypes(cfg.CompleteTypes...))
}

// Send opens a stream for query. Both return values are usable at once.
func (c *Client) Send(ctx context.Context, query url.Values, cb Callbacks) (*Handle, *Pending) {
	ctx, cancel := context.WithCancel(ctx)
	p := newPending()
	h := &Handle{cancel: cancel, pending: p}
	s := &session{
		client: c,
		handle: h,
		cb:     cb,
		log:    logging.WithRequestID(uuid.New().String()[:8]),
	}
	go s.run(ctx, query)
	return h, p
}

// Handle owns the channel of one stream.
type Handle struct {
	cancel  context.CancelFunc
	pending *Pending

	mu       sync.Mutex    // serialises callback dispatch
	runner   atomic.Uint64 // goroutine that dispatches callbacks
	canceled atomic.Bool
	ch       Channel
	chMu     sync.Mutex
	taskID   atomic.Value
}

// Cancel closes the channel. Callbacks that have not started when Cancel
// returns are never invoked, and the Pending settles with ErrCanceled.
// Calling Cancel again has no effect.
func (h *Handle) Cancel() {
	if h.canceled.Swap(true) {
		return
	}
	h.cancel()
	h.chMu.Lock()
	if h.ch != nil {
		_ = h.ch.Close()
	}
	h.chMu.Unlock()
	h.pending.settle(ErrCanceled)

	// wait for a dispatch in progress, unless called from inside it
	if goid() != h.runner.Load() {
		h.mu.Lock()
		h.mu.Unlock()
	}
}

// TaskID returns the server task id once the channel is open.
func (h *Handle) TaskID() string {
	if v, ok := h.taskID.Load().(string); ok {
		return v
	}
	return ""
}

// attach records ch, closing it at once if the handle was canceled while
// dialing. It reports whether the stream may proceed.
func (h *Handle) attach(ch Channel) bool {
	h.chMu.Lock()
	defer h.chMu.Unlock()
	if h.canceled.Load() {
		_ = ch.Close()
		return false
	}
	h.ch = ch
	h.taskID.Store(ch.TaskID())
	return true
}

// dispatch runs fn unless the handle has been canceled.
func (h *Handle) dispatch(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled.Load() {
		return false
	}
	fn()
	return true
}

// Pending settles once per stream.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) settle(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the stream has settled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err is nil for a completed stream and before settlement.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the stream settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type session struct {
	client *Client
	handle *Handle
	cb     Callbacks
	log    *log.Entry
}

func (s *session) run(ctx context.Context, query url.Values) {
	h := s.handle
	h.runner.Store(goid())
	ch, err := s.client.dialer.Dial(ctx, query)
	if err != nil {
		s.fail(err)
		return
	}
	if !h.attach(ch) {
		return
	}
	s.log.Debugf("stream opened (task %s)", ch.TaskID())

	for {
		ev, err := ch.Next(ctx)
		if err != nil {
			_ = ch.Close()
			s.fail(err)
			return
		}

		if ev.Name == s.client.completeEvent {
			s.complete(ch)
			return
		}
		if !ev.isDefault() {
			s.log.Debugf("stream: ignoring %q event", ev.Name)
			continue
		}

		var probe json.RawMessage
		if perr := json.Unmarshal([]byte(ev.Data), &probe); perr != nil {
			err := &MalformedEventError{Data: ev.Data, Err: perr}
			if !h.dispatch(func() { s.onError(err) }) {
				return
			}
			continue
		}

		msg := Message(ev.Data)
		if !h.dispatch(func() { s.onMessage(msg) }) {
			return
		}
		if len(s.client.completeTypes) > 0 && slices.Contains(s.client.completeTypes, msg.Type()) {
			s.complete(ch)
			return
		}
	}
}

func (s *session) complete(ch Channel) {
	_ = ch.Close()
	if s.handle.dispatch(func() {
		if s.cb.OnComplete != nil {
			s.cb.OnComplete()
		}
	}) {
		s.handle.pending.settle(nil)
		s.log.Debug("stream completed")
	}
}

func (s *session) fail(err error) {
	if s.handle.dispatch(func() { s.onError(err) }) {
		s.handle.pending.settle(err)
		s.log.Debugf("stream failed: %v", err)
	}
}

func (s *session) onMessage(m Message) {
	if s.cb.OnMessage != nil {
		s.cb.OnMessage(m)
	}
}

func (s *session) onError(err error) {
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

// goid returns the id of the calling goroutine, parsed from the
// "goroutine N [" header of its stack trace.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
