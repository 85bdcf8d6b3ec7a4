// Package ws maintains the single WebSocket connection to the server's
// event stream and redistributes decoded events to registered listeners.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/matheus3301/chatsync/internal/events"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultReconnectMin = time.Second
	defaultReconnectMax = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second

	// maxFrameSize bounds a single inbound event frame.
	maxFrameSize = 4 * 1024 * 1024

	// jitterDivisor: jitter is uniform in [0, backoff/jitterDivisor).
	jitterDivisor = 4
)

// ErrNotConnected is returned by Send while the stream is down. Events are
// never buffered for later delivery.
var ErrNotConnected = errors.New("event stream not connected")

// Handler receives one decoded event. Handlers run on the read loop and
// must not block; work that needs to wait belongs in its own goroutine.
type Handler func(events.Event)

// Conn is the subset of *websocket.Conn the client uses, so tests can
// substitute an in-memory connection.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens a connection to the event stream.
type DialFunc func(ctx context.Context, url string, header http.Header) (Conn, error)

// Dial opens a real WebSocket connection.
func Dial(ctx context.Context, u string, header http.Header) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: header}) //nolint:bodyclose // closed by the library
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// Options configures a Client.
type Options struct {
	URL          string
	Token        string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	WriteTimeout time.Duration
	Dial         DialFunc
}

// Client is the process-wide event stream. Exactly one connection is live
// at a time; Run keeps it alive until its context ends.
type Client struct {
	opts    Options
	machine *status.Machine
	logger  *zap.Logger

	mu        sync.RWMutex
	listeners map[events.Name]map[uint64]Handler
	nextID    uint64

	connMu sync.RWMutex
	conn   Conn

	// dispatchMu makes delivery of one frame atomic relative to others.
	dispatchMu sync.Mutex
}

// New creates a client. It does not connect until Run is called.
func New(opts Options, machine *status.Machine, logger *zap.Logger) *Client {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = max(defaultReconnectMax, opts.ReconnectMin)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if machine == nil {
		machine = status.NewMachine(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:      opts,
		machine:   machine,
		logger:    logger,
		listeners: make(map[events.Name]map[uint64]Handler),
	}
}

// AddEventListener registers h for the canonical event name and returns a
// function that removes it. Several handlers may share a name.
func (c *Client) AddEventListener(name events.Name, h Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.listeners[name] == nil {
		c.listeners[name] = make(map[uint64]Handler)
	}
	c.listeners[name][id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners[name], id)
			if len(c.listeners[name]) == 0 {
				delete(c.listeners, name)
			}
		})
	}
}

// ListenerCount returns how many handlers are registered for name.
func (c *Client) ListenerCount(name events.Name) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners[name])
}

// IsConnected reports whether a connection is currently live.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// State returns the connection state machine.
func (c *Client) State() *status.Machine {
	return c.machine
}

// Send writes one outbound envelope. It is fire-and-forget: a nil error
// means the frame was written, not that the server acted on it.
func (c *Client) Send(ctx context.Context, name events.Name, payload any) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", name, err)
	}
	frame, err := json.Marshal(events.Envelope{Type: string(name), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// Run connects and keeps reconnecting with bounded exponential backoff
// until ctx is cancelled. Events arriving during a gap are lost.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.ReconnectMin
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			_ = c.machine.Transition(status.Closed)
			return ctx.Err()
		}
		if connected {
			backoff = c.opts.ReconnectMin
		}
		_ = c.machine.Transition(status.Reconnecting)

		delay := backoff
		if j := int64(backoff) / jitterDivisor; j > 0 {
			delay += time.Duration(rand.Int64N(j)) //nolint:gosec // reconnect jitter
		}
		c.logger.Warn("event stream lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = c.machine.Transition(status.Closed)
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, c.opts.ReconnectMax)
	}
}

// session dials once and reads until the connection drops. connected
// reports whether the dial succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	_ = c.machine.Transition(status.Connecting)

	u, err := c.streamURL()
	if err != nil {
		return false, err
	}
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	c.logger.Debug("dialing event stream", zap.String("url", c.opts.URL))
	conn, err := c.opts.Dial(ctx, u, header)
	if err != nil {
		return false, fmt.Errorf("dial event stream: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	_ = c.machine.Transition(status.Connected)
	c.logger.Info("event stream connected")

	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("read event stream: %w", err)
		}
		if typ != websocket.MessageText {
			c.logger.Warn("ignoring non-text frame", zap.Int("bytes", len(data)))
			continue
		}
		c.HandleFrame(data)
	}
}

func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse event stream url: %w", err)
	}
	if c.opts.Token != "" {
		q := u.Query()
		q.Set("token", c.opts.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// HandleFrame decodes one raw frame and delivers it to every listener of
// its canonical name. Malformed frames are logged and dropped.
func (c *Client) HandleFrame(frame []byte) {
	evt, err := events.Parse(frame)
	if err != nil {
		c.logger.Warn("dropping malformed event",
			zap.Error(err),
			zap.String("type", gjson.GetBytes(frame, "type").String()),
		)
		return
	}
	c.Dispatch(evt)
}

// Dispatch delivers evt synchronously to the listeners registered for its
// name. A panicking handler is logged and does not stop delivery to the
// others.
func (c *Client) Dispatch(evt events.Event) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	name := evt.EventName()
	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.listeners[name]))
	for _, h := range c.listeners[name] {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		if _, unknown := evt.(*events.Unknown); unknown {
			c.logger.Debug("no listener for event", zap.String("type", string(name)))
		}
		return
	}
	for _, h := range handlers {
		c.call(name, h, evt)
	}
}

func (c *Client) call(name events.Name, h Handler, evt events.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", zap.String("type", string(name)), zap.Any("panic", r))
		}
	}()
	h(evt)
}
