// Package push maintains the single WebSocket connection to the migration backend and decodes its messages.
//
// [Client.Run] dials, reads until the connection drops, waits a fixed delay and dials again, without limit, until its
// context is cancelled. Decoded messages are delivered in arrival order on [Client.Messages]; connectivity changes on
// [Client.States]. Malformed payloads are logged and dropped and never end the stream.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncctl/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	defaultReconnectDelay = 3 * time.Second
	messageBuffer         = 256
	stateBuffer           = 8
)

// ClientOpts configures a [Client].
type ClientOpts struct {
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Logger         *log.Logger
}

// Client owns at most one live push connection.
type Client struct {
	url    string
	delay  time.Duration
	dialer *websocket.Dialer
	logger *log.Logger

	messages chan Message
	states   chan bool

	running   atomic.Bool
	connected atomic.Bool
	received  atomic.Int64
	dropped   atomic.Int64
	attempts  atomic.Int64

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the push endpoint at url (ws:// or wss://).
func NewClient(url string, opts ClientOpts) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Client{
		url:      url,
		delay:    opts.ReconnectDelay,
		dialer:   opts.Dialer,
		logger:   shared.WithLogger(opts.Logger, "component", "push"),
		messages: make(chan Message, messageBuffer),
		states:   make(chan bool, stateBuffer),
	}
}

// Messages is the ordered stream of decoded messages. It is closed when Run returns.
func (c *Client) Messages() <-chan Message { return c.messages }

// States reports every connectivity change. It is closed when Run returns.
func (c *Client) States() <-chan bool { return c.states }

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool { return c.connected.Load() }

// Received is the number of messages delivered so far.
func (c *Client) Received() int64 { return c.received.Load() }

// Dropped is the number of payloads discarded as malformed or unknown.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Attempts is the number of dial attempts made so far.
func (c *Client) Attempts() int64 { return c.attempts.Load() }

// Run connects and keeps reconnecting until ctx is cancelled. It returns nil on cancellation.
//
// A client runs once; a second call returns [shared.ErrAlreadyRunning].
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("push client: %w", shared.ErrAlreadyRunning)
	}
	defer close(c.states)
	defer close(c.messages)

	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()

	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("push connection lost", "err", err, "retry_in", c.delay)
		}
		c.setConnected(ctx, false)

		if ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection fails.
func (c *Client) session(ctx context.Context) error {
	c.attempts.Add(1)
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer c.closeConn()

	// A cancellation that raced the dial would otherwise leave this connection open.
	if ctx.Err() != nil {
		return nil
	}

	c.logger.Info("push connected", "url", c.url)
	c.setConnected(ctx, true)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		msg, err := Decode(payload)
		if err != nil {
			c.dropped.Add(1)
			if errors.Is(err, shared.ErrUnknownMessage) {
				c.logger.Debug("ignoring push message", "err", err)
			} else {
				c.logger.Warn("dropping malformed push message", "err", err, "bytes", len(payload))
			}
			continue
		}

		select {
		case c.messages <- msg:
			c.received.Add(1)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) setConnected(ctx context.Context, v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	select {
	case c.states <- v:
	case <-ctx.Done():
	}
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
}
