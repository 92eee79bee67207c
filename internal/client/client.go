// ABOUTME: Websocket protocol client with explicit connection state machine.
// ABOUTME: Correlates responses by id; rejects requests while not connected.

package client

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/2389/coven-flow/internal/protocol"
)

// ConnState is the client connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// Options configures a Client.
type Options struct {
	// Token is sent as a bearer token during the handshake when non-empty.
	Token string
	// RequestTimeout bounds each Call. Default 30s.
	RequestTimeout time.Duration
	// BackoffInitial/BackoffMax shape the reconnect schedule.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// Jitter randomizes reconnect delays.
	Jitter bool
	// OnStateChange, when set, observes every state transition. It runs
	// under the client's lock and must not call back into the client.
	OnStateChange func(from, to ConnState)
	Logger        *slog.Logger
}

// Client is a reconnecting protocol client. All methods are safe for
// concurrent use.
type Client struct {
	url     string
	opts    Options
	logger  *slog.Logger
	backoff *Backoff

	mu      sync.Mutex
	state   ConnState
	conn    *websocket.Conn
	pending map[string]chan *protocol.Response
	gen     uint64 // connection generation, guards stale read loops
	closed  bool

	writeMu sync.Mutex
}

// New creates a client for the given websocket URL (e.g. ws://host:port/ws).
// The client starts Disconnected; call Connect.
func New(url string, opts Options) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		url:     url,
		opts:    opts,
		logger:  opts.Logger.With("component", "client"),
		backoff: newBackoff(opts.BackoffInitial, opts.BackoffMax, opts.Jitter),
		state:   StateDisconnected,
		pending: make(map[string]chan *protocol.Response),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(to ConnState) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.opts.OnStateChange != nil {
		// Callback outside the lock would race with Close; keep it short.
		c.opts.OnStateChange(from, to)
	}
}

// Connect dials the server. On success the client is Connected and a read
// loop routes responses until the connection drops, at which point the
// client reconnects on its own.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Errorf(protocol.KindConnectionError, "client is closed")
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.setState(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
		}
		return protocol.Errorf(protocol.KindConnectionError, "client is closed")
	}
	if err != nil {
		c.setState(StateDisconnected)
		return protocol.Errorf(protocol.KindConnectionError, "dial %s: %v", c.url, err)
	}

	c.adoptLocked(conn)
	return nil
}

// adoptLocked installs a fresh connection and starts its read loop.
// Caller holds c.mu.
func (c *Client) adoptLocked(conn *websocket.Conn) {
	conn.SetReadLimit(protocol.MaxMessageSize)
	c.conn = conn
	c.gen++
	c.setState(StateConnected)
	c.backoff.Reset()
	go c.readLoop(conn, c.gen)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var dopts websocket.DialOptions
	if c.opts.Token != "" {
		dopts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.opts.Token}}
	}
	conn, resp, err := websocket.Dial(ctx, c.url, &dopts)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readLoop routes responses for one connection generation. When the
// connection fails it fails all in-flight requests and kicks off reconnect.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		resp, derr := protocol.DecodeResponse(data)
		if derr != nil {
			c.logger.Warn("discarding malformed response", "error", derr)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			// Late response for a timed-out request.
			c.logger.Debug("response for unknown correlation id", "id", resp.ID)
			continue
		}
		ch <- resp
	}
}

// connectionLost moves to Reconnecting and starts the redial loop, unless
// the loss was caused by an explicit Close or a newer connection exists.
func (c *Client) connectionLost(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPendingLocked(protocol.Errorf(protocol.KindConnectionError, "connection lost: %v", cause))
	c.setState(StateReconnecting)
	c.mu.Unlock()

	c.logger.Warn("connection lost, reconnecting", "error", cause)
	go c.reconnectLoop(gen)
}

// failPendingLocked answers every in-flight request with err. Caller holds c.mu.
func (c *Client) failPendingLocked(err *protocol.Error) {
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- &protocol.Response{ID: id, Error: protocol.ToWire(err)}
	}
}

// reconnectLoop re-dials with exponential backoff until success or Close.
func (c *Client) reconnectLoop(gen uint64) {
	for {
		delay := c.nextDelay(gen)
		if delay < 0 {
			return
		}
		time.Sleep(delay)

		c.mu.Lock()
		stale := c.closed || gen != c.gen || c.state != StateReconnecting
		c.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := c.dial(ctx)
		cancel()

		c.mu.Lock()
		if c.closed || gen != c.gen {
			c.mu.Unlock()
			if conn != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
			}
			return
		}
		if err != nil {
			c.mu.Unlock()
			c.logger.Debug("reconnect attempt failed", "error", err)
			continue
		}
		c.adoptLocked(conn)
		c.mu.Unlock()
		c.logger.Info("reconnected", "url", c.url)
		return
	}
}

func (c *Client) nextDelay(gen uint64) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen || c.state != StateReconnecting {
		return -1
	}
	return c.backoff.Next()
}

// Close disconnects and stops all reconnection. Pending requests fail with
// ConnectionError.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPendingLocked(protocol.Errorf(protocol.KindConnectionError, "client closed"))
	c.setState(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "")
	}
	return nil
}

// Call issues one request and decodes its result into out (which may be nil
// for empty results). It fails fast with ConnectionError when not connected,
// and with Timeout when no response arrives within the request timeout.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		state := c.state
		c.mu.Unlock()
		return protocol.Errorf(protocol.KindConnectionError, "not connected (state %s)", state)
	}
	conn := c.conn
	id := uuid.New().String()
	ch := make(chan *protocol.Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := protocol.EncodeRequest(id, method, params)
	if err != nil {
		c.forget(id)
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	c.writeMu.Lock()
	werr := conn.Write(wctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if werr != nil {
		c.forget(id)
		return protocol.Errorf(protocol.KindConnectionError, "write %s: %v", method, werr)
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error.Err()
		}
		if out == nil {
			return nil
		}
		return protocol.Unmarshal(resp.Result, out)

	case <-timer.C:
		c.forget(id)
		return protocol.Errorf(protocol.KindTimeout, "%s timed out after %v", method, c.opts.RequestTimeout)

	case <-ctx.Done():
		c.forget(id)
		return protocol.Errorf(protocol.KindTimeout, "%s canceled: %v", method, ctx.Err())
	}
}

// forget drops a correlation id so a late response is discarded.
func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}
