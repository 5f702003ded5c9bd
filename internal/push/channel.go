// Package push maintains the authenticated event stream delivering job
// completion events.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"proteus/internal/api"
	"proteus/internal/domain"
	"proteus/internal/infra"
)

// State is the channel lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
)

// CloseError carries the close code and reason of an unexpected channel
// shutdown so the caller can decide its reconnection policy.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("channel closed: %d %s", e.Code, e.Reason)
}

func (e *CloseError) Unwrap() error {
	return domain.ErrChannelClosed
}

// Options configures a Channel.
type Options struct {
	Session *api.Session
	Logger  *infra.Logger
	Dialer  *websocket.Dialer

	// OnReady fires once the transport confirms the channel is open. Callers
	// that must be listening before any result can arrive should defer job
	// enqueue until it fires.
	OnReady func()
	// OnEvent fires for each decoded completion event, in frame-arrival
	// order, from a single goroutine. Handlers must not block.
	OnEvent func(domain.CompletionEvent)
	// OnError fires for token, dial, and abnormal close failures.
	OnError func(error)

	HandshakeTimeout time.Duration
}

// Channel is one logical subscription to completion events. At most one
// transport connection is live per instance.
type Channel struct {
	session *api.Session
	dialer  *websocket.Dialer
	logger  *infra.Logger

	onReady func()
	onEvent func(domain.CompletionEvent)
	onError func(error)

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	epoch int
}

// NewChannel constructs a disconnected channel.
func NewChannel(opts Options) (*Channel, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("push: session is required")
	}
	dialer := opts.Dialer
	if dialer == nil {
		timeout := opts.HandshakeTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		dialer = &websocket.Dialer{HandshakeTimeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Channel{
		session: opts.Session,
		dialer:  dialer,
		logger:  logger,
		onReady: opts.OnReady,
		onEvent: opts.OnEvent,
		onError: opts.OnError,
		state:   StateDisconnected,
	}, nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect fetches a channel token, dials the endpoint, fires OnReady, and
// starts dispatching events. Token failure is reported as ErrTokenUnavailable
// and is never retried here; the caller owns retry policy.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("push: connect while %s", c.state)
	}
	c.state = StateConnecting
	epoch := c.epoch
	c.mu.Unlock()

	token, err := c.fetchToken(ctx)
	if err != nil {
		c.abandonConnect(epoch)
		return err
	}

	endpoint := c.session.WebSocketURL() + "?token=" + url.QueryEscape(token)
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.abandonConnect(epoch)
		return fmt.Errorf("push: dial %s: %w", c.session.WebSocketURL(), err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// Disconnect was called while the token fetch or dial was in
		// flight; the channel stays down.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("push: connect aborted by disconnect")
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Debug().Str("endpoint", c.session.WebSocketURL()).Msg("channel connected")
	if c.onReady != nil {
		c.onReady()
	}

	go c.readLoop(conn)
	return nil
}

// Disconnect performs a clean close. It is idempotent: calling it twice, or
// on a never-connected channel, does nothing. A Connect still in flight is
// abandoned and returns an error instead of installing its connection.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.epoch++
	if c.conn == nil {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosing
	c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"), deadline)
	conn.Close()

	c.setState(StateDisconnected)
}

func (c *Channel) fetchToken(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.session.GetJSON(ctx, "/user/ws-token", nil, &resp); err != nil {
		return "", fmt.Errorf("push: %v: %w", err, domain.ErrTokenUnavailable)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("push: empty channel token: %w", domain.ErrTokenUnavailable)
	}
	return resp.Token, nil
}

// readLoop dispatches inbound frames one at a time until the connection
// ends. It is the only goroutine invoking OnEvent, which preserves
// frame-arrival order.
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}

		var event domain.CompletionEvent
		if jsonErr := json.Unmarshal(data, &event); jsonErr != nil {
			// One malformed frame must not take down the channel.
			c.logger.Warn().Err(jsonErr).Msg("dropping malformed channel frame")
			continue
		}
		if c.onEvent != nil {
			c.onEvent(event)
		}
	}
}

// handleReadError is the read loop's shutdown path. It only does bookkeeping
// for the connection the loop was serving: after a disconnect, or once a
// newer connection is installed, the stale loop's exit must not disturb it.
func (c *Channel) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.logger.Debug().Msg("channel closed cleanly")
		return
	}

	closeErr := &CloseError{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
	if ce, ok := err.(*websocket.CloseError); ok {
		closeErr = &CloseError{Code: ce.Code, Reason: ce.Text}
	}
	c.logger.Warn().Int("code", closeErr.Code).Str("reason", closeErr.Reason).Msg("channel closed unexpectedly")
	if c.onError != nil {
		c.onError(closeErr)
	}
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// abandonConnect rolls the state back to disconnected after a failed connect
// attempt, unless a disconnect already did it for this attempt.
func (c *Channel) abandonConnect(epoch int) {
	c.mu.Lock()
	if c.epoch == epoch && c.state == StateConnecting {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
}
