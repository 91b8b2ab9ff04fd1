package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/medora-health/realtime/internal/domain"

	"github.com/gorilla/websocket"
)

type Options struct {
	ReconnectAttempts int           // consecutive failures before Failed
	ReconnectDelay    time.Duration // fixed delay between attempts
	Heartbeat         time.Duration // ping interval while connected
}

func (o *Options) defaults() {
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 3 * time.Second
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 30 * time.Second
	}
}

// Client owns the one physical socket: dialing, heartbeat, bounded reconnect
// and teardown. Inbound frames go to the Router, outbound frames through the
// send queue, group membership through the replayed group set.
//
// Transport failures recover in the background and are not returned to
// callers; Connect errors only when no credential is available.
type Client struct {
	opts   Options
	tokens domain.TokenSource
	dialer *websocket.Dialer
	router *Router

	mu             sync.Mutex
	state          State
	stateListeners []func(old, new State)
	conn           *websocket.Conn
	gen            int    // teardown epoch; stale timers and loops check it
	wsURL          string // endpoint with credential, fixed at Connect
	attempts       int
	auto           bool // auto-reconnect armed until Disconnect
	draining       bool // a queue flush owns the wire
	queue          sendQueue
	groups         groupSet
	heartbeatTimer *time.Timer
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

func NewClient(tokens domain.TokenSource, opts Options) *Client {
	opts.defaults()
	return &Client{
		opts:   opts,
		tokens: tokens,
		dialer: websocket.DefaultDialer,
		router: NewRouter(),
		groups: newGroupSet(),
	}
}

// On registers a listener for one inbound frame type.
func (c *Client) On(frameType string, h Handler) {
	c.router.On(frameType, h)
}

// OnStateChange registers a state observer. Observers run synchronously in
// registration order and must not block.
func (c *Client) OnStateChange(fn func(from, to State)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListeners = append(c.stateListeners, fn)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect looks up the credential and dials the endpoint (a ws/wss URL from
// UserEndpoint or ConsultationEndpoint). Without a credential the state goes
// straight to Failed and no socket is attempted. Transport failures after a
// successful credential lookup are handled by the reconnect loop, not
// returned.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	token, err := c.tokens.Token(ctx)
	if err == nil && token == "" {
		err = domain.ErrNoCredentials
	}
	if err != nil {
		c.mu.Lock()
		c.gen++
		c.stopTimersLocked()
		prev := c.conn
		c.conn = nil
		notify := c.setStateLocked(StateFailed)
		c.mu.Unlock()
		if prev != nil {
			_ = prev.Close()
		}
		notify()
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.auto = true
	c.attempts = 0
	c.wsURL = withToken(endpoint, token)
	c.stopTimersLocked()
	prev := c.conn
	c.conn = nil
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	notify()

	c.dial(ctx, gen)
	return nil
}

// Disconnect is the single cancellation point: cancels timers, closes the
// socket, drops queued frames and disarms auto-reconnect until the next
// Connect. Callbacks of the torn-down connection become no-ops.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.auto = false
	c.gen++
	c.stopTimersLocked()
	conn := c.conn
	c.conn = nil
	c.queue.clear()
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	notify()
}

// Send transmits immediately when connected, otherwise queues for the next
// connection. Fire-and-forget: enqueue order is preserved, no feedback.
func (c *Client) Send(f Frame) {
	c.mu.Lock()
	// an in-progress drain owns the wire; new sends go through the queue
	// tail so enqueue order is preserved
	if c.state == StateConnected && c.conn != nil && !c.draining && c.queue.size() == 0 {
		conn := c.conn
		c.mu.Unlock()
		if err := c.writeFrame(conn, f); err != nil {
			slog.Warn("ws: send failed", "type", f.Type, "err", err)
		}
		return
	}
	c.queue.push(f)
	c.mu.Unlock()
}

// Join records desired membership and, when connected, sends a join frame.
// Joining an already-joined group resends the frame; membership is a set.
func (c *Client) Join(group string) {
	c.mu.Lock()
	c.groups.add(group)
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if connected {
		_ = c.writeFrame(conn, Frame{Type: TypeJoinGroup, Data: GroupPayload{GroupName: group}})
	}
}

func (c *Client) Leave(group string) {
	c.mu.Lock()
	c.groups.remove(group)
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if connected {
		_ = c.writeFrame(conn, Frame{Type: TypeLeaveGroup, Data: GroupPayload{GroupName: group}})
	}
}

// Groups returns the desired membership set (the one replayed on reconnect).
func (c *Client) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.groups.list()
}

// --- connection lifecycle ---

func (c *Client) dial(ctx context.Context, gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	wsURL := c.wsURL
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		slog.Warn("ws: dial failed", "err", err)
		c.evaluateReconnect(gen)
		return
	}
	c.onOpen(gen, conn)
}

func (c *Client) onOpen(gen int, conn *websocket.Conn) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.heartbeatTimer = time.AfterFunc(c.opts.Heartbeat, func() { c.heartbeatTick(gen) })
	notify := c.setStateLocked(StateConnected)
	c.mu.Unlock()
	notify()
	slog.Info("ws: connected")

	_ = conn.SetReadDeadline(time.Now().Add(2 * c.opts.Heartbeat))
	go c.readLoop(gen, conn)

	c.flushQueue(gen, conn)
	c.replayGroups(gen, conn)
}

func (c *Client) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		// any inbound traffic proves the link alive
		_ = conn.SetReadDeadline(time.Now().Add(2 * c.opts.Heartbeat))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			slog.Debug("ws: dropping malformed frame")
			continue
		}
		c.router.Dispatch(f)
	}
	_ = conn.Close()
	c.handleClosed(gen)
}

func (c *Client) handleClosed(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return // explicit teardown already ran
	}
	c.conn = nil
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
	notify := c.setStateLocked(StateDisconnected)
	auto := c.auto
	c.mu.Unlock()
	notify()
	slog.Info("ws: disconnected")
	if auto {
		c.evaluateReconnect(gen)
	}
}

func (c *Client) evaluateReconnect(gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.auto {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts >= c.opts.ReconnectAttempts {
		c.stopTimersLocked()
		notify := c.setStateLocked(StateFailed)
		attempts := c.attempts
		c.mu.Unlock()
		notify()
		slog.Error("ws: reconnect attempts exhausted", "attempts", attempts)
		return
	}
	notify := c.setStateLocked(StateReconnecting)
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() { c.redial(gen) })
	attempt := c.attempts
	c.mu.Unlock()
	notify()
	slog.Info("ws: reconnect scheduled", "attempt", attempt)
}

func (c *Client) redial(gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.auto || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()
	c.dial(context.Background(), gen)
}

func (c *Client) heartbeatTick(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.heartbeatTimer = time.AfterFunc(c.opts.Heartbeat, func() { c.heartbeatTick(gen) })
	c.mu.Unlock()
	_ = c.writeFrame(conn, Frame{Type: TypePing, Timestamp: time.Now().UnixMilli()})
}

// flushQueue drains FIFO; on a failed write the frame goes back to the head
// and the remainder waits for the next connection. The draining flag covers
// the whole drain, including the write of the last shifted frame, so direct
// sends cannot overtake it.
func (c *Client) flushQueue(gen int, conn *websocket.Conn) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if gen == c.gen {
			c.draining = false
		}
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if gen != c.gen || c.state != StateConnected {
			c.mu.Unlock()
			return
		}
		f, ok := c.queue.shift()
		c.mu.Unlock()
		if !ok {
			return
		}
		if err := c.writeFrame(conn, f); err != nil {
			slog.Warn("ws: flush interrupted", "err", err)
			c.mu.Lock()
			if gen == c.gen {
				c.queue.unshift(f)
			}
			c.mu.Unlock()
			return
		}
	}
}

func (c *Client) replayGroups(gen int, conn *websocket.Conn) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	groups := c.groups.list()
	c.mu.Unlock()
	for _, g := range groups {
		if err := c.writeFrame(conn, Frame{Type: TypeJoinGroup, Data: GroupPayload{GroupName: g}}); err != nil {
			slog.Warn("ws: group replay interrupted", "group", g, "err", err)
			return
		}
	}
}

func (c *Client) writeFrame(conn *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(f)
}

func (c *Client) stopTimersLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// setStateLocked mutates state and returns the listener notification to run
// after unlocking, so observers can call back into the client.
func (c *Client) setStateLocked(to State) func() {
	if c.state == to {
		return func() {}
	}
	old := c.state
	c.state = to
	ls := make([]func(State, State), len(c.stateListeners))
	copy(ls, c.stateListeners)
	return func() {
		for _, l := range ls {
			l(old, to)
		}
	}
}
