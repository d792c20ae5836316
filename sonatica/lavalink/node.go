package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/liuran001/sonatica-go/sonatica/rest"
	"github.com/liuran001/sonatica-go/sonatica/selector"
	"golang.org/x/sync/errgroup"
)

const (
	closeDestroyCode   = websocket.CloseNormalClosure
	closeDestroyReason = "destroy"
	closeWriteTimeout  = time.Second
	destroyTimeout     = 10 * time.Second
)

// Node is the session with one Lavalink server: one WebSocket for events
// and a REST client for commands.
type Node struct {
	manager *Manager
	options NodeOptions
	rest    Requester
	logger  sonatica.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	conn           *websocket.Conn
	connID         string
	connected      bool
	connecting     bool
	destroyed      bool
	enabled        bool
	sessionID      string
	stats          *protocol.Stats
	info           *protocol.Info
	attempts       int
	readyCount     int
	reconnectTimer *time.Timer
	healthCancel   context.CancelFunc
	healthFailures int

	writeMu sync.Mutex
}

func newNode(m *Manager, opts NodeOptions) *Node {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		manager: m,
		options: opts,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
	}
	if m.logger != nil {
		n.logger = m.logger.With("node", opts.Identifier)
	}
	if m.opts.NewRequester != nil {
		n.rest = m.opts.NewRequester(opts)
	} else {
		n.rest = rest.New(rest.Options{
			Name:              opts.Identifier,
			BaseURL:           opts.RestURL(),
			Password:          opts.Password,
			Timeout:           opts.RequestTimeout,
			RequestsPerSecond: opts.RequestsPerSecond,
			Logger:            n.logger,
			Observer:          m.opts.RequestObserver,
		})
	}
	return n
}

func (n *Node) Identifier() string {
	return n.options.Identifier
}

// Options returns the node options with defaults applied.
func (n *Node) Options() NodeOptions {
	return n.options
}

// Address returns host:port.
func (n *Node) Address() string {
	return n.options.Host + ":" + strconv.Itoa(n.options.Port)
}

// Rest returns the REST transport of this node.
func (n *Node) Rest() Requester {
	return n.rest
}

// Connected reports whether the WebSocket is open and the node is live.
func (n *Node) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected && !n.destroyed
}

// reachable ignores the destroyed flag so teardown can still use REST.
func (n *Node) reachable() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected && n.sessionID != ""
}

func (n *Node) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// SetEnabled excludes or re-includes the node in selection.
func (n *Node) SetEnabled(enabled bool) {
	n.mu.Lock()
	n.enabled = enabled
	n.mu.Unlock()
}

// Stats returns the last telemetry snapshot, nil before the first one.
func (n *Node) Stats() *protocol.Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Info returns the node info fetched on connect, nil if unknown.
func (n *Node) Info() *protocol.Info {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.info
}

func (n *Node) SessionID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionID
}

func (n *Node) Destroyed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.destroyed
}

// Connect dials the node. It is a no-op while connected or dialing. A dial
// failure schedules a reconnect and is also reported as NodeErrorEvent.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return &NodeError{Node: n.options.Identifier, Op: "connect", Err: notReady("node destroyed")}
	}
	if n.connected || n.connecting {
		n.mu.Unlock()
		return nil
	}
	n.connecting = true
	n.mu.Unlock()

	headers := n.handshakeHeaders(ctx)
	conn, resp, err := n.manager.opts.Dialer.DialContext(ctx, n.options.WebSocketURL(), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	n.mu.Lock()
	n.connecting = false
	if err != nil {
		n.mu.Unlock()
		nodeErr := &NodeError{Node: n.options.Identifier, Op: "connect", Err: err}
		n.reportError(nodeErr, false)
		n.scheduleReconnect()
		return nodeErr
	}
	if n.destroyed {
		n.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	n.conn = conn
	n.connID = uuid.NewString()
	n.connected = true
	n.attempts = 0
	n.healthFailures = 0
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
		n.reconnectTimer = nil
	}
	connID := n.connID
	healthCtx, healthCancel := context.WithCancel(n.ctx)
	n.healthCancel = healthCancel
	n.mu.Unlock()

	if n.logger != nil {
		n.logger.Info("node connected", "conn_id", connID, "address", n.Address())
	}
	n.manager.emit(NodeConnectEvent{Node: n})

	go n.readLoop(conn, connID)
	if n.options.HealthCheckInterval > 0 {
		go n.healthLoop(healthCtx, conn)
	}

	info, err := n.FetchInfo(ctx)
	if err != nil {
		n.reportError(&NodeError{Node: n.options.Identifier, Op: "fetch info", Err: err}, false)
		return nil
	}
	n.mu.Lock()
	n.info = info
	n.mu.Unlock()
	return nil
}

func (n *Node) handshakeHeaders(ctx context.Context) http.Header {
	m := n.manager
	headers := http.Header{}
	headers.Set("Authorization", n.options.Password)
	headers.Set("User-Id", m.ClientID().String())
	headers.Set("Client-Name", m.opts.ClientName)

	if m.opts.AutoResume && m.opts.Store != nil {
		var sessionID string
		ok, err := m.opts.Store.Get(ctx, sessionKey(n.options.Identifier), &sessionID)
		switch {
		case err != nil:
			if n.logger != nil {
				n.logger.Warn("failed to load session id", "error", err)
			}
		case ok && sessionID != "":
			headers.Set("Session-Id", sessionID)
		}
	}
	return headers
}

func (n *Node) readLoop(conn *websocket.Conn, connID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			n.onClose(conn, connID, err)
			return
		}
		n.handleMessage(data)
	}
}

func (n *Node) onClose(conn *websocket.Conn, connID string, err error) {
	n.mu.Lock()
	if n.conn != conn {
		n.mu.Unlock()
		return
	}
	n.conn = nil
	n.connected = false
	if n.healthCancel != nil {
		n.healthCancel()
		n.healthCancel = nil
	}
	destroyed := n.destroyed
	n.mu.Unlock()
	_ = conn.Close()

	if destroyed {
		return
	}

	code, reason := websocket.CloseAbnormalClosure, ""
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	}

	if n.logger != nil {
		n.logger.Warn("node disconnected", "conn_id", connID, "code", code, "reason", reason)
	}
	n.manager.emit(NodeDisconnectEvent{Node: n, Code: code, Reason: reason})

	if code == closeDestroyCode && reason == closeDestroyReason {
		return
	}
	n.scheduleReconnect()
	n.handOffPlayers()
}

// handOffPlayers moves players away from this node, or marks them idle when
// no other node can take them.
func (n *Node) handOffPlayers() {
	m := n.manager
	players := m.playersOn(n)
	if len(players) == 0 {
		return
	}

	_, canMove := m.failoverTarget(n)
	for _, p := range players {
		if !m.opts.AutoMove || !canMove {
			p.setPlaying(false)
			continue
		}
		p := p
		m.submit(func() {
			ctx, cancel := context.WithTimeout(m.ctx, destroyTimeout)
			defer cancel()
			if err := p.MoveNode(ctx, ""); err != nil {
				p.setPlaying(false)
				if n.logger != nil {
					n.logger.Warn("failed to move player", "guild", p.GuildID(), "error", err)
				}
			}
		})
	}
}

func (n *Node) scheduleReconnect() {
	n.mu.Lock()
	if n.destroyed || n.reconnectTimer != nil {
		n.mu.Unlock()
		return
	}
	n.attempts++
	attempt := n.attempts
	if n.options.RetryAmount > 0 && attempt > n.options.RetryAmount {
		n.mu.Unlock()
		err := &NodeError{
			Node: n.options.Identifier,
			Op:   "reconnect",
			Err:  fmt.Errorf("giving up after %d attempts", n.options.RetryAmount),
		}
		n.reportError(err, true)
		ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
		defer cancel()
		_ = n.Destroy(ctx)
		return
	}
	n.reconnectTimer = time.AfterFunc(n.options.RetryDelay, func() {
		n.mu.Lock()
		n.reconnectTimer = nil
		destroyed := n.destroyed
		n.mu.Unlock()
		if destroyed {
			return
		}
		if n.logger != nil {
			n.logger.Info("reconnecting node", "attempt", attempt)
		}
		n.manager.emit(NodeReconnectEvent{Node: n, Attempt: attempt})
		_ = n.Connect(n.ctx)
	})
	n.mu.Unlock()
}

func (n *Node) reportError(err error, fatal bool) {
	if n.logger != nil {
		if fatal {
			n.logger.Error("node failed", "error", err)
		} else {
			n.logger.Warn("node error", "error", err)
		}
	}
	n.manager.emit(NodeErrorEvent{Node: n, Err: err, Fatal: fatal})
}

func (n *Node) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Op == "" {
		if n.logger != nil {
			n.logger.Debug("dropping malformed frame", "error", err)
		}
		return
	}
	n.manager.emit(NodeRawEvent{Node: n, Op: msg.Op, Payload: json.RawMessage(data)})

	switch msg.Op {
	case protocol.OpStats:
		var stats protocol.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			n.decodeFailed(msg.Op, err)
			return
		}
		n.mu.Lock()
		n.stats = &stats
		n.mu.Unlock()

	case protocol.OpPlayerUpdate:
		var update protocol.PlayerUpdateOp
		if err := json.Unmarshal(data, &update); err != nil {
			n.decodeFailed(msg.Op, err)
			return
		}
		p := n.manager.Get(update.GuildID)
		if p == nil {
			return
		}
		p.setPosition(update.State.Position)
		n.manager.emit(PlayerUpdateEvent{Player: p, State: update.State})

	case protocol.OpReady:
		var ready protocol.ReadyOp
		if err := json.Unmarshal(data, &ready); err != nil {
			n.decodeFailed(msg.Op, err)
			return
		}
		n.handleReady(n.ctx, ready)

	case protocol.OpEvent:
		var event protocol.EventOp
		if err := json.Unmarshal(data, &event); err != nil {
			n.decodeFailed(msg.Op, err)
			return
		}
		n.manager.dispatcher.Dispatch(n.ctx, n, &event)
	}
}

func (n *Node) decodeFailed(op protocol.Op, err error) {
	n.reportError(&NodeError{Node: n.options.Identifier, Op: "decode " + string(op), Err: err}, false)
}

// Destroy tears the node down for good: hosted players are moved or
// destroyed, the socket is closed and the node leaves the manager. Calling
// it again is a no-op.
func (n *Node) Destroy(ctx context.Context) error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return nil
	}
	n.destroyed = true
	n.stopTimersLocked()
	n.mu.Unlock()

	m := n.manager
	_, canMove := m.failoverTarget(n)
	var g errgroup.Group
	for _, p := range m.playersOn(n) {
		p := p
		g.Go(func() error {
			if m.opts.AutoMove && canMove {
				err := p.MoveNode(ctx, "")
				if err == nil {
					if n.reachable() {
						return n.DestroyPlayer(ctx, p.GuildID())
					}
					return nil
				}
				if n.logger != nil {
					n.logger.Warn("failed to move player off destroyed node", "guild", p.GuildID(), "error", err)
				}
			}
			return p.Destroy(ctx, true)
		})
	}
	if err := g.Wait(); err != nil && n.logger != nil {
		n.logger.Warn("player teardown failed", "error", err)
	}

	if n.reachable() {
		if err := n.UpdateSession(ctx, false, 0); err != nil && n.logger != nil {
			n.logger.Debug("failed to disable resuming", "error", err)
		}
	}
	if m.opts.AutoResume && m.opts.Store != nil {
		if err := m.opts.Store.Delete(ctx, sessionKey(n.options.Identifier)); err != nil && n.logger != nil {
			n.logger.Debug("failed to forget session", "error", err)
		}
	}
	n.closeSocket()
	n.cancel()
	if n.logger != nil {
		n.logger.Info("node destroyed")
	}
	n.manager.emit(NodeDestroyEvent{Node: n})
	m.removeNode(n)
	return nil
}

// shutdown closes the socket without touching players so the session can
// be resumed by the next process.
func (n *Node) shutdown() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	n.stopTimersLocked()
	n.mu.Unlock()
	n.closeSocket()
	n.cancel()
}

func (n *Node) stopTimersLocked() {
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
		n.reconnectTimer = nil
	}
	if n.healthCancel != nil {
		n.healthCancel()
		n.healthCancel = nil
	}
}

func (n *Node) closeSocket() {
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.connected = false
	n.mu.Unlock()
	if conn == nil {
		return
	}

	n.writeMu.Lock()
	msg := websocket.FormatCloseMessage(closeDestroyCode, closeDestroyReason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	n.writeMu.Unlock()
	_ = conn.Close()
}

// forceClose drops the socket so the read loop runs the reconnect path.
func (n *Node) forceClose() {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

var _ selector.Candidate = (*Node)(nil)
