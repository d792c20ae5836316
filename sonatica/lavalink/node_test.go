package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLavalink serves /v4/info and a WebSocket whose per connection
// behavior is given by session.
type fakeLavalink struct {
	srv         *httptest.Server
	connections atomic.Int32
	headers     atomic.Value
	session     func(n int32, conn *websocket.Conn)
	reject      atomic.Bool
}

func newFakeLavalink(t *testing.T, session func(n int32, conn *websocket.Conn)) *fakeLavalink {
	t.Helper()
	f := &fakeLavalink{session: session}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(protocol.Info{SourceManagers: []string{"youtube"}})
	})
	mux.HandleFunc("/v4/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"down"}`))
	})
	mux.HandleFunc("/v4/websocket", func(w http.ResponseWriter, r *http.Request) {
		if f.reject.Load() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		f.headers.Store(r.Header.Clone())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		f.session(f.connections.Add(1), conn)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLavalink) nodeOptions(t *testing.T) NodeOptions {
	t.Helper()
	u, err := url.Parse(f.srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NodeOptions{
		Identifier:     "fake",
		Host:           u.Hostname(),
		Port:           port,
		Password:       "pw",
		RetryDelay:     20 * time.Millisecond,
		RequestTimeout: time.Second,
	}
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	if err := conn.WriteJSON(v); err != nil {
		t.Logf("write: %v", err)
	}
}

func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func newLiveManager(t *testing.T, nodes ...NodeOptions) (*Manager, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	m := New(Options{Nodes: nodes, AutoPlay: true})
	m.AddListener(rec.listen)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, rec
}

func TestNodeConnectLifecycle(t *testing.T) {
	fake := newFakeLavalink(t, func(_ int32, conn *websocket.Conn) {
		sendJSON(t, conn, map[string]any{"op": "ready", "resumed": false, "sessionId": "abc"})
		sendJSON(t, conn, map[string]any{"op": "stats", "players": 3, "playingPlayers": 1, "cpu": map[string]any{"cores": 4, "lavalinkLoad": 0.2}})
		holdOpen(conn)
	})
	m, rec := newLiveManager(t, fake.nodeOptions(t))

	require.NoError(t, m.Init(context.Background(), testClientID))
	node, ok := m.Node("fake")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return node.SessionID() == "abc" && node.Stats() != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, node.Connected())
	assert.Equal(t, 1, node.Stats().PlayingPlayers)
	require.NotNil(t, node.Info())
	assert.Equal(t, []string{"youtube"}, node.Info().SourceManagers)

	headers := fake.headers.Load().(http.Header)
	assert.Equal(t, "pw", headers.Get("Authorization"))
	assert.Equal(t, testClientID.String(), headers.Get("User-Id"))
	assert.Equal(t, DefaultClientName, headers.Get("Client-Name"))
	assert.Empty(t, headers.Get("Session-Id"))

	assert.Len(t, eventsOf[NodeConnectEvent](rec), 1)
	ready := eventsOf[NodeReadyEvent](rec)
	require.Len(t, ready, 1)
	assert.Equal(t, "abc", ready[0].SessionID)
	assert.NotEmpty(t, eventsOf[NodeRawEvent](rec))

	require.NoError(t, node.Destroy(context.Background()))
	assert.False(t, node.Connected())
	assert.Len(t, eventsOf[NodeDestroyEvent](rec), 1)
	assert.Empty(t, eventsOf[NodeReconnectEvent](rec))
}

func TestNodeReconnectsAfterClose(t *testing.T) {
	fake := newFakeLavalink(t, func(n int32, conn *websocket.Conn) {
		sendJSON(t, conn, map[string]any{"op": "ready", "resumed": false, "sessionId": "s" + strconv.Itoa(int(n))})
		if n == 1 {
			msg := websocket.FormatCloseMessage(4001, "bye")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
		holdOpen(conn)
	})
	m, rec := newLiveManager(t, fake.nodeOptions(t))
	require.NoError(t, m.Init(context.Background(), testClientID))
	node, _ := m.Node("fake")

	require.Eventually(t, func() bool {
		return node.SessionID() == "s2" && node.Connected()
	}, 2*time.Second, 10*time.Millisecond)

	disconnects := eventsOf[NodeDisconnectEvent](rec)
	require.NotEmpty(t, disconnects)
	assert.Equal(t, 4001, disconnects[0].Code)
	assert.Equal(t, "bye", disconnects[0].Reason)

	reconnects := eventsOf[NodeReconnectEvent](rec)
	require.Len(t, reconnects, 1)
	assert.Equal(t, 1, reconnects[0].Attempt)
	assert.Len(t, eventsOf[NodeConnectEvent](rec), 2)
}

func TestNodeGivesUpAfterRetryAmount(t *testing.T) {
	fake := newFakeLavalink(t, func(int32, *websocket.Conn) {})
	fake.reject.Store(true)
	opts := fake.nodeOptions(t)
	opts.RetryAmount = 1
	m, rec := newLiveManager(t, opts)

	require.NoError(t, m.Init(context.Background(), testClientID))

	require.Eventually(t, func() bool {
		return len(eventsOf[NodeDestroyEvent](rec)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	errs := eventsOf[NodeErrorEvent](rec)
	require.GreaterOrEqual(t, len(errs), 2)
	assert.True(t, errs[len(errs)-1].Fatal)
	assert.Len(t, eventsOf[NodeReconnectEvent](rec), 1)
	_, ok := m.Node("fake")
	assert.False(t, ok)
}

func TestNodeHealthCheckForcesReconnect(t *testing.T) {
	fake := newFakeLavalink(t, func(n int32, conn *websocket.Conn) {
		sendJSON(t, conn, map[string]any{"op": "ready", "resumed": false, "sessionId": "h" + strconv.Itoa(int(n))})
		holdOpen(conn)
	})
	opts := fake.nodeOptions(t)
	opts.HealthCheckInterval = 20 * time.Millisecond
	opts.HealthCheckThreshold = 2
	m, rec := newLiveManager(t, opts)
	require.NoError(t, m.Init(context.Background(), testClientID))

	require.Eventually(t, func() bool {
		return fake.connections.Load() >= 2
	}, 5*time.Second, 20*time.Millisecond)

	var healthErr *NodeErrorEvent
	for _, e := range eventsOf[NodeErrorEvent](rec) {
		var nodeErr *NodeError
		if errors.As(e.Err, &nodeErr) && nodeErr.Op == "health check" {
			e := e
			healthErr = &e
			break
		}
	}
	require.NotNil(t, healthErr)
	assert.False(t, healthErr.Fatal)
	assert.NotEmpty(t, eventsOf[NodeDisconnectEvent](rec))
}

func TestNodeHandOffOnDisconnect(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.AutoMove = true
		o.MoveGracePeriod = time.Hour
	}, "a", "b")
	p, err := env.manager.Create(PlayerOptions{GuildID: testGuildID, Node: "a"})
	require.NoError(t, err)
	a, _ := env.manager.Node("a")

	a.handOffPlayers()

	require.Eventually(t, func() bool {
		return p.Node().Identifier() == "b"
	}, time.Second, 5*time.Millisecond)
}

func TestNodeHandOffWithoutTargetStopsPlayback(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AutoMove = true })
	p := env.player(t)
	p.setPlaying(true)
	node, _ := env.manager.Node("main")

	node.handOffPlayers()
	assert.False(t, p.Playing())
}

func TestNodeMessagesUpdatePlayers(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.player(t)
	node, _ := env.manager.Node("main")

	node.handleMessage([]byte(`{"op":"playerUpdate","guildId":"` + testGuildID.String() + `","state":{"time":1,"position":5000,"connected":true,"ping":12}}`))
	node.handleMessage([]byte(`not json`))
	node.handleMessage([]byte(`{"op":"stats","players":1,"playingPlayers":1}`))

	assert.Equal(t, int64(5000), p.Position())
	updates := eventsOf[PlayerUpdateEvent](env.events)
	require.Len(t, updates, 1)
	assert.Equal(t, 12, updates[0].State.Ping)
	require.NotNil(t, node.Stats())
	assert.Equal(t, 1, node.Stats().Players)
}
