package lavalink

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveNodeReplicatesState(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.MoveGracePeriod = 20 * time.Millisecond }, "a", "b")
	ctx := context.Background()
	p, err := env.manager.Create(PlayerOptions{GuildID: testGuildID, VoiceChannelID: testVoiceID, Node: "a", Volume: 60})
	require.NoError(t, err)
	track := testTrack(t, "x")
	require.NoError(t, p.Queue().Add(track))
	p.setVoiceServer("tok", "endpoint")
	p.setVoiceSession("voice")

	playing := trackData(t, "x", 180000)
	playing.Info.Position = 42000
	env.rest["a"].handle = func(method, _ string, _ any) (any, error) {
		if method == http.MethodGet {
			return protocol.RestPlayer{GuildID: testGuildID, Track: &playing}, nil
		}
		return nil, nil
	}

	require.NoError(t, p.MoveNode(ctx, ""))

	b, _ := env.manager.Node("b")
	assert.Same(t, b, p.Node())
	assert.Equal(t, StateMoving, p.State())
	assert.Equal(t, int64(42000), p.Position())

	patches := env.rest["b"].playerPatches()
	require.Len(t, patches, 1)
	assert.Equal(t, track.Encoded, playedEncoded(patches[0]))
	assert.Equal(t, int64(42000), *patches[0].Position)
	assert.Equal(t, 60, *patches[0].Volume)
	require.NotNil(t, patches[0].Voice)
	assert.Equal(t, "tok", patches[0].Voice.Token)

	moves := eventsOf[PlayerNodeMoveEvent](env.events)
	require.Len(t, moves, 1)
	assert.Equal(t, "a", moves[0].From)
	assert.Equal(t, "b", moves[0].To)

	require.Eventually(t, func() bool {
		return env.rest["a"].count(http.MethodDelete, "/sessions/session-a/players/") == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.State() == StateConnected }, time.Second, 5*time.Millisecond)
}

func TestMoveNodeFailureRestoresState(t *testing.T) {
	env := newTestEnv(t, nil, "a", "b")
	p, err := env.manager.Create(PlayerOptions{GuildID: testGuildID, Node: "a"})
	require.NoError(t, err)
	p.setState(StateConnected)
	env.rest["b"].handle = func(string, string, any) (any, error) { return nil, ErrTransport }

	err = p.MoveNode(context.Background(), "b")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, "a", p.Node().Identifier())
	assert.Equal(t, StateConnected, p.State())
	assert.Empty(t, eventsOf[PlayerNodeMoveEvent](env.events))
}

func TestMoveNodeTargets(t *testing.T) {
	env := newTestEnv(t, nil, "a", "b")
	ctx := context.Background()
	p, err := env.manager.Create(PlayerOptions{GuildID: testGuildID, Node: "a"})
	require.NoError(t, err)

	assert.ErrorIs(t, p.MoveNode(ctx, "nope"), ErrInvalidArgument)
	require.NoError(t, p.MoveNode(ctx, "a"))

	b, _ := env.manager.Node("b")
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	assert.ErrorIs(t, p.MoveNode(ctx, "b"), ErrNotReady)
	assert.ErrorIs(t, p.MoveNode(ctx, ""), ErrNoNodesAvailable)
}

func TestNodeDestroyMovesPlayers(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.AutoMove = true
		o.MoveGracePeriod = time.Hour
	}, "a", "b")
	ctx := context.Background()
	p, err := env.manager.Create(PlayerOptions{GuildID: testGuildID, Node: "a"})
	require.NoError(t, err)
	a, _ := env.manager.Node("a")

	require.NoError(t, a.Destroy(ctx))
	require.NoError(t, a.Destroy(ctx))

	assert.Equal(t, "b", p.Node().Identifier())
	assert.Same(t, p, env.manager.Get(testGuildID))
	_, ok := env.manager.Node("a")
	assert.False(t, ok)
	assert.True(t, a.Destroyed())

	assert.Equal(t, 1, env.rest["a"].count(http.MethodDelete, "/sessions/session-a/players/"))
	var sessionPatch *restCall
	for _, c := range env.rest["a"].Calls() {
		if c.Method == http.MethodPatch && c.Path == "/sessions/session-a" {
			c := c
			sessionPatch = &c
		}
	}
	require.NotNil(t, sessionPatch)
	assert.Equal(t, protocol.SessionUpdate{Resuming: false, Timeout: 0}, sessionPatch.Body)
	assert.Len(t, eventsOf[NodeDestroyEvent](env.events), 1)
}

func TestNodeDestroyWithoutFailoverDestroysPlayers(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AutoMove = true })
	p := env.player(t)
	node, _ := env.manager.Node("main")

	require.NoError(t, node.Destroy(context.Background()))

	assert.Nil(t, env.manager.Get(testGuildID))
	assert.ErrorIs(t, p.Play(context.Background()), ErrPlayerDestroyed)
	assert.Len(t, eventsOf[PlayerDestroyEvent](env.events), 1)
}
