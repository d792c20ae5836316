package lavalink

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/codec"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/require"
)

const (
	testClientID snowflake.ID = 1085547421129465887
	testGuildID  snowflake.ID = 400000000000000001
	testVoiceID  snowflake.ID = 400000000000000002
	testTextID   snowflake.ID = 400000000000000003
)

type restCall struct {
	Method string
	Path   string
	Body   any
}

// fakeRequester records every call and answers through handle.
type fakeRequester struct {
	mu     sync.Mutex
	calls  []restCall
	handle func(method, path string, body any) (any, error)
	// handleContext wins over handle and also sees the call context.
	handleContext func(ctx context.Context, method, path string, body any) (any, error)
}

func (f *fakeRequester) Do(ctx context.Context, method, path string, body, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, restCall{Method: method, Path: path, Body: body})
	handle, handleContext := f.handle, f.handleContext
	f.mu.Unlock()

	if handleContext != nil {
		handle = func(method, path string, body any) (any, error) {
			return handleContext(ctx, method, path, body)
		}
	}
	if handle == nil {
		return nil
	}
	resp, err := handle(method, path, body)
	if err != nil || resp == nil || out == nil {
		return err
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeRequester) Calls() []restCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]restCall(nil), f.calls...)
}

// playerPatches returns the bodies of player PATCH calls in order.
func (f *fakeRequester) playerPatches() []protocol.UpdatePlayer {
	var out []protocol.UpdatePlayer
	for _, c := range f.Calls() {
		if c.Method == http.MethodPatch && strings.Contains(c.Path, "/players/") {
			out = append(out, c.Body.(protocol.UpdatePlayer))
		}
	}
	return out
}

func (f *fakeRequester) count(method, pathPrefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) All() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func eventsOf[E Event](r *eventRecorder) []E {
	var out []E
	for _, e := range r.All() {
		if v, ok := e.(E); ok {
			out = append(out, v)
		}
	}
	return out
}

type testEnv struct {
	manager *Manager
	rest    map[string]*fakeRequester
	events  *eventRecorder

	sendMu sync.Mutex
	sent   []VoiceUpdate
}

func (e *testEnv) Sent() []VoiceUpdate {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	return append([]VoiceUpdate(nil), e.sent...)
}

// newTestEnv builds a manager whose nodes are live, have a session and
// talk to fake requesters.
func newTestEnv(t *testing.T, mutate func(*Options), nodeIDs ...string) *testEnv {
	t.Helper()
	if len(nodeIDs) == 0 {
		nodeIDs = []string{"main"}
	}
	env := &testEnv{rest: make(map[string]*fakeRequester), events: &eventRecorder{}}
	opts := Options{
		ClientID:    testClientID,
		AutoPlay:    true,
		RandomIndex: func(int) int { return 0 },
		NewRequester: func(o NodeOptions) Requester {
			r := &fakeRequester{}
			env.rest[o.Identifier] = r
			return r
		},
		Send: func(_ context.Context, _ snowflake.ID, payload VoiceUpdate) error {
			env.sendMu.Lock()
			env.sent = append(env.sent, payload)
			env.sendMu.Unlock()
			return nil
		},
	}
	for _, id := range nodeIDs {
		opts.Nodes = append(opts.Nodes, NodeOptions{Identifier: id, Host: id + ".local"})
	}
	if mutate != nil {
		mutate(&opts)
	}
	env.manager = New(opts)
	env.manager.AddListener(env.events.listen)
	for _, n := range env.manager.Nodes() {
		n.mu.Lock()
		n.connected = true
		n.sessionID = "session-" + n.Identifier()
		n.mu.Unlock()
	}
	t.Cleanup(func() { _ = env.manager.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) player(t *testing.T) *Player {
	t.Helper()
	p, err := e.manager.Create(PlayerOptions{GuildID: testGuildID, VoiceChannelID: testVoiceID, TextChannelID: testTextID})
	require.NoError(t, err)
	return p
}

func trackData(t *testing.T, id string, length int64) protocol.TrackData {
	t.Helper()
	uri := "https://www.youtube.com/watch?v=" + id
	info := protocol.TrackInfo{
		Identifier: id,
		IsSeekable: true,
		Author:     "Artist " + id,
		Length:     length,
		Title:      "Song " + id,
		URI:        &uri,
		SourceName: "youtube",
	}
	encoded, err := codec.Encode(info, 3)
	require.NoError(t, err)
	return protocol.TrackData{Encoded: encoded, Info: info}
}

func testTrack(t *testing.T, id string) *Track {
	t.Helper()
	return NewTrack(trackData(t, id, 180000), nil)
}

func trackEnd(t *Track, reason protocol.TrackEndReason) *protocol.EventOp {
	ev := &protocol.EventOp{GuildID: testGuildID, Type: protocol.EventTrackEnd, Reason: string(reason)}
	if t != nil {
		data := protocol.TrackData{Encoded: t.Encoded, Info: protocol.TrackInfo{Identifier: t.Identifier, Title: t.Title}}
		ev.Track = &data
	}
	return ev
}

func playedEncoded(u protocol.UpdatePlayer) string {
	if u.Track == nil || u.Track.Encoded == nil {
		return ""
	}
	return *u.Track.Encoded
}
