package lavalink

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedIdentifier(t *testing.T, path string) string {
	t.Helper()
	u, err := url.Parse(path)
	require.NoError(t, err)
	return u.Query().Get("identifier")
}

func TestSearchIdentifier(t *testing.T) {
	cases := []struct {
		query SearchQuery
		want  string
	}{
		{SearchQuery{Query: "never gonna give you up"}, "ytmsearch:never gonna give you up"},
		{SearchQuery{Query: "  lofi  ", Source: "SoundCloud"}, "scsearch:lofi"},
		{SearchQuery{Query: "isrc", Source: "deezer"}, "dzsearch:isrc"},
		{SearchQuery{Query: "raw", Source: "ytsearch"}, "ytsearch:raw"},
		{SearchQuery{Query: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Source: "spotify"}, "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{SearchQuery{Query: "open.spotify.com/track/abc"}, "open.spotify.com/track/abc"},
	}
	for _, tc := range cases {
		got, err := tc.query.identifier(DefaultSearchPlatform)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := SearchQuery{Query: "   "}.identifier(DefaultSearchPlatform)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSearchCachesAndCopiesPerRequester(t *testing.T) {
	env := newTestEnv(t, nil)
	var loads atomic.Int32
	a, b := trackData(t, "a", 1000), trackData(t, "b", 2000)
	env.rest["main"].handle = func(_, path string, _ any) (any, error) {
		loads.Add(1)
		assert.Equal(t, "ytsearch:daft punk", loadedIdentifier(t, path))
		return protocol.LoadResult{LoadType: protocol.LoadSearch, Tracks: []protocol.TrackData{a, b}}, nil
	}
	ctx := context.Background()
	query := SearchQuery{Query: "daft punk", Source: "youtube"}

	first, err := env.manager.Search(ctx, query, "alice")
	require.NoError(t, err)
	second, err := env.manager.Search(ctx, query, "bob")
	require.NoError(t, err)

	assert.Equal(t, int32(1), loads.Load())
	require.Len(t, first.Tracks, 2)
	require.Len(t, second.Tracks, 2)
	assert.Equal(t, "alice", first.Tracks[0].Requester)
	assert.Equal(t, "bob", second.Tracks[0].Requester)
	assert.Equal(t, first.Tracks[1].Encoded, second.Tracks[1].Encoded)

	first.Tracks[0].Title = "changed"
	third, err := env.manager.Search(ctx, query, nil)
	require.NoError(t, err)
	assert.Equal(t, "Song a", third.Tracks[0].Title)
	assert.Nil(t, third.Tracks[0].Requester)
	assert.Equal(t, 1, env.manager.CacheStats().Size)
}

func TestSearchDoesNotCacheEmptyResults(t *testing.T) {
	env := newTestEnv(t, nil)
	var loads atomic.Int32
	env.rest["main"].handle = func(_, _ string, _ any) (any, error) {
		loads.Add(1)
		return protocol.LoadResult{LoadType: protocol.LoadEmpty}, nil
	}
	ctx := context.Background()

	for range 2 {
		res, err := env.manager.Search(ctx, SearchQuery{Query: "nothing"}, nil)
		require.NoError(t, err)
		assert.Equal(t, protocol.LoadEmpty, res.LoadType)
		assert.Empty(t, res.Tracks)
	}
	assert.Equal(t, int32(2), loads.Load())
}

func TestSearchPlaylist(t *testing.T) {
	env := newTestEnv(t, nil)
	a, b := trackData(t, "a", 1000), trackData(t, "b", 2500)
	env.rest["main"].handle = func(_, _ string, _ any) (any, error) {
		return protocol.LoadResult{
			LoadType: protocol.LoadPlaylist,
			Playlist: &protocol.PlaylistData{
				Info:       protocol.PlaylistInfo{Name: "Mix", SelectedTrack: 1},
				PluginInfo: map[string]any{"url": "https://example.com/mix"},
				Tracks:     []protocol.TrackData{a, b},
			},
		}, nil
	}

	res, err := env.manager.Search(context.Background(), SearchQuery{Query: "https://example.com/mix"}, "req")
	require.NoError(t, err)
	require.NotNil(t, res.Playlist)
	assert.Equal(t, "Mix", res.Playlist.Name)
	assert.Equal(t, int64(3500), res.Playlist.Duration)
	assert.Equal(t, "https://example.com/mix", res.Playlist.URL)
	assert.Equal(t, 1, res.Playlist.SelectedTrack)
	require.Len(t, res.Playlist.Tracks, 2)
	assert.Equal(t, res.Tracks, res.Playlist.Tracks)
	assert.Equal(t, "req", res.Playlist.Tracks[1].Requester)
}

func TestSearchNeedsSearchNode(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Nodes[0].DisableSearch = true
	})
	_, err := env.manager.Search(context.Background(), SearchQuery{Query: "x"}, nil)
	assert.ErrorIs(t, err, ErrNoNodesAvailable)
}

func TestSearchPropagatesTransportErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.rest["main"].handle = func(_, _ string, _ any) (any, error) {
		return nil, ErrTransport
	}
	_, err := env.manager.Search(context.Background(), SearchQuery{Query: "x"}, nil)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, strings.Contains(err.Error(), "ytmsearch:x"))
}

func TestSearchSurvivesFirstCallerCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	a := trackData(t, "a", 1000)
	var loads atomic.Int32
	release := make(chan struct{})
	loadErr := make(chan error, 4)
	env.rest["main"].handleContext = func(ctx context.Context, _, _ string, _ any) (any, error) {
		loads.Add(1)
		<-release
		loadErr <- ctx.Err()
		return protocol.LoadResult{LoadType: protocol.LoadSearch, Tracks: []protocol.TrackData{a}}, nil
	}
	query := SearchQuery{Query: "daft punk"}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := env.manager.Search(firstCtx, query, "alice")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	second := make(chan *SearchResult, 1)
	go func() {
		res, err := env.manager.Search(context.Background(), query, "bob")
		assert.NoError(t, err)
		second <- res
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case res := <-second:
		require.NotNil(t, res)
		require.Len(t, res.Tracks, 1)
		assert.Equal(t, "bob", res.Tracks[0].Requester)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.NoError(t, <-loadErr, "the shared load keeps its context")
}
