package lavalink

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/liuran001/sonatica-go/sonatica/selector"
)

// SearchPlatforms maps platform names to Lavalink search prefixes.
var SearchPlatforms = map[string]string{
	"youtube":       "ytsearch",
	"youtube music": "ytmsearch",
	"soundcloud":    "scsearch",
	"deezer":        "dzsearch",
	"spotify":       "spsearch",
	"tidal":         "tdsearch",
	"apple music":   "amsearch",
}

var urlPattern = regexp.MustCompile(`^(https?://)?([a-zA-Z0-9\-]+\.)+[a-zA-Z]{2,}(/\S*)?$`)

// SearchQuery is a search request. Source is a platform name from
// SearchPlatforms or a raw prefix; empty uses the manager default.
type SearchQuery struct {
	Query  string
	Source string
}

// SearchResult is a load result converted to Tracks.
type SearchResult struct {
	LoadType protocol.LoadType
	// Tracks holds the results; for playlists it mirrors Playlist.Tracks.
	Tracks    []*Track
	Playlist  *Playlist
	Exception *protocol.Exception
}

// Playlist is a loaded playlist.
type Playlist struct {
	Name          string
	Tracks        []*Track
	Duration      int64
	URL           string
	SelectedTrack int
}

// identifier returns the loadtracks identifier for q.
func (q SearchQuery) identifier(defaultPlatform string) (string, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return "", invalidArgument("search query is empty")
	}
	if urlPattern.MatchString(query) {
		return query, nil
	}
	source := strings.ToLower(strings.TrimSpace(q.Source))
	if source == "" {
		source = defaultPlatform
	}
	prefix, ok := SearchPlatforms[source]
	if !ok {
		prefix = source
	}
	return prefix + ":" + query, nil
}

// Search loads tracks on a search enabled node. Identical queries share
// cached results, each tagged with the caller's requester.
func (m *Manager) Search(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error) {
	identifier, err := query.identifier(m.opts.DefaultSearchPlatform)
	if err != nil {
		return nil, err
	}
	if cached, ok := m.cache.Get(identifier); ok {
		return cached.withRequester(requester), nil
	}

	ch := m.searches.DoChan(identifier, func() (any, error) {
		node, ok := selector.First(m.Nodes(), m.opts.Sorter, func(n *Node) bool {
			return !n.options.DisableSearch
		})
		if !ok {
			return nil, ErrNoNodesAvailable
		}
		// Shared by every waiter, so one caller leaving must not cancel it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), node.options.RequestTimeout)
		defer cancel()
		loaded, err := node.LoadTracks(loadCtx, identifier)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", identifier, err)
		}
		result := newSearchResult(loaded)
		if result.LoadType != protocol.LoadError && len(result.Tracks) > 0 {
			m.cache.Set(identifier, result)
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SearchResult).withRequester(requester), nil
	}
}

func newSearchResult(loaded *protocol.LoadResult) *SearchResult {
	result := &SearchResult{LoadType: loaded.LoadType, Exception: loaded.Exception}
	switch loaded.LoadType {
	case protocol.LoadTrack, protocol.LoadSearch:
		result.Tracks = make([]*Track, 0, len(loaded.Tracks))
		for _, data := range loaded.Tracks {
			result.Tracks = append(result.Tracks, NewTrack(data, nil))
		}
	case protocol.LoadPlaylist:
		if loaded.Playlist == nil {
			break
		}
		playlist := &Playlist{
			Name:          loaded.Playlist.Info.Name,
			SelectedTrack: loaded.Playlist.Info.SelectedTrack,
			Tracks:        make([]*Track, 0, len(loaded.Playlist.Tracks)),
		}
		if url, ok := loaded.Playlist.PluginInfo["url"].(string); ok {
			playlist.URL = url
		}
		for _, data := range loaded.Playlist.Tracks {
			t := NewTrack(data, nil)
			playlist.Duration += t.Duration
			playlist.Tracks = append(playlist.Tracks, t)
		}
		result.Playlist = playlist
		result.Tracks = playlist.Tracks
	}
	return result
}

// withRequester deep copies r with every track tagged with requester.
func (r *SearchResult) withRequester(requester any) *SearchResult {
	out := &SearchResult{LoadType: r.LoadType, Exception: r.Exception}
	out.Tracks = make([]*Track, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		out.Tracks = append(out.Tracks, t.WithRequester(requester))
	}
	if r.Playlist != nil {
		playlist := *r.Playlist
		playlist.Tracks = out.Tracks
		out.Playlist = &playlist
	}
	return out
}
