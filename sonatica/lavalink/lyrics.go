package lavalink

import (
	"context"
	"net/http"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

const lyricsPlugin = "lavalyrics-plugin"

func (p *Player) lyricsNode() (*Node, string, error) {
	if err := p.checkAlive(); err != nil {
		return nil, "", err
	}
	node := p.Node()
	if !node.Info().HasPlugin(lyricsPlugin) {
		return nil, "", p.wrap("lyrics", ErrPluginMissing)
	}
	sessionID, err := node.requireSession()
	if err != nil {
		return nil, "", p.wrap("lyrics", err)
	}
	return node, sessionID, nil
}

// Lyrics fetches lyrics for the playing track. It returns nil without error
// when the node found none.
func (p *Player) Lyrics(ctx context.Context, skipTrackSource bool) (*protocol.LyricsResult, error) {
	node, sessionID, err := p.lyricsNode()
	if err != nil {
		return nil, err
	}
	var result *protocol.LyricsResult
	if err := node.rest.Do(ctx, http.MethodGet, lyricsPath(sessionID, p.guildID, skipTrackSource), nil, &result); err != nil {
		return nil, p.wrap("lyrics", err)
	}
	return result, nil
}

// SubscribeLyrics asks the node to stream lyrics events for this player.
func (p *Player) SubscribeLyrics(ctx context.Context, skipTrackSource bool) error {
	node, sessionID, err := p.lyricsNode()
	if err != nil {
		return err
	}
	path := lyricsSubscribePath(sessionID, p.guildID)
	if skipTrackSource {
		path += "?skipTrackSource=true"
	}
	return p.wrap("subscribe lyrics", node.rest.Do(ctx, http.MethodPost, path, nil, nil))
}

func (p *Player) UnsubscribeLyrics(ctx context.Context) error {
	node, sessionID, err := p.lyricsNode()
	if err != nil {
		return err
	}
	return p.wrap("unsubscribe lyrics", node.rest.Do(ctx, http.MethodDelete, lyricsSubscribePath(sessionID, p.guildID), nil, nil))
}
