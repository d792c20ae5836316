package lavalink

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

func (n *Node) requireSession() (string, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return "", notReady("node %s has no session", n.options.Identifier)
	}
	return sessionID, nil
}

func playerPath(sessionID string, guildID snowflake.ID) string {
	return "/sessions/" + sessionID + "/players/" + guildID.String()
}

// FetchInfo loads the node's version, sources and plugins.
func (n *Node) FetchInfo(ctx context.Context) (*protocol.Info, error) {
	var info protocol.Info
	if err := n.rest.Do(ctx, http.MethodGet, "/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FetchStats loads the node telemetry over REST.
func (n *Node) FetchStats(ctx context.Context) (*protocol.Stats, error) {
	var stats protocol.Stats
	if err := n.rest.Do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// UpdateSession configures resuming for the current session.
func (n *Node) UpdateSession(ctx context.Context, resuming bool, timeout time.Duration) error {
	sessionID, err := n.requireSession()
	if err != nil {
		return err
	}
	body := protocol.SessionUpdate{Resuming: resuming, Timeout: int(timeout / time.Second)}
	return n.rest.Do(ctx, http.MethodPatch, "/sessions/"+sessionID, body, nil)
}

// FetchPlayers lists the players the node holds for this session.
func (n *Node) FetchPlayers(ctx context.Context) ([]protocol.RestPlayer, error) {
	sessionID, err := n.requireSession()
	if err != nil {
		return nil, err
	}
	var players []protocol.RestPlayer
	if err := n.rest.Do(ctx, http.MethodGet, "/sessions/"+sessionID+"/players", nil, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// FetchPlayer loads one player from the node.
func (n *Node) FetchPlayer(ctx context.Context, guildID snowflake.ID) (*protocol.RestPlayer, error) {
	sessionID, err := n.requireSession()
	if err != nil {
		return nil, err
	}
	var player protocol.RestPlayer
	if err := n.rest.Do(ctx, http.MethodGet, playerPath(sessionID, guildID), nil, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

// UpdatePlayer patches a player, replacing the playing track if one is set.
func (n *Node) UpdatePlayer(ctx context.Context, guildID snowflake.ID, update protocol.UpdatePlayer) error {
	sessionID, err := n.requireSession()
	if err != nil {
		return err
	}
	return n.rest.Do(ctx, http.MethodPatch, playerPath(sessionID, guildID)+"?noReplace=false", update, nil)
}

// DestroyPlayer removes a player from the node.
func (n *Node) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	sessionID, err := n.requireSession()
	if err != nil {
		return err
	}
	return n.rest.Do(ctx, http.MethodDelete, playerPath(sessionID, guildID), nil, nil)
}

// LoadTracks resolves an identifier, a URL or a "prefix:query" search.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResult, error) {
	var result protocol.LoadResult
	if err := n.rest.Do(ctx, http.MethodGet, "/loadtracks?identifier="+url.QueryEscape(identifier), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DecodeTracks asks the node to decode identifiers.
func (n *Node) DecodeTracks(ctx context.Context, encoded []string) ([]protocol.TrackData, error) {
	var tracks []protocol.TrackData
	if err := n.rest.Do(ctx, http.MethodPost, "/decodetracks", encoded, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

func lyricsPath(sessionID string, guildID snowflake.ID, skipTrackSource bool) string {
	return playerPath(sessionID, guildID) + "/track/lyrics?skipTrackSource=" + strconv.FormatBool(skipTrackSource)
}

func lyricsSubscribePath(sessionID string, guildID snowflake.ID) string {
	return playerPath(sessionID, guildID) + "/lyrics/subscribe"
}
