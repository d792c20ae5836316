package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// LoadResult is the response of GET /loadtracks. Exactly one of Tracks,
// Playlist or Exception is set depending on LoadType.
type LoadResult struct {
	LoadType  LoadType
	Tracks    []TrackData
	Playlist  *PlaylistData
	Exception *Exception
}

func (r *LoadResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		LoadType LoadType        `json:"loadType"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = LoadResult{LoadType: raw.LoadType}
	switch raw.LoadType {
	case LoadTrack:
		var track TrackData
		if err := json.Unmarshal(raw.Data, &track); err != nil {
			return fmt.Errorf("decode track result: %w", err)
		}
		r.Tracks = []TrackData{track}
	case LoadSearch:
		if err := json.Unmarshal(raw.Data, &r.Tracks); err != nil {
			return fmt.Errorf("decode search result: %w", err)
		}
	case LoadPlaylist:
		var playlist PlaylistData
		if err := json.Unmarshal(raw.Data, &playlist); err != nil {
			return fmt.Errorf("decode playlist result: %w", err)
		}
		r.Playlist = &playlist
	case LoadError:
		var exception Exception
		if err := json.Unmarshal(raw.Data, &exception); err != nil {
			return fmt.Errorf("decode error result: %w", err)
		}
		r.Exception = &exception
	}
	return nil
}

func (r LoadResult) MarshalJSON() ([]byte, error) {
	var data any
	switch r.LoadType {
	case LoadTrack:
		if len(r.Tracks) > 0 {
			data = r.Tracks[0]
		}
	case LoadSearch:
		data = r.Tracks
	case LoadPlaylist:
		data = r.Playlist
	case LoadError:
		data = r.Exception
	}
	return json.Marshal(struct {
		LoadType LoadType `json:"loadType"`
		Data     any      `json:"data"`
	}{r.LoadType, data})
}

// VoiceState is the voice connection triple a node needs to join a call.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether all three parts are known.
func (v VoiceState) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

// RestPlayer is the node's representation of a player.
type RestPlayer struct {
	GuildID snowflake.ID `json:"guildId"`
	Track   *TrackData   `json:"track"`
	Volume  int          `json:"volume"`
	Paused  bool         `json:"paused"`
	State   PlayerState  `json:"state"`
	Voice   VoiceState   `json:"voice"`
	Filters Filters      `json:"filters"`
}

// UpdatePlayerTrack selects what the node should play. A nil Encoded stops
// the current track.
type UpdatePlayerTrack struct {
	Encoded  *string        `json:"encoded"`
	UserData map[string]any `json:"userData,omitempty"`
}

// UpdatePlayer is the PATCH body for a player. Nil fields are left unchanged
// on the node.
type UpdatePlayer struct {
	Track    *UpdatePlayerTrack `json:"track,omitempty"`
	Position *int64             `json:"position,omitempty"`
	EndTime  *int64             `json:"endTime,omitempty"`
	Volume   *int               `json:"volume,omitempty"`
	Paused   *bool              `json:"paused,omitempty"`
	Filters  *Filters           `json:"filters,omitempty"`
	Voice    *VoiceState        `json:"voice,omitempty"`
}

// SessionUpdate is the PATCH body for /sessions/{id}.
type SessionUpdate struct {
	Resuming bool `json:"resuming"`
	Timeout  int  `json:"timeout"`
}

// Info is returned by GET /info.
type Info struct {
	Version        Version  `json:"version"`
	BuildTime      int64    `json:"buildTime"`
	Git            Git      `json:"git"`
	JVM            string   `json:"jvm"`
	Lavaplayer     string   `json:"lavaplayer"`
	SourceManagers []string `json:"sourceManagers"`
	Filters        []string `json:"filters"`
	Plugins        []Plugin `json:"plugins"`
}

// HasPlugin reports whether a plugin with the given name is loaded.
func (i *Info) HasPlugin(name string) bool {
	if i == nil {
		return false
	}
	for _, plugin := range i.Plugins {
		if plugin.Name == name {
			return true
		}
	}
	return false
}

type Version struct {
	Semver     string `json:"semver"`
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	PreRelease string `json:"preRelease,omitempty"`
	Build      string `json:"build,omitempty"`
}

type Git struct {
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	CommitTime int64  `json:"commitTime"`
}

type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ErrorResponse is the body of a non-2xx REST response.
type ErrorResponse struct {
	Timestamp int64  `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Trace     string `json:"trace,omitempty"`
}

// LyricsLine is a single timed line.
type LyricsLine struct {
	Timestamp int64          `json:"timestamp"`
	Duration  *int64         `json:"duration"`
	Line      string         `json:"line"`
	Plugin    map[string]any `json:"plugin,omitempty"`
}

// LyricsResult is returned by the lyrics endpoints and LyricsFoundEvent.
type LyricsResult struct {
	SourceName string         `json:"sourceName"`
	Provider   string         `json:"provider"`
	Text       *string        `json:"text"`
	Lines      []LyricsLine   `json:"lines"`
	Plugin     map[string]any `json:"plugin,omitempty"`
}
