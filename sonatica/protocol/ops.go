// Package protocol holds the JSON shapes exchanged with a Lavalink v4 node.
package protocol

import (
	"github.com/disgoorg/snowflake/v2"
)

// Op discriminates inbound WebSocket messages.
type Op string

const (
	OpReady        Op = "ready"
	OpPlayerUpdate Op = "playerUpdate"
	OpStats        Op = "stats"
	OpEvent        Op = "event"
)

// Message is decoded first to route a frame by its op.
type Message struct {
	Op Op `json:"op"`
}

// ReadyOp is sent once per connection after the handshake.
type ReadyOp struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

// PlayerState is the node's view of a player's playback position.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

// PlayerUpdateOp carries periodic position updates for one guild.
type PlayerUpdateOp struct {
	GuildID snowflake.ID `json:"guildId"`
	State   PlayerState  `json:"state"`
}

// EventType names the player events a node emits.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
	EventLyricsFound     EventType = "LyricsFoundEvent"
	EventLyricsNotFound  EventType = "LyricsNotFoundEvent"
	EventLyricsLine      EventType = "LyricsLineEvent"
)

// TrackEndReason explains why a track stopped playing.
type TrackEndReason string

const (
	ReasonFinished   TrackEndReason = "finished"
	ReasonLoadFailed TrackEndReason = "loadFailed"
	ReasonStopped    TrackEndReason = "stopped"
	ReasonReplaced   TrackEndReason = "replaced"
	ReasonCleanup    TrackEndReason = "cleanup"
)

// EventOp is the flattened union of every "event" payload. Fields that do
// not apply to Type stay zero.
type EventOp struct {
	GuildID snowflake.ID `json:"guildId"`
	Type    EventType    `json:"type"`

	Track     *TrackData `json:"track,omitempty"`
	Exception *Exception `json:"exception,omitempty"`

	// Reason is the end reason for TrackEndEvent and the close reason for
	// WebSocketClosedEvent.
	Reason      string `json:"reason,omitempty"`
	ThresholdMs int64  `json:"thresholdMs,omitempty"`
	Code        int    `json:"code,omitempty"`
	ByRemote    bool   `json:"byRemote,omitempty"`

	Lyrics    *LyricsResult `json:"lyrics,omitempty"`
	LineIndex int           `json:"lineIndex,omitempty"`
	Line      *LyricsLine   `json:"line,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
}

// EndReason returns Reason typed for TrackEndEvent.
func (e *EventOp) EndReason() TrackEndReason {
	return TrackEndReason(e.Reason)
}

// Severity classifies a track exception.
type Severity string

const (
	SeverityCommon     Severity = "common"
	SeveritySuspicious Severity = "suspicious"
	SeverityFault      Severity = "fault"
)

// Exception describes a playback or load failure.
type Exception struct {
	Message  string   `json:"message,omitempty"`
	Severity Severity `json:"severity"`
	Cause    string   `json:"cause"`
}

// Stats is the node telemetry snapshot.
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         MemoryStats `json:"memory"`
	CPU            CPUStats    `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

type MemoryStats struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type CPUStats struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}
