package lavalink

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/liuran001/sonatica-go/sonatica/store"
)

const saveTimeout = 5 * time.Second

// Snapshot is the resumable state persisted per guild.
type Snapshot struct {
	Guild        snowflake.ID      `json:"guild"`
	VoiceChannel snowflake.ID      `json:"voiceChannel"`
	TextChannel  snowflake.ID      `json:"textChannel"`
	Volume       int               `json:"volume"`
	Data         map[string]any    `json:"data,omitempty"`
	SelfDeafen   bool              `json:"selfDeafen"`
	SelfMute     bool              `json:"selfMute"`
	RepeatMode   RepeatMode        `json:"repeatMode"`
	IsAutoplay   bool              `json:"isAutoplay"`
	Current      string            `json:"current,omitempty"`
	Queue        []string          `json:"queue"`
	Requester    any               `json:"requester,omitempty"`
	Filters      *protocol.Filters `json:"filters,omitempty"`
}

func sessionKey(identifier string) string {
	return store.SessionPrefix + identifier
}

func playerKey(guildID snowflake.ID) string {
	return store.PlayerPrefix + guildID.String()
}

// Snapshot captures the player's resumable state. Unresolved tracks have no
// identifier yet and are left out.
func (p *Player) Snapshot() Snapshot {
	current, upcoming := p.queue.snapshot()

	p.mu.Lock()
	snap := Snapshot{
		Guild:        p.guildID,
		VoiceChannel: p.voiceChannelID,
		TextChannel:  p.textChannelID,
		Volume:       p.volume,
		SelfDeafen:   p.selfDeaf,
		SelfMute:     p.selfMute,
		RepeatMode:   p.repeat,
		IsAutoplay:   p.autoplay,
		Queue:        make([]string, 0, len(upcoming)),
	}
	if len(p.data) > 0 {
		snap.Data = make(map[string]any, len(p.data))
		for k, v := range p.data {
			snap.Data[k] = v
		}
	}
	if !p.filters.Empty() {
		filters := p.filters.Clone()
		snap.Filters = &filters
	}
	p.mu.Unlock()

	if t := asTrack(current); t != nil {
		snap.Current = t.Encoded
		snap.Requester = t.Requester
	}
	for _, item := range upcoming {
		if t := asTrack(item); t != nil {
			snap.Queue = append(snap.Queue, t.Encoded)
		}
	}
	return snap
}

// Save persists the snapshot when auto resume is on and a store is set.
func (p *Player) Save(ctx context.Context) error {
	m := p.manager
	if !m.opts.AutoResume || m.opts.Store == nil {
		return nil
	}
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return nil
	}
	if err := m.opts.Store.Set(ctx, playerKey(p.guildID), p.Snapshot()); err != nil {
		return &PlayerError{Guild: p.guildID, Op: "save", Err: err}
	}
	return nil
}

func (p *Player) save() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := p.Save(ctx); err != nil && p.logger != nil {
		p.logger.Warn("failed to save player", "error", err)
	}
}
