package lavalink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// VoiceServerUpdate is the gateway VOICE_SERVER_UPDATE payload.
type VoiceServerUpdate struct {
	Token    string       `json:"token"`
	GuildID  snowflake.ID `json:"guild_id"`
	Endpoint string       `json:"endpoint"`
}

// VoiceStateUpdate is the gateway VOICE_STATE_UPDATE payload. A nil
// ChannelID means the user left voice.
type VoiceStateUpdate struct {
	GuildID   snowflake.ID  `json:"guild_id"`
	ChannelID *snowflake.ID `json:"channel_id"`
	UserID    snowflake.ID  `json:"user_id"`
	SessionID string        `json:"session_id"`
}

// UpdateVoiceState ingests a raw gateway packet, either a full dispatch
// envelope or its bare data object. Other packets are ignored.
func (m *Manager) UpdateVoiceState(ctx context.Context, raw []byte) error {
	var envelope struct {
		T *string         `json:"t"`
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return invalidArgument("voice packet: %v", err)
	}
	data := json.RawMessage(raw)
	if envelope.T != nil {
		switch *envelope.T {
		case "VOICE_SERVER_UPDATE", "VOICE_STATE_UPDATE":
		default:
			return nil
		}
		data = envelope.D
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return invalidArgument("voice packet data: %v", err)
	}
	if _, ok := keys["token"]; ok {
		var update VoiceServerUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return invalidArgument("voice server update: %v", err)
		}
		return m.HandleVoiceServerUpdate(ctx, update)
	}
	if _, ok := keys["session_id"]; ok {
		var update VoiceStateUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return invalidArgument("voice state update: %v", err)
		}
		return m.HandleVoiceStateUpdate(ctx, update)
	}
	return nil
}

// HandleVoiceServerUpdate stores the voice token and endpoint and forwards
// the voice state once it is complete.
func (m *Manager) HandleVoiceServerUpdate(ctx context.Context, update VoiceServerUpdate) error {
	p := m.Get(update.GuildID)
	if p == nil {
		return nil
	}
	voice := p.setVoiceServer(update.Token, update.Endpoint)
	return p.pushVoice(ctx, voice)
}

// HandleVoiceStateUpdate tracks the bot's own voice state: channel moves,
// disconnects and the voice session id.
func (m *Manager) HandleVoiceStateUpdate(ctx context.Context, update VoiceStateUpdate) error {
	if update.UserID != m.ClientID() {
		return nil
	}
	p := m.Get(update.GuildID)
	if p == nil {
		return nil
	}

	if update.ChannelID == nil {
		p.mu.Lock()
		old := p.voiceChannelID
		p.voiceChannelID = 0
		p.voice = voiceSession{}
		p.mu.Unlock()
		m.emit(PlayerDisconnectEvent{Player: p, OldChannel: old})
		return p.Destroy(ctx, false)
	}

	p.mu.Lock()
	old := p.voiceChannelID
	moved := old != *update.ChannelID
	p.voiceChannelID = *update.ChannelID
	p.mu.Unlock()
	if moved {
		m.emit(PlayerMoveEvent{Player: p, OldChannel: old, NewChannel: *update.ChannelID})
		p.save()
	}

	voice, changed := p.setVoiceSession(update.SessionID)
	if !changed {
		return nil
	}
	return p.pushVoice(ctx, voice)
}

func (p *Player) setVoiceServer(token, endpoint string) protocol.VoiceState {
	p.mu.Lock()
	p.voice.token = token
	p.voice.endpoint = endpoint
	p.mu.Unlock()
	return p.voiceState()
}

func (p *Player) setVoiceSession(sessionID string) (protocol.VoiceState, bool) {
	p.mu.Lock()
	changed := p.voice.sessionID != sessionID
	p.voice.sessionID = sessionID
	p.mu.Unlock()
	return p.voiceState(), changed
}

// pushVoice sends a complete voice state to the player's node. Without a
// node session it waits for the ready resync.
func (p *Player) pushVoice(ctx context.Context, voice protocol.VoiceState) error {
	if !voice.Complete() {
		return nil
	}
	node := p.Node()
	if node == nil || !node.reachable() {
		return nil
	}
	if err := p.update(ctx, "voice", protocol.UpdatePlayer{Voice: &voice}); err != nil {
		return fmt.Errorf("forward voice state: %w", err)
	}
	return nil
}
