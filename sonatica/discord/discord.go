// Package discord connects a discordgo session to a lavalink.Manager: it
// sends voice join payloads and feeds voice updates back to the manager.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/lavalink"
)

// Gateway is the part of *discordgo.Session used to join voice.
type Gateway interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
}

// SendFunc sends voice payloads through the session's gateway connection.
// A nil channel leaves voice.
func SendFunc(gw Gateway) lavalink.SendFunc {
	return func(_ context.Context, guildID snowflake.ID, payload lavalink.VoiceUpdate) error {
		channel := ""
		if payload.D.ChannelID != nil {
			channel = payload.D.ChannelID.String()
		}
		return gw.ChannelVoiceJoinManual(guildID.String(), channel, payload.D.SelfMute, payload.D.SelfDeaf)
	}
}

// ServerUpdate converts a gateway voice server update.
func ServerUpdate(e *discordgo.VoiceServerUpdate) (lavalink.VoiceServerUpdate, error) {
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		return lavalink.VoiceServerUpdate{}, fmt.Errorf("parse guild id: %w", err)
	}
	return lavalink.VoiceServerUpdate{Token: e.Token, GuildID: guildID, Endpoint: e.Endpoint}, nil
}

// StateUpdate converts a gateway voice state update. An empty channel
// becomes a nil ChannelID.
func StateUpdate(e *discordgo.VoiceStateUpdate) (lavalink.VoiceStateUpdate, error) {
	if e.VoiceState == nil {
		return lavalink.VoiceStateUpdate{}, fmt.Errorf("voice state update without state")
	}
	guildID, err := snowflake.Parse(e.GuildID)
	if err != nil {
		return lavalink.VoiceStateUpdate{}, fmt.Errorf("parse guild id: %w", err)
	}
	userID, err := snowflake.Parse(e.UserID)
	if err != nil {
		return lavalink.VoiceStateUpdate{}, fmt.Errorf("parse user id: %w", err)
	}
	update := lavalink.VoiceStateUpdate{GuildID: guildID, UserID: userID, SessionID: e.SessionID}
	if e.ChannelID != "" {
		channelID, err := snowflake.Parse(e.ChannelID)
		if err != nil {
			return lavalink.VoiceStateUpdate{}, fmt.Errorf("parse channel id: %w", err)
		}
		update.ChannelID = &channelID
	}
	return update, nil
}

// Attach registers gateway handlers on s. Ready initializes the manager
// with the bot user id. The returned func removes the handlers.
func Attach(ctx context.Context, s *discordgo.Session, m *lavalink.Manager, logger sonatica.Logger) func() {
	removers := []func(){
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) {
			onReady(ctx, m, e, logger)
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
			update, err := ServerUpdate(e)
			if err == nil {
				err = m.HandleVoiceServerUpdate(ctx, update)
			}
			logFailure(logger, "voice server update", err)
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
			update, err := StateUpdate(e)
			if err == nil {
				err = m.HandleVoiceStateUpdate(ctx, update)
			}
			logFailure(logger, "voice state update", err)
		}),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func onReady(ctx context.Context, m *lavalink.Manager, e *discordgo.Ready, logger sonatica.Logger) {
	if e.User == nil {
		logFailure(logger, "ready", fmt.Errorf("ready without user"))
		return
	}
	clientID, err := snowflake.Parse(e.User.ID)
	if err != nil {
		logFailure(logger, "ready", fmt.Errorf("parse user id: %w", err))
		return
	}
	if logger != nil {
		logger.Info("discord ready", "user", e.User.Username, "client_id", clientID)
	}
	logFailure(logger, "init manager", m.Init(ctx, clientID))
}

func logFailure(logger sonatica.Logger, op string, err error) {
	if err != nil && logger != nil {
		logger.Warn("discord handler failed", "op", op, "error", err)
	}
}
