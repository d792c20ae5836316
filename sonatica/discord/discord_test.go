package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/lavalink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinCall struct {
	guild, channel string
	mute, deaf     bool
}

type fakeGateway struct {
	calls []joinCall
	err   error
}

func (f *fakeGateway) ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error {
	f.calls = append(f.calls, joinCall{gID, cID, mute, deaf})
	return f.err
}

func TestSendFunc(t *testing.T) {
	gw := &fakeGateway{}
	send := SendFunc(gw)
	channel := snowflake.ID(222)

	require.NoError(t, send(context.Background(), 111, lavalink.VoiceUpdate{
		Op: 4,
		D:  lavalink.VoiceUpdateData{GuildID: 111, ChannelID: &channel, SelfDeaf: true},
	}))
	require.NoError(t, send(context.Background(), 111, lavalink.VoiceUpdate{Op: 4, D: lavalink.VoiceUpdateData{GuildID: 111}}))

	assert.Equal(t, []joinCall{
		{guild: "111", channel: "222", deaf: true},
		{guild: "111", channel: ""},
	}, gw.calls)

	gw.err = errors.New("closed")
	assert.Error(t, send(context.Background(), 111, lavalink.VoiceUpdate{}))
}

func TestServerUpdate(t *testing.T) {
	got, err := ServerUpdate(&discordgo.VoiceServerUpdate{Token: "tok", GuildID: "123", Endpoint: "us.discord.media"})
	require.NoError(t, err)
	assert.Equal(t, lavalink.VoiceServerUpdate{Token: "tok", GuildID: 123, Endpoint: "us.discord.media"}, got)

	_, err = ServerUpdate(&discordgo.VoiceServerUpdate{GuildID: "abc"})
	assert.Error(t, err)
}

func TestStateUpdate(t *testing.T) {
	got, err := StateUpdate(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
		GuildID: "1", ChannelID: "2", UserID: "3", SessionID: "sess",
	}})
	require.NoError(t, err)
	require.NotNil(t, got.ChannelID)
	assert.Equal(t, snowflake.ID(2), *got.ChannelID)
	assert.Equal(t, snowflake.ID(3), got.UserID)
	assert.Equal(t, "sess", got.SessionID)

	left, err := StateUpdate(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "3"}})
	require.NoError(t, err)
	assert.Nil(t, left.ChannelID)

	_, err = StateUpdate(&discordgo.VoiceStateUpdate{})
	assert.Error(t, err)
	_, err = StateUpdate(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "1", UserID: "x"}})
	assert.Error(t, err)
}

func TestAttachRegistersHandlers(t *testing.T) {
	s, err := discordgo.New("Bot token")
	require.NoError(t, err)
	m := lavalink.New(lavalink.Options{})
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	remove := Attach(context.Background(), s, m, nil)
	require.NotNil(t, remove)
	remove()
}
