package lavalink

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

func (n *Node) handleReady(ctx context.Context, ready protocol.ReadyOp) {
	n.mu.Lock()
	n.sessionID = ready.SessionID
	n.readyCount++
	reconnected := n.readyCount > 1
	n.mu.Unlock()

	if n.logger != nil {
		n.logger.Info("node ready", "session_id", ready.SessionID, "resumed", ready.Resumed)
	}
	n.manager.emit(NodeReadyEvent{Node: n, SessionID: ready.SessionID, Resumed: ready.Resumed})

	var resumed map[snowflake.ID]bool
	m := n.manager
	if m.opts.AutoResume && m.opts.Store != nil {
		resumed = n.resume(ctx)
	}
	if reconnected && !ready.Resumed {
		n.resync(ctx, resumed)
	}
}

// resume enables session resuming and rebuilds players the node still holds
// from their persisted snapshots. One guild failing does not stop the rest.
func (n *Node) resume(ctx context.Context) map[snowflake.ID]bool {
	m := n.manager
	if err := n.UpdateSession(ctx, true, m.opts.ResumeTimeout); err != nil {
		n.reportError(&NodeError{Node: n.options.Identifier, Op: "enable resuming", Err: err}, false)
		return nil
	}
	if err := m.opts.Store.Set(ctx, sessionKey(n.options.Identifier), n.SessionID()); err != nil && n.logger != nil {
		n.logger.Warn("failed to persist session id", "error", err)
	}

	players, err := n.FetchPlayers(ctx)
	if err != nil {
		n.reportError(&NodeError{Node: n.options.Identifier, Op: "fetch players", Err: err}, false)
		return nil
	}

	resumed := make(map[snowflake.ID]bool, len(players))
	for _, rp := range players {
		if m.Get(rp.GuildID) != nil {
			continue
		}
		ok, err := n.resumePlayer(ctx, rp)
		if err != nil && n.logger != nil {
			n.logger.Warn("failed to resume player", "guild", rp.GuildID, "error", err)
		}
		if ok {
			resumed[rp.GuildID] = true
		}
	}
	return resumed
}

func (n *Node) resumePlayer(ctx context.Context, rp protocol.RestPlayer) (bool, error) {
	m := n.manager
	key := playerKey(rp.GuildID)

	var snap Snapshot
	found, err := m.opts.Store.Get(ctx, key, &snap)
	if err != nil {
		return false, err
	}
	if !found || snap.Guild == 0 || snap.VoiceChannel == 0 || snap.TextChannel == 0 {
		return false, m.opts.Store.Delete(ctx, key)
	}

	p, err := m.Create(PlayerOptions{
		GuildID:        snap.Guild,
		VoiceChannelID: snap.VoiceChannel,
		TextChannelID:  snap.TextChannel,
		Volume:         snap.Volume,
		SelfMute:       snap.SelfMute,
		SelfDeaf:       snap.SelfDeafen,
		Data:           snap.Data,
		Node:           n.options.Identifier,
	})
	if err != nil {
		return false, err
	}

	filters := rp.Filters
	if snap.Filters != nil {
		filters = *snap.Filters
	}
	p.restore(snap.RepeatMode, snap.IsAutoplay, filters, rp.Volume, rp.State.Position)

	if err := p.joinVoice(ctx); err != nil && n.logger != nil {
		n.logger.Warn("failed to rejoin voice", "guild", p.GuildID(), "error", err)
	}

	if snap.Current == "" {
		return true, p.Save(ctx)
	}

	p.setState(StateResuming)
	blobs := append([]string{snap.Current}, snap.Queue...)
	decoded, err := m.DecodeTracks(ctx, blobs)
	if err == nil && len(decoded) != len(blobs) {
		err = fmt.Errorf("%w: decoded %d of %d tracks", ErrDecode, len(decoded), len(blobs))
	}
	if err != nil {
		p.setState(StateConnected)
		return true, err
	}

	current := NewTrack(decoded[0], snap.Requester)
	upcoming := make([]QueueItem, 0, len(decoded)-1)
	for _, data := range decoded[1:] {
		upcoming = append(upcoming, NewTrack(data, snap.Requester))
	}
	p.queue.restore(current, upcoming)

	if rp.Track == nil {
		if len(upcoming) == 0 {
			p.setState(StateConnected)
			if err := p.Destroy(ctx, true); err != nil && n.logger != nil {
				n.logger.Warn("failed to destroy finished player", "guild", p.GuildID(), "error", err)
			}
			m.emit(QueueEndEvent{Player: p, Track: current})
			return true, nil
		}
		p.setState(StateConnected)
		if err := p.Skip(ctx); err != nil {
			return true, err
		}
	}

	p.setState(StateConnected)
	p.setPlaying(true)
	m.emit(TrackStartEvent{Player: p, Track: asTrack(p.queue.Current())})
	return true, nil
}

// resync re-sends voice and playback for players that stayed on this node
// while it was down and whose session was not resumed.
func (n *Node) resync(ctx context.Context, skip map[snowflake.ID]bool) {
	for _, p := range n.manager.playersOn(n) {
		if skip[p.GuildID()] {
			continue
		}
		if voice := p.voiceState(); voice.Complete() {
			if err := n.UpdatePlayer(ctx, p.GuildID(), protocol.UpdatePlayer{Voice: &voice}); err != nil && n.logger != nil {
				n.logger.Warn("failed to resend voice state", "guild", p.GuildID(), "error", err)
				continue
			}
		}
		if p.queue.Current() == nil {
			continue
		}
		if err := p.Play(ctx); err != nil && n.logger != nil {
			n.logger.Warn("failed to restart playback", "guild", p.GuildID(), "error", err)
		}
	}
}
