package lavalink

import (
	"context"
	"time"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
	"github.com/liuran001/sonatica-go/sonatica/selector"
)

// MoveNode hands the player to another node. An empty identifier lets the
// sorter choose. The full playback state is replicated to the destination
// and the source copy is removed after the move grace period.
func (p *Player) MoveNode(ctx context.Context, identifier string) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	m := p.manager
	source := p.Node()

	var target *Node
	if identifier == "" {
		var ok bool
		target, ok = selector.First(m.Nodes(), m.opts.Sorter, func(n *Node) bool {
			return n != source && !n.options.DisablePlayback
		})
		if !ok {
			return p.wrap("move", ErrNoNodesAvailable)
		}
	} else {
		var ok bool
		target, ok = m.Node(identifier)
		if !ok {
			return p.wrap("move", invalidArgument("unknown node %q", identifier))
		}
	}
	if target == source {
		return nil
	}
	if !target.Connected() {
		return p.wrap("move", notReady("node %s is not connected", target.Identifier()))
	}

	p.mu.Lock()
	prevState := p.state
	p.state = StateMoving
	if p.moveTimer != nil {
		p.moveTimer.Stop()
		p.moveTimer = nil
	}
	position := p.position
	p.mu.Unlock()

	if source != nil && source.reachable() {
		if rp, err := source.FetchPlayer(ctx, p.guildID); err == nil {
			if rp.Track != nil {
				position = rp.Track.Info.Position
			} else {
				position = rp.State.Position
			}
		} else if p.logger != nil {
			p.logger.Debug("could not read position from source node", "error", err)
		}
	}

	if err := target.UpdatePlayer(ctx, p.guildID, p.fullUpdate(position)); err != nil {
		p.setState(prevState)
		return p.wrap("move", err)
	}

	p.mu.Lock()
	p.node = target
	p.position = position
	if source != nil {
		p.moveTimer = time.AfterFunc(m.opts.MoveGracePeriod, func() {
			p.finishMove(source)
		})
	} else {
		p.state = StateConnected
	}
	p.mu.Unlock()

	from := ""
	if source != nil {
		from = source.Identifier()
	}
	if p.logger != nil {
		p.logger.Info("player moved", "from", from, "to", target.Identifier())
	}
	m.emit(PlayerNodeMoveEvent{Player: p, From: from, To: target.Identifier()})
	p.save()
	return nil
}

func (p *Player) finishMove(source *Node) {
	if source.reachable() {
		ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
		defer cancel()
		if err := source.DestroyPlayer(ctx, p.guildID); err != nil && p.logger != nil {
			p.logger.Warn("failed to remove player from previous node", "node", source.Identifier(), "error", err)
		}
	}

	p.mu.Lock()
	p.moveTimer = nil
	if p.state == StateMoving {
		p.state = StateConnected
	}
	p.mu.Unlock()
}

// fullUpdate replicates track, position, volume, pause, filters and voice.
func (p *Player) fullUpdate(position int64) protocol.UpdatePlayer {
	current := asTrack(p.queue.Current())

	p.mu.Lock()
	volume := p.volume
	paused := p.paused
	filters := p.filters.Clone()
	voice := protocol.VoiceState{Token: p.voice.token, Endpoint: p.voice.endpoint, SessionID: p.voice.sessionID}
	p.mu.Unlock()

	update := protocol.UpdatePlayer{
		Volume:  &volume,
		Paused:  &paused,
		Filters: &filters,
	}
	if current != nil {
		encoded := current.Encoded
		update.Track = &protocol.UpdatePlayerTrack{Encoded: &encoded, UserData: userData(current.Requester)}
		update.Position = &position
	}
	if voice.Complete() {
		update.Voice = &voice
	}
	return update
}
