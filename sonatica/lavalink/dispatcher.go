package lavalink

import (
	"context"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// EventDispatcher routes node events to the player they belong to.
type EventDispatcher struct {
	manager *Manager
}

// Dispatch applies ev to its player. Events from a node that no longer
// hosts the player are dropped.
func (d *EventDispatcher) Dispatch(ctx context.Context, node *Node, ev *protocol.EventOp) {
	if ev == nil || ev.GuildID == 0 {
		return
	}
	p := d.manager.Get(ev.GuildID)
	if p == nil {
		return
	}
	if p.Node() != node {
		if p.logger != nil {
			p.logger.Debug("ignoring event from foreign node", "event", ev.Type, "node", node.Identifier())
		}
		return
	}
	p.handleEvent(ctx, ev)
}

func (p *Player) handleEvent(ctx context.Context, ev *protocol.EventOp) {
	m := p.manager
	track := p.eventTrack(ev)

	switch ev.Type {
	case protocol.EventTrackStart:
		p.mu.Lock()
		p.playing = true
		p.paused = false
		p.mu.Unlock()
		m.emit(TrackStartEvent{Player: p, Track: track})

	case protocol.EventTrackEnd:
		p.onTrackEnd(ctx, ev)

	case protocol.EventTrackStuck:
		p.setPosition(0)
		m.emit(TrackStuckEvent{Player: p, Track: track, ThresholdMs: ev.ThresholdMs})

	case protocol.EventTrackException:
		p.setPosition(0)
		var item QueueItem
		if track != nil {
			item = track
		}
		m.emit(TrackErrorEvent{Player: p, Track: item, Exception: ev.Exception})

	case protocol.EventWebSocketClosed:
		p.setPosition(0)
		m.emit(SocketClosedEvent{Player: p, Code: ev.Code, Reason: ev.Reason, ByRemote: ev.ByRemote})

	case protocol.EventLyricsFound:
		m.emit(LyricsFoundEvent{Player: p, Track: track, Lyrics: ev.Lyrics})

	case protocol.EventLyricsNotFound:
		m.emit(LyricsNotFoundEvent{Player: p, Track: track})

	case protocol.EventLyricsLine:
		m.emit(LyricsLineEvent{Player: p, Track: track, LineIndex: ev.LineIndex, Line: ev.Line, Skipped: ev.Skipped})

	default:
		if p.logger != nil {
			p.logger.Debug("unknown event type", "event", ev.Type)
		}
	}
}

// eventTrack is the local current track, or the payload track when nothing
// is current.
func (p *Player) eventTrack(ev *protocol.EventOp) *Track {
	if t := asTrack(p.queue.Current()); t != nil {
		return t
	}
	if ev.Track != nil {
		return NewTrack(*ev.Track, nil)
	}
	return nil
}

func (p *Player) onTrackEnd(ctx context.Context, ev *protocol.EventOp) {
	m := p.manager

	p.mu.Lock()
	state := p.state
	repeat := p.repeat
	p.mu.Unlock()
	if state == StateMoving || state == StateResuming {
		return
	}

	p.save()
	p.setPosition(0)

	var reported *Track
	if ev.Track != nil {
		reported = NewTrack(*ev.Track, nil)
	}
	ended := asTrack(p.queue.Current())
	if ended == nil {
		ended = reported
	}

	reason := ev.EndReason()
	switch p.queue.onTrackEnd(reason, repeat, reported) {
	case endReplaced:
		if prev := asTrack(p.queue.Previous()); prev != nil {
			ended = prev
		}
		m.emit(TrackEndEvent{Player: p, Track: ended, Reason: reason})

	case endContinue:
		m.emit(TrackEndEvent{Player: p, Track: ended, Reason: reason})
		if !m.opts.AutoPlay {
			p.save()
			return
		}
		if err := p.Play(ctx); err != nil && p.logger != nil {
			p.logger.Warn("failed to play next track", "error", err)
		}

	case endQueueEnd:
		p.queueEnd(ctx, ended)
	}
}

// queueEnd clears the current track and either starts autoplay or emits
// QueueEndEvent.
func (p *Player) queueEnd(ctx context.Context, ended *Track) {
	p.queue.setCurrent(nil)
	p.mu.Lock()
	autoplay := p.autoplay
	p.playing = autoplay
	p.mu.Unlock()
	p.save()

	if autoplay {
		if err := p.autoplayNext(ctx, ended); err != nil && p.logger != nil {
			p.logger.Warn("autoplay failed", "error", err)
		}
		return
	}
	p.manager.emit(QueueEndEvent{Player: p, Track: ended})
}
