package lavalink

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// State is the connection state of a player.
type State string

const (
	StateDisconnected  State = "DISCONNECTED"
	StateConnecting    State = "CONNECTING"
	StateConnected     State = "CONNECTED"
	StateDisconnecting State = "DISCONNECTING"
	StateDestroying    State = "DESTROYING"
	StateMoving        State = "MOVING"
	StateResuming      State = "RESUMING"
)

// PlayerOptions configures a new player.
type PlayerOptions struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	// Node pins the player to a node identifier instead of the sorter's pick.
	Node string
	// Volume defaults to 80 when not positive.
	Volume   int
	SelfMute bool
	SelfDeaf bool
	Data     map[string]any
}

type voiceSession struct {
	sessionID string
	token     string
	endpoint  string
}

// Player is the playback session of one guild, bound to one node at a time.
type Player struct {
	manager *Manager
	guildID snowflake.ID
	queue   *Queue
	logger  sonatica.Logger

	mu             sync.Mutex
	node           *Node
	voiceChannelID snowflake.ID
	textChannelID  snowflake.ID
	selfMute       bool
	selfDeaf       bool
	volume         int
	paused         bool
	playing        bool
	repeat         RepeatMode
	autoplay       bool
	position       int64
	state          State
	filters        protocol.Filters
	data           map[string]any
	voice          voiceSession
	destroyed      bool
	moveTimer      *time.Timer
}

func newPlayer(m *Manager, node *Node, opts PlayerOptions) *Player {
	volume := opts.Volume
	if volume <= 0 {
		volume = DefaultVolume
	}
	data := make(map[string]any, len(opts.Data))
	for k, v := range opts.Data {
		data[k] = v
	}
	p := &Player{
		manager:        m,
		guildID:        opts.GuildID,
		node:           node,
		voiceChannelID: opts.VoiceChannelID,
		textChannelID:  opts.TextChannelID,
		selfMute:       opts.SelfMute,
		selfDeaf:       opts.SelfDeaf,
		volume:         volume,
		state:          StateDisconnected,
		data:           data,
	}
	if m.logger != nil {
		p.logger = m.logger.With("guild", opts.GuildID)
	}
	p.queue = newQueue(p.save)
	return p
}

func (p *Player) GuildID() snowflake.ID {
	return p.guildID
}

// Queue returns the player's queue. Its mutations persist the player.
func (p *Player) Queue() *Queue {
	return p.queue
}

func (p *Player) Node() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.node
}

func (p *Player) VoiceChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceChannelID
}

func (p *Player) TextChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textChannelID
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeat
}

func (p *Player) Autoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// Position is the client side estimate in milliseconds.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Set stores a value in the player's user data and persists it.
func (p *Player) Set(key string, value any) {
	p.mu.Lock()
	p.data[key] = value
	p.mu.Unlock()
	p.save()
}

// Get returns a user data value.
func (p *Player) Get(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return v, ok
}

// Search runs a manager search on behalf of this player.
func (p *Player) Search(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error) {
	return p.manager.Search(ctx, query, requester)
}

func (p *Player) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

func (p *Player) setPlaying(playing bool) {
	p.mu.Lock()
	p.playing = playing
	p.mu.Unlock()
}

func (p *Player) setPosition(position int64) {
	p.mu.Lock()
	p.position = position
	p.mu.Unlock()
}

func (p *Player) voiceState() protocol.VoiceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.VoiceState{
		Token:     p.voice.token,
		Endpoint:  p.voice.endpoint,
		SessionID: p.voice.sessionID,
	}
}

func (p *Player) restore(repeat RepeatMode, autoplay bool, filters protocol.Filters, volume int, position int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if repeat.Valid() {
		p.repeat = repeat
	}
	p.autoplay = autoplay
	p.filters = filters.Clone()
	if volume > 0 {
		p.volume = volume
	}
	p.position = position
}

func (p *Player) checkAlive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return &PlayerError{Guild: p.guildID, Op: "use", Err: ErrPlayerDestroyed}
	}
	return nil
}

func (p *Player) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PlayerError{Guild: p.guildID, Op: op, Err: err}
}

func (p *Player) update(ctx context.Context, op string, update protocol.UpdatePlayer) error {
	return p.wrap(op, p.Node().UpdatePlayer(ctx, p.guildID, update))
}

// Connect asks the gateway to join the voice channel.
func (p *Player) Connect(ctx context.Context) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	p.setState(StateConnecting)
	if err := p.joinVoice(ctx); err != nil {
		p.setState(StateDisconnected)
		return p.wrap("connect", err)
	}
	p.setState(StateConnected)
	return nil
}

// joinVoice sends the join payload without touching the state.
func (p *Player) joinVoice(ctx context.Context) error {
	p.mu.Lock()
	channel := p.voiceChannelID
	mute, deaf := p.selfMute, p.selfDeaf
	p.mu.Unlock()
	if channel == 0 {
		return notReady("no voice channel set")
	}
	return p.sendVoice(ctx, &channel, mute, deaf)
}

func (p *Player) sendVoice(ctx context.Context, channel *snowflake.ID, mute, deaf bool) error {
	send := p.manager.opts.Send
	if send == nil {
		return notReady("no send function configured")
	}
	return send(ctx, p.guildID, VoiceUpdate{
		Op: 4,
		D: VoiceUpdateData{
			GuildID:   p.guildID,
			ChannelID: channel,
			SelfMute:  mute,
			SelfDeaf:  deaf,
		},
	})
}

// Disconnect leaves the voice channel. Without a channel it does nothing.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	if p.voiceChannelID == 0 {
		p.mu.Unlock()
		return nil
	}
	prev := p.state
	p.state = StateDisconnecting
	p.mu.Unlock()

	if err := p.sendVoice(ctx, nil, false, false); err != nil {
		p.setState(prev)
		return p.wrap("disconnect", err)
	}

	p.mu.Lock()
	p.voiceChannelID = 0
	if p.state == StateDisconnecting {
		p.state = StateDisconnected
	}
	p.mu.Unlock()
	return nil
}

// Destroy removes the player from its node and the manager. It is
// idempotent; cleanup continues even if the node call fails.
func (p *Player) Destroy(ctx context.Context, disconnect bool) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	p.state = StateDestroying
	if p.moveTimer != nil {
		p.moveTimer.Stop()
		p.moveTimer = nil
	}
	node := p.node
	p.mu.Unlock()

	if disconnect {
		if err := p.Disconnect(ctx); err != nil && p.logger != nil {
			p.logger.Warn("failed to leave voice channel", "error", err)
		}
	}

	var err error
	if node != nil && node.reachable() {
		err = p.wrap("destroy", node.DestroyPlayer(ctx, p.guildID))
	}

	m := p.manager
	m.emit(PlayerDestroyEvent{Player: p})
	m.removePlayer(p)
	if m.opts.AutoResume && m.opts.Store != nil {
		if delErr := m.opts.Store.Delete(ctx, playerKey(p.guildID)); delErr != nil && p.logger != nil {
			p.logger.Warn("failed to delete snapshot", "error", delErr)
		}
	}
	return err
}

// SetVoiceChannel changes the voice channel and joins it.
func (p *Player) SetVoiceChannel(ctx context.Context, channelID snowflake.ID) error {
	if channelID == 0 {
		return invalidArgument("voice channel id is required")
	}
	p.mu.Lock()
	p.voiceChannelID = channelID
	p.mu.Unlock()
	return p.Connect(ctx)
}

// SetTextChannel records the text channel used by the application.
func (p *Player) SetTextChannel(channelID snowflake.ID) error {
	if channelID == 0 {
		return invalidArgument("text channel id is required")
	}
	p.mu.Lock()
	p.textChannelID = channelID
	p.mu.Unlock()
	p.save()
	return nil
}

// SetVolume sets the player volume, 0 to 1000 percent.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > MaxVolume {
		return invalidArgument("volume must be between 0 and %d", MaxVolume)
	}
	if err := p.checkAlive(); err != nil {
		return err
	}
	if err := p.update(ctx, "set volume", protocol.UpdatePlayer{Volume: &volume}); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.save()
	return nil
}

func (p *Player) SetRepeat(mode RepeatMode) error {
	if !mode.Valid() {
		return invalidArgument("unknown repeat mode %d", mode)
	}
	p.mu.Lock()
	p.repeat = mode
	p.mu.Unlock()
	p.save()
	return nil
}

// SetAutoplay toggles the mix based continuation at queue end.
func (p *Player) SetAutoplay(enabled bool) {
	p.mu.Lock()
	p.autoplay = enabled
	p.mu.Unlock()
	p.save()
}

// PlayTrack makes item current, moving the old current to previous, and
// plays it.
func (p *Player) PlayTrack(ctx context.Context, item QueueItem) error {
	if err := checkItems([]QueueItem{item}); err != nil {
		return err
	}
	p.queue.playNow(item)
	return p.Play(ctx)
}

// Play sends the current track to the node. An unresolved current track is
// resolved first; if that fails TrackErrorEvent is emitted and the next
// queued track is tried.
func (p *Player) Play(ctx context.Context) error {
	if err := p.checkAlive(); err != nil {
		return err
	}

	current := p.queue.Current()
	if current == nil {
		return p.wrap("play", notReady("no current track"))
	}

	var track *Track
	switch item := current.(type) {
	case *Track:
		track = item
	case *UnresolvedTrack:
		resolved, err := item.Resolve(ctx, p.manager)
		if err != nil {
			p.manager.emit(TrackErrorEvent{Player: p, Track: item, Err: err})
			next := p.queue.popFront()
			if next == nil {
				return nil
			}
			p.queue.replaceCurrent(item, next)
			return p.Play(ctx)
		}
		p.queue.replaceCurrent(item, resolved)
		track = resolved
	}

	p.mu.Lock()
	position := p.position
	volume := p.volume
	paused := p.paused
	filters := p.filters.Clone()
	p.mu.Unlock()

	encoded := track.Encoded
	err := p.update(ctx, "play", protocol.UpdatePlayer{
		Track:    &protocol.UpdatePlayerTrack{Encoded: &encoded, UserData: userData(track.Requester)},
		Position: &position,
		Volume:   &volume,
		Paused:   &paused,
		Filters:  &filters,
	})
	if err != nil {
		return err
	}

	p.save()
	p.mu.Lock()
	p.position = 0
	p.playing = true
	p.mu.Unlock()
	return nil
}

// Skip plays the next queued track, or stops when the queue is empty.
func (p *Player) Skip(ctx context.Context) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	if !p.queue.skip() {
		return p.Stop(ctx, 0)
	}
	p.setPosition(0)
	return p.Play(ctx)
}

// Stop clears the node's track. A count above 1 first drops count-1
// upcoming tracks, so count tracks are skipped in total.
func (p *Player) Stop(ctx context.Context, count int) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	if count > 1 {
		if count > p.queue.Len() {
			return invalidArgument("cannot skip more than the queue length")
		}
		if _, err := p.queue.RemoveRange(0, count-1); err != nil {
			return err
		}
	}
	return p.update(ctx, "stop", protocol.UpdatePlayer{Track: &protocol.UpdatePlayerTrack{Encoded: nil}})
}

// Pause pauses or resumes playback. Asking for the current state is a no-op.
func (p *Player) Pause(ctx context.Context, paused bool) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	if p.Paused() == paused {
		return nil
	}
	if err := p.update(ctx, "pause", protocol.UpdatePlayer{Paused: &paused}); err != nil {
		return err
	}
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	return nil
}

// Seek moves the playhead, clamped to the track duration.
func (p *Player) Seek(ctx context.Context, position int64) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	track := asTrack(p.queue.Current())
	if track == nil {
		return p.wrap("seek", notReady("no current track"))
	}
	if !track.IsSeekable {
		return invalidArgument("track %q is not seekable", track.Title)
	}
	position = max(0, min(position, track.Duration))
	if err := p.update(ctx, "seek", protocol.UpdatePlayer{Position: &position}); err != nil {
		return err
	}
	p.setPosition(position)
	return nil
}

// Previous queues the previous track at the front and stops the current
// one so it plays next. With nothing playing it plays the previous track
// directly.
func (p *Player) Previous(ctx context.Context) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	prev := p.queue.Previous()
	if prev == nil {
		return p.wrap("previous", notReady("no previous track"))
	}
	if p.queue.Current() == nil {
		return p.PlayTrack(ctx, prev)
	}
	if err := p.queue.Insert(0, prev); err != nil {
		return err
	}
	return p.Stop(ctx, 0)
}

// userData forwards map requesters as Lavalink user data. Other requester
// types stay local.
func userData(requester any) map[string]any {
	if m, ok := requester.(map[string]any); ok {
		return m
	}
	return nil
}
