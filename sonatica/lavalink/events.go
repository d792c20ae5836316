package lavalink

import (
	"encoding/json"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// Event is implemented by every domain event the manager emits.
type Event interface {
	event()
}

type NodeCreateEvent struct{ Node *Node }

type NodeConnectEvent struct{ Node *Node }

// NodeReadyEvent follows the server's ready op.
type NodeReadyEvent struct {
	Node      *Node
	SessionID string
	Resumed   bool
}

type NodeDisconnectEvent struct {
	Node   *Node
	Code   int
	Reason string
}

type NodeReconnectEvent struct {
	Node    *Node
	Attempt int
}

// NodeErrorEvent reports a node failure. Fatal means the node gave up
// reconnecting and was destroyed.
type NodeErrorEvent struct {
	Node  *Node
	Err   error
	Fatal bool
}

type NodeDestroyEvent struct{ Node *Node }

// NodeRawEvent carries every inbound frame before it is handled.
type NodeRawEvent struct {
	Node    *Node
	Op      protocol.Op
	Payload json.RawMessage
}

type PlayerCreateEvent struct{ Player *Player }

type PlayerDestroyEvent struct{ Player *Player }

// PlayerMoveEvent reports a voice channel change seen on the gateway.
type PlayerMoveEvent struct {
	Player     *Player
	OldChannel snowflake.ID
	NewChannel snowflake.ID
}

type PlayerDisconnectEvent struct {
	Player     *Player
	OldChannel snowflake.ID
}

// PlayerNodeMoveEvent reports a handoff to another node.
type PlayerNodeMoveEvent struct {
	Player *Player
	From   string
	To     string
}

type PlayerUpdateEvent struct {
	Player *Player
	State  protocol.PlayerState
}

type TrackStartEvent struct {
	Player *Player
	Track  *Track
}

type TrackEndEvent struct {
	Player *Player
	Track  *Track
	Reason protocol.TrackEndReason
}

type TrackStuckEvent struct {
	Player      *Player
	Track       *Track
	ThresholdMs int64
}

// TrackErrorEvent reports a playback exception from the node or a local
// resolve failure. Exactly one of Exception and Err is set.
type TrackErrorEvent struct {
	Player    *Player
	Track     QueueItem
	Exception *protocol.Exception
	Err       error
}

type QueueEndEvent struct {
	Player *Player
	Track  *Track
}

type SocketClosedEvent struct {
	Player   *Player
	Code     int
	Reason   string
	ByRemote bool
}

type LyricsFoundEvent struct {
	Player *Player
	Track  *Track
	Lyrics *protocol.LyricsResult
}

type LyricsNotFoundEvent struct {
	Player *Player
	Track  *Track
}

type LyricsLineEvent struct {
	Player    *Player
	Track     *Track
	LineIndex int
	Line      *protocol.LyricsLine
	Skipped   bool
}

func (NodeCreateEvent) event()       {}
func (NodeConnectEvent) event()      {}
func (NodeReadyEvent) event()        {}
func (NodeDisconnectEvent) event()   {}
func (NodeReconnectEvent) event()    {}
func (NodeErrorEvent) event()        {}
func (NodeDestroyEvent) event()      {}
func (NodeRawEvent) event()          {}
func (PlayerCreateEvent) event()     {}
func (PlayerDestroyEvent) event()    {}
func (PlayerMoveEvent) event()       {}
func (PlayerDisconnectEvent) event() {}
func (PlayerNodeMoveEvent) event()   {}
func (PlayerUpdateEvent) event()     {}
func (TrackStartEvent) event()       {}
func (TrackEndEvent) event()         {}
func (TrackStuckEvent) event()       {}
func (TrackErrorEvent) event()       {}
func (QueueEndEvent) event()         {}
func (SocketClosedEvent) event()     {}
func (LyricsFoundEvent) event()      {}
func (LyricsNotFoundEvent) event()   {}
func (LyricsLineEvent) event()       {}

// Listener receives events synchronously on the emitting goroutine.
type Listener func(Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

type eventBus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []listenerEntry
}

func (b *eventBus) add(fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, l := range b.listeners {
				if l.id == id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *eventBus) emit(e Event) {
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()
	for _, l := range listeners {
		l.fn(e)
	}
}

// On registers fn for events of type E only and returns its remover.
func On[E Event](m *Manager, fn func(E)) func() {
	return m.AddListener(func(e Event) {
		if typed, ok := e.(E); ok {
			fn(typed)
		}
	})
}
