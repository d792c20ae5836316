package lavalink

import (
	"math/rand/v2"
	"sync"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// RepeatMode controls what happens to a track that finished playing.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatTrack
	RepeatQueue
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatTrack:
		return "track"
	case RepeatQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known mode.
func (m RepeatMode) Valid() bool {
	return m >= RepeatNone && m <= RepeatQueue
}

// Queue holds the upcoming tracks of a player plus the current and previous
// slots. The current track is never part of the upcoming list.
type Queue struct {
	mu       sync.Mutex
	items    []QueueItem
	current  QueueItem
	previous QueueItem

	// onChange runs after every exported mutation, outside the lock.
	onChange func()
}

func newQueue(onChange func()) *Queue {
	return &Queue{onChange: onChange}
}

func (q *Queue) changed() {
	if q.onChange != nil {
		q.onChange()
	}
}

// Current returns the playing track, nil if none.
func (q *Queue) Current() QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Previous returns the last played track, nil if none.
func (q *Queue) Previous() QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.previous
}

// Len returns the number of upcoming tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TotalSize counts upcoming tracks plus the current one.
func (q *Queue) TotalSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.current != nil {
		n++
	}
	return n
}

// Duration sums the current and upcoming durations in milliseconds.
func (q *Queue) Duration() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	var total int64
	if q.current != nil {
		total = q.current.duration()
	}
	for _, item := range q.items {
		total += item.duration()
	}
	return total
}

// Items returns a copy of the upcoming tracks.
func (q *Queue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueueItem(nil), q.items...)
}

// Add appends items. With no current track the first item becomes current.
func (q *Queue) Add(items ...QueueItem) error {
	if err := checkItems(items); err != nil {
		return err
	}
	q.mu.Lock()
	if q.current == nil {
		q.current = items[0]
		items = items[1:]
	}
	q.items = append(q.items, items...)
	q.mu.Unlock()
	q.changed()
	return nil
}

// Insert places items at offset in the upcoming list. With no current track
// it behaves like Add.
func (q *Queue) Insert(offset int, items ...QueueItem) error {
	if err := checkItems(items); err != nil {
		return err
	}
	q.mu.Lock()
	if q.current == nil {
		q.mu.Unlock()
		return q.Add(items...)
	}
	if offset < 0 || offset > len(q.items) {
		n := len(q.items)
		q.mu.Unlock()
		return invalidArgument("offset must be between 0 and %d", n)
	}
	rest := append([]QueueItem(nil), q.items[offset:]...)
	q.items = append(append(q.items[:offset], items...), rest...)
	q.mu.Unlock()
	q.changed()
	return nil
}

// Remove deletes the upcoming track at index.
func (q *Queue) Remove(index int) (QueueItem, error) {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return nil, invalidArgument("index %d out of range", index)
	}
	item := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	q.mu.Unlock()
	q.changed()
	return item, nil
}

// RemoveRange deletes upcoming tracks in [start, end). An end past the list
// is clamped.
func (q *Queue) RemoveRange(start, end int) ([]QueueItem, error) {
	q.mu.Lock()
	if start < 0 || start >= end || start >= len(q.items) {
		q.mu.Unlock()
		return nil, invalidArgument("invalid range [%d, %d)", start, end)
	}
	if end > len(q.items) {
		end = len(q.items)
	}
	removed := append([]QueueItem(nil), q.items[start:end]...)
	q.items = append(q.items[:start], q.items[end:]...)
	q.mu.Unlock()
	q.changed()
	return removed, nil
}

// Clear drops every upcoming track. Current and previous stay.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
	q.changed()
}

// Shuffle randomizes the upcoming order.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
	q.mu.Unlock()
	q.changed()
}

func checkItems(items []QueueItem) error {
	if len(items) == 0 {
		return invalidArgument("no tracks given")
	}
	for _, item := range items {
		switch v := item.(type) {
		case *Track:
			if v == nil {
				return invalidArgument("nil track")
			}
		case *UnresolvedTrack:
			if v == nil {
				return invalidArgument("nil unresolved track")
			}
		default:
			return invalidArgument("unsupported queue item %T", item)
		}
	}
	return nil
}

// The helpers below never call onChange; callers persist explicitly.

func (q *Queue) popFrontLocked() QueueItem {
	if len(q.items) == 0 {
		return nil
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return item
}

func (q *Queue) popFront() QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popFrontLocked()
}

func (q *Queue) setCurrent(item QueueItem) {
	q.mu.Lock()
	q.current = item
	q.mu.Unlock()
}

// replaceCurrent swaps old for item only if old is still current.
func (q *Queue) replaceCurrent(old, item QueueItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != old {
		return false
	}
	q.current = item
	return true
}

// playNow makes item current and moves the old current to previous.
func (q *Queue) playNow(item QueueItem) {
	q.mu.Lock()
	if q.current != nil {
		q.previous = q.current
	}
	q.current = item
	q.mu.Unlock()
}

// skip moves to the next upcoming track. It reports false when none is left.
func (q *Queue) skip() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return false
	}
	q.previous = q.current
	q.current = q.popFrontLocked()
	return true
}

// restore rebuilds the queue in one step during resume.
func (q *Queue) restore(current QueueItem, items []QueueItem) {
	q.mu.Lock()
	q.current = current
	q.items = items
	q.mu.Unlock()
}

func (q *Queue) snapshot() (current QueueItem, items []QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current, append([]QueueItem(nil), q.items...)
}

// endOutcome tells the player what to do after a TrackEnd transition.
type endOutcome int

const (
	// endReplaced emits TrackEnd without advancing.
	endReplaced endOutcome = iota
	// endContinue emits TrackEnd and plays the new current track.
	endContinue
	// endQueueEnd runs the queue end logic.
	endQueueEnd
)

// onTrackEnd applies the TrackEnd transition for reason. ended is the track
// reported by the node, nil if the payload had none.
func (q *Queue) onTrackEnd(reason protocol.TrackEndReason, repeat RepeatMode, ended *Track) endOutcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch reason {
	case protocol.ReasonLoadFailed, protocol.ReasonCleanup:
		q.previous = q.current
		q.current = q.popFrontLocked()
		if q.current == nil {
			return endQueueEnd
		}
		return endContinue

	case protocol.ReasonReplaced:
		// previous holds the track the node replaced, not current: a local
		// Skip has already advanced current to the replacement.
		if ended == nil {
			q.previous = q.current
		} else if !sameTrack(asTrack(q.previous), ended) {
			q.previous = ended
		}
		return endReplaced
	}

	current := q.current
	if current != nil && (repeat == RepeatTrack || repeat == RepeatQueue) {
		if repeat == RepeatTrack {
			q.items = append([]QueueItem{current}, q.items...)
		} else {
			q.items = append(q.items, current)
		}
		q.previous = current
		q.current = q.popFrontLocked()
		// A stop under repeat moves past the stopped track instead of
		// replaying it.
		if reason == protocol.ReasonStopped && q.current == current {
			q.current = q.popFrontLocked()
		}
		if q.current == nil {
			return endQueueEnd
		}
		return endContinue
	}

	if len(q.items) > 0 {
		q.previous = current
		q.current = q.popFrontLocked()
		return endContinue
	}
	return endQueueEnd
}
