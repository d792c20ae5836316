package lavalink

import (
	"context"
	"fmt"
	"strings"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

// QueueItem is either a *Track or an *UnresolvedTrack.
type QueueItem interface {
	queueItem()
	duration() int64
	requester() any
}

// Track is a playable track. Treat it as immutable; WithRequester copies.
type Track struct {
	Encoded    string
	Identifier string
	Title      string
	Author     string
	// Duration in milliseconds, 0 for live streams.
	Duration   int64
	SourceName string
	URI        string
	ArtworkURL string
	ISRC       string
	IsSeekable bool
	IsStream   bool
	PluginInfo map[string]any
	Requester  any
}

// NewTrack builds a Track from its wire form.
func NewTrack(data protocol.TrackData, requester any) *Track {
	return &Track{
		Encoded:    data.Encoded,
		Identifier: data.Info.Identifier,
		Title:      data.Info.Title,
		Author:     data.Info.Author,
		Duration:   data.Info.Length,
		SourceName: data.Info.SourceName,
		URI:        protocol.StrValue(data.Info.URI),
		ArtworkURL: protocol.StrValue(data.Info.ArtworkURL),
		ISRC:       protocol.StrValue(data.Info.ISRC),
		IsSeekable: data.Info.IsSeekable,
		IsStream:   data.Info.IsStream,
		PluginInfo: data.PluginInfo,
		Requester:  requester,
	}
}

// WithRequester returns a copy tagged with requester.
func (t *Track) WithRequester(requester any) *Track {
	out := *t
	out.Requester = requester
	return &out
}

func (t *Track) queueItem()      {}
func (t *Track) duration() int64 { return t.Duration }
func (t *Track) requester() any  { return t.Requester }

// UnresolvedTrack is a placeholder resolved by search right before playback.
type UnresolvedTrack struct {
	Title  string
	Author string
	// Duration in milliseconds, 0 if unknown.
	Duration  int64
	Requester any
}

func (u *UnresolvedTrack) queueItem()      {}
func (u *UnresolvedTrack) duration() int64 { return u.Duration }
func (u *UnresolvedTrack) requester() any  { return u.Requester }

// Searcher runs a track search. *Manager implements it.
type Searcher interface {
	Search(ctx context.Context, query SearchQuery, requester any) (*SearchResult, error)
}

const durationTolerance = 1500

// Resolve searches for "author - title" and picks the closest match: same
// author (or its "- Topic" channel) or same title first, then a duration
// within 1.5s, then the first result.
func (u *UnresolvedTrack) Resolve(ctx context.Context, searcher Searcher) (*Track, error) {
	if strings.TrimSpace(u.Title) == "" {
		return nil, invalidArgument("unresolved track has no title")
	}

	query := u.Title
	if u.Author != "" {
		query = u.Author + " - " + u.Title
	}

	result, err := searcher.Search(ctx, SearchQuery{Query: query}, u.Requester)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnresolvable, query, err)
	}
	if len(result.Tracks) == 0 {
		return nil, fmt.Errorf("%w: %q: no results", ErrUnresolvable, query)
	}

	if u.Author != "" {
		topic := u.Author + " - Topic"
		for _, t := range result.Tracks {
			if strings.EqualFold(t.Author, u.Author) || strings.EqualFold(t.Author, topic) || strings.EqualFold(t.Title, u.Title) {
				return t, nil
			}
		}
	}

	if u.Duration > 0 {
		for _, t := range result.Tracks {
			if t.Duration >= u.Duration-durationTolerance && t.Duration <= u.Duration+durationTolerance {
				return t, nil
			}
		}
	}

	return result.Tracks[0], nil
}

func asTrack(item QueueItem) *Track {
	if t, ok := item.(*Track); ok {
		return t
	}
	return nil
}

func sameTrack(a, b *Track) bool {
	return a != nil && b != nil && a.Encoded == b.Encoded
}
