package lavalink

import (
	"context"
	"errors"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

const (
	autoplayFallbackSeed = "H58vbez_m4E"
	youtubeSource        = "youtube"
)

func mixURL(identifier string) string {
	return "https://www.youtube.com/watch?v=" + identifier + "&list=RD" + identifier
}

// autoplayNext queues a random track from a YouTube mix seeded by the
// previous track and plays it.
func (p *Player) autoplayNext(ctx context.Context, ended *Track) error {
	m := p.manager

	seed := asTrack(p.queue.Previous())
	if seed == nil {
		seed = ended
	}
	if seed == nil {
		return errors.New("no track to seed autoplay")
	}

	identifier := ""
	if seed.SourceName == youtubeSource {
		identifier = seed.Identifier
	} else {
		query := SearchQuery{Query: seed.Title + " - " + seed.Author, Source: youtubeSource}
		if res, err := m.Search(ctx, query, seed.Requester); err == nil && len(res.Tracks) > 0 {
			identifier = res.Tracks[0].Identifier
		}
	}
	if identifier == "" {
		identifier = autoplayFallbackSeed
	}

	mix, err := m.Search(ctx, SearchQuery{Query: mixURL(identifier)}, seed.Requester)
	if err != nil || mix.LoadType == protocol.LoadError || mix.LoadType == protocol.LoadEmpty {
		mix, err = m.Search(ctx, SearchQuery{Query: mixURL(autoplayFallbackSeed)}, seed.Requester)
		if err != nil {
			return err
		}
	}
	if mix.Playlist == nil {
		return errors.New("mix returned no playlist")
	}

	candidates := make([]*Track, 0, len(mix.Playlist.Tracks))
	for _, t := range mix.Playlist.Tracks {
		if ended != nil && ended.URI != "" && t.URI == ended.URI {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return errors.New("mix has no other tracks")
	}

	pick := candidates[m.opts.RandomIndex(len(candidates))]
	if err := p.queue.Add(pick); err != nil {
		return err
	}
	return p.Play(ctx)
}
