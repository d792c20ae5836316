package lavalink

import (
	"context"

	"github.com/liuran001/sonatica-go/sonatica/protocol"
)

const (
	equalizerBands = 15
	minBandGain    = -0.25
	maxBandGain    = 1.0
	maxFilterVol   = 5.0
)

// FilterSet edits the player's filter block. Every change sends the whole
// block to the node and is kept only if the node accepts it.
type FilterSet struct {
	p *Player
}

// Filters returns the filter editor of the player.
func (p *Player) Filters() *FilterSet {
	return &FilterSet{p: p}
}

// Values returns a copy of the active filters.
func (f *FilterSet) Values() protocol.Filters {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	return f.p.filters.Clone()
}

func (f *FilterSet) apply(ctx context.Context, mutate func(*protocol.Filters) error) error {
	p := f.p
	if err := p.checkAlive(); err != nil {
		return err
	}

	p.mu.Lock()
	next := p.filters.Clone()
	p.mu.Unlock()

	if err := mutate(&next); err != nil {
		return err
	}
	if err := p.update(ctx, "filters", protocol.UpdatePlayer{Filters: &next}); err != nil {
		return err
	}

	p.mu.Lock()
	p.filters = next
	p.mu.Unlock()
	p.save()
	return nil
}

// SetEqualizer sets the given bands, leaving others untouched. Bands run
// 0 to 14 and gains -0.25 to 1.0.
func (f *FilterSet) SetEqualizer(ctx context.Context, bands ...protocol.Band) error {
	for _, b := range bands {
		if b.Band < 0 || b.Band >= equalizerBands {
			return invalidArgument("equalizer band %d out of range", b.Band)
		}
		if b.Gain < minBandGain || b.Gain > maxBandGain {
			return invalidArgument("equalizer gain %.2f out of range", b.Gain)
		}
	}
	return f.apply(ctx, func(filters *protocol.Filters) error {
		for _, b := range bands {
			replaced := false
			for i := range filters.Equalizer {
				if filters.Equalizer[i].Band == b.Band {
					filters.Equalizer[i].Gain = b.Gain
					replaced = true
					break
				}
			}
			if !replaced {
				filters.Equalizer = append(filters.Equalizer, b)
			}
		}
		return nil
	})
}

// ClearEqualizer resets every band.
func (f *FilterSet) ClearEqualizer(ctx context.Context) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Equalizer = nil
		return nil
	})
}

// SetVolume sets the filter volume multiplier, 0 to 5. It is separate from
// the player volume.
func (f *FilterSet) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 || volume > maxFilterVol {
		return invalidArgument("filter volume must be between 0 and %.0f", maxFilterVol)
	}
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Volume = &volume
		return nil
	})
}

// SetTimescale sets speed, pitch and rate. Nil clears it.
func (f *FilterSet) SetTimescale(ctx context.Context, timescale *protocol.Timescale) error {
	if timescale != nil && (timescale.Speed < 0 || timescale.Pitch < 0 || timescale.Rate < 0) {
		return invalidArgument("timescale values must not be negative")
	}
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Timescale = timescale
		return nil
	})
}

func (f *FilterSet) SetKaraoke(ctx context.Context, karaoke *protocol.Karaoke) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Karaoke = karaoke
		return nil
	})
}

func (f *FilterSet) SetTremolo(ctx context.Context, tremolo *protocol.Tremolo) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Tremolo = tremolo
		return nil
	})
}

func (f *FilterSet) SetVibrato(ctx context.Context, vibrato *protocol.Vibrato) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Vibrato = vibrato
		return nil
	})
}

func (f *FilterSet) SetRotation(ctx context.Context, rotation *protocol.Rotation) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Rotation = rotation
		return nil
	})
}

func (f *FilterSet) SetDistortion(ctx context.Context, distortion *protocol.Distortion) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.Distortion = distortion
		return nil
	})
}

func (f *FilterSet) SetChannelMix(ctx context.Context, mix *protocol.ChannelMix) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.ChannelMix = mix
		return nil
	})
}

func (f *FilterSet) SetLowPass(ctx context.Context, lowPass *protocol.LowPass) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		filters.LowPass = lowPass
		return nil
	})
}

// SetPluginFilter sets a plugin specific filter. A nil value removes it.
func (f *FilterSet) SetPluginFilter(ctx context.Context, name string, value any) error {
	if name == "" {
		return invalidArgument("plugin filter name is required")
	}
	return f.apply(ctx, func(filters *protocol.Filters) error {
		if value == nil {
			delete(filters.PluginFilters, name)
			return nil
		}
		if filters.PluginFilters == nil {
			filters.PluginFilters = make(map[string]any)
		}
		filters.PluginFilters[name] = value
		return nil
	})
}

// Clear removes every filter.
func (f *FilterSet) Clear(ctx context.Context) error {
	return f.apply(ctx, func(filters *protocol.Filters) error {
		*filters = protocol.Filters{}
		return nil
	})
}
