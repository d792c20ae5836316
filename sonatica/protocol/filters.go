package protocol

// Filters is the full filter block sent with every player update. The
// library treats it as opaque configuration.
type Filters struct {
	Volume        *float64       `json:"volume,omitempty"`
	Equalizer     []Band         `json:"equalizer,omitempty"`
	Karaoke       *Karaoke       `json:"karaoke,omitempty"`
	Timescale     *Timescale     `json:"timescale,omitempty"`
	Tremolo       *Tremolo       `json:"tremolo,omitempty"`
	Vibrato       *Vibrato       `json:"vibrato,omitempty"`
	Rotation      *Rotation      `json:"rotation,omitempty"`
	Distortion    *Distortion    `json:"distortion,omitempty"`
	ChannelMix    *ChannelMix    `json:"channelMix,omitempty"`
	LowPass       *LowPass       `json:"lowPass,omitempty"`
	PluginFilters map[string]any `json:"pluginFilters,omitempty"`
}

// Clone returns a deep enough copy for independent mutation.
func (f Filters) Clone() Filters {
	out := f
	if f.Volume != nil {
		v := *f.Volume
		out.Volume = &v
	}
	if f.Equalizer != nil {
		out.Equalizer = append([]Band(nil), f.Equalizer...)
	}
	if f.Karaoke != nil {
		v := *f.Karaoke
		out.Karaoke = &v
	}
	if f.Timescale != nil {
		v := *f.Timescale
		out.Timescale = &v
	}
	if f.Tremolo != nil {
		v := *f.Tremolo
		out.Tremolo = &v
	}
	if f.Vibrato != nil {
		v := *f.Vibrato
		out.Vibrato = &v
	}
	if f.Rotation != nil {
		v := *f.Rotation
		out.Rotation = &v
	}
	if f.Distortion != nil {
		v := *f.Distortion
		out.Distortion = &v
	}
	if f.ChannelMix != nil {
		v := *f.ChannelMix
		out.ChannelMix = &v
	}
	if f.LowPass != nil {
		v := *f.LowPass
		out.LowPass = &v
	}
	if f.PluginFilters != nil {
		out.PluginFilters = make(map[string]any, len(f.PluginFilters))
		for k, v := range f.PluginFilters {
			out.PluginFilters[k] = v
		}
	}
	return out
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.Volume == nil && len(f.Equalizer) == 0 && f.Karaoke == nil && f.Timescale == nil &&
		f.Tremolo == nil && f.Vibrato == nil && f.Rotation == nil && f.Distortion == nil &&
		f.ChannelMix == nil && f.LowPass == nil && len(f.PluginFilters) == 0
}

type Band struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}
